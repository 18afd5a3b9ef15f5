// Package token provides server-side hashing for opaque refresh secrets.
//
// Refresh secrets are never persisted in plaintext; only their digest is
// stored. When TIPCAST_TOKEN_HMAC_KEY is set the digest is HMAC-SHA256,
// otherwise plain SHA-256 is used for dev/back-compat.
package token
