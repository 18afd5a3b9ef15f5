// Package identity is the identity-provider boundary for tipcast.
//
// It owns user records, Argon2id password verification, and the per-user
// token-generation counter that the session subsystem compares credentials
// against. The session packages never touch password material.
package identity
