// Package session implements tipcast's credential lifecycle.
//
// It provides short-lived signed access tokens, opaque rotating refresh
// tokens stored as hashes in Postgres, mandatory rotation on every refresh,
// reuse detection that cascades revocation across a user's whole session set,
// and a per-user token-generation counter that invalidates in-flight access
// tokens after an incident.
//
// Transport (HTTP/WS) integration is intentionally out of scope here.
package session
