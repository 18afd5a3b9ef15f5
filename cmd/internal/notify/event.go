package notify

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Wire protocol version for the event stream.
const Version = 1

// Event types pushed to connected clients.
const (
	TypeHelloAck        = "hello.ack"
	TypeSessionsRevoked = "sessions.revoked"
	TypeError           = "error"
)

// Envelope is the framing for every event on the stream.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloAckPayload confirms the stream is live for the authenticated user.
type HelloAckPayload struct {
	ConnectionID string `json:"connectionId"`
}

// SessionsRevokedPayload tells a client its user's sessions were revoked.
// Clients are expected to drop local credentials and return to login.
type SessionsRevokedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload carries a stream-level error to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) Envelope {
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      newRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}

func newRandomHex(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
