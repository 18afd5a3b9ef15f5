package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"tipcast/cmd/internal/auth/session"
)

// Hub fans session events out to a user's connected clients.
//
// It implements session.Notifier: when the session subsystem revokes a
// user's sessions (logout-everywhere, reuse incident), every live connection
// of that user receives a sessions.revoked event and is told to drop state.
// Delivery is best-effort; a slow client loses the event rather than
// blocking the publisher.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	byUser  map[string]map[string]*Client // user id -> connection id -> client
	clients int
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:    log,
		byUser: make(map[string]map[string]*Client),
	}
}

// Register adds a client to its user's connection set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.byUser[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.byUser[c.UserID] = conns
	}
	conns[c.ConnectionID] = c
	h.clients++
}

// Unregister removes a client. Safe to call for clients never registered.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.byUser[c.UserID]
	if !ok {
		return
	}
	if _, ok := conns[c.ConnectionID]; !ok {
		return
	}
	delete(conns, c.ConnectionID)
	h.clients--
	if len(conns) == 0 {
		delete(h.byUser, c.UserID)
	}
}

// ConnectionCount reports the number of live connections (all users).
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients
}

// SessionsRevoked implements session.Notifier.
func (h *Hub) SessionsRevoked(_ context.Context, userID string, reason session.RevocationReason) {
	payload, _ := json.Marshal(SessionsRevokedPayload{Reason: string(reason)})
	env := newEnvelope(TypeSessionsRevoked, payload, time.Now().UTC())

	h.mu.RLock()
	conns := make([]*Client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case <-c.Done():
		case c.Send <- env:
		default:
			// Queue full: the client will learn about the revocation the
			// moment its next token check fails.
			h.log.Info("notify.drop", "user_id", userID, "connection_id", c.ConnectionID)
		}
	}
}
