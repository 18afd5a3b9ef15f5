package notify

import (
	"context"
	"encoding/json"
	"testing"

	"tipcast/cmd/internal/auth/session"
)

func TestHubDeliversToAllUserConnections(t *testing.T) {
	hub := NewHub(nil)

	a := NewClient("user-1", "conn-a", 4)
	b := NewClient("user-1", "conn-b", 4)
	other := NewClient("user-2", "conn-c", 4)
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	hub.SessionsRevoked(context.Background(), "user-1", session.ReasonTokenReuse)

	for _, c := range []*Client{a, b} {
		select {
		case env := <-c.Send:
			if env.Type != TypeSessionsRevoked {
				t.Fatalf("type = %q", env.Type)
			}
			var p SessionsRevokedPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.Reason != "token_reuse" {
				t.Fatalf("reason = %q", p.Reason)
			}
		default:
			t.Fatalf("connection %s got no event", c.ConnectionID)
		}
	}

	select {
	case env := <-other.Send:
		t.Fatalf("foreign user received event: %+v", env)
	default:
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil)

	c := NewClient("user-1", "conn-a", 1)
	hub.Register(c)

	// Fill the queue, then publish again: must not block.
	hub.SessionsRevoked(context.Background(), "user-1", session.ReasonUserLogoutAll)
	hub.SessionsRevoked(context.Background(), "user-1", session.ReasonUserLogoutAll)

	if got := len(c.Send); got != 1 {
		t.Fatalf("queue len = %d, want 1", got)
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub(nil)

	c := NewClient("user-1", "conn-a", 4)
	hub.Register(c)
	if hub.ConnectionCount() != 1 {
		t.Fatalf("count = %d", hub.ConnectionCount())
	}

	hub.Unregister(c)
	hub.Unregister(c) // idempotent
	if hub.ConnectionCount() != 0 {
		t.Fatalf("count after unregister = %d", hub.ConnectionCount())
	}

	hub.SessionsRevoked(context.Background(), "user-1", session.ReasonUserLogout)
	select {
	case env := <-c.Send:
		t.Fatalf("unregistered client received event: %+v", env)
	default:
	}
}
