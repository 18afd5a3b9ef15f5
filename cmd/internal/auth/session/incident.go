package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Notifier receives outbound revocation events so a user's other live
// connections can drop state immediately. Implementations must be
// best-effort and non-blocking; delivery failures are never surfaced to the
// request that triggered the event.
type Notifier interface {
	SessionsRevoked(ctx context.Context, userID string, reason RevocationReason)
}

// NoopNotifier is the default when no realtime transport is wired.
type NoopNotifier struct{}

// SessionsRevoked is a no-op.
func (NoopNotifier) SessionsRevoked(_ context.Context, _ string, _ RevocationReason) {}

// IncidentResponder executes the response to refresh-token reuse.
//
// Presenting an already-revoked refresh secret is the strongest available
// signal that the secret was exfiltrated and used twice; which of the two
// presentations was the attacker's is unknowable, so the whole account's
// session set is terminated.
type IncidentResponder struct {
	log      *slog.Logger
	notifier Notifier
	metrics  *Metrics
}

// NewIncidentResponder constructs a responder. notifier may be nil.
func NewIncidentResponder(log *slog.Logger, notifier Notifier, metrics *Metrics) *IncidentResponder {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &IncidentResponder{log: log, notifier: notifier, metrics: metrics}
}

// RespondTx runs the containment steps inside the rotation transaction that
// observed the reuse: revoke every record for the user and bump the user's
// token generation so in-flight access tokens fail verification. The caller
// commits; nothing is visible if the transaction rolls back.
func (r *IncidentResponder) RespondTx(ctx context.Context, tx RotationTx, now time.Time, rec Record) (int64, error) {
	if err := tx.RevokeAllForUser(ctx, now, rec.UserID, ReasonTokenReuse); err != nil {
		return 0, err
	}
	return tx.BumpUserGeneration(ctx, rec.UserID)
}

// Alert emits the post-commit observability trail: a structured security
// alert for forensic follow-up, the incident counter, and a realtime event
// to the user's other connections. All of it is best-effort; the containment
// already committed.
func (r *IncidentResponder) Alert(ctx context.Context, rec Record, newGeneration int64) {
	incidentID := uuid.NewString()

	originalReason := ""
	if rec.RevocationReason != nil {
		originalReason = string(*rec.RevocationReason)
	}

	r.log.Warn("auth.refresh.reuse_detected",
		"incident_id", incidentID,
		"user_id", rec.UserID,
		"record_id", rec.ID,
		"original_revocation_reason", originalReason,
		"new_generation", newGeneration,
	)

	if r.metrics != nil {
		r.metrics.ReuseIncidents.Inc()
	}

	r.notifier.SessionsRevoked(ctx, rec.UserID, ReasonTokenReuse)
}
