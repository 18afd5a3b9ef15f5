package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Service implements the high-level session operations for tipcast.
//
// It issues sessions (access + refresh), validates access tokens against the
// live generation counter, supports per-session and per-user revocation, and
// performs refresh rotation with reuse detection under a strict
// transactional model.
type Service struct {
	cfg       Config
	tokens    AccessTokenManager
	store     Store
	gens      GenerationSource
	incidents *IncidentResponder
	notifier  Notifier
	log       *slog.Logger
	metrics   *Metrics
}

// Issued is the result of issuing or rotating a session.
// It includes a short-lived access token and an opaque refresh secret.
type Issued struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// SessionInfo is one entry of a session enumeration.
type SessionInfo struct {
	ID         string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	IPAddress  string
	Device     string
}

// NewService constructs a Service. notifier, log, and metrics may be nil.
func NewService(cfg Config, store Store, tokens AccessTokenManager, gens GenerationSource, notifier Notifier, log *slog.Logger, metrics *Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Service{
		cfg:       cfg,
		tokens:    tokens,
		store:     store,
		gens:      gens,
		incidents: NewIncidentResponder(log, notifier, metrics),
		notifier:  notifier,
		log:       log,
		metrics:   metrics,
	}
}

// IssueSession creates a new refresh record and returns fresh tokens.
//
// Refresh secrets are opaque random strings and must never be persisted in
// plaintext; only their hash is stored. Both tokens carry the generation
// value current at issuance.
func (s *Service) IssueSession(ctx context.Context, now time.Time, userID string, generation int64, dev DeviceContext) (Issued, error) {
	refreshPlain, refreshHash, err := newOpaqueRefreshSecret(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	refreshExp := now.Add(s.cfg.RefreshTokenTTL)

	sessionID, err := s.store.Insert(ctx, now, userID, dev, refreshHash, refreshExp, generation)
	if err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(userID, sessionID, generation, now)
	if err != nil {
		return Issued{}, err
	}

	s.metrics.SessionsIssued.Inc()

	return Issued{
		SessionID:    sessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
	}, nil
}

// ValidateAccessToken verifies an access token's signature and expiry, then
// compares its embedded generation against the user's live counter. Access
// tokens are not revocable before expiry; the generation check is what makes
// incident response take effect immediately.
func (s *Service) ValidateAccessToken(ctx context.Context, token string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return AccessClaims{}, err
	}

	liveGen, err := s.gens.TokenGeneration(ctx, claims.UserID)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.Generation != liveGen {
		return AccessClaims{}, ErrGenerationMismatch
	}

	return claims, nil
}

// Refresh performs mandatory rotation with reuse detection.
//
// Security model:
//   - Lock the record by refresh hash for the whole check-then-rotate
//     sequence (SELECT ... FOR UPDATE or equivalent), so two concurrent
//     refreshes of the same secret can never both succeed.
//   - A secret retired by rotation or a single-session logout coming back is
//     compromise evidence: the legitimate holder already moved past it, so a
//     second presentation means two parties held it. Revoke every record for
//     the user, bump the generation counter, and return ErrReuseDetected.
//   - Secrets killed in bulk (logout-all, or a previous reuse cascade) are
//     expected to come back from the user's own other devices; they fail as
//     ordinary authentication errors without re-triggering the cascade.
//   - Expiry and generation mismatches surface as ordinary authentication
//     failures, indistinguishable from unknown tokens at the API boundary.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshSecret string, dev DeviceContext) (Issued, error) {
	started := time.Now()
	defer func() { s.metrics.RotateDuration.Observe(time.Since(started).Seconds()) }()

	refreshSecret = strings.TrimSpace(refreshSecret)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshSecret == "" || len(refreshSecret) > 4096 {
		return Issued{}, ErrTokenNotFound
	}

	// Hash in-memory; the plain secret never reaches the store.
	refreshHash := hashRefreshSecretHex(refreshSecret)

	tx, rec, err := s.store.BeginRotation(ctx, refreshHash)
	if err != nil {
		return Issued{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Reuse detection: a revoked refresh secret presented again. Checked
	// before expiry so that replaying a long-dead rotated secret still trips
	// the alarm.
	if rec.RevokedAt != nil {
		if reason := rec.RevocationReason; reason != nil && (*reason == ReasonUserLogoutAll || *reason == ReasonTokenReuse) {
			// Bulk-revoked records come back from the user's own devices
			// after a logout-all or a prior incident; that is not theft
			// evidence, and re-running the cascade would just spam alerts.
			return Issued{}, ErrTokenNotFound
		}

		newGen, err := s.incidents.RespondTx(ctx, tx, now, rec)
		if err != nil {
			return Issued{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Issued{}, err
		}
		s.incidents.Alert(ctx, rec, newGen)
		return Issued{}, ErrReuseDetected
	}

	// Expiry check.
	if !rec.ExpiresAt.After(now) {
		return Issued{}, ErrTokenExpired
	}

	// Generation check: a mismatch means the user's sessions were globally
	// invalidated since this record was minted.
	liveGen, err := tx.UserGeneration(ctx, rec.UserID)
	if err != nil {
		return Issued{}, err
	}
	if rec.Generation != liveGen {
		return Issued{}, ErrGenerationMismatch
	}

	// Rotate: create replacement + revoke old + link replaced_by.
	newRefreshPlain, newRefreshHash, err := newOpaqueRefreshSecret(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	newRefreshExp := now.Add(s.cfg.RefreshTokenTTL)

	newSessionID, err := tx.Insert(ctx, now, rec.UserID, dev, newRefreshHash, newRefreshExp, liveGen)
	if err != nil {
		return Issued{}, err
	}

	if err := tx.MarkRotated(ctx, now, rec.ID, newSessionID); err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(rec.UserID, newSessionID, liveGen, now)
	if err != nil {
		return Issued{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Issued{}, err
	}

	s.metrics.Rotations.Inc()

	return Issued{
		SessionID:    newSessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRefreshPlain,
		RefreshExp:   newRefreshExp,
	}, nil
}

// Logout revokes sessions for an authenticated user.
//
// With all=true every record is revoked. Otherwise the presented refresh
// secret's record is revoked when it belongs to the caller; with no secret,
// the caller's current session (from the access token) is revoked. Logout is
// idempotent: revoking an already-revoked or unknown token still succeeds.
func (s *Service) Logout(ctx context.Context, now time.Time, userID, sessionID, refreshSecret string, all bool) error {
	if all {
		if err := s.store.RevokeAllForUser(ctx, now, userID, ReasonUserLogoutAll); err != nil {
			return err
		}
		s.metrics.SessionsRevoked.Inc()
		s.notifier.SessionsRevoked(ctx, userID, ReasonUserLogoutAll)
		return nil
	}

	target := sessionID
	if secret := strings.TrimSpace(refreshSecret); secret != "" {
		rec, err := s.store.GetByHash(ctx, hashRefreshSecretHex(secret))
		switch {
		case err == nil && rec.UserID == userID:
			target = rec.ID
		default:
			// Unknown or foreign token: idempotent success, no oracle.
			return nil
		}
	}
	if target == "" {
		return nil
	}

	if err := s.store.Revoke(ctx, now, target, ReasonUserLogout); err != nil {
		return err
	}
	s.metrics.SessionsRevoked.Inc()
	return nil
}

// RevokeAll revokes every record for a user. Used by incident tooling and
// account-level actions outside the normal logout path.
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string, reason RevocationReason) error {
	if err := s.store.RevokeAllForUser(ctx, now, userID, reason); err != nil {
		return err
	}
	s.notifier.SessionsRevoked(ctx, userID, reason)
	return nil
}

// ListSessions enumerates the caller's active sessions, most recently used
// first, each annotated with a best-effort device label.
func (s *Service) ListSessions(ctx context.Context, now time.Time, userID string) ([]SessionInfo, error) {
	recs, err := s.store.ListActive(ctx, now, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(recs))
	for _, rec := range recs {
		info := SessionInfo{
			ID:         rec.ID,
			CreatedAt:  rec.CreatedAt,
			LastUsedAt: rec.LastUsedAt,
			ExpiresAt:  rec.ExpiresAt,
			Device:     DeviceLabel(rec.UserAgent),
		}
		if rec.IP != nil {
			info.IPAddress = rec.IP.String()
		}
		out = append(out, info)
	}
	return out, nil
}

// RevokeSessionFor revokes one record by its opaque identifier, scoped to
// the caller's own user id. Returns ErrNotFound when the identifier does not
// exist, belongs to another user, or is already revoked — indistinguishably,
// so foreign session identifiers cannot be probed.
func (s *Service) RevokeSessionFor(ctx context.Context, now time.Time, userID, sessionID string) error {
	rec, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return ErrNotFound
	}
	if rec.UserID != userID || rec.RevokedAt != nil || !rec.ExpiresAt.After(now) {
		return ErrNotFound
	}

	if err := s.store.Revoke(ctx, now, rec.ID, ReasonUserLogout); err != nil {
		return err
	}
	s.metrics.SessionsRevoked.Inc()
	return nil
}

// Touch updates last_used_at for a session (best-effort).
func (s *Service) Touch(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}
