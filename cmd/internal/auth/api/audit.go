package authapi

import (
	"context"
	"encoding/json"
	"strings"

	"tipcast/cmd/internal/auth/session"
)

func (h *Handler) auditLoginFailed(ctx context.Context, dev session.DeviceContext, identifier string) {
	h.insertAudit(ctx, "auth.login.failed", nil, nil, dev, map[string]any{
		"identifier": identifier,
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, dev session.DeviceContext, userID, sessionID string) {
	h.insertAudit(ctx, "auth.login.success", &userID, &sessionID, dev, nil)
}

func (h *Handler) auditRefreshSuccess(ctx context.Context, dev session.DeviceContext, sessionID string) {
	h.insertAudit(ctx, "auth.refresh.success", nil, &sessionID, dev, nil)
}

func (h *Handler) auditRefreshReuse(ctx context.Context, dev session.DeviceContext) {
	h.insertAudit(ctx, "auth.refresh.reuse_detected", nil, nil, dev, nil)
}

func (h *Handler) auditLogout(ctx context.Context, dev session.DeviceContext, userID, sessionID string) {
	h.insertAudit(ctx, "auth.logout", &userID, &sessionID, dev, nil)
}

func (h *Handler) auditLogoutAll(ctx context.Context, dev session.DeviceContext, userID string) {
	h.insertAudit(ctx, "auth.logout_all", &userID, nil, dev, nil)
}

func (h *Handler) auditSessionRevoked(ctx context.Context, dev session.DeviceContext, userID, sessionID string) {
	h.insertAudit(ctx, "auth.session.revoked", &userID, &sessionID, dev, nil)
}

// insertAudit appends a row to audit_log. Best-effort: audit failures are
// logged, never surfaced to the request.
func (h *Handler) insertAudit(ctx context.Context, action string, userID, sessionID *string, dev session.DeviceContext, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var ipVal any
	if dev.IP != nil {
		ipVal = dev.IP.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO audit_log (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4, $5, $6::jsonb)
	`, userID, sessionID, action, ipVal, trimOrNil(dev.UserAgent), metaVal)
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
