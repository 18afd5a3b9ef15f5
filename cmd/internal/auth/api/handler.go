package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tipcast/cmd/identity"
	"tipcast/cmd/internal/auth/session"
)

// Handler wires the HTTP auth endpoints to the identity and session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	// pool is used for best-effort audit inserts only; nil disables auditing
	// (dev mode without a database).
	pool *pgxpool.Pool

	identity identity.Provider
	sessions *session.Service
}

// NewHandler constructs an auth Handler. pool may be nil.
func NewHandler(log *slog.Logger, cfg Config, pool *pgxpool.Pool, provider identity.Provider, sessions *session.Service) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if provider == nil {
		return nil, errors.New("authapi: nil identity provider")
	}
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}

	return &Handler{
		log:      log,
		cfg:      cfg,
		pool:     pool,
		identity: provider,
		sessions: sessions,
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/login", h.handleLogin)
	mux.HandleFunc("/refresh", h.handleRefresh)
	mux.HandleFunc("/logout", h.handleLogout)
	mux.HandleFunc("/sessions", h.handleSessions)
	mux.HandleFunc("/sessions/", h.handleSessionByID)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	dev := h.deviceContext(r)

	user, err := h.identity.VerifyCredentials(ctx, email, req.Password)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.delayFailedLogin(now)
			h.auditLoginFailed(ctx, dev, email)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	issued, err := h.sessions.IssueSession(ctx, now, user.ID, user.TokenGeneration, dev)
	if err != nil {
		h.log.Error("auth.login.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLoginSuccess(ctx, dev, user.ID, issued.SessionID)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresIn:    int64(issued.AccessExp.Sub(now).Seconds()),
		User:         toUserResponse(user),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	dev := h.deviceContext(r)

	issued, err := h.sessions.Refresh(ctx, now, req.RefreshToken, dev)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrReuseDetected):
			h.auditRefreshReuse(ctx, dev)
			writeReuseDetected(w)
		case errors.Is(err, session.ErrTokenNotFound),
			errors.Is(err, session.ErrTokenExpired),
			errors.Is(err, session.ErrGenerationMismatch),
			errors.Is(err, session.ErrInvalidToken):
			// Unknown, expired, and generation-stale secrets are deliberately
			// indistinguishable to the caller.
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired refresh token")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		}
		return
	}

	h.auditRefreshSuccess(ctx, dev, issued.SessionID)

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresIn:    int64(issued.AccessExp.Sub(now).Seconds()),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	ctx := r.Context()
	now := time.Now().UTC()
	dev := h.deviceContext(r)

	if err := h.sessions.Logout(ctx, now, claims.UserID, claims.SessionID, req.RefreshToken, req.LogoutAll); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if req.LogoutAll {
		h.auditLogoutAll(ctx, dev, claims.UserID)
	} else {
		h.auditLogout(ctx, dev, claims.UserID, claims.SessionID)
	}

	writeJSON(w, http.StatusOK, confirmResponse{Message: "logged out"})
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	list, err := h.sessions.ListSessions(r.Context(), time.Now().UTC(), claims.UserID)
	if err != nil {
		h.log.Error("auth.sessions.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: toSessionEntries(list)})
}

func (h *Handler) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.sessions.RevokeSessionFor(ctx, now, claims.UserID, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.log.Error("auth.sessions.revoke.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditSessionRevoked(ctx, h.deviceContext(r), claims.UserID, sessionID)

	writeJSON(w, http.StatusOK, confirmResponse{Message: "session revoked"})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.sessions.ValidateAccessToken(r.Context(), token, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (h *Handler) deviceContext(r *http.Request) session.DeviceContext {
	return session.DeviceContext{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        clientIP(r, h.cfg.TrustProxy),
	}
}

// delayFailedLogin pads the failure path up to the configured floor. The
// argon2id dummy verify inside the identity store does the heavy lifting;
// this only smooths over fast-fail branches.
func (h *Handler) delayFailedLogin(started time.Time) {
	if h.cfg.LoginDelayFloor <= 0 {
		return
	}
	if elapsed := time.Since(started); elapsed < h.cfg.LoginDelayFloor {
		time.Sleep(h.cfg.LoginDelayFloor - elapsed)
	}
}
