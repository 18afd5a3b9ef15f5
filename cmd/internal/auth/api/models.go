package authapi

import (
	"time"

	"tipcast/cmd/identity"
	"tipcast/cmd/internal/auth/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	LogoutAll    bool   `json:"logoutAll"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         userResponse `json:"user"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type confirmResponse struct {
	Message string `json:"message"`
}

type sessionEntry struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	IPAddress  string     `json:"ipAddress"`
	Device     string     `json:"device"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

type sessionsResponse struct {
	Sessions []sessionEntry `json:"sessions"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func toSessionEntries(infos []session.SessionInfo) []sessionEntry {
	out := make([]sessionEntry, 0, len(infos))
	for _, s := range infos {
		out = append(out, sessionEntry{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
			IPAddress:  s.IPAddress,
			Device:     s.Device,
			ExpiresAt:  s.ExpiresAt,
		})
	}
	return out
}
