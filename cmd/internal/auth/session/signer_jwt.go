package session

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the minimal identity envelope propagated across HTTP/WS.
type AccessClaims struct {
	UserID     string
	SessionID  string
	Generation int64
	ExpiresAt  time.Time
	IssuedAt   time.Time
	Issuer     string
}

// AccessTokenManager issues and verifies short-lived access tokens.
//
// Implementations are pure functions over signing-key material held in
// configuration; they never touch persistent state.
type AccessTokenManager interface {
	Issue(userID, sessionID string, generation int64, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
	PublicKeyHex() string
}

type accessTokenClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	Gen int64  `json:"gen"`
	jwt.RegisteredClaims
}

type jwtEdDSAManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewJWTManager builds an AccessTokenManager signing EdDSA (Ed25519) JWTs.
//
// The signing key is derived from a 32-byte hex-encoded seed. Issuer and
// expiration rules are enforced on verification, with ClockSkew applied as
// leeway to tolerate minor clock differences.
func NewJWTManager(cfg Config) (AccessTokenManager, error) {
	seed, err := hex.DecodeString(cfg.SigningKeyHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, ErrConfig
	}

	private := ed25519.NewKeyFromSeed(seed)

	return &jwtEdDSAManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		private:   private,
		public:    private.Public().(ed25519.PublicKey),
	}, nil
}

func (m *jwtEdDSAManager) PublicKeyHex() string {
	return hex.EncodeToString(m.public)
}

func (m *jwtEdDSAManager) Issue(userID, sessionID string, generation int64, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	claims := accessTokenClaims{
		UID: userID,
		SID: sessionID,
		Gen: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now), // Access tokens valid immediately.
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.private)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtEdDSAManager) Verify(token string, now time.Time) (AccessClaims, error) {
	var claims accessTokenClaims

	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return m.public, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrTokenExpired
		}
		return AccessClaims{}, ErrInvalidToken
	}

	if claims.UID == "" || claims.SID == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		UserID:     claims.UID,
		SessionID:  claims.SID,
		Generation: claims.Gen,
		Issuer:     claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
