package anonymous

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const guestKind = "guest"

type guestClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

type tokenMeta struct {
	AnonymousID string
	ExpiresAt   time.Time
}

type tokenManager struct {
	secret []byte
	now    func() time.Time
}

func newTokenManager(secret []byte) *tokenManager {
	return &tokenManager{secret: secret, now: time.Now}
}

func (m *tokenManager) Issue(anonymousID string, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(ttl)
	claims := guestClaims{
		Kind: guestKind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   anonymousID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign guest token: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *tokenManager) Validate(token string) (tokenMeta, bool) {
	claims := &guestClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return tokenMeta{}, false
	}
	if claims.Kind != guestKind || claims.Subject == "" {
		return tokenMeta{}, false
	}
	return tokenMeta{AnonymousID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, true
}
