package customer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of tokens minted by the auth service.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type tokenMeta struct {
	CustomerID string
	ExpiresAt  time.Time
}

type tokenManager struct {
	secret []byte
	now    func() time.Time
}

func newTokenManager(secret []byte) *tokenManager {
	return &tokenManager{secret: secret, now: time.Now}
}

func (m *tokenManager) Validate(token string) (tokenMeta, bool) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return tokenMeta{}, false
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return tokenMeta{}, false
	}
	meta := tokenMeta{CustomerID: userID}
	if claims.ExpiresAt != nil {
		meta.ExpiresAt = claims.ExpiresAt.Time
	}
	return meta, true
}

// Sign mints a token the way the auth service does. Used by tests and local
// tooling only.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
