// Package anonymous issues and checks the tokens that identify guest shoppers.
package anonymous

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	errEmptySecret  = errors.New("guest token secret is empty")
)

const defaultTTL = 30 * 24 * time.Hour

type Service struct {
	tokens *tokenManager
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errEmptySecret
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{tokens: newTokenManager([]byte(secret)), ttl: ttl}, nil
}

// Issue mints a new guest id and a token carrying it.
func (s *Service) Issue(ctx context.Context) (token, anonymousID string, err error) {
	anonymousID = uuid.NewString()
	token, _, err = s.tokens.Issue(anonymousID, s.ttl)
	if err != nil {
		return "", "", err
	}
	return token, anonymousID, nil
}

// LookupByToken returns the guest id inside token.
func (s *Service) LookupByToken(ctx context.Context, token string) (string, error) {
	meta, ok := s.tokens.Validate(strings.TrimSpace(token))
	if !ok {
		return "", ErrInvalidToken
	}
	return meta.AnonymousID, nil
}

func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}
