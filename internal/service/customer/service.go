// Package customer resolves authenticated shoppers from the bearer tokens the
// auth service issues.
package customer

import (
	"context"
	"errors"
	"strings"

	"storefront-core/internal/domain"
)

// ErrInvalidToken indicates the provided token could not be validated.
var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	tokens *tokenManager
}

func New(secret string) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth jwt secret is empty")
	}
	return &Service{tokens: newTokenManager([]byte(secret))}, nil
}

// LookupByToken verifies token and returns the identity it carries. The raw
// token is kept so calls to the order service can forward it.
func (s *Service) LookupByToken(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	meta, ok := s.tokens.Validate(token)
	if !ok {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: meta.CustomerID, Token: token}, nil
}
