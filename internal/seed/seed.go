package seed

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"storefront-core/internal/domain"
	"storefront-core/internal/repository/guestcart"
)

// TokenIssuer mints guest tokens.
type TokenIssuer interface {
	Issue(ctx context.Context) (token, anonymousID string, err error)
}

// Result is what a caller needs to pick up the seeded cart over HTTP.
type Result struct {
	Token       string
	AnonymousID string
	Lines       []domain.CartLine
}

var demoLines = []domain.CartLine{
	{ProductID: "demo-shirt", Quantity: 2},
	{ProductID: "demo-mug", Quantity: 1},
}

// Apply stores a guest cart for manual testing under a freshly issued guest
// token. Empty lines seed a small demo cart.
func Apply(ctx context.Context, repo guestcart.Repository, issuer TokenIssuer, lines []domain.CartLine) (Result, error) {
	if len(lines) == 0 {
		lines = demoLines
	}
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 {
			return Result{}, domain.Invalid("lines", fmt.Sprintf("bad seed line %q x%d", l.ProductID, l.Quantity))
		}
	}

	token, anonID, err := issuer.Issue(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("issue guest token: %w", err)
	}
	if err := repo.Save(ctx, anonID, lines); err != nil {
		return Result{}, fmt.Errorf("save guest cart %s: %w", anonID, err)
	}
	return Result{Token: token, AnonymousID: anonID, Lines: domain.CloneLines(lines)}, nil
}

// ParseLines reads "id:qty" pairs such as "P1:2".
func ParseLines(pairs []string) ([]domain.CartLine, error) {
	var out []domain.CartLine
	for _, p := range pairs {
		idx := strings.LastIndex(p, ":")
		if idx <= 0 {
			return nil, domain.Invalid("lines", fmt.Sprintf("%q is not id:qty", p))
		}
		qty, err := strconv.Atoi(p[idx+1:])
		if err != nil || qty < 1 {
			return nil, domain.Invalid("lines", fmt.Sprintf("%q has a bad quantity", p))
		}
		out = append(out, domain.CartLine{ProductID: p[:idx], Quantity: qty})
	}
	return out, nil
}
