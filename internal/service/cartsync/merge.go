// Package cartsync reconciles a guest cart with the shopper's server cart at
// login and keeps the item-count badge in step with the server.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/cart"
)

// Policy decides what happens to guest lines on login.
type Policy string

const (
	// PolicyAddMissing adds guest lines the server cart does not have yet.
	// Lines present on both sides keep the server quantity.
	PolicyAddMissing Policy = "add-missing"
	// PolicyDiscard drops the guest cart.
	PolicyDiscard Policy = "discard"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyAddMissing:
		return PolicyAddMissing, nil
	case PolicyDiscard:
		return PolicyDiscard, nil
	default:
		return "", fmt.Errorf("unknown cart merge policy %q", raw)
	}
}

type LineFailure struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// MergeReport accounts for every guest line.
type MergeReport struct {
	Policy    Policy            `json:"policy"`
	Added     []domain.CartLine `json:"added,omitempty"`
	Kept      []string          `json:"kept,omitempty"`
	Clamped   []string          `json:"clamped,omitempty"`
	Discarded []string          `json:"discarded,omitempty"`
	Failed    []LineFailure     `json:"failed,omitempty"`
}

type Limits interface {
	Limit(ctx context.Context, productID string) (int, error)
}

type Merger struct {
	policy Policy
	limits Limits
	logger *zap.Logger
}

func NewMerger(policy Policy, limits Limits, logger *zap.Logger) *Merger {
	if policy == "" {
		policy = PolicyAddMissing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{policy: policy, limits: limits, logger: logger}
}

func (m *Merger) Policy() Policy { return m.policy }

// Merge folds guest into remote. Handled guest lines are removed from guest;
// lines that failed stay there so a later login can retry them.
func (m *Merger) Merge(ctx context.Context, guest, remote *cart.Store) (MergeReport, error) {
	report := MergeReport{Policy: m.policy}
	if err := guest.EnsureLoaded(ctx); err != nil {
		return report, fmt.Errorf("load guest cart: %w", err)
	}
	if err := remote.Load(ctx); err != nil {
		return report, fmt.Errorf("load remote cart: %w", err)
	}

	guestLines := guest.Lines()
	if len(guestLines) == 0 {
		return report, nil
	}

	if m.policy == PolicyDiscard {
		for _, l := range guestLines {
			report.Discarded = append(report.Discarded, l.ProductID)
		}
		if err := guest.Clear(ctx); err != nil {
			return report, fmt.Errorf("clear guest cart: %w", err)
		}
		return report, nil
	}

	remoteLines := remote.Lines()
	for _, l := range guestLines {
		if domain.IndexOfLine(remoteLines, l.ProductID) >= 0 {
			report.Kept = append(report.Kept, l.ProductID)
			m.dropGuestLine(ctx, guest, l.ProductID, &report)
			continue
		}
		qty, clamped, err := m.clamp(ctx, l)
		if err == nil {
			err = remote.AddLine(ctx, l.ProductID, qty)
		}
		switch {
		case errors.Is(err, domain.ErrAlreadyInCart):
			report.Kept = append(report.Kept, l.ProductID)
		case err != nil:
			m.logger.Warn("cart merge: line failed", zap.String("product_id", l.ProductID), zap.Error(err))
			report.Failed = append(report.Failed, LineFailure{ProductID: l.ProductID, Reason: err.Error(), Err: err})
			continue
		default:
			report.Added = append(report.Added, domain.CartLine{ProductID: l.ProductID, Quantity: qty})
			if clamped {
				report.Clamped = append(report.Clamped, l.ProductID)
			}
		}
		m.dropGuestLine(ctx, guest, l.ProductID, &report)
	}
	return report, nil
}

func (m *Merger) clamp(ctx context.Context, l domain.CartLine) (int, bool, error) {
	if m.limits == nil {
		return l.Quantity, false, nil
	}
	limit, err := m.limits.Limit(ctx, l.ProductID)
	if err != nil {
		return 0, false, err
	}
	if limit > 0 && l.Quantity > limit {
		return limit, true, nil
	}
	return l.Quantity, false, nil
}

func (m *Merger) dropGuestLine(ctx context.Context, guest *cart.Store, productID string, report *MergeReport) {
	if err := guest.RemoveLine(ctx, productID); err != nil {
		m.logger.Warn("cart merge: guest line not cleared", zap.String("product_id", productID), zap.Error(err))
		report.Failed = append(report.Failed, LineFailure{ProductID: productID, Reason: "guest cart not cleared", Err: err})
	}
}
