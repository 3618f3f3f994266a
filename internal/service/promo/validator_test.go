package promo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-core/internal/backend"
	"storefront-core/internal/domain"
)

type stubTester struct {
	mu    sync.Mutex
	calls []backend.PromoTestRequest
	res   backend.PromoTestResponse
	err   error
	block chan struct{}
}

func (s *stubTester) TestPromo(ctx context.Context, _ string, req backend.PromoTestRequest) (backend.PromoTestResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	block, res, err := s.block, s.res, s.err
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return backend.PromoTestResponse{}, ctx.Err()
		}
	}
	return res, err
}

func (s *stubTester) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func validProducts(amount int64) backend.PromoTestResponse {
	res := backend.PromoTestResponse{Valid: true, DiscountAmount: decimal.NewFromInt(amount)}
	res.PromoCode.Target = "PRODUCTS"
	return res
}

func baseRequest(version uint64) Request {
	return Request{
		Code:     " save10 ",
		Identity: domain.Identity{UserID: "u1", Token: "tok"},
		CityID:   "C1",
		ZoneID:   "Z1",
		Lines:    []domain.CartLine{{ProductID: "P1", Quantity: 2}},
		Version:  version,
		BaseFee:  decimal.NewFromInt(20),
	}
}

func TestApply_LocalRejections(t *testing.T) {
	tester := &stubTester{res: validProducts(10)}
	v := NewValidator(tester, nil)
	ctx := context.Background()

	req := baseRequest(1)
	req.Code = "   "
	_, err := v.Apply(ctx, req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "code", verr.Field)

	req = baseRequest(1)
	req.Identity = domain.Identity{}
	_, err = v.Apply(ctx, req)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	req = baseRequest(1)
	req.CityID = ""
	_, err = v.Apply(ctx, req)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cityId", verr.Field)

	req = baseRequest(1)
	req.ZoneID = ""
	_, err = v.Apply(ctx, req)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "zoneId", verr.Field)

	assert.Zero(t, tester.callCount())
	assert.Equal(t, StateUnapplied, v.State())
}

func TestApply_Success(t *testing.T) {
	tester := &stubTester{res: validProducts(10)}
	v := NewValidator(tester, nil)

	app, err := v.Apply(context.Background(), baseRequest(3))
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", app.Code)
	assert.Equal(t, domain.PromoTargetProducts, app.Target)
	assert.True(t, app.Valid)
	assert.Equal(t, StateApplied, v.State())
	assert.Equal(t, "SAVE10", tester.calls[0].Code)
	assert.Equal(t, "u1", tester.calls[0].UserID)

	trusted, ok := v.Trusted(3)
	require.True(t, ok)
	assert.True(t, trusted.DiscountAmount.Equal(decimal.NewFromInt(10)))

	_, ok = v.Trusted(4)
	assert.False(t, ok)
}

func TestApply_InvalidResets(t *testing.T) {
	tester := &stubTester{res: backend.PromoTestResponse{Valid: false, Message: "expired"}}
	v := NewValidator(tester, nil)

	app, err := v.Apply(context.Background(), baseRequest(1))
	assert.ErrorIs(t, err, domain.ErrPromoInvalid)
	assert.False(t, app.Valid)
	assert.Equal(t, "expired", app.Message)
	assert.Equal(t, StateUnapplied, v.State())
}

func TestApply_NetworkFailureResets(t *testing.T) {
	tester := &stubTester{err: domain.ErrNetworkFailure}
	v := NewValidator(tester, nil)

	_, err := v.Apply(context.Background(), baseRequest(1))
	assert.ErrorIs(t, err, domain.ErrNetworkFailure)
	assert.Equal(t, StateUnapplied, v.State())
}

func TestDeliveryFeeCappedAtBaseFee(t *testing.T) {
	res := backend.PromoTestResponse{Valid: true, DiscountedDeliveryFee: decimal.NewFromInt(50)}
	res.PromoCode.Target = "delivery"
	v := NewValidator(&stubTester{res: res}, nil)

	app, err := v.Apply(context.Background(), baseRequest(1))
	require.NoError(t, err)
	assert.Equal(t, domain.PromoTargetDelivery, app.Target)
	assert.True(t, app.DiscountedDeliveryFee.Equal(decimal.NewFromInt(20)))
}

func TestInvalidateThenRevalidate(t *testing.T) {
	tester := &stubTester{res: validProducts(10)}
	v := NewValidator(tester, nil)
	ctx := context.Background()

	_, err := v.Apply(ctx, baseRequest(1))
	require.NoError(t, err)

	assert.True(t, v.Invalidate(2))
	assert.Equal(t, StateStale, v.State())
	assert.True(t, v.Pending())
	_, ok := v.Trusted(2)
	assert.False(t, ok, "stale application must not be trusted")

	req := baseRequest(2)
	req.Lines = []domain.CartLine{{ProductID: "P1", Quantity: 3}}
	app, err := v.Revalidate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), app.Basis)
	assert.Equal(t, 2, tester.callCount())
	assert.Equal(t, 3, tester.calls[1].CartItems[0].Quantity)

	_, ok = v.Trusted(2)
	assert.True(t, ok)
}

func TestInvalidateWithoutCode(t *testing.T) {
	v := NewValidator(&stubTester{}, nil)
	assert.False(t, v.Invalidate(5))
	app, err := v.Revalidate(context.Background(), baseRequest(5))
	require.NoError(t, err)
	assert.False(t, app.Valid)
}

func TestRevalidateWaitsForZone(t *testing.T) {
	tester := &stubTester{res: validProducts(10)}
	v := NewValidator(tester, nil)
	ctx := context.Background()
	_, err := v.Apply(ctx, baseRequest(1))
	require.NoError(t, err)

	v.Invalidate(2)
	req := baseRequest(2)
	req.ZoneID = ""
	_, err = v.Revalidate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StateStale, v.State())
	assert.Equal(t, "SAVE10", v.View().Code)
	assert.Equal(t, 1, tester.callCount())

	v.Invalidate(3)
	_, err = v.Revalidate(ctx, baseRequest(3))
	require.NoError(t, err)
	assert.Equal(t, StateApplied, v.State())
	_, ok := v.Trusted(3)
	assert.True(t, ok)
}

func TestRevalidateFailureResetsCode(t *testing.T) {
	tester := &stubTester{res: validProducts(10)}
	v := NewValidator(tester, nil)
	ctx := context.Background()
	_, err := v.Apply(ctx, baseRequest(1))
	require.NoError(t, err)

	tester.mu.Lock()
	tester.res = backend.PromoTestResponse{Valid: false, Message: "minimum not met"}
	tester.mu.Unlock()

	v.Invalidate(2)
	_, err = v.Revalidate(ctx, baseRequest(2))
	assert.ErrorIs(t, err, domain.ErrPromoInvalid)
	assert.Equal(t, StateUnapplied, v.State())
	assert.Empty(t, v.View().Code)
}

func TestCancelSupersedesInFlight(t *testing.T) {
	tester := &stubTester{res: validProducts(10), block: make(chan struct{})}
	v := NewValidator(tester, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := v.Apply(context.Background(), baseRequest(1))
		errCh <- err
	}()
	require.Eventually(t, func() bool { return tester.callCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, v.Pending())

	v.Cancel()
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrSuperseded))
	case <-time.After(time.Second):
		t.Fatal("apply did not return after cancel")
	}
	assert.Equal(t, StateUnapplied, v.State())
}

func TestNewerChangeSupersedesRevalidation(t *testing.T) {
	tester := &stubTester{res: validProducts(10)}
	v := NewValidator(tester, nil)
	ctx := context.Background()
	_, err := v.Apply(ctx, baseRequest(1))
	require.NoError(t, err)

	tester.mu.Lock()
	tester.block = make(chan struct{})
	tester.mu.Unlock()

	v.Invalidate(2)
	errCh := make(chan error, 1)
	go func() {
		_, err := v.Revalidate(ctx, baseRequest(2))
		errCh <- err
	}()
	require.Eventually(t, func() bool { return tester.callCount() == 2 }, time.Second, time.Millisecond)

	assert.True(t, v.Invalidate(3))
	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Equal(t, StateStale, v.State())

	tester.mu.Lock()
	tester.block = nil
	tester.mu.Unlock()

	_, err = v.Revalidate(ctx, baseRequest(2))
	require.NoError(t, err)
	assert.Equal(t, 2, tester.callCount(), "older request must not run")

	_, err = v.Revalidate(ctx, baseRequest(3))
	require.NoError(t, err)
	_, ok := v.Trusted(3)
	assert.True(t, ok)
}
