package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-core/internal/backend"
	"storefront-core/internal/domain"
	"storefront-core/internal/repository/guestcart"
	"storefront-core/internal/service/checkout"
	"storefront-core/internal/service/promo"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fakeCatalog struct{}

var catalogProducts = map[string]domain.Product{
	"P1": {ID: "P1", PriceBefore: dec(50), PriceAfter: dec(50), MaxOrderQuantity: 5, AvailableStock: 10},
	"P2": {ID: "P2", PriceBefore: dec(30), PriceAfter: dec(25), MaxOrderQuantity: 3, AvailableStock: 3},
}

func (fakeCatalog) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := catalogProducts[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (fakeCatalog) Limit(_ context.Context, id string) (int, error) {
	p, ok := catalogProducts[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return p.QuantityLimit(), nil
}

type fakePlaces struct{}

var cities = []domain.City{
	{ID: "C1", Zones: []domain.Zone{{ID: "Z1", DeliveryFee: dec(20)}}},
	{ID: "C2", Zones: []domain.Zone{{ID: "Z9", DeliveryFee: dec(35)}}},
}

func (fakePlaces) City(_ context.Context, id string) (domain.City, error) {
	for _, c := range cities {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.City{}, domain.ErrNotFound
}

func (p fakePlaces) Zone(ctx context.Context, cityID, zoneID string) (domain.Zone, error) {
	c, err := p.City(ctx, cityID)
	if err != nil {
		return domain.Zone{}, err
	}
	z, ok := c.FindZone(zoneID)
	if !ok {
		return domain.Zone{}, domain.Invalid("zoneId", "not in selected city")
	}
	return z, nil
}

type fakeRemote struct {
	mu    sync.Mutex
	lines []domain.CartLine
}

func (f *fakeRemote) GetCart(context.Context, string) ([]domain.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.CloneLines(f.lines), nil
}

func (f *fakeRemote) ChangeCart(_ context.Context, _ string, id string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := domain.IndexOfLine(f.lines, id); idx >= 0 {
		f.lines[idx].Quantity += delta
		return nil
	}
	f.lines = append(f.lines, domain.CartLine{ProductID: id, Quantity: delta})
	return nil
}

func (f *fakeRemote) DeleteCartLine(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := domain.IndexOfLine(f.lines, id); idx >= 0 {
		f.lines = append(f.lines[:idx], f.lines[idx+1:]...)
	}
	return nil
}

// fakePromo applies SAVE10 (10 off products) and FREESHIP (free delivery).
type fakePromo struct {
	mu      sync.Mutex
	calls   []backend.PromoTestRequest
	invalid bool
	gate    chan struct{}
}

func (f *fakePromo) TestPromo(ctx context.Context, _ string, req backend.PromoTestRequest) (backend.PromoTestResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate, invalid := f.gate, f.invalid
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.PromoTestResponse{}, ctx.Err()
		}
	}
	var res backend.PromoTestResponse
	if invalid {
		res.Message = "not eligible"
		return res, nil
	}
	res.Valid = true
	switch req.Code {
	case "FREESHIP":
		res.PromoCode.Target = "DELIVERY"
		res.DiscountedDeliveryFee = dec(0)
	default:
		res.PromoCode.Target = "PRODUCTS"
		res.DiscountAmount = dec(10)
	}
	return res, nil
}

func (f *fakePromo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePromo) lastCall() backend.PromoTestRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeOrders struct {
	remote *fakeRemote
	last   domain.OrderRequest
}

func (f *fakeOrders) SubmitOrder(_ context.Context, _ string, req domain.OrderRequest) (domain.OrderOutcome, error) {
	f.last = req
	f.remote.mu.Lock()
	f.remote.lines = nil
	f.remote.mu.Unlock()
	return domain.OrderOutcome{Confirmed: true}, nil
}

func (f *fakeOrders) PaymentMethods(context.Context, string) ([]domain.PaymentOption, error) {
	return []domain.PaymentOption{{PaymentID: "paymob", NameEN: "Card"}}, nil
}

type fixture struct {
	deps   Deps
	guests *guestcart.MemoryRepo
	remote *fakeRemote
	promo  *fakePromo
	orders *fakeOrders
}

func newFixture() *fixture {
	f := &fixture{guests: guestcart.NewMemory(), remote: &fakeRemote{}, promo: &fakePromo{}}
	f.orders = &fakeOrders{remote: f.remote}
	f.deps = Deps{
		Guests:  f.guests,
		Remote:  f.remote,
		Catalog: fakeCatalog{},
		Places:  fakePlaces{},
		Promo:   f.promo,
		Orders:  f.orders,
	}
	return f
}

var user = domain.Identity{UserID: "u1", Token: "tok"}

// promoted returns a session in C1/Z1 with 2×P1 and SAVE10 applied.
func promoted(t *testing.T, f *fixture) *Session {
	t.Helper()
	ctx := context.Background()
	s := New(f.deps, "g1", user)
	_, err := s.SelectCity(ctx, "C1")
	require.NoError(t, err)
	_, err = s.SelectZone(ctx, "Z1")
	require.NoError(t, err)
	_, err = s.AddLine(ctx, "P1", 2)
	require.NoError(t, err)
	sum, err := s.ApplyPromo(ctx, "save10")
	require.NoError(t, err)
	require.True(t, sum.Totals.GrandTotal.Equal(dec(110)), "grand %s", sum.Totals.GrandTotal)
	return s
}

func TestPromoRequiresLogin(t *testing.T) {
	f := newFixture()
	s := New(f.deps, "g1", domain.Identity{})
	ctx := context.Background()
	_, err := s.SelectCity(ctx, "C1")
	require.NoError(t, err)
	_, err = s.SelectZone(ctx, "Z1")
	require.NoError(t, err)

	_, err = s.ApplyPromo(ctx, "SAVE10")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.Zero(t, f.promo.callCount())
}

func TestCityChangeResetsZoneAndInvalidatesPromo(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	ctx := context.Background()
	calls := f.promo.callCount()

	sum, err := s.SelectCity(ctx, "C2")
	require.NoError(t, err)
	assert.Equal(t, "C2", sum.Location.CityID)
	assert.Empty(t, sum.Location.ZoneID)
	assert.False(t, sum.Location.FeeSet)
	assert.True(t, sum.Totals.DeliveryFee.IsZero())
	assert.True(t, sum.Totals.Discount.IsZero(), "discount must not survive a city change")
	assert.True(t, sum.PromoPending)
	assert.Equal(t, promo.StateStale, sum.Promo.State)
	assert.Equal(t, calls, f.promo.callCount(), "no validation without a zone")

	sum, err = s.SelectZone(ctx, "Z9")
	require.NoError(t, err)
	assert.Equal(t, calls+1, f.promo.callCount())
	assert.Equal(t, "Z9", f.promo.lastCall().ZoneID)
	assert.False(t, sum.PromoPending)
	// 100 - 10 + 35
	assert.True(t, sum.Totals.GrandTotal.Equal(dec(125)), "grand %s", sum.Totals.GrandTotal)
}

func TestSelectZoneNeedsCity(t *testing.T) {
	f := newFixture()
	s := New(f.deps, "g1", domain.Identity{})
	_, err := s.SelectZone(context.Background(), "Z1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.SelectCity(context.Background(), "C1")
	require.NoError(t, err)
	_, err = s.SelectZone(context.Background(), "Z9")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAddingLineRevalidatesBeforeDiscountShows(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	calls := f.promo.callCount()

	sum, err := s.AddLine(context.Background(), "P2", 1)
	require.NoError(t, err)

	assert.Equal(t, calls+1, f.promo.callCount())
	last := f.promo.lastCall()
	assert.Len(t, last.CartItems, 2)
	assert.Equal(t, "SAVE10", last.Code)
	assert.False(t, sum.PromoPending)
	// 125 - 10 + 20
	assert.True(t, sum.Totals.GrandTotal.Equal(dec(135)), "grand %s", sum.Totals.GrandTotal)
}

func TestNoStaleDiscountWhileRevalidating(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	ctx := context.Background()

	gate := make(chan struct{})
	f.promo.mu.Lock()
	f.promo.gate = gate
	f.promo.mu.Unlock()
	calls := f.promo.callCount()

	done := make(chan Summary, 1)
	go func() {
		sum, err := s.ChangeQuantity(ctx, "P1", 1)
		assert.NoError(t, err)
		done <- sum
	}()
	require.Eventually(t, func() bool { return f.promo.callCount() == calls+1 }, time.Second, time.Millisecond)

	mid, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, mid.PromoPending)
	assert.True(t, mid.Totals.Discount.IsZero())
	// 150 + 20, no discount yet
	assert.True(t, mid.Totals.GrandTotal.Equal(dec(170)), "grand %s", mid.Totals.GrandTotal)

	close(gate)
	final := <-done
	assert.False(t, final.PromoPending)
	assert.True(t, final.Totals.GrandTotal.Equal(dec(160)), "grand %s", final.Totals.GrandTotal)
}

func TestFailedRevalidationRestoresBaseFee(t *testing.T) {
	f := newFixture()
	s := New(f.deps, "g1", user)
	ctx := context.Background()
	_, err := s.SelectCity(ctx, "C1")
	require.NoError(t, err)
	_, err = s.SelectZone(ctx, "Z1")
	require.NoError(t, err)
	_, err = s.AddLine(ctx, "P1", 1)
	require.NoError(t, err)
	sum, err := s.ApplyPromo(ctx, "FREESHIP")
	require.NoError(t, err)
	require.True(t, sum.Totals.DeliveryFee.IsZero())

	f.promo.mu.Lock()
	f.promo.invalid = true
	f.promo.mu.Unlock()

	sum, err = s.ChangeQuantity(ctx, "P1", 1)
	require.NoError(t, err)
	assert.Equal(t, promo.StateUnapplied, sum.Promo.State)
	assert.False(t, sum.PromoPending)
	assert.True(t, sum.Totals.DeliveryFee.Equal(dec(20)))
	assert.True(t, sum.Totals.GrandTotal.Equal(dec(120)))
}

func TestCancelPromo(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	sum, err := s.CancelPromo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, promo.StateUnapplied, sum.Promo.State)
	assert.True(t, sum.Totals.GrandTotal.Equal(dec(120)))
}

func TestFailedMutationDoesNotInvalidatePromo(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	calls := f.promo.callCount()

	_, err := s.AddLine(context.Background(), "P1", 1)
	assert.ErrorIs(t, err, domain.ErrAlreadyInCart)
	_, err = s.ChangeQuantity(context.Background(), "P1", 10)
	assert.ErrorIs(t, err, domain.ErrOutOfBounds)

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.PromoPending)
	assert.Equal(t, calls, f.promo.callCount())
}

func TestLoginMergesGuestCartAndLogoutReturnsToGuest(t *testing.T) {
	f := newFixture()
	f.remote.lines = []domain.CartLine{{ProductID: "P2", Quantity: 1}}
	s := New(f.deps, "g1", domain.Identity{})
	ctx := context.Background()

	_, err := s.AddLine(ctx, "P1", 2)
	require.NoError(t, err)
	var counts []int
	s.Badge().Subscribe(func(n int) { counts = append(counts, n) })

	report, err := s.Login(ctx, "g1", user)
	require.NoError(t, err)
	assert.Len(t, report.Added, 1)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CartModeRemote, sum.Mode)
	assert.Equal(t, 3, sum.Totals.ItemCount)
	assert.Equal(t, 3, s.Badge().Count())
	raw, _ := f.guests.Raw("g1")
	assert.Equal(t, "[]", string(raw))

	s.Logout("g1")
	sum, err = s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CartModeLocal, sum.Mode)
	assert.Zero(t, sum.Totals.ItemCount)
	assert.False(t, s.Identity().Authenticated())
	assert.Len(t, f.remote.lines, 2, "server cart untouched by logout")
}

func TestSubmitOrderSendsTrustedPromoAndClears(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	ctx := context.Background()

	_, err := s.AdvanceCheckout()
	require.NoError(t, err)
	_, err = s.SetRecipient(domain.Recipient{FirstName: "A", LastName: "B", Phone: "1", Address: "X"})
	require.NoError(t, err)
	view, err := s.AdvanceCheckout()
	require.NoError(t, err)
	require.Equal(t, checkout.StepPayment, view.Step)
	_, err = s.SelectPayment(domain.PaymentCOD, "")
	require.NoError(t, err)

	methods, err := s.PaymentMethods(ctx)
	require.NoError(t, err)
	assert.Len(t, methods, 1)

	outcome, err := s.SubmitOrder(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Confirmed)
	assert.Equal(t, "SAVE10", f.orders.last.PromoCode)
	assert.Equal(t, "C1", f.orders.last.CityID)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Empty(t, sum.Lines)
	assert.Equal(t, promo.StateUnapplied, sum.Promo.State)

	view = s.Checkout()
	assert.Equal(t, checkout.StepLocation, view.Step)
	assert.Empty(t, view.Recipient.FirstName)
	require.NotNil(t, view.Outcome)
	assert.True(t, view.Outcome.Confirmed)
}

func TestSecondOrderInSameSession(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	ctx := context.Background()

	placeOrder := func() domain.OrderOutcome {
		t.Helper()
		_, err := s.AdvanceCheckout()
		require.NoError(t, err)
		_, err = s.SetRecipient(domain.Recipient{FirstName: "A", LastName: "B", Phone: "1", Address: "X"})
		require.NoError(t, err)
		_, err = s.AdvanceCheckout()
		require.NoError(t, err)
		_, err = s.SelectPayment(domain.PaymentCOD, "")
		require.NoError(t, err)
		outcome, err := s.SubmitOrder(ctx)
		require.NoError(t, err)
		return outcome
	}

	assert.True(t, placeOrder().Confirmed)
	assert.Equal(t, "SAVE10", f.orders.last.PromoCode)

	_, err := s.AddLine(ctx, "P2", 1)
	require.NoError(t, err)
	assert.True(t, placeOrder().Confirmed)
	assert.Empty(t, f.orders.last.PromoCode, "promo is used up by the first order")
	assert.Equal(t, "Z1", f.orders.last.ZoneID)
	assert.Equal(t, checkout.StepLocation, s.Checkout().Step)
}

func TestApplyOvertakenByCartChangeRevalidates(t *testing.T) {
	f := newFixture()
	s := New(f.deps, "g1", user)
	ctx := context.Background()
	_, err := s.SelectCity(ctx, "C1")
	require.NoError(t, err)
	_, err = s.SelectZone(ctx, "Z1")
	require.NoError(t, err)
	_, err = s.AddLine(ctx, "P1", 2)
	require.NoError(t, err)

	s.mu.Lock()
	req := s.promoRequestLocked("SAVE10")
	s.mu.Unlock()

	// Lands before the validator holds the code, so nothing is invalidated.
	_, err = s.AddLine(ctx, "P2", 1)
	require.NoError(t, err)
	require.Zero(t, f.promo.callCount())

	require.NoError(t, s.applyPromo(ctx, req))
	require.Equal(t, 2, f.promo.callCount())
	assert.Len(t, f.promo.lastCall().CartItems, 2)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, sum.PromoPending)
	assert.Equal(t, promo.StateApplied, sum.Promo.State)
	// 2×50 + 25 - 10 + 20
	assert.True(t, sum.Totals.GrandTotal.Equal(dec(135)), "grand %s", sum.Totals.GrandTotal)
}

func TestSubmitOmitsUntrustedPromo(t *testing.T) {
	f := newFixture()
	s := promoted(t, f)
	ctx := context.Background()

	_, err := s.AdvanceCheckout()
	require.NoError(t, err)
	_, err = s.SetRecipient(domain.Recipient{FirstName: "A", LastName: "B", Phone: "1", Address: "X"})
	require.NoError(t, err)
	_, err = s.AdvanceCheckout()
	require.NoError(t, err)
	_, err = s.SelectPayment(domain.PaymentCOD, "")
	require.NoError(t, err)

	f.promo.mu.Lock()
	f.promo.invalid = true
	f.promo.mu.Unlock()
	_, err = s.ChangeQuantity(ctx, "P1", 1)
	require.NoError(t, err)

	_, err = s.SubmitOrder(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.orders.last.PromoCode)
}
