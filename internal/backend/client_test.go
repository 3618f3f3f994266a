package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-core/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second, BreakerFailures: 2, BreakerCooldown: time.Minute})
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Options{BaseURL: "/api"})
	require.Error(t, err)
}

func TestGetCartSendsBearerAndUnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/cart", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"productId":12,"quantity":2},{"productId":"P2","quantity":1},{"productId":"P3","quantity":0}]}`)
	})

	lines, err := c.GetCart(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: "12", Quantity: 2}, {ProductID: "P2", Quantity: 1}}, lines)
}

func TestChangeCartBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string][]map[string]int
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string][]map[string]int{"productId": {{"P1": -1}}}, body)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, c.ChangeCart(context.Background(), "tok", "P1", -1))
}

func TestDeleteCartLineEscapesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/cart/a%2Fb", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteCartLine(context.Background(), "tok", "a/b"))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuthRequired},
		{http.StatusForbidden, domain.ErrAuthRequired},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusConflict, domain.ErrNetworkFailure},
		{http.StatusBadGateway, domain.ErrNetworkFailure},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		err := c.DeleteCartLine(context.Background(), "tok", "P1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	for i := 0; i < 4; i++ {
		err := c.DeleteCartLine(context.Background(), "tok", "P1")
		require.ErrorIs(t, err, domain.ErrNetworkFailure)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCanceledCallsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		err := c.DeleteCartLine(ctx, "tok", "P1")
		require.True(t, errors.Is(err, context.Canceled), "got %v", err)
	}
	require.NoError(t, c.DeleteCartLine(context.Background(), "tok", "P1"))
}

func TestTestPromo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/promocodes/test", r.URL.Path)
		var req PromoTestRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SAVE10", req.Code)
		assert.Equal(t, "u1", req.UserID)
		assert.Equal(t, []domain.CartLine{{ProductID: "P1", Quantity: 1}}, req.CartItems)
		_, _ = io.WriteString(w, `{"valid":true,"promoCode":{"target":"PRODUCTS"},"discountAmount":10,"discountedDeliveryFee":"20.00","message":"ok"}`)
	})

	res, err := c.TestPromo(context.Background(), "tok", PromoTestRequest{
		Code: "SAVE10", UserID: "u1", CityID: "c1", ZoneID: "z1",
		CartItems: []domain.CartLine{{ProductID: "P1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "PRODUCTS", res.PromoCode.Target)
	assert.True(t, res.DiscountAmount.Equal(decimal.NewFromInt(10)))
	assert.True(t, res.DiscountedDeliveryFee.Equal(decimal.NewFromInt(20)))
}

func TestTestPromoRejectionStatus(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
		wantErr error
	}{
		{"unprocessable with message", http.StatusUnprocessableEntity, `{"valid":false,"message":"code expired"}`, "code expired", nil},
		{"bad request in envelope", http.StatusBadRequest, `{"data":{"valid":false,"message":"minimum not reached"}}`, "minimum not reached", nil},
		{"bad request without message", http.StatusBadRequest, `{"error":"bad json"}`, "", domain.ErrNetworkFailure},
		{"conflict", http.StatusConflict, `{"valid":false,"message":"nope"}`, "", domain.ErrNetworkFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			res, err := c.TestPromo(context.Background(), "tok", PromoTestRequest{Code: "OLD"})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tc.status, se.Status)
				return
			}
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.Equal(t, tc.message, res.Message)
		})
	}
}

func TestListCities(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"name":"Cairo","zones":[{"id":"z1","name":"Maadi","deliveryFee":20.5}]}]`)
	})
	cities, err := c.ListCities(context.Background())
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "1", cities[0].ID)
	zone, ok := cities[0].FindZone("z1")
	require.True(t, ok)
	assert.Equal(t, "20.5", zone.DeliveryFee.String())
}

func TestSubmitOrderOutcomes(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req domain.OrderRequest
		assert.NoError(t, json.Unmarshal(raw, &req))
		if req.PaymentMethod == "COD" {
			_, _ = io.WriteString(w, `{"data":{}}`)
			return
		}
		body = string(raw)
		_, _ = io.WriteString(w, `{"data":{"url":"https://pay.example/session/1"}}`)
	})

	redirect, err := c.SubmitOrder(context.Background(), "tok", domain.OrderRequest{PaymentMethod: "visa"})
	require.NoError(t, err)
	assert.True(t, redirect.NeedsRedirect())
	assert.Equal(t, "https://pay.example/session/1", redirect.RedirectURL)
	assert.Contains(t, body, `"extraPhones":[]`)

	confirmed, err := c.SubmitOrder(context.Background(), "tok", domain.OrderRequest{PaymentMethod: "COD"})
	require.NoError(t, err)
	assert.False(t, confirmed.NeedsRedirect())
	assert.True(t, confirmed.Confirmed)
}

func TestGetProduct(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/P1", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"skuId":"SKU1","priceBefore":"120","priceAfter":"100","maxOrderQuantity":5,"availableStock":3,"categoryIds":[7]}}`)
	})
	p, err := c.GetProduct(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", p.ID)
	assert.Equal(t, "SKU1", p.SKU)
	assert.Equal(t, 3, p.QuantityLimit())
	assert.Equal(t, []string{"7"}, p.CategoryIDs)
}
