package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/httpclient"
	"github.com/sonic7adarsh/bharatapp/pkg/logger"
	"github.com/sonic7adarsh/bharatapp/pkg/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingSessions struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingSessions) Logout(_ context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recordingSessions) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *recordingSessions) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sessions := &recordingSessions{}
	cfg := Config{
		BaseURL: srv.URL + "/api/",
		HTTP: httpclient.Config{
			Timeout:      2 * time.Second,
			MaxRetries:   2,
			RetryWaitMin: time.Millisecond,
			RetryWaitMax: 5 * time.Millisecond,
		},
		Breaker: httpclient.CircuitBreakerConfig{
			Name:         t.Name(),
			MaxRequests:  1,
			Timeout:      time.Minute,
			FailureRatio: 1,
			MinRequests:  100,
		},
	}
	return NewWithHTTPClient(srv.Client(), cfg, sessions, testLogger()), sessions
}

// ============================================================================
// Cart
// ============================================================================

func TestGetCart_WrappedAndBareShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrapped", `{"items":[{"id":"milk","name":"Milk","price":30,"quantity":2}]}`, 1},
		{"bare array", `[{"id":"milk","name":"Milk","price":"30.50","quantity":1},{"id":"eggs","name":"Eggs","price":7,"quantity":12}]`, 2},
		{"empty array", `[]`, 0},
		{"drops invalid lines", `{"items":[{"id":"","price":1,"quantity":1},{"id":"x","price":1,"quantity":0}]}`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/cart", r.URL.Path)
				_, _ = io.WriteString(w, tc.body)
			}))

			cart, err := c.GetCart(context.Background())
			require.NoError(t, err)
			assert.Len(t, cart.Items, tc.want)
		})
	}
}

func TestGetCart_DecodesDecimalPrices(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"items":[{"id":"ghee","name":"Ghee","price":549.99,"quantity":2}]}`)
	}))

	cart, err := c.GetCart(context.Background())
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "549.99", cart.Items[0].Price.String())
	assert.Equal(t, "1099.98", cart.TotalPrice().String())
}

func TestGetCart_ServerErrorIsRetriedThenFails(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"message":"upstream down"}`)
	}))

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	de, ok := httpclient.AsDownstream(err)
	require.True(t, ok)
	assert.Equal(t, "upstream down", de.Message)
}

func TestAddToCart_SendsLineAndHeaders(t *testing.T) {
	var got cartItemDTO
	var headers http.Header
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, "/api/cart/add", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithSessionID(ctx, "sess-1")
	ctx = middleware.WithToken(ctx, "tok-123")

	item := domain.CartItem{ID: "atta", Name: "Atta", Price: domain.Rupees(250), Quantity: 9}
	require.NoError(t, c.AddToCart(ctx, item, 2))

	assert.Equal(t, "atta", got.ID)
	assert.Equal(t, 2, got.Quantity, "mirror carries the added amount")
	assert.Equal(t, "250", got.Price.String())
	assert.Equal(t, "corr-1", headers.Get(middleware.HeaderCorrelationID))
	assert.Equal(t, "sess-1", headers.Get(middleware.HeaderSessionID))
	assert.Equal(t, "Bearer tok-123", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestAddToCart_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	require.Error(t, c.AddToCart(context.Background(), domain.CartItem{ID: "x", Price: domain.Rupees(1)}, 1))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoveFromCart_EscapesID(t *testing.T) {
	var path string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		path = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.RemoveFromCart(context.Background(), "paneer:500g+bag"))
	assert.Equal(t, "/api/cart/paneer:500g+bag", path)
}

// ============================================================================
// Checkout
// ============================================================================

func sampleOrder() domain.OrderRequest {
	return domain.OrderRequest{
		Items: []domain.CartItem{{ID: "rice", Name: "Rice", Price: domain.Rupees(120), Quantity: 2}},
		Totals: domain.PricingBreakdown{
			Subtotal: domain.Rupees(240), DeliveryFee: domain.Rupees(0), Payable: domain.Rupees(240),
		},
		Address:        &domain.Address{Name: "Asha", Phone: "9876543210", Line1: "12 MG Road", City: "Bengaluru", Pincode: "560001"},
		PaymentMethod:  domain.PaymentCOD,
		CheckoutMethod: domain.MethodDelivery,
		Slot:           &domain.DeliverySlot{ID: "today-6pm"},
	}
}

func TestCheckout_SendsOrderOnce(t *testing.T) {
	var calls atomic.Int32
	var raw map[string]any
	var key string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		key = r.Header.Get(HeaderIdempotencyKey)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"orderId":"ORD-42","status":"placed"}`)
	}))

	conf, err := c.Checkout(context.Background(), sampleOrder(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-42", conf.Reference)
	assert.Equal(t, "placed", conf.Status)
	assert.Equal(t, "key-1", key)
	assert.Equal(t, int32(1), calls.Load())

	totals := raw["totals"].(map[string]any)
	assert.Equal(t, float64(240), totals["payable"], "money is sent as JSON numbers")
	assert.Equal(t, "cod", raw["paymentMethod"])
	assert.NotContains(t, raw, "booking")
}

func TestCheckout_ServerErrorNotRetriedAndKeepsMessage(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"Payment gateway timeout"}`)
	}))

	_, err := c.Checkout(context.Background(), sampleOrder(), "key-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Payment gateway timeout", httpclient.ToAppError(err, "fallback").Message)
}

func TestCheckout_ClientErrorMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":{"code":"OUT_OF_STOCK","message":"Rice is out of stock"}}`)
	}))

	_, err := c.Checkout(context.Background(), sampleOrder(), "")
	require.Error(t, err)
	appErr := httpclient.ToAppError(err, "fallback")
	assert.Equal(t, apperrors.CodeValidation, appErr.Code)
	assert.Equal(t, "Rice is out of stock", appErr.Message)
}

func TestCheckout_BookingPayload(t *testing.T) {
	var raw map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"reference":"BK-7"}`)
	}))

	order := domain.OrderRequest{
		Items:         []domain.CartItem{},
		PaymentMethod: domain.PaymentUPI,
		Booking: &domain.BookingDraft{
			StoreID: "s1", RoomID: "r1", BaseRate: domain.Rupees(1500),
			CheckIn: "2025-01-10", CheckOut: "2025-01-12", Nights: 2, RoomsGuests: []int{3, 1},
		},
	}
	conf, err := c.Checkout(context.Background(), order, "k")
	require.NoError(t, err)
	assert.Equal(t, "BK-7", conf.Reference)

	booking := raw["booking"].(map[string]any)
	assert.Equal(t, float64(1500), booking["base"])
	assert.Equal(t, []any{float64(3), float64(1)}, booking["roomsGuests"])
	assert.NotContains(t, raw, "address")
}

// ============================================================================
// Availability
// ============================================================================

func TestAvailability_QueryAndDecode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/rooms/availability", r.URL.Path)
		assert.Equal(t, "s1", q.Get("storeId"))
		assert.Equal(t, "r1", q.Get("roomId"))
		assert.Equal(t, "4", q.Get("guests"))
		assert.Equal(t, "3,1", q.Get("roomsGuests"))
		_, _ = io.WriteString(w, `{"available":true,"base":1500,"nights":2,"rooms":2,"subtotal":6000,"taxes":600,
			"fees":900,"total":7500,"roomsGuests":[3,1],"extraMattressAllowed":true,"extraMattressCount":1,
			"mattressFeePerNight":300,"perRoomMax":3}`)
	}))

	av, err := c.Availability(context.Background(), AvailabilityQuery{
		StoreID: "s1", RoomID: "r1", CheckIn: "2025-01-10", CheckOut: "2025-01-12", RoomsGuests: []int{3, 1},
	})
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Equal(t, "7500", av.Total.String())
	assert.Equal(t, "300", av.MattressFeePerNight.String())
	assert.Equal(t, 3, av.PerRoomMax)
	assert.False(t, av.Estimated)
}

func TestAvailability_BadAmount(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"available":true,"total":"lots"}`)
	}))

	_, err := c.Availability(context.Background(), AvailabilityQuery{RoomsGuests: []int{1}})
	assert.Error(t, err)
}

// ============================================================================
// Session handling and breaker
// ============================================================================

func TestUnauthorizedLogsOut(t *testing.T) {
	c, sessions := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"token expired"}`)
	}))

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.True(t, httpclient.IsUnauthorized(err))
	assert.Equal(t, 1, sessions.count())

	_ = c.RemoveFromCart(context.Background(), "x")
	assert.Equal(t, 2, sessions.count())
}

func TestOtherErrorsDoNotLogOut(t *testing.T) {
	c, sessions := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.Zero(t, sessions.count())
}

func TestBreakerOpenFallsBackToRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewWithHTTPClient(srv.Client(), Config{
		BaseURL: srv.URL,
		HTTP:    httpclient.Config{Timeout: time.Second},
		Breaker: httpclient.CircuitBreakerConfig{
			Name: t.Name(), MaxRequests: 1, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2,
		},
	}, nil, testLogger())

	for range 2 {
		_, _ = c.GetCart(context.Background())
	}
	require.Error(t, c.Healthy(context.Background()))

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRemoteUnavailable, apperrors.Code(err))
}
