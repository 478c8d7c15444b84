package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/mock"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/event"
	"github.com/sonic7adarsh/bharatapp/internal/remote"
	"github.com/sonic7adarsh/bharatapp/internal/storage/memory"
)

// --- Mock Backend ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) GetCart(ctx context.Context) (*domain.Cart, error) {
	args := m.Called(ctx)
	switch v := args.Get(0).(type) {
	case func(context.Context) *domain.Cart:
		return v(ctx), args.Error(1)
	case *domain.Cart:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackend) AddToCart(ctx context.Context, item domain.CartItem, qty int) error {
	return m.Called(ctx, item, qty).Error(0)
}

func (m *mockBackend) RemoveFromCart(ctx context.Context, itemID string) error {
	return m.Called(ctx, itemID).Error(0)
}

func (m *mockBackend) Checkout(ctx context.Context, order domain.OrderRequest, idempotencyKey string) (domain.OrderConfirmation, error) {
	args := m.Called(ctx, order, idempotencyKey)
	return args.Get(0).(domain.OrderConfirmation), args.Error(1)
}

func (m *mockBackend) Availability(ctx context.Context, q remote.AvailabilityQuery) (domain.Availability, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.Availability), args.Error(1)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCheckoutConfirmed(ctx context.Context, data event.CheckoutConfirmedData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *mockPublisher) PublishCheckoutFailed(ctx context.Context, data event.CheckoutFailedData) error {
	return m.Called(ctx, data).Error(0)
}

// --- Recording Announcer ---

type recordingAnnouncer struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAnnouncer) Announce(_ context.Context, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *recordingAnnouncer) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

// --- Test Helpers ---

const testSession = "sess-0001"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newMemStore() *memory.Store {
	return memory.New(time.Hour)
}

func rice() domain.CartItem {
	return domain.CartItem{ID: "rice-1kg", Name: "Sona Masoori Rice 1kg", Price: domain.Rupees(120)}
}

func dal() domain.CartItem {
	return domain.CartItem{ID: "toor-dal", Name: "Toor Dal 500g", Price: domain.Rupees(90)}
}

func testAddress() domain.Address {
	return domain.Address{Name: "Asha", Phone: "9876543210", Line1: "12 MG Road", City: "Bengaluru", Pincode: "560001"}
}

func testSanitizer() *bluemonday.Policy {
	return bluemonday.StrictPolicy()
}
