// Package service holds the per-session storefront state: the cart store,
// saved preferences, the room booking flow and the checkout orchestrator.
package service

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/remote"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// CartBackend is the server-side cart the local cart mirrors to.
type CartBackend interface {
	GetCart(ctx context.Context) (*domain.Cart, error)
	AddToCart(ctx context.Context, item domain.CartItem, qty int) error
	RemoveFromCart(ctx context.Context, itemID string) error
}

// OrderBackend places orders.
type OrderBackend interface {
	Checkout(ctx context.Context, order domain.OrderRequest, idempotencyKey string) (domain.OrderConfirmation, error)
}

// AvailabilityBackend answers room availability queries.
type AvailabilityBackend interface {
	Availability(ctx context.Context, q remote.AvailabilityQuery) (domain.Availability, error)
}

// Backend is everything the storefront calls remotely.
// *remote.Client satisfies it.
type Backend interface {
	CartBackend
	OrderBackend
	AvailabilityBackend
}

var _ Backend = (*remote.Client)(nil)

// Announcer shows the user a message outside the current request's answer.
type Announcer interface {
	Announce(ctx context.Context, message string)
}

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(context.Context, string) {}

var (
	cartSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_sync_total",
			Help: "Cart load and mirror calls to the backend by operation and result",
		},
		[]string{"op", "result"},
	)

	checkoutSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_submissions_total",
			Help: "Checkout submissions by outcome (rejected, confirmed, failed)",
		},
		[]string{"outcome"},
	)

	availabilityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_availability_checks_total",
			Help: "Room availability checks by result (live, estimated, blocked, stale)",
		},
		[]string{"result"},
	)

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_sessions",
		Help: "Sessions currently held in memory",
	})
)

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Internal(err)
}
