// Package event publishes checkout lifecycle events.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	pkgkafka "github.com/sonic7adarsh/bharatapp/pkg/kafka"
	"github.com/sonic7adarsh/bharatapp/pkg/logger"
)

// Event types.
const (
	TypeCheckoutConfirmed = "checkout.confirmed"
	TypeCheckoutFailed    = "checkout.failed"
)

// AggregateTypeCheckout is the aggregate every event belongs to.
const AggregateTypeCheckout = "checkout"

// SourceStorefront identifies this service as the event source.
const SourceStorefront = "storefront"

// CheckoutConfirmedData is the payload for a checkout.confirmed event.
type CheckoutConfirmedData struct {
	CheckoutID    string          `json:"checkout_id"`
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id,omitempty"`
	Reference     string          `json:"reference"`
	Kind          string          `json:"kind"`
	ItemCount     int             `json:"item_count"`
	Payable       decimal.Decimal `json:"payable"`
	PaymentMethod string          `json:"payment_method"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	CheckoutID string `json:"checkout_id"`
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id,omitempty"`
	Code       string `json:"code"`
	Reason     string `json:"reason"`
}

// Publisher is what the checkout flow needs from an event sink.
type Publisher interface {
	PublishCheckoutConfirmed(ctx context.Context, data CheckoutConfirmedData) error
	PublishCheckoutFailed(ctx context.Context, data CheckoutFailedData) error
}

// Producer publishes checkout events to one Kafka topic.
type Producer struct {
	kafka  *pkgkafka.Producer
	topic  string
	logger *slog.Logger
}

var _ Publisher = (*Producer)(nil)

// NewProducer creates a producer writing to topic.
func NewProducer(kafka *pkgkafka.Producer, topic string, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, topic: topic, logger: logger}
}

// PublishCheckoutConfirmed publishes a checkout.confirmed event.
func (p *Producer) PublishCheckoutConfirmed(ctx context.Context, data CheckoutConfirmedData) error {
	return p.publish(ctx, TypeCheckoutConfirmed, data.CheckoutID, data.SessionID, data)
}

// PublishCheckoutFailed publishes a checkout.failed event.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, data CheckoutFailedData) error {
	return p.publish(ctx, TypeCheckoutFailed, data.CheckoutID, data.SessionID, data)
}

func (p *Producer) publish(ctx context.Context, eventType, checkoutID, sessionID string, data any) error {
	ev, err := pkgkafka.NewEvent(SourceStorefront, eventType, AggregateTypeCheckout, checkoutID, data,
		pkgkafka.Correlated(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.ForSession(sessionID),
		pkgkafka.Tagged("user_id", logger.UserIDFromContext(ctx)),
	)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}

	if err := p.kafka.Publish(ctx, p.topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published checkout event",
		slog.String("event_type", eventType),
		slog.String("checkout_id", checkoutID),
	)
	return nil
}

// Nop discards events. It is used when EVENTS_ENABLED is false.
type Nop struct{}

var _ Publisher = Nop{}

// PublishCheckoutConfirmed does nothing.
func (Nop) PublishCheckoutConfirmed(context.Context, CheckoutConfirmedData) error { return nil }

// PublishCheckoutFailed does nothing.
func (Nop) PublishCheckoutFailed(context.Context, CheckoutFailedData) error { return nil }
