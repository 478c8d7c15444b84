// Package remote is the storefront's client for the commerce backend: the
// server-side cart, order placement and room availability.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/httpclient"
	"github.com/sonic7adarsh/bharatapp/pkg/logger"
	"github.com/sonic7adarsh/bharatapp/pkg/middleware"
	"github.com/sonic7adarsh/bharatapp/pkg/tracing"
)

const (
	tracerName  = "github.com/sonic7adarsh/bharatapp/internal/remote"
	serviceName = "backend"

	// HeaderIdempotencyKey identifies one logical order submission.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxResponseBody = 4 << 20
)

// SessionManager is told when the backend rejects the caller's credentials.
type SessionManager interface {
	Logout(ctx context.Context, reason string)
}

// Config configures the backend client.
type Config struct {
	BaseURL string
	// HTTP is the transport configuration for reads. Writes use the same
	// settings with retries disabled.
	HTTP    httpclient.Config
	Breaker httpclient.CircuitBreakerConfig
}

// Client calls the commerce backend. Reads go through a retrying client;
// cart mirrors and order submission are sent exactly once. Both paths sit
// behind circuit breakers.
type Client struct {
	baseURL  string
	reads    *httpclient.CircuitBreakerClient
	writes   *httpclient.CircuitBreakerClient
	sessions SessionManager
	logger   *slog.Logger
}

// New creates a client with pooled transports.
func New(cfg Config, sessions SessionManager, logger *slog.Logger) *Client {
	return newClient(cfg, httpclient.New(cfg.HTTP), httpclient.New(httpclient.NoRetryConfig(cfg.HTTP)), sessions, logger)
}

// NewWithHTTPClient creates a client over hc, typically an httptest server's.
func NewWithHTTPClient(hc *http.Client, cfg Config, sessions SessionManager, logger *slog.Logger) *Client {
	return newClient(cfg,
		httpclient.NewWithHTTPClient(hc, cfg.HTTP),
		httpclient.NewWithHTTPClient(hc, httpclient.NoRetryConfig(cfg.HTTP)),
		sessions, logger)
}

func newClient(cfg Config, reads, writes *httpclient.Client, sessions SessionManager, logger *slog.Logger) *Client {
	readCB := cfg.Breaker
	if readCB.Name == "" {
		readCB = httpclient.DefaultCircuitBreakerConfig(serviceName)
	}
	writeCB := readCB
	writeCB.Name = readCB.Name + "-writes"

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		reads:    httpclient.NewCircuitBreakerClient(reads, readCB, logger).WithFallback(circuitOpenFallback),
		writes:   httpclient.NewCircuitBreakerClient(writes, writeCB, logger).WithFallback(circuitOpenFallback),
		sessions: sessions,
		logger:   logger,
	}
}

// circuitOpenFallback replaces the raw breaker error with one a user can act on.
func circuitOpenFallback(_ context.Context, err error) (*http.Response, error) {
	return nil, apperrors.RemoteUnavailable("the store is not reachable right now, please try again shortly", err)
}

// Healthy reports an error while the read breaker is open.
func (c *Client) Healthy(ctx context.Context) error {
	return c.reads.Healthy(ctx)
}

// GetCart fetches the server-side cart. The backend answers either
// {"items": [...]} or a bare array.
func (c *Client) GetCart(ctx context.Context) (*domain.Cart, error) {
	body, err := c.do(ctx, c.reads, "get_cart", http.MethodGet, "/cart", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeCart(body)
}

// AddToCart mirrors a local add. qty is the amount added, not the new total.
func (c *Client) AddToCart(ctx context.Context, item domain.CartItem, qty int) error {
	dto := newCartItemDTO(item)
	dto.Quantity = qty
	_, err := c.do(ctx, c.writes, "add_to_cart", http.MethodPost, "/cart/add", dto, nil)
	return err
}

// RemoveFromCart mirrors a local removal.
func (c *Client) RemoveFromCart(ctx context.Context, itemID string) error {
	_, err := c.do(ctx, c.writes, "remove_from_cart", http.MethodDelete, "/cart/"+url.PathEscape(itemID), nil, nil)
	return err
}

// Checkout places the order. It is never retried here; idempotencyKey lets
// the backend recognise a user resubmitting the same draft.
func (c *Client) Checkout(ctx context.Context, order domain.OrderRequest, idempotencyKey string) (domain.OrderConfirmation, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers[HeaderIdempotencyKey] = idempotencyKey
	}

	body, err := c.do(ctx, c.writes, "checkout", http.MethodPost, "/checkout", newCheckoutRequest(order), headers)
	if err != nil {
		return domain.OrderConfirmation{}, err
	}

	var resp checkoutResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return domain.OrderConfirmation{}, fmt.Errorf("decode checkout response: %w", err)
		}
	}
	return resp.toDomain(), nil
}

// AvailabilityQuery is one room availability request.
type AvailabilityQuery struct {
	StoreID     string
	RoomID      string
	CheckIn     string
	CheckOut    string
	RoomsGuests []int
}

func (q AvailabilityQuery) values() url.Values {
	guests := 0
	parts := make([]string, len(q.RoomsGuests))
	for i, g := range q.RoomsGuests {
		guests += g
		parts[i] = strconv.Itoa(g)
	}

	v := url.Values{}
	v.Set("storeId", q.StoreID)
	v.Set("roomId", q.RoomID)
	v.Set("checkIn", q.CheckIn)
	v.Set("checkOut", q.CheckOut)
	v.Set("guests", strconv.Itoa(guests))
	v.Set("roomsGuests", strings.Join(parts, ","))
	return v
}

// Availability asks the backend whether the room can be booked and at what
// price.
func (c *Client) Availability(ctx context.Context, q AvailabilityQuery) (domain.Availability, error) {
	body, err := c.do(ctx, c.reads, "availability", http.MethodGet, "/rooms/availability?"+q.values().Encode(), nil, nil)
	if err != nil {
		return domain.Availability{}, err
	}

	var dto availabilityDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return domain.Availability{}, fmt.Errorf("decode availability: %w", err)
	}
	return dto.toDomain()
}

// do sends one request and returns the body of a 2xx answer. Any other
// answer becomes a *httpclient.DownstreamError; a 401 also logs the session
// out.
func (c *Client) do(ctx context.Context, doer httpclient.Doer, op, method, path string, payload any, headers map[string]string) (_ []byte, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "backend."+op,
		attribute.String("http.request.method", method),
		attribute.String("peer.service", serviceName),
	)
	start := time.Now()
	defer func() {
		tracing.End(span, err)
		if err != nil {
			c.logger.WarnContext(ctx, "backend call failed",
				slog.String("operation", op),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()),
			)
		}
	}()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	c.setHeaders(ctx, req, payload != nil, headers)

	resp, err := doer.Do(ctx, req)
	if err != nil {
		c.checkUnauthorized(ctx, err)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpclient.ParseResponseError(resp, serviceName)
		c.checkUnauthorized(ctx, err)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	return body, nil
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, hasBody bool, extra map[string]string) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}
	if id := logger.SessionIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderSessionID, id)
	}
	if token := middleware.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

func (c *Client) checkUnauthorized(ctx context.Context, err error) {
	if c.sessions != nil && httpclient.IsUnauthorized(err) {
		c.sessions.Logout(ctx, "backend rejected the session credentials")
	}
}
