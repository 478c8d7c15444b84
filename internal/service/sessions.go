package service

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sonic7adarsh/bharatapp/internal/event"
	"github.com/sonic7adarsh/bharatapp/internal/storage"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/logger"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// DefaultIdleTimeout is how long an untouched session is kept in memory.
const DefaultIdleTimeout = time.Hour

// SessionsConfig is everything a session bundle is built from.
type SessionsConfig struct {
	Store     storage.Store
	Backend   Backend
	Announcer Announcer
	Events    event.Publisher
	Sanitizer *bluemonday.Policy
	Booking   BookingPolicy
	Checkout  CheckoutConfig

	// RemoteTimeout bounds the initial cart load and each cart mirror.
	RemoteTimeout time.Duration
	IdleTimeout   time.Duration
}

// Bundle is one session's storefront state.
type Bundle struct {
	ID       string
	Cart     *CartStore
	Prefs    *Preferences
	Booking  *BookingFlow
	Checkout *Checkout

	lastSeen time.Time
}

// Busy reports whether the bundle has a submission in flight.
func (b *Bundle) Busy() bool {
	return b.Checkout.Busy()
}

func (b *Bundle) wait() {
	b.Cart.Wait()
	b.Checkout.Wait()
}

// Sessions holds the bundles of the sessions seen recently, keyed by the
// X-Session-ID the client sends.
type Sessions struct {
	cfg    SessionsConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	bundles map[string]*Bundle
	closed  bool

	loads sync.WaitGroup
}

// NewSessions creates an empty registry.
func NewSessions(cfg SessionsConfig, logger *slog.Logger) *Sessions {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultMirrorTimeout
	}
	if cfg.Announcer == nil {
		cfg.Announcer = nopAnnouncer{}
	}
	if cfg.Events == nil {
		cfg.Events = event.Nop{}
	}
	return &Sessions{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		bundles: make(map[string]*Bundle),
	}
}

// ValidSessionID reports whether id may key a session.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Get returns the bundle for id, creating it on first use. A new bundle
// starts from the persisted local state and reconciles its cart with the
// backend in the background.
func (s *Sessions) Get(ctx context.Context, id string) (*Bundle, error) {
	if !ValidSessionID(id) {
		return nil, apperrors.InvalidInput("X-Session-ID must be 8-128 letters, digits or ._:-")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.RemoteUnavailable("the storefront is shutting down", nil)
	}
	if b, ok := s.bundles[id]; ok {
		b.lastSeen = s.now()
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	ctx = logger.WithSessionID(ctx, id)
	fresh := s.build(ctx, id)

	s.mu.Lock()
	if b, ok := s.bundles[id]; ok {
		b.lastSeen = s.now()
		s.mu.Unlock()
		return b, nil
	}
	fresh.lastSeen = s.now()
	s.bundles[id] = fresh
	activeSessions.Set(float64(len(s.bundles)))
	s.loads.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.loads.Done()
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RemoteTimeout)
		defer cancel()
		fresh.Cart.Load(lctx)
	}()

	s.logger.DebugContext(ctx, "session opened")
	return fresh, nil
}

func (s *Sessions) build(ctx context.Context, id string) *Bundle {
	cart := NewCartStore(ctx, id, s.cfg.Store, s.cfg.Backend, s.logger, CartStoreConfig{MirrorTimeout: s.cfg.RemoteTimeout})
	prefs := NewPreferences(id, s.cfg.Store, s.cfg.Sanitizer, s.logger)
	booking := NewBookingFlow(s.cfg.Backend, s.cfg.Announcer, s.cfg.Booking, s.logger)

	checkoutCfg := s.cfg.Checkout
	if checkoutCfg.Sanitizer == nil {
		checkoutCfg.Sanitizer = s.cfg.Sanitizer
	}
	checkout := NewCheckout(ctx, id, cart, booking, prefs, s.cfg.Backend, s.cfg.Events, s.logger, checkoutCfg)

	return &Bundle{ID: id, Cart: cart, Prefs: prefs, Booking: booking, Checkout: checkout}
}

// Drop forgets the in-memory bundle for id. Persisted state is kept. It
// matches session.LogoutHook.
func (s *Sessions) Drop(ctx context.Context, id string) {
	s.mu.Lock()
	_, ok := s.bundles[id]
	delete(s.bundles, id)
	activeSessions.Set(float64(len(s.bundles)))
	s.mu.Unlock()

	if ok {
		s.logger.InfoContext(ctx, "session dropped", slog.String("session_id", id))
	}
}

// Sweep drops bundles idle for longer than the idle timeout. Bundles with a
// submission in flight are kept. It returns how many were dropped.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, b := range s.bundles {
		if b.lastSeen.After(cutoff) || b.Busy() {
			continue
		}
		delete(s.bundles, id)
		n++
	}
	activeSessions.Set(float64(len(s.bundles)))
	return n
}

// Len is the number of bundles in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bundles)
}

// Close refuses new sessions and waits for cart loads, mirrors and
// submissions still in flight, or for ctx to end.
func (s *Sessions) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	bundles := make([]*Bundle, 0, len(s.bundles))
	for _, b := range s.bundles {
		bundles = append(bundles, b)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.loads.Wait()
		for _, b := range bundles {
			b.wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
