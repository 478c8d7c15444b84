package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/storage"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// SyncOp names a cart call to the backend.
type SyncOp string

const (
	SyncLoad   SyncOp = "load"
	SyncAdd    SyncOp = "add"
	SyncRemove SyncOp = "remove"
)

// SyncResult is the outcome of one backend cart call. Mirrors never change
// local state; their results are only logged and counted.
type SyncResult struct {
	Op     SyncOp
	ItemID string
	OK     bool
	Err    error
	// RemoteWon is set on a load whose non-empty remote snapshot replaced
	// the local cart.
	RemoteWon bool
}

type loadState int

const (
	notLoaded loadState = iota
	loading
	loaded
)

// DefaultMirrorTimeout bounds each background mirror call.
const DefaultMirrorTimeout = 10 * time.Second

// CartStoreConfig tunes a CartStore.
type CartStoreConfig struct {
	MirrorTimeout time.Duration
	// OnSync, if set, receives every SyncResult after it is recorded.
	OnSync func(SyncResult)
}

// CartStore is one session's cart. Local state is authoritative: mutations
// apply and persist immediately and are mirrored to the backend in the
// background. The one-time Load reconciles with the backend. Mutations made
// while it runs are replayed on top of a winning remote snapshot, and their
// backend calls are held back until the snapshot has been read so the
// snapshot never already contains them.
type CartStore struct {
	session string
	store   storage.Store
	backend CartBackend
	logger  *slog.Logger
	cfg     CartStoreConfig

	mu         sync.Mutex
	cart       *domain.Cart
	state      loadState
	loadDone   chan struct{}
	loadResult SyncResult
	pending    []func(*domain.Cart)
	deferred   []mirrorCall

	wg sync.WaitGroup
}

// mirrorCall is a backend cart call waiting to be sent.
type mirrorCall struct {
	ctx    context.Context
	op     SyncOp
	itemID string
	fn     func(context.Context) error
}

// NewCartStore creates the store and reads the persisted local snapshot. A
// missing or corrupt snapshot yields an empty cart.
func NewCartStore(ctx context.Context, session string, store storage.Store, backend CartBackend, logger *slog.Logger, cfg CartStoreConfig) *CartStore {
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = DefaultMirrorTimeout
	}

	local := storage.Load[*domain.Cart](ctx, store, session, storage.KeyCart, nil, logger)
	if local == nil {
		local = domain.NewCart()
	}
	local.Sanitize()

	return &CartStore{
		session:  session,
		store:    store,
		backend:  backend,
		logger:   logger,
		cfg:      cfg,
		cart:     local,
		loadDone: make(chan struct{}),
	}
}

// Load reconciles with the backend exactly once. A remote cart with at least
// one line replaces the local one; an empty remote cart or a failed fetch
// keeps local. Later calls wait for and return the first result.
func (s *CartStore) Load(ctx context.Context) SyncResult {
	s.mu.Lock()
	if s.state != notLoaded {
		done := s.loadDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return SyncResult{Op: SyncLoad, Err: ctx.Err()}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loadResult
	}
	s.state = loading
	s.mu.Unlock()

	// Calls sent before loading began must land before the snapshot is read.
	s.wg.Wait()

	remote, err := s.backend.GetCart(ctx)

	s.mu.Lock()
	res := SyncResult{Op: SyncLoad, OK: err == nil, Err: err}
	if err == nil && !remote.IsEmpty() {
		next := remote.Clone()
		next.Sanitize()
		for _, apply := range s.pending {
			apply(next)
		}
		s.cart = next
		res.RemoteWon = true
		s.persistLocked(ctx)
	}
	deferred := s.deferred
	s.wg.Add(len(deferred))
	s.pending = nil
	s.deferred = nil
	s.state = loaded
	s.loadResult = res
	close(s.loadDone)
	s.mu.Unlock()

	s.record(ctx, res)
	for _, call := range deferred {
		s.mirror(call)
	}
	return res
}

// Loaded reports whether the initial reconciliation has finished.
func (s *CartStore) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == loaded
}

// AddItem merges qty of item into the cart. An existing line keeps its price.
func (s *CartStore) AddItem(ctx context.Context, item domain.CartItem, qty int) (*domain.Cart, error) {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return nil, apperrors.Validation("item id is required").WithField("id")
	}
	if item.Price.IsNegative() {
		return nil, apperrors.Validation("price must not be negative").WithField("price")
	}
	if qty < 1 {
		qty = 1
	}

	snapshot, _ := s.mutate(ctx, func(c *domain.Cart) bool {
		c.Add(item, qty)
		return true
	}, &mirrorCall{op: SyncAdd, itemID: item.ID, fn: func(ctx context.Context) error {
		return s.backend.AddToCart(ctx, item, qty)
	}})
	return snapshot, nil
}

// RemoveItem drops the line with id. Removing a missing line is a no-op
// locally but is still mirrored.
func (s *CartStore) RemoveItem(ctx context.Context, id string) *domain.Cart {
	snapshot, _ := s.mutate(ctx, func(c *domain.Cart) bool {
		c.Remove(id)
		return true
	}, &mirrorCall{op: SyncRemove, itemID: id, fn: func(ctx context.Context) error {
		return s.backend.RemoveFromCart(ctx, id)
	}})
	return snapshot
}

// UpdateQuantity sets the line's quantity exactly; qty <= 0 removes it.
// The backend has no set-quantity call, so only removals are mirrored.
func (s *CartStore) UpdateQuantity(ctx context.Context, id string, qty int) (*domain.Cart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, id), nil
	}

	snapshot, ok := s.mutate(ctx, func(c *domain.Cart) bool {
		return c.SetQuantity(id, qty)
	}, nil)
	if !ok {
		return nil, apperrors.NotFound("cart item", id)
	}
	return snapshot, nil
}

// Clear empties the local cart. The backend cart is left alone.
func (s *CartStore) Clear(ctx context.Context) *domain.Cart {
	snapshot, _ := s.mutate(ctx, func(c *domain.Cart) bool {
		c.Clear()
		return true
	}, nil)
	return snapshot
}

// Settle takes ordered lines out of the cart after a confirmed order. Only
// the ordered quantities are removed, so lines added while the order was in
// flight stay. The backend cart is left alone.
func (s *CartStore) Settle(ctx context.Context, ordered []domain.CartItem) *domain.Cart {
	snapshot, _ := s.mutate(ctx, func(c *domain.Cart) bool {
		c.Deduct(ordered)
		return true
	}, nil)
	return snapshot
}

// Snapshot returns a copy of the current cart.
func (s *CartStore) Snapshot() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Wait blocks until every in-flight mirror has finished.
func (s *CartStore) Wait() {
	s.wg.Wait()
}

// mutate applies fn to the cart under the lock. When fn reports no change
// nothing is persisted or mirrored. While the initial load is in flight both
// fn and call are queued for after it.
func (s *CartStore) mutate(ctx context.Context, fn func(*domain.Cart) bool, call *mirrorCall) (*domain.Cart, bool) {
	s.mu.Lock()
	if !fn(s.cart) {
		snapshot := s.cart.Clone()
		s.mu.Unlock()
		return snapshot, false
	}
	s.persistLocked(ctx)
	snapshot := s.cart.Clone()

	if call != nil {
		call.ctx = context.WithoutCancel(ctx)
	}
	if s.state == loading {
		s.pending = append(s.pending, func(c *domain.Cart) { fn(c) })
		if call != nil {
			s.deferred = append(s.deferred, *call)
		}
		call = nil
	} else if call != nil {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if call != nil {
		s.mirror(*call)
	}
	return snapshot, true
}

func (s *CartStore) persistLocked(ctx context.Context) {
	if err := storage.Save(ctx, s.store, s.session, storage.KeyCart, s.cart); err != nil {
		s.logger.WarnContext(ctx, "failed to persist cart", slog.String("error", err.Error()))
	}
}

// mirror sends call on a goroutine detached from the caller's cancellation.
// The caller has already counted it in wg.
func (s *CartStore) mirror(call mirrorCall) {
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(call.ctx, s.cfg.MirrorTimeout)
		defer cancel()

		err := call.fn(ctx)
		s.record(ctx, SyncResult{Op: call.op, ItemID: call.itemID, OK: err == nil, Err: err})
	}()
}

func (s *CartStore) record(ctx context.Context, res SyncResult) {
	cartSyncTotal.WithLabelValues(string(res.Op), resultLabel(res.OK)).Inc()

	if res.Err != nil {
		s.logger.WarnContext(ctx, "cart sync failed",
			slog.String("op", string(res.Op)),
			slog.String("item_id", res.ItemID),
			slog.String("error", res.Err.Error()),
		)
	} else {
		s.logger.DebugContext(ctx, "cart synced",
			slog.String("op", string(res.Op)),
			slog.String("item_id", res.ItemID),
			slog.Bool("remote_won", res.RemoteWon),
		)
	}

	if s.cfg.OnSync != nil {
		s.cfg.OnSync(res)
	}
}
