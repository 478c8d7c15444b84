package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/storage"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

func newTestCartStore(t *testing.T, store storage.Store, backend *mockBackend, cfg CartStoreConfig) *CartStore {
	t.Helper()
	return NewCartStore(context.Background(), testSession, store, backend, testLogger(), cfg)
}

func cartOf(items ...domain.CartItem) *domain.Cart {
	c := domain.NewCart()
	for _, it := range items {
		c.Add(it, 1)
	}
	return c
}

// ============================================================================
// Load
// ============================================================================

func TestCartLoad_RemoteWinsWhenNonEmpty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, storage.Save(ctx, store, testSession, storage.KeyCart, cartOf(dal())))

	backend := &mockBackend{}
	backend.On("GetCart", mock.Anything).Return(cartOf(rice()), nil).Once()

	s := newTestCartStore(t, store, backend, CartStoreConfig{})
	res := s.Load(ctx)

	assert.True(t, res.OK)
	assert.True(t, res.RemoteWon)
	assert.True(t, s.Loaded())

	snap := s.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "rice-1kg", snap.Items[0].ID)

	persisted := storage.Load[*domain.Cart](ctx, store, testSession, storage.KeyCart, nil, testLogger())
	require.NotNil(t, persisted)
	assert.Equal(t, "rice-1kg", persisted.Items[0].ID)
	backend.AssertExpectations(t)
}

func TestCartLoad_EmptyRemoteKeepsLocal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, storage.Save(ctx, store, testSession, storage.KeyCart, cartOf(dal())))

	backend := &mockBackend{}
	backend.On("GetCart", mock.Anything).Return(domain.NewCart(), nil)

	s := newTestCartStore(t, store, backend, CartStoreConfig{})
	res := s.Load(ctx)

	assert.True(t, res.OK)
	assert.False(t, res.RemoteWon)
	assert.Equal(t, "toor-dal", s.Snapshot().Items[0].ID)
}

func TestCartLoad_FailureKeepsLocal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, storage.Save(ctx, store, testSession, storage.KeyCart, cartOf(dal())))

	backend := &mockBackend{}
	backend.On("GetCart", mock.Anything).Return(nil, errors.New("connection refused"))

	var got []SyncResult
	s := newTestCartStore(t, store, backend, CartStoreConfig{OnSync: func(r SyncResult) { got = append(got, r) }})
	res := s.Load(ctx)

	assert.False(t, res.OK)
	require.Error(t, res.Err)
	assert.Equal(t, 1, s.Snapshot().ItemsCount())
	require.Len(t, got, 1)
	assert.Equal(t, SyncLoad, got[0].Op)
}

func TestCartLoad_RunsOnce(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("GetCart", mock.Anything).Return(cartOf(rice()), nil).Once()

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})
	first := s.Load(ctx)
	second := s.Load(ctx)

	assert.Equal(t, first, second)
	backend.AssertNumberOfCalls(t, "GetCart", 1)
}

func TestCartLoad_CorruptLocalIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.Set(ctx, testSession, storage.KeyCart, []byte("{not json")))

	s := newTestCartStore(t, store, &mockBackend{}, CartStoreConfig{})
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestCartLoad_ReplaysMutationsMadeDuringLoad(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	backend := &mockBackend{}
	backend.On("GetCart", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(cartOf(rice()), nil)
	backend.On("AddToCart", mock.Anything, mock.Anything, 2).Return(nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Load(ctx)
	}()

	<-started
	_, err := s.AddItem(ctx, dal(), 2)
	require.NoError(t, err)
	assert.False(t, s.Loaded())

	close(release)
	wg.Wait()
	s.Wait()

	snap := s.Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "rice-1kg", snap.Items[0].ID)
	assert.Equal(t, "toor-dal", snap.Items[1].ID)
	assert.Equal(t, 2, snap.Items[1].Quantity)
}

// remoteCart is a backend cart the mocked calls read and write.
type remoteCart struct {
	mu   sync.Mutex
	cart *domain.Cart
}

func (r *remoteCart) snapshot() *domain.Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cart.Clone()
}

func (r *remoteCart) add(item domain.CartItem, qty int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cart.Add(item, qty)
}

func TestCartLoad_HoldsBackendCallsUntilSnapshotRead(t *testing.T) {
	ctx := context.Background()
	remote := &remoteCart{cart: cartOf(rice())}
	started := make(chan struct{})
	release := make(chan struct{})

	backend := &mockBackend{}
	backend.On("GetCart", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(func(context.Context) *domain.Cart { return remote.snapshot() }, nil)
	backend.On("AddToCart", mock.Anything, mock.Anything, 2).
		Run(func(args mock.Arguments) { remote.add(args.Get(1).(domain.CartItem), args.Int(2)) }).
		Return(nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Load(ctx)
	}()

	<-started
	_, err := s.AddItem(ctx, dal(), 2)
	require.NoError(t, err)
	s.Wait()
	backend.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)

	close(release)
	<-done
	s.Wait()

	local, _ := s.Snapshot().Find("toor-dal")
	remoteLine, _ := remote.snapshot().Find("toor-dal")
	assert.Equal(t, 2, local.Quantity)
	assert.Equal(t, 2, remoteLine.Quantity)
	backend.AssertNumberOfCalls(t, "AddToCart", 1)
}

func TestCartLoad_WaitsForEarlierMirrors(t *testing.T) {
	ctx := context.Background()
	remote := &remoteCart{cart: cartOf(rice())}

	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, 3).
		Run(func(args mock.Arguments) { remote.add(args.Get(1).(domain.CartItem), args.Int(2)) }).
		Return(nil)
	backend.On("GetCart", mock.Anything).
		Return(func(context.Context) *domain.Cart { return remote.snapshot() }, nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})
	_, err := s.AddItem(ctx, dal(), 3)
	require.NoError(t, err)

	res := s.Load(ctx)
	require.True(t, res.RemoteWon)

	line, ok := s.Snapshot().Find("toor-dal")
	require.True(t, ok, "remote snapshot includes the earlier add")
	assert.Equal(t, 3, line.Quantity)
}

// ============================================================================
// Mutations
// ============================================================================

func TestCartAddItem_MergesAndMirrors(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})

	_, err := s.AddItem(ctx, rice(), 2)
	require.NoError(t, err)

	pricier := rice()
	pricier.Price = domain.Rupees(150)
	snap, err := s.AddItem(ctx, pricier, 3)
	require.NoError(t, err)
	s.Wait()

	require.Len(t, snap.Items, 1)
	assert.Equal(t, 5, snap.Items[0].Quantity)
	assert.True(t, snap.Items[0].Price.Equal(domain.Rupees(120)))
	backend.AssertNumberOfCalls(t, "AddToCart", 2)
}

func TestCartAddItem_Validation(t *testing.T) {
	s := newTestCartStore(t, newMemStore(), &mockBackend{}, CartStoreConfig{})

	_, err := s.AddItem(context.Background(), domain.CartItem{ID: "  "}, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.Code(err))

	neg := rice()
	neg.Price = domain.Rupees(-1)
	_, err = s.AddItem(context.Background(), neg, 1)
	require.Error(t, err)
}

func TestCartUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	backend.On("RemoveFromCart", mock.Anything, "rice-1kg").Return(nil).Once()

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})
	_, err := s.AddItem(ctx, rice(), 1)
	require.NoError(t, err)

	snap, err := s.UpdateQuantity(ctx, "rice-1kg", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.ItemsCount())

	snap, err = s.UpdateQuantity(ctx, "rice-1kg", 0)
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, 0, snap.ItemsCount())
	assert.True(t, snap.TotalPrice().IsZero())
	backend.AssertExpectations(t)
}

func TestCartUpdateQuantity_MissingItem(t *testing.T) {
	s := newTestCartStore(t, newMemStore(), &mockBackend{}, CartStoreConfig{})
	_, err := s.UpdateQuantity(context.Background(), "ghost", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCartUpdateQuantity_RemovedConcurrently(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	backend.On("RemoveFromCart", mock.Anything, mock.Anything).Return(nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})
	_, err := s.AddItem(ctx, rice(), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.RemoveItem(ctx, "rice-1kg")
		}()
		go func() {
			defer wg.Done()
			snap, err := s.UpdateQuantity(ctx, "rice-1kg", 4)
			if err != nil {
				assert.ErrorIs(t, err, apperrors.ErrNotFound)
				return
			}
			line, ok := snap.Find("rice-1kg")
			assert.True(t, ok, "a successful update returns the line")
			assert.Equal(t, 4, line.Quantity)
		}()
	}
	wg.Wait()
	s.Wait()
}

func TestCartSettle_KeepsLinesAddedLater(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})
	_, err := s.AddItem(ctx, rice(), 1)
	require.NoError(t, err)
	ordered := s.Snapshot().Items

	_, err = s.AddItem(ctx, rice(), 2)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, dal(), 1)
	require.NoError(t, err)

	snap := s.Settle(ctx, ordered)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.Equal(t, "toor-dal", snap.Items[1].ID)
	s.Wait()
}

func TestCartClear_DoesNotTouchRemote(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})
	_, err := s.AddItem(ctx, rice(), 1)
	require.NoError(t, err)

	assert.True(t, s.Clear(ctx).IsEmpty())
	s.Wait()
	backend.AssertNotCalled(t, "RemoveFromCart", mock.Anything, mock.Anything)
}

func TestCartMirror_FailureLeavesLocalState(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, 1).Return(errors.New("503 from backend"))

	var mu sync.Mutex
	var results []SyncResult
	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{OnSync: func(r SyncResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}})

	_, err := s.AddItem(ctx, rice(), 1)
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, 1, s.Snapshot().ItemsCount())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Equal(t, SyncAdd, results[0].Op)
	assert.Equal(t, "rice-1kg", results[0].ItemID)
	assert.False(t, results[0].OK)
}

func TestCartMirror_SurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mirrorErr error
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, 1).
		Run(func(args mock.Arguments) {
			mirrorErr = args.Get(0).(context.Context).Err()
		}).
		Return(nil)

	s := newTestCartStore(t, newMemStore(), backend, CartStoreConfig{})
	_, err := s.AddItem(ctx, rice(), 1)
	require.NoError(t, err)
	cancel()
	s.Wait()

	assert.NoError(t, mirrorErr)
	backend.AssertExpectations(t)
}

func TestCartStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	backend := &mockBackend{}
	backend.On("AddToCart", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first := newTestCartStore(t, store, backend, CartStoreConfig{})
	_, err := first.AddItem(ctx, rice(), 2)
	require.NoError(t, err)
	first.Wait()

	second := newTestCartStore(t, store, backend, CartStoreConfig{})
	snap := second.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 2, snap.Items[0].Quantity)
}
