package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonic7adarsh/bharatapp/internal/storage"
)

func setupTestRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, 24*time.Hour), mr
}

// ---------------------------------------------------------------------------
// miniredis
// ---------------------------------------------------------------------------

func TestStore_SetAndGet(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sess-1", storage.KeyCart, []byte(`{"items":[]}`)))

	raw, err := mr.Get("storefront:sess-1:cart")
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, raw)
	assert.Equal(t, 24*time.Hour, mr.TTL("storefront:sess-1:cart"))

	got, err := s.Get(ctx, "sess-1", storage.KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(got))
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := setupTestRedis(t)

	_, err := s.Get(context.Background(), "sess-1", storage.KeyPromo)
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
}

func TestStore_Expiry(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sess-1", storage.KeyUserCity, []byte(`"Indore"`)))
	mr.FastForward(25 * time.Hour)

	_, err := s.Get(ctx, "sess-1", storage.KeyUserCity)
	assert.True(t, storage.IsNotFound(err))
}

func TestStore_Delete(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sess-1", storage.KeyCheckoutMethod, []byte(`"pickup"`)))
	require.NoError(t, s.Delete(ctx, "sess-1", storage.KeyCheckoutMethod))
	assert.False(t, mr.Exists("storefront:sess-1:checkout_method"))

	require.NoError(t, s.Delete(ctx, "sess-1", "never-set"))
}

func TestStore_Ping(t *testing.T) {
	s, mr := setupTestRedis(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

// ---------------------------------------------------------------------------
// redismock error paths
// ---------------------------------------------------------------------------

func TestStore_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := New(db, time.Hour)

	mock.ExpectGet("storefront:sess-1:cart").SetErr(errors.New("READONLY"))

	_, err := s.Get(context.Background(), "sess-1", storage.KeyCart)
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))
	assert.Contains(t, err.Error(), "redis get cart")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := New(db, time.Hour)

	value := []byte(`true`)
	mock.ExpectSet("storefront:sess-1:allow_substitutions", value, time.Hour).SetErr(errors.New("OOM"))

	err := s.Set(context.Background(), "sess-1", storage.KeyAllowSubstitutions, value)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set allow_substitutions")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := New(db, time.Hour)

	mock.ExpectDel("storefront:sess-1:promo").SetErr(errors.New("timeout"))

	err := s.Delete(context.Background(), "sess-1", storage.KeyPromo)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
