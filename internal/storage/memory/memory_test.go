package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonic7adarsh/bharatapp/internal/storage"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	_, err := s.Get(ctx, "sess", storage.KeyCart)
	assert.True(t, storage.IsNotFound(err))

	value := []byte(`{"items":[]}`)
	require.NoError(t, s.Set(ctx, "sess", storage.KeyCart, value))
	value[0] = 'x'

	got, err := s.Get(ctx, "sess", storage.KeyCart)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, string(got), "stored value is copied")

	require.NoError(t, s.Delete(ctx, "sess", storage.KeyCart))
	require.NoError(t, s.Delete(ctx, "sess", storage.KeyCart))
	_, err = s.Get(ctx, "sess", storage.KeyCart)
	assert.True(t, storage.IsNotFound(err))
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	s := New(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "sess", storage.KeyPromo, []byte(`"SAVE10"`)))
	require.NoError(t, s.Set(ctx, "other", storage.KeyPromo, []byte(`"WELCOME50"`)))

	now = now.Add(59 * time.Minute)
	_, err := s.Get(ctx, "sess", storage.KeyPromo)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "other", storage.KeyPromo, []byte(`"WELCOME50"`)))

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "sess", storage.KeyPromo)
	assert.True(t, storage.IsNotFound(err))

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "other", storage.KeyPromo)
	assert.NoError(t, err, "rewritten entry survives")
}
