package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRedisRegisterAndLookup(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, domain.ConnHandle{
		UserID: "u1", ConnID: "c1", GatewayID: "gw-1",
	}))

	h, found, err := store.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c1", h.ConnID)
	assert.Equal(t, "gw-1", h.GatewayID)

	_, found, err = store.Lookup(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, found, "absent is not an error")
}

func TestRedisRegisterOverwritesPreviousConnection(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, domain.ConnHandle{UserID: "u1", ConnID: "c1", GatewayID: "gw-1"}))
	require.NoError(t, store.Register(ctx, domain.ConnHandle{UserID: "u1", ConnID: "c2", GatewayID: "gw-2"}))

	h, found, err := store.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c2", h.ConnID)

	users, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u1"}, users, "reconnect never duplicates the index entry")
}

// The compare-and-delete script: a stale disconnect from the prior connection
// must not erase the reconnect that already overwrote the entry.
func TestRedisStaleUnregisterKeepsReconnect(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, domain.ConnHandle{UserID: "u1", ConnID: "c1", GatewayID: "gw-1"}))
	require.NoError(t, store.Register(ctx, domain.ConnHandle{UserID: "u1", ConnID: "c2", GatewayID: "gw-1"}))

	require.NoError(t, store.Unregister(ctx, "u1", "c1"))

	h, found, err := store.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found, "stale unregister must be a no-op")
	assert.Equal(t, "c2", h.ConnID)

	users, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u1"}, users)
}

func TestRedisOwnerUnregisterRemovesEntryAndIndex(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, domain.ConnHandle{UserID: "u1", ConnID: "c1", GatewayID: "gw-1"}))
	require.NoError(t, store.Unregister(ctx, "u1", "c1"))

	_, found, err := store.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	users, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRedisUnregisterUnknownUserIsNoop(t *testing.T) {
	store := newRedisStore(t)
	assert.NoError(t, store.Unregister(context.Background(), "ghost", "c1"))
}

func TestRedisOutageSurfacesAsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	require.NoError(t, store.Register(ctx, domain.ConnHandle{UserID: "u1", ConnID: "c1", GatewayID: "gw-1"}))

	mr.Close()

	_, _, err := store.Lookup(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPresenceUnavailable)
}
