package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avorobev/peertalk/internal/domain"
)

func handle(user, conn string) domain.ConnHandle {
	return domain.ConnHandle{
		UserID:      domain.UserID(user),
		ConnID:      conn,
		GatewayID:   "gw-1",
		ConnectedAt: time.Now(),
	}
}

func TestRegisterOverwritesPriorEntry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Register(ctx, handle("u1", "c1")))
	require.NoError(t, s.Register(ctx, handle("u1", "c2")))

	h, ok, err := s.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c2", h.ConnID)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestStaleUnregisterDoesNotEraseReconnect(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Register(ctx, handle("u1", "c1")))
	// Fresh reconnect overwrites, then the old connection's disconnect fires.
	require.NoError(t, s.Register(ctx, handle("u1", "c2")))
	require.NoError(t, s.Unregister(ctx, "u1", "c1"))

	h, ok, err := s.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok, "reconnect entry must survive the stale unregister")
	assert.Equal(t, "c2", h.ConnID)
}

func TestUnregisterByOwnerRemovesEntry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Register(ctx, handle("u1", "c1")))
	require.NoError(t, s.Unregister(ctx, "u1", "c1"))

	_, ok, err := s.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestUnregisterUnknownUserIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Unregister(ctx, "ghost", "c1"))
}

func TestSnapshotListsAllUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Register(ctx, handle("u1", "c1")))
	require.NoError(t, s.Register(ctx, handle("u2", "c2")))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserID{"u1", "u2"}, snap)
}
