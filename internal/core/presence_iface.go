package core

import (
	"context"

	"github.com/avorobev/peertalk/internal/domain"
)

// PresenceStore is the shared user -> connection directory. It must be
// reachable from every gateway process; a single-process deployment may back
// it with a guarded map, a multi-gateway one with Redis.
//
// Implementations must make Register/Unregister atomic per user so two
// processes racing on the same user never leave a ghost entry.
type PresenceStore interface {
	// Register inserts or overwrites the entry for h.UserID (last-connection-wins).
	Register(ctx context.Context, h domain.ConnHandle) error
	// Unregister removes the entry only while connID still owns it, so a stale
	// disconnect can never erase a fresh reconnect.
	Unregister(ctx context.Context, userID domain.UserID, connID string) error
	// Lookup resolves a routing destination. Absent is not an error.
	Lookup(ctx context.Context, userID domain.UserID) (domain.ConnHandle, bool, error)
	// Snapshot returns the currently registered user set.
	Snapshot(ctx context.Context) ([]domain.UserID, error)
}
