package core

import (
	"context"

	"github.com/avorobev/peertalk/internal/domain"
)

// TokenVerifier turns a connect-time credential into a trusted user identity.
// The gateway never registers presence for a connection this has not cleared.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}
