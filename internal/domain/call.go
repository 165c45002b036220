package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CallID string

// CallKind distinguishes plain voice calls from calls that start with video.
type CallKind string

const (
	KindVoice CallKind = "voice"
	KindVideo CallKind = "video"
)

// NewCallID mints an opaque correlation token for one call attempt.
// Uniqueness is the only requirement; the timestamp prefix is for humans
// reading logs, not for ordering.
func NewCallID() CallID {
	return CallID(fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8]))
}
