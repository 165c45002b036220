package call

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// NegotiationBuffer absorbs ICE candidates that outrun the offer/answer
// exchange. Until the remote description is applied, candidates queue in
// arrival order; Flush applies them exactly once, after which every further
// candidate is applied immediately and never enqueued.
type NegotiationBuffer struct {
	mu      sync.Mutex
	ready   bool
	pending []webrtc.ICECandidateInit
	apply   func(webrtc.ICECandidateInit) error
}

func NewNegotiationBuffer(apply func(webrtc.ICECandidateInit) error) *NegotiationBuffer {
	return &NegotiationBuffer{apply: apply}
}

// Push either queues the candidate or, once the remote description is in
// place, applies it directly.
func (b *NegotiationBuffer) Push(c webrtc.ICECandidateInit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		b.pending = append(b.pending, c)
		return nil
	}
	return b.apply(c)
}

// Flush marks the remote description as applied and drains the queue in
// arrival order. Application stops at the first failure; the remaining
// candidates stay dropped, not re-queued, because the session is about to be
// torn down anyway.
func (b *NegotiationBuffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	b.ready = true
	for _, c := range b.pending {
		if err := b.apply(c); err != nil {
			b.pending = nil
			return err
		}
	}
	b.pending = nil
	return nil
}

// IsReady reports whether a remote description has been applied.
func (b *NegotiationBuffer) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Clear discards all pending candidates on session teardown.
func (b *NegotiationBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.ready = false
}
