package call

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectingBuffer() (*NegotiationBuffer, *[]string) {
	var applied []string
	b := NewNegotiationBuffer(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	})
	return b, &applied
}

func TestFlushAppliesBufferedCandidatesInOrderExactlyOnce(t *testing.T) {
	b, applied := collectingBuffer()

	require.NoError(t, b.Push(toCandidate(cand("c1"))))
	require.NoError(t, b.Push(toCandidate(cand("c2"))))
	require.NoError(t, b.Push(toCandidate(cand("c3"))))
	assert.Empty(t, *applied, "nothing applies before the remote description")

	require.NoError(t, b.Flush())
	assert.Equal(t, []string{"candidate:c1", "candidate:c2", "candidate:c3"}, *applied)

	// A second flush must not replay anything.
	require.NoError(t, b.Flush())
	assert.Len(t, *applied, 3)
}

func TestPushAfterReadyAppliesImmediately(t *testing.T) {
	b, applied := collectingBuffer()

	require.NoError(t, b.Flush())
	require.True(t, b.IsReady())

	require.NoError(t, b.Push(toCandidate(cand("late"))))
	assert.Equal(t, []string{"candidate:late"}, *applied)
	assert.Empty(t, b.pending, "a post-ready candidate is never enqueued")
}

func TestFlushStopsAtFirstApplyError(t *testing.T) {
	boom := errors.New("boom")
	var applied int
	b := NewNegotiationBuffer(func(webrtc.ICECandidateInit) error {
		applied++
		if applied == 2 {
			return boom
		}
		return nil
	})

	require.NoError(t, b.Push(toCandidate(cand("c1"))))
	require.NoError(t, b.Push(toCandidate(cand("c2"))))
	require.NoError(t, b.Push(toCandidate(cand("c3"))))

	err := b.Flush()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, applied)
	assert.Empty(t, b.pending)
}

func TestClearDiscardsPendingAndResets(t *testing.T) {
	b, applied := collectingBuffer()

	require.NoError(t, b.Push(toCandidate(cand("c1"))))
	b.Clear()
	assert.False(t, b.IsReady())

	require.NoError(t, b.Flush())
	assert.Empty(t, *applied, "cleared candidates must not resurface")
}
