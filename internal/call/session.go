package call

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/proto"
)

// CallSession is one endpoint's half of a call attempt. It owns its
// negotiation buffer and its media connection and the three die as one unit
// on teardown; nothing of a session survives past StateEnded.
type CallSession struct {
	id        domain.CallID
	caller    domain.UserID
	callee    domain.UserID
	kind      domain.CallKind
	role      Role
	createdAt time.Time

	buffer *NegotiationBuffer
	send   func(proto.Envelope) error

	mu    sync.Mutex
	state State
	media core.MediaConnection

	muted         bool
	cameraOn      bool
	sharing       bool
	remoteSharing bool

	audioTrack webrtc.TrackLocal
	videoTrack webrtc.TrackLocal
}

func newSession(id domain.CallID, caller, callee domain.UserID, kind domain.CallKind, role Role, send func(proto.Envelope) error) *CallSession {
	s := &CallSession{
		id:        id,
		caller:    caller,
		callee:    callee,
		kind:      kind,
		role:      role,
		createdAt: time.Now(),
		send:      send,
		state:     StateIdle,
	}
	s.buffer = NewNegotiationBuffer(s.applyCandidate)
	return s
}

func (s *CallSession) ID() domain.CallID     { return s.id }
func (s *CallSession) Kind() domain.CallKind { return s.kind }
func (s *CallSession) Role() Role            { return s.role }
func (s *CallSession) Caller() domain.UserID { return s.caller }
func (s *CallSession) Callee() domain.UserID { return s.callee }

// Peer is the other party, relative to this endpoint's role.
func (s *CallSession) Peer() domain.UserID {
	if s.role == RoleCaller {
		return s.callee
	}
	return s.caller
}

func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the machine to a legal next state; on an illegal move the
// state stays put and an error reports the attempt.
func (s *CallSession) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

func (s *CallSession) setMedia(mc core.MediaConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = mc
}

func (s *CallSession) mediaConn() core.MediaConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

func (s *CallSession) applyCandidate(ci webrtc.ICECandidateInit) error {
	mc := s.mediaConn()
	if mc == nil {
		return core.ErrNegotiationFailed
	}
	return mc.AddICECandidate(ci)
}

// Teardown runs the full, idempotent teardown routine: the state is forced
// to ended, the buffer is discarded, media flags reset, and the peer
// connection closed. Safe to invoke from any state and any number of times,
// including re-entrantly from the media connection's own close callback.
func (s *CallSession) Teardown() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	mc := s.media
	s.media = nil
	s.muted = false
	s.cameraOn = false
	s.sharing = false
	s.remoteSharing = false
	s.audioTrack = nil
	s.videoTrack = nil
	s.mu.Unlock()

	s.buffer.Clear()
	if mc != nil {
		mc.Close()
	}
}
