package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/proto"
)

// MediaFactory builds the peer-connection facility for one call attempt.
type MediaFactory func(ctx context.Context, callID domain.CallID) (core.MediaConnection, error)

// Endpoint is one client's view of the signaling fabric: a gateway
// connection plus the call sessions it hosts. Handlers are registered when
// the endpoint is created and removed when it is closed; nothing here is
// tied to a render or UI lifecycle.
type Endpoint struct {
	self     domain.User
	conn     core.SignalConnection
	newMedia MediaFactory
	source   core.MediaSource

	mu       sync.Mutex
	closed   bool
	sessions map[domain.CallID]*CallSession

	onIncoming func(*CallSession)
	onNotice   func(proto.Notice)
	onOnline   func([]domain.UserID)
}

func NewEndpoint(self domain.User, conn core.SignalConnection, media MediaFactory, source core.MediaSource) *Endpoint {
	return &Endpoint{
		self:     self,
		conn:     conn,
		newMedia: media,
		source:   source,
		sessions: make(map[domain.CallID]*CallSession),
	}
}

// OnIncoming registers the ring handler for callee-side sessions.
func (e *Endpoint) OnIncoming(fn func(*CallSession)) { e.onIncoming = fn }

// OnNotice registers the handler for user-visible condition reports
// (unreachable callee, rejections, media failures).
func (e *Endpoint) OnNotice(fn func(proto.Notice)) { e.onNotice = fn }

// OnOnline registers the handler for online-users broadcasts.
func (e *Endpoint) OnOnline(fn func([]domain.UserID)) { e.onOnline = fn }

func (e *Endpoint) sendEnvelope(env proto.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	return e.conn.TrySend(frame)
}

func (e *Endpoint) session(id domain.CallID) (*CallSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

func (e *Endpoint) addSession(s *CallSession) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("endpoint closed")
	}
	e.sessions[s.id] = s
	return nil
}

func (e *Endpoint) removeSession(id domain.CallID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

// Sessions returns the live session count, for status surfaces.
func (e *Endpoint) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// InitiateCall mints a fresh callId and rings the remote user. Simultaneous
// cross-initiation by both parties yields two independent callIds on
// purpose; each attempt is accepted or rejected on its own.
func (e *Endpoint) InitiateCall(to domain.UserID, kind domain.CallKind) (*CallSession, error) {
	s := newSession(domain.NewCallID(), e.self.ID, to, kind, RoleCaller, e.sendEnvelope)
	if err := s.transition(StateRinging); err != nil {
		return nil, err
	}
	if err := e.addSession(s); err != nil {
		return nil, err
	}

	event := proto.EventInitiateVoiceCall
	if kind == domain.KindVideo {
		event = proto.EventInitiateVideoCall
	}
	meta, err := json.Marshal(proto.CallMeta{CallerName: e.self.Username})
	if err != nil {
		e.removeSession(s.id)
		return nil, err
	}
	if err := e.sendEnvelope(proto.Envelope{Event: event, To: to, CallID: s.id, Data: meta}); err != nil {
		s.Teardown()
		e.removeSession(s.id)
		return nil, err
	}
	log.Info().Str("module", "call").Str("call", string(s.id)).Str("to", string(to)).Str("kind", string(kind)).Msg("initiated")
	return s, nil
}

// Accept answers a ringing callee-side session: the acceptance goes out
// first, then local media comes up so the offer can be answered when it
// arrives.
func (e *Endpoint) Accept(ctx context.Context, id domain.CallID) error {
	s, ok := e.session(id)
	if !ok {
		return fmt.Errorf("no session for call %s", id)
	}
	if s.role != RoleCallee {
		return fmt.Errorf("only the callee accepts")
	}
	if err := s.transition(StateConnecting); err != nil {
		return err
	}
	if err := e.sendEnvelope(proto.Envelope{Event: proto.EventAcceptCall, To: s.Peer(), CallID: id}); err != nil {
		e.fail(s, err)
		return err
	}
	if err := e.startMedia(ctx, s); err != nil {
		e.fail(s, err)
		return err
	}
	return nil
}

// Reject declines a ringing session. No media is ever acquired on this path.
func (e *Endpoint) Reject(id domain.CallID, reason string) error {
	s, ok := e.session(id)
	if !ok {
		return fmt.Errorf("no session for call %s", id)
	}
	data, err := json.Marshal(proto.Reject{Reason: reason})
	if err != nil {
		return err
	}
	if err := e.sendEnvelope(proto.Envelope{Event: proto.EventRejectCall, To: s.Peer(), CallID: id, Data: data}); err != nil {
		log.Debug().Err(err).Str("module", "call").Str("call", string(id)).Msg("reject send failed")
	}
	s.Teardown()
	e.removeSession(id)
	return nil
}

// End hangs up from any non-terminal state.
func (e *Endpoint) End(id domain.CallID) error {
	s, ok := e.session(id)
	if !ok {
		return fmt.Errorf("no session for call %s", id)
	}
	if err := e.sendEnvelope(proto.Envelope{Event: proto.EventEndCall, To: s.Peer(), CallID: id}); err != nil {
		log.Debug().Err(err).Str("module", "call").Str("call", string(id)).Msg("end send failed")
	}
	s.Teardown()
	e.removeSession(id)
	return nil
}

// Close tears down every session and the gateway connection. Deterministic
// counterpart of NewEndpoint.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sessions := make([]*CallSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[domain.CallID]*CallSession)
	e.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
	e.conn.Close()
}

// fail forces a session to ended with a user-visible notice. Never retried.
func (e *Endpoint) fail(s *CallSession, err error) {
	log.Error().Err(err).Str("module", "call").Str("call", string(s.id)).Msg("call failed")
	s.Teardown()
	e.removeSession(s.id)
	e.notify(proto.Notice{Code: "callFailed", Message: err.Error(), UserID: s.Peer()})
}

func (e *Endpoint) notify(n proto.Notice) {
	if e.onNotice != nil {
		e.onNotice(n)
	}
}

// startMedia acquires local capture and brings up the peer connection. The
// caller's offer is created here; the callee's answer waits for the offer
// envelope.
func (e *Endpoint) startMedia(ctx context.Context, s *CallSession) error {
	mc, err := e.newMedia(ctx, s.id)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}
	s.setMedia(mc)

	mc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		data, err := json.Marshal(fromCandidate(ci))
		if err != nil {
			return
		}
		env := proto.Envelope{Event: proto.EventSendIceCandidate, To: s.Peer(), CallID: s.id, Data: data}
		if err := e.sendEnvelope(env); err != nil {
			log.Debug().Err(err).Str("module", "call").Str("call", string(s.id)).Msg("candidate dropped")
		}
	})
	mc.OnClosed(func() {
		// Peer-connection failure forces teardown; Teardown is re-entrant safe.
		if s.State() != StateEnded {
			e.fail(s, core.ErrNegotiationFailed)
		}
	})

	if err := mc.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}

	audio, err := e.source.AudioTrack()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
	}
	if _, err := mc.AddLocalTrack(audio); err != nil {
		return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}
	s.mu.Lock()
	s.audioTrack = audio
	s.mu.Unlock()

	if s.kind == domain.KindVideo {
		video, err := e.source.VideoTrack()
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
		}
		if _, err := mc.AddLocalTrack(video); err != nil {
			return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
		}
		s.mu.Lock()
		s.videoTrack = video
		s.cameraOn = true
		s.mu.Unlock()
	}
	return nil
}
