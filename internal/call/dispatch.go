package call

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/proto"
)

// HandleFrame consumes one gateway-delivered frame. The transport read loop
// calls it sequentially, so one peer's envelope stream is never reordered.
func (e *Endpoint) HandleFrame(ctx context.Context, f core.Frame) {
	env, err := proto.Decode(f)
	if err != nil {
		log.Error().Err(err).Str("module", "call").Msg("bad frame")
		return
	}

	switch env.Event {
	case proto.EventIncomingVoiceCall:
		e.handleIncoming(env, domain.KindVoice)
	case proto.EventIncomingVideoCall:
		e.handleIncoming(env, domain.KindVideo)
	case proto.EventCallAccepted:
		e.handleAccepted(ctx, env)
	case proto.EventCallRejected:
		e.handleRejected(env)
	case proto.EventReceiveOffer:
		e.handleOffer(env)
	case proto.EventReceiveAnswer:
		e.handleAnswer(env)
	case proto.EventReceiveIceCandidate:
		e.handleCandidate(env)
	case proto.EventInitScreenShare:
		e.handleShare(env, true)
	case proto.EventStopScreenShare:
		e.handleShare(env, false)
	case proto.EventCallEnded:
		e.handleEnded(env)
	case proto.EventCalleeNotAvailable:
		e.handleCalleeNotAvailable(env)
	case proto.EventPresenceUnavailable:
		e.handlePresenceUnavailable(env)
	case proto.EventOnlineUsers:
		e.handleOnline(env)
	default:
		log.Warn().Str("module", "call").Str("event", string(env.Event)).Msg("unknown signal")
	}
}

func (e *Endpoint) handleIncoming(env proto.Envelope, kind domain.CallKind) {
	if _, exists := e.session(env.CallID); exists {
		log.Warn().Str("module", "call").Str("call", string(env.CallID)).Msg("duplicate incoming call")
		return
	}
	s := newSession(env.CallID, env.From, e.self.ID, kind, RoleCallee, e.sendEnvelope)
	if err := s.transition(StateRinging); err != nil {
		return
	}
	if err := e.addSession(s); err != nil {
		return
	}
	log.Info().Str("module", "call").Str("call", string(s.id)).Str("from", string(env.From)).Str("kind", string(kind)).Msg("incoming call")
	if e.onIncoming != nil {
		e.onIncoming(s)
	}
}

// handleAccepted runs the caller's connecting leg: bring media up, create
// the offer, send it. The session is in-call once capture succeeded and the
// offer went out.
func (e *Endpoint) handleAccepted(ctx context.Context, env proto.Envelope) {
	s, ok := e.session(env.CallID)
	if !ok || s.role != RoleCaller {
		e.stray(env)
		return
	}
	if err := s.transition(StateConnecting); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call", string(s.id)).Msg("accept in wrong state")
		return
	}
	if err := e.startMedia(ctx, s); err != nil {
		e.fail(s, err)
		return
	}
	// The peer connection may die while media is coming up; its close
	// callback tears the session down from another goroutine, so re-read
	// the media handle instead of trusting the one startMedia installed.
	mc := s.mediaConn()
	if mc == nil || s.State() == StateEnded {
		return
	}
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		e.fail(s, err)
		return
	}
	data, err := json.Marshal(fromDescription(*offer))
	if err != nil {
		e.fail(s, err)
		return
	}
	if err := e.sendEnvelope(proto.Envelope{Event: proto.EventSendOffer, To: s.Peer(), CallID: s.id, Data: data}); err != nil {
		e.fail(s, err)
		return
	}
	if err := s.transition(StateInCall); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call", string(s.id)).Msg("in-call transition")
	}
}

func (e *Endpoint) handleRejected(env proto.Envelope) {
	s, ok := e.session(env.CallID)
	if !ok {
		e.stray(env)
		return
	}
	var rej proto.Reject
	_ = json.Unmarshal(env.Data, &rej)
	s.Teardown()
	e.removeSession(s.id)
	if rej.Reason == "" {
		rej.Reason = "call rejected"
	}
	e.notify(proto.Notice{Code: string(proto.EventCallRejected), Message: rej.Reason, UserID: env.From})
}

// handleOffer runs the callee's answering leg. Applying the remote
// description flushes every buffered candidate, in arrival order, exactly
// once.
func (e *Endpoint) handleOffer(env proto.Envelope) {
	s, ok := e.session(env.CallID)
	if !ok || s.role != RoleCallee {
		e.stray(env)
		return
	}
	mc := s.mediaConn()
	if mc == nil {
		log.Warn().Str("module", "call").Str("call", string(s.id)).Msg("offer before accept")
		return
	}
	var desc proto.Description
	if err := json.Unmarshal(env.Data, &desc); err != nil {
		e.fail(s, err)
		return
	}
	answer, err := mc.ApplyOfferAndCreateAnswer(toDescription(desc))
	if err != nil {
		e.fail(s, err)
		return
	}
	if err := s.buffer.Flush(); err != nil {
		e.fail(s, err)
		return
	}
	data, err := json.Marshal(fromDescription(*answer))
	if err != nil {
		e.fail(s, err)
		return
	}
	if err := e.sendEnvelope(proto.Envelope{Event: proto.EventSendAnswer, To: s.Peer(), CallID: s.id, Data: data}); err != nil {
		e.fail(s, err)
		return
	}
	if err := s.transition(StateInCall); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call", string(s.id)).Msg("in-call transition")
	}
}

func (e *Endpoint) handleAnswer(env proto.Envelope) {
	s, ok := e.session(env.CallID)
	if !ok || s.role != RoleCaller {
		e.stray(env)
		return
	}
	mc := s.mediaConn()
	if mc == nil {
		e.stray(env)
		return
	}
	var desc proto.Description
	if err := json.Unmarshal(env.Data, &desc); err != nil {
		e.fail(s, err)
		return
	}
	if err := mc.ApplyAnswer(toDescription(desc)); err != nil {
		e.fail(s, err)
		return
	}
	if err := s.buffer.Flush(); err != nil {
		e.fail(s, err)
	}
}

func (e *Endpoint) handleCandidate(env proto.Envelope) {
	s, ok := e.session(env.CallID)
	if !ok {
		// Stray candidate for a torn-down or unknown call; never resurrect.
		e.stray(env)
		return
	}
	var cand proto.Candidate
	if err := json.Unmarshal(env.Data, &cand); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call", string(s.id)).Msg("bad candidate payload")
		return
	}
	if err := s.buffer.Push(toCandidate(cand)); err != nil {
		e.fail(s, err)
	}
}

func (e *Endpoint) handleShare(env proto.Envelope, sharing bool) {
	s, ok := e.session(env.CallID)
	if !ok {
		e.stray(env)
		return
	}
	s.setRemoteSharing(sharing)
}

// handleEnded cancels whatever the session is doing, including an in-flight
// negotiation, and goes straight to teardown. No acknowledgement is sent.
func (e *Endpoint) handleEnded(env proto.Envelope) {
	s, ok := e.session(env.CallID)
	if !ok {
		e.stray(env)
		return
	}
	s.Teardown()
	e.removeSession(s.id)
	e.notify(proto.Notice{Code: string(proto.EventCallEnded), Message: "call ended", UserID: env.From})
}

// handleCalleeNotAvailable carries no callId, so the ringing caller session
// toward that user is matched by peer identity.
func (e *Endpoint) handleCalleeNotAvailable(env proto.Envelope) {
	var n proto.Notice
	if err := json.Unmarshal(env.Data, &n); err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("bad notice payload")
		return
	}
	e.mu.Lock()
	var match *CallSession
	for _, s := range e.sessions {
		if s.role == RoleCaller && s.Peer() == n.UserID {
			match = s
			break
		}
	}
	e.mu.Unlock()
	if match != nil {
		match.Teardown()
		e.removeSession(match.id)
	}
	e.notify(n)
}

func (e *Endpoint) handlePresenceUnavailable(env proto.Envelope) {
	var n proto.Notice
	if err := json.Unmarshal(env.Data, &n); err != nil {
		return
	}
	e.notify(n)
}

func (e *Endpoint) handleOnline(env proto.Envelope) {
	var ou proto.OnlineUsers
	if err := json.Unmarshal(env.Data, &ou); err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("bad online users payload")
		return
	}
	if e.onOnline != nil {
		e.onOnline(ou.Users)
	}
}

func (e *Endpoint) stray(env proto.Envelope) {
	log.Debug().Str("module", "call").Str("event", string(env.Event)).Str("call", string(env.CallID)).Msg("stray envelope ignored")
}
