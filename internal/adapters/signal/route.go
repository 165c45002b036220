package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/proto"
)

// route forwards one client envelope to its destination. Fire-and-forget,
// at-most-once: a drop is logged, never retried, and no acknowledgement is
// awaited. The envelope payload is relayed verbatim.
func (g *Gateway) route(ctx context.Context, sender *localConn, data []byte) {
	env, err := proto.Decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", sender.connID).Msg("bad envelope")
		return
	}

	relayAs, ok := proto.RelayEvent(env.Event)
	if !ok {
		log.Warn().Str("module", "signal").Str("event", string(env.Event)).Msg("unknown signal")
		return
	}
	if env.To == "" {
		log.Warn().Str("module", "signal").Str("event", string(env.Event)).Msg("envelope without destination")
		return
	}

	// Sender identity comes from the authenticated connection only.
	env.From = sender.userID
	env.Event = relayAs

	handle, found, err := g.presence.Lookup(ctx, env.To)
	if err != nil {
		// A store outage is not "user offline"; surface it distinctly.
		log.Error().Err(err).Str("module", "signal").Str("to", string(env.To)).Msg("presence lookup")
		g.sendNotice(sender, proto.EventPresenceUnavailable, "presence store unavailable", env.To)
		return
	}
	if !found {
		g.sendNotice(sender, proto.EventCalleeNotAvailable, "user is not available", env.To)
		return
	}

	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode envelope")
		return
	}

	if handle.GatewayID == g.id {
		lc, ok := g.localByConn(handle.ConnID)
		if !ok {
			// The directory entry outlived the local connection by a race.
			g.sendNotice(sender, proto.EventCalleeNotAvailable, "user is not available", env.To)
			return
		}
		g.send(lc, frame)
		return
	}

	if err := g.bus.Publish(ctx, handle.GatewayID, frame); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("gateway", handle.GatewayID).Msg("bus publish")
	}
}

func (g *Gateway) send(lc *localConn, f core.Frame) {
	if err := lc.sig.TrySend(f); err != nil {
		if errors.Is(err, ErrBackpressure) {
			log.Warn().Str("module", "signal").Str("conn", lc.connID).Msg("slow consumer, frame dropped")
			return
		}
		log.Debug().Err(err).Str("module", "signal").Str("conn", lc.connID).Msg("send failed")
	}
}

func noticeFrame(event proto.Event, msg string, about domain.UserID) (core.Frame, error) {
	data, err := json.Marshal(proto.Notice{Code: string(event), Message: msg, UserID: about})
	if err != nil {
		return nil, err
	}
	return proto.Envelope{Event: event, Data: data}.Encode()
}

func (g *Gateway) sendNotice(lc *localConn, event proto.Event, msg string, about domain.UserID) {
	frame, err := noticeFrame(event, msg, about)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode notice")
		return
	}
	g.send(lc, frame)
}

// broadcastOnline pushes the current online set to every connection of every
// gateway. Runs after each presence change.
func (g *Gateway) broadcastOnline(ctx context.Context) {
	users, err := g.presence.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("presence snapshot")
		return
	}
	data, err := json.Marshal(proto.OnlineUsers{Users: users})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal online users")
		return
	}
	frame, err := proto.Envelope{Event: proto.EventOnlineUsers, Data: data}.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode online users")
		return
	}
	g.deliverAll(frame)
	if err := g.bus.PublishBroadcast(ctx, frame); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bus broadcast")
	}
}

func (g *Gateway) deliverAll(f core.Frame) {
	for _, lc := range g.locals() {
		g.send(lc, f)
	}
}
