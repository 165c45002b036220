// Package proto defines the signaling envelope catalogue shared by the
// gateway and call endpoints. An envelope carries no media; its Data field is
// opaque to the gateway and relayed verbatim.
package proto

import (
	"encoding/json"

	"github.com/avorobev/peertalk/internal/domain"
)

type Event string

// Client -> gateway events.
const (
	EventInitiateVoiceCall Event = "initiateVoiceCall"
	EventInitiateVideoCall Event = "initiateVideoCall"
	EventAcceptCall        Event = "acceptCall"
	EventRejectCall        Event = "rejectCall"
	EventSendOffer         Event = "sendOffer"
	EventSendAnswer        Event = "sendAnswer"
	EventSendIceCandidate  Event = "sendIceCandidate"
	EventInitScreenShare   Event = "initiateScreenShare"
	EventStopScreenShare   Event = "stopScreenShare"
	EventEndCall           Event = "endCall"
)

// Gateway -> client events.
const (
	EventIncomingVoiceCall   Event = "incomingVoiceCall"
	EventIncomingVideoCall   Event = "incomingVideoCall"
	EventCallAccepted        Event = "callAccepted"
	EventCallRejected        Event = "callRejected"
	EventReceiveOffer        Event = "receiveOffer"
	EventReceiveAnswer       Event = "receiveAnswer"
	EventReceiveIceCandidate Event = "receiveIceCandidate"
	EventCallEnded           Event = "callEnded"

	// EventCalleeNotAvailable is synthetic: the gateway sends it to the
	// sender only, it is never relayed from a peer.
	EventCalleeNotAvailable Event = "calleeNotAvailable"
	// EventPresenceUnavailable reports a shared-store outage, distinct from
	// an offline callee.
	EventPresenceUnavailable Event = "presenceUnavailable"
	// EventOnlineUsers is broadcast to every connection on each presence change.
	EventOnlineUsers Event = "getOnlineUsers"
)

// relayed maps each client-sendable event to the form its peer receives.
var relayed = map[Event]Event{
	EventInitiateVoiceCall: EventIncomingVoiceCall,
	EventInitiateVideoCall: EventIncomingVideoCall,
	EventAcceptCall:        EventCallAccepted,
	EventRejectCall:        EventCallRejected,
	EventSendOffer:         EventReceiveOffer,
	EventSendAnswer:        EventReceiveAnswer,
	EventSendIceCandidate:  EventReceiveIceCandidate,
	EventInitScreenShare:   EventInitScreenShare,
	EventStopScreenShare:   EventStopScreenShare,
	EventEndCall:           EventCallEnded,
}

// RelayEvent returns the peer-facing form of a client event, or false when
// the event is not something a client may route.
func RelayEvent(e Event) (Event, bool) {
	out, ok := relayed[e]
	return out, ok
}

// Envelope is the routing unit. From is stamped by the gateway from the
// authenticated connection; a client-supplied From is discarded.
type Envelope struct {
	Event  Event           `json:"event"`
	From   domain.UserID   `json:"from,omitempty"`
	To     domain.UserID   `json:"to,omitempty"`
	CallID domain.CallID   `json:"callId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an envelope into a wire frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire frame into an envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// CallMeta travels inside initiate envelopes so the callee can render who is
// calling before any directory round trip.
type CallMeta struct {
	CallerName string `json:"callerName,omitempty"`
}

type Reject struct {
	Reason string `json:"reason,omitempty"`
}

// Description mirrors the browser-side RTCSessionDescription JSON shape.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate mirrors the browser-side RTCIceCandidate JSON shape.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type OnlineUsers struct {
	Users []domain.UserID `json:"users"`
}

// Notice is a gateway-originated, human-readable condition report.
type Notice struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	UserID  domain.UserID `json:"userId,omitempty"`
}
