// Package call holds the endpoint-side call logic: the per-call state
// machine, the negotiation buffer, and the local media track controls.
// All state here is local to one endpoint; the only cross-endpoint
// coordination is the envelopes routed through the gateway.
package call

// State is the lifecycle position of one call attempt on one endpoint.
type State int

const (
	StateIdle State = iota
	StateRinging
	StateConnecting
	StateInCall
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateInCall:
		return "in-call"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// legal lists the permitted forward transitions. StateEnded is terminal and
// additionally reachable from every non-terminal state as a forced teardown;
// rejection and unavailability short-circuit from ringing without ever
// passing through connecting or in-call.
var legal = map[State][]State{
	StateIdle:       {StateRinging, StateEnded},
	StateRinging:    {StateConnecting, StateEnded},
	StateConnecting: {StateInCall, StateEnded},
	StateInCall:     {StateEnded},
	StateEnded:      {},
}

func canTransition(from, to State) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Role fixes the protocol asymmetry: the caller is always the offer-creating
// party and the callee the answer-creating party. This is never negotiated.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}
