package core

import "errors"

var (
	// ErrAuthRejected means the connect-time credential was missing or bad.
	// The connection is refused before any presence side effect.
	ErrAuthRejected = errors.New("auth rejected")

	// ErrPresenceUnavailable means the shared store is unreachable. It must
	// never be collapsed into "user offline".
	ErrPresenceUnavailable = errors.New("presence store unavailable")

	// ErrCalleeUnavailable means the routing target is not registered.
	ErrCalleeUnavailable = errors.New("callee not available")

	// ErrMediaAcquisition means local capture failed; the session ends.
	ErrMediaAcquisition = errors.New("media acquisition failed")

	// ErrNegotiationFailed means peer-connection setup failed; the session ends.
	ErrNegotiationFailed = errors.New("negotiation failed")
)
