package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is the local peer-connection facility a call session
// negotiates through. The core only drives the offer/answer/candidate
// exchange; it never touches media frames.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops all underlying media resources. Safe to call twice.
	Close()
	IsClosed() bool

	// CreateAndSetOffer is the caller-side path: the caller is always the
	// offer-creating party.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer completes the caller-side exchange.
	ApplyAnswer(webrtc.SessionDescription) error
	// ApplyOfferAndCreateAnswer is the callee-side path.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// HasRemoteDescription reports whether a remote description was applied.
	HasRemoteDescription() bool

	// AddICECandidate applies a remote negotiation fragment.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))

	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// ReplaceVideoTrack swaps the outgoing video track in place, without a
	// new negotiation round.
	ReplaceVideoTrack(track webrtc.TrackLocal) error

	// OnClosed sets a callback for cleanup when the peer connection dies.
	OnClosed(func())
}

// MediaSource is the local capture facility. Acquisition may fail (no device,
// no permission); that failure forces the owning session to ended and is
// never retried.
type MediaSource interface {
	AudioTrack() (webrtc.TrackLocal, error)
	VideoTrack() (webrtc.TrackLocal, error)
	// DisplayTrack captures the screen for screen sharing.
	DisplayTrack() (webrtc.TrackLocal, error)
}
