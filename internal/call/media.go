package call

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/proto"
)

// Track controls. Mute and camera flips never trigger renegotiation; screen
// share swaps the outgoing video track in place on the live sender. The
// share notifications are cosmetic for the remote "sharing" indicator and
// carry no media significance.

// ToggleMute flips the local audio mute flag and returns the new value. The
// capture pipeline consults Muted(); nothing is renegotiated.
func (s *CallSession) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	log.Debug().Str("module", "call").Str("call", string(s.id)).Bool("muted", s.muted).Msg("toggle mute")
	return s.muted
}

func (s *CallSession) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// ToggleCamera flips video capture. Attaching a camera after the call has
// started registers the new track with the live connection; no state-machine
// transition happens either way.
func (s *CallSession) ToggleCamera(source core.MediaSource) error {
	s.mu.Lock()
	if s.cameraOn {
		s.cameraOn = false
		s.mu.Unlock()
		log.Debug().Str("module", "call").Str("call", string(s.id)).Msg("camera off")
		return nil
	}
	track := s.videoTrack
	mc := s.media
	s.mu.Unlock()

	if track == nil {
		var err error
		track, err = source.VideoTrack()
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
		}
		if mc != nil {
			if _, err := mc.AddLocalTrack(track); err != nil {
				return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
			}
		}
	}

	s.mu.Lock()
	s.videoTrack = track
	s.cameraOn = true
	s.mu.Unlock()
	log.Debug().Str("module", "call").Str("call", string(s.id)).Msg("camera on")
	return nil
}

func (s *CallSession) CameraOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraOn
}

// StartScreenShare substitutes the outgoing video track with a captured
// display track via in-place replacement and notifies the peer best-effort.
func (s *CallSession) StartScreenShare(source core.MediaSource) error {
	s.mu.Lock()
	if s.sharing {
		s.mu.Unlock()
		return nil
	}
	mc := s.media
	s.mu.Unlock()
	if mc == nil {
		return core.ErrNegotiationFailed
	}

	display, err := source.DisplayTrack()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
	}
	if err := mc.ReplaceVideoTrack(display); err != nil {
		return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}

	s.mu.Lock()
	s.sharing = true
	s.mu.Unlock()
	s.notifyShare(proto.EventInitScreenShare)
	return nil
}

// StopScreenShare restores the camera track (when one is attached) and
// notifies the peer best-effort.
func (s *CallSession) StopScreenShare() error {
	s.mu.Lock()
	if !s.sharing {
		s.mu.Unlock()
		return nil
	}
	mc := s.media
	camera := s.videoTrack
	s.mu.Unlock()
	if mc == nil {
		return core.ErrNegotiationFailed
	}

	if camera != nil {
		if err := mc.ReplaceVideoTrack(camera); err != nil {
			return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
		}
	}

	s.mu.Lock()
	s.sharing = false
	s.mu.Unlock()
	s.notifyShare(proto.EventStopScreenShare)
	return nil
}

func (s *CallSession) Sharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharing
}

// RemoteSharing reports the peer's share indicator as last notified.
func (s *CallSession) RemoteSharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteSharing
}

func (s *CallSession) setRemoteSharing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteSharing = v
}

func (s *CallSession) notifyShare(event proto.Event) {
	env := proto.Envelope{Event: event, To: s.Peer(), CallID: s.id}
	if err := s.send(env); err != nil {
		// Cosmetic notification; losing it never affects media continuity.
		log.Debug().Err(err).Str("module", "call").Str("call", string(s.id)).Msg("share notice dropped")
	}
}
