package rtc

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/avorobev/peertalk/internal/core"
)

// StaticSource mints sample-fed local tracks. Real capture pipelines feed
// these tracks outside the core; the signaling layer only needs track handles
// to negotiate with.
type StaticSource struct {
	streamID string
}

func NewStaticSource() *StaticSource {
	return &StaticSource{streamID: uuid.NewString()}
}

func (s *StaticSource) AudioTrack() (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", s.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	return track, nil
}

func (s *StaticSource) VideoTrack() (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", s.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("video track: %w", err)
	}
	return track, nil
}

func (s *StaticSource) DisplayTrack() (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"display", s.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("display track: %w", err)
	}
	return track, nil
}

var _ core.MediaSource = (*StaticSource)(nil)
