package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/proto"
)

// fakeConn records every frame an endpoint sends toward the gateway.
type fakeConn struct {
	mu     sync.Mutex
	frames []proto.Envelope
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	env, err := proto.Decode(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) sent() []proto.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]proto.Envelope, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) lastEvent(t *testing.T) proto.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	return c.frames[len(c.frames)-1]
}

// fakeMedia stands in for the peer-connection facility and records the
// order candidates are applied in.
type fakeMedia struct {
	mu         sync.Mutex
	started    bool
	closed     bool
	remoteSet  bool
	applied    []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	replaced   []webrtc.TrackLocal
	onICE      func(webrtc.ICECandidateInit)
	onClosed   func()
	failStart  bool
	dieOnStart bool
	failOffer  bool
	failanswer bool
}

func (m *fakeMedia) Start(context.Context) error {
	m.mu.Lock()
	if m.failStart {
		m.mu.Unlock()
		return core.ErrNegotiationFailed
	}
	m.started = true
	die := m.dieOnStart
	m.mu.Unlock()
	if die {
		// Models the peer connection failing immediately: pion fires the
		// state callback from its own goroutine while setup is in flight.
		m.Close()
	}
	return nil
}

func (m *fakeMedia) Close() {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	fn := m.onClosed
	m.mu.Unlock()
	if !already && fn != nil {
		fn()
	}
}

func (m *fakeMedia) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	if m.failOffer {
		return nil, core.ErrNegotiationFailed
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (m *fakeMedia) ApplyAnswer(webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteSet = true
	return nil
}

func (m *fakeMedia) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if m.failanswer {
		return nil, core.ErrNegotiationFailed
	}
	m.mu.Lock()
	m.remoteSet = true
	m.mu.Unlock()
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (m *fakeMedia) HasRemoteDescription() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteSet
}

func (m *fakeMedia) AddICECandidate(ci webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, ci)
	return nil
}

func (m *fakeMedia) OnICECandidate(fn func(webrtc.ICECandidateInit)) { m.onICE = fn }

func (m *fakeMedia) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, track)
	return nil, nil
}

func (m *fakeMedia) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = append(m.replaced, track)
	return nil
}

func (m *fakeMedia) OnClosed(fn func()) { m.onClosed = fn }

// fakeSource hands out real pion static tracks, optionally failing to model
// a capture-permission denial.
type fakeSource struct {
	failAudio   bool
	failVideo   bool
	failDisplay bool
}

func (s *fakeSource) AudioTrack() (webrtc.TrackLocal, error) {
	if s.failAudio {
		return nil, core.ErrMediaAcquisition
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
}

func (s *fakeSource) VideoTrack() (webrtc.TrackLocal, error) {
	if s.failVideo {
		return nil, core.ErrMediaAcquisition
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
}

func (s *fakeSource) DisplayTrack() (webrtc.TrackLocal, error) {
	if s.failDisplay {
		return nil, core.ErrMediaAcquisition
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "display", "test")
}

// testEndpoint bundles an endpoint with its fakes.
type testEndpoint struct {
	ep      *Endpoint
	conn    *fakeConn
	media   *fakeMedia
	source  *fakeSource
	notices []proto.Notice
}

func newTestEndpoint(user domain.UserID) *testEndpoint {
	te := &testEndpoint{
		conn:   &fakeConn{},
		media:  &fakeMedia{},
		source: &fakeSource{},
	}
	factory := func(context.Context, domain.CallID) (core.MediaConnection, error) {
		return te.media, nil
	}
	te.ep = NewEndpoint(domain.User{ID: user, Username: string(user)}, te.conn, factory, te.source)
	te.ep.OnNotice(func(n proto.Notice) { te.notices = append(te.notices, n) })
	return te
}

// cand builds a distinguishable candidate payload.
func cand(s string) proto.Candidate {
	return proto.Candidate{Candidate: "candidate:" + s}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
