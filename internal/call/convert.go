package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/avorobev/peertalk/internal/proto"
)

// Wire payloads use the browser JSON shapes; pion uses its own types.

func toDescription(d proto.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(d.Type),
		SDP:  d.SDP,
	}
}

func fromDescription(sd webrtc.SessionDescription) proto.Description {
	return proto.Description{Type: sd.Type.String(), SDP: sd.SDP}
}

func toCandidate(c proto.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

func fromCandidate(ci webrtc.ICECandidateInit) proto.Candidate {
	return proto.Candidate{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}
