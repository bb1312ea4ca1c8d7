package protocol

import (
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// Signal kinds reported by ClassifySignal.
const (
	SignalCandidate = "candidate"
	SignalUnknown   = "unknown"
	SignalOther     = "other"
)

// controlTypes are the non-SDP types the browser peer library emits.
var controlTypes = map[string]struct{}{
	"renegotiate":        {},
	"transceiverRequest": {},
}

// ClassifySignal inspects an opaque negotiation payload and names what it
// carries: an SDP type ("offer", "answer", ...), "candidate", a known
// peer-library control type such as "renegotiate", "other" for any other
// declared type, or "unknown". The result is always drawn from a closed set
// so it is safe to use as a metric label. The payload itself is never altered.
func ClassifySignal(raw json.RawMessage) string {
	var probe struct {
		Type      string          `json:"type"`
		SDP       string          `json:"sdp"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return SignalUnknown
	}
	if len(probe.Candidate) > 0 {
		if _, err := DecodeCandidate(probe.Candidate); err == nil {
			return SignalCandidate
		}
		return SignalUnknown
	}
	if t := webrtc.NewSDPType(probe.Type); t != webrtc.SDPTypeUnknown {
		return t.String()
	}
	if _, ok := controlTypes[probe.Type]; ok {
		return probe.Type
	}
	if probe.Type != "" {
		return SignalOther
	}
	return SignalUnknown
}

// DecodeCandidate parses an ICE candidate in its browser JSON form.
func DecodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &ci); err != nil {
		return webrtc.ICECandidateInit{}, err
	}
	return ci, nil
}
