// Package params defines the immutable RTP parameter set bound to a
// Producer or Consumer at creation time: codecs, header extensions,
// encodings and the session-level muxId/cname.
package params

import (
	"github.com/pion/sdp/v3"

	"sfuworker/internal/rtpcore/profile"
)

// Well-known header-extension URIs registered by the teacher's media
// engine (pkg/webrtc/mediaengine.go); kept as the default set offered
// during capability negotiation.
const (
	ExtSDESMid         = sdp.SDESMidURI
	ExtSDESRTPStreamID = sdp.SDESRTPStreamIDURI
	ExtTransportCC     = sdp.TransportCCURI
	ExtAudioLevel      = sdp.AudioLevelURI
	ExtFrameMarking    = "urn:ietf:params:rtp-hdrext:framemarking"
)

// RtcpFeedback describes one entry of a codec's rtcp-fb attribute.
type RtcpFeedback struct {
	Type      string
	Parameter string
}

// Codec describes one negotiated codec.
type Codec struct {
	PayloadType  uint8
	MimeType     string
	ClockRate    uint32
	Channels     uint8
	SDPFmtpLine  string
	RtcpFeedback []RtcpFeedback
}

// HasNack reports whether the codec's feedback list includes plain NACK.
func (c Codec) HasNack() bool {
	for _, fb := range c.RtcpFeedback {
		if fb.Type == "nack" && fb.Parameter == "" {
			return true
		}
	}
	return false
}

// HasPLI reports whether the codec's feedback list includes nack/pli.
func (c Codec) HasPLI() bool {
	for _, fb := range c.RtcpFeedback {
		if fb.Type == "nack" && fb.Parameter == "pli" {
			return true
		}
	}
	return false
}

// HeaderExtension binds a numeric local id to a registered URI.
type HeaderExtension struct {
	URI string
	ID  int
}

// Encoding is one simulcast layer: its SSRC(s) and optional profile tag.
type Encoding struct {
	SSRC             uint32
	HasRtx           bool
	RtxSSRC          uint32
	CodecPayloadType uint8
	Profile          profile.Profile
}

// RtpParameters is immutable once bound to a Producer or Consumer.
type RtpParameters struct {
	MuxID            string
	Codecs           []Codec
	HeaderExtensions []HeaderExtension
	Encodings        []Encoding
	RtcpCName        string
}

// PayloadTypes returns the set of payload types this parameter set offers.
func (p RtpParameters) PayloadTypes() map[uint8]struct{} {
	out := make(map[uint8]struct{}, len(p.Codecs))
	for _, c := range p.Codecs {
		out[c.PayloadType] = struct{}{}
	}
	return out
}

// CodecForPayloadType looks up a codec by payload type.
func (p RtpParameters) CodecForPayloadType(pt uint8) (Codec, bool) {
	for _, c := range p.Codecs {
		if c.PayloadType == pt {
			return c, true
		}
	}
	return Codec{}, false
}

// GetEncodingForSSRC finds the encoding entry owning ssrc (main or rtx).
func (p RtpParameters) GetEncodingForSSRC(ssrc uint32) (Encoding, bool) {
	for _, e := range p.Encodings {
		if e.SSRC == ssrc || (e.HasRtx && e.RtxSSRC == ssrc) {
			return e, true
		}
	}
	return Encoding{}, false
}

// MatchCodec reports whether a codec with mimeType/clockRate is present in
// local, returning the first such codec. This is the
// single narrow negotiation operation this core performs (full SDP/ORTC
// capability negotiation is out of scope).
func MatchCodec(local []Codec, mimeType string, clockRate uint32) (Codec, bool) {
	for _, c := range local {
		if c.MimeType == mimeType && c.ClockRate == clockRate {
			return c, true
		}
	}
	return Codec{}, false
}
