package sfu

import (
	"strconv"
	"strings"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"sfuworker/internal/rtpcore/params"
	"sfuworker/internal/rtpcore/payload"
	"sfuworker/internal/rtpcore/profile"
	"sfuworker/internal/rtpcore/seq"
	"sfuworker/internal/rtpcore/stream"
)

type consumerState uint8

const (
	stateUninitialised consumerState = iota
	stateEnabled
	stateDisabled
)

// retransmissionBufferPackets sizes the outbound ring on consumers whose
// codec negotiated NACK and whose encoding carries RTX, whatever their
// media kind; every other consumer gets no ring.
const retransmissionBufferPackets = 1024

// maxRtcpInterval bounds how often GetRtcp emits a compound report; the
// 1.15 jitter factor mirrors original_source's RTCP interval randomization
// collapsed to its deterministic lower bound for this core (spec §9).
const maxRtcpInterval = 1 * time.Second

// Consumer owns one outbound RtpStreamSend and the simulcast profile
// machinery that decides which of a Producer's layers it currently
// forwards (spec §4.6). It never holds a *Producer reference: the Router
// looks it up by ProducerID when wiring fan-out (spec §9 design note).
type Consumer struct {
	ID         string
	ProducerID string
	Kind       profile.Kind
	Transport  Transport

	state  consumerState
	paused bool

	rtpParams params.RtpParameters
	mimeType  string

	outboundSSRC        uint32
	outboundPayloadType uint8
	outboundClockRate   uint32

	send   *stream.Send
	vp8Ctx *payload.VP8EncodingContext

	seqManager   *seq.Manager
	haveSentAny  bool
	syncRequired bool

	// lastRecvRtpTimestamp is the producer-side timestamp last forwarded;
	// rtpTimestamp is the value actually emitted on the outbound stream.
	// They diverge across a profile switch, since the new layer's
	// timestamp base is unrelated to the old one's (spec §4.6 steps 4-6).
	lastRecvRtpTimestamp uint32
	rtpTimestamp         uint32
	lastSentAt           time.Time

	availableProfiles map[profile.Profile]struct{}
	preferredProfile  profile.Profile
	effectiveProfile  profile.Profile

	lastRtcpSentAt time.Time

	observer ConsumerObserver
	log      zerolog.Logger
}

// NewConsumer constructs an uninitialised Consumer bound to producerID.
// Call Enable before any packet flows.
func NewConsumer(id, producerID string, kind profile.Kind, transport Transport, observer ConsumerObserver, log zerolog.Logger) *Consumer {
	return &Consumer{
		ID:                id,
		ProducerID:        producerID,
		Kind:              kind,
		Transport:         transport,
		state:             stateUninitialised,
		preferredProfile:  profile.High,
		effectiveProfile:  profile.None,
		availableProfiles: make(map[profile.Profile]struct{}),
		seqManager:        seq.New(16),
		observer:          observer,
		log:               log.With().Str("component", "consumer").Str("consumerId", id).Logger(),
	}
}

// Enable binds rtpParams (this Consumer's own single outbound encoding)
// and transitions Uninitialised -> Enabled. Calling it twice is a
// ConfigError: re-negotiation is not supported mid-session.
func (c *Consumer) Enable(rtpParams params.RtpParameters) error {
	if c.state != stateUninitialised {
		return &ConfigError{Op: "Consumer.Enable", Err: errAlreadyEnabled}
	}
	if len(rtpParams.Encodings) != 1 {
		return &ConfigError{Op: "Consumer.Enable", Err: errWantOneEncoding}
	}

	enc := rtpParams.Encodings[0]
	codec, ok := rtpParams.CodecForPayloadType(enc.CodecPayloadType)
	if !ok {
		return &ConfigError{Op: "Consumer.Enable", Err: errUnknownPayloadType}
	}

	c.rtpParams = rtpParams
	c.mimeType = codec.MimeType
	c.outboundSSRC = enc.SSRC
	c.outboundPayloadType = codec.PayloadType
	c.outboundClockRate = codec.ClockRate

	capacity := 0
	rtxPT := uint8(0)
	if codec.HasNack() && enc.HasRtx {
		capacity = retransmissionBufferPackets
		if rtx, ok := findRtxPayloadType(rtpParams, codec.PayloadType); ok {
			rtxPT = rtx
		}
	}

	sp := stream.Params{
		SSRC:           enc.SSRC,
		PayloadType:    codec.PayloadType,
		MimeType:       codec.MimeType,
		ClockRate:      codec.ClockRate,
		UseNack:        codec.HasNack(),
		UsePli:         codec.HasPLI(),
		HasRtx:         enc.HasRtx,
		RtxPayloadType: rtxPT,
		RtxSSRC:        enc.RtxSSRC,
		CName:          rtpParams.RtcpCName,
	}
	c.send = stream.NewSend(sp, capacity)

	if codec.MimeType == "video/VP8" {
		c.vp8Ctx = payload.NewVP8EncodingContext(int(profile.High))
	}

	c.syncRequired = true
	c.state = stateEnabled
	return nil
}

// findRtxPayloadType locates the codec describing enc's RTX pairing via
// its apt fmtp parameter, the convention the teacher's media engine uses
// for RFC 4588 negotiation.
func findRtxPayloadType(p params.RtpParameters, apt uint8) (uint8, bool) {
	want := "apt=" + strconv.Itoa(int(apt))
	for _, c := range p.Codecs {
		if c.MimeType == "video/rtx" && strings.Contains(c.SDPFmtpLine, want) {
			return c.PayloadType, true
		}
	}
	return 0, false
}

// AddProfile registers prof as available for this consumer to switch to
// and recalculates the effective profile.
func (c *Consumer) AddProfile(prof profile.Profile, now time.Time) {
	c.availableProfiles[prof] = struct{}{}
	c.recalculateEffectiveProfile(now)
}

// RemoveProfile withdraws prof (e.g. the producer's layer went unhealthy
// or closed) and recalculates.
func (c *Consumer) RemoveProfile(prof profile.Profile, now time.Time) {
	delete(c.availableProfiles, prof)
	c.recalculateEffectiveProfile(now)
}

// SetPreferredProfile changes the consumer's requested target and
// recalculates the effective profile against what is currently available.
func (c *Consumer) SetPreferredProfile(prof profile.Profile, now time.Time) {
	c.preferredProfile = prof
	c.recalculateEffectiveProfile(now)
	if c.vp8Ctx != nil {
		c.vp8Ctx.SetTargetTemporalLayer(int(prof))
	}
}

// EffectiveProfile reports the profile currently being forwarded.
func (c *Consumer) EffectiveProfile() profile.Profile { return c.effectiveProfile }

// recalculateEffectiveProfile picks the highest available profile at or
// below preferred; if none qualifies, the highest available profile of
// any rank; if none is available at all, None. SendRtpPacket has no
// separate None check: it forwards only packets whose profile equals
// effectiveProfile, so while it is None only packets from untagged
// (None-profile) producer encodings are forwarded.
func (c *Consumer) recalculateEffectiveProfile(now time.Time) {
	best := profile.None
	for p := range c.availableProfiles {
		if p <= c.preferredProfile && p > best {
			best = p
		}
	}
	if best == profile.None {
		for p := range c.availableProfiles {
			if p > best {
				best = p
			}
		}
	}

	if best == c.effectiveProfile {
		return
	}
	c.effectiveProfile = best
	c.syncRequired = true
	if c.vp8Ctx != nil {
		c.vp8Ctx.RequestSync()
	}
	if c.observer != nil {
		c.observer.OnConsumerProfileChange(c, best)
	}
}

// Pause stops forwarding and discards the retransmission buffer: stale
// packets would otherwise be handed out once resumed (spec §4.6).
func (c *Consumer) Pause() {
	if c.paused {
		return
	}
	c.paused = true
	if c.send != nil {
		c.send.ClearRetransmissionBuffer()
	}
}

// Resume resumes forwarding and requests a full frame so the decoder can
// recover cleanly; idempotent.
func (c *Consumer) Resume(now time.Time) {
	if !c.paused {
		return
	}
	c.paused = false
	c.syncRequired = true
	if c.vp8Ctx != nil {
		c.vp8Ctx.RequestSync()
	}
	if c.observer != nil {
		c.observer.OnConsumerProfileChange(c, c.effectiveProfile)
	}
}

// IsPaused reports the current pause state.
func (c *Consumer) IsPaused() bool { return c.paused }

// SendRtpPacket is the per-packet forwarding path (spec §4.6 steps 1-8):
// filter by state/pause/profile, apply the codec's payload-descriptor
// handler, rewrite SSRC/sequence for the outbound stream, hand the
// packet to the Transport, then restore the packet to its original
// (producer-side) form so later listeners of the same packet see it
// unmodified.
func (c *Consumer) SendRtpPacket(pkt *rtp.Packet, pktProfile profile.Profile, now time.Time) bool {
	if c.state != stateEnabled || c.paused {
		return false
	}
	if pktProfile != c.effectiveProfile {
		return false
	}

	origSSRC := pkt.SSRC
	origSeq := pkt.SequenceNumber
	origPT := pkt.PayloadType
	origTimestamp := pkt.Timestamp

	var restoreHandler payload.Handler
	if keep := c.applyPayloadHandler(pkt, &restoreHandler); !keep {
		return false
	}

	pkt.SSRC = c.outboundSSRC
	pkt.PayloadType = c.outboundPayloadType

	syncingNow := c.syncRequired
	if c.syncRequired {
		if c.haveSentAny {
			c.seqManager.Sync(c.seqManager.GetMaxOutput())
		}
		c.syncRequired = false
	}

	outSeq, accepted := c.seqManager.Input(uint32(origSeq))
	if !accepted {
		pkt.SSRC = origSSRC
		pkt.PayloadType = origPT
		if restoreHandler != nil {
			restoreHandler.Restore(pkt.Payload)
		}
		return false
	}
	pkt.SequenceNumber = uint16(outSeq)

	switch {
	case !c.haveSentAny:
		c.rtpTimestamp = origTimestamp
	case syncingNow:
		elapsed := now.Sub(c.lastSentAt)
		if elapsed < 0 {
			elapsed = 0
		}
		wallClockTs := c.rtpTimestamp + uint32(elapsed.Seconds()*float64(c.outboundClockRate))
		// two's-complement wraparound comparison: a 32-bit analogue of
		// seq.IsHigher, which only supports widths up to 16.
		if int32(wallClockTs-c.rtpTimestamp) > 0 {
			c.rtpTimestamp = wallClockTs
		}
	default:
		c.rtpTimestamp += origTimestamp - c.lastRecvRtpTimestamp
	}
	c.lastRecvRtpTimestamp = origTimestamp
	pkt.Timestamp = c.rtpTimestamp
	c.lastSentAt = now
	c.haveSentAny = true

	err := c.Transport.SendRtpPacket(pkt)
	if err == nil && c.send != nil {
		c.send.ReceivePacket(pkt, now)
	}

	pkt.SSRC = origSSRC
	pkt.SequenceNumber = origSeq
	pkt.PayloadType = origPT
	pkt.Timestamp = origTimestamp
	if restoreHandler != nil {
		restoreHandler.Restore(pkt.Payload)
	}

	return err == nil
}

// applyPayloadHandler runs the codec-specific descriptor handler for this
// consumer's temporal-layer target, mutating pkt.Payload in place. *out
// receives the handler to call Restore on afterward; left nil for codecs
// with no payload descriptor (e.g. Opus).
func (c *Consumer) applyPayloadHandler(pkt *rtp.Packet, out *payload.Handler) bool {
	switch c.mimeType {
	case "video/VP8":
		d, ok := payload.ParseVP8(pkt.Payload)
		if !ok {
			return true
		}
		h, grown := payload.NewVP8Handler(d, pkt.Payload)
		pkt.Payload = grown
		keep := h.Process(c.vp8Ctx, pkt.Payload)
		*out = h
		return keep
	case "video/H264":
		d, ok := payload.ParseH264(pkt.Payload)
		if !ok {
			return true
		}
		h := payload.NewH264Handler(d)
		keep := h.Process(nil, pkt.Payload)
		*out = h
		return keep
	default:
		return true
	}
}

// ReceiveNack services a TransportLayerNack addressed to this consumer's
// outbound SSRC, returning the retransmittable packets in order.
func (c *Consumer) ReceiveNack(nack *rtcp.TransportLayerNack) []*rtp.Packet {
	if c.send == nil || nack.MediaSSRC != c.outboundSSRC {
		return nil
	}
	var out []*rtp.Packet
	for _, pair := range nack.Nacks {
		out = c.send.RequestRtpRetransmission(pair.PacketID, uint16(pair.LostPackets), out)
	}
	return out
}

// ReceiveRtcpReceiverReport feeds an inbound RR about this consumer's
// outbound stream into its health tracker.
func (c *Consumer) ReceiveRtcpReceiverReport(rr rtcp.ReceptionReport) {
	if c.send != nil {
		c.send.ReceiveRtcpReceiverReport(rr)
	}
}

// GetRtcp builds a compound SR+SDES report, rate-limited to at most one
// per maxRtcpInterval/1.15 (spec §9 open-question decision).
func (c *Consumer) GetRtcp(now time.Time, ntpTime uint64) []rtcp.Packet {
	if c.send == nil {
		return nil
	}
	rtcpIntervalDivisor := 1.15
	minGap := time.Duration(float64(maxRtcpInterval) / rtcpIntervalDivisor)
	if !c.lastRtcpSentAt.IsZero() && now.Sub(c.lastRtcpSentAt) < minGap {
		return nil
	}
	c.lastRtcpSentAt = now

	sr := c.send.GetRtcpSenderReport(now, ntpTime)
	sdes := &rtcp.SourceDescription{Chunks: []rtcp.SourceDescriptionChunk{c.send.SdesChunk()}}
	return []rtcp.Packet{sr, sdes}
}

// Healthy reports whether the outbound stream's most recent RR indicated
// acceptable loss.
func (c *Consumer) Healthy() bool {
	if c.send == nil {
		return true
	}
	return c.send.Healthy()
}

// Close transitions to Disabled and notifies the observer.
func (c *Consumer) Close() {
	if c.state == stateDisabled {
		return
	}
	c.state = stateDisabled
	if c.observer != nil {
		c.observer.OnConsumerClosed(c)
	}
}

// Closed reports whether Close has been called.
func (c *Consumer) Closed() bool { return c.state == stateDisabled }

// Dump produces a plain-data snapshot for the control-plane dump method.
func (c *Consumer) Dump() map[string]interface{} {
	return map[string]interface{}{
		"id":               c.ID,
		"producerId":       c.ProducerID,
		"kind":             c.Kind.String(),
		"paused":           c.paused,
		"closed":           c.Closed(),
		"effectiveProfile": c.effectiveProfile.String(),
		"preferredProfile": c.preferredProfile.String(),
	}
}
