package sfu

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"sfuworker/internal/rtpcore/params"
	"sfuworker/internal/rtpcore/payload"
	"sfuworker/internal/rtpcore/profile"
	"sfuworker/internal/rtpcore/stream"
)

// defaultPliCoalesceWindow bounds outstanding PLI requests to at most one
// per SSRC per window, per spec §4.5, unless overridden by WithPliCoalesceWindow.
const defaultPliCoalesceWindow = 2 * time.Second

// ProducerOption configures optional Producer behaviour at construction
// time, following the same opts-as-functions shape ion-sfu's receiver
// uses for its own PLI throttle.
type ProducerOption func(*Producer)

// WithPliCoalesceWindow overrides how often RequestKeyFrame will issue a
// fresh PLI for the same SSRC; period must be positive.
func WithPliCoalesceWindow(period time.Duration) ProducerOption {
	return func(p *Producer) {
		if period > 0 {
			p.pliCoalesceWindow = period
		}
	}
}

// WithNackAgeWindow overrides the min/max age an unresolved sequence gap
// must fall within before it is eligible for a NACK request (see
// stream.Recv.NackMinAge/NackMaxAge). Zero values leave stream.NewRecv's
// own defaults in place.
func WithNackAgeWindow(minAge, maxAge time.Duration) ProducerOption {
	return func(p *Producer) {
		p.nackMinAge = minAge
		p.nackMaxAge = maxAge
	}
}

// inboundStream pairs one inbound SSRC's health tracker with its codec
// descriptor handler and the profile it was classified to.
type inboundStream struct {
	recv    *stream.Recv
	handler payload.Handler
	profile profile.Profile
}

// Producer owns one or more inbound RtpStreamRecv instances for one
// logical media source, classifies each packet to a simulcast profile,
// and fans it out to subscribed listeners (spec §4.5).
type Producer struct {
	ID        string
	Kind      profile.Kind
	RtpParams params.RtpParameters
	Transport Transport

	streams map[uint32]*inboundStream // ssrc -> stream

	paused bool
	closed bool

	// listeners holds the ids of subscribed Consumers. Producer never
	// holds a Consumer reference directly (spec §9 design note): the
	// Router resolves these ids against its own table during fan-out.
	listeners map[string]struct{}

	profileHealthy map[profile.Profile]bool

	lastPli map[uint32]time.Time

	pliCoalesceWindow time.Duration
	nackMinAge        time.Duration
	nackMaxAge        time.Duration

	observer ProducerObserver
	log      zerolog.Logger
}

// NewProducer constructs a Producer bound to rtpParams, with one inbound
// stream per encoding whose payload type names a known codec. opts are
// applied before those streams are built. Per-consumer temporal-layer
// remapping is not done here; it lives on the Consumer's side handler.
func NewProducer(id string, kind profile.Kind, rtpParams params.RtpParameters, transport Transport, observer ProducerObserver, log zerolog.Logger, opts ...ProducerOption) *Producer {
	p := &Producer{
		ID:                id,
		Kind:              kind,
		RtpParams:         rtpParams,
		Transport:         transport,
		streams:           make(map[uint32]*inboundStream),
		listeners:         make(map[string]struct{}),
		profileHealthy:    make(map[profile.Profile]bool),
		lastPli:           make(map[uint32]time.Time),
		pliCoalesceWindow: defaultPliCoalesceWindow,
		observer:          observer,
		log:               log.With().Str("component", "producer").Str("producerId", id).Logger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	for _, enc := range rtpParams.Encodings {
		codec, ok := rtpParams.CodecForPayloadType(enc.CodecPayloadType)
		if !ok {
			continue
		}
		sp := stream.Params{
			SSRC:        enc.SSRC,
			PayloadType: codec.PayloadType,
			MimeType:    codec.MimeType,
			ClockRate:   codec.ClockRate,
			UseNack:     codec.HasNack(),
			UsePli:      codec.HasPLI(),
			HasRtx:      enc.HasRtx,
			RtxSSRC:     enc.RtxSSRC,
		}
		recv := stream.NewRecv(sp)
		if p.nackMinAge > 0 {
			recv.NackMinAge = p.nackMinAge
		}
		if p.nackMaxAge > 0 {
			recv.NackMaxAge = p.nackMaxAge
		}
		p.streams[enc.SSRC] = &inboundStream{
			recv:    recv,
			handler: nil,
			profile: enc.Profile,
		}
		p.profileHealthy[enc.Profile] = true
	}

	return p
}

// AddListener subscribes a Consumer (by id) to this Producer's packets.
func (p *Producer) AddListener(consumerID string) {
	p.listeners[consumerID] = struct{}{}
}

// RemoveListener unsubscribes a Consumer.
func (p *Producer) RemoveListener(consumerID string) {
	delete(p.listeners, consumerID)
}

// Listeners returns a snapshot of currently subscribed Consumer ids,
// safe to range over even if the set mutates during fan-out (spec §4.7:
// "iterate over a snapshot to tolerate concurrent removal").
func (p *Producer) Listeners() []string {
	out := make([]string, 0, len(p.listeners))
	for id := range p.listeners {
		out = append(out, id)
	}
	return out
}

// classify maps an inbound packet's SSRC to a simulcast profile, either
// directly from its encoding tag or by lookup in the streams table.
func (p *Producer) classify(ssrc uint32) (profile.Profile, bool) {
	s, ok := p.streams[ssrc]
	if !ok {
		return profile.None, false
	}
	return s.profile, true
}

// ReceiveRtpPacket is the entry point for one inbound packet delivered by
// a Transport. Unknown SSRCs are ignored (logged at debug); packets the
// stream tracker rejects (duplicates, out of window) are dropped silently.
func (p *Producer) ReceiveRtpPacket(pkt *rtp.Packet, now time.Time) {
	if p.closed {
		return
	}

	s, ok := p.streams[pkt.SSRC]
	if !ok {
		p.log.Debug().Uint32("ssrc", pkt.SSRC).Msg("unknown ssrc, ignoring")
		return
	}

	if !s.recv.ReceivePacket(pkt, now) {
		return // dropped silently: duplicate or out of window
	}

	if p.paused {
		return
	}

	prof := s.profile

	if s.handler != nil {
		keep := true
		if ctx, hasCtx := producerCodecContext(s); hasCtx {
			keep = s.handler.Process(ctx, pkt.Payload)
		}
		if !keep {
			return
		}
	}

	if p.observer != nil {
		p.observer.OnProducerRtpPacket(p, pkt, prof)
	}

	if s.handler != nil {
		s.handler.Restore(pkt.Payload)
	}
}

// producerCodecContext is a seam for per-producer-stream encoding
// contexts; the base core classifies and forwards without per-consumer
// temporal targeting (that lives on Consumer's own VP8EncodingContext,
// since target layer is a per-consumer preference, not a producer-wide
// one). Kept as a function so a future per-stream context can be plugged
// in without changing ReceiveRtpPacket's shape.
func producerCodecContext(s *inboundStream) (payload.EncodingContext, bool) {
	return nil, false
}

// Pause stops forwarding without tearing down streams.
func (p *Producer) Pause() {
	if p.paused {
		return
	}
	p.paused = true
	if p.observer != nil {
		p.observer.OnProducerPauseChange(p, true)
	}
}

// Resume resumes forwarding.
func (p *Producer) Resume() {
	if !p.paused {
		return
	}
	p.paused = false
	if p.observer != nil {
		p.observer.OnProducerPauseChange(p, false)
	}
}

// IsPaused reports the current pause state.
func (p *Producer) IsPaused() bool { return p.paused }

// RequestKeyFrame asks the producer's source transport for a full frame
// via PLI, coalesced to at most one outstanding request per SSRC per
// pliCoalesceWindow (spec §4.5).
func (p *Producer) RequestKeyFrame(prof profile.Profile, now time.Time) {
	if !p.Kind.SupportsPLI() {
		return
	}
	for ssrc, s := range p.streams {
		if s.profile != prof {
			continue
		}
		last, seen := p.lastPli[ssrc]
		if seen && now.Sub(last) < p.pliCoalesceWindow {
			continue
		}
		p.lastPli[ssrc] = now
		if p.Transport != nil {
			_ = p.Transport.SendRtcp([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
		}
		if p.observer != nil {
			p.observer.OnProducerKeyFrameNeeded(p, prof)
		}
	}
}

// ReceiveRtcpReceiverReport feeds an inbound RR (about this producer's
// own outbound RTX traffic, if any) — kept symmetrical with Consumer's
// equivalent entry point; this core's producers emit no RTX of their
// own, so this is a no-op placeholder reserved for future extension.
func (p *Producer) ReceiveRtcpReceiverReport(rr rtcp.ReceptionReport) {}

// Close marks the producer closed, so later packets are ignored, and
// notifies the observer, which cascades to close every subscribed
// Consumer. The inbound stream trackers are kept, not released.
func (p *Producer) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if p.observer != nil {
		p.observer.OnProducerClosed(p)
	}
}

// Closed reports whether Close has been called.
func (p *Producer) Closed() bool { return p.closed }

// StreamHealth returns the health verdict for the inbound stream
// carrying prof, or false if no such stream exists.
func (p *Producer) StreamHealth(prof profile.Profile) bool {
	for _, s := range p.streams {
		if s.profile == prof {
			return s.recv.Healthy()
		}
	}
	return false
}

// Dump produces a plain-data snapshot for the control-plane dump method
// and the debug HTTP surface.
func (p *Producer) Dump() map[string]interface{} {
	streamIDs := make([]uint32, 0, len(p.streams))
	for ssrc := range p.streams {
		streamIDs = append(streamIDs, ssrc)
	}
	return map[string]interface{}{
		"id":        p.ID,
		"kind":      p.Kind.String(),
		"paused":    p.paused,
		"closed":    p.closed,
		"listeners": p.Listeners(),
		"ssrcs":     streamIDs,
	}
}
