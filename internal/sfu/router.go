package sfu

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"sfuworker/internal/rtpcore/profile"
)

// Router is one Room: an id-keyed table of Producers and Consumers plus
// the subscription edges between them (spec §4.7). It implements
// ProducerObserver and ConsumerObserver itself so it is the only type in
// this core holding both sides of a cross-reference, and only ever as
// string ids, never pointers held by the entities themselves.
type Router struct {
	ID string

	producers map[string]*Producer
	consumers map[string]*Consumer

	// consumersByProducer mirrors each Producer's own listener id-set so
	// the Router can resolve ids to live *Consumer values during fan-out
	// without Producer ever importing the Consumer type.
	consumersByProducer map[string]map[string]struct{}

	healthObserver RtpStreamHealthObserver

	// notify, when set, receives the (targetId, event, data) triples the
	// control-plane channel surfaces as Notifications (spec §6's
	// "Emitted events"). Nil by default so Router is usable standalone in
	// tests without a channel attached.
	notify func(targetID, event string, data interface{})

	log zerolog.Logger
}

// NewRouter constructs an empty Room.
func NewRouter(id string, log zerolog.Logger) *Router {
	return &Router{
		ID:                  id,
		producers:           make(map[string]*Producer),
		consumers:           make(map[string]*Consumer),
		consumersByProducer: make(map[string]map[string]struct{}),
		log:                 log.With().Str("component", "router").Str("routerId", id).Logger(),
	}
}

// AddProducer registers p under this router with an empty subscriber set.
// It does not change p's observer, which is fixed by NewProducer.
func (r *Router) AddProducer(p *Producer) {
	r.producers[p.ID] = p
	r.consumersByProducer[p.ID] = make(map[string]struct{})
}

// AddConsumer registers c, subscribing it to its ProducerID's fan-out.
// Returns false if the referenced producer does not exist.
func (r *Router) AddConsumer(c *Consumer) bool {
	if _, ok := r.producers[c.ProducerID]; !ok {
		return false
	}
	r.consumers[c.ID] = c
	r.consumersByProducer[c.ProducerID][c.ID] = struct{}{}
	return true
}

// Producer looks up a registered producer by id.
func (r *Router) Producer(id string) (*Producer, bool) {
	p, ok := r.producers[id]
	return p, ok
}

// Consumer looks up a registered consumer by id.
func (r *Router) Consumer(id string) (*Consumer, bool) {
	c, ok := r.consumers[id]
	return c, ok
}

// OnProducerRtpPacket implements ProducerObserver: it is the single
// fan-out point, called once per accepted inbound packet. It takes a
// snapshot of subscriber ids before iterating so a Consumer closing (and
// removing itself) mid-delivery cannot corrupt the in-flight range (spec
// §4.7's "short-lived borrow of the listener id-set").
func (r *Router) OnProducerRtpPacket(p *Producer, pkt *rtp.Packet, prof profile.Profile) {
	subs, ok := r.consumersByProducer[p.ID]
	if !ok || len(subs) == 0 {
		return
	}
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}

	now := time.Now()
	for _, id := range ids {
		c, ok := r.consumers[id]
		if !ok {
			continue
		}
		c.SendRtpPacket(pkt, prof, now)
	}
}

// OnProducerPauseChange implements ProducerObserver: mirrors the pause
// state toward every subscribed Consumer as a sourcepaused/sourceresumed
// notification (spec §6).
func (r *Router) OnProducerPauseChange(p *Producer, paused bool) {
	event := "sourceresumed"
	if paused {
		event = "sourcepaused"
	}
	for id := range r.consumersByProducer[p.ID] {
		r.emit(id, event, nil)
	}
}

// OnProducerKeyFrameNeeded implements ProducerObserver; this core has no
// additional bookkeeping beyond what Producer.RequestKeyFrame already
// performed, so this is a log hook reserved for future metrics wiring.
func (r *Router) OnProducerKeyFrameNeeded(p *Producer, prof profile.Profile) {
	r.log.Debug().Str("producerId", p.ID).Str("profile", prof.String()).Msg("key frame requested")
}

// OnProducerClosed implements ProducerObserver: cascades closure to every
// subscribed Consumer (spec §4.7 invariant: "closing a Producer closes
// every Consumer subscribed to it").
func (r *Router) OnProducerClosed(p *Producer) {
	subs := r.consumersByProducer[p.ID]
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if c, ok := r.consumers[id]; ok {
			c.Close()
		}
	}
	delete(r.consumersByProducer, p.ID)
	delete(r.producers, p.ID)
	r.emit(p.ID, "close", nil)
}

// OnConsumerClosed implements ConsumerObserver: removes the Consumer from
// both tables.
func (r *Router) OnConsumerClosed(c *Consumer) {
	delete(r.consumers, c.ID)
	if subs, ok := r.consumersByProducer[c.ProducerID]; ok {
		delete(subs, c.ID)
	}
	r.emit(c.ID, "close", nil)
}

// OnConsumerProfileChange implements ConsumerObserver: a profile switch
// (or a resume) needs a fresh key frame from the producer's matching
// layer before the new stream is useful to the decoder.
func (r *Router) OnConsumerProfileChange(c *Consumer, prof profile.Profile) {
	r.emit(c.ID, "effectiveprofilechange", map[string]string{"profile": prof.String()})
	p, ok := r.producers[c.ProducerID]
	if !ok || prof == profile.None {
		return
	}
	p.RequestKeyFrame(prof, time.Now())
}

// SetHealthObserver installs the sink for per-stream health transitions
// (app.Run installs the metrics health gauge here). Router itself does
// not push into it.
func (r *Router) SetHealthObserver(o RtpStreamHealthObserver) {
	r.healthObserver = o
}

// SetNotifier installs the sink for the control-plane's emitted events
// (spec §6). fn receives (targetId, event, data).
func (r *Router) SetNotifier(fn func(targetID, event string, data interface{})) {
	r.notify = fn
}

func (r *Router) emit(targetID, event string, data interface{}) {
	if r.notify != nil {
		r.notify(targetID, event, data)
	}
}

// DispatchRtcpFeedback routes one inbound RTCP packet received on the
// named Consumer's transport: a NACK is served from that Consumer's
// retransmission ring (the returned packets), RR blocks naming its
// outbound SSRC feed its health tracker, and a PLI becomes a key-frame
// request to its source Producer. Other packet types, and RTCP arriving
// on a Producer's transport, are not handled here.
func (r *Router) DispatchRtcpFeedback(consumerID string, pkt rtcp.Packet) []*rtp.Packet {
	c, ok := r.consumers[consumerID]
	if !ok {
		return nil
	}
	switch p := pkt.(type) {
	case *rtcp.TransportLayerNack:
		return c.ReceiveNack(p)
	case *rtcp.ReceiverReport:
		for _, rr := range p.Reports {
			if rr.SSRC == c.outboundSSRC {
				c.ReceiveRtcpReceiverReport(rr)
			}
		}
	case *rtcp.PictureLossIndication:
		if prod, ok := r.producers[c.ProducerID]; ok {
			prod.RequestKeyFrame(c.EffectiveProfile(), time.Now())
		}
	}
	return nil
}

// Dump produces a plain-data snapshot of the whole room for the
// control-plane dump method and the debug HTTP surface.
func (r *Router) Dump() map[string]interface{} {
	producers := make([]map[string]interface{}, 0, len(r.producers))
	for _, p := range r.producers {
		producers = append(producers, p.Dump())
	}
	consumers := make([]map[string]interface{}, 0, len(r.consumers))
	for _, c := range r.consumers {
		consumers = append(consumers, c.Dump())
	}
	return map[string]interface{}{
		"id":        r.ID,
		"producers": producers,
		"consumers": consumers,
	}
}
