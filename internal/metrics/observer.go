package metrics

import (
	"github.com/pion/rtp"

	"sfuworker/internal/rtpcore/profile"
	"sfuworker/internal/sfu"
)

// ObservingRouter decorates a *sfu.Router so every fan-out/cascade event
// also updates the Registry, without the sfu package importing
// prometheus itself. It satisfies sfu.ProducerObserver/ConsumerObserver
// by embedding the router and overriding the methods metrics care
// about. It is used as the observer passed to sfu.NewProducer/
// sfu.NewConsumer (control.Dispatcher does this), not as a replacement
// for Router itself.
type ObservingRouter struct {
	*sfu.Router
	reg *Registry
}

// Wrap returns an observer that forwards to router and records metrics.
func Wrap(router *sfu.Router, reg *Registry) *ObservingRouter {
	return &ObservingRouter{Router: router, reg: reg}
}

// OnProducerRtpPacket records acceptance before delegating to the
// wrapped router's fan-out.
func (o *ObservingRouter) OnProducerRtpPacket(p *sfu.Producer, pkt *rtp.Packet, prof profile.Profile) {
	o.reg.PacketsReceived.WithLabelValues(p.ID, prof.String()).Inc()
	o.Router.OnProducerRtpPacket(p, pkt, prof)
}

// OnProducerKeyFrameNeeded records the request before delegating.
func (o *ObservingRouter) OnProducerKeyFrameNeeded(p *sfu.Producer, prof profile.Profile) {
	o.reg.PliRequested.WithLabelValues(p.ID, prof.String()).Inc()
	o.Router.OnProducerKeyFrameNeeded(p, prof)
}

// OnConsumerProfileChange records the new effective rank before
// delegating (the delegate also raises the keyframe request).
func (o *ObservingRouter) OnConsumerProfileChange(c *sfu.Consumer, prof profile.Profile) {
	o.reg.EffectiveProfile.WithLabelValues(c.ID).Set(float64(prof))
	if prof != profile.None {
		o.reg.KeyFramesRequested.WithLabelValues(c.ProducerID, prof.String()).Inc()
	}
	o.Router.OnConsumerProfileChange(c, prof)
}
