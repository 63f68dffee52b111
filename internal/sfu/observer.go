package sfu

import (
	"github.com/pion/rtp"

	"sfuworker/internal/rtpcore/profile"
)

// ProducerObserver replaces the source's polymorphic listener interface
// (spec §9 design note) with a small set of explicit callbacks. The
// Router implements this; no other polymorphic dispatch is needed.
type ProducerObserver interface {
	OnProducerRtpPacket(p *Producer, pkt *rtp.Packet, prof profile.Profile)
	OnProducerKeyFrameNeeded(p *Producer, prof profile.Profile)
	OnProducerPauseChange(p *Producer, paused bool)
	OnProducerClosed(p *Producer)
}

// ConsumerObserver is the Consumer-side analogue.
type ConsumerObserver interface {
	OnConsumerClosed(c *Consumer)
	OnConsumerProfileChange(c *Consumer, prof profile.Profile)
}

// RtpStreamHealthObserver matches spec §7's
// "OnRtpStreamHealthReport(stream, healthy)" callback.
type RtpStreamHealthObserver interface {
	OnRtpStreamHealthReport(streamID string, healthy bool)
}
