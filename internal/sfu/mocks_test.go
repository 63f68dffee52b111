package sfu

import (
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"sfuworker/internal/rtpcore/profile"
)

// fakeTransport is a hand-written test double; this core's fan-out tests
// care about what crossed the wire, not how ICE/DTLS/SRTP got it there.
type fakeTransport struct {
	sentRtp  []*rtp.Packet
	sentRtcp [][]rtcp.Packet
	failNext bool
}

func (f *fakeTransport) SendRtpPacket(packet *rtp.Packet) error {
	if f.failNext {
		f.failNext = false
		return errSendFailed
	}
	clone := *packet
	clone.Payload = append([]byte(nil), packet.Payload...)
	f.sentRtp = append(f.sentRtp, &clone)
	return nil
}

func (f *fakeTransport) SendRtcp(packets []rtcp.Packet) error {
	f.sentRtcp = append(f.sentRtcp, packets)
	return nil
}

// recordingObserver implements ProducerObserver + ConsumerObserver,
// recording every callback invocation for assertions.
type recordingObserver struct {
	forwarded       []*rtp.Packet
	keyFramesByProf []string
	producerClosed  []string
	consumerClosed  []string
	profileChanges  []string
}

func (o *recordingObserver) OnProducerRtpPacket(p *Producer, pkt *rtp.Packet, prof profile.Profile) {
	o.forwarded = append(o.forwarded, pkt)
}

func (o *recordingObserver) OnProducerKeyFrameNeeded(p *Producer, prof profile.Profile) {
	o.keyFramesByProf = append(o.keyFramesByProf, prof.String())
}

func (o *recordingObserver) OnProducerPauseChange(p *Producer, paused bool) {}

func (o *recordingObserver) OnProducerClosed(p *Producer) {
	o.producerClosed = append(o.producerClosed, p.ID)
}

func (o *recordingObserver) OnConsumerClosed(c *Consumer) {
	o.consumerClosed = append(o.consumerClosed, c.ID)
}

func (o *recordingObserver) OnConsumerProfileChange(c *Consumer, prof profile.Profile) {
	o.profileChanges = append(o.profileChanges, c.ID+":"+prof.String())
}

var errSendFailed = &ResourceError{Op: "fakeTransport.SendRtpPacket"}
