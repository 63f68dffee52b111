package sfu

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfuworker/internal/rtpcore/profile"
)

func newTestRouterWithOneSubscription(t *testing.T) (*Router, *Producer, *Consumer, *fakeTransport) {
	t.Helper()
	r := NewRouter("room1", zerolog.Nop())

	producerTransport := &fakeTransport{}
	p := NewProducer("prod1", profile.Audio, testRtpParams(), producerTransport, r, zerolog.Nop())
	r.AddProducer(p)

	consumerTransport := &fakeTransport{}
	c := NewConsumer("cons1", "prod1", profile.Audio, consumerTransport, r, zerolog.Nop())
	require.NoError(t, c.Enable(consumerRtpParams("audio/opus", 111, 5001)))
	c.AddProfile(profile.Default, time.Now())

	require.True(t, r.AddConsumer(c))
	p.AddListener(c.ID)

	return r, p, c, consumerTransport
}

func TestRouterFansOutPacketToSubscribedConsumer(t *testing.T) {
	_, p, _, consumerTransport := newTestRouterWithOneSubscription(t)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1001, SequenceNumber: 1, Timestamp: 1000, PayloadType: 111}, Payload: []byte{0x01}}
	p.ReceiveRtpPacket(pkt, time.Now())

	require.Len(t, consumerTransport.sentRtp, 1)
	assert.Equal(t, uint32(5001), consumerTransport.sentRtp[0].SSRC)
}

func TestRouterAddConsumerRejectsUnknownProducer(t *testing.T) {
	r := NewRouter("room1", zerolog.Nop())
	c := NewConsumer("cons1", "ghost", profile.Audio, &fakeTransport{}, r, zerolog.Nop())
	require.NoError(t, c.Enable(consumerRtpParams("audio/opus", 111, 5001)))

	assert.False(t, r.AddConsumer(c))
}

func TestRouterCascadeClosesConsumersOnProducerClose(t *testing.T) {
	r, p, c, _ := newTestRouterWithOneSubscription(t)

	p.Close()

	assert.True(t, c.Closed())
	_, stillThere := r.Consumer(c.ID)
	assert.False(t, stillThere)
	_, producerStillThere := r.Producer(p.ID)
	assert.False(t, producerStillThere)
}

func TestRouterRemovesConsumerOnItsOwnClose(t *testing.T) {
	r, _, c, _ := newTestRouterWithOneSubscription(t)

	c.Close()

	_, ok := r.Consumer(c.ID)
	assert.False(t, ok)
}

func TestRouterProfileChangeRequestsKeyFrameFromProducer(t *testing.T) {
	r := NewRouter("room1", zerolog.Nop())
	producerTransport := &fakeTransport{}
	p := NewProducer("prod1", profile.Video, testRtpParams(), producerTransport, r, zerolog.Nop())
	r.AddProducer(p)

	c := NewConsumer("cons1", "prod1", profile.Video, &fakeTransport{}, r, zerolog.Nop())
	require.NoError(t, c.Enable(consumerRtpParams("video/VP8", 96, 5001)))
	require.True(t, r.AddConsumer(c))
	p.AddListener(c.ID)

	c.AddProfile(profile.Default, time.Now())
	c.SetPreferredProfile(profile.Default, time.Now())

	assert.NotEmpty(t, producerTransport.sentRtcp, "a profile change must trigger a PLI toward the producer")
}

func TestRouterDispatchRtcpNackRoutesToConsumer(t *testing.T) {
	r, _, c, transport := newTestRouterWithOneSubscription(t)

	now := time.Now()
	for i := uint16(0); i < 3; i++ {
		pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1001, SequenceNumber: i, Timestamp: uint32(i) * 160, PayloadType: 111}, Payload: []byte{0x01}}
		require.True(t, c.SendRtpPacket(pkt, profile.Default, now))
	}
	outSeq := transport.sentRtp[1].SequenceNumber

	nack := &rtcp.TransportLayerNack{
		MediaSSRC: 5001,
		Nacks:     []rtcp.NackPair{{PacketID: outSeq, LostPackets: 0}},
	}
	out := r.DispatchRtcpFeedback(c.ID, nack)
	require.Len(t, out, 1)
	// RTX (RFC 4588) carries the original outbound seq as a 2-byte payload prefix.
	assert.Equal(t, outSeq, uint16(out[0].Payload[0])<<8|uint16(out[0].Payload[1]))
}
