package stream

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendParams() Params {
	return Params{
		SSRC: 2000, PayloadType: 96, MimeType: "video/VP8", ClockRate: 90000,
		UseNack: true, UsePli: true, HasRtx: true, RtxPayloadType: 97, RtxSSRC: 2001,
	}
}

// sendPkt is pkt() addressed to sendParams()'s SSRC, which Send.ReceivePacket
// requires before it stores or counts a packet.
func sendPkt(seq uint16, ts uint32) *rtp.Packet {
	p := pkt(seq, ts)
	p.SSRC = sendParams().SSRC
	return p
}

func TestSendStoresAndRetransmitsWithinWindow(t *testing.T) {
	s := NewSend(sendParams(), 750)
	now := time.Now()

	for i := uint16(100); i <= 105; i++ {
		s.ReceivePacket(sendPkt(i, uint32(i)*3600), now)
	}

	retransmitted := s.RequestRtpRetransmission(101, 0, nil)
	require.Len(t, retransmitted, 1)
	assert.EqualValues(t, 2001, retransmitted[0].SSRC)
	assert.EqualValues(t, 97, retransmitted[0].PayloadType)
	gotSeq := uint16(retransmitted[0].Payload[0])<<8 | uint16(retransmitted[0].Payload[1])
	assert.EqualValues(t, 101, gotSeq)
}

func TestSendOutsideWindowYieldsNoRetransmission(t *testing.T) {
	s := NewSend(sendParams(), 4)
	now := time.Now()

	for i := uint16(100); i <= 110; i++ {
		s.ReceivePacket(sendPkt(i, uint32(i)*3600), now)
	}

	out := s.RequestRtpRetransmission(100, 0, nil)
	assert.Len(t, out, 0)
}

func TestClearRetransmissionBufferDropsAll(t *testing.T) {
	s := NewSend(sendParams(), 750)
	now := time.Now()
	s.ReceivePacket(sendPkt(100, 9000), now)

	s.ClearRetransmissionBuffer()

	out := s.RequestRtpRetransmission(100, 0, nil)
	assert.Len(t, out, 0)
}

func TestRtxEncodePrefixesOriginalSeq(t *testing.T) {
	s := NewSend(sendParams(), 750)
	original := pkt(555, 9000)

	clone := s.RtxEncode(original)
	assert.EqualValues(t, 2001, clone.SSRC)
	assert.EqualValues(t, 97, clone.PayloadType)
	gotSeq := uint16(clone.Payload[0])<<8 | uint16(clone.Payload[1])
	assert.EqualValues(t, 555, gotSeq)
}

func TestAudioStreamHasNoRetransmissionBuffer(t *testing.T) {
	s := NewSend(Params{SSRC: 3000, ClockRate: 48000}, 0)
	now := time.Now()
	s.ReceivePacket(pkt(1, 1), now)

	out := s.RequestRtpRetransmission(1, 0, nil)
	assert.Len(t, out, 0)
}

func TestSenderReportCounters(t *testing.T) {
	s := NewSend(sendParams(), 750)
	now := time.Now()
	for i := uint16(0); i < 5; i++ {
		s.ReceivePacket(sendPkt(100+i, uint32(i)*3600), now)
	}
	sr := s.GetRtcpSenderReport(now, 123456789)
	assert.EqualValues(t, 5, sr.PacketCount)
	assert.EqualValues(t, 2000, sr.SSRC)
}
