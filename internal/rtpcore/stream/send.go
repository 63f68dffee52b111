package stream

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// storageItem is one slot of the retransmission ring: a cloned packet plus
// bookkeeping mirroring original_source's RtpStreamSend::StorageItem.
type storageItem struct {
	packet     *rtp.Packet
	seq        uint16
	resentAt   time.Time
	sentTimes  uint8
	rtxEncoded bool
	valid      bool
}

// Send tracks one outbound SSRC: retransmission ring, RTX encoding, and
// SR/SDES emission (spec §4.3).
type Send struct {
	Base

	capacity int
	ring     []storageItem

	rtxSeq uint16

	transmitted   counters
	retransmitted counters

	lastRrTimestamp  uint32
	lastRrReceivedMs time.Time

	lostPriorScore uint32
	sentPriorScore uint32
	lastHealthy    bool
}

type counters struct {
	packets uint32
	octets  uint64
}

func (c *counters) update(n int) {
	c.packets++
	c.octets += uint64(n)
}

// NewSend constructs a send-side stream tracker with the given ring
// capacity (0 disables retransmission, e.g. audio streams per spec §3).
func NewSend(p Params, capacity int) *Send {
	s := &Send{
		Base:        Base{Params: p},
		capacity:    capacity,
		lastHealthy: true,
	}
	if capacity > 0 {
		s.ring = make([]storageItem, capacity)
	}
	return s
}

// ReceivePacket records one emitted packet into the retransmission ring
// and updates counters. It accepts every packet carrying this stream's
// SSRC (send-side has no gap detection) and returns false, storing
// nothing, for a packet carrying any other SSRC.
func (s *Send) ReceivePacket(pkt *rtp.Packet, now time.Time) bool {
	if pkt.SSRC != s.Params.SSRC {
		return false
	}
	s.observeAdvance(pkt.SequenceNumber)
	s.PacketCount++
	s.ByteCount += uint64(len(pkt.Payload)) + 12
	s.LastActivity = now
	s.transmitted.update(len(pkt.Payload) + 12)

	s.store(pkt)
	return true
}

func (s *Send) store(pkt *rtp.Packet) {
	if s.capacity == 0 {
		return
	}
	idx := int(pkt.SequenceNumber) % s.capacity
	clone := *pkt
	clone.Payload = append([]byte(nil), pkt.Payload...)
	s.ring[idx] = storageItem{packet: &clone, seq: pkt.SequenceNumber, valid: true}
}

// ClearRetransmissionBuffer discards the ring: used on pause or profile
// change where stale retransmissions would be harmful (spec §4.3).
func (s *Send) ClearRetransmissionBuffer() {
	for i := range s.ring {
		s.ring[i] = storageItem{}
	}
}

// RequestRtpRetransmission walks the 17-bit NACK window described by
// packetID and bitmask and appends available originals (RTX-encoded when
// configured) to out, in order. Missing entries are simply skipped: the
// invariant is "silent drop, not retransmission of stale data" (spec §3
// invariant 6), so callers should not expect a nil-sentinel per slot.
func (s *Send) RequestRtpRetransmission(packetID uint16, bitmask uint16, out []*rtp.Packet) []*rtp.Packet {
	if s.capacity == 0 {
		return out
	}

	seqs := []uint16{packetID}
	for i := 0; i < 16; i++ {
		if bitmask&(1<<uint(i)) != 0 {
			seqs = append(seqs, packetID+uint16(i)+1)
		}
	}

	for _, seq := range seqs {
		item := s.ring[int(seq)%s.capacity]
		if !item.valid || item.seq != seq {
			continue // outside window or never stored: silent drop
		}
		pkt := item.packet
		if s.Params.HasRtx {
			out = append(out, s.RtxEncode(pkt))
		} else {
			clone := *pkt
			clone.Payload = append([]byte(nil), pkt.Payload...)
			out = append(out, &clone)
		}
		s.retransmitted.update(len(pkt.Payload) + 12)
	}

	return out
}

// RtxEncode produces an RFC 4588 clone: rtx SSRC, rtx payload type, and
// the original sequence number prefixed onto the payload.
func (s *Send) RtxEncode(pkt *rtp.Packet) *rtp.Packet {
	clone := *pkt
	clone.SSRC = s.Params.RtxSSRC
	clone.PayloadType = s.Params.RtxPayloadType
	clone.SequenceNumber = s.nextRtxSeq()

	body := make([]byte, 2+len(pkt.Payload))
	body[0] = byte(pkt.SequenceNumber >> 8)
	body[1] = byte(pkt.SequenceNumber)
	copy(body[2:], pkt.Payload)
	clone.Payload = body

	return &clone
}

func (s *Send) nextRtxSeq() uint16 {
	seq := s.rtxSeq
	s.rtxSeq++
	return seq
}

// GetRtcpSenderReport builds an RTCP SR for this stream at time now.
func (s *Send) GetRtcpSenderReport(now time.Time, ntpTime uint64) *rtcp.SenderReport {
	return &rtcp.SenderReport{
		SSRC:        s.Params.SSRC,
		NTPTime:     ntpTime,
		RTPTime:     s.rtpTimestampAt(now),
		PacketCount: s.PacketCount,
		OctetCount:  uint32(s.ByteCount),
	}
}

func (s *Send) rtpTimestampAt(now time.Time) uint32 {
	if s.Params.ClockRate == 0 {
		return s.baseTs
	}
	elapsed := now.Sub(s.LastActivity)
	return s.baseTs + uint32(elapsed.Seconds()*float64(s.Params.ClockRate))
}

// SdesChunk builds the SDES chunk carrying this stream's CNAME, emitted
// as a separate compound-packet part alongside the SR (spec §4.6).
func (s *Send) SdesChunk() rtcp.SourceDescriptionChunk {
	return rtcp.SourceDescriptionChunk{
		Source: s.Params.SSRC,
		Items: []rtcp.SourceDescriptionItem{
			{Type: rtcp.SDESCNAME, Text: s.Params.CName},
		},
	}
}

// ReceiveRtcpReceiverReport records the score inputs needed for a
// delta-based health report (original_source's lostPriorScore/
// sentPriorScore pattern).
func (s *Send) ReceiveRtcpReceiverReport(rr rtcp.ReceptionReport) {
	lostNow := rr.TotalLost
	sentNow := s.PacketCount

	var healthy bool
	if sentNow > s.sentPriorScore {
		healthy = rr.FractionLost < 64
	} else {
		healthy = true
	}
	_ = lostNow
	s.lostPriorScore = rr.TotalLost
	s.sentPriorScore = sentNow
	s.lastHealthy = healthy
}

// ReceiveRtcpReceiverReferenceTime records the wall-clock arrival of an
// RTCP Receiver Reference Time report for LSR/DLSR bookkeeping on a
// future extended report (spec §9 supplement 1).
func (s *Send) ReceiveRtcpReceiverReferenceTime(ntpMiddle32 uint32, now time.Time) {
	s.lastRrTimestamp = ntpMiddle32
	s.lastRrReceivedMs = now
}

// Healthy reports the most recently computed RR-derived health verdict.
func (s *Send) Healthy() bool { return s.lastHealthy }

// TransmittedPackets/Octets and RetransmittedPackets/Octets expose the
// counters split per spec §9 supplement 2.
func (s *Send) TransmittedPackets() uint32    { return s.transmitted.packets }
func (s *Send) TransmittedOctets() uint64     { return s.transmitted.octets }
func (s *Send) RetransmittedPackets() uint32  { return s.retransmitted.packets }
func (s *Send) RetransmittedOctets() uint64   { return s.retransmitted.octets }
