// Package stream implements per-SSRC RTP stream health tracking
// (RtpStreamRecv) and per-SSRC retransmission/SR bookkeeping
// (RtpStreamSend), the two halves of §4.2/§4.3.
package stream

import "time"

// Params is the immutable configuration of one RtpStream, inbound or
// outbound.
type Params struct {
	SSRC           uint32
	PayloadType    uint8
	MimeType       string
	ClockRate      uint32
	UseNack        bool
	UsePli         bool
	HasRtx         bool
	RtxPayloadType uint8
	RtxSSRC        uint32
	CName          string
}

// Base carries the state every RtpStream — send or receive — maintains:
// highest observed sequence (wrap-aware), base sequence/timestamp for SR
// math, packet/byte counters and last-activity time.
type Base struct {
	Params Params

	started    bool
	baseSeq    uint16
	maxSeq     uint16
	cycles     uint32 // count of 16-bit wraps observed
	baseTs     uint32

	PacketCount uint32
	ByteCount   uint64

	LastActivity time.Time
}

// ExtendedMaxSeq returns the 32-bit wrap-extended highest sequence number
// observed so far.
func (b *Base) ExtendedMaxSeq() uint32 {
	return b.cycles<<16 | uint32(b.maxSeq)
}

// extend maps a 16-bit wire sequence number onto the running extended
// (32-bit) space, bumping the wrap counter when the wire value wraps
// below the previous maximum by RFC 1982 serial-number comparison.
func (b *Base) extend(seq uint16) uint32 {
	if !b.started {
		return uint32(seq)
	}
	const half = 1 << 15
	prev := b.maxSeq
	if seq < prev && prev-seq > half {
		// seq wrapped forward past 65535->0
		return (b.cycles+1)<<16 | uint32(seq)
	}
	if seq > prev && seq-prev > half {
		// seq is an old, pre-wrap value arriving late
		if b.cycles == 0 {
			return uint32(seq)
		}
		return (b.cycles-1)<<16 | uint32(seq)
	}
	return b.cycles<<16 | uint32(seq)
}

func (b *Base) observeAdvance(seq uint16) {
	if !b.started {
		b.started = true
		b.baseSeq = seq
		b.maxSeq = seq
		return
	}
	if seq < b.maxSeq && b.maxSeq-seq > (1<<15) {
		b.cycles++
	}
	b.maxSeq = seq
}
