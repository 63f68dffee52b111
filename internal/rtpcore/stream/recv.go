package stream

import (
	"math"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

const (
	// reorderWindow bounds how many extended sequence numbers of history
	// the gap/loss detector keeps, per spec §3 ("~2500 entries").
	reorderWindow = 2500

	// defaultNackMinAge is the default "recent enough" floor before a gap
	// is worth NACKing (configurable per spec §9 open questions).
	defaultNackMinAge = 20 * time.Millisecond
	// defaultNackMaxAge is the retransmission-useful horizon: older gaps
	// are abandoned rather than endlessly re-requested.
	defaultNackMaxAge = 2 * time.Second
)

// nackItem tracks one pending retransmission request.
type nackItem struct {
	extSeq     uint32
	firstSeen  time.Time
	lastSentAt time.Time
	sentTimes  int
}

// HealthReport summarises the RR-derived health of a stream for
// OnRtpStreamHealthReport consumers (spec §7).
type HealthReport struct {
	FractionLost uint8
	Healthy      bool
}

// Recv tracks one inbound SSRC: sequence continuity, loss, jitter, and
// NACK scheduling (spec §4.2).
type Recv struct {
	Base

	seen map[uint32]struct{} // bounded reorder/dup-detection window

	cumulativeLost   int64
	expectedAtLastRR uint32
	receivedAtLastRR uint32

	jitter       float64
	lastTransit  int64
	haveTransit  bool

	pending []nackItem

	NackMinAge time.Duration
	NackMaxAge time.Duration

	lastSR struct {
		ntp        uint64
		receivedAt time.Time
		valid      bool
	}

	duplicates uint64
	discarded  uint64

	healthy bool
}

// NewRecv constructs a receive-side stream tracker.
func NewRecv(p Params) *Recv {
	return &Recv{
		Base:       Base{Params: p},
		seen:       make(map[uint32]struct{}, reorderWindow),
		NackMinAge: defaultNackMinAge,
		NackMaxAge: defaultNackMaxAge,
		healthy:    true,
	}
}

// ReceivePacket updates health state for one inbound packet. It returns
// false when the packet was dropped (duplicate, wildly out of window, or
// otherwise invalid) and true when it was accepted into stream state.
func (r *Recv) ReceivePacket(pkt *rtp.Packet, now time.Time) bool {
	if pkt.SSRC != r.Params.SSRC {
		return false
	}

	ext := r.extend(pkt.SequenceNumber)

	if !r.started {
		r.observeAdvance(pkt.SequenceNumber)
		r.baseTs = pkt.Timestamp
		r.markSeen(ext)
		r.updateCounters(pkt, now)
		r.updateJitter(pkt, now)
		return true
	}

	if _, dup := r.seen[ext]; dup {
		r.duplicates++
		return false
	}

	maxExt := r.ExtendedMaxSeq()

	if ext > maxExt {
		// New high watermark: anything strictly between the old max and
		// this packet (exclusive/exclusive) is a gap worth NACKing.
		for missing := maxExt + 1; missing < ext; missing++ {
			r.scheduleNack(missing, now)
		}
		r.observeAdvance(pkt.SequenceNumber)
		r.markSeen(ext)
		r.updateCounters(pkt, now)
		r.updateJitter(pkt, now)
		return true
	}

	// Reordered packet: behind the high watermark but ahead of the window.
	if maxExt-ext > reorderWindow {
		r.discarded++
		return false
	}

	r.satisfyNack(ext)
	r.markSeen(ext)
	r.updateCounters(pkt, now)
	return true
}

func (r *Recv) markSeen(ext uint32) {
	r.seen[ext] = struct{}{}
	if len(r.seen) > reorderWindow {
		floor := r.ExtendedMaxSeq() - reorderWindow
		for k := range r.seen {
			if k < floor {
				delete(r.seen, k)
			}
		}
	}
}

func (r *Recv) updateCounters(pkt *rtp.Packet, now time.Time) {
	r.PacketCount++
	r.ByteCount += uint64(len(pkt.Payload)) + 12
	r.LastActivity = now
}

// updateJitter implements the RFC 3550 §6.4.1 running estimator.
func (r *Recv) updateJitter(pkt *rtp.Packet, now time.Time) {
	if r.Params.ClockRate == 0 {
		return
	}
	arrival := int64(now.UnixNano()) * int64(r.Params.ClockRate) / int64(time.Second)
	transit := arrival - int64(pkt.Timestamp)

	if r.haveTransit {
		d := transit - r.lastTransit
		if d < 0 {
			d = -d
		}
		r.jitter += (float64(d) - r.jitter) / 16.0
	}
	r.lastTransit = transit
	r.haveTransit = true
}

// Jitter returns the current RFC 3550 jitter estimate in RTP clock units.
func (r *Recv) Jitter() uint32 {
	return uint32(math.Round(r.jitter))
}

func (r *Recv) scheduleNack(extSeq uint32, now time.Time) {
	for _, it := range r.pending {
		if it.extSeq == extSeq {
			return
		}
	}
	r.pending = append(r.pending, nackItem{extSeq: extSeq, firstSeen: now})
}

func (r *Recv) satisfyNack(extSeq uint32) {
	for i, it := range r.pending {
		if it.extSeq == extSeq {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// Tick runs periodic RTCP emission: NACK feedback for gaps older than
// NackMinAge but younger than NackMaxAge, pruning items past the horizon.
func (r *Recv) Tick(now time.Time) []rtcp.Packet {
	var out []rtcp.Packet

	var ready []uint16
	var remaining []nackItem
	for _, it := range r.pending {
		age := now.Sub(it.firstSeen)
		if age > r.NackMaxAge {
			continue // give up, drop silently
		}
		if age >= r.NackMinAge {
			ready = append(ready, uint16(it.extSeq))
			it.lastSentAt = now
			it.sentTimes++
		}
		remaining = append(remaining, it)
	}
	r.pending = remaining

	if r.Params.UseNack && len(ready) > 0 {
		out = append(out, buildNackPackets(r.Params.SSRC, ready)...)
	}

	return out
}

// buildNackPackets packs sequence numbers into 17-bit NACK windows
// (packetId + up to 16 bitmask bits) per RFC 4585.
func buildNackPackets(mediaSSRC uint32, seqs []uint16) []rtcp.Packet {
	if len(seqs) == 0 {
		return nil
	}
	nacks := rtcp.NackPairsFromSequenceNumbers(seqs)
	return []rtcp.Packet{&rtcp.TransportLayerNack{
		MediaSSRC: mediaSSRC,
		Nacks:     nacks,
	}}
}

// ReceptionReport builds one RTCP RR block summarising this stream.
func (r *Recv) ReceptionReport(lsr uint32, dlsr uint32) rtcp.ReceptionReport {
	maxExt := r.ExtendedMaxSeq()
	expected := maxExt - uint32(r.baseSeq) + 1
	var lost int64
	if expected > r.receivedPacketsApprox() {
		lost = int64(expected) - int64(r.receivedPacketsApprox())
	}
	r.cumulativeLost = lost

	expectedInterval := expected - r.expectedAtLastRR
	receivedInterval := r.receivedPacketsApprox() - r.receivedAtLastRR
	var fraction uint8
	if expectedInterval > 0 && expectedInterval >= receivedInterval {
		lostInterval := expectedInterval - receivedInterval
		fraction = uint8((lostInterval << 8) / expectedInterval)
	}
	r.expectedAtLastRR = expected
	r.receivedAtLastRR = r.receivedPacketsApprox()

	r.healthy = fraction < 64 // < 25% loss this interval

	return rtcp.ReceptionReport{
		SSRC:               r.Params.SSRC,
		FractionLost:       fraction,
		TotalLost:          uint32(r.cumulativeLost) & 0xFFFFFF,
		LastSequenceNumber: maxExt,
		Jitter:             r.Jitter(),
		LastSenderReport:   lsr,
		Delay:              dlsr,
	}
}

func (r *Recv) receivedPacketsApprox() uint32 {
	return uint32(r.PacketCount) + uint32(r.duplicates)*0 // duplicates don't count as received-for-loss
}

// ReceiveSenderReport records the LSR/DLSR anchor from an inbound SR.
func (r *Recv) ReceiveSenderReport(sr *rtcp.SenderReport, now time.Time) {
	r.lastSR.ntp = sr.NTPTime
	r.lastSR.receivedAt = now
	r.lastSR.valid = true
}

// LSRAndDLSR returns the middle-32-bits LSR field and the current DLSR
// (in 1/65536 second units) for embedding in the next RR, or (0, 0, false)
// if no SR has been received yet.
func (r *Recv) LSRAndDLSR(now time.Time) (lsr uint32, dlsr uint32, ok bool) {
	if !r.lastSR.valid {
		return 0, 0, false
	}
	lsr = uint32(r.lastSR.ntp >> 16)
	elapsed := now.Sub(r.lastSR.receivedAt)
	dlsr = uint32(elapsed.Seconds() * 65536)
	return lsr, dlsr, true
}

// Healthy reports the most recently computed loss-based health verdict.
func (r *Recv) Healthy() bool { return r.healthy }

// Duplicates and Discarded expose drop counters for diagnostics/metrics.
func (r *Recv) Duplicates() uint64 { return r.duplicates }
func (r *Recv) Discarded() uint64  { return r.discarded }
