// Package sfu implements the media routing core: Producer, Consumer and
// the Router/Room fan-out table (spec §4.5-4.7).
package sfu

import (
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// Transport abstracts "something that accepts an outbound RTP/RTCP packet
// and delivers inbound ones" — ICE/DTLS/SRTP establishment lives entirely
// outside this core (spec §1).
type Transport interface {
	SendRtpPacket(packet *rtp.Packet) error
	SendRtcp(packets []rtcp.Packet) error
}
