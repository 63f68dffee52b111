package metrics

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"sfuworker/internal/rtpcore/params"
	"sfuworker/internal/rtpcore/profile"
	"sfuworker/internal/sfu"
)

type fakeTransport struct{}

func (fakeTransport) SendRtpPacket(*rtp.Packet) error { return nil }
func (fakeTransport) SendRtcp([]rtcp.Packet) error    { return nil }

func testParams(ssrc uint32) params.RtpParameters {
	return params.RtpParameters{
		Codecs:    []params.Codec{{PayloadType: 111, MimeType: "audio/opus", ClockRate: 48000}},
		Encodings: []params.Encoding{{SSRC: ssrc, CodecPayloadType: 111}},
	}
}

func TestRegistryCollectorsRegisterWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { New(reg) })
}

func TestRecordHealthSetsGauge(t *testing.T) {
	reg := New(prometheus.NewRegistry())
	reg.RecordHealth("stream1", true)
	reg.RecordHealth("stream2", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.StreamHealthy.WithLabelValues("stream1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.StreamHealthy.WithLabelValues("stream2")))
}

func TestObservingRouterRecordsPacketsReceived(t *testing.T) {
	reg := New(prometheus.NewRegistry())
	router := sfu.NewRouter("room1", zerolog.Nop())
	observer := Wrap(router, reg)

	p := sfu.NewProducer("p1", profile.Audio, testParams(1001), fakeTransport{}, observer, zerolog.Nop())
	router.AddProducer(p)

	p.ReceiveRtpPacket(&rtp.Packet{Header: rtp.Header{SSRC: 1001, SequenceNumber: 1, Timestamp: 1000, PayloadType: 111}}, time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.PacketsReceived.WithLabelValues("p1", profile.None.String())))
}
