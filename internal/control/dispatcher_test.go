package control

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfuworker/internal/rtpcore/params"
	"sfuworker/internal/rtpcore/profile"
	"sfuworker/internal/sfu"
)

type nopTransport struct{}

func (nopTransport) SendRtpPacket(*rtp.Packet) error { return nil }
func (nopTransport) SendRtcp([]rtcp.Packet) error    { return nil }

type recordingTransport struct {
	sentRtcp [][]rtcp.Packet
}

func (t *recordingTransport) SendRtpPacket(*rtp.Packet) error { return nil }
func (t *recordingTransport) SendRtcp(pkts []rtcp.Packet) error {
	t.sentRtcp = append(t.sentRtcp, pkts)
	return nil
}

func videoParams(ssrc uint32) params.RtpParameters {
	return params.RtpParameters{
		MuxID: "mux1",
		Codecs: []params.Codec{
			{PayloadType: 96, MimeType: "video/VP8", ClockRate: 90000, RtcpFeedback: []params.RtcpFeedback{
				{Type: "nack", Parameter: "pli"},
			}},
		},
		Encodings: []params.Encoding{{SSRC: ssrc, CodecPayloadType: 96}},
		RtcpCName: "cname1",
	}
}

func audioParams(ssrc uint32) params.RtpParameters {
	return params.RtpParameters{
		MuxID:  "mux1",
		Codecs: []params.Codec{{PayloadType: 111, MimeType: "audio/opus", ClockRate: 48000}},
		Encodings: []params.Encoding{
			{SSRC: ssrc, CodecPayloadType: 111},
		},
		RtcpCName: "cname1",
	}
}

func newTestDispatcher() (*Dispatcher, *sfu.Router) {
	router := sfu.NewRouter("room1", zerolog.Nop())
	d := NewDispatcher(router, router, zerolog.Nop())
	return d, router
}

func rawData(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatchCreateProducerRequiresRegisteredTransport(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(Request{
		ID:     "1",
		Method: MethodRouterCreateProducer,
		Data:   rawData(t, createProducerData{ProducerID: "p1", Kind: "audio", RtpParams: audioParams(1001)}),
	})

	assert.True(t, resp.Rejected)
	assert.Equal(t, "no transport registered for producerId", resp.Reason)
}

func TestDispatchCreateProducerThenConsumer(t *testing.T) {
	d, router := newTestDispatcher()
	d.RegisterTransport("p1", nopTransport{})
	d.RegisterTransport("c1", nopTransport{})

	resp := d.Dispatch(Request{
		ID:     "1",
		Method: MethodRouterCreateProducer,
		Data:   rawData(t, createProducerData{ProducerID: "p1", Kind: "audio", RtpParams: audioParams(1001)}),
	})
	require.True(t, resp.Accepted)

	resp = d.Dispatch(Request{
		ID:     "2",
		Method: MethodRouterCreateConsumer,
		Data:   rawData(t, createConsumerData{ConsumerID: "c1", ProducerID: "p1", Kind: "audio", RtpParams: audioParams(5001)}),
	})
	require.True(t, resp.Accepted)

	_, ok := router.Consumer("c1")
	assert.True(t, ok)
}

func TestDispatchUnknownMethodIsRejected(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(Request{ID: "1", Method: "bogus.method"})
	assert.True(t, resp.Rejected)
	assert.Equal(t, "unknown method", resp.Reason)
}

func TestDispatchProducerDumpRoutesToNamedProducer(t *testing.T) {
	d, _ := newTestDispatcher()
	d.RegisterTransport("p1", nopTransport{})
	require.True(t, d.Dispatch(Request{
		ID:     "1",
		Method: MethodRouterCreateProducer,
		Data:   rawData(t, createProducerData{ProducerID: "p1", Kind: "audio", RtpParams: audioParams(1001)}),
	}).Accepted)

	resp := d.Dispatch(Request{ID: "2", Method: MethodProducerDump, Internal: Target{ProducerID: "p1"}})
	require.True(t, resp.Accepted)

	var dump map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &dump))
	assert.Equal(t, "p1", dump["id"])
}

func TestDispatchAppliesConfiguredPliCoalesceWindowToNewProducers(t *testing.T) {
	router := sfu.NewRouter("room1", zerolog.Nop())
	d := NewDispatcher(router, router, zerolog.Nop(), sfu.WithPliCoalesceWindow(50*time.Millisecond))
	transport := &recordingTransport{}
	d.RegisterTransport("p1", transport)

	resp := d.Dispatch(Request{
		ID:     "1",
		Method: MethodRouterCreateProducer,
		Data:   rawData(t, createProducerData{ProducerID: "p1", Kind: "video", RtpParams: videoParams(1001)}),
	})
	require.True(t, resp.Accepted)

	p, ok := router.Producer("p1")
	require.True(t, ok)

	now := time.Now()
	p.RequestKeyFrame(profile.None, now)
	p.RequestKeyFrame(profile.None, now.Add(10*time.Millisecond))
	assert.Len(t, transport.sentRtcp, 1, "within the configured window a second PLI should be suppressed")

	p.RequestKeyFrame(profile.None, now.Add(100*time.Millisecond))
	assert.Len(t, transport.sentRtcp, 2, "past the configured window a PLI should go through")
}

func TestDispatchProducerDumpRejectsUnknownId(t *testing.T) {
	d, _ := newTestDispatcher()
	resp := d.Dispatch(Request{ID: "1", Method: MethodProducerDump, Internal: Target{ProducerID: "nope"}})
	assert.True(t, resp.Rejected)
}
