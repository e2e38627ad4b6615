package webrtc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/robot/session"
)

func newTestLink() *Link {
	return New(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestLinkCapabilities(t *testing.T) {
	caps := newTestLink().Capabilities()
	assert.NotNil(t, caps.Requester)
	assert.NotNil(t, caps.Publisher)
	assert.NotNil(t, caps.UnackedPublisher)
	assert.NotNil(t, caps.TrafficSaver)
	assert.NotNil(t, caps.DecoderSelector)
	assert.NotNil(t, caps.Heartbeater)
	assert.NotNil(t, caps.Video)
}

func TestLinkConnectWithoutResolver(t *testing.T) {
	l := newTestLink()
	assert.Error(t, l.Connect(context.Background()))
}

func TestLinkSendBeforeOpen(t *testing.T) {
	l := newTestLink()

	_, err := l.Request(context.Background(), "rt/api/sport/request", link.Request{APIID: 1016})
	assert.ErrorIs(t, err, ErrChannelNotOpen)
	assert.ErrorIs(t, l.PublishUnacked("rt/wirelesscontroller", nil), ErrChannelNotOpen)

	err = l.Subscribe(context.Background(), "rt/lf/lowstate", func(link.Payload) {})
	assert.ErrorIs(t, err, ErrChannelNotOpen)
	assert.Empty(t, l.subs)
}

func TestLinkCloseIsIdempotent(t *testing.T) {
	l := newTestLink()
	assert.Equal(t, link.StateNew, l.State())

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, link.StateClosed, l.State())
	assert.ErrorIs(t, l.Connect(context.Background()), ErrLinkClosed)
}

func TestLinkRoutesResponseToPending(t *testing.T) {
	l := newTestLink()
	ch := make(chan responseBody, 1)
	l.pending[pendingKey("rt/api/sport/request", 42)] = ch

	data, err := json.Marshal(responseBody{
		Header: responseHeader{Identity: identity{ID: 42, APIID: 1016}, Status: status{Code: 3104}},
		Data:   json.RawMessage(`"busy"`),
	})
	require.NoError(t, err)
	l.handleEnvelope(envelope{Type: msgResponse, Topic: "rt/api/sport/request", Data: data})

	select {
	case res := <-ch:
		assert.Equal(t, 3104, res.Header.Status.Code)
		assert.Equal(t, "busy", responseData(res.Data))
	default:
		t.Fatal("response not routed")
	}
}

func TestLinkDeliversTopicMessages(t *testing.T) {
	l := newTestLink()
	var got []link.Payload
	l.subs["rt/lf/lowstate"] = func(p link.Payload) { got = append(got, p) }

	l.handleEnvelope(envelope{Type: msgPublish, Topic: "rt/lf/lowstate", Data: json.RawMessage(`{"x":1,"y":2,"z":3}`)})
	l.handleEnvelope(envelope{Type: msgPublish, Topic: "rt/other", Data: json.RawMessage(`{}`)})

	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0, "z": 3.0}, got[0].Record)
	assert.Nil(t, got[0].Binary)
}

func TestLinkBinaryDecoding(t *testing.T) {
	const topic = "rt/utlidar/voxel_map_compressed"
	bits := make([]byte, 0x800)
	bits[0] = 0b1000_0000
	meta, err := json.Marshal(map[string]any{"origin": []float64{0, 0, 0}, "resolution": 0.05, "src_size": len(bits)})
	require.NoError(t, err)
	msg, err := encodeBinaryFrame(envelope{Type: msgPublish, Topic: topic, Data: meta}, compressBlock(t, bits))
	require.NoError(t, err)

	l := newTestLink()
	var got []link.Payload
	l.subs[topic] = func(p link.Payload) { got = append(got, p) }

	l.handleBinary(msg)
	require.NoError(t, l.SelectDecoder(DecoderNone))
	l.handleBinary(msg)
	assert.Error(t, l.SelectDecoder("libvoxel"))

	require.Len(t, got, 2)
	record := got[0].Record.(map[string]any)
	assert.Len(t, record["points"], 1)
	assert.Nil(t, got[1].Record)
	assert.NotEmpty(t, got[1].Binary)
}

func TestLinkValidationOk(t *testing.T) {
	l := newTestLink()
	l.handleEnvelope(envelope{Type: msgValidation, Data: json.RawMessage(`"Validation Ok."`)})
	l.handleEnvelope(envelope{Type: msgValidation, Data: json.RawMessage(`"Validation Ok."`)})

	select {
	case <-l.validated:
	default:
		t.Fatal("validation not recorded")
	}
}

func TestLinkHeartbeatReplyReleasesWaiters(t *testing.T) {
	l := newTestLink()
	ch := make(chan struct{})
	l.beats = append(l.beats, ch)

	l.handleEnvelope(envelope{Type: msgHeartbeat})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("heartbeat waiter not released")
	}
	assert.Empty(t, l.beats)
}

func TestLinkInnerResponse(t *testing.T) {
	l := newTestLink()
	ch := make(chan innerResponse, 1)
	l.inner["disable_traffic_saving"] = ch

	l.handleEnvelope(envelope{
		Type: msgInnerReq,
		Data: json.RawMessage(`{"req_type":"disable_traffic_saving","info":{"execution":"ok"}}`),
	})

	res := <-ch
	assert.Equal(t, "ok", res.Info.Execution)
}

func TestResolverFor(t *testing.T) {
	opts := DialOptions{}

	resolve, err := resolverFor(session.LocalAP(), opts)
	require.NoError(t, err)
	s, err := resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.12.1:8081", s.(*LocalSignaler).BaseURL)
	assert.Empty(t, s.(*LocalSignaler).ID)

	resolve, err = resolverFor(session.LocalStationHost("10.0.0.5"), opts)
	require.NoError(t, err)
	s, err = resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "STA_localNetwork", s.(*LocalSignaler).ID)

	_, err = resolverFor(session.Remote("sn", "u", "p"), opts)
	assert.Error(t, err)

	resolve, err = resolverFor(session.Remote("sn", "u", "p"), DialOptions{RemoteEndpoint: "https://relay.example"})
	require.NoError(t, err)
	s, err = resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sn", s.(*RemoteSignaler).Serial)
}

func TestParseDiscoveryReply(t *testing.T) {
	ip, ok := parseDiscoveryReply([]byte(`{"sn":"B42D","ip":"192.168.1.20"}`), "b42d")
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.20", ip)

	_, ok = parseDiscoveryReply([]byte(`{"sn":"OTHER","ip":"192.168.1.20"}`), "B42D")
	assert.False(t, ok)
	_, ok = parseDiscoveryReply([]byte(`{"sn":"B42D","ip":"nope"}`), "B42D")
	assert.False(t, ok)
	_, ok = parseDiscoveryReply([]byte(`garbage`), "B42D")
	assert.False(t, ok)
}
