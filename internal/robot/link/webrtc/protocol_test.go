package webrtc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParameter(t *testing.T) {
	tests := []struct {
		name  string
		param any
		want  string
	}{
		{"nil", nil, ""},
		{"string passes through", `{"name":"normal"}`, `{"name":"normal"}`},
		{"map becomes json", map[string]any{"x": 0.5}, `{"x":0.5}`},
		{"number", 3, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeParameter(tt.param)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeEnvelopeRequest(t *testing.T) {
	msg, err := encodeEnvelope(msgRequest, "rt/api/sport/request", requestBody{
		Header:    requestHeader{Identity: identity{ID: 7, APIID: 1008}},
		Parameter: `{"x":0.5,"y":0,"z":0}`,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg, &decoded))
	assert.Equal(t, "req", decoded["type"])
	assert.Equal(t, "rt/api/sport/request", decoded["topic"])
	data := decoded["data"].(map[string]any)
	ident := data["header"].(map[string]any)["identity"].(map[string]any)
	assert.EqualValues(t, 7, ident["id"])
	assert.EqualValues(t, 1008, ident["api_id"])
	assert.Equal(t, `{"x":0.5,"y":0,"z":0}`, data["parameter"])
}

func TestEncodeEnvelopeOmitsEmptyData(t *testing.T) {
	msg, err := encodeEnvelope(msgSubscribe, "rt/utlidar/voxel_map_compressed", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","topic":"rt/utlidar/voxel_map_compressed"}`, string(msg))
}

func TestResponseData(t *testing.T) {
	assert.Equal(t, "", responseData(nil))
	assert.Equal(t, "", responseData(json.RawMessage("null")))
	assert.Equal(t, `{"name":"ai"}`, responseData(json.RawMessage(`"{\"name\":\"ai\"}"`)))
	assert.Equal(t, `{"name":"ai"}`, responseData(json.RawMessage(`{"name":"ai"}`)))
}

func TestValidationResponse(t *testing.T) {
	// base64 of md5("UnitreeGo2_abc") rendered as hex
	assert.Equal(t, "ZTFhNmQ3M2NkNjMxNzIwNzUxYjlhNDRkYTVjMjkzYjY=", validationResponse("abc"))
}

func TestNewHeartbeat(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	hb := newHeartbeat(now)
	assert.Equal(t, "2024-05-01 12:30:45", hb.TimeInStr)
	assert.Equal(t, now.Unix(), hb.TimeInNum)
}

func TestBinaryFrameRoundTrip(t *testing.T) {
	header := envelope{
		Type:  msgPublish,
		Topic: "rt/utlidar/voxel_map_compressed",
		Data:  json.RawMessage(`{"resolution":0.05,"src_size":4096}`),
	}
	payload := []byte{1, 2, 3, 4}

	buf, err := encodeBinaryFrame(header, payload)
	require.NoError(t, err)

	frame, err := parseBinaryFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, header.Topic, frame.Header.Topic)
	assert.JSONEq(t, string(header.Data), string(frame.Meta))
	assert.Equal(t, payload, frame.Payload)
}

func TestParseBinaryFrameErrors(t *testing.T) {
	_, err := parseBinaryFrame([]byte{1})
	assert.Error(t, err)

	_, err = parseBinaryFrame([]byte{0xff, 0x00, 0, 0, '{'})
	assert.Error(t, err)

	_, err = parseBinaryFrame([]byte{3, 0, 0, 0, 'n', 'o', 'p'})
	assert.Error(t, err)
}
