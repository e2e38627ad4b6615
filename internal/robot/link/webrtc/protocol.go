package webrtc

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Data channel message types.
const (
	msgValidation  = "validation"
	msgRequest     = "req"
	msgResponse    = "res"
	msgPublish     = "msg"
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgHeartbeat   = "heartbeat"
	msgInnerReq    = "rtc_inner_req"
	msgVideo       = "vid"
	msgAudio       = "aud"
	msgError       = "err"
	msgErrors      = "errors"
)

const validationOK = "Validation Ok."

// envelope is the JSON frame exchanged on the "data" channel.
type envelope struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeEnvelope(typ, topic string, data any) ([]byte, error) {
	env := envelope{Type: typ, Topic: topic}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s payload", typ)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

type identity struct {
	ID    int64 `json:"id"`
	APIID int   `json:"api_id"`
}

type status struct {
	Code int `json:"code"`
}

type requestHeader struct {
	Identity identity `json:"identity"`
}

type requestBody struct {
	Header    requestHeader `json:"header"`
	Parameter string        `json:"parameter"`
}

type responseHeader struct {
	Identity identity `json:"identity"`
	Status   status   `json:"status"`
}

type responseBody struct {
	Header responseHeader  `json:"header"`
	Data   json.RawMessage `json:"data"`
}

// encodeParameter renders a request parameter the way the robot expects it:
// strings are sent as-is, everything else as a JSON document in a string.
func encodeParameter(p any) (string, error) {
	switch v := p.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrap(err, "failed to encode request parameter")
		}
		return string(raw), nil
	}
}

// responseData flattens a response data field to a string. String values
// are unquoted; anything else is returned as raw JSON.
func responseData(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type heartbeatBody struct {
	TimeInStr string `json:"timeInStr"`
	TimeInNum int64  `json:"timeInNum"`
}

func newHeartbeat(now time.Time) heartbeatBody {
	return heartbeatBody{
		TimeInStr: now.Format("2006-01-02 15:04:05"),
		TimeInNum: now.Unix(),
	}
}

type innerRequest struct {
	ReqType     string `json:"req_type"`
	Instruction string `json:"instruction"`
}

type innerResponse struct {
	ReqType string `json:"req_type"`
	Info    struct {
		Execution string `json:"execution"`
	} `json:"info"`
}

// validationResponse answers the robot's validation challenge.
func validationResponse(key string) string {
	sum := md5.Sum([]byte("UnitreeGo2_" + key))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
}

// binaryFrame is a binary data channel message: a little-endian uint16
// JSON length, two reserved bytes, the JSON metadata and the payload.
type binaryFrame struct {
	Header  envelope
	Meta    json.RawMessage
	Payload []byte
}

func parseBinaryFrame(buf []byte) (binaryFrame, error) {
	if len(buf) < 4 {
		return binaryFrame{}, errors.Errorf("binary message too short (%d bytes)", len(buf))
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	if 4+n > len(buf) {
		return binaryFrame{}, errors.Errorf("binary header length %d exceeds message size %d", n, len(buf))
	}
	var f binaryFrame
	if err := json.Unmarshal(buf[4:4+n], &f.Header); err != nil {
		return binaryFrame{}, errors.Wrap(err, "invalid binary header")
	}
	f.Meta = f.Header.Data
	f.Payload = buf[4+n:]
	return f, nil
}

// encodeBinaryFrame is the inverse of parseBinaryFrame.
func encodeBinaryFrame(header envelope, payload []byte) ([]byte, error) {
	js, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	if len(js) > 0xFFFF {
		return nil, errors.Errorf("binary header too large (%d bytes)", len(js))
	}
	out := make([]byte, 4, 4+len(js)+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(js)))
	out = append(out, js...)
	return append(out, payload...), nil
}

func pendingKey(topic string, id int64) string {
	return topic + "#" + strconv.FormatInt(id, 10)
}

// remoteError is an error reported by the robot on the data channel.
type remoteError struct {
	Topic string
	Info  string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("robot error on %q: %s", e.Topic, e.Info)
}
