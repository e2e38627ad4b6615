package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/version"
)

// Signaling defaults.
const (
	AccessPointHost  = "192.168.12.1"
	SignalingPort    = 8081
	signalingTimeout = 15 * time.Second
)

// ErrPeerBusy is returned when the robot already serves another client.
var ErrPeerBusy = errors.New("robot is connected to another WebRTC client")

// Signaler exchanges the local offer for the robot's answer.
type Signaler interface {
	Exchange(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

type offerRequest struct {
	ID    string `json:"id,omitempty"`
	SN    string `json:"sn,omitempty"`
	SDP   string `json:"sdp"`
	Type  string `json:"type"`
	Token string `json:"token"`
}

type answerResponse struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// LocalSignaler posts the offer straight to the robot on the local network.
type LocalSignaler struct {
	BaseURL string
	ID      string
	Token   string
	Client  *http.Client
}

// NewLocalSignaler targets the robot at host.
func NewLocalSignaler(host string, station bool) *LocalSignaler {
	id := ""
	if station {
		id = "STA_localNetwork"
	}
	return &LocalSignaler{
		BaseURL: fmt.Sprintf("http://%s:%d", host, SignalingPort),
		ID:      id,
		Client:  &http.Client{Timeout: signalingTimeout},
	}
}

func (s *LocalSignaler) Exchange(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	body := offerRequest{ID: s.ID, SDP: offer.SDP, Type: offer.Type.String(), Token: s.Token}
	return postOffer(ctx, s.Client, s.BaseURL+"/offer", body, nil)
}

// RemoteSignaler relays the offer through a cloud endpoint.
type RemoteSignaler struct {
	Endpoint string
	Serial   string
	Username string
	Password string
	Client   *http.Client
}

func (s *RemoteSignaler) Exchange(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if s.Endpoint == "" {
		return webrtc.SessionDescription{}, errors.New("remote signaling endpoint not configured")
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: signalingTimeout}
	}
	body := offerRequest{SN: s.Serial, SDP: offer.SDP, Type: offer.Type.String()}
	auth := func(req *http.Request) { req.SetBasicAuth(s.Username, s.Password) }
	return postOffer(ctx, client, strings.TrimRight(s.Endpoint, "/")+"/offer", body, auth)
}

func postOffer(ctx context.Context, client *http.Client, url string, body offerRequest, decorate func(*http.Request)) (webrtc.SessionDescription, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return webrtc.SessionDescription{}, errors.Wrap(err, "failed to marshal offer")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return webrtc.SessionDescription{}, errors.Wrap(err, "failed to create signaling request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return webrtc.SessionDescription{}, errors.Wrapf(err, "signaling request to %s failed", url)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return webrtc.SessionDescription{}, errors.Wrap(err, "failed to read signaling response")
	}
	if resp.StatusCode >= 400 {
		return webrtc.SessionDescription{}, errors.Errorf("signaling error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if strings.TrimSpace(string(raw)) == "reject" {
		return webrtc.SessionDescription{}, ErrPeerBusy
	}

	var answer answerResponse
	if err := json.Unmarshal(raw, &answer); err != nil {
		return webrtc.SessionDescription{}, errors.Wrap(err, "failed to decode answer")
	}
	if answer.SDP == "" {
		return webrtc.SessionDescription{}, errors.New("answer has no SDP")
	}
	if answer.Type != "" && answer.Type != webrtc.SDPTypeAnswer.String() {
		return webrtc.SessionDescription{}, errors.Errorf("unexpected answer type %q", answer.Type)
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}, nil
}
