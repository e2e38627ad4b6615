package webrtc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOffer = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}

func TestLocalSignalerExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/offer", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req offerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "STA_localNetwork", req.ID)
		assert.Equal(t, "offer", req.Type)
		assert.Equal(t, "v=0\r\n", req.SDP)

		_ = json.NewEncoder(w).Encode(answerResponse{SDP: "v=0 answer", Type: "answer"})
	}))
	defer server.Close()

	s := NewLocalSignaler("unused", true)
	s.BaseURL = server.URL

	answer, err := s.Exchange(context.Background(), testOffer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, "v=0 answer", answer.SDP)
}

func TestLocalSignalerReject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("reject"))
	}))
	defer server.Close()

	s := NewLocalSignaler("unused", false)
	s.BaseURL = server.URL

	_, err := s.Exchange(context.Background(), testOffer)
	assert.ErrorIs(t, err, ErrPeerBusy)
}

func TestLocalSignalerHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewLocalSignaler("unused", false)
	s.BaseURL = server.URL

	_, err := s.Exchange(context.Background(), testOffer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestLocalSignalerEmptyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"answer"}`))
	}))
	defer server.Close()

	s := NewLocalSignaler("unused", false)
	s.BaseURL = server.URL

	_, err := s.Exchange(context.Background(), testOffer)
	assert.Error(t, err)
}

func TestRemoteSignalerExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)

		var req offerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "B42D2000XXXXXXXX", req.SN)

		_ = json.NewEncoder(w).Encode(answerResponse{SDP: "remote answer", Type: "answer"})
	}))
	defer server.Close()

	s := &RemoteSignaler{Endpoint: server.URL + "/", Serial: "B42D2000XXXXXXXX", Username: "alice", Password: "secret"}
	answer, err := s.Exchange(context.Background(), testOffer)
	require.NoError(t, err)
	assert.Equal(t, "remote answer", answer.SDP)
}

func TestRemoteSignalerNoEndpoint(t *testing.T) {
	s := &RemoteSignaler{Serial: "x"}
	_, err := s.Exchange(context.Background(), testOffer)
	assert.Error(t, err)
}
