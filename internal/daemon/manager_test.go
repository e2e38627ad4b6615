package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"state": "connected"})
	})
	mux.HandleFunc("/api/commands", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"command": body["name"], "success": false, "error": "unknown command"})
	})
	mux.HandleFunc("/api/lidar", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestURLFor(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8090", URLFor("127.0.0.1:8090"))
	assert.Equal(t, "http://127.0.0.1:8090", URLFor(":8090"))
	assert.Equal(t, "http://127.0.0.1:9000", URLFor("0.0.0.0:9000"))
	assert.Equal(t, "http://[::1]:9000", URLFor("[::1]:9000"))
	assert.Equal(t, "http://robot-ui", URLFor("robot-ui"))
}

func TestCallAPI(t *testing.T) {
	srv := newBridge(t)
	m := NewManager(srv.URL+"/", t.TempDir())

	var state map[string]any
	require.NoError(t, m.CallAPI(http.MethodGet, "/api/state", nil, &state))
	assert.Equal(t, "connected", state["state"])

	err := m.CallAPI(http.MethodPost, "/api/commands", map[string]string{"name": "nope"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "unknown command", apiErr.Message)

	var sample map[string]any
	require.NoError(t, m.CallAPI(http.MethodGet, "/api/lidar", nil, &sample))
	assert.Nil(t, sample)
}

func TestCallAPINotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := NewManager(url, t.TempDir())
	assert.ErrorIs(t, m.CallAPI(http.MethodGet, "/api/state", nil, nil), ErrNotRunning)
	assert.False(t, m.IsServerRunning())
}

func TestIsServerRunning(t *testing.T) {
	srv := newBridge(t)
	home := t.TempDir()
	m := NewManager(srv.URL, home)
	assert.True(t, m.IsServerRunning(), "foreground bridge without pid file")

	require.NoError(t, os.WriteFile(m.getPIDFile(), []byte(strconv.Itoa(os.Getpid())), 0o644))
	assert.True(t, m.IsServerRunning())
	assert.FileExists(t, m.getPIDFile())
}

func TestStopServerWithoutPIDFile(t *testing.T) {
	m := NewManager("http://127.0.0.1:1", t.TempDir())
	assert.ErrorIs(t, m.StopServer(), ErrNotRunning)
	assert.Equal(t, filepath.Join(m.home, "serve.log"), m.LogFile())
}
