package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, "ap", GetConnection().Method)
	assert.Equal(t, 10*time.Second, GetHealthInterval())
	assert.Equal(t, 5*time.Second, GetLossInterval())
	assert.Equal(t, 5*time.Second, GetModeSettle())
	assert.Equal(t, 10*time.Second, GetRequestTimeout())
	assert.Equal(t, 64, GetQueueSize())
	assert.Equal(t, 2*time.Second, GetHeartbeatInterval())
	assert.Equal(t, "native", GetLidarDecoder())
	assert.Equal(t, 100*time.Millisecond, GetLidarPollInterval())
	assert.Equal(t, "127.0.0.1:8090", GetServeListen())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GO2_CONNECTION_METHOD", "remote")
	t.Setenv("GO2_SERIAL", "B42D2000XXXXXXXX")
	t.Setenv("GO2_USERNAME", "me@example.com")
	t.Setenv("GO2_PASSWORD", "secret")
	t.Setenv("GO2_REMOTE_ENDPOINT", "https://relay.example.com/webrtc")
	t.Setenv("GO2_LISTEN", ":9000")

	c := GetConnection()
	assert.Equal(t, "remote", c.Method)
	assert.Equal(t, "B42D2000XXXXXXXX", c.Serial)
	assert.Equal(t, "me@example.com", c.Username)
	assert.Equal(t, "secret", c.Password)
	assert.Equal(t, "https://relay.example.com/webrtc", GetRemoteEndpoint())
	assert.Equal(t, ":9000", GetServeListen())
}

func TestProfilePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GO2CTL_HOME", home)
	assert.Equal(t, filepath.Join(home, "profiles.toml"), GetProfilePath())

	t.Setenv("GO2CTL_PROFILE_PATH", "/tmp/elsewhere.toml")
	assert.Equal(t, "/tmp/elsewhere.toml", GetProfilePath())
}
