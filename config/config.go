package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("connection.method", "GO2_CONNECTION_METHOD")
	v.BindEnv("connection.host", "GO2_HOST")
	v.BindEnv("connection.serial", "GO2_SERIAL")
	v.BindEnv("connection.username", "GO2_USERNAME")
	v.BindEnv("connection.password", "GO2_PASSWORD")
	v.BindEnv("remote.endpoint", "GO2_REMOTE_ENDPOINT")
	v.BindEnv("catalog.path", "GO2_CATALOG_PATH")
	v.BindEnv("serve.listen", "GO2_LISTEN")
	v.BindEnv("go2ctl.home", "GO2CTL_HOME")
	v.BindEnv("profile.path", "GO2CTL_PROFILE_PATH")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		"$HOME/.go2ctl",
		"/etc/go2ctl",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connection.method", "ap")
	v.SetDefault("connection.host", "")
	v.SetDefault("connection.serial", "")
	v.SetDefault("connection.username", "")
	v.SetDefault("connection.password", "")
	v.SetDefault("remote.endpoint", "")

	v.SetDefault("session.health_interval", 10*time.Second)
	v.SetDefault("session.loss_interval", 5*time.Second)
	v.SetDefault("session.mode_settle", 5*time.Second)
	v.SetDefault("session.request_timeout", 10*time.Second)
	v.SetDefault("session.queue_size", 64)

	v.SetDefault("link.heartbeat_interval", 2*time.Second)
	v.SetDefault("link.validation_timeout", 10*time.Second)
	v.SetDefault("link.discovery_timeout", 10*time.Second)

	v.SetDefault("lidar.decoder", "native")
	v.SetDefault("lidar.poll_interval", 100*time.Millisecond)

	v.SetDefault("catalog.path", "")
	v.SetDefault("serve.listen", "127.0.0.1:8090")

	v.SetDefault("go2ctl.home", filepath.Join(xdg.Home, ".go2ctl"))
	v.SetDefault("profile.path", "")
}

// Connection holds the configured robot target. Command-line flags take
// precedence over these values.
type Connection struct {
	Method   string
	Host     string
	Serial   string
	Username string
	Password string
}

// GetConnection returns the configured robot target.
func GetConnection() Connection {
	return Connection{
		Method:   v.GetString("connection.method"),
		Host:     v.GetString("connection.host"),
		Serial:   v.GetString("connection.serial"),
		Username: v.GetString("connection.username"),
		Password: v.GetString("connection.password"),
	}
}

// GetRemoteEndpoint returns the cloud signaling relay URL.
func GetRemoteEndpoint() string {
	return v.GetString("remote.endpoint")
}

// GetHealthInterval returns the period of the session health check.
func GetHealthInterval() time.Duration {
	return v.GetDuration("session.health_interval")
}

// GetLossInterval returns the period of the link loss check.
func GetLossInterval() time.Duration {
	return v.GetDuration("session.loss_interval")
}

// GetModeSettle returns how long to wait after switching motion mode.
func GetModeSettle() time.Duration {
	return v.GetDuration("session.mode_settle")
}

// GetRequestTimeout returns the per-request timeout.
func GetRequestTimeout() time.Duration {
	return v.GetDuration("session.request_timeout")
}

// GetQueueSize returns the session executor queue capacity.
func GetQueueSize() int {
	return v.GetInt("session.queue_size")
}

// GetHeartbeatInterval returns the link keep-alive period.
func GetHeartbeatInterval() time.Duration {
	return v.GetDuration("link.heartbeat_interval")
}

// GetValidationTimeout returns how long to wait for the robot handshake.
func GetValidationTimeout() time.Duration {
	return v.GetDuration("link.validation_timeout")
}

// GetDiscoveryTimeout returns how long serial discovery may take.
func GetDiscoveryTimeout() time.Duration {
	return v.GetDuration("link.discovery_timeout")
}

// GetLidarDecoder returns the binary payload decoder name.
func GetLidarDecoder() string {
	return v.GetString("lidar.decoder")
}

// GetLidarPollInterval returns the lidar sample delivery period.
func GetLidarPollInterval() time.Duration {
	return v.GetDuration("lidar.poll_interval")
}

// GetCatalogPath returns the catalog overrides file, if any.
func GetCatalogPath() string {
	return v.GetString("catalog.path")
}

// GetServeListen returns the UI bridge listen address.
func GetServeListen() string {
	return v.GetString("serve.listen")
}

// GetHome returns the go2ctl home directory
func GetHome() string {
	return v.GetString("go2ctl.home")
}

// GetProfilePath returns the profile file path
func GetProfilePath() string {
	if profilePath := v.GetString("profile.path"); profilePath != "" {
		return profilePath
	}
	return filepath.Join(GetHome(), "profiles.toml")
}
