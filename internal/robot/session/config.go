package session

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Method selects how the link reaches the robot.
type Method string

const (
	// MethodLocalAP joins the robot's own access point.
	MethodLocalAP Method = "ap"
	// MethodLocalSTA reaches the robot on a shared local network.
	MethodLocalSTA Method = "sta"
	// MethodRemote goes through the vendor cloud relay.
	MethodRemote Method = "remote"
)

// ParseMethod accepts the short names and a few long spellings.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ap", "localap", "local_ap":
		return MethodLocalAP, nil
	case "sta", "localsta", "local_sta", "station":
		return MethodLocalSTA, nil
	case "remote", "cloud":
		return MethodRemote, nil
	default:
		return "", errors.Errorf("unknown connection method %q (want ap, sta or remote)", s)
	}
}

// ConnectionConfig says where and how to connect. It is treated as
// immutable once a session starts.
type ConnectionConfig struct {
	Method   Method
	Host     string
	Serial   string
	Username string
	Password string
}

// LocalAP returns a config for the robot's access point.
func LocalAP() ConnectionConfig {
	return ConnectionConfig{Method: MethodLocalAP}
}

// LocalStationHost returns a station-mode config addressed by IP or name.
func LocalStationHost(host string) ConnectionConfig {
	return ConnectionConfig{Method: MethodLocalSTA, Host: host}
}

// LocalStationSerial returns a station-mode config resolved by serial
// number discovery.
func LocalStationSerial(serial string) ConnectionConfig {
	return ConnectionConfig{Method: MethodLocalSTA, Serial: serial}
}

// Remote returns a cloud relay config.
func Remote(serial, username, password string) ConnectionConfig {
	return ConnectionConfig{Method: MethodRemote, Serial: serial, Username: username, Password: password}
}

// Validate checks that the fields required by the method are present.
func (c ConnectionConfig) Validate() error {
	switch c.Method {
	case MethodLocalAP:
		return nil
	case MethodLocalSTA:
		hasHost, hasSerial := c.Host != "", c.Serial != ""
		if hasHost == hasSerial {
			return errors.New("station mode needs exactly one of host or serial")
		}
		return nil
	case MethodRemote:
		if c.Serial == "" {
			return errors.New("remote mode needs a serial number")
		}
		if c.Username == "" || c.Password == "" {
			return errors.New("remote mode needs username and password")
		}
		return nil
	case "":
		return errors.New("connection method not set")
	default:
		return errors.Errorf("unknown connection method %q", c.Method)
	}
}

// String describes the target without credentials.
func (c ConnectionConfig) String() string {
	switch c.Method {
	case MethodLocalAP:
		return "ap"
	case MethodLocalSTA:
		if c.Host != "" {
			return fmt.Sprintf("sta host=%s", c.Host)
		}
		return fmt.Sprintf("sta serial=%s", c.Serial)
	case MethodRemote:
		return fmt.Sprintf("remote serial=%s user=%s", c.Serial, c.Username)
	default:
		return string(c.Method)
	}
}
