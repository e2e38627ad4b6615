package webrtc

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Multicast discovery endpoints used by robots in station mode.
const (
	DiscoveryGroup     = "231.1.1.1"
	DiscoveryQueryPort = 10131
	DiscoveryReplyPort = 10134
)

// ErrNotFound is returned when no robot answers a discovery query.
var ErrNotFound = errors.New("robot not found on local network")

type discoveryQuery struct {
	Name string `json:"name"`
	SN   string `json:"sn"`
}

type discoveryReply struct {
	SN string `json:"sn"`
	IP string `json:"ip"`
}

// parseDiscoveryReply returns the robot address in msg if it answers for
// serial.
func parseDiscoveryReply(msg []byte, serial string) (string, bool) {
	var r discoveryReply
	if err := json.Unmarshal(msg, &r); err != nil {
		return "", false
	}
	if r.IP == "" || !strings.EqualFold(r.SN, serial) {
		return "", false
	}
	if net.ParseIP(r.IP) == nil {
		return "", false
	}
	return r.IP, true
}

// Discover finds the local address of the robot with the given serial
// number. It multicasts a query and waits for the matching reply until ctx
// is done.
func Discover(ctx context.Context, serial string) (string, error) {
	group := net.ParseIP(DiscoveryGroup)
	listen, err := net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: group, Port: DiscoveryReplyPort})
	if err != nil {
		return "", errors.Wrap(err, "failed to join discovery group")
	}
	defer listen.Close()

	send, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: group, Port: DiscoveryQueryPort})
	if err != nil {
		return "", errors.Wrap(err, "failed to open discovery socket")
	}
	defer send.Close()

	query, err := json.Marshal(discoveryQuery{Name: "unitree_dapengche", SN: serial})
	if err != nil {
		return "", err
	}

	buf := make([]byte, 2048)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := send.Write(query); err != nil {
			return "", errors.Wrap(err, "failed to send discovery query")
		}

		deadline := time.Now().Add(time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = listen.SetReadDeadline(deadline)
		for {
			n, _, err := listen.ReadFromUDP(buf)
			if err != nil {
				break
			}
			if ip, ok := parseDiscoveryReply(buf[:n], serial); ok {
				return ip, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", errors.Wrapf(ErrNotFound, "serial %s: %v", serial, ctx.Err())
		case <-ticker.C:
		}
	}
}
