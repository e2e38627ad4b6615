package webrtc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/robot/session"
)

// DialOptions configures links created by NewDialer.
type DialOptions struct {
	// RemoteEndpoint is the base URL of the cloud signaling relay.
	RemoteEndpoint    string
	DiscoveryTimeout  time.Duration
	HeartbeatInterval time.Duration
	ValidationTimeout time.Duration
	Logger            *slog.Logger
}

// NewDialer returns a session.Dialer that builds WebRTC links.
func NewDialer(opts DialOptions) session.Dialer {
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = 10 * time.Second
	}
	return func(cfg session.ConnectionConfig) (link.Link, error) {
		resolve, err := resolverFor(cfg, opts)
		if err != nil {
			return nil, err
		}
		return New(Options{
			Resolve:           resolve,
			HeartbeatInterval: opts.HeartbeatInterval,
			ValidationTimeout: opts.ValidationTimeout,
			Logger:            opts.Logger,
		}), nil
	}
}

func resolverFor(cfg session.ConnectionConfig, opts DialOptions) (Resolver, error) {
	switch cfg.Method {
	case session.MethodLocalAP:
		s := NewLocalSignaler(AccessPointHost, false)
		return func(context.Context) (Signaler, error) { return s, nil }, nil
	case session.MethodLocalSTA:
		if cfg.Host != "" {
			s := NewLocalSignaler(cfg.Host, true)
			return func(context.Context) (Signaler, error) { return s, nil }, nil
		}
		return func(ctx context.Context) (Signaler, error) {
			ctx, cancel := context.WithTimeout(ctx, opts.DiscoveryTimeout)
			defer cancel()
			host, err := Discover(ctx, cfg.Serial)
			if err != nil {
				return nil, err
			}
			return NewLocalSignaler(host, true), nil
		}, nil
	case session.MethodRemote:
		if opts.RemoteEndpoint == "" {
			return nil, errors.New("remote signaling endpoint not configured")
		}
		s := &RemoteSignaler{
			Endpoint: opts.RemoteEndpoint,
			Serial:   cfg.Serial,
			Username: cfg.Username,
			Password: cfg.Password,
			Client:   &http.Client{Timeout: signalingTimeout},
		}
		return func(context.Context) (Signaler, error) { return s, nil }, nil
	default:
		return nil, errors.Errorf("unsupported connection method %q", cfg.Method)
	}
}
