// Package lidar ingests the robot's compressed voxel topic into point cloud
// samples and republishes the newest one at a fixed cadence.
package lidar

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/robot/session"
	"github.com/go2ctl/go2ctl/internal/util"
)

// SwitchMethod names a link primitive that can carry the lidar switch.
type SwitchMethod string

const (
	SwitchRequest SwitchMethod = "request"
	SwitchPublish SwitchMethod = "publish"
	SwitchUnacked SwitchMethod = "publish_unacked"
)

// SwitchFallbackOrder is the order in which switch methods are tried. The
// first one that succeeds wins.
var SwitchFallbackOrder = []SwitchMethod{SwitchRequest, SwitchPublish, SwitchUnacked}

// Defaults.
const (
	DefaultDecoder      = "native"
	DefaultPollInterval = 100 * time.Millisecond
)

// Sample is one complete point set.
type Sample struct {
	Points   []Point   `json:"points"`
	Seq      uint64    `json:"seq"`
	Received time.Time `json:"received"`
}

// Sink receives each new sample from the poller.
type Sink func(Sample)

// Session is the part of the session manager the pipeline needs.
type Session interface {
	State() session.State
	Run(ctx context.Context, job session.Job) error
	Subscribe(o session.Observer) func()
}

// Options configures a Pipeline.
type Options struct {
	// Decoder is selected on links that expose decoder selection.
	Decoder      string
	PollInterval time.Duration
	Timeout      time.Duration
	Sink         Sink
	Logger       *slog.Logger
}

// Pipeline owns the lidar subscription of one session manager.
type Pipeline struct {
	session Session
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	enabled  bool
	gen      uint64
	seq      uint64
	latest   *Sample
	sink     Sink
	stopPoll context.CancelFunc
	pollDone chan struct{}

	unsubscribe func()
}

// New creates a disabled pipeline attached to s.
func New(s Session, opts Options) *Pipeline {
	if opts.Decoder == "" {
		opts.Decoder = DefaultDecoder
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = session.DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	p := &Pipeline{
		session: s,
		opts:    opts,
		logger:  opts.Logger.With("pipeline", "lidar"),
		sink:    opts.Sink,
	}
	p.unsubscribe = s.Subscribe(p.onStateChange)
	return p
}

// SetSink replaces the sink fed by the poller.
func (p *Pipeline) SetSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

// Close detaches the pipeline from the session manager.
func (p *Pipeline) Close() {
	p.unsubscribe()
	p.teardown()
}

func (p *Pipeline) onStateChange(c session.Change) {
	if c.To == session.Lost || c.To == session.Disconnected {
		if p.teardown() {
			p.logger.Info("Lidar pipeline torn down", "state", c.To.String())
		}
	}
}

// Enable runs the enable sequence on the link goroutine. Each step is best
// effort; ErrSensorEnableFailed is returned when no switch method worked or
// the subscription failed, and the pipeline then stays partially enabled.
func (p *Pipeline) Enable(ctx context.Context) error {
	if p.session.State() != session.Connected {
		return robot.ErrNotConnected
	}
	if p.Enabled() {
		return nil
	}

	return p.session.Run(ctx, func(ctx context.Context, l link.Link) error {
		gen, fresh, err := p.activate()
		if err != nil || !fresh {
			return err
		}
		caps := l.Capabilities()

		if caps.TrafficSaver != nil {
			if err := caps.TrafficSaver.DisableTrafficSaving(ctx, true); err != nil {
				p.logger.Warn("Failed to disable traffic saving", "error", err)
			}
		}
		if caps.DecoderSelector != nil {
			if err := caps.DecoderSelector.SelectDecoder(p.opts.Decoder); err != nil {
				p.logger.Warn("Failed to select decoder", "decoder", p.opts.Decoder, "error", err)
			}
		}

		var failed error
		if method, err := p.switchLidar(ctx, caps, catalog.LidarOn); err != nil {
			p.logger.Error("Failed to switch lidar on", "error", err)
			failed = err
		} else {
			p.logger.Debug("Lidar switched on", "method", method)
		}

		if err := l.Unsubscribe(ctx, catalog.TopicLidarVoxel); err != nil {
			p.logger.Debug("Unsubscribe before subscribe failed", "error", err)
		}
		if err := l.Subscribe(ctx, catalog.TopicLidarVoxel, func(pl link.Payload) {
			p.handlePayload(gen, pl)
		}); err != nil {
			p.logger.Error("Failed to subscribe to voxel topic", "error", err)
			if failed == nil {
				failed = errors.Wrapf(robot.ErrSensorEnableFailed, "subscribe %s: %v", catalog.TopicLidarVoxel, err)
			}
		}

		if failed == nil {
			p.logger.Info("Lidar enabled", "decoder", p.opts.Decoder)
		}
		return failed
	})
}

// activate marks the pipeline enabled and starts the poller. fresh is false
// when a concurrent Enable got there first. It fails when the session left
// Connected while the enable was queued.
func (p *Pipeline) activate() (gen uint64, fresh bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session.State() != session.Connected {
		return 0, false, robot.ErrNotConnected
	}
	if p.enabled {
		return p.gen, false, nil
	}
	p.gen++
	p.enabled = true
	p.latest = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.stopPoll, p.pollDone = cancel, done
	go p.poll(ctx, done)
	return p.gen, true, nil
}

// switchLidar publishes value on the switch topic using the first method in
// SwitchFallbackOrder that succeeds.
func (p *Pipeline) switchLidar(ctx context.Context, caps link.Capabilities, value string) (SwitchMethod, error) {
	var attempts []string
	for _, method := range SwitchFallbackOrder {
		err := p.trySwitch(ctx, caps, method, value)
		if err == nil {
			return method, nil
		}
		p.logger.Debug("Lidar switch attempt failed", "method", method, "value", value, "error", err)
		attempts = append(attempts, string(method)+": "+err.Error())
	}
	return "", errors.Wrapf(robot.ErrSensorEnableFailed, "lidar switch %q exhausted [%s]", value, strings.Join(attempts, "; "))
}

func (p *Pipeline) trySwitch(ctx context.Context, caps link.Capabilities, method SwitchMethod, value string) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	switch method {
	case SwitchRequest:
		if caps.Requester == nil {
			return robot.ErrUnsupported
		}
		resp, err := caps.Requester.Request(ctx, catalog.TopicLidarSwitch, link.Request{Parameter: value})
		if err != nil {
			return err
		}
		if !resp.OK() {
			return errors.Errorf("rejected with code %d", resp.Code)
		}
		return nil
	case SwitchPublish:
		if caps.Publisher == nil {
			return robot.ErrUnsupported
		}
		return caps.Publisher.Publish(ctx, catalog.TopicLidarSwitch, value)
	case SwitchUnacked:
		if caps.UnackedPublisher == nil {
			return robot.ErrUnsupported
		}
		return caps.UnackedPublisher.PublishUnacked(catalog.TopicLidarSwitch, value)
	default:
		return errors.Errorf("unknown switch method %q", method)
	}
}

// Disable switches the lidar off, drops the subscription, stops the poller
// and drops the held sample. Failing to switch off is only logged.
func (p *Pipeline) Disable(ctx context.Context) error {
	if !p.teardown() {
		return nil
	}
	p.logger.Info("Lidar disabled")
	if p.session.State() != session.Connected {
		return nil
	}
	return p.session.Run(ctx, func(ctx context.Context, l link.Link) error {
		if _, err := p.switchLidar(ctx, l.Capabilities(), catalog.LidarOff); err != nil {
			p.logger.Debug("Could not switch lidar off", "error", err)
		}
		if err := l.Unsubscribe(ctx, catalog.TopicLidarVoxel); err != nil {
			return errors.Wrap(err, "failed to unsubscribe from voxel topic")
		}
		return nil
	})
}

// teardown stops the poller and drops local state. It reports whether the
// pipeline was enabled.
func (p *Pipeline) teardown() bool {
	p.mu.Lock()
	was := p.enabled
	p.enabled = false
	p.gen++
	p.latest = nil
	stop, done := p.stopPoll, p.pollDone
	p.stopPoll, p.pollDone = nil, nil
	p.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	return was
}

// Enabled reports whether the pipeline is (at least partially) enabled.
func (p *Pipeline) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Poll returns the newest sample without consuming it.
func (p *Pipeline) Poll() (Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Sample{}, false
	}
	return *p.latest, true
}

func (p *Pipeline) handlePayload(gen uint64, pl link.Payload) {
	if pl.Record == nil {
		p.logger.Debug("Discarding opaque lidar payload", "topic", pl.Topic, "size", len(pl.Binary))
		return
	}
	points := Extract(pl.Record)
	if len(points) == 0 {
		p.logger.Debug("Lidar payload has no valid points", "topic", pl.Topic)
		return
	}
	received := pl.Received
	if received.IsZero() {
		received = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.gen != gen {
		return
	}
	p.seq++
	p.latest = &Sample{Points: points, Seq: p.seq, Received: received}
}

func (p *Pipeline) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			sample, sink := p.latest, p.sink
			p.mu.Unlock()
			if sample == nil || sample.Seq == last || sink == nil {
				continue
			}
			last = sample.Seq
			sink(*sample)
		}
	}
}
