// Package video ingests the robot's video track into a single-slot,
// latest-wins frame holder.
package video

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/robot/session"
	"github.com/go2ctl/go2ctl/internal/util"
)

// Frame is one decoded video frame. Superseded frames are dropped.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    string
	KeyFrame  bool
	Seq       uint64
	Timestamp time.Time
}

// Session is the part of the session manager the pipeline needs.
type Session interface {
	State() session.State
	Run(ctx context.Context, job session.Job) error
	Subscribe(o session.Observer) func()
}

// Options configures a Pipeline.
type Options struct {
	Decoder FrameDecoder
	Logger  *slog.Logger
}

// Pipeline owns the video subscription of one session manager.
type Pipeline struct {
	session Session
	decoder FrameDecoder
	logger  *slog.Logger

	mu       sync.Mutex
	enabled  bool
	gen      uint64
	seq      uint64
	detach   func()
	latest   *Frame
	received uint64
	dropped  uint64

	unsubscribe func()
}

// New creates a disabled pipeline and attaches it to s so that loss or
// disconnect tears it down.
func New(s Session, opts Options) *Pipeline {
	if opts.Decoder == nil {
		opts.Decoder = NewH264Decoder()
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	p := &Pipeline{
		session: s,
		decoder: opts.Decoder,
		logger:  opts.Logger.With("pipeline", "video"),
	}
	p.unsubscribe = s.Subscribe(p.onStateChange)
	return p
}

// Close detaches the pipeline from the session manager and drops any
// local state.
func (p *Pipeline) Close() {
	p.unsubscribe()
	p.teardown()
}

func (p *Pipeline) onStateChange(c session.Change) {
	if c.To == session.Lost || c.To == session.Disconnected {
		if p.teardown() {
			p.logger.Info("Video pipeline torn down", "state", c.To.String())
		}
	}
}

// Enable switches the robot's video channel on and starts collecting
// frames. Enabling an enabled pipeline is a no-op.
func (p *Pipeline) Enable(ctx context.Context) error {
	if p.session.State() != session.Connected {
		return robot.ErrNotConnected
	}
	if p.Enabled() {
		return nil
	}

	return p.session.Run(ctx, func(ctx context.Context, l link.Link) error {
		src := l.Capabilities().Video
		if src == nil {
			return errors.Wrap(robot.ErrSensorEnableFailed, "link has no video channel")
		}
		if err := src.SwitchVideo(ctx, true); err != nil {
			return errors.Wrapf(robot.ErrSensorEnableFailed, "switch video on: %v", err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		// A loss observed while switching wins over this enable.
		if p.session.State() != session.Connected {
			return robot.ErrNotConnected
		}
		if p.enabled {
			return nil
		}
		if r, ok := p.decoder.(Resetter); ok {
			r.Reset()
		}
		p.gen++
		gen := p.gen
		p.detach = src.OnFrame(func(f link.EncodedFrame) {
			p.handleFrame(gen, f)
		})
		p.enabled = true
		p.logger.Info("Video enabled")
		return nil
	})
}

// Disable switches the video channel off, deregisters the frame callback
// and clears the holder.
func (p *Pipeline) Disable(ctx context.Context) error {
	if !p.teardown() {
		return nil
	}
	p.logger.Info("Video disabled")
	if p.session.State() != session.Connected {
		return nil
	}
	return p.session.Run(ctx, func(ctx context.Context, l link.Link) error {
		src := l.Capabilities().Video
		if src == nil {
			return nil
		}
		if err := src.SwitchVideo(ctx, false); err != nil {
			p.logger.Warn("Failed to switch video off", "error", err)
			return errors.Wrap(err, "failed to switch video off")
		}
		return nil
	})
}

// teardown clears local state and reports whether the pipeline was enabled.
// The frame callback is deregistered after p.mu is released; a delivery in
// flight needs p.mu to finish.
func (p *Pipeline) teardown() bool {
	p.mu.Lock()
	was := p.enabled
	p.enabled = false
	p.gen++
	p.latest = nil
	detach := p.detach
	p.detach = nil
	p.mu.Unlock()

	if detach != nil {
		detach()
	}
	return was
}

// Enabled reports whether frames are being collected.
func (p *Pipeline) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Poll returns the newest frame without consuming it.
func (p *Pipeline) Poll() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Frame{}, false
	}
	return *p.latest, true
}

// Stats returns how many frames were received and how many of those could
// not be decoded.
func (p *Pipeline) Stats() (received, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received, p.dropped
}

func (p *Pipeline) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled && p.gen == gen
}

func (p *Pipeline) handleFrame(gen uint64, f link.EncodedFrame) {
	if !p.current(gen) {
		return
	}
	frame, err := p.decoder.Decode(f)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.gen != gen {
		return
	}
	p.received++
	if err != nil {
		p.dropped++
		p.logger.Debug("Dropping undecodable frame", "size", len(f.Data), "error", err)
		return
	}
	p.seq++
	frame.Seq = p.seq
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	p.latest = &frame
}
