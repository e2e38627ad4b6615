// Package dispatch turns named commands into link requests. Submit never
// blocks on the network: validation happens on the caller's goroutine and
// the request itself runs on the session's link goroutine.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/robot/session"
	"github.com/go2ctl/go2ctl/internal/util"
)

// Outcome is the result of one submitted command. Err is nil on success and
// otherwise matches one of the robot error sentinels via errors.Is.
type Outcome struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Err     error  `json:"-"`
}

// Error returns the outcome error text, or "" on success.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Session is the part of the session manager the dispatcher needs.
type Session interface {
	State() session.State
	Go(job session.Job) (<-chan error, error)
}

// Options configures a Dispatcher.
type Options struct {
	Catalog *catalog.Catalog
	// Timeout bounds one request/response exchange.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher validates, serializes and publishes commands.
type Dispatcher struct {
	session Session
	catalog *catalog.Catalog
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.RWMutex
	listeners map[int]func(Outcome)
	nextID    int
}

// New creates a dispatcher on top of s.
func New(s Session, opts Options) *Dispatcher {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = session.DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	return &Dispatcher{
		session:   s,
		catalog:   opts.Catalog,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		listeners: make(map[int]func(Outcome)),
	}
}

// Catalog returns the command catalog used for validation.
func (d *Dispatcher) Catalog() *catalog.Catalog {
	return d.catalog
}

// OnOutcome registers fn to receive every outcome just before it is
// delivered to the submitter. The returned function removes it.
func (d *Dispatcher) OnOutcome(fn func(Outcome)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// Submit validates cmd and hands it to the link goroutine. The returned
// channel yields exactly one Outcome and is then closed. Commands submitted
// from one goroutine reach the link in submission order.
func (d *Dispatcher) Submit(cmd robot.Command) <-chan Outcome {
	out := make(chan Outcome, 1)

	wire, err := d.catalog.Translate(cmd)
	if err != nil {
		d.finish(out, cmd, err)
		return out
	}
	if s := d.session.State(); s != session.Connected {
		d.finish(out, cmd, errors.Wrapf(robot.ErrNotConnected, "session is %s", s))
		return out
	}

	done, err := d.session.Go(func(ctx context.Context, l link.Link) error {
		return d.publish(ctx, l, cmd.Name, wire)
	})
	if err != nil {
		d.finish(out, cmd, err)
		return out
	}

	go func() {
		d.finish(out, cmd, <-done)
	}()
	return out
}

// Execute submits cmd and waits for its outcome or ctx.
func (d *Dispatcher) Execute(ctx context.Context, cmd robot.Command) Outcome {
	select {
	case o := <-d.Submit(cmd):
		return o
	case <-ctx.Done():
		return Outcome{Command: cmd.Name, Err: ctx.Err()}
	}
}

func (d *Dispatcher) publish(ctx context.Context, l link.Link, name string, wire catalog.Wire) error {
	req := l.Capabilities().Requester
	if req == nil {
		return errors.Wrap(robot.ErrUnsupported, "link cannot issue requests")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	r := link.Request{APIID: wire.APIID}
	if wire.Parameter != nil {
		r.Parameter = wire.Parameter
	}
	d.logger.Debug("Publishing command", "command", name, "topic", wire.Topic, "api_id", wire.APIID)
	resp, err := req.Request(ctx, wire.Topic, r)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errors.Errorf("robot replied with code %d", resp.Code)
	}
	return nil
}

func (d *Dispatcher) finish(out chan<- Outcome, cmd robot.Command, err error) {
	o := Outcome{Command: cmd.Name, Success: err == nil, Err: classify(err)}
	if o.Success {
		d.logger.Info("Command succeeded", "command", cmd.Name)
	} else {
		d.logger.Warn("Command failed", "command", cmd.Name, "error", o.Err)
	}

	d.mu.RLock()
	listeners := make([]func(Outcome), 0, len(d.listeners))
	for _, fn := range d.listeners {
		listeners = append(listeners, fn)
	}
	d.mu.RUnlock()
	for _, fn := range listeners {
		fn(o)
	}

	out <- o
	close(out)
}

// classify keeps the pre-link rejections as they are and marks everything
// that happened on or after the link as a command failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, robot.ErrUnknownCommand),
		errors.Is(err, robot.ErrInvalidParameters),
		errors.Is(err, robot.ErrNotConnected),
		errors.Is(err, robot.ErrQueueFull),
		errors.Is(err, robot.ErrCommandFailed):
		return err
	default:
		return &commandError{err: err}
	}
}

// commandError marks a link-side error as a command failure while keeping
// the cause reachable through errors.Is.
type commandError struct {
	err error
}

func (e *commandError) Error() string {
	return robot.ErrCommandFailed.Error() + ": " + e.err.Error()
}

func (e *commandError) Unwrap() []error {
	return []error{robot.ErrCommandFailed, e.err}
}
