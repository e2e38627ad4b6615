// Package session owns the link to the robot: it connects, negotiates the
// motion mode, watches health and connectivity, and runs all link work on
// a single executor goroutine per session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/util"
)

// Default timings.
const (
	DefaultHealthInterval = 10 * time.Second
	DefaultLossInterval   = 5 * time.Second
	DefaultModeSettle     = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultQueueSize      = 64
)

// Dialer creates an unconnected link for cfg.
type Dialer func(cfg ConnectionConfig) (link.Link, error)

// Options tunes a Manager. Zero values take the defaults above.
type Options struct {
	HealthInterval time.Duration
	LossInterval   time.Duration
	ModeSettle     time.Duration
	RequestTimeout time.Duration
	QueueSize      int
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HealthInterval <= 0 {
		o.HealthInterval = DefaultHealthInterval
	}
	if o.LossInterval <= 0 {
		o.LossInterval = DefaultLossInterval
	}
	if o.ModeSettle < 0 {
		o.ModeSettle = 0
	} else if o.ModeSettle == 0 {
		o.ModeSettle = DefaultModeSettle
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = util.GetLogger()
	}
	return o
}

// Manager is the session manager. It is the only holder of the link; other
// components reach it through Run and Go.
type Manager struct {
	dial   Dialer
	opts   Options
	logger *slog.Logger

	// transitionMu serializes state changes together with their
	// notification so every observer sees transitions in order.
	transitionMu sync.Mutex

	mu             sync.RWMutex
	state          State
	cur            *worker
	connectCancel  context.CancelFunc
	connectDone    chan struct{}
	health         HealthSignal
	mode           string
	negotiationErr error

	obsMu     sync.Mutex
	observers map[uint64]Observer
	nextObs   uint64
}

// NewManager creates a disconnected manager.
func NewManager(dial Dialer, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		dial:      dial,
		opts:      opts,
		logger:    opts.Logger,
		state:     Disconnected,
		observers: make(map[uint64]Observer),
	}
}

// State returns the current state without blocking on link work.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Health returns the health signal of the current session.
func (m *Manager) Health() HealthSignal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// MotionMode returns the motion mode in effect after negotiation.
func (m *Manager) MotionMode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// NegotiationError returns the recorded motion mode negotiation failure of
// the current session, if any. Negotiation failures never fail Connect.
func (m *Manager) NegotiationError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.negotiationErr
}

// Subscribe registers an observer and returns a function removing it.
func (m *Manager) Subscribe(o Observer) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = o
	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.observers, id)
	}
}

// transition moves to `to` when expect accepts the current state. mutate
// runs under the state lock. Observers are notified before transitionMu is
// released.
func (m *Manager) transition(expect func(State) bool, to State, mutate func(), cause error) bool {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	from := m.state
	if expect != nil && !expect(from) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	if mutate != nil {
		mutate()
	}
	m.mu.Unlock()

	if from != to && notifiable(to) {
		m.notify(Change{From: from, To: to, At: time.Now(), Err: cause})
	}
	return true
}

func (m *Manager) notify(c Change) {
	m.obsMu.Lock()
	observers := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.obsMu.Unlock()

	for _, o := range observers {
		o(c)
	}
}

func stateIs(states ...State) func(State) bool {
	return func(s State) bool {
		for _, want := range states {
			if s == want {
				return true
			}
		}
		return false
	}
}

// Connect opens the link, negotiates the motion mode and starts the health
// and loss loops. It is valid from Disconnected and Lost. Negotiation
// failures are recorded but do not fail the connect.
func (m *Manager) Connect(ctx context.Context, cfg ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return &ConnectError{Stage: StageConfig, Err: err}
	}

	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	var previous *worker
	ok := m.transition(stateIs(Disconnected, Lost), Connecting, func() {
		previous = m.cur
		m.cur = nil
		m.connectCancel = cancel
		m.connectDone = done
		m.health = HealthSignal{}
		m.mode = ""
		m.negotiationErr = nil
	}, nil)
	if !ok {
		return &ConnectError{Stage: StageState, Err: errors.Errorf("cannot connect while %s", m.State())}
	}
	defer close(done)
	if previous != nil {
		previous.halt(robot.ErrSessionLost)
		if err := previous.link.Close(); err != nil {
			m.logger.Debug("Closing lost link failed", "session", previous.id, "error", err)
		}
	}

	id := uuid.NewString()
	logger := m.logger.With("session", id)
	logger.Info("Connecting to robot", "target", cfg.String())

	l, err := m.dial(cfg)
	if err != nil {
		return m.abortConnect(nil, &ConnectError{Stage: StageDial, Err: err})
	}

	w := newWorker(id, l, m.opts.QueueSize, logger)

	err = w.run(connectCtx, func(_ context.Context, l link.Link) error {
		return l.Connect(connectCtx)
	})
	if err != nil {
		return m.abortConnect(w, &ConnectError{Stage: StageHandshake, Err: err})
	}
	logger.Info("Link established")

	var mode string
	var negErr error
	err = w.run(connectCtx, func(ctx context.Context, l link.Link) error {
		mode, negErr = m.negotiate(ctx, l, logger)
		return nil
	})
	if err == nil {
		err = connectCtx.Err()
	}
	if err != nil {
		return m.abortConnect(w, &ConnectError{Stage: StageHandshake, Err: err})
	}
	if negErr != nil {
		logger.Warn("Motion mode negotiation failed, continuing", "error", negErr)
	}

	ok = m.transition(stateIs(Connecting), Connected, func() {
		m.cur = w
		m.connectCancel = nil
		m.connectDone = nil
		m.mode = mode
		m.negotiationErr = negErr
		m.health = HealthSignal{LastSuccess: time.Now()}
		w.spawn(func() { m.healthLoop(w) })
		w.spawn(func() { m.lossLoop(w) })
	}, nil)
	if !ok {
		return m.abortConnect(w, &ConnectError{Stage: StageState, Err: errors.Errorf("session changed to %s while connecting", m.State())})
	}

	logger.Info("Connected to robot", "mode", mode)
	return nil
}

func (m *Manager) abortConnect(w *worker, err *ConnectError) error {
	if w != nil {
		w.halt(err)
		if cerr := w.link.Close(); cerr != nil {
			w.logger.Debug("Closing link after failed connect", "error", cerr)
		}
	}
	m.transition(nil, Disconnected, func() {
		m.cur = nil
		m.connectCancel = nil
		m.connectDone = nil
	}, err)
	m.logger.Error("Connect failed", "stage", err.Stage, "error", err.Err)
	return err
}

// Disconnect stops the background loops, waits for them, closes the link
// and returns to Disconnected. During Connecting it cancels the attempt and
// waits for Connect to return, so the manager is Disconnected afterwards.
func (m *Manager) Disconnect() error {
	m.mu.RLock()
	state, cancel, done := m.state, m.connectCancel, m.connectDone
	m.mu.RUnlock()

	switch state {
	case Disconnected, Disconnecting:
		return nil
	case Connecting:
		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
		return nil
	}

	var w *worker
	var from State
	ok := m.transition(stateIs(Connected, Lost), Disconnecting, func() {
		from = m.state
		w = m.cur
	}, nil)
	if !ok {
		return nil
	}

	var closeErr error
	if w != nil {
		w.halt(robot.ErrNotConnected)
		if err := w.link.Close(); err != nil {
			closeErr = errors.Wrap(err, "failed to close link")
		}
	}

	m.transition(nil, Disconnected, func() {
		m.cur = nil
	}, nil)
	m.logger.Info("Disconnected from robot", "from", from.String())
	return closeErr
}

// Run executes job on the link goroutine and waits for its result. It
// fails with robot.ErrNotConnected unless the session is Connected.
func (m *Manager) Run(ctx context.Context, job Job) error {
	w, err := m.connectedWorker()
	if err != nil {
		return err
	}
	return w.run(ctx, job)
}

// Go enqueues job on the link goroutine without waiting. The returned
// channel yields exactly one result.
func (m *Manager) Go(job Job) (<-chan error, error) {
	w, err := m.connectedWorker()
	if err != nil {
		return nil, err
	}
	t, err := w.submit(context.Background(), job)
	if err != nil {
		return nil, err
	}
	out := make(chan error, 1)
	go func() {
		out <- w.await(context.Background(), t)
	}()
	return out, nil
}

func (m *Manager) connectedWorker() (*worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected || m.cur == nil {
		return nil, robot.ErrNotConnected
	}
	return m.cur, nil
}
