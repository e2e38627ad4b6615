package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/link"
)

// Job is work handed to the link goroutine. ctx is cancelled when the
// session is torn down or the submitting caller gives up.
type Job func(ctx context.Context, l link.Link) error

type task struct {
	ctx  context.Context
	job  Job
	done chan error
}

// worker owns one link for the lifetime of a session. A single executor
// goroutine runs jobs in submission order; the health and loss loops run
// beside it and share its cancellation.
type worker struct {
	id     string
	link   link.Link
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	work   chan task

	wg       sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once
}

func newWorker(id string, l link.Link, queueSize int, logger *slog.Logger) *worker {
	ctx, cancel := context.WithCancelCause(context.Background())
	w := &worker{
		id:      id,
		link:    l,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		work:    make(chan task, queueSize),
		stopped: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case t := <-w.work:
			t.done <- w.exec(t)
		}
	}
}

func (w *worker) exec(t task) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancelCause(w.ctx)
	defer cancel(nil)
	stop := context.AfterFunc(t.ctx, func() { cancel(context.Cause(t.ctx)) })
	defer stop()
	return t.job(ctx, w.link)
}

// drain fails every queued task with the teardown cause.
func (w *worker) drain() {
	cause := context.Cause(w.ctx)
	for {
		select {
		case t := <-w.work:
			t.done <- cause
		default:
			return
		}
	}
}

// submit enqueues job without blocking.
func (w *worker) submit(ctx context.Context, job Job) (task, error) {
	if w.ctx.Err() != nil {
		return task{}, context.Cause(w.ctx)
	}
	t := task{ctx: ctx, job: job, done: make(chan error, 1)}
	select {
	case w.work <- t:
		return t, nil
	default:
		return task{}, robot.ErrQueueFull
	}
}

// await waits for t's result. A task stranded by teardown resolves to the
// teardown cause.
func (w *worker) await(ctx context.Context, t task) error {
	select {
	case err := <-t.done:
		return err
	case <-w.stopped:
		select {
		case err := <-t.done:
			return err
		default:
			return context.Cause(w.ctx)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *worker) run(ctx context.Context, job Job) error {
	t, err := w.submit(ctx, job)
	if err != nil {
		return err
	}
	return w.await(ctx, t)
}

// spawn starts a background loop tied to the worker's lifetime.
func (w *worker) spawn(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// halt cancels the executor and loops, then waits for in-flight iterations
// to finish. Safe to call concurrently and more than once.
func (w *worker) halt(cause error) {
	w.cancel(cause)
	w.wg.Wait()
	w.stopOnce.Do(func() { close(w.stopped) })
}

func (w *worker) done() <-chan struct{} {
	return w.ctx.Done()
}
