package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/robot/link/linktest"
	"github.com/go2ctl/go2ctl/internal/robot/session"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func normalMode(topic string, req link.Request) (link.Response, error) {
	if topic == catalog.TopicMotionSwitcher {
		return link.Response{Data: `{"name":"normal"}`}, nil
	}
	return link.Response{}, nil
}

func newSession(t *testing.T, l *linktest.Link, connect bool) *session.Manager {
	t.Helper()
	m := session.NewManager(func(session.ConnectionConfig) (link.Link, error) { return l, nil }, session.Options{
		HealthInterval: time.Hour,
		LossInterval:   time.Hour,
		ModeSettle:     time.Millisecond,
		Logger:         quiet,
	})
	if connect {
		require.NoError(t, m.Connect(context.Background(), session.LocalStationHost("192.168.8.181")))
		t.Cleanup(func() { _ = m.Disconnect() })
	}
	return m
}

func wait(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o, ok := <-ch:
		require.True(t, ok, "outcome channel closed without a value")
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func TestSubmitMoveForwardPublishesOnce(t *testing.T) {
	l := linktest.New()
	l.Respond = normalMode
	d := New(newSession(t, l, true), Options{Logger: quiet})

	cmd := robot.NewCommand("move_forward").With("x", 0.5).With("y", 0).With("z", 0)
	o := wait(t, d.Submit(cmd))

	require.True(t, o.Success, o.Error())
	calls := l.CallsOn(catalog.TopicSport)
	require.Len(t, calls, 1)
	assert.Equal(t, "request", calls[0].Method)
	assert.Equal(t, catalog.APIMove, calls[0].APIID)
	assert.Equal(t, map[string]any{"x": 0.5, "y": 0.0, "z": 0.0}, calls[0].Data)
}

func TestSubmitWithoutParametersSendsNoParameter(t *testing.T) {
	l := linktest.New()
	l.Respond = normalMode
	d := New(newSession(t, l, true), Options{Logger: quiet})

	o := wait(t, d.Submit(robot.NewCommand("hello")))
	require.True(t, o.Success)

	calls := l.CallsOn(catalog.TopicSport)
	require.Len(t, calls, 1)
	assert.Equal(t, catalog.APIHello, calls[0].APIID)
	assert.Nil(t, calls[0].Data)
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
		cmd     robot.Command
		wantErr error
	}{
		{
			name:    "disconnected",
			cmd:     robot.NewCommand("move_forward").With("x", 0.5).With("y", 0).With("z", 0),
			wantErr: robot.ErrNotConnected,
		},
		{
			name:    "unknown while connected",
			connect: true,
			cmd:     robot.NewCommand("backflip_twice"),
			wantErr: robot.ErrUnknownCommand,
		},
		{
			name:    "unknown while disconnected",
			cmd:     robot.NewCommand("backflip_twice"),
			wantErr: robot.ErrUnknownCommand,
		},
		{
			name:    "bad parameter type",
			connect: true,
			cmd:     robot.NewCommand("move").With("x", "fast").With("y", 0).With("z", 0),
			wantErr: robot.ErrInvalidParameters,
		},
		{
			name:    "missing parameter",
			connect: true,
			cmd:     robot.NewCommand("move").With("x", 0.2),
			wantErr: robot.ErrInvalidParameters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := linktest.New()
			l.Respond = normalMode
			d := New(newSession(t, l, tt.connect), Options{Logger: quiet})

			ch := d.Submit(tt.cmd)
			select {
			case o := <-ch:
				assert.False(t, o.Success)
				assert.ErrorIs(t, o.Err, tt.wantErr)
			default:
				t.Fatal("rejection outcome must be available immediately")
			}
			assert.Empty(t, l.CallsOn(catalog.TopicSport))
		})
	}
}

func TestSubmitReportsCommandFailure(t *testing.T) {
	tests := []struct {
		name    string
		respond linktest.Responder
		cause   error
	}{
		{
			name: "non-zero code",
			respond: func(topic string, req link.Request) (link.Response, error) {
				if topic == catalog.TopicSport {
					return link.Response{Code: 3203}, nil
				}
				return normalMode(topic, req)
			},
		},
		{
			name: "transport error",
			respond: func(topic string, req link.Request) (link.Response, error) {
				if topic == catalog.TopicSport {
					return link.Response{}, linktest.ErrScripted
				}
				return normalMode(topic, req)
			},
			cause: linktest.ErrScripted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := linktest.New()
			l.Respond = tt.respond
			d := New(newSession(t, l, true), Options{Logger: quiet})

			o := wait(t, d.Submit(robot.NewCommand("stand_up")))
			assert.False(t, o.Success)
			assert.ErrorIs(t, o.Err, robot.ErrCommandFailed)
			if tt.cause != nil {
				assert.ErrorIs(t, o.Err, tt.cause)
				assert.Contains(t, o.Err.Error(), tt.cause.Error())
			}
			assert.Len(t, l.CallsOn(catalog.TopicSport), 1)
		})
	}
}

func TestSubmitPreservesOrder(t *testing.T) {
	l := linktest.New()
	l.Respond = normalMode
	d := New(newSession(t, l, true), Options{Logger: quiet})

	names := []string{"stand_up", "hello", "stretch", "sit", "rise_sit", "dance1", "stop", "stand_down"}
	var pending []<-chan Outcome
	for _, name := range names {
		pending = append(pending, d.Submit(robot.NewCommand(name)))
	}
	for _, ch := range pending {
		require.True(t, wait(t, ch).Success)
	}

	calls := l.CallsOn(catalog.TopicSport)
	require.Len(t, calls, len(names))
	c := catalog.Default()
	for i, name := range names {
		e, ok := c.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, e.APIID, calls[i].APIID, name)
	}
}

func TestOutcomeListeners(t *testing.T) {
	l := linktest.New()
	l.Respond = normalMode
	d := New(newSession(t, l, true), Options{Logger: quiet})

	var mu sync.Mutex
	var seen []Outcome
	remove := d.OnOutcome(func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, o)
	})

	wait(t, d.Submit(robot.NewCommand("hello")))
	wait(t, d.Submit(robot.NewCommand("nope")))
	remove()
	wait(t, d.Submit(robot.NewCommand("hello")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Success)
	assert.Equal(t, "nope", seen[1].Command)
	assert.ErrorIs(t, seen[1].Err, robot.ErrUnknownCommand)
}

func TestExecuteWaitsForOutcome(t *testing.T) {
	l := linktest.New()
	l.Respond = normalMode
	d := New(newSession(t, l, true), Options{Logger: quiet})

	o := d.Execute(context.Background(), robot.NewCommand("stop"))
	assert.True(t, o.Success)
	assert.Equal(t, "stop", o.Command)
}
