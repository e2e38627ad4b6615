package video

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

var passthrough = FrameDecoderFunc(func(f link.EncodedFrame) (Frame, error) {
	return Frame{Data: f.Data, Width: 1, Height: 1, Format: "raw"}, nil
})

func newSession(t *testing.T, l *linktest.Link, connect bool) *session.Manager {
	t.Helper()
	l.Respond = func(topic string, req link.Request) (link.Response, error) {
		if topic == catalog.TopicMotionSwitcher {
			return link.Response{Data: `{"name":"normal"}`}, nil
		}
		return link.Response{}, nil
	}
	m := session.NewManager(func(session.ConnectionConfig) (link.Link, error) { return l, nil }, session.Options{
		HealthInterval: time.Hour,
		LossInterval:   10 * time.Millisecond,
		ModeSettle:     time.Millisecond,
		Logger:         quiet,
	})
	if connect {
		require.NoError(t, m.Connect(context.Background(), session.LocalAP()))
		t.Cleanup(func() { _ = m.Disconnect() })
	}
	return m
}

func frame(payload string) link.EncodedFrame {
	return link.EncodedFrame{Codec: "h264", Data: []byte(payload), Received: time.Now()}
}

func TestEnableRequiresConnectedSession(t *testing.T) {
	l := linktest.New()
	p := New(newSession(t, l, false), Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	assert.ErrorIs(t, p.Enable(context.Background()), robot.ErrNotConnected)
	assert.Empty(t, l.VideoSwitches())
	assert.Equal(t, 0, l.FrameHandlers())
}

func TestEnableWithoutVideoChannel(t *testing.T) {
	l := linktest.New()
	l.NoVideo = true
	p := New(newSession(t, l, true), Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	assert.ErrorIs(t, p.Enable(context.Background()), robot.ErrSensorEnableFailed)
	assert.False(t, p.Enabled())
}

func TestEnableSwitchFailure(t *testing.T) {
	l := linktest.New()
	l.SwitchVideoErr = linktest.ErrScripted
	p := New(newSession(t, l, true), Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	assert.ErrorIs(t, p.Enable(context.Background()), robot.ErrSensorEnableFailed)
	assert.Equal(t, 0, l.FrameHandlers())
}

func TestHolderKeepsOnlyNewestFrame(t *testing.T) {
	l := linktest.New()
	p := New(newSession(t, l, true), Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	_, ok := p.Poll()
	assert.False(t, ok)

	require.NoError(t, p.Enable(context.Background()))
	require.NoError(t, p.Enable(context.Background()))
	assert.Equal(t, []bool{true}, l.VideoSwitches())
	require.Equal(t, 1, l.FrameHandlers())

	for _, payload := range []string{"one", "two", "three"} {
		l.EmitFrame(frame(payload))
	}

	got, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, "three", string(got.Data))
	assert.Equal(t, uint64(3), got.Seq)

	again, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, got, again)
}

func TestDisableClearsHolder(t *testing.T) {
	l := linktest.New()
	p := New(newSession(t, l, true), Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	require.NoError(t, p.Enable(context.Background()))
	l.EmitFrame(frame("one"))
	require.NoError(t, p.Disable(context.Background()))

	_, ok := p.Poll()
	assert.False(t, ok)
	assert.Equal(t, []bool{true, false}, l.VideoSwitches())
	assert.Equal(t, 0, l.FrameHandlers())

	assert.Equal(t, 0, l.EmitFrame(frame("late")))
	_, ok = p.Poll()
	assert.False(t, ok)
}

func TestCallbackFromEarlierEnableIsIgnored(t *testing.T) {
	l := linktest.New()
	p := New(newSession(t, l, true), Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	require.NoError(t, p.Enable(context.Background()))
	p.mu.Lock()
	stale := p.gen
	p.mu.Unlock()

	require.NoError(t, p.Disable(context.Background()))
	require.NoError(t, p.Enable(context.Background()))

	p.handleFrame(stale, frame("stale"))
	_, ok := p.Poll()
	assert.False(t, ok)

	l.EmitFrame(frame("fresh"))
	got, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, "fresh", string(got.Data))
}

func TestUndecodableFramesAreDropped(t *testing.T) {
	l := linktest.New()
	p := New(newSession(t, l, true), Options{Logger: quiet})
	defer p.Close()

	require.NoError(t, p.Enable(context.Background()))
	l.EmitFrame(link.EncodedFrame{Data: append([]byte{0, 0, 0, 1}, pFrame...)})

	_, ok := p.Poll()
	assert.False(t, ok)
	received, dropped := p.Stats()
	assert.Equal(t, uint64(1), received)
	assert.Equal(t, uint64(1), dropped)
}

func TestEnableResetsDecoderState(t *testing.T) {
	l := linktest.New()
	p := New(newSession(t, l, true), Options{Logger: quiet})
	defer p.Close()

	require.NoError(t, p.Enable(context.Background()))
	l.EmitFrame(link.EncodedFrame{Data: annexB(sps, pps, idr)})
	got, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, 640, got.Width)

	require.NoError(t, p.Disable(context.Background()))
	require.NoError(t, p.Enable(context.Background()))
	l.EmitFrame(link.EncodedFrame{Data: annexB(pFrame)})

	_, ok = p.Poll()
	assert.False(t, ok)
	received, dropped := p.Stats()
	assert.Equal(t, uint64(2), received)
	assert.Equal(t, uint64(1), dropped)
}

func TestLossTearsPipelineDown(t *testing.T) {
	l := linktest.New()
	m := newSession(t, l, true)
	p := New(m, Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	require.NoError(t, p.Enable(context.Background()))
	l.EmitFrame(frame("one"))
	l.SetState(link.StateFailed)

	require.Eventually(t, func() bool { return !p.Enabled() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Lost, m.State())
	_, ok := p.Poll()
	assert.False(t, ok)
	assert.Equal(t, 0, l.FrameHandlers())
	assert.ErrorIs(t, p.Enable(context.Background()), robot.ErrNotConnected)
}

func TestToggleWhileFramesArrive(t *testing.T) {
	l := linktest.New()
	m := newSession(t, l, true)
	p := New(m, Options{Decoder: passthrough, Logger: quiet})
	defer p.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				l.EmitFrame(frame("tick"))
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := p.Enable(context.Background()); err != nil {
				t.Errorf("enable %d: %v", i, err)
				return
			}
			if err := p.Disable(context.Background()); err != nil {
				t.Errorf("disable %d: %v", i, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("enable/disable cycle stuck while frames are delivered")
	}

	require.NoError(t, p.Enable(context.Background()))
	l.SetState(link.StateFailed)
	require.Eventually(t, func() bool { return m.State() == session.Lost }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !p.Enabled() }, time.Second, 5*time.Millisecond)

	close(stop)
	wg.Wait()
	assert.Equal(t, 0, l.FrameHandlers())
	assert.NoError(t, m.Disconnect())
}
