package lidar

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

func newSession(t *testing.T, l *linktest.Link, connect bool) *session.Manager {
	t.Helper()
	if l.Respond == nil {
		l.Respond = func(topic string, req link.Request) (link.Response, error) {
			if topic == catalog.TopicMotionSwitcher {
				return link.Response{Data: `{"name":"normal"}`}, nil
			}
			return link.Response{}, nil
		}
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

func newPipeline(t *testing.T, l *linktest.Link, connect bool) *Pipeline {
	t.Helper()
	p := New(newSession(t, l, connect), Options{Logger: quiet, PollInterval: 10 * time.Millisecond})
	t.Cleanup(p.Close)
	return p
}

func points(coords ...[3]float64) []any {
	out := make([]any, 0, len(coords))
	for _, c := range coords {
		out = append(out, []any{c[0], c[1], c[2]})
	}
	return out
}

func TestEnableRequiresConnectedSession(t *testing.T) {
	l := linktest.New()
	p := newPipeline(t, l, false)

	assert.ErrorIs(t, p.Enable(context.Background()), robot.ErrNotConnected)
	assert.Empty(t, l.CallsOn(catalog.TopicLidarSwitch))
	assert.Empty(t, l.SubscribeLog())
}

func TestEnableSequence(t *testing.T) {
	l := linktest.New()
	p := newPipeline(t, l, true)

	require.NoError(t, p.Enable(context.Background()))

	assert.Equal(t, []bool{true}, l.TrafficSaving())
	assert.Equal(t, DefaultDecoder, l.Decoder())
	calls := l.CallsOn(catalog.TopicLidarSwitch)
	require.Len(t, calls, 1)
	assert.Equal(t, "request", calls[0].Method)
	assert.Equal(t, catalog.LidarOn, calls[0].Data)
	assert.Equal(t, []string{
		"unsubscribe:" + catalog.TopicLidarVoxel,
		"subscribe:" + catalog.TopicLidarVoxel,
	}, l.SubscribeLog())
	assert.True(t, p.Enabled())

	require.NoError(t, p.Enable(context.Background()))
	assert.Len(t, l.CallsOn(catalog.TopicLidarSwitch), 1)
}

func TestSwitchFallsBackToPublish(t *testing.T) {
	l := linktest.New()
	l.Respond = func(topic string, req link.Request) (link.Response, error) {
		switch topic {
		case catalog.TopicMotionSwitcher:
			return link.Response{Data: `{"name":"normal"}`}, nil
		case catalog.TopicLidarSwitch:
			return link.Response{}, robot.ErrUnsupported
		}
		return link.Response{}, nil
	}
	p := newPipeline(t, l, true)

	require.NoError(t, p.Enable(context.Background()))

	var published []linktest.Call
	for _, c := range l.CallsOn(catalog.TopicLidarSwitch) {
		if c.Method != "request" {
			published = append(published, c)
		}
	}
	require.Len(t, published, 1)
	assert.Equal(t, "publish", published[0].Method)
	assert.Equal(t, catalog.LidarOn, published[0].Data)
}

func TestSwitchWithoutRequesterUsesSecondMethod(t *testing.T) {
	l := linktest.New()
	l.NoRequester = true
	p := newPipeline(t, l, true)

	require.NoError(t, p.Enable(context.Background()))

	calls := l.CallsOn(catalog.TopicLidarSwitch)
	require.Len(t, calls, 1)
	assert.Equal(t, "publish", calls[0].Method)
	assert.Equal(t, catalog.LidarOn, calls[0].Data)
}

func TestSwitchExhaustionLeavesPartialEnable(t *testing.T) {
	l := linktest.New()
	l.NoRequester = true
	l.PublishErr = linktest.ErrScripted
	l.UnackedErr = linktest.ErrScripted
	p := newPipeline(t, l, true)

	err := p.Enable(context.Background())
	assert.ErrorIs(t, err, robot.ErrSensorEnableFailed)

	calls := l.CallsOn(catalog.TopicLidarSwitch)
	require.Len(t, calls, 2)
	assert.Equal(t, "publish", calls[0].Method)
	assert.Equal(t, "publish_unacked", calls[1].Method)
	assert.True(t, l.Subscribed(catalog.TopicLidarVoxel))
	assert.True(t, p.Enabled())
}

func TestOptionalStepFailuresAreAbsorbed(t *testing.T) {
	l := linktest.New()
	l.TrafficErr = linktest.ErrScripted
	l.DecoderErr = linktest.ErrScripted
	p := newPipeline(t, l, true)

	require.NoError(t, p.Enable(context.Background()))
	assert.True(t, l.Subscribed(catalog.TopicLidarVoxel))
}

func TestSubscribeFailure(t *testing.T) {
	l := linktest.New()
	l.SubscribeErr = linktest.ErrScripted
	p := newPipeline(t, l, true)

	assert.ErrorIs(t, p.Enable(context.Background()), robot.ErrSensorEnableFailed)
}

func TestPayloadHandling(t *testing.T) {
	l := linktest.New()
	p := newPipeline(t, l, true)
	require.NoError(t, p.Enable(context.Background()))

	require.True(t, l.DeliverRecord(catalog.TopicLidarVoxel, map[string]any{
		"data": map[string]any{"points": points([3]float64{1, 2, 3}, [3]float64{4, 5, 6})},
	}))
	first, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, []Point{{1, 2, 3}, {4, 5, 6}}, first.Points)
	assert.Equal(t, uint64(1), first.Seq)

	l.DeliverRecord(catalog.TopicLidarVoxel, map[string]any{"data": map[string]any{"points": []any{}}})
	l.DeliverRecord(catalog.TopicLidarVoxel, map[string]any{"data": []any{[]any{1.0, "a", 3.0}}})
	l.Deliver(link.Payload{Topic: catalog.TopicLidarVoxel, Binary: []byte{0x01, 0x02, 0x03}})

	again, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, first, again)

	l.DeliverRecord(catalog.TopicLidarVoxel, []any{
		map[string]any{"x": 7.0, "y": 8.0, "z": 9.0},
		map[string]any{"x": 1.0, "y": "bad", "z": 0.0},
	})
	next, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, []Point{{7, 8, 9}}, next.Points)
	assert.Equal(t, uint64(2), next.Seq)
}

func TestDisable(t *testing.T) {
	l := linktest.New()
	p := newPipeline(t, l, true)
	require.NoError(t, p.Enable(context.Background()))
	l.DeliverRecord(catalog.TopicLidarVoxel, points([3]float64{1, 1, 1}))

	require.NoError(t, p.Disable(context.Background()))

	_, ok := p.Poll()
	assert.False(t, ok)
	assert.False(t, p.Enabled())
	assert.False(t, l.Subscribed(catalog.TopicLidarVoxel))
	calls := l.CallsOn(catalog.TopicLidarSwitch)
	require.Len(t, calls, 2)
	assert.Equal(t, catalog.LidarOff, calls[1].Data)
}

func TestDisableToleratesSwitchExhaustion(t *testing.T) {
	l := linktest.New()
	l.NoRequester = true
	l.NoPublisher = true
	p := newPipeline(t, l, true)
	require.NoError(t, p.Enable(context.Background()))

	l.UnackedErr = linktest.ErrScripted
	assert.NoError(t, p.Disable(context.Background()))
	assert.False(t, p.Enabled())
}

func TestSinkReceivesEachSampleOnce(t *testing.T) {
	l := linktest.New()
	p := newPipeline(t, l, true)

	var mu sync.Mutex
	var got []uint64
	p.SetSink(func(s Sample) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s.Seq)
	})
	require.NoError(t, p.Enable(context.Background()))

	l.DeliverRecord(catalog.TopicLidarVoxel, points([3]float64{1, 2, 3}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	l.DeliverRecord(catalog.TopicLidarVoxel, points([3]float64{4, 5, 6}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestLossTearsPipelineDown(t *testing.T) {
	l := linktest.New()
	m := newSession(t, l, true)
	p := New(m, Options{Logger: quiet})
	defer p.Close()

	require.NoError(t, p.Enable(context.Background()))
	l.DeliverRecord(catalog.TopicLidarVoxel, points([3]float64{1, 2, 3}))
	l.SetState(link.StateClosed)

	require.Eventually(t, func() bool { return !p.Enabled() }, time.Second, 5*time.Millisecond)
	_, ok := p.Poll()
	assert.False(t, ok)
	assert.ErrorIs(t, p.Enable(context.Background()), robot.ErrNotConnected)
}
