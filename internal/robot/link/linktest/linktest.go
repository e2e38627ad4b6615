// Package linktest provides an in-memory link.Link for tests. Every call
// is recorded; capabilities can be switched off individually and responses
// and failures scripted.
package linktest

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot/link"
)

// Call records one request or publish issued on the fake link.
type Call struct {
	Method string // "request", "publish", "publish_unacked"
	Topic  string
	APIID  int
	Data   any
}

// Responder scripts the reply to a request.
type Responder func(topic string, req link.Request) (link.Response, error)

// Link is a scriptable fake. Configure the exported fields before handing
// it to the code under test.
type Link struct {
	// Capabilities switched off when true.
	NoRequester        bool
	NoPublisher        bool
	NoUnackedPublisher bool
	NoTrafficSaver     bool
	NoDecoderSelector  bool
	NoHeartbeater      bool
	NoVideo            bool

	ConnectErr      error
	PublishErr      error
	UnackedErr      error
	SubscribeErr    error
	HeartbeatErr    error
	TrafficErr      error
	DecoderErr      error
	SwitchVideoErr  error
	Respond         Responder
	ConnectBlocking bool

	mu            sync.Mutex
	deliveryMu    sync.RWMutex
	state         link.ConnState
	calls         []Call
	subscriptions map[string]link.PayloadHandler
	subscribeLog  []string
	frameHandlers map[int]link.FrameHandler
	nextHandler   int
	videoSwitches []bool
	heartbeats    int
	decoder       string
	trafficSaving []bool
	closeCount    int
	connectCount  int
}

// New returns a fake link whose requests all succeed with an empty body.
func New() *Link {
	return &Link{
		subscriptions: make(map[string]link.PayloadHandler),
		frameHandlers: make(map[int]link.FrameHandler),
	}
}

var _ link.Link = (*Link)(nil)

func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	l.connectCount++
	l.state = link.StateConnecting
	blocking := l.ConnectBlocking
	l.mu.Unlock()

	if blocking {
		<-ctx.Done()
		l.SetState(link.StateFailed)
		return ctx.Err()
	}
	if l.ConnectErr != nil {
		l.SetState(link.StateFailed)
		return l.ConnectErr
	}
	l.SetState(link.StateConnected)
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeCount++
	l.state = link.StateClosed
	return nil
}

func (l *Link) State() link.ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetState forces the low-level connectivity state, e.g. to simulate a
// transport failure.
func (l *Link) SetState(s link.ConnState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

func (l *Link) Subscribe(_ context.Context, topic string, h link.PayloadHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribeLog = append(l.subscribeLog, "subscribe:"+topic)
	if l.SubscribeErr != nil {
		return l.SubscribeErr
	}
	l.subscriptions[topic] = h
	return nil
}

func (l *Link) Unsubscribe(_ context.Context, topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribeLog = append(l.subscribeLog, "unsubscribe:"+topic)
	delete(l.subscriptions, topic)
	return nil
}

func (l *Link) Capabilities() link.Capabilities {
	var caps link.Capabilities
	if !l.NoRequester {
		caps.Requester = requester{l}
	}
	if !l.NoPublisher {
		caps.Publisher = publisher{l}
	}
	if !l.NoUnackedPublisher {
		caps.UnackedPublisher = unacked{l}
	}
	if !l.NoTrafficSaver {
		caps.TrafficSaver = trafficSaver{l}
	}
	if !l.NoDecoderSelector {
		caps.DecoderSelector = decoderSelector{l}
	}
	if !l.NoHeartbeater {
		caps.Heartbeater = heartbeater{l}
	}
	if !l.NoVideo {
		caps.Video = video{l}
	}
	return caps
}

// SetHeartbeatErr changes the heartbeat result while the link is in use.
func (l *Link) SetHeartbeatErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.HeartbeatErr = err
}

// Deliver hands p to the handler subscribed on p.Topic, as the transport
// would. It reports whether a handler was registered.
func (l *Link) Deliver(p link.Payload) bool {
	l.mu.Lock()
	h, ok := l.subscriptions[p.Topic]
	l.mu.Unlock()
	if !ok {
		return false
	}
	if p.Received.IsZero() {
		p.Received = time.Now()
	}
	h(p)
	return true
}

// DeliverRecord is shorthand for delivering a structured payload.
func (l *Link) DeliverRecord(topic string, record any) bool {
	return l.Deliver(link.Payload{Topic: topic, Record: record})
}

// EmitFrame hands f to every registered frame handler. Deregistering a
// handler waits for deliveries in flight.
func (l *Link) EmitFrame(f link.EncodedFrame) int {
	l.deliveryMu.RLock()
	defer l.deliveryMu.RUnlock()

	l.mu.Lock()
	handlers := make([]link.FrameHandler, 0, len(l.frameHandlers))
	for _, h := range l.frameHandlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(f)
	}
	return len(handlers)
}

// Calls returns a copy of the recorded requests and publishes.
func (l *Link) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// CallsOn returns the recorded calls for one topic.
func (l *Link) CallsOn(topic string) []Call {
	var out []Call
	for _, c := range l.Calls() {
		if c.Topic == topic {
			out = append(out, c)
		}
	}
	return out
}

// SubscribeLog returns subscribe/unsubscribe operations in order.
func (l *Link) SubscribeLog() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.subscribeLog...)
}

// Subscribed reports whether a handler is registered for topic.
func (l *Link) Subscribed(topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.subscriptions[topic]
	return ok
}

// FrameHandlers returns the number of registered frame handlers.
func (l *Link) FrameHandlers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frameHandlers)
}

// VideoSwitches returns the on/off values sent to the video channel.
func (l *Link) VideoSwitches() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.videoSwitches...)
}

// Heartbeats returns the number of heartbeat exchanges.
func (l *Link) Heartbeats() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heartbeats
}

// Decoder returns the last selected decoder name.
func (l *Link) Decoder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decoder
}

// TrafficSaving returns the recorded traffic saving toggles.
func (l *Link) TrafficSaving() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.trafficSaving...)
}

// CloseCount returns how many times Close was called.
func (l *Link) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCount
}

// ConnectCount returns how many times Connect was called.
func (l *Link) ConnectCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectCount
}

func (l *Link) record(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

type requester struct{ l *Link }

func (r requester) Request(ctx context.Context, topic string, req link.Request) (link.Response, error) {
	r.l.record(Call{Method: "request", Topic: topic, APIID: req.APIID, Data: req.Parameter})
	if err := ctx.Err(); err != nil {
		return link.Response{}, err
	}
	if r.l.Respond != nil {
		return r.l.Respond(topic, req)
	}
	return link.Response{}, nil
}

type publisher struct{ l *Link }

func (p publisher) Publish(_ context.Context, topic string, data any) error {
	p.l.record(Call{Method: "publish", Topic: topic, Data: data})
	return p.l.PublishErr
}

type unacked struct{ l *Link }

func (u unacked) PublishUnacked(topic string, data any) error {
	u.l.record(Call{Method: "publish_unacked", Topic: topic, Data: data})
	return u.l.UnackedErr
}

type trafficSaver struct{ l *Link }

func (t trafficSaver) DisableTrafficSaving(_ context.Context, disable bool) error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	t.l.trafficSaving = append(t.l.trafficSaving, disable)
	return t.l.TrafficErr
}

type decoderSelector struct{ l *Link }

func (d decoderSelector) SelectDecoder(name string) error {
	d.l.mu.Lock()
	defer d.l.mu.Unlock()
	if d.l.DecoderErr != nil {
		return d.l.DecoderErr
	}
	d.l.decoder = name
	return nil
}

type heartbeater struct{ l *Link }

func (h heartbeater) Heartbeat(ctx context.Context) error {
	h.l.mu.Lock()
	h.l.heartbeats++
	err := h.l.HeartbeatErr
	h.l.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

type video struct{ l *Link }

func (v video) SwitchVideo(_ context.Context, on bool) error {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()
	v.l.videoSwitches = append(v.l.videoSwitches, on)
	return v.l.SwitchVideoErr
}

func (v video) OnFrame(h link.FrameHandler) func() {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()
	id := v.l.nextHandler
	v.l.nextHandler++
	v.l.frameHandlers[id] = h
	return func() {
		v.l.deliveryMu.Lock()
		defer v.l.deliveryMu.Unlock()
		v.l.mu.Lock()
		defer v.l.mu.Unlock()
		delete(v.l.frameHandlers, id)
	}
}

// ErrScripted is a ready-made failure for scripted responders.
var ErrScripted = errors.New("scripted failure")
