// Package webrtc implements link.Link over a WebRTC peer connection to the
// robot: SDP signaling over HTTP, a JSON data channel for requests and topic
// traffic, and a receive-only H264 video track.
package webrtc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot/link"
	"github.com/go2ctl/go2ctl/internal/util"
)

// Link defaults.
const (
	DefaultHeartbeatInterval = 2 * time.Second
	DefaultValidationTimeout = 10 * time.Second
	DefaultGatherTimeout     = 5 * time.Second
)

var (
	// ErrChannelNotOpen is returned when sending before the data channel
	// is usable.
	ErrChannelNotOpen = errors.New("data channel not open")
	// ErrLinkClosed is returned to callers waiting on a closed link.
	ErrLinkClosed = errors.New("link closed")
)

// Resolver yields the signaler for a connection attempt. Address discovery
// happens here, under the caller's context.
type Resolver func(ctx context.Context) (Signaler, error)

// Options configures a Link.
type Options struct {
	Resolve           Resolver
	HeartbeatInterval time.Duration
	ValidationTimeout time.Duration
	GatherTimeout     time.Duration
	Logger            *slog.Logger
}

// Link is a WebRTC session to one robot.
type Link struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	subs    map[string]link.PayloadHandler
	pending map[string]chan responseBody
	inner   map[string]chan innerResponse
	beats   []chan struct{}
	decoder string

	state     atomic.Int32
	nextID    atomic.Int64
	frames    *frameFanout
	validated chan struct{}
	validOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns an unconnected link.
func New(opts Options) *Link {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ValidationTimeout <= 0 {
		opts.ValidationTimeout = DefaultValidationTimeout
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = DefaultGatherTimeout
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	l := &Link{
		opts:      opts,
		logger:    opts.Logger,
		subs:      make(map[string]link.PayloadHandler),
		pending:   make(map[string]chan responseBody),
		inner:     make(map[string]chan innerResponse),
		decoder:   DecoderNative,
		frames:    newFrameFanout(),
		validated: make(chan struct{}),
		done:      make(chan struct{}),
	}
	l.state.Store(int32(link.StateNew))
	l.nextID.Store(time.Now().UnixMilli() % 1_000_000_000)
	return l
}

// Connect negotiates the peer connection and waits for the robot to accept
// the validation handshake.
func (l *Link) Connect(ctx context.Context) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}
	if l.opts.Resolve == nil {
		return errors.New("no signaling resolver configured")
	}
	l.state.Store(int32(link.StateConnecting))

	signaler, err := l.opts.Resolve(ctx)
	if err != nil {
		l.state.Store(int32(link.StateFailed))
		return err
	}

	pc, err := createPeerConnection(l.logger)
	if err != nil {
		l.state.Store(int32(link.StateFailed))
		return err
	}
	dc, err := createDataChannel(pc)
	if err != nil {
		pc.Close()
		l.state.Store(int32(link.StateFailed))
		return err
	}

	l.mu.Lock()
	l.pc, l.dc = pc, dc
	l.mu.Unlock()

	pc.OnConnectionStateChange(l.onConnectionState)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			readVideoTrack(track, l.frames, l.logger)
			return
		}
		drainTrack(track)
	})
	dc.OnOpen(func() {
		l.logger.Debug("data channel open", "label", dc.Label())
	})
	dc.OnMessage(l.onMessage)

	if err := l.negotiate(ctx, pc, signaler); err != nil {
		l.fail()
		return err
	}

	timer := time.NewTimer(l.opts.ValidationTimeout)
	defer timer.Stop()
	select {
	case <-l.validated:
	case <-ctx.Done():
		l.fail()
		return ctx.Err()
	case <-timer.C:
		l.fail()
		return errors.New("timed out waiting for robot validation")
	case <-l.done:
		return ErrLinkClosed
	}

	l.wg.Add(1)
	go l.heartbeatLoop()
	l.logger.Info("link established")
	return nil
}

func (l *Link) negotiate(ctx context.Context, pc *webrtc.PeerConnection, signaler Signaler) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return errors.Wrap(err, "failed to create offer")
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return errors.Wrap(err, "failed to set local description")
	}

	select {
	case <-gathered:
	case <-time.After(l.opts.GatherTimeout):
		l.logger.Warn("ICE gathering timed out, sending partial candidates")
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := signaler.Exchange(ctx, *pc.LocalDescription())
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return errors.Wrap(err, "failed to set remote description")
	}
	return nil
}

func (l *Link) onConnectionState(s webrtc.PeerConnectionState) {
	l.logger.Debug("peer connection state", "state", s.String())
	select {
	case <-l.done:
		return
	default:
	}
	switch s {
	case webrtc.PeerConnectionStateConnecting, webrtc.PeerConnectionStateNew:
		l.state.Store(int32(link.StateConnecting))
	case webrtc.PeerConnectionStateConnected:
		l.state.Store(int32(link.StateConnected))
	case webrtc.PeerConnectionStateDisconnected:
		l.state.Store(int32(link.StateDisconnected))
	case webrtc.PeerConnectionStateFailed:
		l.state.Store(int32(link.StateFailed))
	case webrtc.PeerConnectionStateClosed:
		l.state.Store(int32(link.StateClosed))
	}
}

func (l *Link) fail() {
	l.state.Store(int32(link.StateFailed))
	l.mu.Lock()
	pc := l.pc
	l.mu.Unlock()
	if pc != nil {
		pc.Close()
	}
}

// Close tears down the peer connection and releases every waiter.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		l.state.Store(int32(link.StateClosed))
		l.mu.Lock()
		pc := l.pc
		l.mu.Unlock()
		if pc != nil {
			err = pc.Close()
		}
		l.wg.Wait()
	})
	return err
}

func (l *Link) State() link.ConnState {
	return link.ConnState(l.state.Load())
}

func (l *Link) Capabilities() link.Capabilities {
	return link.Capabilities{
		Requester:        l,
		Publisher:        l,
		UnackedPublisher: l,
		TrafficSaver:     l,
		DecoderSelector:  l,
		Heartbeater:      l,
		Video:            l,
	}
}

func (l *Link) Subscribe(ctx context.Context, topic string, h link.PayloadHandler) error {
	l.mu.Lock()
	l.subs[topic] = h
	l.mu.Unlock()
	if err := l.send(msgSubscribe, topic, nil); err != nil {
		l.mu.Lock()
		delete(l.subs, topic)
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *Link) Unsubscribe(ctx context.Context, topic string) error {
	l.mu.Lock()
	delete(l.subs, topic)
	l.mu.Unlock()
	return l.send(msgUnsubscribe, topic, nil)
}

// Request sends an api request on topic and waits for the response with the
// same identity.
func (l *Link) Request(ctx context.Context, topic string, req link.Request) (link.Response, error) {
	param, err := encodeParameter(req.Parameter)
	if err != nil {
		return link.Response{}, err
	}
	id := l.nextID.Add(1)
	key := pendingKey(topic, id)
	ch := make(chan responseBody, 1)

	l.mu.Lock()
	l.pending[key] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, key)
		l.mu.Unlock()
	}()

	body := requestBody{
		Header:    requestHeader{Identity: identity{ID: id, APIID: req.APIID}},
		Parameter: param,
	}
	if err := l.send(msgRequest, topic, body); err != nil {
		return link.Response{}, err
	}

	select {
	case res := <-ch:
		return link.Response{Code: res.Header.Status.Code, Data: responseData(res.Data)}, nil
	case <-ctx.Done():
		return link.Response{}, errors.Wrapf(ctx.Err(), "request %d on %s", req.APIID, topic)
	case <-l.done:
		return link.Response{}, ErrLinkClosed
	}
}

func (l *Link) Publish(ctx context.Context, topic string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.send(msgPublish, topic, data)
}

func (l *Link) PublishUnacked(topic string, data any) error {
	return l.send(msgPublish, topic, data)
}

func (l *Link) DisableTrafficSaving(ctx context.Context, disable bool) error {
	const reqType = "disable_traffic_saving"
	instruction := "off"
	if disable {
		instruction = "on"
	}
	ch := make(chan innerResponse, 1)
	l.mu.Lock()
	l.inner[reqType] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		if l.inner[reqType] == ch {
			delete(l.inner, reqType)
		}
		l.mu.Unlock()
	}()

	if err := l.send(msgInnerReq, "", innerRequest{ReqType: reqType, Instruction: instruction}); err != nil {
		return err
	}
	select {
	case res := <-ch:
		if res.Info.Execution != "ok" {
			return errors.Errorf("traffic saving change rejected: %q", res.Info.Execution)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLinkClosed
	}
}

func (l *Link) SelectDecoder(name string) error {
	switch name {
	case DecoderNative, DecoderNone:
	default:
		return errors.Errorf("unknown decoder %q", name)
	}
	l.mu.Lock()
	l.decoder = name
	l.mu.Unlock()
	return nil
}

// Heartbeat sends a heartbeat and waits for the robot to echo one.
func (l *Link) Heartbeat(ctx context.Context) error {
	ch := make(chan struct{})
	l.mu.Lock()
	l.beats = append(l.beats, ch)
	l.mu.Unlock()

	if err := l.send(msgHeartbeat, "", newHeartbeat(time.Now())); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLinkClosed
	}
}

func (l *Link) SwitchVideo(ctx context.Context, on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	return l.send(msgVideo, "", value)
}

func (l *Link) OnFrame(h link.FrameHandler) func() {
	return l.frames.add(h)
}

func (l *Link) heartbeatLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.send(msgHeartbeat, "", newHeartbeat(time.Now())); err != nil {
				l.logger.Debug("heartbeat not sent", "error", err)
			}
		}
	}
}

func (l *Link) send(typ, topic string, data any) error {
	msg, err := encodeEnvelope(typ, topic, data)
	if err != nil {
		return err
	}
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	if err := dc.SendText(string(msg)); err != nil {
		return errors.Wrapf(err, "failed to send %s", typ)
	}
	return nil
}

func (l *Link) onMessage(msg webrtc.DataChannelMessage) {
	if !msg.IsString {
		l.handleBinary(msg.Data)
		return
	}
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		l.logger.Debug("dropping malformed message", "error", err)
		return
	}
	l.handleEnvelope(env)
}

func (l *Link) handleEnvelope(env envelope) {
	switch env.Type {
	case msgValidation:
		l.handleValidation(env)
	case msgResponse:
		var res responseBody
		if err := json.Unmarshal(env.Data, &res); err != nil {
			l.logger.Debug("dropping malformed response", "topic", env.Topic, "error", err)
			return
		}
		l.mu.Lock()
		ch := l.pending[pendingKey(env.Topic, res.Header.Identity.ID)]
		l.mu.Unlock()
		if ch != nil {
			select {
			case ch <- res:
			default:
			}
		}
	case msgPublish:
		var record any
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &record); err != nil {
				l.logger.Debug("dropping malformed topic data", "topic", env.Topic, "error", err)
				return
			}
		}
		l.deliver(link.Payload{Topic: env.Topic, Record: record, Received: time.Now()})
	case msgHeartbeat:
		l.mu.Lock()
		beats := l.beats
		l.beats = nil
		l.mu.Unlock()
		for _, ch := range beats {
			close(ch)
		}
	case msgInnerReq:
		var res innerResponse
		if err := json.Unmarshal(env.Data, &res); err != nil {
			return
		}
		l.mu.Lock()
		ch := l.inner[res.ReqType]
		l.mu.Unlock()
		if ch != nil {
			select {
			case ch <- res:
			default:
			}
		}
	case msgError, msgErrors:
		err := &remoteError{Topic: env.Topic, Info: responseData(env.Data)}
		l.logger.Warn("robot reported error", "error", err)
	default:
		l.logger.Debug("unhandled message", "type", env.Type, "topic", env.Topic)
	}
}

func (l *Link) handleValidation(env envelope) {
	key := responseData(env.Data)
	if key == validationOK {
		l.validOnce.Do(func() { close(l.validated) })
		return
	}
	if err := l.send(msgValidation, "", validationResponse(key)); err != nil {
		l.logger.Warn("failed to answer validation", "error", err)
	}
}

func (l *Link) handleBinary(buf []byte) {
	frame, err := parseBinaryFrame(buf)
	if err != nil {
		l.logger.Debug("dropping malformed binary message", "error", err)
		return
	}
	l.mu.Lock()
	decoder := l.decoder
	l.mu.Unlock()

	p := link.Payload{Topic: frame.Header.Topic, Received: time.Now()}
	if decoder == DecoderNone {
		p.Binary = frame.Payload
	} else {
		record, err := voxelRecord(frame.Meta, frame.Payload)
		if err != nil {
			l.logger.Debug("failed to decode binary payload", "topic", p.Topic, "error", err)
			return
		}
		p.Record = record
	}
	l.deliver(p)
}

func (l *Link) deliver(p link.Payload) {
	l.mu.Lock()
	h := l.subs[p.Topic]
	l.mu.Unlock()
	if h != nil {
		h(p)
	}
}
