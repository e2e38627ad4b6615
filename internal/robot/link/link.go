// Package link defines the boundary between the session core and the
// real-time transport that talks to the robot.
//
// A Link always offers connect/close, a low-level connectivity state and
// topic subscriptions. Every other primitive is an optional capability: a
// Link reports the ones it has through Capabilities, and callers resolve
// them once (for example when a sensor pipeline is enabled) instead of
// probing on each call. A nil field means the capability is absent.
package link

import (
	"context"
	"time"
)

// ConnState is the link's own view of transport connectivity.
type ConnState int

const (
	StateNew ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Dead reports whether the state means the link can never recover.
func (s ConnState) Dead() bool {
	return s == StateFailed || s == StateClosed
}

// Payload is one message delivered on a subscribed topic. Exactly one of
// Record and Binary is set: Record holds a decoded structured message
// (JSON-shaped maps, slices and scalars), Binary holds raw bytes still
// awaiting an external decoder.
type Payload struct {
	Topic    string
	Record   any
	Binary   []byte
	Received time.Time
}

// PayloadHandler receives topic payloads. It runs on the link's delivery
// goroutine and must not block.
type PayloadHandler func(Payload)

// Link is a live session object to the robot.
type Link interface {
	// Connect performs the transport handshake. It blocks until the link is
	// usable, ctx is done, or the handshake fails.
	Connect(ctx context.Context) error

	// Close tears down the transport. It is safe to call more than once.
	Close() error

	// State reports the low-level connectivity state without blocking.
	State() ConnState

	// Subscribe registers h for topic, replacing any earlier handler.
	Subscribe(ctx context.Context, topic string, h PayloadHandler) error

	// Unsubscribe drops the handler for topic.
	Unsubscribe(ctx context.Context, topic string) error

	// Capabilities lists the optional primitives this link supports.
	Capabilities() Capabilities
}

// Request is a request/response call addressed to an api id on a topic.
type Request struct {
	APIID     int
	Parameter any
}

// Response is the robot's reply to a Request. Code zero means success.
type Response struct {
	Code int
	Data string
}

// OK reports whether the response carries a success status.
func (r Response) OK() bool {
	return r.Code == 0
}

// Requester publishes a request and waits for the matching response.
type Requester interface {
	Request(ctx context.Context, topic string, req Request) (Response, error)
}

// Publisher sends a fire-and-forget message and reports whether the
// transport accepted it.
type Publisher interface {
	Publish(ctx context.Context, topic string, data any) error
}

// UnackedPublisher sends a message without waiting for any acknowledgement.
type UnackedPublisher interface {
	PublishUnacked(topic string, data any) error
}

// TrafficSaver toggles the robot's reduced-bandwidth payload mode.
type TrafficSaver interface {
	DisableTrafficSaving(ctx context.Context, disable bool) error
}

// DecoderSelector chooses how the link decodes compressed binary payloads.
type DecoderSelector interface {
	SelectDecoder(name string) error
}

// Heartbeater performs a lightweight liveness exchange.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// EncodedFrame is one compressed video access unit received from the robot.
type EncodedFrame struct {
	Codec     string
	Data      []byte
	Timestamp uint32
	Received  time.Time
}

// FrameHandler receives video frames on the link's media goroutine.
type FrameHandler func(EncodedFrame)

// VideoSource controls the robot's video channel.
type VideoSource interface {
	SwitchVideo(ctx context.Context, on bool) error

	// OnFrame registers h and returns a function that deregisters it.
	OnFrame(h FrameHandler) (cancel func())
}

// Capabilities is the set of optional primitives a Link supports.
type Capabilities struct {
	Requester        Requester
	Publisher        Publisher
	UnackedPublisher UnackedPublisher
	TrafficSaver     TrafficSaver
	DecoderSelector  DecoderSelector
	Heartbeater      Heartbeater
	Video            VideoSource
}
