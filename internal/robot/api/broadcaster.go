package api

import (
	"sync"

	"github.com/go2ctl/go2ctl/internal/util"
)

// Broadcaster fans encoded messages out to websocket clients. The latest
// message of each type is cached and replayed to new subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- []byte
	last        map[string][]byte
	closed      bool
}

// NewBroadcaster creates a new broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]chan<- []byte),
		last:        make(map[string][]byte),
	}
}

// Subscribe adds a subscriber and returns the channel it reads from. Cached
// messages are queued first.
func (b *Broadcaster) Subscribe(subscriberID string, bufferSize int) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan []byte)
		close(ch)
		return ch
	}

	ch := make(chan []byte, bufferSize)
	b.subscribers[subscriberID] = ch
	for typ, msg := range b.last {
		select {
		case ch <- msg:
		default:
			util.GetLogger().Warn("Failed to replay cached message (channel full)", "id", subscriberID, "type", typ)
		}
	}

	util.GetLogger().Debug("New subscriber added", "id", subscriberID, "total", len(b.subscribers))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, exists := b.subscribers[subscriberID]; exists {
		close(ch)
		delete(b.subscribers, subscriberID)
		util.GetLogger().Debug("Subscriber removed", "id", subscriberID, "remaining", len(b.subscribers))
	}
}

// Broadcast sends msg to every subscriber and caches it under typ. A
// subscriber whose channel is full is dropped.
func (b *Broadcaster) Broadcast(typ string, msg []byte) {
	if len(msg) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if typ != "" {
		b.last[typ] = msg
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			util.GetLogger().Warn("Dropping subscriber due to full channel", "id", id)
			close(ch)
			delete(b.subscribers, id)
		}
	}
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
