package webrtc

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"

	"github.com/go2ctl/go2ctl/internal/robot/link"
)

const maxAccessUnit = 4 << 20

// frameFanout delivers encoded frames to registered handlers.
type frameFanout struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]link.FrameHandler
}

func newFrameFanout() *frameFanout {
	return &frameFanout{handlers: make(map[int]link.FrameHandler)}
}

func (f *frameFanout) add(h link.FrameHandler) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = h
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}
}

func (f *frameFanout) empty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers) == 0
}

// emit calls the handlers without holding f.mu, so a handler may
// register or deregister.
func (f *frameFanout) emit(frame link.EncodedFrame) {
	f.mu.RLock()
	handlers := make([]link.FrameHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(frame)
	}
}

// accessUnitAssembler turns H264 RTP packets into Annex-B access units.
type accessUnitAssembler struct {
	depack codecs.H264Packet
	buf    []byte
	ts     uint32
	broken bool
}

// push adds pkt and returns a complete access unit when pkt carries the
// marker bit.
func (a *accessUnitAssembler) push(pkt *rtp.Packet) ([]byte, uint32, bool) {
	if len(a.buf) > 0 && pkt.Timestamp != a.ts {
		// Marker lost; the previous unit is incomplete.
		a.buf = a.buf[:0]
		a.broken = false
	}
	a.ts = pkt.Timestamp

	nal, err := a.depack.Unmarshal(pkt.Payload)
	if err != nil {
		a.broken = true
	} else if len(nal) > 0 {
		a.buf = append(a.buf, nal...)
	}
	if len(a.buf) > maxAccessUnit {
		a.broken = true
		a.buf = a.buf[:0]
	}

	if !pkt.Marker {
		return nil, 0, false
	}
	defer func() {
		a.buf = a.buf[:0]
		a.broken = false
	}()
	if a.broken || len(a.buf) == 0 {
		return nil, 0, false
	}
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	return out, a.ts, true
}

// readVideoTrack pumps RTP from track into frames until the track ends.
func readVideoTrack(track *webrtc.TrackRemote, frames *frameFanout, logger *slog.Logger) {
	codec := strings.ToLower(strings.TrimPrefix(track.Codec().MimeType, "video/"))
	logger.Info("video track started", "codec", codec, "ssrc", uint32(track.SSRC()))

	var asm accessUnitAssembler
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Debug("video track ended", "error", err)
			return
		}
		if codec != "h264" {
			continue
		}
		data, ts, ok := asm.push(pkt)
		if !ok || frames.empty() {
			continue
		}
		frames.emit(link.EncodedFrame{
			Codec:     codec,
			Data:      data,
			Timestamp: ts,
			Received:  time.Now(),
		})
	}
}

// drainTrack discards packets from tracks nobody consumes.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
