package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/go2ctl/go2ctl/internal/robot"
)

// Websocket message types.
const (
	msgState   = "state"
	msgOutcome = "outcome"
	msgLidar   = "lidar"
	msgVideo   = "video"
	msgCommand = "command"
	msgError   = "error"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type outgoing struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type incoming struct {
	Type    string        `json:"type"`
	Command robot.Command `json:"command"`
	Enable  bool          `json:"enable"`
}

func encodeMessage(typ string, data any) []byte {
	msg, err := json.Marshal(outgoing{Type: typ, Data: data})
	if err != nil {
		msg, _ = json.Marshal(outgoing{Type: msgError, Data: err.Error()})
	}
	return msg
}

// handleWebSocket streams broadcast messages to the client and accepts
// command and sensor toggle requests from it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade WebSocket", "error", err)
		return
	}

	id := uuid.NewString()
	logger := s.logger.With("client", id)
	logger.Info("WebSocket client connected", "remote", r.RemoteAddr)

	ch := s.hub.Subscribe(id, clientBuffer)
	direct := make(chan []byte, 8)
	direct <- encodeMessage(msgState, s.stateView())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(conn, ch, direct, ctx.Done())
	}()

	for {
		var msg incoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", "error", err)
			}
			break
		}
		reply := s.handleIncoming(ctx, msg)
		if reply == nil {
			continue
		}
		select {
		case direct <- reply:
		default:
			logger.Warn("Dropping reply, client too slow", "type", msg.Type)
		}
	}

	cancel()
	s.hub.Unsubscribe(id)
	<-done
	conn.Close()
	logger.Info("WebSocket client disconnected")
}

func (s *Server) writeLoop(conn *websocket.Conn, ch <-chan []byte, direct <-chan []byte, stop <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	write := func(msg []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, msg) == nil
	}
	for {
		select {
		case <-stop:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if !write(msg) {
				return
			}
		case msg := <-direct:
			if !write(msg) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleIncoming(ctx context.Context, msg incoming) []byte {
	switch msg.Type {
	case msgCommand:
		if msg.Command.Name == "" {
			return encodeMessage(msgError, "command name is required")
		}
		// The outcome reaches every client through the dispatcher listener.
		go func() {
			ctx, cancel := context.WithTimeout(ctx, s.opts.CommandWait)
			defer cancel()
			s.opts.Commands.Execute(ctx, msg.Command)
		}()
		return nil
	case msgVideo, msgLidar:
		var sensor Sensor
		if msg.Type == msgVideo && s.opts.Video != nil {
			sensor = s.opts.Video
		} else if msg.Type == msgLidar && s.opts.Lidar != nil {
			sensor = s.opts.Lidar
		}
		if sensor == nil {
			return encodeMessage(msgError, msg.Type+" pipeline not configured")
		}
		if err := setSensor(ctx, sensor, msg.Enable); err != nil {
			return encodeMessage(msgError, err.Error())
		}
		s.hub.Broadcast(msgState, encodeMessage(msgState, s.stateView()))
		return nil
	default:
		return encodeMessage(msgError, "unknown message type "+msg.Type)
	}
}
