// Package api exposes a running session to a user interface over HTTP and
// a websocket: session state, command submission, sensor toggles and the
// latest sensor samples.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/robot/dispatch"
	"github.com/go2ctl/go2ctl/internal/robot/lidar"
	"github.com/go2ctl/go2ctl/internal/robot/session"
	"github.com/go2ctl/go2ctl/internal/robot/video"
	"github.com/go2ctl/go2ctl/internal/util"
)

// SessionView is the read side of the session manager.
type SessionView interface {
	State() session.State
	Health() session.HealthSignal
	MotionMode() string
	Subscribe(o session.Observer) func()
}

// Commander submits named commands.
type Commander interface {
	Catalog() *catalog.Catalog
	Execute(ctx context.Context, cmd robot.Command) dispatch.Outcome
	OnOutcome(fn func(dispatch.Outcome)) func()
}

// Sensor is a pipeline that can be switched on and off.
type Sensor interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Enabled() bool
}

// VideoSensor is the video pipeline.
type VideoSensor interface {
	Sensor
	Poll() (video.Frame, bool)
	Stats() (received, dropped uint64)
}

// LidarSensor is the lidar pipeline.
type LidarSensor interface {
	Sensor
	Poll() (lidar.Sample, bool)
}

// Options configures a Server. Video and Lidar may be nil.
type Options struct {
	Session       SessionView
	Commands      Commander
	Video         VideoSensor
	Lidar         LidarSensor
	CommandWait   time.Duration
	MaxLidarPoint int
	Logger        *slog.Logger
}

// Server is the UI bridge.
type Server struct {
	opts   Options
	logger *slog.Logger
	router *mux.Router
	hub    *Broadcaster

	mu       sync.Mutex
	server   *http.Server
	detaches []func()
}

// NewServer wires the routes and starts forwarding session events to
// websocket clients.
func NewServer(opts Options) *Server {
	if opts.CommandWait <= 0 {
		opts.CommandWait = 15 * time.Second
	}
	if opts.MaxLidarPoint <= 0 {
		opts.MaxLidarPoint = 20000
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	s := &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "api"),
		router: mux.NewRouter(),
		hub:    NewBroadcaster(),
	}
	s.routes()

	s.detaches = append(s.detaches, opts.Session.Subscribe(func(c session.Change) {
		s.hub.Broadcast(msgState, encodeMessage(msgState, s.stateView()))
	}))
	s.detaches = append(s.detaches, opts.Commands.OnOutcome(func(o dispatch.Outcome) {
		s.hub.Broadcast("", encodeMessage(msgOutcome, outcomeView(o)))
	}))
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/commands", s.handleListCommands).Methods(http.MethodGet)
	api.HandleFunc("/commands", s.handleSubmitCommand).Methods(http.MethodPost)
	api.HandleFunc("/video", s.handleVideo).Methods(http.MethodGet)
	api.HandleFunc("/video/{action:enable|disable}", s.handleVideoToggle).Methods(http.MethodPost)
	api.HandleFunc("/lidar", s.handleLidar).Methods(http.MethodGet)
	api.HandleFunc("/lidar/{action:enable|disable}", s.handleLidarToggle).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// PublishLidar pushes a lidar sample to websocket clients. It is meant to
// be installed as the lidar pipeline sink.
func (s *Server) PublishLidar(sample lidar.Sample) {
	if s.hub.Count() == 0 {
		return
	}
	s.hub.Broadcast(msgLidar, encodeMessage(msgLidar, s.lidarView(sample)))
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("UI bridge listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("UI bridge shutdown", "error", err)
		}
		return nil
	}
}

// Close detaches from the session and drops websocket clients.
func (s *Server) Close() {
	s.mu.Lock()
	detaches := s.detaches
	s.detaches = nil
	s.mu.Unlock()
	for _, d := range detaches {
		d()
	}
	s.hub.Close()
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, err error) {
	s.respondJSON(w, statusCode, map[string]string{"error": err.Error()})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, robot.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, robot.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, robot.ErrNotConnected), errors.Is(err, robot.ErrSessionLost):
		return http.StatusConflict
	case errors.Is(err, robot.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, robot.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
