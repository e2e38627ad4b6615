package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/dispatch"
	"github.com/go2ctl/go2ctl/internal/robot/lidar"
	"github.com/go2ctl/go2ctl/internal/version"
)

type stateView struct {
	State               string     `json:"state"`
	MotionMode          string     `json:"motion_mode,omitempty"`
	LastHealthy         *time.Time `json:"last_healthy,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Video               bool       `json:"video"`
	Lidar               bool       `json:"lidar"`
}

func (s *Server) stateView() stateView {
	h := s.opts.Session.Health()
	v := stateView{
		State:               s.opts.Session.State().String(),
		MotionMode:          s.opts.Session.MotionMode(),
		ConsecutiveFailures: h.ConsecutiveFailures,
	}
	if !h.LastSuccess.IsZero() {
		last := h.LastSuccess
		v.LastHealthy = &last
	}
	if s.opts.Video != nil {
		v.Video = s.opts.Video.Enabled()
	}
	if s.opts.Lidar != nil {
		v.Lidar = s.opts.Lidar.Enabled()
	}
	return v
}

type outcome struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func outcomeView(o dispatch.Outcome) outcome {
	v := outcome{Command: o.Command, Success: o.Success}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

type commandView struct {
	Name        string         `json:"name"`
	Topic       string         `json:"topic"`
	APIID       int            `json:"api_id"`
	Params      []paramView    `json:"params,omitempty"`
	Defaults    map[string]any `json:"defaults,omitempty"`
	Description string         `json:"description,omitempty"`
}

type paramView struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
}

type lidarView struct {
	Seq       uint64        `json:"seq"`
	Received  time.Time     `json:"received"`
	Total     int           `json:"total"`
	Truncated bool          `json:"truncated,omitempty"`
	Points    []lidar.Point `json:"points"`
}

func (s *Server) lidarView(sample lidar.Sample) lidarView {
	v := lidarView{Seq: sample.Seq, Received: sample.Received, Total: len(sample.Points), Points: sample.Points}
	if len(v.Points) > s.opts.MaxLidarPoint {
		v.Points = v.Points[:s.opts.MaxLidarPoint]
		v.Truncated = true
	}
	return v
}

type videoView struct {
	Enabled  bool       `json:"enabled"`
	Received uint64     `json:"received"`
	Dropped  uint64     `json:"dropped"`
	Latest   *frameView `json:"latest,omitempty"`
}

type frameView struct {
	Seq       uint64    `json:"seq"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Format    string    `json:"format"`
	KeyFrame  bool      `json:"key_frame"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	entries := s.opts.Commands.Catalog().Entries()
	out := make([]commandView, 0, len(entries))
	for _, e := range entries {
		cv := commandView{Name: e.Name, Topic: e.Topic, APIID: e.APIID, Defaults: e.Defaults, Description: e.Description}
		for _, p := range e.Params {
			cv.Params = append(cv.Params, paramView{Name: p.Name, Kind: p.Kind.String(), Required: p.Required})
		}
		out = append(out, cv)
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	var cmd robot.Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&cmd); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.Wrap(err, "invalid command body"))
		return
	}
	if cmd.Name == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("command name is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.CommandWait)
	defer cancel()
	o := s.opts.Commands.Execute(ctx, cmd)
	if o.Err != nil {
		s.respondJSON(w, statusFor(o.Err), outcomeView(o))
		return
	}
	s.respondJSON(w, http.StatusOK, outcomeView(o))
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if s.opts.Video == nil {
		s.respondError(w, http.StatusNotFound, errors.New("video pipeline not configured"))
		return
	}
	received, dropped := s.opts.Video.Stats()
	v := videoView{Enabled: s.opts.Video.Enabled(), Received: received, Dropped: dropped}
	if f, ok := s.opts.Video.Poll(); ok {
		v.Latest = &frameView{
			Seq:       f.Seq,
			Width:     f.Width,
			Height:    f.Height,
			Format:    f.Format,
			KeyFrame:  f.KeyFrame,
			Size:      len(f.Data),
			Timestamp: f.Timestamp,
		}
	}
	s.respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleLidar(w http.ResponseWriter, r *http.Request) {
	if s.opts.Lidar == nil {
		s.respondError(w, http.StatusNotFound, errors.New("lidar pipeline not configured"))
		return
	}
	sample, ok := s.opts.Lidar.Poll()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondJSON(w, http.StatusOK, s.lidarView(sample))
}

func (s *Server) handleVideoToggle(w http.ResponseWriter, r *http.Request) {
	if s.opts.Video == nil {
		s.respondError(w, http.StatusNotFound, errors.New("video pipeline not configured"))
		return
	}
	s.toggle(w, r, s.opts.Video)
}

func (s *Server) handleLidarToggle(w http.ResponseWriter, r *http.Request) {
	if s.opts.Lidar == nil {
		s.respondError(w, http.StatusNotFound, errors.New("lidar pipeline not configured"))
		return
	}
	s.toggle(w, r, s.opts.Lidar)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, sensor Sensor) {
	enable := mux.Vars(r)["action"] == "enable"
	if err := setSensor(r.Context(), sensor, enable); err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	s.hub.Broadcast(msgState, encodeMessage(msgState, s.stateView()))
	s.respondJSON(w, http.StatusOK, map[string]bool{"enabled": sensor.Enabled()})
}

func setSensor(ctx context.Context, sensor Sensor, enable bool) error {
	if enable {
		return sensor.Enable(ctx)
	}
	return sensor.Disable(ctx)
}
