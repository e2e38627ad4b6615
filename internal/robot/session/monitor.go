package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/robot/link"
)

// negotiate queries the motion mode and switches to the default mode when
// the robot reports anything else. It returns the mode in effect.
func (m *Manager) negotiate(ctx context.Context, l link.Link, logger *slog.Logger) (string, error) {
	req := l.Capabilities().Requester
	if req == nil {
		return "", errors.Wrap(robot.ErrUnsupported, "motion mode query needs request support")
	}

	qctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	resp, err := req.Request(qctx, catalog.TopicMotionSwitcher, link.Request{APIID: catalog.APIMotionModeQuery})
	cancel()
	if err != nil {
		return "", errors.Wrap(err, "failed to query motion mode")
	}
	if !resp.OK() {
		return "", errors.Errorf("motion mode query rejected with code %d", resp.Code)
	}
	mode, err := parseMode(resp.Data)
	if err != nil {
		return "", err
	}
	logger.Debug("Current motion mode", "mode", mode)
	if mode == catalog.DefaultMotionMode {
		return mode, nil
	}

	logger.Info("Switching motion mode", "from", mode, "to", catalog.DefaultMotionMode)
	sctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	resp, err = req.Request(sctx, catalog.TopicMotionSwitcher, link.Request{
		APIID:     catalog.APIMotionModeSwitch,
		Parameter: map[string]any{"name": catalog.DefaultMotionMode},
	})
	cancel()
	if err != nil {
		return mode, errors.Wrap(err, "failed to switch motion mode")
	}
	if !resp.OK() {
		return mode, errors.Errorf("motion mode switch rejected with code %d", resp.Code)
	}

	// The robot needs time to change gait controllers before it accepts
	// sport commands.
	timer := time.NewTimer(m.opts.ModeSettle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return mode, context.Cause(ctx)
	}
	return catalog.DefaultMotionMode, nil
}

// parseMode extracts the mode name from a motion switcher reply body.
func parseMode(data string) (string, error) {
	if strings.TrimSpace(data) == "" {
		return "", errors.New("empty motion mode reply")
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return "", errors.Wrap(err, "failed to parse motion mode reply")
	}
	if body.Name == "" {
		return "", errors.New("motion mode reply has no name")
	}
	return body.Name, nil
}

// healthLoop runs a liveness check every HealthInterval. It only records
// results; the loss loop alone decides that the session is lost.
func (m *Manager) healthLoop(w *worker) {
	ticker := time.NewTicker(m.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done():
			return
		case <-ticker.C:
			m.checkHealth(w)
		}
	}
}

func (m *Manager) checkHealth(w *worker) {
	ctx, cancel := context.WithTimeout(w.ctx, m.opts.RequestTimeout)
	defer cancel()
	err := w.run(ctx, m.liveness)
	if w.ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	if m.cur != w {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.health.ConsecutiveFailures++
	} else {
		m.health.LastSuccess = time.Now()
		m.health.ConsecutiveFailures = 0
	}
	failures := m.health.ConsecutiveFailures
	m.mu.Unlock()

	if err != nil {
		w.logger.Warn("Health check failed", "failures", failures, "error", err)
	} else {
		w.logger.Debug("Health check ok")
	}
}

func (m *Manager) liveness(ctx context.Context, l link.Link) error {
	caps := l.Capabilities()
	if caps.Heartbeater != nil {
		return caps.Heartbeater.Heartbeat(ctx)
	}
	if caps.Requester != nil {
		resp, err := caps.Requester.Request(ctx, catalog.TopicMotionSwitcher, link.Request{APIID: catalog.APIMotionModeQuery})
		if err != nil {
			return err
		}
		if !resp.OK() {
			return errors.Errorf("liveness query rejected with code %d", resp.Code)
		}
		return nil
	}
	return robot.ErrUnsupported
}

// lossLoop polls the link's connectivity state every LossInterval and
// declares the session lost once it reports a state it cannot recover from.
func (m *Manager) lossLoop(w *worker) {
	ticker := time.NewTicker(m.opts.LossInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done():
			return
		case <-ticker.C:
			if s := w.link.State(); s.Dead() {
				m.declareLost(w, s)
				return
			}
		}
	}
}

func (m *Manager) declareLost(w *worker, s link.ConnState) {
	cause := errors.Wrapf(robot.ErrSessionLost, "link %s", s)
	ok := m.transition(func(cur State) bool {
		return cur == Connected && m.cur == w
	}, Lost, nil, cause)
	if !ok {
		return
	}
	w.logger.Error("Session lost", "link_state", s.String())
	// halt waits for this loop, so it cannot run here.
	go w.halt(cause)
}
