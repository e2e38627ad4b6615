package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/config"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/robot/dispatch"
	"github.com/go2ctl/go2ctl/internal/robot/lidar"
	"github.com/go2ctl/go2ctl/internal/robot/link/webrtc"
	"github.com/go2ctl/go2ctl/internal/robot/session"
	"github.com/go2ctl/go2ctl/internal/robot/video"
	"github.com/go2ctl/go2ctl/internal/util"
)

// robotRuntime is the set of components one CLI invocation drives.
type robotRuntime struct {
	Session  *session.Manager
	Commands *dispatch.Dispatcher
	Video    *video.Pipeline
	Lidar    *lidar.Pipeline
	logger   *slog.Logger
}

func loadCatalog() (*catalog.Catalog, error) {
	cat := catalog.Default()
	path := config.GetCatalogPath()
	if path == "" {
		return cat, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog overrides")
	}
	defer f.Close()
	if err := cat.LoadOverrides(f); err != nil {
		return nil, errors.Wrapf(err, "failed to load catalog overrides from %s", path)
	}
	return cat, nil
}

func newRobotRuntime() (*robotRuntime, error) {
	logger := util.GetLogger()

	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	dialer := webrtc.NewDialer(webrtc.DialOptions{
		RemoteEndpoint:    config.GetRemoteEndpoint(),
		DiscoveryTimeout:  config.GetDiscoveryTimeout(),
		HeartbeatInterval: config.GetHeartbeatInterval(),
		ValidationTimeout: config.GetValidationTimeout(),
		Logger:            logger,
	})
	mgr := session.NewManager(dialer, session.Options{
		HealthInterval: config.GetHealthInterval(),
		LossInterval:   config.GetLossInterval(),
		ModeSettle:     config.GetModeSettle(),
		RequestTimeout: config.GetRequestTimeout(),
		QueueSize:      config.GetQueueSize(),
		Logger:         logger,
	})

	return &robotRuntime{
		Session: mgr,
		Commands: dispatch.New(mgr, dispatch.Options{
			Catalog: cat,
			Timeout: config.GetRequestTimeout(),
			Logger:  logger,
		}),
		Video: video.New(mgr, video.Options{Logger: logger}),
		Lidar: lidar.New(mgr, lidar.Options{
			Decoder:      config.GetLidarDecoder(),
			PollInterval: config.GetLidarPollInterval(),
			Timeout:      config.GetRequestTimeout(),
			Logger:       logger,
		}),
		logger: logger,
	}, nil
}

// enableSensors turns on the requested pipelines. Failures are reported
// but do not end the session.
func (rt *robotRuntime) enableSensors(ctx context.Context, withVideo, withLidar bool) []error {
	var errs []error
	if withVideo {
		if err := rt.Video.Enable(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "video"))
		}
	}
	if withLidar {
		if err := rt.Lidar.Enable(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "lidar"))
		}
	}
	return errs
}

// Close disables the pipelines and disconnects.
func (rt *robotRuntime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), config.GetRequestTimeout())
	defer cancel()

	if rt.Video.Enabled() {
		if err := rt.Video.Disable(ctx); err != nil {
			rt.logger.Debug("Failed to disable video", "error", err)
		}
	}
	if rt.Lidar.Enabled() {
		if err := rt.Lidar.Disable(ctx); err != nil {
			rt.logger.Debug("Failed to disable lidar", "error", err)
		}
	}
	if err := rt.Session.Disconnect(); err != nil {
		rt.logger.Debug("Disconnect returned error", "error", err)
	}
	rt.Video.Close()
	rt.Lidar.Close()
}
