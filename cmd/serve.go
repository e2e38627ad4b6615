package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/go2ctl/go2ctl/config"
	"github.com/go2ctl/go2ctl/internal/daemon"
	"github.com/go2ctl/go2ctl/internal/robot/api"
	"github.com/go2ctl/go2ctl/internal/robot/session"
)

type ServeOptions struct {
	Target        targetOptions
	Listen        string
	Video         bool
	Lidar         bool
	MaxLidarPoint int
	Detach        bool
}

func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to a robot and expose it to a local UI",
		Long: `Connect to a robot and serve the UI bridge: a small HTTP API and a websocket
that stream session state, command outcomes and lidar samples.`,
		Example: `  go2ctl serve --ap
  go2ctl serve --host 192.168.8.181 --listen :8090 --lidar
  go2ctl serve --profile lab --detach
  go2ctl serve stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Detach {
				return runServeDetached(cmd, opts)
			}
			return runServe(cmd, opts)
		},
	}

	addTargetFlags(cmd, &opts.Target)
	flags := cmd.Flags()
	flags.StringVar(&opts.Listen, "listen", "", "Address for the UI bridge (default from config, 127.0.0.1:8090)")
	flags.BoolVar(&opts.Video, "video", false, "Enable the video pipeline after connecting")
	flags.BoolVar(&opts.Lidar, "lidar", false, "Enable the lidar pipeline after connecting")
	flags.IntVar(&opts.MaxLidarPoint, "max-lidar-points", 20000, "Maximum points per lidar message sent to the UI")
	flags.BoolVarP(&opts.Detach, "detach", "d", false, "Run the bridge in the background")

	cmd.AddCommand(newServeStopCommand())
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	target, err := resolveTarget(opts.Target, loadProfiles())
	if err != nil {
		return err
	}

	rt, err := newRobotRuntime()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(api.Options{
		Session:       rt.Session,
		Commands:      rt.Commands,
		Video:         rt.Video,
		Lidar:         rt.Lidar,
		CommandWait:   config.GetRequestTimeout(),
		MaxLidarPoint: opts.MaxLidarPoint,
		Logger:        rt.logger,
	})
	defer srv.Close()
	rt.Lidar.SetSink(srv.PublishLidar)

	out := cmd.OutOrStdout()
	unsubscribe := rt.Session.Subscribe(func(c session.Change) {
		printChange(out, c)
	})
	defer unsubscribe()

	if err := connectWithSpinner(ctx, rt, target, verboseFlag(cmd)); err != nil {
		return err
	}
	defer rt.Close()

	for _, err := range rt.enableSensors(ctx, opts.Video, opts.Lidar) {
		fmt.Fprintf(out, "%s %v\n", color.YellowString("warning:"), err)
	}

	listen := serveListen(opts)
	fmt.Fprintf(out, "UI bridge on %s (Ctrl+C to stop)\n", color.CyanString(daemon.URLFor(listen)))
	return srv.ListenAndServe(ctx, listen)
}

func serveListen(opts *ServeOptions) string {
	if opts.Listen != "" {
		return opts.Listen
	}
	return config.GetServeListen()
}

func bridgeManager(listen string) *daemon.Manager {
	return daemon.NewManager(daemon.URLFor(listen), config.GetHome())
}

// childArgs replays the changed serve flags, minus --detach, for the
// background process.
func childArgs(flags *pflag.FlagSet) []string {
	var args []string
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "detach" {
			return
		}
		args = append(args, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	return args
}

func runServeDetached(cmd *cobra.Command, opts *ServeOptions) error {
	// Fail fast on a bad target before forking.
	if _, err := resolveTarget(opts.Target, loadProfiles()); err != nil {
		return err
	}

	m := bridgeManager(serveListen(opts))
	if m.IsServerRunning() {
		return fmt.Errorf("a bridge is already running at %s", m.URL())
	}

	sp := newUISpinner(os.Stdout, verboseFlag(cmd), "Starting bridge in the background")
	pid, err := m.StartServer(childArgs(cmd.Flags()))
	if err != nil {
		sp.Fail(err.Error())
		return err
	}
	sp.Success(fmt.Sprintf("Bridge running at %s (PID %d, log %s)", color.CyanString(m.URL()), pid, m.LogFile()))
	return nil
}

func newServeStopCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bridgeManager(serveListen(&ServeOptions{Listen: listen})).StopServer(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Bridge stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address the bridge listens on")
	return cmd
}
