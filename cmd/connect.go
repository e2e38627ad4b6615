package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go2ctl/go2ctl/config"
	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/lidar"
	"github.com/go2ctl/go2ctl/internal/robot/session"
)

type ConnectOptions struct {
	Target targetOptions
	Video  bool
	Lidar  bool
}

func NewConnectCommand() *cobra.Command {
	opts := &ConnectOptions{}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a robot and send commands interactively",
		Long: `Connect to a robot and read commands from standard input.

Numbers are shortcuts: 0 waves hello, 1-4 move forward, backward, left and
right at 0.5, and 5 or higher pick from the command menu. A command name may
be followed by key=value parameters. Type quit or press Ctrl+C to disconnect.`,
		Example: `  go2ctl connect --ap
  go2ctl connect --host 192.168.8.181 --video
  go2ctl connect --serial B42D1000P6IAA88B --lidar
  go2ctl connect --remote --serial B42D2000XXXXXXXX --username me@example.com --password secret
  go2ctl connect --profile lab`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, opts)
		},
	}

	addTargetFlags(cmd, &opts.Target)
	cmd.Flags().BoolVar(&opts.Video, "video", false, "Enable the video pipeline after connecting")
	cmd.Flags().BoolVar(&opts.Lidar, "lidar", false, "Enable the lidar pipeline after connecting")
	return cmd
}

func runConnect(cmd *cobra.Command, opts *ConnectOptions) error {
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

	out := cmd.OutOrStdout()
	lost := make(chan struct{}, 1)
	unsubscribe := rt.Session.Subscribe(func(c session.Change) {
		printChange(out, c)
		if c.To == session.Lost {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := connectWithSpinner(ctx, rt, target, verboseFlag(cmd)); err != nil {
		return err
	}
	defer rt.Close()

	rt.Lidar.SetSink(func(s lidar.Sample) {
		rt.logger.Debug("Lidar sample", "seq", s.Seq, "points", len(s.Points))
	})
	for _, err := range rt.enableSensors(ctx, opts.Video, opts.Lidar) {
		fmt.Fprintf(out, "%s %v\n", color.YellowString("warning:"), err)
	}

	menu := menuNames(rt.Commands.Catalog().Entries())
	interactive := isTerminal(os.Stdin)
	if interactive {
		printMenu(out, menu)
	}
	return runREPL(ctx, rt, cmd.InOrStdin(), out, menu, interactive, lost)
}

func connectWithSpinner(ctx context.Context, rt *robotRuntime, target session.ConnectionConfig, verbose bool) error {
	sp := newUISpinner(os.Stdout, verbose, fmt.Sprintf("Connecting to robot (%s)", target))
	if err := rt.Session.Connect(ctx, target); err != nil {
		sp.Fail(fmt.Sprintf("Connection failed: %v", err))
		return err
	}
	if err := rt.Session.NegotiationError(); err != nil {
		sp.Success("Connected (motion mode unknown)")
		fmt.Printf("%s %v\n", color.YellowString("warning:"), err)
		return nil
	}
	sp.Success(fmt.Sprintf("Connected, motion mode %s", color.CyanString(rt.Session.MotionMode())))
	return nil
}

func runREPL(ctx context.Context, rt *robotRuntime, in io.Reader, out io.Writer, menu []string, interactive bool, lost <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	prompt := func() {
		if interactive {
			fmt.Fprint(out, color.New(color.Bold).Sprint("go2> "))
		}
	}

	prompt()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case <-lost:
			return robot.ErrSessionLost
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input, err := parseLine(line, menu)
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", color.RedString("✗"), err)
				prompt()
				continue
			}
			if input.Action == actQuit {
				return nil
			}
			handleInput(ctx, rt, out, menu, input)
			prompt()
		}
	}
}

func handleInput(ctx context.Context, rt *robotRuntime, out io.Writer, menu []string, in replInput) {
	switch in.Action {
	case actHelp:
		printMenu(out, menu)
	case actCommand:
		cctx, cancel := context.WithTimeout(ctx, config.GetRequestTimeout())
		defer cancel()
		o := rt.Commands.Execute(cctx, in.Command)
		if o.Success {
			fmt.Fprintf(out, "%s %s\n", color.GreenString("✓"), o.Command)
		} else {
			fmt.Fprintf(out, "%s %s: %v\n", color.RedString("✗"), o.Command, o.Err)
		}
	case actVideo, actLidar:
		var sensor interface {
			Enable(context.Context) error
			Disable(context.Context) error
		} = rt.Video
		name := "video"
		if in.Action == actLidar {
			sensor, name = rt.Lidar, "lidar"
		}
		var err error
		if in.Enable {
			err = sensor.Enable(ctx)
		} else {
			err = sensor.Disable(ctx)
		}
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", color.RedString("✗"), name, err)
			return
		}
		fmt.Fprintf(out, "%s %s %s\n", color.GreenString("✓"), name, onOff(in.Enable))
	}
}

func printChange(w io.Writer, c session.Change) {
	var label string
	switch c.To {
	case session.Connected:
		label = color.GreenString(c.To.String())
	case session.Lost:
		label = color.RedString(c.To.String())
	default:
		label = color.YellowString(c.To.String())
	}
	if c.Err != nil {
		fmt.Fprintf(w, "\r\033[K[%s] session %s: %v\n", c.At.Format("15:04:05"), label, c.Err)
		return
	}
	fmt.Fprintf(w, "\r\033[K[%s] session %s\n", c.At.Format("15:04:05"), label)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func verboseFlag(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool("verbose")
	return err == nil && v
}
