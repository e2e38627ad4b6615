package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go2ctl/go2ctl/internal/daemon"
)

type SendOptions struct {
	Listen string
}

func NewSendCommand() *cobra.Command {
	opts := &SendOptions{}

	cmd := &cobra.Command{
		Use:   "send COMMAND [key=value ...]",
		Short: "Send a command through a running bridge",
		Long: `Send one command to the robot through a bridge started with 'go2ctl serve'.
The command line accepts the same input as the connect prompt.`,
		Example: `  go2ctl send hello
  go2ctl send 1
  go2ctl send move x=0.3 y=0 z=0
  go2ctl send lidar on`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.OutOrStdout(), bridgeManager(serveListen(&ServeOptions{Listen: opts.Listen})), strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "Address the bridge listens on")
	return cmd
}

type sendResult struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func runSend(out io.Writer, m *daemon.Manager, line string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	input, err := parseLine(line, menuNames(cat.Entries()))
	if err != nil {
		return err
	}

	switch input.Action {
	case actCommand:
		var res sendResult
		if err := m.CallAPI(http.MethodPost, "/api/commands", input.Command, &res); err != nil {
			fmt.Fprintf(out, "%s %s\n", color.RedString("✗"), input.Command.Name)
			return err
		}
		fmt.Fprintf(out, "%s %s\n", color.GreenString("✓"), res.Command)
		return nil
	case actVideo, actLidar:
		name := "video"
		if input.Action == actLidar {
			name = "lidar"
		}
		action := "disable"
		if input.Enable {
			action = "enable"
		}
		if err := m.CallAPI(http.MethodPost, "/api/"+name+"/"+action, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s %s\n", color.GreenString("✓"), name, onOff(input.Enable))
		return nil
	default:
		return fmt.Errorf("nothing to send for %q", line)
	}
}

type StatusOptions struct {
	Listen       string
	OutputFormat string
}

func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session state of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), bridgeManager(serveListen(&ServeOptions{Listen: opts.Listen})), opts.OutputFormat)
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "Address the bridge listens on")
	cmd.Flags().StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")
	return cmd
}

type bridgeState struct {
	State               string `json:"state"`
	MotionMode          string `json:"motion_mode,omitempty"`
	LastHealthy         string `json:"last_healthy,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Video               bool   `json:"video"`
	Lidar               bool   `json:"lidar"`
}

func runStatus(out io.Writer, m *daemon.Manager, format string) error {
	var st bridgeState
	if err := m.CallAPI(http.MethodGet, "/api/state", nil, &st); err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	state := st.State
	switch state {
	case "connected":
		state = color.GreenString(state)
	case "lost":
		state = color.RedString(state)
	default:
		state = color.YellowString(state)
	}
	fmt.Fprintf(out, "Bridge:      %s\n", m.URL())
	fmt.Fprintf(out, "Session:     %s\n", state)
	if st.MotionMode != "" {
		fmt.Fprintf(out, "Motion mode: %s\n", st.MotionMode)
	}
	if st.LastHealthy != "" {
		fmt.Fprintf(out, "Last check:  %s (%d failures since)\n", st.LastHealthy, st.ConsecutiveFailures)
	}
	fmt.Fprintf(out, "Video:       %s\n", onOff(st.Video))
	fmt.Fprintf(out, "Lidar:       %s\n", onOff(st.Lidar))
	return nil
}
