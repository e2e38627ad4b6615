package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go2ctl/go2ctl/internal/util"
	"github.com/go2ctl/go2ctl/internal/version"
)

var rootCmd = NewRootCommand()

// NewRootCommand builds the go2ctl command tree.
func NewRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "go2ctl",
		Short: "Control a quadruped robot over WebRTC",
		Long: `go2ctl connects to a robot over WebRTC, keeps the session healthy, sends motion
commands and streams video and lidar data to a local UI bridge.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(verbose || util.IsVerbose())
			util.SetupGlobalLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.ClientInfo()
				fmt.Fprintf(cmd.OutOrStdout(), "go2ctl version %s, build %s\n", info["Version"], info["GitCommit"])
				return nil
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	cmd.Flags().Bool("version", false, "Print version information and exit")

	cmd.AddCommand(NewConnectCommand())
	cmd.AddCommand(NewCommandsCommand())
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewSendCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewLidarCommand())
	cmd.AddCommand(NewProfileCommand())
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

func Execute() error {
	return rootCmd.Execute()
}
