package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go2ctl/go2ctl/internal/profile"
)

func NewProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage robot connection profiles",
		Long:  `Manage named robot targets in the profile file. The current profile is used by connect and serve when no target flags are given.`,
	}

	cmd.AddCommand(newProfileListCommand())
	cmd.AddCommand(newProfileAddCommand())
	cmd.AddCommand(newProfileUseCommand())
	cmd.AddCommand(newProfileDeleteCommand())
	cmd.AddCommand(newProfileCurrentCommand())
	return cmd
}

func openProfiles() (*profile.ProfileManager, error) {
	pm := profile.NewProfileManager()
	if err := pm.Load(); err != nil {
		return nil, err
	}
	return pm, nil
}

func newProfileListCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := openProfiles()
			if err != nil {
				return err
			}
			return pm.List(cmd.OutOrStdout(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (json or text)")
	return cmd
}

type profileAddOptions struct {
	Name   string
	Target targetOptions
}

func newProfileAddCommand() *cobra.Command {
	opts := &profileAddOptions{}

	cmd := &cobra.Command{
		Use:   "add [--name NAME] (--ap | --host IP | --serial SN | --remote --serial SN --username U --password P)",
		Short: "Add a robot connection profile",
		Long: `Add a profile from the same target flags connect accepts. The new profile becomes current.
The profile name is asked for interactively when --name is not given.`,
		Example: `  go2ctl profile add --name lab --host 192.168.8.181
  go2ctl profile add --name field --serial B42D1000P6IAA88B
  go2ctl profile add --name cloud --remote --serial B42D2000XXXXXXXX --username me@example.com --password secret
  go2ctl profile add --ap`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileAdd(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Profile name")
	addTargetFlags(cmd, &opts.Target)
	// --profile makes no sense when creating one.
	cmd.Flags().MarkHidden("profile")
	return cmd
}

func runProfileAdd(in io.Reader, out io.Writer, opts *profileAddOptions) error {
	target, ok := opts.Target.fromFlags()
	if !ok {
		return fmt.Errorf("a target is required: pass --ap, --host, --serial or --remote")
	}
	if err := target.Validate(); err != nil {
		return err
	}

	name := opts.Name
	if name == "" {
		fmt.Fprint(out, "Please enter profile name: ")
		line, _ := bufio.NewReader(in).ReadString('\n')
		name = strings.TrimSpace(line)
		if name == "" {
			return fmt.Errorf("Profile name cannot be empty")
		}
	}

	pm, err := openProfiles()
	if err != nil {
		return err
	}
	if err := pm.Add(name, target); err != nil {
		return err
	}

	fmt.Fprintf(out, "Profile '%s' added (%s)\n", pm.GetCurrentProfileID(), target)
	return nil
}

func newProfileUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "use NAME",
		Short:             "Set current profile",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeProfileArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := openProfiles()
			if err != nil {
				return err
			}
			if err := pm.Use(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile '%s'\n", args[0])
			return nil
		},
	}
}

func newProfileDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete NAME",
		Aliases:           []string{"rm"},
		Short:             "Delete specified profile",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeProfileArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := openProfiles()
			if err != nil {
				return err
			}
			if err := pm.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' deleted\n", args[0])
			return nil
		},
	}
}

func newProfileCurrentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show current profile information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := openProfiles()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			id := pm.GetCurrentProfileID()
			if id == "" {
				fmt.Fprintln(out, "No current profile set")
				return nil
			}
			cfg, err := pm.Connection(id)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Current Profile:")
			fmt.Fprintf(out, "  Profile Name: %s\n", id)
			fmt.Fprintf(out, "  Method: %s\n", cfg.Method)
			if cfg.Host != "" {
				fmt.Fprintf(out, "  Host: %s\n", cfg.Host)
			}
			if cfg.Serial != "" {
				fmt.Fprintf(out, "  Serial: %s\n", cfg.Serial)
			}
			if cfg.Username != "" {
				fmt.Fprintf(out, "  Username: %s\n", cfg.Username)
			}
			return nil
		},
	}
}

func completeProfileArg(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeProfileIDs(cmd, args, toComplete)
}
