package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go2ctl/go2ctl/config"
	"github.com/go2ctl/go2ctl/internal/profile"
	"github.com/go2ctl/go2ctl/internal/robot/session"
)

// targetOptions holds the flags that pick which robot to reach.
type targetOptions struct {
	AP       bool
	Host     string
	Serial   string
	Remote   bool
	Username string
	Password string
	Profile  string
}

func addTargetFlags(cmd *cobra.Command, opts *targetOptions) {
	flags := cmd.Flags()
	flags.BoolVar(&opts.AP, "ap", false, "Connect through the robot's own access point")
	flags.StringVar(&opts.Host, "host", "", "Robot IP or host name on the local network")
	flags.StringVar(&opts.Serial, "serial", "", "Robot serial number (local discovery or remote)")
	flags.BoolVar(&opts.Remote, "remote", false, "Connect through the cloud relay")
	flags.StringVar(&opts.Username, "username", "", "Cloud account user name (remote only)")
	flags.StringVar(&opts.Password, "password", "", "Cloud account password (remote only)")
	flags.StringVar(&opts.Profile, "profile", "", "Use a saved connection profile")

	cmd.MarkFlagsMutuallyExclusive("ap", "host", "remote")
	cmd.MarkFlagsMutuallyExclusive("ap", "serial")
	cmd.MarkFlagsMutuallyExclusive("host", "serial")
	cmd.RegisterFlagCompletionFunc("profile", completeProfileIDs)
}

func (o targetOptions) fromFlags() (session.ConnectionConfig, bool) {
	switch {
	case o.AP:
		return session.LocalAP(), true
	case o.Remote:
		return session.Remote(o.Serial, o.Username, o.Password), true
	case o.Host != "":
		return session.LocalStationHost(o.Host), true
	case o.Serial != "":
		return session.LocalStationSerial(o.Serial), true
	}
	return session.ConnectionConfig{}, false
}

// resolveTarget picks the connection config. Explicit flags win, then a
// named or current profile, then the configuration file and environment.
func resolveTarget(opts targetOptions, pm *profile.ProfileManager) (session.ConnectionConfig, error) {
	if cfg, ok := opts.fromFlags(); ok {
		return cfg, cfg.Validate()
	}

	if opts.Profile != "" || (pm != nil && pm.GetCurrentProfileID() != "") {
		if pm == nil {
			return session.ConnectionConfig{}, errors.New("profiles not available")
		}
		cfg, err := pm.Connection(opts.Profile)
		if err != nil {
			return session.ConnectionConfig{}, err
		}
		return cfg, cfg.Validate()
	}

	return fromConfig(config.GetConnection())
}

func fromConfig(c config.Connection) (session.ConnectionConfig, error) {
	if c.Method == "" {
		return session.ConnectionConfig{}, errors.New("no robot target: pass --ap, --host, --serial or --remote, or add a profile")
	}
	method, err := session.ParseMethod(c.Method)
	if err != nil {
		return session.ConnectionConfig{}, err
	}
	cfg := session.ConnectionConfig{
		Method:   method,
		Host:     c.Host,
		Serial:   c.Serial,
		Username: c.Username,
		Password: c.Password,
	}
	if method == session.MethodLocalSTA && cfg.Host != "" {
		cfg.Serial = ""
	}
	return cfg, cfg.Validate()
}

func loadProfiles() *profile.ProfileManager {
	pm := profile.NewProfileManager()
	if err := pm.Load(); err != nil {
		return nil
	}
	return pm
}

func completeProfileIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	pm := loadProfiles()
	if pm == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return pm.GetProfileIDs(), cobra.ShellCompDirectiveNoFileComp
}
