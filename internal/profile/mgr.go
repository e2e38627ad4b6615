// Package profile stores named robot connection targets in a TOML file.
package profile

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml/v2"

	"github.com/go2ctl/go2ctl/config"
	"github.com/go2ctl/go2ctl/internal/robot/session"
	"github.com/go2ctl/go2ctl/internal/util"
)

// Common error messages
const (
	ErrNoCurrentProfile    = "no current profile set. Please run 'go2ctl profile use' to set a current profile first"
	ErrProfileNotFound     = "profile '%s' not found"
	ErrCannotDeleteCurrent = "cannot delete the currently active profile, please switch to another profile first"
)

// ProfileConfig is the on-disk layout of the profile file.
type ProfileConfig struct {
	Current  string             `toml:"current"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is one saved robot target. The password is base64 encoded at
// rest.
type Profile struct {
	Method   string `toml:"method"`
	Host     string `toml:"host,omitempty"`
	Serial   string `toml:"serial,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

// ProfileManager manages profile files
type ProfileManager struct {
	config ProfileConfig
	path   string
}

// NewProfileManager creates a ProfileManager for the configured profile
// path.
func NewProfileManager() *ProfileManager {
	return NewProfileManagerAt(config.GetProfilePath())
}

// NewProfileManagerAt creates a ProfileManager backed by path.
func NewProfileManagerAt(path string) *ProfileManager {
	return &ProfileManager{
		config: ProfileConfig{Profiles: make(map[string]Profile)},
		path:   path,
	}
}

// Load loads profiles from file. A missing file is an empty profile set.
func (pm *ProfileManager) Load() error {
	data, err := os.ReadFile(pm.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read profile file: %v", err)
	}

	pm.config = ProfileConfig{}
	if err := toml.Unmarshal(data, &pm.config); err != nil {
		return fmt.Errorf("failed to parse profile file: %v", err)
	}
	if pm.config.Profiles == nil {
		pm.config.Profiles = make(map[string]Profile)
	}
	return nil
}

// Save saves profiles to file
func (pm *ProfileManager) Save() error {
	if err := os.MkdirAll(filepath.Dir(pm.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := toml.Marshal(pm.config)
	if err != nil {
		return fmt.Errorf("failed to serialize profile data: %v", err)
	}

	if err := os.WriteFile(pm.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile file: %v", err)
	}
	return nil
}

// Add stores cfg under id and makes it current. An existing profile with
// the same id is replaced.
func (pm *ProfileManager) Add(id string, cfg session.ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	id = normalizeID(id)

	pm.config.Profiles[id] = Profile{
		Method:   string(cfg.Method),
		Host:     cfg.Host,
		Serial:   cfg.Serial,
		Username: cfg.Username,
		Password: encodeSecret(cfg.Password),
	}
	pm.config.Current = id
	return pm.Save()
}

// Use sets the current profile
func (pm *ProfileManager) Use(id string) error {
	if len(pm.config.Profiles) == 0 {
		return fmt.Errorf("no profiles available, please add a profile first")
	}
	if _, exists := pm.config.Profiles[id]; !exists {
		return fmt.Errorf(ErrProfileNotFound, id)
	}

	pm.config.Current = id
	return pm.Save()
}

// Remove removes the specified profile
func (pm *ProfileManager) Remove(id string) error {
	if _, exists := pm.config.Profiles[id]; !exists {
		return fmt.Errorf(ErrProfileNotFound, id)
	}
	if id == pm.config.Current && len(pm.config.Profiles) > 1 {
		return errors.New(ErrCannotDeleteCurrent)
	}

	delete(pm.config.Profiles, id)
	if id == pm.config.Current {
		pm.config.Current = ""
	}
	return pm.Save()
}

// Connection returns the connection config stored under id, or under the
// current profile when id is empty.
func (pm *ProfileManager) Connection(id string) (session.ConnectionConfig, error) {
	if id == "" {
		id = pm.config.Current
		if id == "" {
			return session.ConnectionConfig{}, errors.New(ErrNoCurrentProfile)
		}
	}
	p, exists := pm.config.Profiles[id]
	if !exists {
		return session.ConnectionConfig{}, fmt.Errorf(ErrProfileNotFound, id)
	}

	method, err := session.ParseMethod(p.Method)
	if err != nil {
		return session.ConnectionConfig{}, fmt.Errorf("profile '%s': %v", id, err)
	}
	password, err := decodeSecret(p.Password)
	if err != nil {
		return session.ConnectionConfig{}, fmt.Errorf("profile '%s': %v", id, err)
	}
	return session.ConnectionConfig{
		Method:   method,
		Host:     p.Host,
		Serial:   p.Serial,
		Username: p.Username,
		Password: password,
	}, nil
}

// GetCurrentProfileID gets the current profile ID
func (pm *ProfileManager) GetCurrentProfileID() string {
	return pm.config.Current
}

// GetProfileIDs returns the profile IDs in sorted order
func (pm *ProfileManager) GetProfileIDs() []string {
	ids := make([]string, 0, len(pm.config.Profiles))
	for id := range pm.config.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List writes all profiles to w as a table or as JSON.
func (pm *ProfileManager) List(w io.Writer, format string) error {
	if format == "json" {
		return pm.listJSON(w)
	}
	if len(pm.config.Profiles) == 0 {
		fmt.Fprintln(w, "No profiles found")
		return nil
	}

	columns := []util.TableColumn{
		{Header: " ", Key: "marker"},
		{Header: "ID", Key: "id"},
		{Header: "METHOD", Key: "method"},
		{Header: "TARGET", Key: "target"},
		{Header: "USER", Key: "user"},
	}
	green := color.New(color.FgGreen).SprintFunc()
	var rows []map[string]interface{}
	for _, id := range pm.GetProfileIDs() {
		p := pm.config.Profiles[id]
		row := map[string]interface{}{
			"marker": "",
			"id":     id,
			"method": p.Method,
			"target": p.target(),
			"user":   p.Username,
		}
		if id == pm.config.Current {
			row["marker"] = green("→")
			row["id"] = green(id)
		}
		rows = append(rows, row)
	}
	util.RenderTable(w, columns, rows)
	return nil
}

func (pm *ProfileManager) listJSON(w io.Writer) error {
	profiles := make([]map[string]interface{}, 0, len(pm.config.Profiles))
	for _, id := range pm.GetProfileIDs() {
		p := pm.config.Profiles[id]
		profiles = append(profiles, map[string]interface{}{
			"id":      id,
			"method":  p.Method,
			"target":  p.target(),
			"current": id == pm.config.Current,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(profiles)
}

func (p Profile) target() string {
	switch {
	case p.Host != "":
		return p.Host
	case p.Serial != "":
		return "sn:" + p.Serial
	default:
		return "-"
	}
}

func encodeSecret(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodeSecret(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("failed to decode password: %v", err)
	}
	return string(decoded), nil
}

// normalizeID normalizes an ID string
func normalizeID(id string) string {
	normalized := strings.ToLower(id)
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")

	var result strings.Builder
	for _, char := range normalized {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') || char == '-' {
			result.WriteRune(char)
		}
	}

	normalized = result.String()
	if normalized == "" {
		normalized = "default"
	}
	return normalized
}
