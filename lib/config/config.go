// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for frontdesk.
type Config struct {
	// Homeserver configures the Matrix homeserver connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Space configures the tenant space that holds ticket rooms.
	Space SpaceConfig `yaml:"space"`

	// Staff configures who counts as staff.
	Staff StaffConfig `yaml:"staff"`

	// Tickets configures ticket room naming and the staff log room.
	Tickets TicketsConfig `yaml:"tickets"`

	// Intake configures the guided order intake.
	Intake IntakeConfig `yaml:"intake"`

	// Presence configures the rotating presence status.
	Presence PresenceConfig `yaml:"presence"`

	// Archive configures the transcript archive.
	Archive ArchiveConfig `yaml:"archive"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`
}

// HomeserverConfig configures the Matrix homeserver connection.
type HomeserverConfig struct {
	// URL is the base URL of the homeserver, e.g. "https://matrix.example.com".
	URL string `yaml:"url"`
}

// SpaceConfig configures the tenant space.
type SpaceConfig struct {
	// Alias is the full room alias of the tenant space, e.g.
	// "#frontdesk:example.com". The service resolves it at startup and
	// creates the space if it does not exist.
	Alias string `yaml:"alias"`

	// Name is the display name used when the space must be created.
	// Default: "Frontdesk".
	Name string `yaml:"name"`
}

// StaffConfig configures who counts as staff.
type StaffConfig struct {
	// Users lists staff Matrix user IDs. They are invited to every
	// ticket room and may close tickets.
	Users []string `yaml:"users"`

	// PowerThreshold is the space power level at or above which a user
	// counts as staff even when not listed in Users. Default: 50.
	PowerThreshold int `yaml:"power_threshold"`
}

// TicketsConfig configures ticket rooms and the staff log room.
type TicketsConfig struct {
	// Prefix is the leading segment of ticket room names
	// ({prefix}-{user}-{suffix}). Lowercase letters, digits, and
	// hyphens; must start with a letter or digit. Default: "ticket".
	Prefix string `yaml:"prefix"`

	// LogRoomAlias is the full alias of the staff log room, e.g.
	// "#frontdesk-log:example.com". Resolved at startup; created under
	// the tenant space if it does not exist.
	LogRoomAlias string `yaml:"log_room_alias"`

	// LogRoomName is the display name used when the log room must be
	// created. Default: "Frontdesk Log".
	LogRoomName string `yaml:"log_room_name"`
}

// IntakeConfig configures the guided order intake.
type IntakeConfig struct {
	// CatalogFile is the path to the services.jsonc catalog. Empty
	// disables ordering: !order replies that no services are available.
	CatalogFile string `yaml:"catalog_file"`
}

// PresenceConfig configures the rotating presence status.
type PresenceConfig struct {
	// StatusMessages are cycled through the service account's presence
	// status. Empty disables presence rotation.
	StatusMessages []string `yaml:"status_messages"`

	// Interval is how long each status message is shown, as a Go
	// duration string. Default: "5m".
	Interval string `yaml:"interval"`
}

// ArchiveConfig configures the transcript archive.
type ArchiveConfig struct {
	// KeyFile is the path to a 32-byte master key file. When set,
	// archive entries are sealed; when empty they are stored
	// compressed but unencrypted.
	KeyFile string `yaml:"key_file"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// State is the runtime state directory: session.json, the ticket
	// snapshot, generated transcripts, and the admin socket. Created
	// with mode 0700.
	State string `yaml:"state"`

	// Archive is the transcript archive directory. Default:
	// ${FRONTDESK_STATE}/archive.
	Archive string `yaml:"archive"`
}

// Default returns a configuration with every optional field filled in.
// A config file is still required; these values only back the fields
// the file leaves out.
func Default() *Config {
	home, _ := os.UserHomeDir()
	state := filepath.Join(home, ".local", "state", "frontdesk")

	return &Config{
		Space: SpaceConfig{
			Name: "Frontdesk",
		},
		Staff: StaffConfig{
			PowerThreshold: 50,
		},
		Tickets: TicketsConfig{
			Prefix:      "ticket",
			LogRoomName: "Frontdesk Log",
		},
		Presence: PresenceConfig{
			Interval: "5m",
		},
		Paths: PathsConfig{
			State:   state,
			Archive: filepath.Join(state, "archive"),
		},
	}
}

// Load reads configuration from the file named by the FRONTDESK_CONFIG
// environment variable.
//
// There is no search path. When FRONTDESK_CONFIG is unset, Load fails
// rather than guessing, so an operator always knows exactly which file
// a running service was started from.
func Load() (*Config, error) {
	path := os.Getenv("FRONTDESK_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("FRONTDESK_CONFIG environment variable not set; " +
			"set it to the path of your frontdesk.yaml config file, or use --config flag")
	}

	return LoadFile(path)
}

// LoadFile parses one YAML file over the defaults.
//
// The file is the single source of truth: the environment never
// overrides individual values. The only substitution is ${VAR}
// expansion in path fields, which keeps files portable across
// machines.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandPaths()

	return cfg, nil
}

// expandPaths resolves ${VAR} references in the path-valued fields.
// FRONTDESK_STATE names paths.state itself, letting dependent paths
// nest under it without repeating the location.
func (c *Config) expandPaths() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"FRONTDESK_STATE": c.Paths.State,
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["FRONTDESK_STATE"] = c.Paths.State

	for _, field := range []*string{&c.Paths.Archive, &c.Intake.CatalogFile, &c.Archive.KeyFile} {
		*field = expandVars(*field, vars)
	}
}

// expandVars resolves ${VAR} and ${VAR:-default} references in s. The
// vars map wins over the process environment; a reference that matches
// neither expands to its default, or to "" without one.
func expandVars(s string, vars map[string]string) string {
	return os.Expand(s, func(ref string) string {
		name, fallback, _ := strings.Cut(ref, ":-")
		if value := vars[name]; value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// prefixPattern is the allowed shape for the ticket room name prefix.
// It becomes the leading segment of every ticket room name, so the
// same character set as the sanitized user localpart applies.
var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate checks the configuration for errors. All problems are
// reported together via errors.Join so the operator fixes the file in
// one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	} else if parsed, err := url.Parse(c.Homeserver.URL); err != nil {
		errs = append(errs, fmt.Errorf("homeserver.url: %w", err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("homeserver.url must be http or https, got %q", parsed.Scheme))
	}

	if err := checkRoomAlias("space.alias", c.Space.Alias); err != nil {
		errs = append(errs, err)
	}
	if err := checkRoomAlias("tickets.log_room_alias", c.Tickets.LogRoomAlias); err != nil {
		errs = append(errs, err)
	}

	for i, user := range c.Staff.Users {
		if !strings.HasPrefix(user, "@") || !strings.Contains(user, ":") {
			errs = append(errs, fmt.Errorf("staff.users[%d]: %q is not a Matrix user ID (@localpart:server)", i, user))
		}
	}
	if c.Staff.PowerThreshold < 0 || c.Staff.PowerThreshold > 100 {
		errs = append(errs, fmt.Errorf("staff.power_threshold must be in [0, 100], got %d", c.Staff.PowerThreshold))
	}

	if c.Tickets.Prefix == "" {
		errs = append(errs, fmt.Errorf("tickets.prefix is required"))
	} else if !prefixPattern.MatchString(c.Tickets.Prefix) {
		errs = append(errs, fmt.Errorf("tickets.prefix %q must be lowercase [a-z0-9-] starting with a letter or digit", c.Tickets.Prefix))
	} else if len(c.Tickets.Prefix) > 32 {
		errs = append(errs, fmt.Errorf("tickets.prefix %q exceeds 32 characters", c.Tickets.Prefix))
	}

	if len(c.Presence.StatusMessages) > 0 {
		if interval, err := time.ParseDuration(c.Presence.Interval); err != nil {
			errs = append(errs, fmt.Errorf("presence.interval: %w", err))
		} else if interval <= 0 {
			errs = append(errs, fmt.Errorf("presence.interval must be positive, got %s", interval))
		}
	}

	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}
	if c.Paths.Archive == "" {
		errs = append(errs, fmt.Errorf("paths.archive is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// checkRoomAlias verifies the shape of a full Matrix room alias
// (#localpart:server). Full parsing happens in the service main via
// lib/ref; this catches file typos during validation.
func checkRoomAlias(field, alias string) error {
	if alias == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !strings.HasPrefix(alias, "#") || !strings.Contains(alias, ":") {
		return fmt.Errorf("%s: %q is not a Matrix room alias (#localpart:server)", field, alias)
	}
	return nil
}

// PresenceInterval returns the parsed presence rotation interval.
// Call after Validate; an unparseable value falls back to 5 minutes.
func (c *Config) PresenceInterval() time.Duration {
	interval, err := time.ParseDuration(c.Presence.Interval)
	if err != nil || interval <= 0 {
		return 5 * time.Minute
	}
	return interval
}

// EnsurePaths creates the state and archive directories if they don't
// exist. The state directory holds the session file and the admin
// socket, so it is created with mode 0700.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{c.Paths.State, c.TranscriptDir(), c.Paths.Archive} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// SessionFile returns the path of the saved Matrix session.
func (c *Config) SessionFile() string {
	return filepath.Join(c.Paths.State, "session.json")
}

// SnapshotFile returns the path of the ticket store snapshot.
func (c *Config) SnapshotFile() string {
	return filepath.Join(c.Paths.State, "tickets.json")
}

// SocketPath returns the path of the admin control socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.State, "frontdesk.sock")
}

// TranscriptDir returns the directory where transcripts are generated
// before archiving.
func (c *Config) TranscriptDir() string {
	return filepath.Join(c.Paths.State, "transcripts")
}
