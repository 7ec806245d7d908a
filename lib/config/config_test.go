// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes yaml to a file in a fresh temp directory and
// returns its path.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frontdesk.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Tickets.Prefix != "ticket" {
		t.Errorf("expected prefix=ticket, got %s", cfg.Tickets.Prefix)
	}
	if cfg.Staff.PowerThreshold != 50 {
		t.Errorf("expected power_threshold=50, got %d", cfg.Staff.PowerThreshold)
	}
	if cfg.Presence.Interval != "5m" {
		t.Errorf("expected interval=5m, got %s", cfg.Presence.Interval)
	}
	if cfg.Space.Name != "Frontdesk" {
		t.Errorf("expected space name=Frontdesk, got %s", cfg.Space.Name)
	}
	if cfg.Paths.State == "" {
		t.Error("expected a default state path")
	}
}

func TestLoad_RequiresFrontdeskConfig(t *testing.T) {
	// Empty reads the same as unset; t.Setenv restores the real value
	// afterwards.
	t.Setenv("FRONTDESK_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when FRONTDESK_CONFIG not set, got nil")
	}

	expectedMsg := "FRONTDESK_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("error should start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithFrontdeskConfig(t *testing.T) {
	path := writeConfig(t, `
homeserver:
  url: https://matrix.test.local
space:
  alias: "#frontdesk:test.local"
`)
	t.Setenv("FRONTDESK_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Homeserver.URL != "https://matrix.test.local" {
		t.Errorf("expected url=https://matrix.test.local, got %s", cfg.Homeserver.URL)
	}
	if cfg.Space.Alias != "#frontdesk:test.local" {
		t.Errorf("expected alias=#frontdesk:test.local, got %s", cfg.Space.Alias)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
homeserver:
  url: https://matrix.test.local

space:
  alias: "#helpdesk:test.local"
  name: Helpdesk

staff:
  users:
    - "@alice:test.local"
    - "@bob:test.local"
  power_threshold: 75

tickets:
  prefix: support
  log_room_alias: "#helpdesk-log:test.local"

intake:
  catalog_file: /etc/frontdesk/services.jsonc

presence:
  status_messages:
    - "DM me to open a ticket"
  interval: 90s

paths:
  state: /custom/state
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Space.Alias != "#helpdesk:test.local" {
		t.Errorf("expected alias=#helpdesk:test.local, got %s", cfg.Space.Alias)
	}
	if cfg.Space.Name != "Helpdesk" {
		t.Errorf("expected name=Helpdesk, got %s", cfg.Space.Name)
	}
	if len(cfg.Staff.Users) != 2 || cfg.Staff.Users[0] != "@alice:test.local" {
		t.Errorf("unexpected staff users: %v", cfg.Staff.Users)
	}
	if cfg.Staff.PowerThreshold != 75 {
		t.Errorf("expected power_threshold=75, got %d", cfg.Staff.PowerThreshold)
	}
	if cfg.Tickets.Prefix != "support" {
		t.Errorf("expected prefix=support, got %s", cfg.Tickets.Prefix)
	}

	// Defaults survive for fields the file does not set.
	if cfg.Tickets.LogRoomName != "Frontdesk Log" {
		t.Errorf("expected default log room name, got %s", cfg.Tickets.LogRoomName)
	}

	if cfg.Presence.Interval != "90s" {
		t.Errorf("expected interval=90s, got %s", cfg.Presence.Interval)
	}
	if cfg.Paths.State != "/custom/state" {
		t.Errorf("expected state=/custom/state, got %s", cfg.Paths.State)
	}
}

func TestStatePathExpansion(t *testing.T) {
	path := writeConfig(t, `
homeserver:
  url: https://matrix.test.local
paths:
  state: /var/lib/frontdesk
  archive: ${FRONTDESK_STATE}/archive
archive:
  key_file: ${FRONTDESK_STATE}/archive.key
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Archive != "/var/lib/frontdesk/archive" {
		t.Errorf("expected archive=/var/lib/frontdesk/archive, got %s", cfg.Paths.Archive)
	}
	if cfg.Archive.KeyFile != "/var/lib/frontdesk/archive.key" {
		t.Errorf("expected key_file=/var/lib/frontdesk/archive.key, got %s", cfg.Archive.KeyFile)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		in   string
		vars map[string]string
		want string
	}{
		{"${HOME}/frontdesk", map[string]string{"HOME": "/home/ops"}, "/home/ops/frontdesk"},
		{"${ABSENT:-fallback}", nil, "fallback"},
		{"${SET:-fallback}", map[string]string{"SET": "real"}, "real"},
		{"${ROOT}/${LEAF}", map[string]string{"ROOT": "top", "LEAF": "tail"}, "top/tail"},
		{"plain text, nothing to expand", nil, "plain text, nothing to expand"},
	}

	for _, tt := range tests {
		if got := expandVars(tt.in, tt.vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := Default()
	cfg.Homeserver.URL = "https://matrix.test.local"
	cfg.Space.Alias = "#frontdesk:test.local"
	cfg.Tickets.LogRoomAlias = "#frontdesk-log:test.local"
	cfg.Staff.Users = []string{"@alice:test.local"}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name: "missing homeserver url",
			modify: func(c *Config) {
				c.Homeserver.URL = ""
			},
			wantErr: "homeserver.url is required",
		},
		{
			name: "non-http homeserver url",
			modify: func(c *Config) {
				c.Homeserver.URL = "matrix.test.local"
			},
			wantErr: "must be http or https",
		},
		{
			name: "missing space alias",
			modify: func(c *Config) {
				c.Space.Alias = ""
			},
			wantErr: "space.alias is required",
		},
		{
			name: "malformed space alias",
			modify: func(c *Config) {
				c.Space.Alias = "frontdesk"
			},
			wantErr: "not a Matrix room alias",
		},
		{
			name: "malformed staff user",
			modify: func(c *Config) {
				c.Staff.Users = []string{"alice"}
			},
			wantErr: "not a Matrix user ID",
		},
		{
			name: "power threshold out of range",
			modify: func(c *Config) {
				c.Staff.PowerThreshold = 150
			},
			wantErr: "must be in [0, 100]",
		},
		{
			name: "uppercase ticket prefix",
			modify: func(c *Config) {
				c.Tickets.Prefix = "Ticket"
			},
			wantErr: "must be lowercase",
		},
		{
			name: "empty ticket prefix",
			modify: func(c *Config) {
				c.Tickets.Prefix = ""
			},
			wantErr: "tickets.prefix is required",
		},
		{
			name: "bad presence interval with messages",
			modify: func(c *Config) {
				c.Presence.StatusMessages = []string{"here to help"}
				c.Presence.Interval = "soon"
			},
			wantErr: "presence.interval",
		},
		{
			name: "bad interval ignored when presence disabled",
			modify: func(c *Config) {
				c.Presence.StatusMessages = nil
				c.Presence.Interval = "soon"
			},
		},
		{
			name: "missing state path",
			modify: func(c *Config) {
				c.Paths.State = ""
			},
			wantErr: "paths.state is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Homeserver.URL = ""
	cfg.Space.Alias = ""
	cfg.Tickets.Prefix = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	for _, want := range []string{"homeserver.url", "space.alias", "tickets.prefix"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s: %v", want, err)
		}
	}
}

func TestPresenceInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Presence.Interval = "90s"
	if got := cfg.PresenceInterval(); got != 90*time.Second {
		t.Errorf("PresenceInterval() = %s, want 90s", got)
	}

	cfg.Presence.Interval = "garbage"
	if got := cfg.PresenceInterval(); got != 5*time.Minute {
		t.Errorf("PresenceInterval() fallback = %s, want 5m", got)
	}
}

func TestEnsurePaths(t *testing.T) {
	base := t.TempDir()

	cfg := validConfig()
	cfg.Paths.State = filepath.Join(base, "state")
	cfg.Paths.Archive = filepath.Join(base, "archive")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.State, cfg.TranscriptDir(), cfg.Paths.Archive} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if info.Mode().Perm() != 0700 {
			t.Errorf("%s has mode %o, want 0700", dir, info.Mode().Perm())
		}
	}
}

func TestStateFileLayout(t *testing.T) {
	cfg := validConfig()
	cfg.Paths.State = "/var/lib/frontdesk"

	if got := cfg.SessionFile(); got != "/var/lib/frontdesk/session.json" {
		t.Errorf("SessionFile() = %s", got)
	}
	if got := cfg.SnapshotFile(); got != "/var/lib/frontdesk/tickets.json" {
		t.Errorf("SnapshotFile() = %s", got)
	}
	if got := cfg.SocketPath(); got != "/var/lib/frontdesk/frontdesk.sock" {
		t.Errorf("SocketPath() = %s", got)
	}
	if got := cfg.TranscriptDir(); got != "/var/lib/frontdesk/transcripts" {
		t.Errorf("TranscriptDir() = %s", got)
	}
}
