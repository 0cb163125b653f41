package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the on-disk configuration (JSON or YAML).
//
// Sections marked "hot" are applied on reload; the rest are read once at
// startup.
type Config struct {
	Logging   LoggingConfig   `json:"logging" yaml:"logging"` // hot
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Systemd   SystemdConfig   `json:"systemd" yaml:"systemd"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Commands  CommandsConfig  `json:"commands" yaml:"commands"`
	UI        UIConfig        `json:"ui" yaml:"ui"`
	Debug     DebugConfig     `json:"debug,omitempty" yaml:"debug"` // hot
}

type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Console bool        `json:"console" yaml:"console"`
	File    LoggingFile `json:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// DiscoveryConfig selects the containers to watch.
//
// A non-empty Units list wins; otherwise every entry of Dir names one
// container (file name up to the last dot).
type DiscoveryConfig struct {
	Dir   string   `json:"dir,omitempty" yaml:"dir"`
	Units []string `json:"units,omitempty" yaml:"units"`
}

type SystemdConfig struct {
	// Bus is "system" (default) or "user".
	Bus string `json:"bus,omitempty" yaml:"bus"`
	// ServiceTemplate maps a container name to its unit; exactly one %s.
	ServiceTemplate string `json:"service_template,omitempty" yaml:"service_template"`
}

type JournalConfig struct {
	Command   string   `json:"command,omitempty" yaml:"command"`
	Lines     int      `json:"lines,omitempty" yaml:"lines"`
	ExtraArgs []string `json:"extra_args,omitempty" yaml:"extra_args"`
}

type CommandsConfig struct {
	// Timeout is a Go duration string (e.g. "30s").
	Timeout string `json:"timeout,omitempty" yaml:"timeout"`
	// RatePerSec throttles start/stop calls. 0 disables.
	RatePerSec float64 `json:"rate_per_sec,omitempty" yaml:"rate_per_sec"`
}

// TimeoutDuration is the per-call bound for start/stop jobs. Empty or zero
// falls back to DefaultCommandTimeout.
func (c CommandsConfig) TimeoutDuration() (time.Duration, error) {
	d, err := parseDuration("commands.timeout", c.Timeout)
	if err != nil || d > 0 {
		return d, err
	}
	return parseDuration("commands.timeout", DefaultCommandTimeout)
}

type UIConfig struct {
	// LogLines caps each container's log pane.
	LogLines int `json:"log_lines,omitempty" yaml:"log_lines"`
	// DebugLines caps the internal log pane.
	DebugLines int `json:"debug_lines,omitempty" yaml:"debug_lines"`
}

// DebugConfig controls the optional debug HTTP server (pprof and task stats).
//
// Bind to loopback unless a token is set; a non-loopback address without a
// token is refused unless AllowInsecure is true.
type DebugConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Addr          string `json:"addr,omitempty" yaml:"addr"`   // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty" yaml:"token"` // bearer token, never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty" yaml:"allow_insecure"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile can run its 30s.
	ReadTimeout  string `json:"read_timeout,omitempty" yaml:"read_timeout"`
	WriteTimeout string `json:"write_timeout,omitempty" yaml:"write_timeout"`
	IdleTimeout  string `json:"idle_timeout,omitempty" yaml:"idle_timeout"`

	// Runtime profiling rates. 0 keeps Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty" yaml:"mutex_profile_fraction"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty" yaml:"block_profile_rate"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty" yaml:"mem_profile_rate"`
}

// ServerTimeouts are the parsed HTTP server timeouts. 0 means none.
type ServerTimeouts struct {
	Read, Write, Idle time.Duration
}

func (c DebugConfig) ServerTimeouts() (ServerTimeouts, error) {
	var (
		t   ServerTimeouts
		err error
	)
	if t.Read, err = parseDuration("debug.read_timeout", c.ReadTimeout); err != nil {
		return ServerTimeouts{}, err
	}
	if t.Write, err = parseDuration("debug.write_timeout", c.WriteTimeout); err != nil {
		return ServerTimeouts{}, err
	}
	if t.Idle, err = parseDuration("debug.idle_timeout", c.IdleTimeout); err != nil {
		return ServerTimeouts{}, err
	}
	return t, nil
}

// parseDuration accepts "" as 0 and rejects negative values.
func parseDuration(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}
