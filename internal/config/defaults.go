package config

import (
	"errors"
	"fmt"
	"strings"

	"ctrdash/internal/systemd"
)

const (
	DefaultDiscoveryDir    = "/etc/nixos-containers"
	DefaultCommandTimeout  = "30s"
	DefaultUILogLines      = 1000
	DefaultUIDebugLines    = 200
	DefaultDebugAddr       = "127.0.0.1:6060"
	DefaultJournalCommand  = "journalctl"
	DefaultLoggingLevel    = "info"
	DefaultSystemdBus      = string(systemd.BusSystem)
	DefaultServiceTemplate = systemd.DefaultServiceTemplate
)

// Default returns the configuration used when no file exists. Parse decodes
// on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: DefaultLoggingLevel, Console: true},
		Discovery: DiscoveryConfig{Dir: DefaultDiscoveryDir},
		Systemd:   SystemdConfig{Bus: DefaultSystemdBus, ServiceTemplate: DefaultServiceTemplate},
		Journal:   JournalConfig{Command: DefaultJournalCommand},
		Commands:  CommandsConfig{Timeout: DefaultCommandTimeout},
		UI:        UIConfig{LogLines: DefaultUILogLines, DebugLines: DefaultUIDebugLines},
		Debug:     DebugConfig{Addr: DefaultDebugAddr},
	}
}

// Normalize fills empty strings and non-positive sizes that a file set
// explicitly back to their defaults.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if strings.TrimSpace(cfg.Discovery.Dir) == "" {
		cfg.Discovery.Dir = DefaultDiscoveryDir
	}
	if strings.TrimSpace(cfg.Systemd.Bus) == "" {
		cfg.Systemd.Bus = DefaultSystemdBus
	}
	if cfg.Systemd.ServiceTemplate == "" {
		cfg.Systemd.ServiceTemplate = DefaultServiceTemplate
	}
	if strings.TrimSpace(cfg.Journal.Command) == "" {
		cfg.Journal.Command = DefaultJournalCommand
	}
	if strings.TrimSpace(cfg.Commands.Timeout) == "" {
		cfg.Commands.Timeout = DefaultCommandTimeout
	}
	if cfg.UI.LogLines <= 0 {
		cfg.UI.LogLines = DefaultUILogLines
	}
	if cfg.UI.DebugLines <= 0 {
		cfg.UI.DebugLines = DefaultUIDebugLines
	}
	if strings.TrimSpace(cfg.Debug.Addr) == "" {
		cfg.Debug.Addr = DefaultDebugAddr
	}
}

// Validate reports every problem it finds, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := systemd.ParseBus(cfg.Systemd.Bus); err != nil {
		errs = append(errs, fmt.Errorf("systemd.bus: %w", err))
	}
	if err := systemd.ValidateTemplate(cfg.Systemd.ServiceTemplate); err != nil {
		errs = append(errs, fmt.Errorf("systemd.service_template: %w", err))
	}
	for i, u := range cfg.Discovery.Units {
		if strings.TrimSpace(u) == "" || strings.ContainsAny(u, "/ \t") {
			errs = append(errs, fmt.Errorf("discovery.units[%d]: invalid container name %q", i, u))
		}
	}
	if cfg.Journal.Lines < 0 {
		errs = append(errs, errors.New("journal.lines: must be >= 0"))
	}
	if _, err := cfg.Commands.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Commands.RatePerSec < 0 {
		errs = append(errs, errors.New("commands.rate_per_sec: must be >= 0"))
	}
	if _, err := cfg.Debug.ServerTimeouts(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
