package config

import (
	"reflect"
	"sort"
	"strings"

	logx "ctrdash/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	restart := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Debug server (never log token)
	oD, nD := oldCfg.Debug, newCfg.Debug
	nTokenSet := strings.TrimSpace(nD.Token) != ""
	oD.Token, nD.Token = "", ""
	if oldCfg.Debug.Token != newCfg.Debug.Token || oD != nD {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nD.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nD.Addr)),
			logx.Bool("debug.token_set", nTokenSet),
			logx.Bool("debug.allow_insecure", nD.AllowInsecure),
		)
	}

	// Startup-only sections.
	if !reflect.DeepEqual(oldCfg.Discovery, newCfg.Discovery) {
		changed = append(changed, "discovery")
		restart = append(restart, "discovery")
		attrs = append(attrs,
			logx.String("discovery.dir", newCfg.Discovery.Dir),
			logx.Int("discovery.units", len(newCfg.Discovery.Units)),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		restart = append(restart, "systemd")
		attrs = append(attrs,
			logx.String("systemd.bus", newCfg.Systemd.Bus),
			logx.String("systemd.service_template", newCfg.Systemd.ServiceTemplate),
		)
	}
	if !reflect.DeepEqual(oldCfg.Journal, newCfg.Journal) {
		changed = append(changed, "journal")
		restart = append(restart, "journal")
		attrs = append(attrs,
			logx.String("journal.command", newCfg.Journal.Command),
			logx.Int("journal.lines", newCfg.Journal.Lines),
		)
	}
	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
		restart = append(restart, "commands")
		attrs = append(attrs,
			logx.String("commands.timeout", strings.TrimSpace(newCfg.Commands.Timeout)),
			logx.Any("commands.rate_per_sec", newCfg.Commands.RatePerSec),
		)
	}
	if oldCfg.UI != newCfg.UI {
		changed = append(changed, "ui")
		restart = append(restart, "ui")
		attrs = append(attrs,
			logx.Int("ui.log_lines", newCfg.UI.LogLines),
			logx.Int("ui.debug_lines", newCfg.UI.DebugLines),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
