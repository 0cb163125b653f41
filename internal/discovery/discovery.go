// Package discovery decides which containers the dashboard watches.
package discovery

import (
	"fmt"
	"os"
	"strings"

	"ctrdash/internal/config"
	"ctrdash/internal/monitor"
)

// FromDir returns one unit per entry of dir, named by the entry's file name
// up to its last dot (NixOS writes "<name>.conf"). Hidden entries such as
// editor swap files are skipped. An unreadable directory or a dotless entry
// fails the whole discovery.
func FromDir(dir string) ([]monitor.UnitID, error) {
	if dir == "" {
		dir = config.DefaultDiscoveryDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discovery: read %s: %w", dir, err)
	}
	ids := make([]monitor.UnitID, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name, err := unitName(e.Name())
		if err != nil {
			return nil, fmt.Errorf("discovery: %s: %w", dir, err)
		}
		ids = append(ids, monitor.UnitID(name))
	}
	return monitor.NewRegistry(ids).List(), nil
}

func unitName(file string) (string, error) {
	i := strings.LastIndexByte(file, '.')
	if i < 0 {
		return "", fmt.Errorf("entry %q has no extension", file)
	}
	return file[:i], nil
}

// Resolve prefers the static discovery.units list and falls back to FromDir.
func Resolve(cfg config.DiscoveryConfig) ([]monitor.UnitID, error) {
	if len(cfg.Units) > 0 {
		ids := make([]monitor.UnitID, 0, len(cfg.Units))
		for _, u := range cfg.Units {
			ids = append(ids, monitor.UnitID(strings.TrimSpace(u)))
		}
		return monitor.NewRegistry(ids).List(), nil
	}
	return FromDir(cfg.Dir)
}
