// Package systemd binds the monitor to systemd over D-Bus: unit lifecycle
// subscriptions, start/stop jobs, and sd_notify for ctrdash itself.
package systemd

import (
	"errors"
	"fmt"
	"strings"

	"ctrdash/internal/monitor"
)

// DefaultServiceTemplate names the systemd service behind a NixOS container.
const DefaultServiceTemplate = "container@%s.service"

// ErrUnsupported is returned by every D-Bus operation on non-linux builds.
var ErrUnsupported = errors.New("systemd: unsupported OS (linux only)")

// Bus selects which manager to talk to.
type Bus string

const (
	BusSystem Bus = "system"
	BusUser   Bus = "user"
)

// ParseBus accepts "system", "user" or "" (system).
func ParseBus(s string) (Bus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(BusSystem):
		return BusSystem, nil
	case string(BusUser), "session":
		return BusUser, nil
	default:
		return "", fmt.Errorf("systemd: unknown bus %q (want system or user)", s)
	}
}

// ValidateTemplate checks that tpl has exactly one %s and no other verb.
func ValidateTemplate(tpl string) error {
	if strings.Count(tpl, "%s") != 1 {
		return fmt.Errorf("systemd: service template %q must contain exactly one %%s", tpl)
	}
	if strings.Count(tpl, "%") != 1 {
		return fmt.Errorf("systemd: service template %q has a stray %%", tpl)
	}
	return nil
}

// ServiceName renders unit into tpl. An empty tpl uses DefaultServiceTemplate.
func ServiceName(tpl string, unit monitor.UnitID) string {
	if tpl == "" {
		tpl = DefaultServiceTemplate
	}
	return strings.Replace(tpl, "%s", string(unit), 1)
}

// Namer returns ServiceName bound to tpl, for monitor.Deps.ServiceName.
func Namer(tpl string) func(monitor.UnitID) string {
	return func(id monitor.UnitID) string { return ServiceName(tpl, id) }
}

const (
	busName         = "org.freedesktop.systemd1"
	managerPath     = "/org/freedesktop/systemd1"
	managerIface    = "org.freedesktop.systemd1.Manager"
	unitIface       = "org.freedesktop.systemd1.Unit"
	propsIface      = "org.freedesktop.DBus.Properties"
	propsChanged    = propsIface + ".PropertiesChanged"
	activeStateProp = "ActiveState"
)

// JobError reports a systemd job that finished with a result other than "done".
type JobError struct {
	Op      string
	Service string
	Result  string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s job for %s finished with result %q", e.Op, e.Service, e.Result)
}
