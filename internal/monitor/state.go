package monitor

import "fmt"

// UnitState is the lifecycle state of a unit as reported by systemd's
// ActiveState property.
type UnitState int

const (
	Up UnitState = iota
	Down
	Starting
	Stopping
	Reloading
	Refreshing
	Failed
	Maintenance
)

var stateNames = [...]string{
	Up:          "Up",
	Down:        "Down",
	Starting:    "Starting",
	Stopping:    "Stopping",
	Reloading:   "Reloading",
	Refreshing:  "Refreshing",
	Failed:      "Failed",
	Maintenance: "Maintenance",
}

func (s UnitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("UnitState(%d)", int(s))
	}
	return stateNames[s]
}

// Running reports whether a stop directive is the sensible toggle for s.
func (s UnitState) Running() bool {
	switch s {
	case Up, Starting, Reloading, Refreshing:
		return true
	default:
		return false
	}
}

var activeStates = map[string]UnitState{
	"active":       Up,
	"inactive":     Down,
	"failed":       Failed,
	"activating":   Starting,
	"deactivating": Stopping,
	"maintenance":  Maintenance,
	"reloading":    Reloading,
	"refreshing":   Refreshing,
}

// DecodeError reports an ActiveState token outside the known table.
type DecodeError struct {
	Token string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unrecognized unit state %q", e.Token)
}

// DecodeState maps a systemd ActiveState token to a UnitState.
// Matching is exact and case-sensitive; unknown tokens are rejected.
func DecodeState(token string) (UnitState, error) {
	s, ok := activeStates[token]
	if !ok {
		return 0, &DecodeError{Token: token}
	}
	return s, nil
}
