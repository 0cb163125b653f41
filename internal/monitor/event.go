package monitor

import (
	"errors"
	"slices"
	"time"
)

// UnitID names one managed unit (a container name, not the service name).
type UnitID string

// Registry is the fixed set of units known at startup. It is read-only after
// construction and safe to share between goroutines.
type Registry struct {
	ids []UnitID
	set map[UnitID]struct{}
}

// NewRegistry sorts and deduplicates ids. Empty names are dropped.
func NewRegistry(ids []UnitID) *Registry {
	r := &Registry{set: make(map[UnitID]struct{}, len(ids))}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := r.set[id]; dup {
			continue
		}
		r.set[id] = struct{}{}
		r.ids = append(r.ids, id)
	}
	slices.Sort(r.ids)
	return r
}

func (r *Registry) Contains(id UnitID) bool {
	_, ok := r.set[id]
	return ok
}

// List returns a copy of the sorted ids.
func (r *Registry) List() []UnitID { return slices.Clone(r.ids) }

func (r *Registry) Len() int { return len(r.ids) }

// TaskKind identifies which task produced an event.
type TaskKind int

const (
	KindStatus TaskKind = iota
	KindLog
	KindCommand
)

func (k TaskKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindLog:
		return "log"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// NamedEvent is one item on the event bus.
type NamedEvent struct {
	Unit    UnitID
	Kind    TaskKind
	Time    time.Time
	Payload Payload
}

// Payload is one of DiagnosticLog, Failure, StateChanged or UnitLogLine.
type Payload interface {
	payload()
}

// DiagnosticLog is a progress message from a watcher or command, not from
// the unit itself.
type DiagnosticLog struct {
	Text string
}

// Failure ends the task that emitted it. No further events from the same
// (unit, kind) task follow.
type Failure struct {
	Err error
}

// StateChanged carries a decoded lifecycle state.
type StateChanged struct {
	State UnitState
}

// UnitLogLine is one line of the unit's journal.
type UnitLogLine struct {
	Text string
}

func (DiagnosticLog) payload() {}
func (Failure) payload()       {}
func (StateChanged) payload()  {}
func (UnitLogLine) payload()   {}

// Class returns the taxonomy class of the failure, or ClassUnknown.
func (f Failure) Class() ErrorClass {
	var se *StageError
	if errors.As(f.Err, &se) {
		return se.Class
	}
	var de *DecodeError
	if errors.As(f.Err, &de) {
		return ClassDecode
	}
	return ClassUnknown
}

// Directive is an imperative command issued against a unit.
type Directive int

const (
	DirectiveStart Directive = iota
	DirectiveStop
)

func (d Directive) String() string {
	if d == DirectiveStop {
		return "stop"
	}
	return "start"
}

// Progressive is the "-ing" form used in the success diagnostic.
func (d Directive) Progressive() string {
	if d == DirectiveStop {
		return "stopping"
	}
	return "starting"
}
