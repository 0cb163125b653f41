package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"ctrdash/internal/eventbus"
	"ctrdash/internal/runtime/supervisor"
	logx "ctrdash/pkg/logx"
)

// JobMode is the systemd job mode used for every directive: a queued
// conflicting job is replaced.
const JobMode = "replace"

// DefaultCommandTimeout bounds a single start/stop call.
const DefaultCommandTimeout = 30 * time.Second

// Deps are the collaborators and knobs of a Monitor.
type Deps struct {
	Status  LifecycleSource
	Logs    LogFollower
	Control UnitController

	// ServiceName maps a unit to its systemd service name.
	// Defaults to the unit name itself.
	ServiceName func(UnitID) string

	Logger logx.Logger

	// CommandTimeout bounds each controller call. 0 uses DefaultCommandTimeout.
	CommandTimeout time.Duration
	// CommandRate limits issued commands per second (burst 1). 0 disables.
	CommandRate float64
}

// Monitor owns one status watcher and one log watcher per unit, plus one
// task per issued command, all feeding a single event bus.
type Monitor struct {
	deps    Deps
	log     logx.Logger
	units   *Registry
	sup     *supervisor.Supervisor
	bus     *eventbus.Bus[NamedEvent]
	cmds    *eventbus.Bus[command]
	limiter *rate.Limiter

	events *Receiver
	sender *CommandSender
}

type command struct {
	unit      UnitID
	directive Directive
}

// Start spawns the watchers for every id and returns the running monitor.
//
// ids are sorted and deduplicated. Cancelling ctx (or calling Stop) ends all
// watchers without Failure events and kills every log follower.
func Start(ctx context.Context, deps Deps, ids []UnitID) (*Monitor, error) {
	if deps.Status == nil || deps.Logs == nil || deps.Control == nil {
		return nil, errors.New("monitor: status, logs and control collaborators are required")
	}
	if deps.ServiceName == nil {
		deps.ServiceName = func(id UnitID) string { return string(id) }
	}
	if deps.CommandTimeout <= 0 {
		deps.CommandTimeout = DefaultCommandTimeout
	}
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}

	m := &Monitor{
		deps:  deps,
		log:   log,
		units: NewRegistry(ids),
		bus:   eventbus.New[NamedEvent](),
		cmds:  eventbus.New[command](),
	}
	if deps.CommandRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(deps.CommandRate), 1)
	}
	m.sup = supervisor.New(ctx, supervisor.WithLogger(log))
	m.events = &Receiver{bus: m.bus}
	m.sender = &CommandSender{units: m.units, queue: m.cmds}

	for _, id := range m.units.List() {
		m.spawn(id, KindStatus, "status monitoring", func(ctx context.Context, out *emitter) error {
			return m.watchStatus(ctx, id, out)
		})
		m.spawn(id, KindLog, "log monitoring", func(ctx context.Context, out *emitter) error {
			return m.watchLogs(ctx, id, out)
		})
	}
	m.sup.Go("commands", m.dispatch)

	log.Info("monitor started", logx.Int("units", m.units.Len()))
	return m, nil
}

// Events is the consumer side of the event bus.
func (m *Monitor) Events() *Receiver { return m.events }

// Units is the fixed unit set.
func (m *Monitor) Units() *Registry { return m.units }

// Commands is the command path.
func (m *Monitor) Commands() *CommandSender { return m.sender }

// Snapshot exposes per-task statistics for debugging.
func (m *Monitor) Snapshot() supervisor.Snapshot { return m.sup.Snapshot() }

// Done is closed once the monitor context is canceled.
func (m *Monitor) Done() <-chan struct{} { return m.sup.Context().Done() }

// Stop cancels every task, waits for them, then closes the command and event
// buses. Events already queued stay receivable.
func (m *Monitor) Stop(ctx context.Context) error {
	m.sup.Cancel()
	err := m.Wait(ctx)
	m.cmds.Close()
	m.bus.Close()
	return err
}

// Wait blocks until every task returned. Task failures are reported on the
// bus, so only ctx errors are returned.
func (m *Monitor) Wait(ctx context.Context) error {
	if err := m.sup.Wait(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// spawn runs body under the supervisor. Whatever goes wrong inside body,
// including a panic, becomes exactly one Failure event tagged with unit and
// kind; the task then ends.
func (m *Monitor) spawn(unit UnitID, kind TaskKind, label string, body func(ctx context.Context, out *emitter) error) {
	name := kind.String() + ":" + string(unit)
	m.sup.Go(name, func(ctx context.Context) error {
		out := &emitter{bus: m.bus, unit: unit, kind: kind}
		err := m.guard(name, func() error { return body(ctx, out) })
		switch {
		case err == nil:
			return nil
		case errors.Is(err, eventbus.ErrClosed):
			m.log.Warn("event consumer closed; task ending", logx.String("task", name))
			return nil
		case kind != KindCommand && ctx.Err() != nil:
			// Shutdown, not a failure. Commands still report their outcome.
			return nil
		}

		err = fmt.Errorf("%s: %w", label, err)
		if sendErr := out.send(Failure{Err: err}); sendErr != nil {
			m.log.Warn("failure dropped; event consumer closed", logx.String("task", name), logx.Err(err))
		}
		m.log.Debug("task failed", logx.String("task", name), logx.Err(err))
		return err
	})
}

func (m *Monitor) guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("task panicked", logx.String("task", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// dispatch turns queued commands into one executor task each.
func (m *Monitor) dispatch(ctx context.Context) error {
	for {
		c, err := m.cmds.Recv(ctx)
		if err != nil {
			if errors.Is(err, eventbus.ErrClosed) {
				return nil
			}
			return err
		}
		label := c.directive.String() + " command"
		m.spawn(c.unit, KindCommand, label, func(ctx context.Context, out *emitter) error {
			return m.execute(ctx, c.unit, c.directive, out)
		})
	}
}

// emitter tags payloads with the producing task before putting them on the bus.
type emitter struct {
	bus  *eventbus.Bus[NamedEvent]
	unit UnitID
	kind TaskKind
}

func (e *emitter) send(p Payload) error {
	return e.bus.Send(NamedEvent{Unit: e.unit, Kind: e.kind, Time: time.Now(), Payload: p})
}

func (e *emitter) logf(format string, args ...any) error {
	return e.send(DiagnosticLog{Text: fmt.Sprintf(format, args...)})
}

// Receiver is the consumer side of the event bus.
type Receiver struct {
	bus *eventbus.Bus[NamedEvent]
}

// TryRecv returns the next event without blocking.
func (r *Receiver) TryRecv() (NamedEvent, bool) { return r.bus.TryRecv() }

// Recv blocks for the next event. It returns eventbus.ErrClosed once the
// monitor stopped (or Close was called) and the backlog is drained.
func (r *Receiver) Recv(ctx context.Context) (NamedEvent, error) { return r.bus.Recv(ctx) }

// Close tells producers that nobody is listening anymore. Each task that
// later tries to emit ends itself.
func (r *Receiver) Close() { r.bus.Close() }

// Len is the current backlog.
func (r *Receiver) Len() int { return r.bus.Len() }

// CommandSender queues directives. It never blocks.
type CommandSender struct {
	units *Registry
	queue *eventbus.Bus[command]
}

// Send queues d for unit. Unknown units are rejected with ErrUnknownUnit.
func (s *CommandSender) Send(unit UnitID, d Directive) error {
	if !s.units.Contains(unit) {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return s.queue.Send(command{unit: unit, directive: d})
}
