package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func commandsOf(evs []NamedEvent, unit UnitID) []string {
	return describeAll(only(evs, unit, KindCommand))
}

func isTerminal(p Payload) bool {
	switch p := p.(type) {
	case Failure:
		return true
	case DiagnosticLog:
		return p.Text == "starting" || p.Text == "stopping"
	}
	return false
}

func waitCommandsDone(t *testing.T, m *Monitor, unit UnitID, n uint64) {
	t.Helper()
	name := "command:" + string(unit)
	require.Eventually(t, func() bool {
		for _, ts := range m.Snapshot().Tasks {
			if ts.Name == name {
				return ts.Started == n && ts.Active == 0
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
}

func TestCommandStartSuccess(t *testing.T) {
	h := newHarness()
	m := startMonitor(t, h.deps(), "web")

	require.NoError(t, m.Commands().Send("web", DirectiveStart))
	waitCommandsDone(t, m, "web", 1)
	evs := drainRest(m)

	require.Equal(t, []string{"log:issuing start command", "log:starting"}, commandsOf(evs, "web"))
	require.Equal(t, []controlCall{{op: "start", service: svc("web"), mode: "replace"}}, h.ctl.snapshot())
}

func TestCommandStopFailure(t *testing.T) {
	h := newHarness()
	h.ctl.errs[svc("web")] = errBoom
	m := startMonitor(t, h.deps(), "web")

	require.NoError(t, m.Commands().Send("web", DirectiveStop))
	waitCommandsDone(t, m, "web", 1)
	evs := drainRest(m)

	cmd := only(evs, "web", KindCommand)
	require.Equal(t, []string{"log:issuing stop command", "fail"}, describeAll(cmd))
	f := cmd[1].Payload.(Failure)
	require.EqualError(t, f.Err, "stop command: failed to issue stop: boom")
	require.Equal(t, ClassCommand, f.Class())
}

func TestCommandUnknownUnitRejected(t *testing.T) {
	h := newHarness()
	m := startMonitor(t, h.deps(), "web")

	err := m.Commands().Send("mail", DirectiveStart)
	require.True(t, errors.Is(err, ErrUnknownUnit))
	require.Empty(t, h.ctl.snapshot())
}

func TestCommandExactlyOneTerminalOutcome(t *testing.T) {
	h := newHarness()
	h.ctl.errs[svc("b")] = errBoom
	m := startMonitor(t, h.deps(), "a", "b")

	const perUnit = 10
	for i := 0; i < perUnit; i++ {
		d := DirectiveStart
		if i%2 == 1 {
			d = DirectiveStop
		}
		require.NoError(t, m.Commands().Send("a", d))
		require.NoError(t, m.Commands().Send("b", d))
	}
	waitCommandsDone(t, m, "a", perUnit)
	waitCommandsDone(t, m, "b", perUnit)
	evs := drainRest(m)

	for _, id := range []UnitID{"a", "b"} {
		cmd := only(evs, id, KindCommand)
		require.Len(t, cmd, 2*perUnit, "unit %s: %v", id, describeAll(cmd))
		require.Equal(t, perUnit, countWhere(evs, id, KindCommand, isTerminal), "unit %s", id)
	}
	require.Equal(t, 0, countWhere(evs, "a", KindCommand, isFailure))
	require.Equal(t, perUnit, countWhere(evs, "b", KindCommand, isFailure))
}

func TestCommandTimeoutIsFailure(t *testing.T) {
	h := newHarness()
	h.ctl.block = true
	deps := h.deps()
	deps.CommandTimeout = 20 * time.Millisecond
	m := startMonitor(t, deps, "web")

	require.NoError(t, m.Commands().Send("web", DirectiveStart))
	waitCommandsDone(t, m, "web", 1)
	evs := drainRest(m)

	cmd := only(evs, "web", KindCommand)
	require.Equal(t, []string{"log:issuing start command", "fail"}, describeAll(cmd))
	require.True(t, errors.Is(cmd[1].Payload.(Failure).Err, context.DeadlineExceeded))
}

func TestCommandReportsOutcomeOnShutdown(t *testing.T) {
	h := newHarness()
	h.ctl.block = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, err := Start(ctx, h.deps(), []UnitID{"web"})
	require.NoError(t, err)

	require.NoError(t, m.Commands().Send("web", DirectiveStop))
	require.Eventually(t, func() bool { return len(h.ctl.snapshot()) == 1 }, 3*time.Second, 5*time.Millisecond)

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	require.NoError(t, m.Stop(sctx))
	evs := drainRest(m)

	require.Equal(t, []string{"log:issuing stop command", "fail"}, commandsOf(evs, "web"))
}

func TestCommandRateLimitDelaysButKeepsAll(t *testing.T) {
	h := newHarness()
	deps := h.deps()
	deps.CommandRate = 100
	m := startMonitor(t, deps, "web")

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Commands().Send("web", DirectiveStart))
	}
	waitCommandsDone(t, m, "web", 3)
	evs := drainRest(m)
	require.Equal(t, 3, countWhere(evs, "web", KindCommand, isTerminal))
	require.Len(t, h.ctl.snapshot(), 3)
}
