package monitor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ctrdash/internal/eventbus"
	"ctrdash/internal/journal"
)

func logsOf(evs []NamedEvent, unit UnitID) []string {
	return describeAll(only(evs, unit, KindLog))
}

func TestLogWatcherLinesThenCleanEnd(t *testing.T) {
	h := newHarness()
	h.logs.set(svc("web"), staticLog("hello\nworld\n"))

	m := startMonitor(t, h.deps(), "web")
	evs := collect(t, m, func(evs []NamedEvent) bool { return len(only(evs, "web", KindLog)) >= 4 })
	waitTaskStopped(t, m, "log:web")
	evs = append(evs, drainRest(m)...)

	require.Equal(t, []string{"log:requesting logs", "log:reading logs", "line:hello", "line:world"}, logsOf(evs, "web"))
	require.Equal(t, 1, h.logs.closes(svc("web")))
}

func TestLogWatcherTrimsCRAndKeepsTrailingPartialLine(t *testing.T) {
	h := newHarness()
	h.logs.set(svc("web"), staticLog("first\r\n\nlast-no-newline"))

	m := startMonitor(t, h.deps(), "web")
	waitTaskStopped(t, m, "log:web")
	evs := drainRest(m)

	require.Equal(t, []string{
		"log:requesting logs",
		"log:reading logs",
		"line:first",
		"line:",
		"line:last-no-newline",
	}, logsOf(evs, "web"))
}

func TestLogWatcherSpawnFailure(t *testing.T) {
	h := newHarness()
	h.logs.set(svc("web"), func(ctx context.Context) (io.ReadCloser, error) { return nil, errBoom })

	m := startMonitor(t, h.deps(), "web")
	waitTaskStopped(t, m, "log:web")
	evs := drainRest(m)

	logs := only(evs, "web", KindLog)
	require.Equal(t, []string{"log:requesting logs", "fail"}, describeAll(logs))
	f := logs[1].Payload.(Failure)
	require.EqualError(t, f.Err, "log monitoring: failed to spawn log follower: boom")
	require.Equal(t, ClassSetup, f.Class())
}

func TestLogWatcherReadFailure(t *testing.T) {
	h := newHarness()
	h.logs.set(svc("web"), func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(errReader{err: errBoom}), nil
	})

	m := startMonitor(t, h.deps(), "web")
	waitTaskStopped(t, m, "log:web")
	evs := drainRest(m)

	logs := only(evs, "web", KindLog)
	require.Equal(t, []string{"log:requesting logs", "log:reading logs", "fail"}, describeAll(logs))
	f := logs[2].Payload.(Failure)
	require.EqualError(t, f.Err, "log monitoring: failed to read log line: boom")
	require.Equal(t, ClassOperational, f.Class())
	require.Equal(t, 1, h.logs.closes(svc("web")))
}

func TestStopClosesFollowersWithoutFailures(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, err := Start(ctx, h.deps(), []UnitID{"a", "b"})
	require.NoError(t, err)

	collect(t, m, func(evs []NamedEvent) bool {
		return len(only(evs, "a", KindLog)) == 2 && len(only(evs, "b", KindLog)) == 2
	})

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	require.NoError(t, m.Stop(sctx))

	require.Equal(t, 1, h.logs.closes(svc("a")))
	require.Equal(t, 1, h.logs.closes(svc("b")))

	for {
		ev, err := m.Events().Recv(sctx)
		if errors.Is(err, eventbus.ErrClosed) {
			break
		}
		require.NoError(t, err)
		_, failed := ev.Payload.(Failure)
		require.False(t, failed, "unexpected failure on shutdown: %v", ev.Payload)
	}
}

func TestLogWatcherFollowerExitIsCleanEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	bin := filepath.Join(t.TempDir(), "journalctl")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho hello\nexit 1\n"), 0o755))

	h := newHarness()
	deps := h.deps()
	deps.Logs = &journal.Follower{Command: bin}
	m := startMonitor(t, deps, "web")
	waitTaskStopped(t, m, "log:web")
	evs := drainRest(m)

	require.Equal(t, []string{"log:requesting logs", "log:reading logs", "line:hello"}, logsOf(evs, "web"))
	require.Zero(t, countWhere(evs, "web", KindLog, isFailure))
}
