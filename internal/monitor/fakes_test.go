package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ---- lifecycle fakes ----

type fakeUnit struct {
	loadErr error
	subErr  error
	tokens  chan string
	recvErr chan error
}

func newFakeUnit(buffer int) *fakeUnit {
	return &fakeUnit{tokens: make(chan string, buffer), recvErr: make(chan error, 1)}
}

type fakeSource struct {
	mu      sync.Mutex
	units   map[string]*fakeUnit
	failAll error
	conns   int
	closed  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{units: map[string]*fakeUnit{}}
}

func (s *fakeSource) unit(service string) *fakeUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[service]
	if !ok {
		u = newFakeUnit(64)
		s.units[service] = u
	}
	return u
}

func (s *fakeSource) Connect(ctx context.Context) (LifecycleConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	s.conns++
	return &fakeConn{src: s}, nil
}

type fakeConn struct {
	src *fakeSource
}

func (c *fakeConn) LoadUnit(ctx context.Context, service string) (UnitPath, error) {
	u := c.src.unit(service)
	if u.loadErr != nil {
		return "", u.loadErr
	}
	return UnitPath("/org/freedesktop/systemd1/unit/" + service), nil
}

func (c *fakeConn) Subscribe(ctx context.Context, path UnitPath) (StateStream, error) {
	service := strings.TrimPrefix(string(path), "/org/freedesktop/systemd1/unit/")
	u := c.src.unit(service)
	if u.subErr != nil {
		return nil, u.subErr
	}
	return &fakeStream{u: u}, nil
}

func (c *fakeConn) Close() error {
	c.src.mu.Lock()
	c.src.closed++
	c.src.mu.Unlock()
	return nil
}

type fakeStream struct {
	u *fakeUnit
}

func (s *fakeStream) Recv(ctx context.Context) (string, error) {
	select {
	case tok, ok := <-s.u.tokens:
		if !ok {
			return "", io.EOF
		}
		return tok, nil
	case err := <-s.u.recvErr:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *fakeStream) Close() error { return nil }

// ---- log fakes ----

type fakeFollower struct {
	mu      sync.Mutex
	streams map[string]func(ctx context.Context) (io.ReadCloser, error)
	closed  map[string]int
}

func newFakeFollower() *fakeFollower {
	return &fakeFollower{
		streams: map[string]func(ctx context.Context) (io.ReadCloser, error){},
		closed:  map[string]int{},
	}
}

func (f *fakeFollower) set(service string, fn func(ctx context.Context) (io.ReadCloser, error)) {
	f.mu.Lock()
	f.streams[service] = fn
	f.mu.Unlock()
}

func (f *fakeFollower) Follow(ctx context.Context, service string) (io.ReadCloser, error) {
	f.mu.Lock()
	fn := f.streams[service]
	f.mu.Unlock()
	if fn == nil {
		// Quiet unit: block until cancelled, like journalctl with no output.
		pr, pw := io.Pipe()
		go func() {
			<-ctx.Done()
			_ = pw.CloseWithError(ctx.Err())
		}()
		return &trackedCloser{ReadCloser: pr, onClose: func() { f.noteClose(service) }}, nil
	}
	rc, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	return &trackedCloser{ReadCloser: rc, onClose: func() { f.noteClose(service) }}, nil
}

func (f *fakeFollower) noteClose(service string) {
	f.mu.Lock()
	f.closed[service]++
	f.mu.Unlock()
}

func (f *fakeFollower) closes(service string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[service]
}

type trackedCloser struct {
	io.ReadCloser
	once    sync.Once
	onClose func()
}

func (t *trackedCloser) Close() error {
	t.once.Do(t.onClose)
	return t.ReadCloser.Close()
}

func staticLog(text string) func(ctx context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(text)), nil
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// ---- controller fake ----

type controlCall struct {
	op      string
	service string
	mode    string
}

type fakeController struct {
	mu    sync.Mutex
	calls []controlCall
	errs  map[string]error
	block bool
}

func (c *fakeController) StartUnit(ctx context.Context, service, mode string) error {
	return c.do(ctx, "start", service, mode)
}

func (c *fakeController) StopUnit(ctx context.Context, service, mode string) error {
	return c.do(ctx, "stop", service, mode)
}

func (c *fakeController) do(ctx context.Context, op, service, mode string) error {
	c.mu.Lock()
	c.calls = append(c.calls, controlCall{op: op, service: service, mode: mode})
	err := c.errs[service]
	block := c.block
	c.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (c *fakeController) snapshot() []controlCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]controlCall(nil), c.calls...)
}

// ---- helpers ----

type harness struct {
	src  *fakeSource
	logs *fakeFollower
	ctl  *fakeController
}

func newHarness() *harness {
	return &harness{src: newFakeSource(), logs: newFakeFollower(), ctl: &fakeController{errs: map[string]error{}}}
}

func (h *harness) deps() Deps {
	return Deps{
		Status:      h.src,
		Logs:        h.logs,
		Control:     h.ctl,
		ServiceName: func(id UnitID) string { return fmt.Sprintf("container@%s.service", id) },
	}
}

func svc(id UnitID) string { return fmt.Sprintf("container@%s.service", id) }

func startMonitor(t *testing.T, deps Deps, ids ...UnitID) *Monitor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m, err := Start(ctx, deps, ids)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		_ = m.Stop(sctx)
	})
	return m
}

// collect receives events until pred holds for the events seen so far.
func collect(t *testing.T, m *Monitor, pred func([]NamedEvent) bool) []NamedEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var got []NamedEvent
	for !pred(got) {
		ev, err := m.Events().Recv(ctx)
		require.NoError(t, err, "events so far: %v", describeAll(got))
		got = append(got, ev)
	}
	return got
}

func only(evs []NamedEvent, unit UnitID, kind TaskKind) []NamedEvent {
	var out []NamedEvent
	for _, ev := range evs {
		if ev.Unit == unit && ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func countWhere(evs []NamedEvent, unit UnitID, kind TaskKind, match func(Payload) bool) int {
	n := 0
	for _, ev := range only(evs, unit, kind) {
		if match(ev.Payload) {
			n++
		}
	}
	return n
}

func isFailure(p Payload) bool { _, ok := p.(Failure); return ok }

func describe(ev NamedEvent) string {
	switch p := ev.Payload.(type) {
	case DiagnosticLog:
		return "log:" + p.Text
	case Failure:
		return "fail"
	case StateChanged:
		return "state:" + p.State.String()
	case UnitLogLine:
		return "line:" + p.Text
	default:
		return "?"
	}
}

func describeAll(evs []NamedEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, describe(ev))
	}
	return out
}

// waitTaskStopped waits until the named supervisor task ran and exited.
func waitTaskStopped(t *testing.T, m *Monitor, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, ts := range m.Snapshot().Tasks {
			if ts.Name == name {
				return ts.Started > 0 && ts.Active == 0
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond, "task %s did not stop", name)
}

var errBoom = errors.New("boom")
