// Package journal follows a unit's journal through a journalctl child process.
package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "ctrdash/pkg/logx"
)

// DefaultCommand is looked up in PATH.
const DefaultCommand = "journalctl"

// Follower implements monitor.LogFollower. The zero value follows from now
// using journalctl from PATH.
type Follower struct {
	// Command overrides the journalctl binary.
	Command string
	// Lines of history to print before following. 0 follows from now.
	Lines int
	// ExtraArgs are appended after the unit selector.
	ExtraArgs []string

	Logger logx.Logger
}

// Args returns the journalctl argument list for service.
func (f *Follower) Args(service string) []string {
	lines := max(f.Lines, 0)
	args := []string{"--no-hostname", "--follow", "--lines=" + strconv.Itoa(lines), "--unit", service}
	return append(args, f.ExtraArgs...)
}

func (f *Follower) command() string {
	if s := strings.TrimSpace(f.Command); s != "" {
		return s
	}
	return DefaultCommand
}

// Follow starts the child and returns its stdout. Close kills and reaps the
// child; so does cancelling ctx. The stream ends with io.EOF however the
// child exits; a non-zero status is logged with the stderr tail.
func (f *Follower) Follow(ctx context.Context, service string) (io.ReadCloser, error) {
	name := f.command()
	cctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(cctx, name, f.Args(service)...)
	cmd.WaitDelay = time.Second
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	stderr := &tailBuffer{max: 512}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	log := f.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Debug("journal follower started",
		logx.String("service", service),
		logx.Int("pid", cmd.Process.Pid),
	)

	return &child{
		name:   name,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		ctx:    cctx,
		cancel: cancel,
		log:    log.With(logx.String("service", service)),
	}, nil
}

type child struct {
	name   string
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	waitOnce sync.Once
}

func (c *child) Read(p []byte) (int, error) {
	n, err := c.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		c.wait()
	}
	return n, err
}

// Close is idempotent.
func (c *child) Close() error {
	c.cancel()
	c.wait()
	return nil
}

// wait reaps the child once. Exits caused by our own cancellation are not
// logged.
func (c *child) wait() {
	c.waitOnce.Do(func() {
		err := c.cmd.Wait()
		if err == nil || c.ctx.Err() != nil {
			return
		}
		c.log.Warn("journal follower exited",
			logx.String("command", c.name),
			logx.Err(err),
			logx.String("stderr", c.stderr.String()),
		)
	})
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
