//go:build linux

package systemd

import (
	"context"
	"fmt"
	"sync"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
)

// Controller issues start/stop jobs. The manager connection is opened on
// first use and shared by all command tasks; a dropped connection is
// reopened on the next call.
type Controller struct {
	Bus Bus

	mu   sync.Mutex
	conn *sddbus.Conn
}

func (c *Controller) StartUnit(ctx context.Context, service, mode string) error {
	return c.job(ctx, "start", service, func(conn *sddbus.Conn, ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, service, mode, ch)
	})
}

func (c *Controller) StopUnit(ctx context.Context, service, mode string) error {
	return c.job(ctx, "stop", service, func(conn *sddbus.Conn, ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, service, mode, ch)
	})
}

// job enqueues a job and waits for its result.
func (c *Controller) job(ctx context.Context, op, service string, enqueue func(*sddbus.Conn, chan<- string) (int, error)) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	// Buffered: go-systemd blocks its job dispatcher until the result is taken.
	done := make(chan string, 1)
	if _, err := enqueue(conn, done); err != nil {
		return fmt.Errorf("%s %s: %w", op, service, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-done:
		if result != "done" {
			return &JobError{Op: op, Service: service, Result: result}
		}
		return nil
	}
}

func (c *Controller) connect(ctx context.Context) (*sddbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Connected() {
		return c.conn, nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var (
		conn *sddbus.Conn
		err  error
	)
	switch c.Bus {
	case BusUser:
		conn, err = sddbus.NewUserConnectionContext(ctx)
	default:
		conn, err = sddbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	c.conn = conn
	return conn, nil
}

// Close drops the shared connection. A later call reconnects.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}
