//go:build linux

package systemd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/godbus/dbus/v5"

	"ctrdash/internal/monitor"
)

// LifecycleSource opens one private bus connection per status watcher, so a
// broken connection only takes down the watcher that owns it.
type LifecycleSource struct {
	Bus Bus
}

func (s LifecycleSource) Connect(ctx context.Context) (monitor.LifecycleConn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch s.Bus {
	case BusUser:
		conn, err = dbus.ConnectSessionBus(dbus.WithContext(ctx))
	default:
		conn, err = dbus.ConnectSystemBus(dbus.WithContext(ctx))
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s bus: %w", s.bus(), err)
	}
	return &lifecycleConn{conn: conn}, nil
}

func (s LifecycleSource) bus() Bus {
	if s.Bus == "" {
		return BusSystem
	}
	return s.Bus
}

type lifecycleConn struct {
	conn *dbus.Conn
}

// LoadUnit asks the manager for the unit object, loading it if needed.
func (c *lifecycleConn) LoadUnit(ctx context.Context, service string) (monitor.UnitPath, error) {
	var path dbus.ObjectPath
	err := c.conn.Object(busName, managerPath).
		CallWithContext(ctx, managerIface+".LoadUnit", 0, service).
		Store(&path)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", service, err)
	}
	return monitor.UnitPath(path), nil
}

// Subscribe watches PropertiesChanged on the unit object. The current
// ActiveState is queued first and supersedes any change signalled while it
// was being read.
func (c *lifecycleConn) Subscribe(ctx context.Context, path monitor.UnitPath) (monitor.StateStream, error) {
	p := dbus.ObjectPath(path)
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(p),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := c.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return nil, fmt.Errorf("add match: %w", err)
	}
	ch := make(chan *dbus.Signal, 64)
	c.conn.Signal(ch)

	s := &stateStream{conn: c.conn, obj: c.conn.Object(busName, p), path: p, match: match, signals: ch}
	cur, err := s.read(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	// Signals queued so far were sent before the Get reply and carry older
	// values than cur.
	discardQueued(ch)
	s.pending = append(s.pending, cur)
	return s, nil
}

// discardQueued empties ch without blocking and returns how many signals it
// dropped. A closed channel is left for Recv to report.
func discardQueued(ch chan *dbus.Signal) int {
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (c *lifecycleConn) Close() error { return c.conn.Close() }

type stateStream struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	path    dbus.ObjectPath
	match   []dbus.MatchOption
	signals chan *dbus.Signal

	pending []string
	last    string

	closeOnce sync.Once
}

// Recv returns the next distinct ActiveState token. io.EOF means the bus
// connection went away.
func (s *stateStream) Recv(ctx context.Context) (string, error) {
	for {
		if len(s.pending) > 0 {
			tok := s.pending[0]
			s.pending = s.pending[1:]
			if tok == s.last {
				continue
			}
			s.last = tok
			return tok, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case sig, ok := <-s.signals:
			if !ok {
				return "", io.EOF
			}
			tok, found, err := s.fromSignal(ctx, sig)
			if err != nil {
				return "", err
			}
			if found {
				s.pending = append(s.pending, tok)
			}
		}
	}
}

// fromSignal extracts ActiveState from a PropertiesChanged signal, re-reading
// the property when it was only invalidated.
func (s *stateStream) fromSignal(ctx context.Context, sig *dbus.Signal) (string, bool, error) {
	if sig == nil || sig.Path != s.path || sig.Name != propsChanged || len(sig.Body) < 3 {
		return "", false, nil
	}
	if iface, _ := sig.Body[0].(string); iface != unitIface {
		return "", false, nil
	}
	if changed, ok := sig.Body[1].(map[string]dbus.Variant); ok {
		if v, ok := changed[activeStateProp]; ok {
			tok, ok := v.Value().(string)
			if !ok {
				return "", false, fmt.Errorf("%s has type %s", activeStateProp, v.Signature())
			}
			return tok, true, nil
		}
	}
	if invalidated, ok := sig.Body[2].([]string); ok {
		for _, name := range invalidated {
			if name == activeStateProp {
				tok, err := s.read(ctx)
				return tok, err == nil, err
			}
		}
	}
	return "", false, nil
}

func (s *stateStream) read(ctx context.Context) (string, error) {
	var v dbus.Variant
	err := s.obj.CallWithContext(ctx, propsIface+".Get", 0, unitIface, activeStateProp).Store(&v)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", activeStateProp, err)
	}
	tok, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("%s has type %s", activeStateProp, v.Signature())
	}
	return tok, nil
}

func (s *stateStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.conn.RemoveSignal(s.signals)
		err = s.conn.RemoveMatchSignal(s.match...)
	})
	return err
}
