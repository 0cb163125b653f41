package monitor

import (
	"context"
	"io"
)

// UnitPath is the bus object path of a loaded unit.
type UnitPath string

// LifecycleSource opens connections for status watchers. Each watcher gets
// its own connection.
type LifecycleSource interface {
	Connect(ctx context.Context) (LifecycleConn, error)
}

type LifecycleConn interface {
	LoadUnit(ctx context.Context, service string) (UnitPath, error)
	Subscribe(ctx context.Context, path UnitPath) (StateStream, error)
	Close() error
}

// StateStream yields raw ActiveState tokens. Recv returns io.EOF when the
// source closed.
type StateStream interface {
	Recv(ctx context.Context) (string, error)
	Close() error
}

// LogFollower starts following a unit's journal from now on. The returned
// stream is line-delimited; closing it must terminate and reap whatever
// produces it. Cancelling ctx must do the same.
type LogFollower interface {
	Follow(ctx context.Context, service string) (io.ReadCloser, error)
}

// UnitController issues jobs against units. mode is the systemd job mode.
type UnitController interface {
	StartUnit(ctx context.Context, service, mode string) error
	StopUnit(ctx context.Context, service, mode string) error
}
