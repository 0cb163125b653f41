//go:build !linux

package systemd

import (
	"context"

	"ctrdash/internal/monitor"
)

type LifecycleSource struct {
	Bus Bus
}

func (LifecycleSource) Connect(context.Context) (monitor.LifecycleConn, error) {
	return nil, ErrUnsupported
}

type Controller struct {
	Bus Bus
}

func (*Controller) StartUnit(context.Context, string, string) error { return ErrUnsupported }
func (*Controller) StopUnit(context.Context, string, string) error  { return ErrUnsupported }
func (*Controller) Close() error                                    { return nil }
