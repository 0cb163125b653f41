package app

import (
	"context"
	"errors"

	"ctrdash/internal/eventbus"
	"ctrdash/internal/monitor"
	logx "ctrdash/pkg/logx"
)

// EventSource is the consumer side of the monitor's bus.
type EventSource interface {
	Recv(ctx context.Context) (monitor.NamedEvent, error)
}

// PrintEvents writes every event as one log entry until the bus closes or
// ctx is cancelled.
func PrintEvents(ctx context.Context, src EventSource, log logx.Logger) error {
	for {
		ev, err := src.Recv(ctx)
		if err != nil {
			if errors.Is(err, eventbus.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		printEvent(log, ev)
	}
}

func printEvent(log logx.Logger, ev monitor.NamedEvent) {
	l := log.With(logx.String("unit", string(ev.Unit)), logx.String("kind", ev.Kind.String()))
	switch p := ev.Payload.(type) {
	case monitor.DiagnosticLog:
		l.Info(p.Text)
	case monitor.UnitLogLine:
		l.Info(p.Text, logx.Bool("line", true))
	case monitor.StateChanged:
		l.Info("state changed", logx.String("state", p.State.String()))
	case monitor.Failure:
		l.Error("task failed", logx.Err(p.Err), logx.String("class", p.Class().String()))
	}
}
