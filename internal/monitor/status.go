package monitor

import (
	"context"
	"errors"
	"io"
)

// watchStatus forwards every ActiveState change of one unit as StateChanged.
// An unknown state token ends the watcher: it means the contract with
// systemd no longer holds.
func (m *Monitor) watchStatus(ctx context.Context, id UnitID, out *emitter) error {
	if err := out.logf("connecting"); err != nil {
		return err
	}

	conn, err := m.deps.Status.Connect(ctx)
	if err != nil {
		return stageErr(ClassSetup, "failed to connect", err)
	}
	defer func() { _ = conn.Close() }()

	path, err := conn.LoadUnit(ctx, m.deps.ServiceName(id))
	if err != nil {
		return stageErr(ClassSetup, "failed to resolve unit", err)
	}
	stream, err := conn.Subscribe(ctx, path)
	if err != nil {
		return stageErr(ClassSetup, "failed to attach", err)
	}
	defer func() { _ = stream.Close() }()

	if err := out.logf("monitoring"); err != nil {
		return err
	}

	for {
		token, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return stageErr(ClassOperational, "failed to read state", err)
		}
		state, err := DecodeState(token)
		if err != nil {
			return err
		}
		if err := out.send(StateChanged{State: state}); err != nil {
			return err
		}
	}
}
