package monitor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// watchLogs forwards each journal line of one unit as UnitLogLine, in order.
func (m *Monitor) watchLogs(ctx context.Context, id UnitID, out *emitter) error {
	if err := out.logf("requesting logs"); err != nil {
		return err
	}

	rc, err := m.deps.Logs.Follow(ctx, m.deps.ServiceName(id))
	if err != nil {
		return stageErr(ClassSetup, "failed to spawn log follower", err)
	}
	defer func() { _ = rc.Close() }()

	if err := out.logf("reading logs"); err != nil {
		return err
	}

	// bufio.Reader rather than Scanner: journal lines have no length cap.
	r := bufio.NewReader(rc)
	for {
		line, err := r.ReadString('\n')
		if line != "" && (err == nil || errors.Is(err, io.EOF)) {
			line = strings.TrimRight(line, "\r\n")
			if sendErr := out.send(UnitLogLine{Text: line}); sendErr != nil {
				return sendErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return stageErr(ClassOperational, "failed to read log line", err)
		}
	}
}
