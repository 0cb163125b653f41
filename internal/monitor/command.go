package monitor

import "context"

// execute issues one directive and reports exactly one outcome: the final
// diagnostic on success, or an error that spawn turns into a Failure.
func (m *Monitor) execute(ctx context.Context, id UnitID, d Directive, out *emitter) error {
	if err := out.logf("issuing %s command", d); err != nil {
		return err
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return stageErr(ClassCommand, "failed to schedule "+d.String(), err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.deps.CommandTimeout)
	defer cancel()

	service := m.deps.ServiceName(id)
	var err error
	switch d {
	case DirectiveStop:
		err = m.deps.Control.StopUnit(callCtx, service, JobMode)
	default:
		err = m.deps.Control.StartUnit(callCtx, service, JobMode)
	}
	if err != nil {
		return stageErr(ClassCommand, "failed to issue "+d.String(), err)
	}

	return out.logf("%s", d.Progressive())
}
