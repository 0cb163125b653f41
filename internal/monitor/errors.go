package monitor

import "errors"

// ErrUnknownUnit is returned when a command names a unit outside the registry.
var ErrUnknownUnit = errors.New("unknown unit")

// ErrorClass groups failures by how they arose.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	// ClassSetup: a connection, subscription or process could not be established.
	ClassSetup
	// ClassOperational: a working stream failed mid-flight.
	ClassOperational
	// ClassDecode: systemd reported a state outside the known table.
	ClassDecode
	// ClassCommand: systemd rejected a start/stop job.
	ClassCommand
)

func (c ErrorClass) String() string {
	switch c {
	case ClassSetup:
		return "setup"
	case ClassOperational:
		return "operational"
	case ClassDecode:
		return "decode"
	case ClassCommand:
		return "command"
	default:
		return "unknown"
	}
}

// StageError wraps err with the stage that produced it.
type StageError struct {
	Class ErrorClass
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(class ErrorClass, stage string, err error) error {
	return &StageError{Class: class, Stage: stage, Err: err}
}
