package update

import "fmt"

// Status is the terminal result of one update run.
type Status int

const (
	// NoProvider means no provider is registered under the requested project name.
	NoProvider Status = iota
	// UpToDate means the stored change token matches the provider's current one.
	UpToDate
	// OutOfDate means an update is available but the run was check-only.
	OutOfDate
	// FileCreateFailed means the missing target file could not be created.
	FileCreateFailed
	// Success means the artifact was downloaded and the target replaced.
	Success
	// Failed means the artifact stream was unavailable or could not be written.
	Failed
	// UnknownError means an unexpected failure was captured; see Outcome.Err.
	UnknownError
)

// String returns the status name used in logs and CLI output.
func (s Status) String() string {
	switch s {
	case NoProvider:
		return "NoProvider"
	case UpToDate:
		return "UpToDate"
	case OutOfDate:
		return "OutOfDate"
	case FileCreateFailed:
		return "FileCreateFailed"
	case Success:
		return "Success"
	case Failed:
		return "Failed"
	case UnknownError:
		return "UnknownError"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is exactly one terminal result of a run.
type Outcome struct {
	// Status is the terminal status.
	Status Status
	// Err is the captured failure, set for Failed, FileCreateFailed and UnknownError.
	Err error
}

// NewOutcome returns an outcome without a captured failure.
func NewOutcome(status Status) Outcome {
	return Outcome{Status: status}
}

// Failure returns an outcome with the captured failure attached.
func Failure(status Status, err error) Outcome {
	return Outcome{Status: status, Err: err}
}

// IsError reports whether the outcome means the target could not be brought up to date.
func (o Outcome) IsError() bool {
	switch o.Status {
	case UpToDate, OutOfDate, Success:
		return false
	default:
		return true
	}
}

// String renders the status with the captured failure, if any.
func (o Outcome) String() string {
	if o.Err == nil {
		return o.Status.String()
	}

	return fmt.Sprintf("%s: %v", o.Status, o.Err)
}
