package process

import "fmt"

// Status is the terminal outcome of a pipeline step. Expected, recoverable
// conditions (no new archive, first run, replayed trigger) are statuses, not
// errors, so callers can branch without unwrapping.
type Status int

const (
	StatusContinue Status = iota
	StatusAborted
	StatusDelayed
	StatusNoArchive
	StatusExtractNotNewer
	StatusNoExtract
	StatusNoDiff
	StatusLoadFailed
	StatusSerializeFailed
	StatusExtractTriggerFailed
)

func (s Status) Message() string {
	switch s {
	case StatusContinue:
		return "step ok"
	case StatusAborted:
		return "conflicting stage, step aborted"
	case StatusDelayed:
		return "toggle running, pipeline delayed"
	case StatusNoArchive:
		return "no new archive found"
	case StatusExtractNotNewer:
		return "unzipped extract is not newer than the existing one"
	case StatusNoExtract:
		return "no extract file found"
	case StatusNoDiff:
		return "diff has not been computed yet"
	case StatusLoadFailed:
		return "error while reading extract"
	case StatusSerializeFailed:
		return "error while serializing snapshot"
	case StatusExtractTriggerFailed:
		return "error while triggering downstream extract generation"
	default:
		return "unknown status"
	}
}

// ConflictError reports a stage transition attempted while the orchestrator
// was in an incompatible stage. It never corrupts orchestrator state and is
// never retried automatically.
type ConflictError struct {
	Op    string
	Stage Stage
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot %s while stage is %q", e.Op, e.Stage)
}
