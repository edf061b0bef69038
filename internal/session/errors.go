package session

import "fmt"

// Stage names used in PreconditionError.
const (
	StageLoad        = "load"
	StageCalibration = "calibration"
	StageReference   = "reference"
	StageFrame       = "frame"
	StageRegion      = "region"
)

// PreconditionError reports that a stage cannot run against the session in
// its current state. It aborts that stage for the session and nothing more.
type PreconditionError struct {
	Stage  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s precondition failed: %s", e.Stage, e.Reason)
}

// Preconditionf builds a PreconditionError for stage.
func Preconditionf(stage, format string, args ...interface{}) error {
	return &PreconditionError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}
