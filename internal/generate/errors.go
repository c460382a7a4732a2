package generate

import (
	"errors"
	"fmt"
)

// Error kinds a job can end with. Each JobError wraps exactly one of them.
var (
	ErrNoModelSelected = errors.New("no model selected")
	ErrModelNotFound   = errors.New("model not found")
	ErrLaunch          = errors.New("generator launch failed")
	ErrProcessFailed   = errors.New("generator process failed")
	ErrNoOutput        = errors.New("no output files")
	ErrCommit          = errors.New("catalog commit failed")
)

// JobError is a stage-aware job failure. Message is safe to show clients;
// Err keeps the underlying cause for logs.
type JobError struct {
	Stage   string `json:"stage"`
	Kind    error  `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error formats job failures for logs.
func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is / errors.As.
func (e *JobError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ClientMessage returns the text sent in a job's terminal error event.
func ClientMessage(err error) string {
	var jobErr *JobError
	if errors.As(err, &jobErr) && jobErr.Message != "" {
		return jobErr.Message
	}
	return "Error: " + err.Error()
}
