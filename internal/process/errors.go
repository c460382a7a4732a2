package process

import (
	"errors"
	"fmt"
)

// LaunchError reports that an executable could not be started.
type LaunchError struct {
	Path string
	Err  error
}

// Error formats launch failures for logs.
func (e *LaunchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *LaunchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExitError reports a process that ran but exited unsuccessfully.
type ExitError struct {
	Path string
	Code int
	Err  error
}

// Error formats exit failures for logs.
func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExitCode extracts the exit code from err, or -1 when err carries none.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
