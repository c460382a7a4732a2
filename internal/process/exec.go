package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures one completed command invocation.
type Result struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Executor runs short commands to completion and captures their output.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecExecutor executes commands via os/exec.
type ExecExecutor struct{}

// NewExecExecutor returns the production executor.
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{}
}

// Run executes one command and captures stdout/stderr and exit code.
func (e *ExecExecutor) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := Result{
		Command: name,
		Args:    args,
	}

	if err := cmd.Start(); err != nil {
		result.ExitCode = -1
		return result, &LaunchError{Path: name, Err: err}
	}

	err := cmd.Wait()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, &ExitError{Path: name, Code: result.ExitCode, Err: err}
	}

	return result, nil
}
