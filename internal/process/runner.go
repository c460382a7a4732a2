// Package process launches external executables and relays their output.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// maxLineSize bounds one output line; longer lines are split into chunks of
// at most this size.
const maxLineSize = 1 << 20

// Command describes one external program invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Runner starts long-running commands with streamed output.
type Runner interface {
	Start(ctx context.Context, cmd Command) (*Process, error)
}

// Process is a started command whose merged stdout/stderr is read as lines.
type Process struct {
	lines chan string
	done  chan struct{}

	mu  sync.Mutex
	err error
}

// Lines yields output lines in emission order and closes after the last one.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Wait blocks until output is drained and the process exited.
// It returns *ExitError for a non-zero exit status.
func (p *Process) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// NewExecRunner returns the production runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Start launches cmd with stdout and stderr merged into one line stream.
// Cancelling ctx kills the process; lines emitted afterwards are discarded.
func (r *ExecRunner) Start(ctx context.Context, c Command) (*Process, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	setProcessGroup(cmd)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Path: c.Path, Err: err}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: c.Path, Err: err}
	}

	p := &Process{
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(p.done)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		scanner.Split(scanLines)
		for scanner.Scan() {
			select {
			case p.lines <- scanner.Text():
			case <-ctx.Done():
			}
		}
		close(p.lines)

		// the child must never block on a full pipe, or Wait never returns
		scanErr := scanner.Err()
		_, _ = io.Copy(io.Discard, stdout)

		waitErr := cmd.Wait()
		p.mu.Lock()
		p.err = exitError(c.Path, waitErr)
		if p.err == nil && scanErr != nil {
			p.err = fmt.Errorf("read %s output: %w", c.Path, scanErr)
		}
		p.mu.Unlock()
	}()

	return p, nil
}

// exitError converts an exec wait result into the package error types.
func exitError(path string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Path: path, Code: exitErr.ExitCode(), Err: err}
	}
	return &ExitError{Path: path, Code: -1, Err: err}
}

// scanLines splits on \n, \r\n and bare \r so progress bars that redraw
// with carriage returns still produce one line per update.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF && len(data) < maxLineSize {
				// need one more byte to tell \r from \r\n
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF || len(data) >= maxLineSize {
		return len(data), data, nil
	}
	return 0, nil, nil
}
