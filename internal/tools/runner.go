package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// maxConsoleOutput caps each captured stream so one chatty command cannot bloat a response.
const maxConsoleOutput = 64 << 10

// ConsoleResult is the captured outcome of one console command.
type ConsoleResult struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int32  `json:"exit_code"`
}

// CommandRunner executes console commands for the host adapter.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (ConsoleResult, error)
}

// ExecRunner runs console commands as local processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (ConsoleResult, error) {
	var stdout, stderr cappedBuffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := ConsoleResult{
		Command: name,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	var execErr *exec.Error
	switch {
	case errors.As(err, &exitErr):
		out.ExitCode = int32(exitErr.ExitCode())
	case errors.As(err, &execErr):
		out.ExitCode = 127
	default:
		out.ExitCode = 1
	}
	return out, err
}

type cappedBuffer struct {
	buf bytes.Buffer
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := maxConsoleOutput - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
