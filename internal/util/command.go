package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandRunner executes a command and reports its exit code and combined
// output. An error means the command could not be run at all.
type CommandRunner func(ctx context.Context, name string, args ...string) (int, string, error)

// RunCommand is the os/exec CommandRunner
func RunCommand(ctx context.Context, name string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return 0, out.String(), nil
	}
	if ctx.Err() != nil {
		return -1, out.String(), ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), out.String(), nil
	}
	return -1, out.String(), fmt.Errorf("run %s: %w", name, err)
}

// RunOutput is a CommandRunner for tools whose stdout is machine-readable.
// Output is stdout on success and stderr when the command exits non-zero.
func RunOutput(ctx context.Context, name string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return 0, stdout.String(), nil
	}
	if ctx.Err() != nil {
		return -1, stderr.String(), ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stderr.String(), nil
	}
	return -1, stderr.String(), fmt.Errorf("run %s: %w", name, err)
}
