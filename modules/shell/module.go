// Package shell registers the "shell" callable, which runs a command on the
// execute node.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/specialistvlad/condordag/callable"
	"github.com/specialistvlad/condordag/internal/ctxlog"
)

// ErrEmptyCommand is returned when no command is given.
var ErrEmptyCommand = errors.New("command cannot be empty")

// Module implements the callable.Module interface for this package.
type Module struct{}

// Run executes name with args and returns its standard output with
// trailing newlines removed. A non-zero exit status is an error carrying
// the command's standard error.
func Run(ctx context.Context, name string, args ...string) (string, error) {
	if name == "" {
		return "", ErrEmptyCommand
	}
	logger := ctxlog.FromContext(ctx).With("command", name)
	logger.Debug("Running command.", "args", args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("command %s failed: %w", name, err)
		}
		return "", fmt.Errorf("command %s failed: %w: %s", name, err, msg)
	}

	logger.Debug("Command finished.", "bytes", stdout.Len())
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// Command splits line into words using shell quoting rules and runs it
// like Run. No shell is involved: pipes and variables are not expanded.
func Command(ctx context.Context, line string) (string, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return "", fmt.Errorf("invalid command line %q: %w", line, err)
	}
	if len(words) == 0 {
		return "", ErrEmptyCommand
	}
	return Run(ctx, words[0], words[1:]...)
}

// Register registers the callables with the registry.
func (m *Module) Register(r *callable.Registry) {
	r.RegisterFunc("shell", Run)
	r.RegisterFunc("command", Command)
}
