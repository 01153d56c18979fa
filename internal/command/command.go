// Package command runs the external programs behind the exec backends.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Command is a parsed argv with an optional per-run timeout.
type Command struct {
	args    []string
	timeout time.Duration
}

// Parse splits line using shell quoting rules.
func Parse(line string, timeout time.Duration) (*Command, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("command is empty")
	}
	return &Command{args: args, timeout: timeout}, nil
}

// Name is the program being run.
func (c *Command) Name() string { return c.args[0] }

// Run executes the command with extra arguments appended, feeding stdin and
// returning stdout. Stderr is folded into the error on failure.
func (c *Command) Run(ctx context.Context, stdin io.Reader, extra ...string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.args[1:]...), extra...)
	cmd := exec.CommandContext(ctx, c.args[0], args...)
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", c.args[0], ctxErr)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", c.args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
