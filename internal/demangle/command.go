// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package demangle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Command asks an external filter program such as rustfilt or c++filt.
// The symbol is written to the program's stdin; exactly one non-empty line
// of output counts as an answer.
type Command struct {
	Path   string
	Args   []string
	Policy RetryPolicy

	run func(ctx context.Context, input string) ([]byte, error)
}

func NewCommand(path string, args []string, policy RetryPolicy) *Command {
	return &Command{Path: path, Args: args, Policy: policy}
}

func (c *Command) exec(ctx context.Context, input string) ([]byte, error) {
	if c.run != nil {
		return c.run(ctx, input)
	}
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = strings.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.Path, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.Path, err)
	}
	return out, nil
}

func (c *Command) Demangle(ctx context.Context, symbol string) (string, error) {
	if symbol == "" {
		return symbol, nil
	}

	var name string
	err := c.Policy.do(ctx, c.Path, func() error {
		out, err := c.exec(ctx, symbol+"\n")
		if err != nil {
			return err
		}
		lines := strings.Split(strings.TrimRight(string(out), "\r\n"), "\n")
		if len(lines) != 1 || strings.TrimSpace(lines[0]) == "" {
			return fmt.Errorf("%s: expected one line of output, got %d", c.Path, len(lines))
		}
		name = strings.TrimSpace(lines[0])
		return nil
	})
	if err != nil {
		return symbol, err
	}
	return StripHash(name), nil
}
