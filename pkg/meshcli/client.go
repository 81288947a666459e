// Package meshcli abstracts the mesh device as an external command that
// produces text or YAML. The radio protocol itself is opaque; everything
// this package knows is "run the tool, capture its output".
package meshcli

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// DeviceSource is the device-facing channel consumed by the sync engine.
type DeviceSource interface {
	// FetchReport returns the raw human-readable info report.
	FetchReport(ctx context.Context) (string, error)

	// FetchConfigExport returns the raw YAML configuration export.
	FetchConfigExport(ctx context.Context) ([]byte, error)
}

// CLI runs the meshtastic command line tool as a subprocess.
type CLI struct {
	command string
	args    []string // connection args, e.g. --host or --port
	timeout time.Duration
}

// Option configures a CLI.
type Option func(*CLI)

// WithCommand overrides the executable name or path.
func WithCommand(command string) Option {
	return func(c *CLI) {
		if command != "" {
			c.command = command
		}
	}
}

// WithConnectionArgs appends arguments passed on every invocation, such as
// --host 192.168.1.5 or --port /dev/ttyUSB0.
func WithConnectionArgs(args ...string) Option {
	return func(c *CLI) {
		c.args = append(c.args, args...)
	}
}

// WithTimeout bounds each invocation. The timeout guards the external fetch
// only; parsing and catalog I/O are not covered by it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewCLI creates a device source backed by the meshtastic CLI.
func NewCLI(opts ...Option) *CLI {
	c := &CLI{
		command: "meshtastic",
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchReport runs `meshtastic --info` and returns its stdout.
func (c *CLI) FetchReport(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "report", "--info")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FetchConfigExport runs `meshtastic --export-config` and returns its
// stdout, a single YAML document.
func (c *CLI) FetchConfigExport(ctx context.Context) ([]byte, error) {
	return c.run(ctx, "config export", "--export-config")
}

func (c *CLI) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	full := append(append([]string{}, args...), c.args...)
	cmd := exec.CommandContext(ctx, c.command, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ErrCommandTimeout
		}
		return nil, &CommandError{
			Op:     op,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

var _ DeviceSource = (*CLI)(nil)
