// Package ping checks that a host answers ICMP echo before it is queried.
package ping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"time"
)

// ErrUnreachable is returned when the host does not answer the echo request.
var ErrUnreachable = errors.New("host did not answer ping")

// DefaultBinary is the system ping used when none is configured
const DefaultBinary = "ping"

// Pinger runs the system ping binary, one echo request per call
type Pinger struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a pinger that waits at most timeout for the reply
func New(timeout time.Duration) *Pinger {
	return NewWithBinary(DefaultBinary, timeout)
}

// NewWithBinary creates a pinger running the given executable
func NewWithBinary(binary string, timeout time.Duration) *Pinger {
	return &Pinger{
		binary:  binary,
		timeout: timeout,
		logger:  slog.Default().With("component", "pinger"),
	}
}

// Ping sends a single echo request to host
func (p *Pinger) Ping(ctx context.Context, host string) error {
	// ping's -W takes whole seconds
	wait := int(math.Ceil(p.timeout.Seconds()))
	if wait < 1 {
		wait = 1
	}

	// Leave the binary a second of slack past its own -W deadline
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(wait+1)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binary, "-c", "1", "-W", strconv.Itoa(wait), host)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.logger.Debug("Pinging host",
		"host", host,
		"wait_seconds", wait,
	)

	err := cmd.Run()

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out after %ds", ErrUnreachable, host, wait+1)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Debug("Ping failed",
				"host", host,
				"exit_code", exitErr.ExitCode(),
				"stderr", stderr.String(),
			)
			return fmt.Errorf("%w: %s", ErrUnreachable, host)
		}
		return fmt.Errorf("failed to run %s: %w", p.binary, err)
	}

	return nil
}
