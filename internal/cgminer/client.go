// Package cgminer talks to the JSON status API that Antminer firmware exposes on TCP port 4028.
package cgminer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultPort of the cgminer API
	DefaultPort = 4028

	// maxReplySize bounds a single reply; a full "stats" reply is a few KiB
	maxReplySize = 1 << 20
)

// Command is a cgminer API command
type Command string

const (
	CommandSummary Command = "summary"
	CommandStats   Command = "stats"
)

var (
	// ErrConnect covers every dial, write and read failure.
	ErrConnect = errors.New("cgminer: connection failed")
	// ErrMalformed is returned when the reply cannot be decoded.
	ErrMalformed = errors.New("cgminer: malformed reply")
	// ErrDeviceStatus is returned when the device answers with an error status.
	ErrDeviceStatus = errors.New("cgminer: device reported an error")
)

type request struct {
	Command Command `json:"command"`
}

// Status is the STATUS block every reply starts with
type Status struct {
	Status      string `json:"STATUS"`
	When        int64  `json:"When"`
	Code        int    `json:"Code"`
	Msg         string `json:"Msg"`
	Description string `json:"Description"`
}

type envelope struct {
	Status []Status `json:"STATUS"`
}

// Reply is a decoded cgminer reply. Document is the generic JSON tree
// (maps, slices, float64, string) used for path lookups.
type Reply struct {
	Command  Command
	Status   Status
	Document interface{}
}

// Client queries a single device. Each Query opens its own connection.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
	logger  *slog.Logger
}

// NewClient creates a client for host:port. timeout bounds the dial and the
// whole exchange that follows it.
func NewClient(host string, port int, timeout time.Duration) *Client {
	return &Client{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
		logger:  slog.Default().With("component", "cgminer_client"),
	}
}

// Addr returns the host:port the client connects to
func (c *Client) Addr() string {
	return c.addr
}

// Query sends one command and returns the decoded reply
func (c *Client) Query(ctx context.Context, cmd Command) (*Reply, error) {
	raw, err := c.exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return Decode(cmd, raw)
}

func (c *Client) exchange(ctx context.Context, cmd Command) ([]byte, error) {
	b, err := json.Marshal(&request{Command: cmd})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", cmd, err)
	}

	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrConnect, c.addr, err)
	}
	defer conn.Close()

	deadline := start.Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: failed to set deadline on %s: %w", ErrConnect, c.addr, err)
	}

	if _, err := conn.Write(b); err != nil {
		return nil, fmt.Errorf("%w: failed to write to %s: %w", ErrConnect, c.addr, err)
	}

	// The device closes the connection once the reply is written.
	reply, err := io.ReadAll(io.LimitReader(conn, maxReplySize))
	if err != nil {
		if len(reply) == 0 {
			return nil, fmt.Errorf("%w: failed to read reply from %s: %w", ErrConnect, c.addr, err)
		}
		c.logger.Debug("Partial reply",
			"addr", c.addr,
			"command", cmd,
			"bytes", len(reply),
			"error", err,
		)
	}

	c.logger.Debug("Reply received",
		"addr", c.addr,
		"command", cmd,
		"bytes", len(reply),
		"elapsed", time.Since(start),
	)
	return reply, nil
}

// Decode repairs and decodes a raw reply. Antminer firmware terminates replies
// with a NUL byte and emits the stats array as `}{`-joined objects.
func Decode(cmd Command, raw []byte) (*Reply, error) {
	data := bytes.TrimRight(raw, "\x00 \t\r\n")
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty %s reply", ErrMalformed, cmd)
	}
	data = bytes.ReplaceAll(data, []byte("}{"), []byte("},{"))

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s reply: %w", ErrMalformed, cmd, err)
	}
	if len(env.Status) == 0 {
		return nil, fmt.Errorf("%w: %s reply has no STATUS block", ErrMalformed, cmd)
	}

	status := env.Status[0]
	switch status.Status {
	case "S", "I", "W":
	case "E", "F":
		return nil, fmt.Errorf("%w: %s (code %d): %s", ErrDeviceStatus, cmd, status.Code, status.Msg)
	default:
		return nil, fmt.Errorf("%w: unknown status %q in %s reply", ErrMalformed, status.Status, cmd)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s reply: %w", ErrMalformed, cmd, err)
	}

	return &Reply{Command: cmd, Status: status, Document: doc}, nil
}
