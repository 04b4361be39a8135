// Package link implements the line-oriented request/response exchange with
// the polargraph firmware.
//
// Commands and replies are ASCII lines terminated by a newline. Fields are
// separated by colons and the first field is a one-letter tag.
package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProtocolVersion is the firmware identity expected in reply to Q.
const ProtocolVersion = "acam3"

var (
	// ErrNoResponse is returned when no complete line arrives before the timeout.
	ErrNoResponse = errors.New("no response")

	// ErrMalformed is returned when a reply does not have the tag:field... shape.
	ErrMalformed = errors.New("malformed response")

	// ErrClosed is returned for requests on a closed link.
	ErrClosed = errors.New("link closed")
)

// Port is the byte stream underneath a Link. Reads are expected to return
// after a short read timeout, with (0, nil) or (0, io.EOF) if nothing arrived.
type Port interface {
	io.ReadWriteCloser
}

// inputResetter is implemented by ports that can drop unread input.
type inputResetter interface {
	ResetInputBuffer() error
}

// Link exchanges single-line requests and replies over a Port.
// It is safe for concurrent use; requests are serialized.
type Link struct {
	port Port
	cfg  Config
	log  *zap.Logger

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// New wraps an already-open port.
func New(port Port, cfg Config, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{
		port: port,
		cfg:  cfg.withDefaults(),
		log:  log.Named("link"),
	}
}

// Open opens the serial port described by cfg.
func Open(cfg Config, log *zap.Logger) (*Link, error) {
	cfg = cfg.withDefaults()
	port, err := openPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return New(port, cfg, log), nil
}

// Close closes the underlying port.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

// Request sends command and waits for one line of response.
// The returned string has the line terminator removed. Request does not retry.
func (l *Link) Request(ctx context.Context, command string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return "", ErrClosed
	}

	// Drop anything left over from an earlier request that timed out.
	l.buf = l.buf[:0]
	if r, ok := l.port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			l.log.Debug("reset input buffer", zap.Error(err))
		}
	}

	l.log.Debug("send", zap.String("command", command))
	if _, err := l.port.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("write %q: %w", command, err)
	}

	line, err := l.readLine(ctx)
	if err != nil {
		return "", fmt.Errorf("request %q: %w", command, err)
	}
	l.log.Debug("receive", zap.String("command", command), zap.String("reply", line))

	if _, err := ParseReply(line); err != nil {
		return line, fmt.Errorf("request %q: %w", command, err)
	}
	return line, nil
}

// readLine reads until a newline, the configured timeout or ctx is done.
func (l *Link) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(l.cfg.Timeout)
	chunk := make([]byte, 64)

	for {
		if i := bytes.IndexByte(l.buf, '\n'); i >= 0 {
			line := string(bytes.TrimRight(l.buf[:i], "\r"))
			l.buf = append(l.buf[:0], l.buf[i+1:]...)
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %s", ErrNoResponse, l.cfg.Timeout)
		}

		n, err := l.port.Read(chunk)
		l.buf = append(l.buf, chunk[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read: %w", err)
		}
	}
}

// Identify performs the firmware handshake. The microcontroller resets when
// the port opens, so Identify first waits for the settle delay.
// A version mismatch is reported as false with a nil error.
func (l *Link) Identify(ctx context.Context) (bool, error) {
	l.log.Info("identifying", zap.String("device", l.cfg.Device))

	if l.cfg.SettleDelay > 0 {
		timer := time.NewTimer(l.cfg.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	res, err := l.Request(ctx, "Q")
	if err != nil {
		return false, fmt.Errorf("identify: %w", err)
	}

	ok := strings.Contains(res, ProtocolVersion)
	l.log.Info("firmware identity",
		zap.String("reply", res),
		zap.String("expected", ProtocolVersion),
		zap.Bool("match", ok))
	return ok, nil
}

// Reply is a parsed response line.
type Reply struct {
	Tag    string
	Fields []string
}

// ParseReply splits a response line into its tag and fields.
func ParseReply(line string) (Reply, error) {
	if line == "" {
		return Reply{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	parts := strings.Split(line, ":")
	if !isTag(parts[0]) {
		return Reply{}, fmt.Errorf("%w: bad tag in %q", ErrMalformed, line)
	}
	for _, f := range parts[1:] {
		if f == "" {
			return Reply{}, fmt.Errorf("%w: empty field in %q", ErrMalformed, line)
		}
	}
	return Reply{Tag: parts[0], Fields: parts[1:]}, nil
}

func isTag(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		letter := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
		digit := c >= '0' && c <= '9'
		if i == 0 && !letter {
			return false
		}
		if !letter && !digit && c != '.' && c != '-' && c != '_' {
			return false
		}
	}
	return true
}
