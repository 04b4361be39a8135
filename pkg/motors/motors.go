// Package motors provides the typed command set of the two-motor controller.
//
// Every setter sends a command and requires the echoed tag before treating
// the change as applied. Failures are logged and returned, but never leave a
// getter without a value: on error, getters return the zero value of their
// result (indexes (0, 0), speeds (0, 0), not running).
package motors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/gwillem/polargraph/pkg/kinematics"
	"github.com/gwillem/polargraph/pkg/link"
)

// ErrNotAcknowledged is returned when the reply tag does not echo the command.
var ErrNotAcknowledged = errors.New("command not acknowledged")

// Requester sends one command line and returns one reply line.
// *link.Link implements it.
type Requester interface {
	Request(ctx context.Context, command string) (string, error)
}

// Pair drives two stepper motors through a Requester.
type Pair struct {
	link Requester
	log  *zap.Logger

	mu      sync.Mutex
	accel   kinematics.Speeds
	pending *kinematics.Indexes
}

// New creates a Pair on top of an open link.
func New(l Requester, log *zap.Logger) *Pair {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pair{
		link: l,
		log:  log.Named("motors"),
	}
}

// exchange sends command and checks that the reply carries tag and n fields.
func (p *Pair) exchange(ctx context.Context, command, tag string, n int) ([]string, error) {
	res, err := p.link.Request(ctx, command)
	if err != nil {
		return nil, err
	}
	reply, err := link.ParseReply(res)
	if err != nil {
		return nil, err
	}
	if reply.Tag != tag {
		return nil, fmt.Errorf("%w: %q answered %q", ErrNotAcknowledged, command, res)
	}
	if len(reply.Fields) != n {
		return nil, fmt.Errorf("%w: %q answered %q, want %d fields", link.ErrMalformed, command, res, n)
	}
	return reply.Fields, nil
}

// command sends a setter and logs a failure at error level.
func (p *Pair) command(ctx context.Context, command, tag string) error {
	if _, err := p.exchange(ctx, command, tag, 0); err != nil {
		p.log.Error("command failed", zap.String("command", command), zap.Error(err))
		return err
	}
	return nil
}

// Goto sets target indexes. The motors move from their present indexes
// to the new values. If the command is not acknowledged the target stays
// pending until the next successful Goto.
func (p *Pair) Goto(ctx context.Context, n kinematics.Indexes) error {
	p.log.Debug("goto", zap.Int("n1", n.N1), zap.Int("n2", n.N2))

	err := p.command(ctx, fmt.Sprintf("G:%d:%d", n.N1, n.N2), "G")

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.pending = &n
		return fmt.Errorf("goto: %w", err)
	}
	p.pending = nil
	return nil
}

// Pending returns a goto target the controller did not acknowledge.
func (p *Pair) Pending() (kinematics.Indexes, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return kinematics.Indexes{}, false
	}
	return *p.pending, true
}

// Stop halts both motors.
func (p *Pair) Stop(ctx context.Context) error {
	if err := p.command(ctx, "S", "S"); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Release stops the motors and turns off current to the windings.
func (p *Pair) Release(ctx context.Context) error {
	if err := p.command(ctx, "X", "X"); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

// Running reports whether the motors are moving. It is always a fresh read.
func (p *Pair) Running(ctx context.Context) (bool, error) {
	fields, err := p.exchange(ctx, "R", "R", 1)
	if err == nil {
		switch fields[0] {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		err = fmt.Errorf("%w: running state %q", link.ErrMalformed, fields[0])
	}
	p.log.Warn("could not read running status", zap.Error(err))
	return false, fmt.Errorf("running: %w", err)
}

// Indexes returns the current step indexes.
func (p *Pair) Indexes(ctx context.Context) (kinematics.Indexes, error) {
	fields, err := p.exchange(ctx, "P", "P", 2)
	if err == nil {
		var n kinematics.Indexes
		if n, err = parseIndexes(fields); err == nil {
			return n, nil
		}
	}
	p.log.Warn("did not read position", zap.Error(err))
	return kinematics.Indexes{}, fmt.Errorf("indexes: %w", err)
}

// SetIndexes redefines the current step indexes without moving.
func (p *Pair) SetIndexes(ctx context.Context, n kinematics.Indexes) error {
	if err := p.command(ctx, fmt.Sprintf("P:%d:%d", n.N1, n.N2), "P"); err != nil {
		return fmt.Errorf("set indexes: %w", err)
	}
	return nil
}

// Speeds returns the maximum motor speeds in steps/second.
func (p *Pair) Speeds(ctx context.Context) (kinematics.Speeds, error) {
	fields, err := p.exchange(ctx, "V", "V", 2)
	if err == nil {
		var v kinematics.Speeds
		if v.V1, v.V2, err = parsePair(fields); err == nil {
			return v, nil
		}
	}
	p.log.Warn("could not read maximum speed", zap.Error(err))
	return kinematics.Speeds{}, fmt.Errorf("speeds: %w", err)
}

// SetSpeeds sets the maximum motor speeds in steps/second.
func (p *Pair) SetSpeeds(ctx context.Context, v kinematics.Speeds) error {
	p.log.Debug("motor speeds", zap.Float64("v1", v.V1), zap.Float64("v2", v.V2))
	command := "V:" + formatFloat(v.V1) + ":" + formatFloat(v.V2)
	if err := p.command(ctx, command, "V"); err != nil {
		return fmt.Errorf("set speeds: %w", err)
	}
	return nil
}

// SetAcceleration sets the motor accelerations in steps/second².
// The firmware cannot report acceleration, so the value is remembered
// even if the command fails.
func (p *Pair) SetAcceleration(ctx context.Context, a kinematics.Speeds) error {
	p.mu.Lock()
	p.accel = a
	p.mu.Unlock()

	command := "A:" + formatFloat(a.V1) + ":" + formatFloat(a.V2)
	if err := p.command(ctx, command, "A"); err != nil {
		return fmt.Errorf("set acceleration: %w", err)
	}
	return nil
}

// Acceleration returns the last acceleration passed to SetAcceleration.
func (p *Pair) Acceleration() kinematics.Speeds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accel
}

func parseIndexes(fields []string) (kinematics.Indexes, error) {
	n1, err := strconv.Atoi(fields[0])
	if err != nil {
		return kinematics.Indexes{}, fmt.Errorf("%w: %v", link.ErrMalformed, err)
	}
	n2, err := strconv.Atoi(fields[1])
	if err != nil {
		return kinematics.Indexes{}, fmt.Errorf("%w: %v", link.ErrMalformed, err)
	}
	return kinematics.Indexes{N1: n1, N2: n2}, nil
}

func parsePair(fields []string) (float64, float64, error) {
	a, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", link.ErrMalformed, err)
	}
	b, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", link.ErrMalformed, err)
	}
	return a, b, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
