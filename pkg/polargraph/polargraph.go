// Package polargraph composes the motor pair with the belt kinematics.
package polargraph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gwillem/polargraph/pkg/kinematics"
	"github.com/gwillem/polargraph/pkg/link"
	"github.com/gwillem/polargraph/pkg/motors"
)

// ErrNotIdentified is returned by Open when the firmware does not report
// the expected protocol version and Config.Strict is set.
var ErrNotIdentified = errors.New("firmware not identified")

// Polargraph is a two-belt plotter. Positions are in meters from home.
//
// The geometry must not change while a move is in progress.
type Polargraph struct {
	motors *motors.Pair
	closer func() error
	log    *zap.Logger

	mu       sync.RWMutex
	geometry kinematics.Config
	speed    float64 // [mm/s]
}

// New creates a Polargraph on an existing motor pair.
func New(m *motors.Pair, geometry kinematics.Config, speed float64, log *zap.Logger) (*Polargraph, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := geometry.Validate(); err != nil {
		return nil, err
	}
	if speed <= 0 {
		return nil, fmt.Errorf("speed must be positive, got %g", speed)
	}
	return &Polargraph{
		motors:   m,
		closer:   func() error { return nil },
		log:      log.Named("polargraph"),
		geometry: geometry,
		speed:    speed,
	}, nil
}

// Open dials the port in cfg, identifies the firmware and applies the
// configured acceleration.
func Open(ctx context.Context, cfg *Config, log *zap.Logger) (*Polargraph, error) {
	l, err := link.Open(cfg.Link(), log)
	if err != nil {
		return nil, fmt.Errorf("open link: %w", err)
	}
	p, err := Attach(ctx, l, cfg, log)
	if err != nil {
		l.Close()
		return nil, err
	}
	return p, nil
}

// Attach builds a Polargraph on an open link and closes the link on Close.
func Attach(ctx context.Context, l *link.Link, cfg *Config, log *zap.Logger) (*Polargraph, error) {
	p, err := New(motors.New(l, log), cfg.Geometry, cfg.Speed, log)
	if err != nil {
		return nil, err
	}
	p.closer = l.Close

	ok, err := l.Identify(ctx)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	if !ok {
		p.log.Warn("unexpected firmware version", zap.String("expected", link.ProtocolVersion))
		if cfg.Strict {
			return nil, ErrNotIdentified
		}
	}

	if cfg.Acceleration > 0 {
		// failures are logged by the motor pair
		_ = p.SetAcceleration(ctx, cfg.Acceleration)
	}
	return p, nil
}

// Close closes the underlying link.
func (p *Polargraph) Close() error {
	return p.closer()
}

// Motors returns the underlying motor pair.
func (p *Polargraph) Motors() *motors.Pair {
	return p.motors
}

// Geometry returns the kinematic configuration.
func (p *Polargraph) Geometry() kinematics.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.geometry
}

// SetGeometry replaces the kinematic configuration.
func (p *Polargraph) SetGeometry(g kinematics.Config) error {
	if err := g.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.geometry = g
	return nil
}

// Speed returns the translation speed used by MoveTo [mm/s].
func (p *Polargraph) Speed() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.speed
}

// SetSpeed sets the translation speed used by MoveTo [mm/s].
func (p *Polargraph) SetSpeed(mmPerSec float64) error {
	if mmPerSec <= 0 {
		return fmt.Errorf("speed must be positive, got %g", mmPerSec)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = mmPerSec
	return nil
}

// LinearSpeed reads the maximum speed of motor 1 from the device [mm/s].
func (p *Polargraph) LinearSpeed(ctx context.Context) (float64, error) {
	v, err := p.motors.Speeds(ctx)
	return p.Geometry().LinearSpeed(v.V1), err
}

// SetAcceleration sets the maximum acceleration of both motors [mm/s²].
func (p *Polargraph) SetAcceleration(ctx context.Context, mmPerSec2 float64) error {
	a := p.Geometry().StepSpeed(mmPerSec2)
	return p.motors.SetAcceleration(ctx, kinematics.Speeds{V1: a, V2: a})
}

// Indexes returns the current step indexes.
func (p *Polargraph) Indexes(ctx context.Context) (kinematics.Indexes, error) {
	return p.motors.Indexes(ctx)
}

// Position returns the current coordinates of the payload.
// If the device cannot be read, the position of indexes (0, 0) is returned
// together with the error.
func (p *Polargraph) Position(ctx context.Context) (kinematics.Position, error) {
	n, err := p.motors.Indexes(ctx)
	pos, gerr := p.Geometry().ToPosition(n)
	if gerr != nil {
		p.log.Error("unphysical result", zap.Error(gerr))
	}
	return pos, errors.Join(err, gerr)
}

// MoveTo moves the payload to pos. Motor speeds are split so that both
// motors arrive at the same time. MoveTo returns once the controller has
// accepted the target; use Running to follow the motion.
func (p *Polargraph) MoveTo(ctx context.Context, pos kinematics.Position) error {
	g := p.Geometry()

	from, err := p.motors.Indexes(ctx)
	if err != nil {
		p.log.Warn("moving from unknown indexes", zap.Error(err))
	}
	to := g.ToIndexes(pos)
	p.log.Debug("path",
		zap.Int("n1", from.N1), zap.Int("n2", from.N2),
		zap.Int("m1", to.N1), zap.Int("m2", to.N2))

	v := kinematics.SyncSpeeds(from, to, g.StepSpeed(p.Speed()))
	if err := p.motors.SetSpeeds(ctx, v); err != nil {
		p.log.Warn("moving with previous motor speeds", zap.Error(err))
	}
	return p.motors.Goto(ctx, to)
}

// Running reports whether the motors are moving.
func (p *Polargraph) Running(ctx context.Context) (bool, error) {
	return p.motors.Running(ctx)
}

// Stop halts the motors.
func (p *Polargraph) Stop(ctx context.Context) error {
	return p.motors.Stop(ctx)
}

// Release stops the motors and de-energizes the windings.
func (p *Polargraph) Release(ctx context.Context) error {
	return p.motors.Release(ctx)
}
