// Package scan drives a polargraph through the waypoints of a scan pattern.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/polargraph/pkg/kinematics"
	"github.com/gwillem/polargraph/pkg/pattern"
)

// Target is a device the engine can move. *polargraph.Polargraph implements it.
type Target interface {
	MoveTo(ctx context.Context, p kinematics.Position) error
	Position(ctx context.Context) (kinematics.Position, error)
	Running(ctx context.Context) (bool, error)
	Stop(ctx context.Context) error
	Release(ctx context.Context) error
}

// State is the engine state.
type State int32

const (
	StateIdle State = iota
	StateMoving
	StateInterrupting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateMoving:
		return "Moving"
	case StateInterrupting:
		return "Interrupting"
	default:
		return "Unknown"
	}
}

// Outcome tells how a call to Scan or MoveTo ended.
type Outcome int

const (
	// OutcomeCompleted means every waypoint was reached.
	OutcomeCompleted Outcome = iota
	// OutcomeInterrupted means the motion was halted by Interrupt or by
	// cancellation of the context.
	OutcomeInterrupted
	// OutcomeInterruptRequested means the engine was already moving, and the
	// call was taken as a request to interrupt that motion.
	OutcomeInterruptRequested
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeInterruptRequested:
		return "interrupt requested"
	default:
		return "unknown"
	}
}

// Sample is a position reading taken while following a waypoint.
type Sample struct {
	Position  kinematics.Position
	Running   bool
	Waypoint  int // index into the waypoint list
	Timestamp time.Time
}

// Result summarizes a completed call to Scan or MoveTo.
type Result struct {
	Outcome   Outcome
	Waypoints int // waypoints in the sequence
	Reached   int // waypoints whose motion finished without interruption
	Samples   int // samples taken
}

// Config holds configuration for the engine.
type Config struct {
	// PollInterval is the delay between status polls. Default 20ms.
	PollInterval time.Duration
	// SampleBuffer is the capacity of the sample channel. Default 256.
	SampleBuffer int
	// ReleaseTimeout bounds the release command when the caller's context
	// is already canceled. Default 2s.
	ReleaseTimeout time.Duration
}

// Engine moves a Target through waypoint sequences. A Target must be driven
// by one engine only.
type Engine struct {
	target Target
	cfg    Config
	log    *zap.Logger

	mu      sync.RWMutex
	pattern pattern.Pattern

	state     atomic.Int32
	interrupt atomic.Bool
	samples   chan Sample
}

// New creates an engine for target scanning pat.
func New(target Target, pat pattern.Pattern, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	if cfg.SampleBuffer <= 0 {
		cfg.SampleBuffer = 256
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 2 * time.Second
	}
	return &Engine{
		target:  target,
		cfg:     cfg,
		log:     log.Named("scan"),
		pattern: pat,
		samples: make(chan Sample, cfg.SampleBuffer),
	}
}

// Samples returns a channel that receives position samples. When the
// channel is full the oldest sample is dropped.
func (e *Engine) Samples() <-chan Sample {
	return e.samples
}

// State returns the current engine state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Pattern returns the scan pattern.
func (e *Engine) Pattern() pattern.Pattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pattern
}

// SetPattern replaces the scan pattern used by later scans.
func (e *Engine) SetPattern(p pattern.Pattern) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pattern = p
}

// Interrupt asks a running motion to stop. It takes effect at the next
// poll; a device command already in flight completes first.
// Interrupt has no effect when the engine is idle.
func (e *Engine) Interrupt() {
	if e.state.CompareAndSwap(int32(StateMoving), int32(StateInterrupting)) {
		e.interrupt.Store(true)
		e.log.Info("interrupt requested")
	}
}

// Scan moves through every vertex of the pattern and blocks until done.
// If a motion is already in progress, Scan interrupts it instead.
func (e *Engine) Scan(ctx context.Context) (Result, error) {
	pat := e.Pattern()
	if pat == nil {
		return Result{}, errors.New("no scan pattern")
	}
	if e.State() != StateIdle {
		e.Interrupt()
		return Result{Outcome: OutcomeInterruptRequested}, nil
	}
	return e.MoveTo(ctx, pat.Vertices()...)
}

// Home moves to the home position (0, y0).
func (e *Engine) Home(ctx context.Context) (Result, error) {
	pat := e.Pattern()
	if pat == nil {
		return Result{}, errors.New("no scan pattern")
	}
	return e.MoveTo(ctx, kinematics.Position{X: 0, Y: pat.Region().Y0})
}

// Center moves to the middle of the scan region.
func (e *Engine) Center(ctx context.Context) (Result, error) {
	pat := e.Pattern()
	if pat == nil {
		return Result{}, errors.New("no scan pattern")
	}
	return e.MoveTo(ctx, pat.Region().Center())
}

// MoveTo visits the waypoints in order, polling the target and publishing
// samples until each motion finishes. The motors are released on every
// exit path. If a motion is already in progress, MoveTo interrupts it.
//
// Communication faults do not stop the motion; they are collected in the
// returned error. Cancellation of ctx acts as an interrupt and is also
// reported in the error.
func (e *Engine) MoveTo(ctx context.Context, waypoints ...kinematics.Position) (res Result, err error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateMoving)) {
		e.Interrupt()
		return Result{Outcome: OutcomeInterruptRequested}, nil
	}

	res.Waypoints = len(waypoints)
	var faults []error

	defer func() {
		if rerr := e.release(ctx); rerr != nil {
			faults = append(faults, rerr)
		}
		e.interrupt.Store(false)
		e.state.Store(int32(StateIdle))
		err = errors.Join(faults...)
		e.log.Info("motion finished",
			zap.Stringer("outcome", res.Outcome),
			zap.Int("reached", res.Reached),
			zap.Int("waypoints", res.Waypoints),
			zap.Int("samples", res.Samples))
	}()

	e.log.Info("motion started", zap.Int("waypoints", len(waypoints)))

	for i, wp := range waypoints {
		if e.interrupted(ctx) {
			res.Outcome = OutcomeInterrupted
			break
		}

		e.log.Debug("moving", zap.Int("waypoint", i), zap.Float64("x", wp.X), zap.Float64("y", wp.Y))
		if err := e.target.MoveTo(ctx, wp); err != nil {
			faults = append(faults, fmt.Errorf("waypoint %d: %w", i, err))
		}

		halted, ferr := e.follow(ctx, i, &res)
		faults = append(faults, ferr...)
		if halted {
			res.Outcome = OutcomeInterrupted
			break
		}
		res.Reached++
	}

	if cerr := ctx.Err(); cerr != nil {
		faults = append(faults, cerr)
	}
	return res, nil
}

// follow polls the target until the current motion ends. It returns true if
// the motion was halted by an interrupt.
func (e *Engine) follow(ctx context.Context, waypoint int, res *Result) (bool, []error) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var faults []error
	for {
		if e.interrupted(ctx) {
			if err := e.detached(ctx, e.target.Stop); err != nil {
				faults = append(faults, fmt.Errorf("stop: %w", err))
			}
			return true, faults
		}

		pos, perr := e.target.Position(ctx)
		running, rerr := e.target.Running(ctx)
		if perr != nil {
			faults = append(faults, fmt.Errorf("waypoint %d: %w", waypoint, perr))
		}
		if rerr != nil {
			faults = append(faults, fmt.Errorf("waypoint %d: %w", waypoint, rerr))
		}

		res.Samples++
		e.sendSample(Sample{
			Position:  pos,
			Running:   running,
			Waypoint:  waypoint,
			Timestamp: time.Now(),
		})

		if !running {
			return false, faults
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

func (e *Engine) interrupted(ctx context.Context) bool {
	return e.interrupt.Load() || ctx.Err() != nil
}

// detached runs fn with ctx, or with a fresh bounded context if ctx is
// done, so that halting commands still reach the device after cancellation.
func (e *Engine) detached(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), e.cfg.ReleaseTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (e *Engine) release(ctx context.Context) error {
	if err := e.detached(ctx, e.target.Release); err != nil {
		e.log.Error("release failed", zap.Error(err))
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

func (e *Engine) sendSample(s Sample) {
	select {
	case e.samples <- s:
	default:
		// Drop old sample if channel full, replace with new
		select {
		case <-e.samples:
		default:
		}
		select {
		case e.samples <- s:
		default:
		}
	}
}
