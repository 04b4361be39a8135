// Package kinematics maps between motor step indexes and Cartesian
// coordinates for a two-belt polargraph.
//
// The motors hang at (-Ell/2, 0) and (+Ell/2, 0). Y grows downwards and the
// home position is (0, Y0). Motor 1 pays out belt for positive indexes,
// motor 2 takes belt in.
package kinematics

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnphysical is returned when a pair of step indexes does not
	// correspond to any point below the motors.
	ErrUnphysical = errors.New("unphysical step indexes")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid kinematic config")
)

// Position is a payload position in meters from the home position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Indexes holds the step indexes of both motors.
type Indexes struct {
	N1 int `json:"n1"`
	N2 int `json:"n2"`
}

// Speeds holds per-motor speeds in steps/second.
type Speeds struct {
	V1 float64 `json:"v1"`
	V2 float64 `json:"v2"`
}

// Config describes the belt drive and motor geometry.
type Config struct {
	Ell           float64 `json:"ell"`           // separation between motors [m]
	Y0            float64 `json:"y0"`            // vertical offset of home [m]
	Pitch         float64 `json:"pitch"`         // belt tooth pitch [mm]
	Circumference int     `json:"circumference"` // belt teeth per revolution
	Steps         int     `json:"steps"`         // motor steps per revolution
}

// DefaultConfig returns a GT2 belt on 25-tooth pulleys driven by 200 step motors,
// with the motors one meter apart.
func DefaultConfig() Config {
	return Config{
		Ell:           1.0,
		Y0:            0.1,
		Pitch:         2,
		Circumference: 25,
		Steps:         200,
	}
}

// Validate checks that the geometry is usable.
func (c Config) Validate() error {
	switch {
	case c.Ell <= 0:
		return fmt.Errorf("%w: ell must be positive, got %g", ErrInvalidConfig, c.Ell)
	case c.Y0 <= 0:
		return fmt.Errorf("%w: y0 must be positive, got %g", ErrInvalidConfig, c.Y0)
	case c.Pitch <= 0:
		return fmt.Errorf("%w: pitch must be positive, got %g", ErrInvalidConfig, c.Pitch)
	case c.Circumference <= 0:
		return fmt.Errorf("%w: circumference must be positive, got %d", ErrInvalidConfig, c.Circumference)
	case c.Steps <= 0:
		return fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidConfig, c.Steps)
	}
	return nil
}

// DS returns the belt travel per motor step [m].
func (c Config) DS() float64 {
	return 1e-3 * c.Pitch * float64(c.Circumference) / float64(c.Steps)
}

// S0 returns the belt length from either motor to the payload at home [m].
func (c Config) S0() float64 {
	return math.Hypot(c.Ell/2, c.Y0)
}

// Home returns the home position.
func (c Config) Home() Position {
	return Position{X: 0, Y: c.Y0}
}

// BeltLengths returns the distances from the left and right anchors to p.
func (c Config) BeltLengths(p Position) (sm, sn float64) {
	half := c.Ell / 2
	sm = math.Hypot(half+p.X, p.Y)
	sn = math.Hypot(half-p.X, p.Y)
	return sm, sn
}

// ToPosition converts step indexes to coordinates (forward kinematics).
//
// If the indexes are unphysical the returned position carries Y0 as its
// height and the error wraps ErrUnphysical.
func (c Config) ToPosition(n Indexes) (Position, error) {
	s0, ds := c.S0(), c.DS()
	sm := s0 + float64(n.N1)*ds
	sn := s0 - float64(n.N2)*ds

	x := (sm*sm - sn*sn) / (2 * c.Ell)
	ysq := (sm*sm+sn*sn)/2 - c.Ell*c.Ell/4 - x*x
	if ysq < 0 {
		return Position{X: x, Y: c.Y0}, fmt.Errorf("%w: n=(%d, %d) s0=%g sm=%g sn=%g ysq=%g",
			ErrUnphysical, n.N1, n.N2, s0, sm, sn, ysq)
	}
	return Position{X: x, Y: math.Sqrt(ysq)}, nil
}

// ToIndexes converts coordinates to the nearest step indexes (inverse kinematics).
func (c Config) ToIndexes(p Position) Indexes {
	s0, ds := c.S0(), c.DS()
	sm, sn := c.BeltLengths(p)
	return Indexes{
		N1: int(math.Round((sm - s0) / ds)),
		N2: int(math.Round((s0 - sn) / ds)),
	}
}

// StepSpeed converts a linear speed [mm/s] to steps/second.
func (c Config) StepSpeed(mmPerSec float64) float64 {
	return 1e-3 * mmPerSec / c.DS()
}

// LinearSpeed converts steps/second to a linear speed [mm/s].
func (c Config) LinearSpeed(stepsPerSec float64) float64 {
	return 1e3 * stepsPerSec * c.DS()
}

// SyncSpeeds splits the speed v [steps/s] between the motors so that both
// arrive at to at the same time when moving at constant speed from from.
// The motor with the larger step delta runs at v.
func SyncSpeeds(from, to Indexes, v float64) Speeds {
	d1 := math.Abs(float64(to.N1 - from.N1))
	d2 := math.Abs(float64(to.N2 - from.N2))
	if d1 == 0 || d2 == 0 {
		return Speeds{V1: v, V2: v}
	}
	if d1 >= d2 {
		return Speeds{V1: v, V2: v * d2 / d1}
	}
	return Speeds{V1: v * d1 / d2, V2: v}
}
