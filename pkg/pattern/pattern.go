// Package pattern generates the waypoints of a scan over a rectangular region.
package pattern

import (
	"errors"
	"fmt"
	"math"

	"github.com/gwillem/polargraph/pkg/kinematics"
)

// ErrInvalidRegion is returned by Region.Validate.
var ErrInvalidRegion = errors.New("invalid scan region")

// Pattern kinds accepted by New.
const (
	KindRaster = "raster"
	KindPolar  = "polar"
)

// Pattern is an ordered, finite list of move targets over a region.
type Pattern interface {
	// Vertices returns the move targets in order.
	Vertices() []kinematics.Position
	// Trajectory returns a denser path for display.
	Trajectory() (x, y []float64)
	// Region returns the scanned rectangle.
	Region() Region
}

// Region is a scan rectangle relative to the home position.
// The region's top edge lies dy below the home height y0 and it is
// centered dx to the right of home.
type Region struct {
	Width  float64 `json:"width"`  // [m]
	Height float64 `json:"height"` // [m]
	DX     float64 `json:"dx"`     // horizontal offset of the center [m]
	DY     float64 `json:"dy"`     // vertical offset below home [m]
	Step   float64 `json:"step"`   // waypoint spacing [mm]
	Y0     float64 `json:"y0"`     // home height [m]
}

// DefaultRegion returns a 60cm square starting 10cm below home, scanned in 5mm steps.
func DefaultRegion(y0 float64) Region {
	return Region{
		Width:  0.6,
		Height: 0.6,
		DX:     0,
		DY:     0.1,
		Step:   5,
		Y0:     y0,
	}
}

// Validate checks that the region can be scanned.
func (r Region) Validate() error {
	switch {
	case r.Width <= 0:
		return fmt.Errorf("%w: width must be positive, got %g", ErrInvalidRegion, r.Width)
	case r.Height <= 0:
		return fmt.Errorf("%w: height must be positive, got %g", ErrInvalidRegion, r.Height)
	case r.Step <= 0:
		return fmt.Errorf("%w: step must be positive, got %g", ErrInvalidRegion, r.Step)
	}
	return nil
}

// Rect returns the corners of the region: (x1, y1) top-left, (x2, y2) bottom-right.
func (r Region) Rect() (x1, y1, x2, y2 float64) {
	x1 = r.DX - r.Width/2
	y1 = r.Y0 + r.DY
	return x1, y1, x1 + r.Width, y1 + r.Height
}

// Center returns the middle of the region.
func (r Region) Center() kinematics.Position {
	return kinematics.Position{X: r.DX, Y: r.Y0 + r.DY + r.Height/2}
}

// Contains reports whether p lies in the region, within tol.
func (r Region) Contains(p kinematics.Position, tol float64) bool {
	x1, y1, x2, y2 := r.Rect()
	return p.X >= x1-tol && p.X <= x2+tol && p.Y >= y1-tol && p.Y <= y2+tol
}

// OnBoundary reports whether p lies on the edge of the region, within tol.
func (r Region) OnBoundary(p kinematics.Position, tol float64) bool {
	if !r.Contains(p, tol) {
		return false
	}
	x1, y1, x2, y2 := r.Rect()
	return math.Abs(p.X-x1) <= tol || math.Abs(p.X-x2) <= tol ||
		math.Abs(p.Y-y1) <= tol || math.Abs(p.Y-y2) <= tol
}

// steps returns the spacing in meters.
func (r Region) steps() float64 {
	return r.Step * 1e-3
}

// count returns the number of samples of spacing step that fit in span,
// counting the start: ceil(span/step). Quotients within rounding error of an
// integer are not rounded up.
func count(span, step float64) int {
	q := span / step
	if n := math.Round(q); math.Abs(q-n) < 1e-9 {
		return int(n)
	}
	return int(math.Ceil(q))
}

// New returns the pattern of the given kind. ell is the motor separation,
// used by polar sweeps.
func New(kind string, region Region, ell float64) (Pattern, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case KindRaster, "":
		return Raster{Area: region}, nil
	case KindPolar:
		if ell <= 0 {
			return nil, fmt.Errorf("polar pattern: ell must be positive, got %g", ell)
		}
		return Polar{Area: region, Ell: ell}, nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", kind)
	}
}
