package pattern

import (
	"math"

	"github.com/gwillem/polargraph/pkg/kinematics"
)

// arcPoints is the number of display points per sweep.
const arcPoints = 50

// Polar covers the region with circular sweeps about the left motor, so that
// each sweep holds belt 1 at constant length. Sweep radii grow by Step from
// the nearest corner of the region towards the farthest one.
//
// The region is expected to lie to the right of the left motor.
type Polar struct {
	Area Region
	Ell  float64 // motor separation [m]
}

// Region implements Pattern.
func (p Polar) Region() Region { return p.Area }

// Radii returns the radius of every sweep [m].
func (p Polar) Radii() []float64 {
	half := p.Ell / 2
	x1, y1, x2, y2 := p.Area.Rect()
	rmin := math.Hypot(x1+half, y1)
	rmax := math.Hypot(x2+half, y2)
	step := p.Area.steps()

	n := count(rmax-rmin, step)
	radii := make([]float64, n)
	for i := range radii {
		radii[i] = rmin + float64(i)*step
	}
	return radii
}

// Intercepts returns the points where the sweep of radius r crosses the
// region boundary. The first point lies on the top or right edge, the second
// on the left or bottom edge.
func (p Polar) Intercepts(r float64) (kinematics.Position, kinematics.Position) {
	a := -p.Ell / 2
	x1, y1, x2, y2 := p.Area.Rect()
	// relative to the left motor
	x1 -= a
	x2 -= a

	var r1, r2 kinematics.Position
	if r < math.Hypot(x2, y1) {
		r1 = kinematics.Position{X: a + math.Sqrt(r*r-y1*y1), Y: y1}
	} else {
		r1 = kinematics.Position{X: a + x2, Y: math.Sqrt(r*r - x2*x2)}
	}
	if r < math.Hypot(x1, y2) {
		r2 = kinematics.Position{X: a + x1, Y: math.Sqrt(r*r - x1*x1)}
	} else {
		r2 = kinematics.Position{X: a + math.Sqrt(r*r-y2*y2), Y: y2}
	}
	return r1, r2
}

// Vertices returns both intercepts of every sweep, alternating their order.
func (p Polar) Vertices() []kinematics.Position {
	radii := p.Radii()
	out := make([]kinematics.Position, 0, 2*len(radii))
	for i, r := range radii {
		p1, p2 := p.Intercepts(r)
		if i%2 == 0 {
			p1, p2 = p2, p1
		}
		out = append(out, p1, p2)
	}
	return out
}

// Trajectory samples every sweep along its arc.
func (p Polar) Trajectory() (x, y []float64) {
	a := -p.Ell / 2
	v := p.Vertices()
	for i, r := range p.Radii() {
		start, end := v[2*i], v[2*i+1]
		t1 := math.Atan2(start.Y, start.X-a)
		t2 := math.Atan2(end.Y, end.X-a)
		for k := 0; k < arcPoints; k++ {
			t := t1 + (t2-t1)*float64(k)/float64(arcPoints-1)
			x = append(x, a+r*math.Cos(t))
			y = append(y, r*math.Sin(t))
		}
	}
	return x, y
}
