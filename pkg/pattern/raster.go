package pattern

import "github.com/gwillem/polargraph/pkg/kinematics"

// Raster covers the region with vertical scan lines spaced Step apart,
// traversed top-to-bottom and bottom-to-top in turn.
type Raster struct {
	Area Region
}

// Region implements Pattern.
func (r Raster) Region() Region { return r.Area }

// Lines returns the x coordinate of every scan line.
func (r Raster) Lines() []float64 {
	x1, _, _, _ := r.Area.Rect()
	step := r.Area.steps()
	n := count(r.Area.Width, step)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = x1 + float64(i)*step
	}
	return xs
}

// Vertices returns two vertices per scan line.
func (r Raster) Vertices() []kinematics.Position {
	_, y1, _, y2 := r.Area.Rect()
	lines := r.Lines()
	out := make([]kinematics.Position, 0, 2*len(lines))
	for i, x := range lines {
		a, b := y1, y2
		if i%2 == 1 {
			a, b = y2, y1
		}
		out = append(out,
			kinematics.Position{X: x, Y: a},
			kinematics.Position{X: x, Y: b})
	}
	return out
}

// Trajectory returns the scan path through all vertices.
func (r Raster) Trajectory() (x, y []float64) {
	v := r.Vertices()
	x = make([]float64, len(v))
	y = make([]float64, len(v))
	for i, p := range v {
		x[i], y[i] = p.X, p.Y
	}
	return x, y
}
