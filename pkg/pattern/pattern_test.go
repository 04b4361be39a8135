package pattern

import (
	"errors"
	"math"
	"testing"

	"github.com/gwillem/polargraph/pkg/kinematics"
)

const tol = 1e-9

func TestRegion_Rect(t *testing.T) {
	r := Region{Width: 0.6, Height: 0.4, DX: 0.1, DY: 0.1, Step: 5, Y0: 0.1}

	x1, y1, x2, y2 := r.Rect()
	want := [4]float64{-0.2, 0.2, 0.4, 0.6}
	got := [4]float64{x1, y1, x2, y2}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("Rect() = %v, want %v", got, want)
			break
		}
	}

	c := r.Center()
	if math.Abs(c.X-0.1) > tol || math.Abs(c.Y-0.4) > tol {
		t.Errorf("Center() = %v, want {0.1 0.4}", c)
	}
}

func TestRegion_Validate(t *testing.T) {
	tests := []struct {
		name string
		r    Region
		ok   bool
	}{
		{"default", DefaultRegion(0.1), true},
		{"zero width", Region{Width: 0, Height: 1, Step: 5}, false},
		{"zero height", Region{Width: 1, Height: 0, Step: 5}, false},
		{"zero step", Region{Width: 1, Height: 1, Step: 0}, false},
	}
	for _, tt := range tests {
		err := tt.r.Validate()
		if tt.ok != (err == nil) {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidRegion) {
			t.Errorf("%s: Validate() = %v, want ErrInvalidRegion", tt.name, err)
		}
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		span, step float64
		want       int
	}{
		{0.6, 0.005, 120},
		{0.6, 0.007, 86},
		{0.1, 0.1, 1},
		{0.3, 0.1, 3},
		{0.31, 0.1, 4},
	}
	for _, tt := range tests {
		if got := count(tt.span, tt.step); got != tt.want {
			t.Errorf("count(%g, %g) = %d, want %d", tt.span, tt.step, got, tt.want)
		}
	}
}

func TestRaster_Lines(t *testing.T) {
	r := Raster{Area: DefaultRegion(0.1)}

	lines := r.Lines()
	if len(lines) != 120 {
		t.Fatalf("len(Lines()) = %d, want 120", len(lines))
	}
	if math.Abs(lines[0]-(-0.3)) > tol {
		t.Errorf("Lines()[0] = %g, want -0.3", lines[0])
	}
	for i := 1; i < len(lines); i++ {
		if d := lines[i] - lines[i-1]; math.Abs(d-0.005) > tol {
			t.Errorf("line spacing %d = %g, want 0.005", i, d)
		}
	}
}

func TestRaster_Vertices(t *testing.T) {
	region := DefaultRegion(0.1)
	r := Raster{Area: region}
	_, y1, _, y2 := region.Rect()

	v := r.Vertices()
	if len(v) != 240 {
		t.Fatalf("len(Vertices()) = %d, want 240", len(v))
	}
	for i := 0; i < len(v); i += 2 {
		line := i / 2
		a, b := v[i], v[i+1]
		if a.X != b.X {
			t.Errorf("line %d not vertical: %v -> %v", line, a, b)
		}
		wantA, wantB := y1, y2
		if line%2 == 1 {
			wantA, wantB = y2, y1
		}
		if a.Y != wantA || b.Y != wantB {
			t.Errorf("line %d = %v -> %v, want y %g -> %g", line, a, b, wantA, wantB)
		}
	}

	// boustrophedon: each line starts where the previous one ended
	for i := 2; i < len(v); i += 2 {
		if v[i].Y != v[i-1].Y {
			t.Errorf("line %d starts at y=%g, previous ended at y=%g", i/2, v[i].Y, v[i-1].Y)
		}
	}

	x, y := r.Trajectory()
	if len(x) != len(v) || len(y) != len(v) {
		t.Errorf("Trajectory() lengths = %d, %d, want %d", len(x), len(y), len(v))
	}
}

func TestPolar_Radii(t *testing.T) {
	p := Polar{Area: DefaultRegion(0.1), Ell: 1.0}

	radii := p.Radii()
	if len(radii) < 2 {
		t.Fatalf("len(Radii()) = %d, want several", len(radii))
	}

	x1, y1, x2, y2 := p.Area.Rect()
	rmin := math.Hypot(x1+0.5, y1)
	rmax := math.Hypot(x2+0.5, y2)
	if math.Abs(radii[0]-rmin) > tol {
		t.Errorf("Radii()[0] = %g, want %g", radii[0], rmin)
	}
	if last := radii[len(radii)-1]; last >= rmax || last < rmax-0.005-tol {
		t.Errorf("last radius = %g, want in [%g, %g)", last, rmax-0.005, rmax)
	}
	for i := 1; i < len(radii); i++ {
		if d := radii[i] - radii[i-1]; math.Abs(d-0.005) > tol {
			t.Errorf("radius step %d = %g, want 0.005", i, d)
		}
	}
}

func TestPolar_Intercepts(t *testing.T) {
	regions := []Region{
		DefaultRegion(0.1),
		{Width: 0.4, Height: 0.2, DX: 0.1, DY: 0.05, Step: 3, Y0: 0.1},
		{Width: 0.2, Height: 0.5, DX: -0.1, DY: 0.2, Step: 7, Y0: 0.15},
	}

	for _, region := range regions {
		p := Polar{Area: region, Ell: 1.0}
		for _, r := range p.Radii() {
			a, b := p.Intercepts(r)
			for _, pt := range []kinematics.Position{a, b} {
				if math.IsNaN(pt.X) || math.IsNaN(pt.Y) {
					t.Fatalf("Intercepts(%g) = %v, %v: NaN", r, a, b)
				}
				if !region.OnBoundary(pt, 1e-9) {
					t.Errorf("Intercepts(%g) point %v not on boundary of %+v", r, pt, region)
				}
				if d := math.Hypot(pt.X+0.5, pt.Y); math.Abs(d-r) > 1e-9 {
					t.Errorf("Intercepts(%g) point %v at distance %g from anchor", r, pt, d)
				}
			}
		}
	}
}

func TestPolar_VerticesAlternate(t *testing.T) {
	p := Polar{Area: DefaultRegion(0.1), Ell: 1.0}

	v := p.Vertices()
	radii := p.Radii()
	if len(v) != 2*len(radii) {
		t.Fatalf("len(Vertices()) = %d, want %d", len(v), 2*len(radii))
	}
	for i := range radii {
		first, second := p.Intercepts(radii[i])
		if i%2 == 0 {
			first, second = second, first
		}
		if v[2*i] != first || v[2*i+1] != second {
			t.Errorf("sweep %d = %v, %v; want %v, %v", i, v[2*i], v[2*i+1], first, second)
		}
	}

	x, y := p.Trajectory()
	if len(x) != arcPoints*len(radii) || len(y) != len(x) {
		t.Errorf("Trajectory() lengths = %d, %d, want %d", len(x), len(y), arcPoints*len(radii))
	}
}

func TestNew(t *testing.T) {
	region := DefaultRegion(0.1)

	if p, err := New(KindRaster, region, 1); err != nil {
		t.Errorf("New(raster) error: %v", err)
	} else if _, ok := p.(Raster); !ok {
		t.Errorf("New(raster) = %T, want Raster", p)
	}
	if p, err := New(KindPolar, region, 1); err != nil {
		t.Errorf("New(polar) error: %v", err)
	} else if _, ok := p.(Polar); !ok {
		t.Errorf("New(polar) = %T, want Polar", p)
	}
	if _, err := New("spiral", region, 1); err == nil {
		t.Error("New(spiral) error = nil, want failure")
	}
	if _, err := New(KindPolar, region, 0); err == nil {
		t.Error("New(polar) with ell=0 error = nil, want failure")
	}
	bad := region
	bad.Step = 0
	if _, err := New(KindRaster, bad, 1); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("New() with zero step error = %v, want ErrInvalidRegion", err)
	}
}
