package blob

import (
	"math"
	"testing"
)

func TestNewTableValidation(t *testing.T) {
	if _, err := NewTable(0, 15, 0, 100); err == nil {
		t.Error("zero radius should fail")
	}
	if _, err := NewTable(1.9, 15, 0, 1); err == nil {
		t.Error("single-element table should fail")
	}
	if _, err := NewTable(1.9, 15, 1, 100); err == nil {
		t.Error("order 1 has no analytic transform and should fail")
	}
	if _, err := NewTable(1.9, 15, 2, 100); err != nil {
		t.Errorf("order 2 should be accepted: %v", err)
	}
}

func TestValueProfile(t *testing.T) {
	tab, err := NewTable(3.8, 15, 0, 10000)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	if got := tab.Value(0); math.Abs(got-1) > 1e-6 {
		t.Errorf("Value(0) = %g, want 1", got)
	}
	// The blob decays monotonically over its support.
	prev := tab.Value(0)
	for r := 0.2; r < 3.8; r += 0.2 {
		v := tab.Value(r)
		if v > prev {
			t.Errorf("Value(%g) = %g increased from %g", r, v, prev)
		}
		prev = v
	}
	if got := tab.Value(4.0); got != 0 {
		t.Errorf("Value beyond support = %g, want 0", got)
	}
	if got := tab.Value(-1.0); got != tab.Value(1.0) {
		t.Errorf("Value should be even in r: %g vs %g", got, tab.Value(1.0))
	}
}

func TestFTProfile(t *testing.T) {
	tab, err := NewTable(3.8, 15, 0, 10000)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	norm := tab.FT(0)
	if norm <= 0 {
		t.Fatalf("FT(0) = %g, want positive", norm)
	}
	// The transform tapers off towards the tabulated edge.
	if tab.FT(0.4) >= norm {
		t.Errorf("FT(0.4) = %g should be below FT(0) = %g", tab.FT(0.4), norm)
	}
	if got := tab.FT(0.5); got != 0 {
		t.Errorf("FT at table edge = %g, want 0", got)
	}
	if got := tab.FT(-0.1); got != tab.FT(0.1) {
		t.Errorf("FT should be even in w: %g vs %g", got, tab.FT(0.1))
	}
}

func TestFTBranchContinuity(t *testing.T) {
	// The analytic transform switches between modified and ordinary Bessel
	// evaluations where 2*pi*a*w crosses alpha; the two branches must agree
	// there.
	a, alpha := 3.8, 15.0
	wc := alpha / (2 * math.Pi * a)
	lo := kaiserFourierValue(wc*(1-1e-6), a, alpha, 0)
	hi := kaiserFourierValue(wc*(1+1e-6), a, alpha, 0)
	scale := math.Max(math.Abs(lo), math.Abs(hi))
	if scale == 0 {
		t.Fatal("transform vanished at the branch point")
	}
	if math.Abs(lo-hi)/scale > 1e-3 {
		t.Errorf("branch discontinuity at w=%g: %g vs %g", wc, lo, hi)
	}
}

func TestBesselKnownValues(t *testing.T) {
	// Reference values from Abramowitz & Stegun tables.
	cases := []struct {
		name string
		fn   func(float64) float64
		x    float64
		want float64
		tol  float64
	}{
		{"I0(0)", bessi0, 0, 1, 1e-12},
		{"I0(1)", bessi0, 1, 1.2660658, 1e-6},
		{"I1(1)", bessi1, 1, 0.5651591, 1e-6},
		{"I2(1)", bessi2, 1, 0.1357476, 1e-5},
		{"I1(-1)", bessi1, -1, -0.5651591, 1e-6},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.x); math.Abs(got-tc.want) > tc.tol {
			t.Errorf("%s = %.7f, want %.7f", tc.name, got, tc.want)
		}
	}
}

func TestHalfIntegerBessel(t *testing.T) {
	// I_{3/2}(x) = sqrt(2/(pi x)) (cosh x - sinh x / x).
	x := 2.0
	want := math.Sqrt(2/(math.Pi*x)) * (math.Cosh(x) - math.Sinh(x)/x)
	if got := bessi1o5(x); math.Abs(got-want) > 1e-12 {
		t.Errorf("bessi1o5(2) = %g, want %g", got, want)
	}
	// J_{1/2}(x) = sqrt(2/(pi x)) sin x.
	wantJ := math.Sqrt(2/(math.Pi*x)) * math.Sin(x)
	if got := bessj0o5(x); math.Abs(got-wantJ) > 1e-12 {
		t.Errorf("bessj0o5(2) = %g, want %g", got, wantJ)
	}
}
