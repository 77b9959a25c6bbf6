package symmetry

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestIdentityOrder(t *testing.T) {
	l := Identity()
	if l.Order() != 1 {
		t.Errorf("identity group order = %d, want 1", l.Order())
	}
	r := l.Operators()[0].R
	if !mat.EqualApprox(r, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 1e-15) {
		t.Errorf("identity operator is not the identity matrix: %v", mat.Formatted(r))
	}
}

func TestCyclic(t *testing.T) {
	l, err := Cyclic(4)
	if err != nil {
		t.Fatalf("Cyclic(4) failed: %v", err)
	}
	if l.Order() != 4 {
		t.Fatalf("C4 order = %d, want 4", l.Order())
	}

	// The second operator is a quarter turn about z.
	want := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	if !mat.EqualApprox(l.Operators()[1].R, want, 1e-12) {
		t.Errorf("C4 quarter turn = %v", mat.Formatted(l.Operators()[1].R))
	}

	// Every operator is a proper rotation.
	for i, op := range l.Operators() {
		if det := mat.Det(op.R); math.Abs(det-1) > 1e-12 {
			t.Errorf("operator %d determinant = %g, want 1", i, det)
		}
	}

	if _, err := Cyclic(0); err == nil {
		t.Error("Cyclic(0) should fail")
	}
}

func TestDihedral(t *testing.T) {
	l, err := Dihedral(3)
	if err != nil {
		t.Fatalf("Dihedral(3) failed: %v", err)
	}
	if l.Order() != 6 {
		t.Errorf("D3 order = %d, want 6", l.Order())
	}
	for i, op := range l.Operators() {
		if det := mat.Det(op.R); math.Abs(det-1) > 1e-12 {
			t.Errorf("operator %d determinant = %g, want 1", i, det)
		}
	}
}

func TestFromOperators(t *testing.T) {
	ops := []*mat.Dense{
		mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		RotationZ(math.Pi),
	}
	l, err := FromOperators(ops)
	if err != nil {
		t.Fatalf("FromOperators failed: %v", err)
	}
	if l.Order() != 2 {
		t.Errorf("order = %d, want 2", l.Order())
	}

	if _, err := FromOperators(nil); err == nil {
		t.Error("empty operator list should fail")
	}
	bad := []*mat.Dense{mat.NewDense(3, 3, []float64{2, 0, 0, 0, 1, 0, 0, 0, 1})}
	if _, err := FromOperators(bad); err == nil {
		t.Error("non-unit determinant should fail")
	}
	small := []*mat.Dense{mat.NewDense(2, 2, []float64{1, 0, 0, 1})}
	if _, err := FromOperators(small); err == nil {
		t.Error("2x2 operator should fail")
	}
	rotFirst := []*mat.Dense{RotationZ(math.Pi), mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})}
	if _, err := FromOperators(rotFirst); err == nil {
		t.Error("list not starting with the identity should fail")
	}
}

func TestRotationComposition(t *testing.T) {
	// Four quarter turns about any axis compose to the identity.
	for name, r := range map[string]*mat.Dense{
		"x": RotationX(math.Pi / 2),
		"y": RotationY(math.Pi / 2),
		"z": RotationZ(math.Pi / 2),
	} {
		var acc mat.Dense
		acc.CloneFrom(r)
		for i := 0; i < 3; i++ {
			acc.Mul(&acc, r)
		}
		if !mat.EqualApprox(&acc, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 1e-12) {
			t.Errorf("axis %s: four quarter turns are not the identity: %v", name, mat.Formatted(&acc))
		}
	}
}
