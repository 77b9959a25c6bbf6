// Package symmetry represents point-group symmetry as an ordered list of
// rotation operators. Lists are consumed pre-parsed by the reconstruction
// core; constructors for the cyclic and dihedral groups are provided for
// callers that build groups programmatically.
package symmetry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Operator is a single 3x3 rotation of a point group.
type Operator struct {
	R *mat.Dense
}

// List is an ordered set of rotation operators. The first operator is always
// the identity; a list of order 1 denotes no symmetry.
type List struct {
	ops []Operator
}

// Identity returns the trivial group containing only the identity rotation.
func Identity() *List {
	return &List{ops: []Operator{{R: identityMatrix()}}}
}

// Cyclic returns the cyclic group C_n of n rotations about the z axis.
func Cyclic(n int) (*List, error) {
	if n < 1 {
		return nil, fmt.Errorf("symmetry: cyclic group order must be >= 1, got %d", n)
	}
	l := &List{ops: make([]Operator, 0, n)}
	for i := 0; i < n; i++ {
		l.ops = append(l.ops, Operator{R: RotationZ(2 * math.Pi * float64(i) / float64(n))})
	}
	return l, nil
}

// Dihedral returns the dihedral group D_n: the n rotations of C_n composed
// with a two-fold rotation about the x axis, 2n operators in total.
func Dihedral(n int) (*List, error) {
	cn, err := Cyclic(n)
	if err != nil {
		return nil, err
	}
	flip := RotationX(math.Pi)
	l := &List{ops: make([]Operator, 0, 2*n)}
	l.ops = append(l.ops, cn.ops...)
	for _, op := range cn.ops {
		var r mat.Dense
		r.Mul(flip, op.R)
		l.ops = append(l.ops, Operator{R: &r})
	}
	return l, nil
}

// FromOperators builds a list from pre-parsed rotation matrices. The identity
// must come first; each matrix must be 3x3 with determinant close to +1.
func FromOperators(rs []*mat.Dense) (*List, error) {
	if len(rs) == 0 {
		return nil, fmt.Errorf("symmetry: empty operator list")
	}
	l := &List{ops: make([]Operator, 0, len(rs))}
	for idx, r := range rs {
		rows, cols := r.Dims()
		if rows != 3 || cols != 3 {
			return nil, fmt.Errorf("symmetry: operator %d is %dx%d, want 3x3", idx, rows, cols)
		}
		if det := mat.Det(r); math.Abs(det-1) > 1e-6 {
			return nil, fmt.Errorf("symmetry: operator %d has determinant %g, want 1", idx, det)
		}
		l.ops = append(l.ops, Operator{R: r})
	}
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			want := 0.0
			if a == b {
				want = 1
			}
			if math.Abs(rs[0].At(a, b)-want) > 1e-6 {
				return nil, fmt.Errorf("symmetry: first operator must be the identity")
			}
		}
	}
	return l, nil
}

// Order returns the number of operators in the group.
func (l *List) Order() int {
	return len(l.ops)
}

// Operators returns the ordered operator set.
func (l *List) Operators() []Operator {
	return l.ops
}

// RotationZ returns the rotation matrix for angle theta about the z axis.
func RotationZ(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// RotationY returns the rotation matrix for angle theta about the y axis.
func RotationY(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// RotationX returns the rotation matrix for angle theta about the x axis.
func RotationX(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

func identityMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}
