// Package blob provides the tabulated Kaiser-Bessel blob used as the
// frequency-space scatter kernel and as the real-space deconvolution filter
// during reconstruction.
//
// The blob is a spherically symmetric, compactly supported basis function.
// Two radial lookup tables are precomputed at construction: the blob value
// itself, sampled over [0, radius] and used as the scatter footprint, and the
// blob's Fourier transform, sampled over [0, 0.5) in reciprocal units and used
// for gridding correction.
package blob

import (
	"fmt"
	"math"
)

// Table holds the precomputed radial lookups for one blob parameterization.
type Table struct {
	// Radius is the blob support radius in (padded) voxels.
	Radius float64

	// Alpha is the Kaiser-Bessel shape parameter.
	Alpha float64

	// Order is the polynomial order of the blob.
	Order int

	ftSampling float64
	ft         []float64

	valSampling float64
	val         []float64
}

// NewTable precomputes blob lookups with nrElem samples per table.
// Orders 0 and 2 are supported, matching the analytic transforms available
// for the Kaiser-Bessel family.
func NewTable(radius, alpha float64, order, nrElem int) (*Table, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("blob: radius must be positive, got %g", radius)
	}
	if nrElem < 2 {
		return nil, fmt.Errorf("blob: need at least 2 table elements, got %d", nrElem)
	}
	if order != 0 && order != 2 {
		return nil, fmt.Errorf("blob: unsupported order %d (must be 0 or 2)", order)
	}

	t := &Table{
		Radius:      radius,
		Alpha:       alpha,
		Order:       order,
		ftSampling:  0.5 / float64(nrElem),
		ft:          make([]float64, nrElem),
		valSampling: radius / float64(nrElem),
		val:         make([]float64, nrElem),
	}
	for i := range t.ft {
		t.ft[i] = kaiserFourierValue(float64(i)*t.ftSampling, radius, alpha, order)
	}
	for i := range t.val {
		t.val[i] = kaiserValue(float64(i)*t.valSampling, radius, alpha, order)
	}
	return t, nil
}

// FT returns the tabulated Fourier transform of the blob at reciprocal
// radius w. Radii at or beyond 0.5 return 0.
func (t *Table) FT(w float64) float64 {
	idx := int(math.Abs(w) / t.ftSampling)
	if idx >= len(t.ft) {
		return 0
	}
	return t.ft[idx]
}

// Value returns the tabulated blob value at radius r.
// Radii at or beyond the support radius return 0.
func (t *Table) Value(r float64) float64 {
	idx := int(math.Abs(r) / t.valSampling)
	if idx >= len(t.val) {
		return 0
	}
	return t.val[idx]
}

// kaiserValue evaluates the Kaiser-Bessel blob of order 0 or 2 at radius r.
func kaiserValue(r, a, alpha float64, order int) float64 {
	rda := r / a
	rdas := rda * rda
	if rda > 1 {
		return 0
	}
	arg := alpha * math.Sqrt(1-rdas)
	switch order {
	case 0:
		return bessi0(arg) / bessi0(alpha)
	case 2:
		w := 1 - rdas
		if alpha != 0 {
			w *= bessi2(arg) / bessi2(alpha)
		}
		return w
	}
	return 0
}

// kaiserFourierValue evaluates the analytic 3D Fourier transform of the
// Kaiser-Bessel blob at reciprocal radius w, for orders 0 and 2.
func kaiserFourierValue(w, a, alpha float64, order int) float64 {
	taw := 2 * math.Pi * a * w
	sigma := math.Sqrt(math.Abs(alpha*alpha - taw*taw))
	switch order {
	case 0:
		if taw > alpha {
			return math.Pow(2*math.Pi, 1.5) * a * a * a * alpha * alpha *
				bessj3o5(sigma) / (bessi0(alpha) * math.Pow(sigma, 3.5))
		}
		return math.Pow(2*math.Pi, 1.5) * a * a * a * alpha * alpha *
			bessi3o5(sigma) / (bessi0(alpha) * math.Pow(sigma, 3.5))
	case 2:
		if taw > alpha {
			return math.Pow(2*math.Pi, 1.5) * a * a * a * math.Pow(alpha, 4) *
				bessj5o5(sigma) / (bessi4(alpha) * math.Pow(sigma, 5.5))
		}
		return math.Pow(2*math.Pi, 1.5) * a * a * a * math.Pow(alpha, 4) *
			bessi5o5(sigma) / (bessi4(alpha) * math.Pow(sigma, 5.5))
	}
	return 0
}

// Modified Bessel functions of the first kind, integer order, via the
// standard polynomial approximations (Abramowitz & Stegun 9.8).

func bessi0(x float64) float64 {
	ax := math.Abs(x)
	if ax < 3.75 {
		y := x / 3.75
		y *= y
		return 1.0 + y*(3.5156229+y*(3.0899424+y*(1.2067492+
			y*(0.2659732+y*(0.360768e-1+y*0.45813e-2)))))
	}
	y := 3.75 / ax
	return (math.Exp(ax) / math.Sqrt(ax)) * (0.39894228 + y*(0.1328592e-1+
		y*(0.225319e-2+y*(-0.157565e-2+y*(0.916281e-2+y*(-0.2057706e-1+
			y*(0.2635537e-1+y*(-0.1647633e-1+y*0.392377e-2))))))))
}

func bessi1(x float64) float64 {
	ax := math.Abs(x)
	var ans float64
	if ax < 3.75 {
		y := x / 3.75
		y *= y
		ans = ax * (0.5 + y*(0.87890594+y*(0.51498869+y*(0.15084934+
			y*(0.2658733e-1+y*(0.301532e-2+y*0.32411e-3))))))
	} else {
		y := 3.75 / ax
		a := 0.2282967e-1 + y*(-0.2895312e-1+y*(0.1787654e-1-y*0.420059e-2))
		b := 0.39894228 + y*(-0.3988024e-1+y*(-0.362018e-2+
			y*(0.163801e-2+y*(-0.1031555e-1+y*a))))
		ans = (math.Exp(ax) / math.Sqrt(ax)) * b
	}
	if x < 0 {
		return -ans
	}
	return ans
}

// Higher integer orders follow from the downward index recurrence
// I[n+1](x) = I[n-1](x) - (2n/x) I[n](x).

func bessi2(x float64) float64 {
	if x == 0 {
		return 0
	}
	return bessi0(x) - (2/x)*bessi1(x)
}

func bessi3(x float64) float64 {
	if x == 0 {
		return 0
	}
	return bessi1(x) - (4/x)*bessi2(x)
}

func bessi4(x float64) float64 {
	if x == 0 {
		return 0
	}
	return bessi2(x) - (6/x)*bessi3(x)
}

// Half-integer modified Bessel functions in closed form.

func bessi1o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Sqrt(2/(math.Pi*x)) * (math.Cosh(x) - math.Sinh(x)/x)
}

func bessi2o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Sqrt(2/(math.Pi*x)) *
		(math.Sinh(x) - 3*(math.Cosh(x)-math.Sinh(x)/x)/x)
}

func bessi3o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return bessi1o5(x) - (5/x)*bessi2o5(x)
}

func bessi4o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return bessi2o5(x) - (7/x)*bessi3o5(x)
}

func bessi5o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return bessi3o5(x) - (9/x)*bessi4o5(x)
}

// Half-integer ordinary Bessel functions, from the spherical Bessel closed
// forms and the upward recurrence J[v+1](x) = (2v/x) J[v](x) - J[v-1](x).

func bessj0o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Sqrt(2/(math.Pi*x)) * math.Sin(x)
}

func bessj1o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Sqrt(2/(math.Pi*x)) * (math.Sin(x)/x - math.Cos(x))
}

func bessj2o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return (3/x)*bessj1o5(x) - bessj0o5(x)
}

func bessj3o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return (5/x)*bessj2o5(x) - bessj1o5(x)
}

func bessj4o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return (7/x)*bessj3o5(x) - bessj2o5(x)
}

func bessj5o5(x float64) float64 {
	if x == 0 {
		return 0
	}
	return (9/x)*bessj4o5(x) - bessj3o5(x)
}
