package transform

import (
	"math"
	"math/rand"
	"testing"
)

func randomGrid(n, dim int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	size := n * n
	if dim == 3 {
		size *= n
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return data
}

func TestForwardDCIsMean(t *testing.T) {
	for _, dim := range []int{2, 3} {
		data := randomGrid(8, dim, 1)
		sum := 0.0
		for _, v := range data {
			sum += v
		}
		mean := sum / float64(len(data))

		h := New(8, dim).Forward(data)
		dc := h.Data[0]
		if math.Abs(real(dc)-mean) > 1e-12 || math.Abs(imag(dc)) > 1e-12 {
			t.Errorf("dim %d: DC = %v, want %v", dim, dc, mean)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		n, dim int
	}{
		{8, 2}, {16, 2}, {8, 3}, {9, 3},
	} {
		data := randomGrid(tc.n, tc.dim, int64(tc.n*tc.dim))
		tr := New(tc.n, tc.dim)
		back := tr.Inverse(tr.Forward(data), 1)

		for i := range data {
			if math.Abs(back[i]-data[i]) > 1e-10 {
				t.Errorf("n=%d dim=%d: sample %d round-tripped to %v, want %v",
					tc.n, tc.dim, i, back[i], data[i])
				break
			}
		}
	}
}

func TestInverseParallelMatchesSerial(t *testing.T) {
	data := randomGrid(16, 3, 7)
	tr := New(16, 3)
	h := tr.Forward(data)

	serial := tr.Inverse(h, 1)
	parallel := tr.Inverse(h, 4)

	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("sample %d differs between worker counts: %v vs %v",
				i, serial[i], parallel[i])
		}
	}
}

func TestDeltaSpectrumIsFlat(t *testing.T) {
	n := 8
	data := make([]float64, n*n)
	data[0] = 1

	h := New(n, 2).Forward(data)
	want := 1.0 / float64(n*n)
	for idx, v := range h.Data {
		if math.Abs(real(v)-want) > 1e-12 || math.Abs(imag(v)) > 1e-12 {
			t.Errorf("sample %d = %v, want %v", idx, v, want)
			break
		}
	}
}
