package conformal

import (
	"math"
	"testing"
)

func TestKernelWeightZeroBandwidth(t *testing.T) {
	if w := kernelWeight([]float64{1, 2}, []float64{100, -3}, 0); w != 1 {
		t.Fatalf("expected weight 1 with zero bandwidth, got %v", w)
	}
}

func TestKernelWeightDimensionMismatch(t *testing.T) {
	if w := kernelWeight([]float64{1, 2}, []float64{1, 2, 3}, 1.0); w != 0 {
		t.Fatalf("expected zero weight on dim mismatch, got %v", w)
	}
}

func TestKernelWeightDecaysWithDistance(t *testing.T) {
	q := []float64{0, 0}
	near := kernelWeight(q, []float64{0.1, 0}, 1.0)
	far := kernelWeight(q, []float64{3, 0}, 1.0)
	if near <= far {
		t.Fatalf("expected near weight > far weight, got %v <= %v", near, far)
	}
	if self := kernelWeight(q, q, 1.0); self != 1 {
		t.Fatalf("expected self weight 1, got %v", self)
	}
}

func TestWeightedQuantileUniformEqualsEmpirical(t *testing.T) {
	scores := []float64{3, 1, 4, 1.5, 9, 2.6, 5, 3.5, 8, 7}
	weights := make([]float64, len(scores))
	for i := range weights {
		weights[i] = 1
	}

	cases := []struct {
		level float64
		want  float64
	}{
		{0.1, 1},
		{0.5, 3.5},
		{0.9, 8},
		{1.0, 9},
	}
	for _, c := range cases {
		got, ok := weightedQuantile(scores, weights, c.level)
		if !ok {
			t.Fatalf("level %v: expected ok", c.level)
		}
		if got != c.want {
			t.Fatalf("level %v: got %v want %v", c.level, got, c.want)
		}
	}
}

func TestWeightedQuantileSkewedWeights(t *testing.T) {
	scores := []float64{0.1, 0.5, 0.9}
	weights := []float64{0.01, 0.01, 10}
	got, ok := weightedQuantile(scores, weights, 0.5)
	if !ok || got != 0.9 {
		t.Fatalf("expected dominant-weight score 0.9, got %v (ok=%v)", got, ok)
	}
}

func TestWeightedQuantileZeroTotalWeight(t *testing.T) {
	if _, ok := weightedQuantile([]float64{1, 2}, []float64{0, 0}, 0.9); ok {
		t.Fatal("expected not ok with zero total weight")
	}
}

func TestWeightedQuantileNearOneLevel(t *testing.T) {
	scores := []float64{1, 2, 3}
	weights := []float64{1, 1, 1}
	got, ok := weightedQuantile(scores, weights, 1-1e-12)
	if !ok || math.Abs(got-3) > 1e-9 {
		t.Fatalf("expected max score at level ~1, got %v (ok=%v)", got, ok)
	}
}
