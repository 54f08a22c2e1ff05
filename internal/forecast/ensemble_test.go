package forecast

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{20, 2.8},
		{40, 4.6},
		{50, 5.5},
		{80, 8.2},
		{100, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if !math.IsNaN(percentile(nil, 50)) {
		t.Error("percentile of empty slice should be NaN")
	}
}

func TestFitStump_FindsSplit(t *testing.T) {
	// Feature 1 splits cleanly at its 40th percentile; feature 0 is noise.
	var X [][]float64
	var y []float64
	for i := range 20 {
		x1 := float64(i)
		target := 1.0
		if i >= 8 {
			target = 9.0
		}
		X = append(X, []float64{float64(i % 3), x1})
		y = append(y, target)
	}
	s := fitStump(X, y)
	if s.feature != 1 {
		t.Fatalf("feature = %d, want 1", s.feature)
	}
	if got := s.predict([]float64{0, 2}); got != 1 {
		t.Errorf("left prediction = %v, want 1", got)
	}
	if got := s.predict([]float64{0, 18}); got != 9 {
		t.Errorf("right prediction = %v, want 9", got)
	}
}

func TestFitStump_ConstantFeatures(t *testing.T) {
	X := [][]float64{{1}, {1}, {1}}
	y := []float64{2, 4, 6}
	s := fitStump(X, y)
	if s.feature != -1 {
		t.Errorf("feature = %d, want no split", s.feature)
	}
	if got := s.predict([]float64{5}); got != 4 {
		t.Errorf("predict = %v, want mean 4", got)
	}
}

func TestRegressor(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var X [][]float64
	var y []float64
	for i := range 200 {
		x := float64(i)
		X = append(X, []float64{x})
		if x < 100 {
			y = append(y, 10)
		} else {
			y = append(y, 20)
		}
	}
	r := FitRegressor(X, y, 3, rng)
	if len(r.stumps) != 3 || len(r.alphas) != 3 {
		t.Fatalf("trained %d stumps", len(r.stumps))
	}
	lo := r.Predict([]float64{5})
	hi := r.Predict([]float64{195})
	if lo >= hi {
		t.Errorf("Predict low=%v high=%v, want low < high", lo, hi)
	}
	if lo < 10 || hi > 20 {
		t.Errorf("predictions outside target range: %v, %v", lo, hi)
	}
}

func TestRegressor_Empty(t *testing.T) {
	r := FitRegressor(nil, nil, 3, rand.New(rand.NewPCG(1, 1)))
	if got := r.Predict([]float64{1}); got != 0 {
		t.Errorf("Predict = %v, want 0", got)
	}
}

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(3, 4))
}
