package forecast

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

// stumpPercentiles are the candidate split points tried for every feature.
var stumpPercentiles = []float64{20, 40, 60, 80}

// stump is a one-split regression tree. A stump that found no usable split
// predicts the mean of its training targets on both sides.
type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
}

func (s stump) predict(x []float64) float64 {
	if s.feature < 0 || x[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

func fitStump(X [][]float64, y []float64) stump {
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	if len(y) > 0 {
		mean /= float64(len(y))
	}
	best := stump{feature: -1, left: mean, right: mean}
	if len(X) == 0 {
		return best
	}

	minErr := math.Inf(1)
	col := make([]float64, len(X))
	for f := range X[0] {
		for i, row := range X {
			col[i] = row[f]
		}
		sorted := slices.Clone(col)
		sort.Float64s(sorted)

		var thresholds []float64
		for _, p := range stumpPercentiles {
			t := percentile(sorted, p)
			if !slices.Contains(thresholds, t) {
				thresholds = append(thresholds, t)
			}
		}
		sort.Float64s(thresholds)

		for _, t := range thresholds {
			var lSum, rSum float64
			var lN, rN int
			for i, v := range col {
				if v <= t {
					lSum += y[i]
					lN++
				} else {
					rSum += y[i]
					rN++
				}
			}
			if lN == 0 || rN == 0 {
				continue
			}
			lMean, rMean := lSum/float64(lN), rSum/float64(rN)
			var sse float64
			for i, v := range col {
				d := y[i] - rMean
				if v <= t {
					d = y[i] - lMean
				}
				sse += d * d
			}
			if e := sse / float64(len(y)); e < minErr {
				minErr = e
				best = stump{feature: f, threshold: t, left: lMean, right: rMean}
			}
		}
	}
	return best
}

// percentile interpolates linearly between closest ranks of an ascending
// slice, matching numpy's default method.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Regressor is a boosted ensemble of stumps. Each round trains on a
// bootstrap drawn with the current sample weights, and rows the stump
// predicts badly are up-weighted for the next round.
type Regressor struct {
	stumps []stump
	alphas []float64
}

// FitRegressor trains an ensemble of n stumps.
func FitRegressor(X [][]float64, y []float64, n int, rng *rand.Rand) *Regressor {
	m := len(X)
	r := &Regressor{}
	if m == 0 {
		return r
	}

	weights := uniform(m)
	sampleX := make([][]float64, m)
	sampleY := make([]float64, m)
	preds := make([]float64, m)

	for range n {
		if !validWeights(weights) {
			weights = uniform(m)
		}
		cdf := cumulative(weights)
		for i := range m {
			j := draw(cdf, rng)
			sampleX[i], sampleY[i] = X[j], y[j]
		}

		s := fitStump(sampleX, sampleY)

		var werr float64
		for i, row := range X {
			preds[i] = s.predict(row)
			d := y[i] - preds[i]
			werr += weights[i] * d * d
		}
		werr = math.Max(werr, 1e-6)
		alpha := 1 / werr

		var total float64
		for i := range weights {
			d := y[i] - preds[i]
			influence := min(max(alpha*d*d, 0), 10)
			weights[i] *= math.Exp(influence)
			total += weights[i]
		}
		for i := range weights {
			weights[i] /= total
		}

		r.stumps = append(r.stumps, s)
		r.alphas = append(r.alphas, alpha)
	}
	return r
}

// Predict returns the alpha-weighted mean of the stump predictions.
func (r *Regressor) Predict(x []float64) float64 {
	var total, alphaSum float64
	for i, s := range r.stumps {
		total += r.alphas[i] * s.predict(x)
		alphaSum += r.alphas[i]
	}
	if alphaSum == 0 {
		return 0
	}
	return total / alphaSum
}

func uniform(m int) []float64 {
	w := make([]float64, m)
	for i := range w {
		w[i] = 1 / float64(m)
	}
	return w
}

func validWeights(w []float64) bool {
	var sum float64
	for _, v := range w {
		if math.IsNaN(v) {
			return false
		}
		sum += v
	}
	return sum != 0 && !math.IsInf(sum, 0)
}

func cumulative(w []float64) []float64 {
	cdf := make([]float64, len(w))
	var acc float64
	for i, v := range w {
		acc += v
		cdf[i] = acc
	}
	return cdf
}

func draw(cdf []float64, rng *rand.Rand) int {
	u := rng.Float64() * cdf[len(cdf)-1]
	i := sort.SearchFloat64s(cdf, u)
	if i >= len(cdf) {
		i = len(cdf) - 1
	}
	return i
}
