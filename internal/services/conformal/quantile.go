package conformal

import (
	"math"
	"sort"
)

// kernelWeight is a Gaussian kernel on the Euclidean distance between a query
// feature vector and a calibration feature vector. A zero bandwidth disables
// weighting (all samples weigh 1). A length mismatch is treated as infinite
// distance: the sample gets zero weight.
func kernelWeight(query, sample []float64, bandwidth float64) float64 {
	if len(query) != len(sample) {
		return 0
	}
	if bandwidth == 0 {
		return 1
	}
	d2 := 0.0
	for i := range query {
		d := query[i] - sample[i]
		d2 += d * d
	}
	return math.Exp(-d2 / (2 * bandwidth * bandwidth))
}

// weightedQuantile returns the smallest score whose cumulative weight reaches
// level x totalWeight, scanning (score, weight) pairs in ascending score
// order. With uniform weights this equals the unweighted empirical quantile.
// The second return is false when total weight is zero (every sample
// mismatched the query dimension).
func weightedQuantile(scores, weights []float64, level float64) (float64, bool) {
	if len(scores) == 0 || len(scores) != len(weights) {
		return 0, false
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0, false
	}

	type pair struct{ score, weight float64 }
	pairs := make([]pair, len(scores))
	for i := range scores {
		pairs[i] = pair{scores[i], weights[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	target := level * total
	cum := 0.0
	for _, pr := range pairs {
		cum += pr.weight
		if cum >= target {
			return pr.score, true
		}
	}
	// floating point slack: level ~ 1.0 can leave target marginally above cum
	return pairs[len(pairs)-1].score, true
}
