package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Silhouette scores a labeling in [-1, 1]: per point, cohesion a is the mean
// distance to its own cluster (excluding itself), separation b the lowest
// mean distance to any other cluster, and the point scores (b-a)/max(a,b).
// Points in singleton clusters score 0. The result is the mean over all
// points; higher means tighter, better separated clusters.
func Silhouette(m *mat.Dense, labels []int, k int) float64 {
	n, _ := m.Dims()
	if n == 0 || k < 2 {
		return 0
	}

	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = m.RawRowView(i)
	}

	total := 0.0
	sums := make([]float64, k)
	for i := 0; i < n; i++ {
		own := labels[i]
		if sizes[own] <= 1 {
			continue // singleton scores 0
		}

		for c := range sums {
			sums[c] = 0
		}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sums[labels[j]] += floats.Distance(rows[i], rows[j], 2)
		}

		a := sums[own] / float64(sizes[own]-1)
		b := math.MaxFloat64
		for c := 0; c < k; c++ {
			if c == own || sizes[c] == 0 {
				continue
			}
			if mean := sums[c] / float64(sizes[c]); mean < b {
				b = mean
			}
		}

		if b == math.MaxFloat64 {
			continue // no other populated cluster to compare against
		}
		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}
