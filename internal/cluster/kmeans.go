// Package cluster fits seeded K-Means models over the scaled feature matrix
// and selects the cluster count by silhouette score.
//
// Determinism contract: every stochastic choice flows from an explicit seed
// through a private generator, so identical input plus identical seed
// reproduces assignments and centroids bit-for-bit.
package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hooplab/hoopcluster/internal/model"
)

// DegenerateInputError marks a population that cannot be clustered at all:
// fatal for the whole pipeline run, surfaced before any fitting starts.
type DegenerateInputError struct {
	Reason string
}

func (e *DegenerateInputError) Error() string {
	return "degenerate clustering input: " + e.Reason
}

// ValidateMatrix rejects inputs no candidate K could cluster: an empty
// population, fewer rows than the smallest candidate, or a matrix where
// fewer than two columns carry any variance.
func ValidateMatrix(m *mat.Dense, minK int) error {
	if m == nil {
		return &DegenerateInputError{Reason: "empty population"}
	}
	rows, cols := m.Dims()
	if rows == 0 {
		return &DegenerateInputError{Reason: "empty population"}
	}
	if rows < minK {
		return &DegenerateInputError{Reason: fmt.Sprintf("%d players, smallest candidate K is %d", rows, minK)}
	}

	varying := 0
	for j := 0; j < cols; j++ {
		first := m.At(0, j)
		for i := 1; i < rows; i++ {
			if m.At(i, j) != first {
				varying++
				break
			}
		}
	}
	if varying < 2 {
		return &DegenerateInputError{Reason: fmt.Sprintf("only %d non-constant feature columns", varying)}
	}
	return nil
}

// Options control one K-Means fit.
type Options struct {
	Seed    int64
	MaxIter int
	// SortColumn is the centroid coordinate used for canonical label
	// ordering: labels are assigned by descending value on this column.
	SortColumn int
}

// Result bundles the fitted model with the per-row outcome.
type Result struct {
	Model  model.ClusterModel
	Labels []int     // canonical label per input row
	Dists  []float64 // Euclidean distance to the assigned centroid
}

// Fit runs seeded K-Means++ on the matrix rows. Assignments iterate until
// unchanged or MaxIter; hitting the cap leaves Converged false on the model
// rather than failing. An iteration that empties a cluster reseeds only that
// centroid with the point farthest from its current assignment.
func Fit(m *mat.Dense, k int, opts Options) (*Result, error) {
	if m == nil {
		return nil, &DegenerateInputError{Reason: "empty population"}
	}
	n, dim := m.Dims()
	if n == 0 {
		return nil, &DegenerateInputError{Reason: "empty population"}
	}
	if k < 1 {
		return nil, fmt.Errorf("fit k-means: k must be positive, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("fit k-means: k=%d exceeds population %d", k, n)
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 300
	}
	if opts.SortColumn < 0 || opts.SortColumn >= dim {
		return nil, fmt.Errorf("fit k-means: sort column %d out of range", opts.SortColumn)
	}

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = m.RawRowView(i)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centroids := seedCentroids(rows, k, rng)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	converged := false
	iters := 0
	for iter := 0; iter < opts.MaxIter; iter++ {
		iters = iter + 1

		// Assignment step.
		changed := false
		for i, row := range rows {
			best := nearest(row, centroids)
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			converged = true
			break
		}

		// Update step.
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, row := range rows {
			c := labels[i]
			counts[c]++
			floats.Add(sums[c], row)
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Reseed the empty centroid with the point farthest
				// from its assigned centroid; the run continues. The
				// point moves to the reseeded cluster at once so a
				// second empty cluster cannot claim it too.
				far := farthestPoint(rows, labels, centroids)
				copy(centroids[c], rows[far])
				labels[far] = c
				continue
			}
			floats.ScaleTo(centroids[c], 1/float64(counts[c]), sums[c])
		}
	}

	canonical := canonicalize(centroids, labels, opts.SortColumn)

	dists := make([]float64, n)
	for i, row := range rows {
		dists[i] = floats.Distance(row, canonical[labels[i]], 2)
	}

	return &Result{
		Model: model.ClusterModel{
			K:          k,
			Centroids:  canonical,
			Seed:       opts.Seed,
			Iterations: iters,
			Converged:  converged,
		},
		Labels: labels,
		Dists:  dists,
	}, nil
}

// seedCentroids picks k starting centroids k-means++ style: the first
// uniformly, the rest weighted by squared distance to the nearest chosen one.
func seedCentroids(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	dim := len(rows[0])

	centroids := make([][]float64, k)
	centroids[0] = append(make([]float64, 0, dim), rows[rng.Intn(n)]...)

	dists := make([]float64, n)
	for c := 1; c < k; c++ {
		total := 0.0
		for i, row := range rows {
			min := math.MaxFloat64
			for _, cent := range centroids[:c] {
				if d := sqDist(row, cent); d < min {
					min = d
				}
			}
			dists[i] = min
			total += min
		}

		chosen := 0
		if total == 0 {
			// All points already coincide with a centroid.
			chosen = rng.Intn(n)
		} else {
			threshold := rng.Float64() * total
			cum := 0.0
			for i, d := range dists {
				cum += d
				if cum >= threshold {
					chosen = i
					break
				}
			}
		}
		centroids[c] = append(make([]float64, 0, dim), rows[chosen]...)
	}
	return centroids
}

// Assign returns the nearest centroid's label and the Euclidean distance to
// it for one scaled row. Scoring new players against a stored model goes
// through here; nothing is refitted.
func Assign(row []float64, centroids [][]float64) (int, float64) {
	label := nearest(row, centroids)
	return label, floats.Distance(row, centroids[label], 2)
}

// nearest returns the index of the closest centroid by squared Euclidean
// distance, lowest index winning ties.
func nearest(row []float64, centroids [][]float64) int {
	best := 0
	bestDist := sqDist(row, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := sqDist(row, centroids[c]); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// farthestPoint finds the row with the greatest distance to its assigned
// centroid, lowest index winning ties.
func farthestPoint(rows [][]float64, labels []int, centroids [][]float64) int {
	far, farDist := 0, -1.0
	for i, row := range rows {
		if labels[i] < 0 {
			continue
		}
		if d := sqDist(row, centroids[labels[i]]); d > farDist {
			farDist = d
			far = i
		}
	}
	return far
}

// canonicalize renumbers clusters deterministically: descending centroid
// value on sortCol, full-vector lexicographic comparison breaking ties.
// Labels are rewritten in place; the reordered centroids are returned. Runs
// converging to equivalent structure thus present identical labels.
func canonicalize(centroids [][]float64, labels []int, sortCol int) [][]float64 {
	k := len(centroids)
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}

	less := func(a, b int) bool {
		ca, cb := centroids[a], centroids[b]
		if ca[sortCol] != cb[sortCol] {
			return ca[sortCol] > cb[sortCol]
		}
		for d := range ca {
			if ca[d] != cb[d] {
				return ca[d] > cb[d]
			}
		}
		return a < b
	}
	// Insertion sort keeps this dependency-light and k is small.
	for i := 1; i < k; i++ {
		for j := i; j > 0 && less(order[j], order[j-1]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	remap := make([]int, k)
	sorted := make([][]float64, k)
	for newLabel, old := range order {
		remap[old] = newLabel
		sorted[newLabel] = centroids[old]
	}
	for i, l := range labels {
		labels[i] = remap[l]
	}
	return sorted
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
