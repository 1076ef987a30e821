// Package stability certifies that a clustering is reproducible: it re-fits
// the same matrix under varied seeds and scores each repetition's agreement
// with the production assignment, adjusted for chance. The production
// assignment itself is never touched.
package stability

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hooplab/hoopcluster/internal/cluster"
	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
)

// Options control the validation runs.
type Options struct {
	K          int
	Reps       int
	Seed       int64 // repetition r uses Seed+r+1, recorded in the report
	MaxIter    int
	SortColumn int
	Threshold  float64 // mean agreement at or above this reports Stable
	Workers    int
}

// Validate re-clusters the matrix Reps times and reports the agreement of
// each repetition against the reference labeling. Repetitions share nothing
// and fan out on a bounded worker pool; results key by repetition index, so
// the report is identical regardless of scheduling.
func Validate(ctx context.Context, m *mat.Dense, reference []int, opts Options) (*model.StabilityReport, error) {
	log := logging.New("stability")

	if opts.Reps < 1 {
		return nil, fmt.Errorf("validate stability: need at least 1 repetition, got %d", opts.Reps)
	}
	rows, _ := m.Dims()
	if len(reference) != rows {
		return nil, fmt.Errorf("validate stability: %d reference labels for %d rows", len(reference), rows)
	}

	seeds := make([]int64, opts.Reps)
	agreements := make([]float64, opts.Reps)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r := 0; r < opts.Reps; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			seed := opts.Seed + int64(r) + 1
			res, err := cluster.Fit(m, opts.K, cluster.Options{
				Seed:       seed,
				MaxIter:    opts.MaxIter,
				SortColumn: opts.SortColumn,
			})
			if err != nil {
				return fmt.Errorf("stability repetition %d: %w", r, err)
			}
			ari, err := AdjustedRandIndex(reference, res.Labels)
			if err != nil {
				return fmt.Errorf("stability repetition %d: %w", r, err)
			}
			seeds[r] = seed
			agreements[r] = ari
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &model.StabilityReport{
		Reps:       opts.Reps,
		Seeds:      seeds,
		Agreements: agreements,
		Mean:       stat.Mean(agreements, nil),
		Min:        floatsMin(agreements),
		Max:        floatsMax(agreements),
		Std:        stat.PopStdDev(agreements, nil),
		Threshold:  opts.Threshold,
	}
	report.Stable = report.Mean >= opts.Threshold

	log.Info("stability measured",
		"reps", report.Reps,
		"mean_agreement", report.Mean,
		"min_agreement", report.Min,
		"stable", report.Stable)
	return report, nil
}

// AdjustedRandIndex scores the agreement of two labelings of the same
// population, corrected for chance: 1 means identical partitions (label
// names aside), values near 0 mean no more agreement than random, negative
// values less than random.
func AdjustedRandIndex(a, b []int) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("adjusted rand index: label lengths differ (%d vs %d)", len(a), len(b))
	}
	n := len(a)
	if n == 0 {
		return 0, fmt.Errorf("adjusted rand index: empty labelings")
	}
	if n == 1 {
		// One point has one possible partition.
		return 1, nil
	}

	ka, kb := 0, 0
	for i := 0; i < n; i++ {
		if a[i] < 0 || b[i] < 0 {
			return 0, fmt.Errorf("adjusted rand index: negative label at %d", i)
		}
		if a[i] >= ka {
			ka = a[i] + 1
		}
		if b[i] >= kb {
			kb = b[i] + 1
		}
	}

	// Contingency table and its margins.
	table := make([]int, ka*kb)
	rowSum := make([]int, ka)
	colSum := make([]int, kb)
	for i := 0; i < n; i++ {
		table[a[i]*kb+b[i]]++
		rowSum[a[i]]++
		colSum[b[i]]++
	}

	comb2 := func(x int) float64 { return float64(x) * float64(x-1) / 2 }

	index := 0.0
	for _, c := range table {
		index += comb2(c)
	}
	sumA, sumB := 0.0, 0.0
	for _, c := range rowSum {
		sumA += comb2(c)
	}
	for _, c := range colSum {
		sumB += comb2(c)
	}

	expected := sumA * sumB / comb2(n)
	maxIndex := (sumA + sumB) / 2
	denom := maxIndex - expected
	if denom == 0 {
		// Both partitions are trivial in the same way (all one cluster,
		// or all singletons): perfect agreement.
		return 1, nil
	}
	return (index - expected) / denom, nil
}

func floatsMin(xs []float64) float64 {
	min := xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
	}
	return min
}

func floatsMax(xs []float64) float64 {
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	return max
}
