package cluster

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
)

// ScanOptions control the model-selection scan over candidate cluster counts.
type ScanOptions struct {
	KMin, KMax int
	Seed       int64
	MaxIter    int
	SortColumn int
	Workers    int // concurrent candidate fits; minimum 1
}

// ScanResult is the ordered validity table plus the selection.
type ScanResult struct {
	Rows      []model.KScanRow // ascending K
	BestK     int
	BestScore float64
}

// Scan fits every candidate K and picks the silhouette maximizer, smaller K
// winning ties. Candidate fits share nothing and fan out on a bounded worker
// pool; each derives its seed as Seed+K, so the outcome is independent of
// scheduling order.
func Scan(ctx context.Context, m *mat.Dense, opts ScanOptions) (*ScanResult, error) {
	log := logging.New("selector")

	if opts.KMax < opts.KMin {
		return nil, fmt.Errorf("scan: empty candidate range [%d, %d]", opts.KMin, opts.KMax)
	}
	if err := ValidateMatrix(m, opts.KMin); err != nil {
		return nil, err
	}
	n, _ := m.Dims()

	// ValidateMatrix guarantees n >= KMin, so at least one candidate survives.
	candidates := make([]int, 0, opts.KMax-opts.KMin+1)
	for k := opts.KMin; k <= opts.KMax; k++ {
		if k > n {
			log.Warn("skipping candidate beyond population", "k", k, "players", n)
			continue
		}
		candidates = append(candidates, k)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	rows := make([]model.KScanRow, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, k := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Fit(m, k, Options{
				Seed:       opts.Seed + int64(k),
				MaxIter:    opts.MaxIter,
				SortColumn: opts.SortColumn,
			})
			if err != nil {
				return fmt.Errorf("fit candidate k=%d: %w", k, err)
			}
			rows[i] = model.KScanRow{
				K:         k,
				Score:     Silhouette(m, res.Labels, k),
				Converged: res.Model.Converged,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := selectBest(rows)
	log.Info("cluster count selected", "k", best.K, "silhouette", best.Score)

	return &ScanResult{Rows: rows, BestK: best.K, BestScore: best.Score}, nil
}

// selectBest returns the score maximizer; rows arrive in ascending K, so a
// strict comparison lets the smaller K keep ties.
func selectBest(rows []model.KScanRow) model.KScanRow {
	best := rows[0]
	for _, row := range rows[1:] {
		if row.Score > best.Score {
			best = row
		}
	}
	return best
}
