// Package pipeline drives a full profiling run end to end: fold raw records
// into player totals, derive and standardize features, select the cluster
// count, fit the production model, project for inspection and certify
// stability. Stages run strictly in order; each one's output is the next
// one's input, and a failure anywhere abandons the whole run.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hooplab/hoopcluster/internal/aggregate"
	"github.com/hooplab/hoopcluster/internal/cluster"
	"github.com/hooplab/hoopcluster/internal/features"
	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
	"github.com/hooplab/hoopcluster/internal/pca"
	"github.com/hooplab/hoopcluster/internal/scale"
	"github.com/hooplab/hoopcluster/internal/stability"
	"github.com/hooplab/hoopcluster/internal/storage"
)

// Options carry every knob of one run. The cmd layer fills them from config.
type Options struct {
	Label string

	Exposure   float64
	MinGames   int
	MinMinutes float64

	KMin    int
	KMax    int
	Seed    int64
	MaxIter int

	StabilityReps      int
	StabilityThreshold float64

	CorrelationCutoff float64
	PCAComponents     int
	Workers           int
}

// Result is everything one run produced.
type Result struct {
	RunID     string
	CreatedAt string
	Label     string

	AggregateSummary aggregate.Summary
	FeatureSummary   features.Summary

	// Features holds every derived row, low-exposure players included;
	// only rows with playing time enter the clustering matrix.
	Features     []model.FeatureVector
	Correlations []features.Correlation

	Scaler      model.ScalerParams
	Scan        *cluster.ScanResult
	Model       *model.ClusterModel
	Assignments []model.ClusterAssignment
	Projections []model.Projection
	Variance    []model.VariancePoint
	Stability   *model.StabilityReport
}

// Run executes the full pipeline over the given records.
func Run(ctx context.Context, records []model.RawRecord, opts Options) (*Result, error) {
	log := logging.New("pipeline")
	start := time.Now()

	aggs, aggSum := aggregate.Fold(records, aggregate.Options{
		MinGames:   opts.MinGames,
		MinMinutes: opts.MinMinutes,
	})
	if len(aggs) == 0 {
		return nil, fmt.Errorf("run: no players left after population filters")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fvs, featSum := features.DeriveAll(aggs, opts.Exposure)

	// Zero-minute players keep their feature rows for inspection but stay
	// out of the matrix: their rates are definitional zeros, not behavior.
	clustered := make([]model.FeatureVector, 0, len(fvs))
	for i := range fvs {
		if fvs[i].LowExposure {
			log.Warn("excluding low-exposure player from clustering",
				"player_id", fvs[i].PlayerID, "name", fvs[i].Name)
			continue
		}
		clustered = append(clustered, fvs[i])
	}

	corrs := features.Correlations(clustered)
	for _, c := range corrs {
		if math.Abs(c.R) >= opts.CorrelationCutoff {
			log.Info("zone feature stays exploration-only",
				"eda", c.EDAColumn, "tracks", c.ClusteringColumn, "r", c.R)
		}
	}

	m, ids := features.Matrix(clustered)
	if err := cluster.ValidateMatrix(m, opts.KMin); err != nil {
		return nil, err
	}

	scaler, err := scale.Fit(m, model.ClusteringColumns)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	scaled, err := scale.Transform(m, scaler)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortCol := model.ColumnIndex("oer")
	scan, err := cluster.Scan(ctx, scaled, cluster.ScanOptions{
		KMin:       opts.KMin,
		KMax:       opts.KMax,
		Seed:       opts.Seed,
		MaxIter:    opts.MaxIter,
		SortColumn: sortCol,
		Workers:    opts.Workers,
	})
	if err != nil {
		return nil, err
	}

	// The production fit re-derives the winning candidate's seed, so it
	// reproduces the scanned fit exactly.
	finalSeed := opts.Seed + int64(scan.BestK)
	final, err := cluster.Fit(scaled, scan.BestK, cluster.Options{
		Seed:       finalSeed,
		MaxIter:    opts.MaxIter,
		SortColumn: sortCol,
	})
	if err != nil {
		return nil, err
	}
	final.Model.Columns = scaler.Columns
	final.Model.Validity = scan.BestScore
	if !final.Model.Converged {
		log.Warn("production fit hit the iteration cap",
			"k", final.Model.K, "iterations", final.Model.Iterations)
	}

	assignments := make([]model.ClusterAssignment, len(clustered))
	for i := range clustered {
		assignments[i] = model.ClusterAssignment{
			PlayerID: clustered[i].PlayerID,
			Name:     clustered[i].Name,
			Label:    final.Labels[i],
			Distance: final.Dists[i],
		}
	}

	proj, err := pca.Project(scaled, ids, opts.PCAComponents)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stab, err := stability.Validate(ctx, scaled, final.Labels, stability.Options{
		K:          scan.BestK,
		Reps:       opts.StabilityReps,
		Seed:       finalSeed,
		MaxIter:    opts.MaxIter,
		SortColumn: sortCol,
		Threshold:  opts.StabilityThreshold,
		Workers:    opts.Workers,
	})
	if err != nil {
		return nil, err
	}
	if !stab.Stable {
		log.Warn("assignments are not stable under reseeding",
			"mean_agreement", stab.Mean, "threshold", stab.Threshold)
	}

	res := &Result{
		RunID:            uuid.NewString(),
		CreatedAt:        time.Now().UTC().Format("2006-01-02 15:04:05"),
		Label:            opts.Label,
		AggregateSummary: aggSum,
		FeatureSummary:   featSum,
		Features:         fvs,
		Correlations:     corrs,
		Scaler:           scaler,
		Scan:             scan,
		Model:            &final.Model,
		Assignments:      assignments,
		Projections:      proj.Projections,
		Variance:         proj.Variance,
		Stability:        stab,
	}

	log.Info("run complete",
		"run_id", res.RunID,
		"players", len(assignments),
		"k", final.Model.K,
		"validity", final.Model.Validity,
		"stable", stab.Stable,
		"elapsed", time.Since(start))
	return res, nil
}

// Summary condenses the result into the row shape the run listing uses.
func (r *Result) Summary() *model.RunSummary {
	return &model.RunSummary{
		RunID:         r.RunID,
		CreatedAt:     r.CreatedAt,
		Label:         r.Label,
		Players:       len(r.Assignments),
		K:             r.Model.K,
		Validity:      r.Model.Validity,
		Converged:     r.Model.Converged,
		StabilityMean: r.Stability.Mean,
		Stable:        r.Stability.Stable,
		Seed:          r.Model.Seed,
	}
}

// ToBundle maps the result onto the storage layout.
func (r *Result) ToBundle() *storage.RunBundle {
	return &storage.RunBundle{
		RunID:       r.RunID,
		CreatedAt:   r.CreatedAt,
		Label:       r.Label,
		Features:    r.Features,
		Scaler:      r.Scaler,
		Model:       r.Model,
		Assignments: r.Assignments,
		KScan:       r.Scan.Rows,
		Projections: r.Projections,
		Variance:    r.Variance,
		Stability:   r.Stability,
	}
}

// ScoreNew assigns unseen players to a stored model's nearest centroids. The
// scaler and centroids are reused as fitted; nothing here mutates the run.
func ScoreNew(records []model.RawRecord, scaler model.ScalerParams, cm *model.ClusterModel, opts Options) ([]model.ClusterAssignment, error) {
	log := logging.New("pipeline")

	if cm == nil || len(cm.Centroids) == 0 {
		return nil, fmt.Errorf("score: empty cluster model")
	}

	aggs, _ := aggregate.Fold(records, aggregate.Options{
		MinGames:   opts.MinGames,
		MinMinutes: opts.MinMinutes,
	})
	if len(aggs) == 0 {
		return nil, fmt.Errorf("score: no players left after population filters")
	}
	fvs, _ := features.DeriveAll(aggs, opts.Exposure)

	var out []model.ClusterAssignment
	for i := range fvs {
		if fvs[i].LowExposure {
			log.Warn("skipping low-exposure player",
				"player_id", fvs[i].PlayerID, "name", fvs[i].Name)
			continue
		}
		row, err := scale.TransformRow(fvs[i].ClusteringRow(), scaler)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", fvs[i].PlayerID, err)
		}
		if len(row) != len(cm.Centroids[0]) {
			return nil, fmt.Errorf("score %s: %d features against %d-wide centroids",
				fvs[i].PlayerID, len(row), len(cm.Centroids[0]))
		}
		label, dist := cluster.Assign(row, cm.Centroids)
		out = append(out, model.ClusterAssignment{
			PlayerID: fvs[i].PlayerID,
			Name:     fvs[i].Name,
			Label:    label,
			Distance: dist,
		})
	}
	return out, nil
}
