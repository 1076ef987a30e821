// Package pca projects the scaled feature matrix onto its top principal
// components for visualization, and reports how much variance an increasing
// number of components would explain. Pure linear algebra on the feature
// covariance: deterministic, no fitting state, read-only with respect to
// cluster assignments.
package pca

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hooplab/hoopcluster/internal/model"
)

// Result bundles per-player coordinates with the explained-variance curve
// over every component.
type Result struct {
	Projections []model.Projection
	Variance    []model.VariancePoint
}

// Project computes a components-dimensional embedding of the matrix rows.
// ids, when given, must align with the rows. Eigenvector signs are
// canonicalized (largest-magnitude loading made positive) so stored
// projections compare across runs.
func Project(m *mat.Dense, ids []string, components int) (*Result, error) {
	if m == nil {
		return nil, fmt.Errorf("project: empty matrix")
	}
	rows, cols := m.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("project: need at least 2 rows, got %d", rows)
	}
	if components < 1 || components > cols {
		return nil, fmt.Errorf("project: %d components out of range for %d features", components, cols)
	}
	if ids != nil && len(ids) != rows {
		return nil, fmt.Errorf("project: %d ids for %d rows", len(ids), rows)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(m, nil); !ok {
		return nil, fmt.Errorf("project: principal component decomposition failed")
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	if _, available := vecs.Dims(); components > available {
		return nil, fmt.Errorf("project: population supports %d components, want %d", available, components)
	}
	canonicalizeSigns(&vecs)

	// Center the columns before projecting; the scaled matrix is already
	// near-centered but the projection should not rely on that.
	centered := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		mean := stat.Mean(col, nil)
		for i := 0; i < rows; i++ {
			centered.Set(i, j, m.At(i, j)-mean)
		}
	}

	var scores mat.Dense
	scores.Mul(centered, vecs.Slice(0, cols, 0, components))

	projections := make([]model.Projection, rows)
	for i := 0; i < rows; i++ {
		coords := make([]float64, components)
		copy(coords, scores.RawRowView(i))
		var id string
		if ids != nil {
			id = ids[i]
		}
		projections[i] = model.Projection{PlayerID: id, Components: coords}
	}

	return &Result{
		Projections: projections,
		Variance:    varianceCurve(pc.VarsTo(nil)),
	}, nil
}

// varianceCurve turns per-component variances into ratio and cumulative
// points across every component.
func varianceCurve(vars []float64) []model.VariancePoint {
	total := 0.0
	for _, v := range vars {
		total += v
	}

	curve := make([]model.VariancePoint, len(vars))
	cum := 0.0
	for i, v := range vars {
		ratio := 0.0
		if total > 0 {
			ratio = v / total
		}
		cum += ratio
		curve[i] = model.VariancePoint{
			Component:  i + 1,
			Ratio:      ratio,
			Cumulative: math.Min(cum, 1),
		}
	}
	return curve
}

// canonicalizeSigns flips any eigenvector whose largest-magnitude loading is
// negative. Either sign spans the same component; fixing one makes
// projections reproducible.
func canonicalizeSigns(vecs *mat.Dense) {
	rows, cols := vecs.Dims()
	for j := 0; j < cols; j++ {
		maxAbs, maxVal := 0.0, 0.0
		for i := 0; i < rows; i++ {
			v := vecs.At(i, j)
			if a := math.Abs(v); a > maxAbs {
				maxAbs, maxVal = a, v
			}
		}
		if maxVal < 0 {
			for i := 0; i < rows; i++ {
				vecs.Set(i, j, -vecs.At(i, j))
			}
		}
	}
}
