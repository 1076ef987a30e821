// Package scale standardizes the clustering matrix: per-column z-scores fit
// once on the full population. The fitted parameters are an immutable value
// object threaded to every consumer, so unseen players can be transformed
// later without refitting.
package scale

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hooplab/hoopcluster/internal/model"
)

// Fit learns per-column mean and standard deviation over the whole matrix.
// Population standard deviation, so refitting on already-scaled data lands on
// exactly mean 0 and std 1. Zero-variance columns record std 1: after
// transform they sit constant at 0 and contribute nothing to distances,
// which is intentional.
func Fit(m *mat.Dense, columns []string) (model.ScalerParams, error) {
	rows, cols := m.Dims()
	if rows == 0 {
		return model.ScalerParams{}, fmt.Errorf("fit scaler: empty matrix")
	}
	if len(columns) != cols {
		return model.ScalerParams{}, fmt.Errorf("fit scaler: %d column names for %d columns", len(columns), cols)
	}

	p := model.ScalerParams{
		Columns: append([]string(nil), columns...),
		Mean:    make([]float64, cols),
		Std:     make([]float64, cols),
	}

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		p.Mean[j] = stat.Mean(col, nil)
		std := stat.PopStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		p.Std[j] = std
	}
	return p, nil
}

// Transform applies the fitted affine map to a matrix with the same column
// schema. The input is left untouched.
func Transform(m *mat.Dense, p model.ScalerParams) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if cols != len(p.Columns) {
		return nil, fmt.Errorf("transform: matrix has %d columns, scaler fitted on %d", cols, len(p.Columns))
	}

	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, (m.At(i, j)-p.Mean[j])/p.Std[j])
		}
	}
	return out, nil
}

// TransformRow scales a single feature row, used when scoring new players
// against a stored model.
func TransformRow(row []float64, p model.ScalerParams) ([]float64, error) {
	if len(row) != len(p.Columns) {
		return nil, fmt.Errorf("transform row: %d values, scaler fitted on %d columns", len(row), len(p.Columns))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - p.Mean[j]) / p.Std[j]
	}
	return out, nil
}

// InverseRow maps a scaled row back to raw feature units, used to present
// centroids in interpretable terms.
func InverseRow(row []float64, p model.ScalerParams) ([]float64, error) {
	if len(row) != len(p.Columns) {
		return nil, fmt.Errorf("inverse row: %d values, scaler fitted on %d columns", len(row), len(p.Columns))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*p.Std[j] + p.Mean[j]
	}
	return out, nil
}
