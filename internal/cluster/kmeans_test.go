package cluster

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/hooplab/hoopcluster/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init(slog.LevelError, "text", io.Discard)
	os.Exit(m.Run())
}

// blobs samples tight Gaussian clusters around the given centers, perCenter
// rows each, in center order.
func blobs(seed int64, centers [][]float64, perCenter int, spread float64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	dim := len(centers[0])
	m := mat.NewDense(len(centers)*perCenter, dim, nil)
	row := 0
	for _, c := range centers {
		for p := 0; p < perCenter; p++ {
			for d := 0; d < dim; d++ {
				m.Set(row, d, c[d]+rng.NormFloat64()*spread)
			}
			row++
		}
	}
	return m
}

// Centers far enough apart that any seeding lands one centroid per blob.
var fiveCenters = [][]float64{
	{0, 0}, {3000, 0}, {0, 3000}, {3000, 3000}, {1500, 1500},
}

func TestFit_Deterministic(t *testing.T) {
	m := blobs(1, fiveCenters, 20, 1.0)

	r1, err := Fit(m, 5, Options{Seed: 99, MaxIter: 300})
	require.NoError(t, err)
	r2, err := Fit(m, 5, Options{Seed: 99, MaxIter: 300})
	require.NoError(t, err)

	assert.Equal(t, r1.Labels, r2.Labels, "same seed must reproduce assignments")
	assert.Equal(t, r1.Model.Centroids, r2.Model.Centroids, "same seed must reproduce centroids")
	assert.Equal(t, r1.Dists, r2.Dists)
}

func TestFit_CanonicalLabelsAcrossSeeds(t *testing.T) {
	// Well-separated blobs: every seed converges to the same structure, so
	// canonicalized labels must agree exactly, not just up to permutation.
	m := blobs(2, fiveCenters, 20, 0.5)

	ref, err := Fit(m, 5, Options{Seed: 7, MaxIter: 300})
	require.NoError(t, err)
	require.True(t, ref.Model.Converged)

	for _, seed := range []int64{11, 23, 1234, 987654} {
		r, err := Fit(m, 5, Options{Seed: seed, MaxIter: 300})
		require.NoError(t, err)
		assert.Equal(t, ref.Labels, r.Labels, "seed %d produced different canonical labels", seed)
	}
}

func TestFit_CentroidsFollowSortColumn(t *testing.T) {
	m := blobs(3, fiveCenters, 15, 0.5)
	r, err := Fit(m, 5, Options{Seed: 5, MaxIter: 300, SortColumn: 0})
	require.NoError(t, err)

	for c := 1; c < 5; c++ {
		prev, cur := r.Model.Centroids[c-1], r.Model.Centroids[c]
		assert.GreaterOrEqual(t, prev[0], cur[0],
			"centroids must descend on the sort column")
	}
}

func TestFit_RecoversBlobMembership(t *testing.T) {
	m := blobs(4, fiveCenters, 20, 0.5)
	r, err := Fit(m, 5, Options{Seed: 21, MaxIter: 300})
	require.NoError(t, err)

	// All 20 rows of a blob must share a label, and the five blobs must
	// use five distinct labels.
	seen := map[int]bool{}
	for b := 0; b < 5; b++ {
		first := r.Labels[b*20]
		for i := 1; i < 20; i++ {
			assert.Equal(t, first, r.Labels[b*20+i], "blob %d split across clusters", b)
		}
		assert.False(t, seen[first], "blob %d shares a label with another blob", b)
		seen[first] = true
	}
}

func TestFit_DuplicatePointsTerminate(t *testing.T) {
	// Six identical rows cannot support two clusters; the fit must still
	// terminate with valid labels and an honest converged flag.
	data := make([]float64, 12)
	for i := range data {
		data[i] = 1
	}
	m := mat.NewDense(6, 2, data)

	r, err := Fit(m, 2, Options{Seed: 3, MaxIter: 20})
	require.NoError(t, err)
	assert.Len(t, r.Labels, 6)
	for _, l := range r.Labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 2)
	}
	assert.LessOrEqual(t, r.Model.Iterations, 20)
}

func TestFit_Errors(t *testing.T) {
	m := blobs(5, fiveCenters, 2, 0.5)

	_, err := Fit(m, 0, Options{Seed: 1})
	require.Error(t, err)

	_, err = Fit(m, 11, Options{Seed: 1})
	require.Error(t, err, "k beyond population must fail")

	_, err = Fit(m, 2, Options{Seed: 1, SortColumn: 99})
	require.Error(t, err)

	_, err = Fit(nil, 2, Options{Seed: 1})
	var die *DegenerateInputError
	require.True(t, errors.As(err, &die))
}

func TestFarthestPoint(t *testing.T) {
	rows := [][]float64{{0, 0}, {5, 0}, {9, 0}}
	labels := []int{0, 0, 0}
	centroids := [][]float64{{0, 0}, {100, 100}}
	assert.Equal(t, 2, farthestPoint(rows, labels, centroids))
}

func TestCanonicalize(t *testing.T) {
	centroids := [][]float64{
		{1, 5},
		{9, 2},
		{4, 7},
	}
	labels := []int{0, 1, 2, 1, 0}

	sorted := canonicalize(centroids, labels, 0)

	// Descending on column 0: old 1 (9) -> 0, old 2 (4) -> 1, old 0 (1) -> 2.
	assert.Equal(t, [][]float64{{9, 2}, {4, 7}, {1, 5}}, sorted)
	assert.Equal(t, []int{2, 0, 1, 0, 2}, labels)
}

func TestCanonicalize_TieBreaksOnFullVector(t *testing.T) {
	centroids := [][]float64{
		{3, 1},
		{3, 8},
	}
	labels := []int{0, 1}
	sorted := canonicalize(centroids, labels, 0)
	assert.Equal(t, [][]float64{{3, 8}, {3, 1}}, sorted)
	assert.Equal(t, []int{1, 0}, labels)
}

func TestValidateMatrix(t *testing.T) {
	cases := []struct {
		name    string
		m       *mat.Dense
		minK    int
		wantErr bool
	}{
		{"nil matrix", nil, 2, true},
		{"fewer rows than smallest k", blobs(6, fiveCenters, 1, 0.1), 8, true},
		{"single varying column", mat.NewDense(4, 2, []float64{
			1, 7, 2, 7, 3, 7, 4, 7,
		}), 2, true},
		{"all constant", mat.NewDense(3, 2, []float64{5, 5, 5, 5, 5, 5}), 2, true},
		{"healthy", blobs(7, fiveCenters, 4, 0.5), 2, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateMatrix(c.m, c.minK)
			if c.wantErr {
				var die *DegenerateInputError
				require.True(t, errors.As(err, &die), "got %v", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
