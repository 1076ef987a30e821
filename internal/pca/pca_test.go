package pca

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// planarData embeds a 2-D structure into 5 dimensions: columns 0 and 1 carry
// independent signals, the rest are linear combinations plus tiny noise.
func planarData(seed int64, n int) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	m := mat.NewDense(n, 5, nil)
	for i := 0; i < n; i++ {
		u := rng.NormFloat64() * 10
		v := rng.NormFloat64() * 4
		eps := func() float64 { return rng.NormFloat64() * 0.01 }
		m.Set(i, 0, u)
		m.Set(i, 1, v)
		m.Set(i, 2, 0.5*u+0.5*v+eps())
		m.Set(i, 3, u-v+eps())
		m.Set(i, 4, 2*u+eps())
	}
	return m
}

func TestProject_VarianceCurve(t *testing.T) {
	m := planarData(1, 200)

	res, err := Project(m, nil, 2)
	require.NoError(t, err)
	require.Len(t, res.Variance, 5)

	// Ratios are a distribution; the cumulative curve is monotone and
	// reaches 1.
	sum := 0.0
	prev := 0.0
	for _, p := range res.Variance {
		assert.GreaterOrEqual(t, p.Ratio, 0.0)
		assert.GreaterOrEqual(t, p.Cumulative, prev)
		prev = p.Cumulative
		sum += p.Ratio
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 1.0, res.Variance[4].Cumulative, 1e-9)

	// Two latent dimensions: the first two components must carry nearly
	// all the variance.
	assert.Greater(t, res.Variance[1].Cumulative, 0.999)
}

func TestProject_Deterministic(t *testing.T) {
	m := planarData(2, 120)

	r1, err := Project(m, nil, 2)
	require.NoError(t, err)
	r2, err := Project(m, nil, 2)
	require.NoError(t, err)

	for i := range r1.Projections {
		assert.Equal(t, r1.Projections[i].Components, r2.Projections[i].Components)
	}
}

func TestProject_PreservesDistancesOnPlanarData(t *testing.T) {
	// With only two real dimensions, the 2-component projection is an
	// isometry up to the dropped noise: pairwise distances survive.
	m := planarData(3, 60)
	res, err := Project(m, nil, 2)
	require.NoError(t, err)

	dist := func(a, b []float64) float64 {
		s := 0.0
		for i := range a {
			d := a[i] - b[i]
			s += d * d
		}
		return math.Sqrt(s)
	}
	fullRow := func(i int) []float64 {
		row := make([]float64, 5)
		mat.Row(row, i, m)
		return row
	}

	for _, pair := range [][2]int{{0, 1}, {7, 30}, {12, 59}} {
		orig := dist(fullRow(pair[0]), fullRow(pair[1]))
		proj := dist(res.Projections[pair[0]].Components, res.Projections[pair[1]].Components)
		assert.InDelta(t, orig, proj, orig*0.02+0.05, "pair %v", pair)
	}
}

func TestProject_CarriesIDs(t *testing.T) {
	m := planarData(4, 3)
	ids := []string{"a", "b", "c"}
	res, err := Project(m, ids, 2)
	require.NoError(t, err)
	for i, p := range res.Projections {
		assert.Equal(t, ids[i], p.PlayerID)
		assert.Len(t, p.Components, 2)
	}
}

func TestProject_ThreeComponents(t *testing.T) {
	m := planarData(5, 80)
	res, err := Project(m, nil, 3)
	require.NoError(t, err)
	assert.Len(t, res.Projections[0].Components, 3)
}

func TestProject_Errors(t *testing.T) {
	m := planarData(6, 10)

	_, err := Project(nil, nil, 2)
	require.Error(t, err)

	_, err = Project(m, nil, 0)
	require.Error(t, err)

	_, err = Project(m, nil, 6)
	require.Error(t, err, "more components than features")

	_, err = Project(m, []string{"too", "few"}, 2)
	require.Error(t, err)

	single := mat.NewDense(1, 5, []float64{1, 2, 3, 4, 5})
	_, err = Project(single, nil, 2)
	require.Error(t, err)
}
