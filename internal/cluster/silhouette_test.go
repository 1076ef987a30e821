package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSilhouette_HandComputed(t *testing.T) {
	// Two tight pairs, well apart. For every point: a = 1 (its partner),
	// b = mean(10, sqrt(101)) to the far pair.
	m := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		10, 0,
		10, 1,
	})
	labels := []int{0, 0, 1, 1}

	b := (10 + math.Sqrt(101)) / 2
	want := (b - 1) / b

	got := Silhouette(m, labels, 2)
	assert.InDelta(t, want, got, 1e-12)
}

func TestSilhouette_SingletonScoresZero(t *testing.T) {
	m := mat.NewDense(3, 1, []float64{0, 1, 10})
	labels := []int{0, 0, 1}

	// Point 2 is a singleton and contributes 0. For point 0: a=1, b=10.
	// For point 1: a=1, b=9.
	want := ((10.0-1)/10 + (9.0-1)/9 + 0) / 3
	assert.InDelta(t, want, Silhouette(m, labels, 2), 1e-12)
}

func TestSilhouette_PrefersTrueStructure(t *testing.T) {
	m := blobs(11, fiveCenters, 10, 1.0)

	good := make([]int, 50)
	for i := range good {
		good[i] = i / 10
	}
	shifted := make([]int, 50)
	for i := range shifted {
		shifted[i] = ((i + 5) % 50) / 10 // straddles blob boundaries
	}

	sGood := Silhouette(m, good, 5)
	sBad := Silhouette(m, shifted, 5)
	require.Greater(t, sGood, 0.9, "true labeling of tight blobs should score near 1")
	assert.Greater(t, sGood, sBad)
}

func TestSilhouette_DegenerateInputs(t *testing.T) {
	m := mat.NewDense(3, 1, []float64{0, 1, 2})
	assert.Equal(t, 0.0, Silhouette(m, []int{0, 0, 0}, 1), "single cluster has no separation")

	// All singletons score 0 by convention.
	assert.Equal(t, 0.0, Silhouette(m, []int{0, 1, 2}, 3))
}
