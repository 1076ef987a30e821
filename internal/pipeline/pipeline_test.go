package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplab/hoopcluster/internal/cluster"
	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
	"github.com/hooplab/hoopcluster/internal/stability"
)

func TestMain(m *testing.M) {
	logging.Init(slog.LevelError, "text", io.Discard)
	os.Exit(m.Run())
}

func testOptions() Options {
	return Options{
		Exposure:           36,
		MinGames:           5,
		MinMinutes:         0,
		KMin:               2,
		KMax:               8,
		Seed:               42,
		MaxIter:            300,
		StabilityReps:      25,
		StabilityThreshold: 0.9,
		CorrelationCutoff:  0.6,
		PCAComponents:      2,
		Workers:            4,
	}
}

// archetypeGame fabricates one game line for player p. Three sharply distinct
// playing styles, with small deterministic wiggle so no two players are
// identical. Box-score consistency (pts from makes, zone sums within fga)
// holds for every line.
func archetypeGame(p, g int) model.RawRecord {
	var rec model.RawRecord
	switch {
	case p < 34: // interior big: paint attempts, boards, blocks, no threes
		rec = model.RawRecord{
			Points: 18, Assists: 1, OffRebounds: 4, DefRebounds: 8,
			Steals: 1, Blocks: 3, Turnovers: 2,
			FieldGoalAtt: 14, FieldGoalMade: 8, FreeThrowAtt: 6, FreeThrowMade: 2,
			PersonalFouls: 4, Seconds: 1800,
			InteriorAtt: 12, InteriorMade: 7, ExteriorAtt: 2, ExteriorMade: 1,
		}
	case p < 67: // perimeter shooter: high volume from deep, playmaking
		rec = model.RawRecord{
			Points: 21, Assists: 5, OffRebounds: 1, DefRebounds: 3,
			Steals: 2, Turnovers: 3,
			FieldGoalAtt: 16, FieldGoalMade: 7, ThreePointAtt: 10, ThreePointMade: 4,
			FreeThrowAtt: 4, FreeThrowMade: 3,
			PersonalFouls: 2, Seconds: 1900,
			InteriorAtt: 3, InteriorMade: 2, ExteriorAtt: 13, ExteriorMade: 5,
		}
	default: // low-usage defender: few attempts, high steal rate
		rec = model.RawRecord{
			Points: 4, Assists: 2, OffRebounds: 2, DefRebounds: 4,
			Steals: 3, Blocks: 1, Turnovers: 1,
			FieldGoalAtt: 4, FieldGoalMade: 2, ThreePointAtt: 1,
			FreeThrowAtt:  1,
			PersonalFouls: 3, Seconds: 1200,
			InteriorAtt: 2, InteriorMade: 1, ExteriorAtt: 2, ExteriorMade: 1,
		}
	}
	rec.PlayerID = fmt.Sprintf("p%03d", p)
	rec.PlayerName = fmt.Sprintf("Player %03d", p)
	rec.Season = "2025-26"
	rec.MatchID = fmt.Sprintf("m%02d", g)
	rec.Assists += (p + g) % 3
	rec.DefRebounds += (2*p + g) % 5
	rec.Seconds += 4 * ((5*p + g) % 7)
	return rec
}

func truthLabel(p int) int {
	switch {
	case p < 34:
		return 0
	case p < 67:
		return 1
	default:
		return 2
	}
}

// syntheticLeague builds 100 players with 8 games each, plus the archetype
// each player was drawn from, in player-id order.
func syntheticLeague() ([]model.RawRecord, []int) {
	var records []model.RawRecord
	truth := make([]int, 100)
	for p := 0; p < 100; p++ {
		truth[p] = truthLabel(p)
		for g := 0; g < 8; g++ {
			records = append(records, archetypeGame(p, g))
		}
	}
	return records, truth
}

func TestRun_RecoversPlantedArchetypes(t *testing.T) {
	records, truth := syntheticLeague()

	res, err := Run(context.Background(), records, testOptions())
	require.NoError(t, err)

	assert.Equal(t, 100, res.AggregateSummary.Players)
	assert.Equal(t, 3, res.Scan.BestK, "scan rows: %+v", res.Scan.Rows)
	assert.Equal(t, 3, res.Model.K)
	assert.True(t, res.Model.Converged)
	assert.Greater(t, res.Model.Validity, 0.7)

	require.Len(t, res.Assignments, 100)
	labels := make([]int, 100)
	for i, a := range res.Assignments {
		assert.Equal(t, fmt.Sprintf("p%03d", i), a.PlayerID)
		labels[i] = a.Label
	}
	agreement, err := stability.AdjustedRandIndex(truth, labels)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, agreement, 0.95,
		"recovered partition should match the planted archetypes")

	require.NotNil(t, res.Stability)
	assert.True(t, res.Stability.Stable)
	assert.GreaterOrEqual(t, res.Stability.Mean, 0.9)
	assert.Len(t, res.Stability.Agreements, 25)

	require.Len(t, res.Projections, 100)
	assert.Len(t, res.Projections[0].Components, 2)
	require.Len(t, res.Variance, len(model.ClusteringColumns))
	last := res.Variance[len(res.Variance)-1]
	assert.InDelta(t, 1.0, last.Cumulative, 1e-9)

	assert.Len(t, res.Scaler.Columns, len(model.ClusteringColumns))
	assert.NotEmpty(t, res.RunID)
	assert.NotEmpty(t, res.CreatedAt)
}

func TestRun_Deterministic(t *testing.T) {
	records, _ := syntheticLeague()
	opts := testOptions()

	first, err := Run(context.Background(), records, opts)
	require.NoError(t, err)
	second, err := Run(context.Background(), records, opts)
	require.NoError(t, err)

	// Everything except the run identity must reproduce bit for bit.
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Scan.Rows, second.Scan.Rows)
	assert.Equal(t, first.Model.Centroids, second.Model.Centroids)
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Projections, second.Projections)
	assert.Equal(t, first.Stability.Agreements, second.Stability.Agreements)
}

func TestRun_ExcludesLowExposureFromClustering(t *testing.T) {
	records, _ := syntheticLeague()
	// Two roster players who never saw the floor: enough games to pass the
	// filter, zero seconds in all of them.
	for p := 100; p < 102; p++ {
		for g := 0; g < 6; g++ {
			records = append(records, model.RawRecord{
				PlayerID:   fmt.Sprintf("p%03d", p),
				PlayerName: fmt.Sprintf("Player %03d", p),
				MatchID:    fmt.Sprintf("m%02d", g),
			})
		}
	}

	res, err := Run(context.Background(), records, testOptions())
	require.NoError(t, err)

	assert.Len(t, res.Features, 102, "feature rows keep low-exposure players")
	assert.Len(t, res.Assignments, 100, "clustering excludes them")
	assert.Equal(t, 2, res.FeatureSummary.LowExposure)

	flagged := 0
	for i := range res.Features {
		if res.Features[i].LowExposure {
			flagged++
			assert.Zero(t, res.Features[i].PointsPer36)
		}
	}
	assert.Equal(t, 2, flagged)
}

func TestRun_AppliesPopulationFilters(t *testing.T) {
	records, _ := syntheticLeague()
	// A two-game cameo falls under the five-game minimum.
	for g := 0; g < 2; g++ {
		rec := archetypeGame(40, g)
		rec.PlayerID = "p900"
		rec.PlayerName = "Cameo"
		records = append(records, rec)
	}

	res, err := Run(context.Background(), records, testOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.AggregateSummary.FilteredGames)
	assert.Len(t, res.Assignments, 100)
	for _, a := range res.Assignments {
		assert.NotEqual(t, "p900", a.PlayerID)
	}
}

func TestRun_DegenerateInput(t *testing.T) {
	// Forty identical players: every feature column is constant.
	var records []model.RawRecord
	for p := 0; p < 40; p++ {
		for g := 0; g < 8; g++ {
			rec := archetypeGame(0, 0)
			rec.PlayerID = fmt.Sprintf("p%03d", p)
			rec.MatchID = fmt.Sprintf("m%02d", g)
			records = append(records, rec)
		}
	}

	_, err := Run(context.Background(), records, testOptions())
	var derr *cluster.DegenerateInputError
	require.ErrorAs(t, err, &derr)
}

func TestRun_Cancelled(t *testing.T) {
	records, _ := syntheticLeague()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, records, testOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestScoreNew_MatchesRunAssignments(t *testing.T) {
	records, _ := syntheticLeague()
	opts := testOptions()

	res, err := Run(context.Background(), records, opts)
	require.NoError(t, err)

	// Scoring the run population against the stored model must agree with
	// the run's own assignments.
	scored, err := ScoreNew(records, res.Scaler, res.Model, opts)
	require.NoError(t, err)
	require.Len(t, scored, len(res.Assignments))
	for i := range scored {
		assert.Equal(t, res.Assignments[i].PlayerID, scored[i].PlayerID)
		assert.Equal(t, res.Assignments[i].Label, scored[i].Label, "player %s", scored[i].PlayerID)
		assert.InDelta(t, res.Assignments[i].Distance, scored[i].Distance, 1e-9)
	}
}

func TestScoreNew_Errors(t *testing.T) {
	records, _ := syntheticLeague()
	opts := testOptions()

	res, err := Run(context.Background(), records, opts)
	require.NoError(t, err)

	_, err = ScoreNew(records, res.Scaler, nil, opts)
	assert.Error(t, err)

	_, err = ScoreNew(nil, res.Scaler, res.Model, opts)
	assert.Error(t, err)
}

func TestToBundle(t *testing.T) {
	records, _ := syntheticLeague()

	res, err := Run(context.Background(), records, testOptions())
	require.NoError(t, err)

	b := res.ToBundle()
	assert.Equal(t, res.RunID, b.RunID)
	assert.Equal(t, res.CreatedAt, b.CreatedAt)
	assert.Len(t, b.Features, len(res.Features))
	assert.Equal(t, res.Scan.Rows, b.KScan)
	assert.Same(t, res.Model, b.Model)
	assert.Same(t, res.Stability, b.Stability)
}
