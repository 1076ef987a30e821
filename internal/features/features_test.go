package features

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
)

func TestMain(m *testing.M) {
	logging.Init(slog.LevelError, "text", io.Discard)
	os.Exit(m.Run())
}

// makeAgg builds a coherent season aggregate for a rotation player.
func makeAgg(id string) model.PlayerAggregate {
	return model.PlayerAggregate{
		PlayerID: id, Name: "Player " + id,
		GamesPlayed: 10, Seconds: 10 * 25 * 60, // 25 minutes a game
		Points: 120, Assists: 30,
		OffRebounds: 15, DefRebounds: 45,
		Steals: 12, Blocks: 5, Turnovers: 20,
		FieldGoalAtt: 100, FieldGoalMade: 45,
		ThreePointAtt: 40, ThreePointMade: 14,
		FreeThrowAtt: 30, FreeThrowMade: 24,
		PersonalFouls: 25,
		InteriorAtt:   45, InteriorMade: 25,
		ExteriorAtt: 55, ExteriorMade: 20,
	}
}

func TestDerive_Per36Exact(t *testing.T) {
	// 30 points in 36 minutes must come out as exactly 30.0 per 36.
	a := model.PlayerAggregate{
		PlayerID: "p1", GamesPlayed: 2, Seconds: 36 * 60, Points: 30,
	}
	fv, err := Derive(&a, DefaultExposure)
	require.NoError(t, err)
	assert.Equal(t, 30.0, fv.PointsPer36)
	assert.False(t, fv.LowExposure)
}

func TestDerive_RatesScaleWithExposure(t *testing.T) {
	a := makeAgg("p1") // 120 points in 250 minutes
	fv, err := Derive(&a, 36)
	require.NoError(t, err)
	assert.InDelta(t, 120.0*36/250, fv.PointsPer36, 1e-12)

	fv40, err := Derive(&a, 40)
	require.NoError(t, err)
	assert.InDelta(t, 120.0*40/250, fv40.PointsPer36, 1e-12)
}

func TestDerive_PercentagesInRange(t *testing.T) {
	zeroAttempts := model.PlayerAggregate{PlayerID: "cold", GamesPlayed: 3, Seconds: 600}
	perfect := model.PlayerAggregate{
		PlayerID: "hot", GamesPlayed: 5, Seconds: 5000,
		Points: 50, FieldGoalAtt: 20, FieldGoalMade: 20,
		ThreePointAtt: 10, ThreePointMade: 10,
		FreeThrowAtt: 5, FreeThrowMade: 5,
		InteriorAtt: 10, InteriorMade: 10,
	}

	for _, a := range []model.PlayerAggregate{makeAgg("p1"), zeroAttempts, perfect} {
		fv, err := Derive(&a, DefaultExposure)
		require.NoError(t, err, "player %s", a.PlayerID)

		bounded := map[string]float64{
			"fg2_pct":       fv.TwoPointPct,
			"fg3_pct":       fv.ThreePointPct,
			"ft_pct":        fv.FreeThrowPct,
			"usage_2p":      fv.TwoPointShare,
			"usage_3p":      fv.ThreePointShare,
			"interior_pct":  fv.InteriorPct,
			"interior_freq": fv.InteriorFreq,
			"exterior_pct":  fv.ExteriorPct,
			"exterior_freq": fv.ExteriorFreq,
		}
		for name, v := range bounded {
			assert.GreaterOrEqual(t, v, 0.0, "%s for %s", name, a.PlayerID)
			assert.LessOrEqual(t, v, 1.0, "%s for %s", name, a.PlayerID)
		}
		assert.GreaterOrEqual(t, fv.TrueShootingPct, 0.0, "ts_pct for %s", a.PlayerID)
		assert.False(t, fv.TrueShootingPct != fv.TrueShootingPct, "ts_pct NaN for %s", a.PlayerID)
	}
}

func TestDerive_ZeroExposure(t *testing.T) {
	// Dressed for four games, never on court: every rate is 0, no error.
	a := model.PlayerAggregate{PlayerID: "dnp", GamesPlayed: 4, Seconds: 0}
	fv, err := Derive(&a, DefaultExposure)
	require.NoError(t, err)
	assert.True(t, fv.LowExposure)

	for i, v := range fv.ClusteringRow() {
		assert.Equal(t, 0.0, v, "column %s", model.ClusteringColumns[i])
		assert.False(t, v != v, "NaN in column %s", model.ClusteringColumns[i])
	}
}

func TestDerive_OffensiveRating(t *testing.T) {
	a := model.PlayerAggregate{
		PlayerID: "p1", GamesPlayed: 1, Seconds: 1200,
		Points: 30, FieldGoalAtt: 20, FreeThrowAtt: 10,
		OffRebounds: 5, Turnovers: 3,
	}
	fv, err := Derive(&a, DefaultExposure)
	require.NoError(t, err)
	// possessions = 20 + 0.44*10 - 5 + 3 = 22.4
	assert.InDelta(t, 100*30/22.4, fv.OffensiveRating, 1e-12)
}

func TestDerive_OffensiveRating_NonPositivePossessions(t *testing.T) {
	// Heavy offensive rebounding with no attempts: estimate goes negative,
	// rating defined as 0.
	a := model.PlayerAggregate{
		PlayerID: "glass", GamesPlayed: 1, Seconds: 600,
		Points: 4, OffRebounds: 5,
	}
	fv, err := Derive(&a, DefaultExposure)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fv.OffensiveRating)
}

func TestDerive_TrueShooting(t *testing.T) {
	a := model.PlayerAggregate{
		PlayerID: "p1", GamesPlayed: 1, Seconds: 1200,
		Points: 30, FieldGoalAtt: 20, FreeThrowAtt: 10,
	}
	fv, err := Derive(&a, DefaultExposure)
	require.NoError(t, err)
	assert.InDelta(t, 30/(2*(20+0.44*10)), fv.TrueShootingPct, 1e-12)
}

func TestDerive_DefensiveRatingSigns(t *testing.T) {
	base := model.PlayerAggregate{PlayerID: "base", GamesPlayed: 4, Seconds: 4 * 36 * 60}

	stocks := base
	stocks.PlayerID = "stocks"
	stocks.Steals = 8
	stocks.Blocks = 4

	hack := base
	hack.PlayerID = "hack"
	hack.PersonalFouls = 12

	fvBase, err := Derive(&base, DefaultExposure)
	require.NoError(t, err)
	fvStocks, err := Derive(&stocks, DefaultExposure)
	require.NoError(t, err)
	fvHack, err := Derive(&hack, DefaultExposure)
	require.NoError(t, err)

	assert.Greater(t, fvStocks.DefensiveRating, fvBase.DefensiveRating,
		"steals and blocks must raise the defensive rating")
	assert.Less(t, fvHack.DefensiveRating, fvBase.DefensiveRating,
		"fouls must lower the defensive rating")

	// Hand check: 8 steals + 4 blocks over 144 minutes, per-36 rates 2 and 1.
	assert.InDelta(t, 1.0*2+0.7*1, fvStocks.DefensiveRating, 1e-12)
}

func TestDerive_InvalidAggregate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.PlayerAggregate)
	}{
		{"no games", func(a *model.PlayerAggregate) { a.GamesPlayed = 0 }},
		{"negative seconds", func(a *model.PlayerAggregate) { a.Seconds = -1 }},
		{"negative points", func(a *model.PlayerAggregate) { a.Points = -5 }},
		{"fg made over attempts", func(a *model.PlayerAggregate) { a.FieldGoalMade = a.FieldGoalAtt + 1 }},
		{"threes made over attempts", func(a *model.PlayerAggregate) { a.ThreePointMade = a.ThreePointAtt + 1 }},
		{"ft made over attempts", func(a *model.PlayerAggregate) { a.FreeThrowMade = a.FreeThrowAtt + 1 }},
		{"threes over field goals", func(a *model.PlayerAggregate) { a.ThreePointAtt = a.FieldGoalAtt + 1 }},
		{"interior makes over attempts", func(a *model.PlayerAggregate) { a.InteriorMade = a.InteriorAtt + 1 }},
		{"zone attempts over field goals", func(a *model.PlayerAggregate) { a.InteriorAtt = a.FieldGoalAtt; a.ExteriorAtt = 1 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := makeAgg("bad")
			c.mutate(&a)
			_, err := Derive(&a, DefaultExposure)
			require.Error(t, err)
			var iae *InvalidAggregateError
			require.True(t, errors.As(err, &iae))
			assert.Equal(t, "bad", iae.PlayerID)
		})
	}
}

func TestDeriveAll_ExcludesInvalid(t *testing.T) {
	good := makeAgg("ok")
	bad := makeAgg("broken")
	bad.FieldGoalMade = bad.FieldGoalAtt + 5
	dnp := model.PlayerAggregate{PlayerID: "dnp", GamesPlayed: 2, Seconds: 0}

	fvs, sum := DeriveAll([]model.PlayerAggregate{good, bad, dnp}, DefaultExposure)
	require.Len(t, fvs, 2)
	assert.Equal(t, 3, sum.Input)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 1, sum.LowExposure)
	assert.Equal(t, "ok", fvs[0].PlayerID)
	assert.Equal(t, "dnp", fvs[1].PlayerID)
}

func TestMatrix(t *testing.T) {
	fvs, sum := DeriveAll([]model.PlayerAggregate{makeAgg("a"), makeAgg("b")}, DefaultExposure)
	require.Equal(t, 0, sum.Invalid)

	m, ids := Matrix(fvs)
	require.NotNil(t, m)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, len(model.ClusteringColumns), c)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, fvs[0].ClusteringRow(), m.RawRowView(0))
}

func TestCorrelations_ZoneTracksShotType(t *testing.T) {
	// All twos taken inside, all threes outside: interior_pct moves one to
	// one with fg2_pct across the population.
	var aggs []model.PlayerAggregate
	for i := 0; i < 12; i++ {
		twos := 40 + i
		made := 10 + i*2
		threes := 30 - i
		threesMade := 5 + i/2
		aggs = append(aggs, model.PlayerAggregate{
			PlayerID: string(rune('a' + i)), GamesPlayed: 8, Seconds: 8 * 1500,
			Points:       made*2 + threesMade*3 + i,
			FieldGoalAtt: twos + threes, FieldGoalMade: made + threesMade,
			ThreePointAtt: threes, ThreePointMade: threesMade,
			FreeThrowAtt: 10, FreeThrowMade: 5 + i/3,
			OffRebounds: i, DefRebounds: 2 * i, Turnovers: 5 + i,
			InteriorAtt: twos, InteriorMade: made,
			ExteriorAtt: threes, ExteriorMade: threesMade,
		})
	}
	fvs, sum := DeriveAll(aggs, DefaultExposure)
	require.Equal(t, 0, sum.Invalid)

	corrs := Correlations(fvs)
	require.Len(t, corrs, len(model.EDAColumns))

	byEDA := map[string]Correlation{}
	for _, c := range corrs {
		byEDA[c.EDAColumn] = c
	}
	assert.Equal(t, "fg2_pct", byEDA["interior_pct"].ClusteringColumn)
	assert.InDelta(t, 1.0, byEDA["interior_pct"].R, 1e-9)
	assert.Equal(t, "fg3_pct", byEDA["exterior_pct"].ClusteringColumn)
	assert.InDelta(t, 1.0, byEDA["exterior_pct"].R, 1e-9)
}

func TestCorrelations_TinyPopulation(t *testing.T) {
	fvs, _ := DeriveAll([]model.PlayerAggregate{makeAgg("solo")}, DefaultExposure)
	assert.Nil(t, Correlations(fvs))
}
