// Package features derives the clustering feature set from player aggregates.
//
// Twenty features feed the clustering matrix: nine per-36 rates, three
// shooting percentages, two usage shares, three efficiency indices and three
// per-game averages. Four zone-based companions are derived for exploration
// but stay out of the matrix, each shadowing an included feature too closely
// (interior_pct tracks fg2_pct, exterior_pct tracks fg3_pct, and the zone
// frequencies track the usage shares).
//
// Every division guards its denominator: a zero denominator yields 0, never
// NaN. Players with zero total minutes get all-zero rates and a LowExposure
// flag instead of an error.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
)

// DefaultExposure is the rate normalization unit in minutes: per-36 rates put
// starters and bench players on the same footing.
const DefaultExposure = 36

// FreeThrowPossessionFactor estimates how many free-throw attempts end a
// possession.
const FreeThrowPossessionFactor = 0.44

// EfficiencyMultiplier scales points-per-possession to the conventional
// rating-per-100 form.
const EfficiencyMultiplier = 100

// Defensive-rating weights: the defensive terms of Hollinger's game score,
// applied to per-36 rates. Steals and blocks count for, fouls against.
const (
	defStealWeight = 1.0
	defBlockWeight = 0.7
	defRebWeight   = 0.3
	defFoulWeight  = 0.4
)

// InvalidAggregateError marks an aggregate whose stats are incoherent. Fatal
// for the player, never for the batch: the player is excluded with a warning.
type InvalidAggregateError struct {
	PlayerID string
	Reason   string
}

func (e *InvalidAggregateError) Error() string {
	return fmt.Sprintf("invalid aggregate for player %s: %s", e.PlayerID, e.Reason)
}

// Summary reports how the population fared through feature derivation.
type Summary struct {
	Input       int
	Invalid     int // excluded with InvalidAggregateError
	LowExposure int // zero-minute players, retained but flagged
}

// DeriveAll computes one FeatureVector per valid aggregate. Invalid
// aggregates are excluded and logged; the batch never aborts. Output order
// follows the input.
func DeriveAll(aggs []model.PlayerAggregate, exposure float64) ([]model.FeatureVector, Summary) {
	log := logging.New("features")

	var sum Summary
	sum.Input = len(aggs)

	fvs := make([]model.FeatureVector, 0, len(aggs))
	for i := range aggs {
		fv, err := Derive(&aggs[i], exposure)
		if err != nil {
			log.Warn("excluding player", "err", err)
			sum.Invalid++
			continue
		}
		if fv.LowExposure {
			sum.LowExposure++
		}
		fvs = append(fvs, *fv)
	}

	log.Info("features derived",
		"players", len(fvs),
		"invalid", sum.Invalid,
		"low_exposure", sum.LowExposure)
	return fvs, sum
}

// Derive computes the feature row for one aggregate. Pure computation, no
// side effects.
func Derive(a *model.PlayerAggregate, exposure float64) (*model.FeatureVector, error) {
	if err := validate(a); err != nil {
		return nil, err
	}

	minutes := a.Minutes()
	games := float64(a.GamesPlayed)

	fv := &model.FeatureVector{
		PlayerID:    a.PlayerID,
		Name:        a.Name,
		LowExposure: minutes == 0,

		PointsPer36:    per(a.Points, minutes, exposure),
		AssistsPer36:   per(a.Assists, minutes, exposure),
		ReboundsPer36:  per(a.TotalRebounds(), minutes, exposure),
		StealsPer36:    per(a.Steals, minutes, exposure),
		BlocksPer36:    per(a.Blocks, minutes, exposure),
		TurnoversPer36: per(a.Turnovers, minutes, exposure),
		FGAttPer36:     per(a.FieldGoalAtt, minutes, exposure),
		ThreeAttPer36:  per(a.ThreePointAtt, minutes, exposure),
		TwoAttPer36:    per(a.TwoPointAtt(), minutes, exposure),

		TwoPointPct:   ratio(a.TwoPointMade(), a.TwoPointAtt()),
		ThreePointPct: ratio(a.ThreePointMade, a.ThreePointAtt),
		FreeThrowPct:  ratio(a.FreeThrowMade, a.FreeThrowAtt),

		TwoPointShare:   ratio(a.TwoPointAtt(), a.FieldGoalAtt),
		ThreePointShare: ratio(a.ThreePointAtt, a.FieldGoalAtt),

		OffRebPerGame: float64(a.OffRebounds) / games,
		DefRebPerGame: float64(a.DefRebounds) / games,
		FoulsPerGame:  float64(a.PersonalFouls) / games,

		InteriorPct:  ratio(a.InteriorMade, a.InteriorAtt),
		InteriorFreq: ratio(a.InteriorAtt, a.FieldGoalAtt),
		ExteriorPct:  ratio(a.ExteriorMade, a.ExteriorAtt),
		ExteriorFreq: ratio(a.ExteriorAtt, a.FieldGoalAtt),
	}

	fv.OffensiveRating = offensiveRating(a)
	fv.DefensiveRating = defStealWeight*fv.StealsPer36 +
		defBlockWeight*fv.BlocksPer36 +
		defRebWeight*per(a.DefRebounds, minutes, exposure) -
		defFoulWeight*per(a.PersonalFouls, minutes, exposure)
	fv.TrueShootingPct = trueShooting(a)

	return fv, nil
}

// offensiveRating is points per 100 possessions, with possessions estimated
// as FGA + 0.44*FTA - ORB + TOV. Turnovers inflate the denominator, so they
// drag the rating down.
func offensiveRating(a *model.PlayerAggregate) float64 {
	poss := float64(a.FieldGoalAtt) +
		FreeThrowPossessionFactor*float64(a.FreeThrowAtt) -
		float64(a.OffRebounds) +
		float64(a.Turnovers)
	if poss <= 0 {
		return 0
	}
	return EfficiencyMultiplier * float64(a.Points) / poss
}

// trueShooting folds two-pointers, threes and free throws into one shooting
// efficiency: PTS / (2 * (FGA + 0.44*FTA)).
func trueShooting(a *model.PlayerAggregate) float64 {
	denom := 2 * (float64(a.FieldGoalAtt) + FreeThrowPossessionFactor*float64(a.FreeThrowAtt))
	if denom == 0 {
		return 0
	}
	return float64(a.Points) / denom
}

// per normalizes a raw total to the exposure unit. Zero minutes yields 0;
// the caller flags the player instead of erroring.
func per(total int, minutes, exposure float64) float64 {
	if minutes == 0 {
		return 0
	}
	return float64(total) * exposure / minutes
}

// ratio is num/den with the zero-denominator convention.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// validate rejects aggregates whose counting stats are incoherent. The fixed
// struct schema already rules out absent fields, so coherence is the check
// that remains.
func validate(a *model.PlayerAggregate) error {
	fail := func(reason string) error {
		return &InvalidAggregateError{PlayerID: a.PlayerID, Reason: reason}
	}

	if a.GamesPlayed < 1 {
		return fail("no games played")
	}
	if a.Seconds < 0 {
		return fail("negative playing time")
	}

	counts := []struct {
		name string
		v    int
	}{
		{"points", a.Points}, {"assists", a.Assists},
		{"offensive rebounds", a.OffRebounds}, {"defensive rebounds", a.DefRebounds},
		{"steals", a.Steals}, {"blocks", a.Blocks}, {"turnovers", a.Turnovers},
		{"field-goal attempts", a.FieldGoalAtt}, {"field goals made", a.FieldGoalMade},
		{"three-point attempts", a.ThreePointAtt}, {"threes made", a.ThreePointMade},
		{"free-throw attempts", a.FreeThrowAtt}, {"free throws made", a.FreeThrowMade},
		{"personal fouls", a.PersonalFouls},
		{"interior attempts", a.InteriorAtt}, {"interior makes", a.InteriorMade},
		{"exterior attempts", a.ExteriorAtt}, {"exterior makes", a.ExteriorMade},
	}
	for _, c := range counts {
		if c.v < 0 {
			return fail("negative " + c.name)
		}
	}

	if a.FieldGoalMade > a.FieldGoalAtt {
		return fail("field goals made exceed attempts")
	}
	if a.ThreePointMade > a.ThreePointAtt {
		return fail("threes made exceed attempts")
	}
	if a.FreeThrowMade > a.FreeThrowAtt {
		return fail("free throws made exceed attempts")
	}
	if a.ThreePointAtt > a.FieldGoalAtt {
		return fail("three-point attempts exceed field-goal attempts")
	}
	if a.InteriorMade > a.InteriorAtt {
		return fail("interior makes exceed attempts")
	}
	if a.ExteriorMade > a.ExteriorAtt {
		return fail("exterior makes exceed attempts")
	}
	if a.InteriorAtt+a.ExteriorAtt > a.FieldGoalAtt {
		return fail("zone attempts exceed field-goal attempts")
	}
	return nil
}

// Matrix assembles the clustering input in ClusteringColumns order, one row
// per vector. Callers exclude low-exposure players first so the distance
// space never sees all-zero exposure rows.
func Matrix(fvs []model.FeatureVector) (*mat.Dense, []string) {
	if len(fvs) == 0 {
		return nil, nil
	}
	cols := len(model.ClusteringColumns)
	m := mat.NewDense(len(fvs), cols, nil)
	ids := make([]string, len(fvs))
	for i := range fvs {
		m.SetRow(i, fvs[i].ClusteringRow())
		ids[i] = fvs[i].PlayerID
	}
	return m, ids
}

// Correlation pairs an exploration column with its closest clustering column
// over the live population.
type Correlation struct {
	EDAColumn        string
	ClusteringColumn string
	R                float64 // Pearson r of the strongest pairing, by |r|
}

// Correlations recomputes, for each exploration-only column, the clustering
// column it correlates with most strongly. The pipeline uses this to confirm
// the documented redundancy still holds on the data at hand.
func Correlations(fvs []model.FeatureVector) []Correlation {
	if len(fvs) < 2 {
		return nil
	}

	clustering := make([][]float64, len(model.ClusteringColumns))
	for i := range clustering {
		clustering[i] = make([]float64, len(fvs))
	}
	eda := make([][]float64, len(model.EDAColumns))
	for i := range eda {
		eda[i] = make([]float64, len(fvs))
	}
	for i := range fvs {
		for j, v := range fvs[i].ClusteringRow() {
			clustering[j][i] = v
		}
		for j, v := range fvs[i].EDARow() {
			eda[j][i] = v
		}
	}

	out := make([]Correlation, 0, len(model.EDAColumns))
	for i, name := range model.EDAColumns {
		best := Correlation{EDAColumn: name}
		for j, cname := range model.ClusteringColumns {
			r := stat.Correlation(eda[i], clustering[j], nil)
			if math.IsNaN(r) {
				continue // constant column on either side
			}
			if math.Abs(r) > math.Abs(best.R) || best.ClusteringColumn == "" {
				best.ClusteringColumn = cname
				best.R = r
			}
		}
		out = append(out, best)
	}
	return out
}
