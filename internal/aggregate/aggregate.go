// Package aggregate folds per-game raw records into one statistical row per
// player. Counting stats are summed across records; minutes and games played
// accumulate total exposure. Rates are never derived here; downstream
// feature engineering works from the raw sums.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
)

// MissingIdentifierError marks a raw record that cannot be attributed to a
// player. Fatal for the record, never for the batch: callers skip and count.
type MissingIdentifierError struct {
	Index   int // position in the input sequence
	MatchID string
}

func (e *MissingIdentifierError) Error() string {
	if e.MatchID == "" {
		return fmt.Sprintf("record %d has no player identifier", e.Index)
	}
	return fmt.Sprintf("record %d (match %s) has no player identifier", e.Index, e.MatchID)
}

// Options filter the folded population. Zero values disable a filter.
type Options struct {
	MinGames   int     // drop players with fewer games played
	MinMinutes float64 // drop players with less total playing time
}

// Summary reports what folding and filtering did to the batch.
type Summary struct {
	Records     int // raw records seen
	Skipped     int // records without a player identifier
	Players     int // aggregates produced before filtering
	ZeroMinutes int // players retained with zero total playing time

	FilteredGames   int
	FilteredMinutes int
}

// Fold collapses records into one PlayerAggregate per player identifier and
// applies the population filters. Records without an identifier are skipped
// and logged, never aborting the batch. Zero-minute players survive folding
// (flagged in the summary); the feature engineer treats them explicitly.
// Output is ordered by player identifier.
func Fold(records []model.RawRecord, opts Options) ([]model.PlayerAggregate, Summary) {
	log := logging.New("aggregate")

	var sum Summary
	sum.Records = len(records)

	// ---- Pass 1: fold records into per-player accumulators. ----

	accs := make(map[string]*model.PlayerAggregate)
	for i := range records {
		rec := &records[i]
		if rec.PlayerID == "" {
			err := &MissingIdentifierError{Index: i, MatchID: rec.MatchID}
			log.Warn("skipping record", "err", err)
			sum.Skipped++
			continue
		}

		acc, ok := accs[rec.PlayerID]
		if !ok {
			acc = &model.PlayerAggregate{PlayerID: rec.PlayerID, Name: rec.PlayerName}
			accs[rec.PlayerID] = acc
		}
		accumulate(acc, rec)
	}
	sum.Players = len(accs)

	// ---- Pass 2: order by identifier, count zero-exposure players. ----

	ids := make([]string, 0, len(accs))
	for id := range accs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	aggs := make([]model.PlayerAggregate, 0, len(ids))
	for _, id := range ids {
		acc := accs[id]
		if acc.Seconds == 0 {
			sum.ZeroMinutes++
			log.Debug("zero total minutes", "player", id, "games", acc.GamesPlayed)
		}
		aggs = append(aggs, *acc)
	}

	// ---- Pass 3: population filters. ----

	if opts.MinGames > 0 || opts.MinMinutes > 0 {
		kept := aggs[:0]
		for i := range aggs {
			a := &aggs[i]
			if opts.MinGames > 0 && a.GamesPlayed < opts.MinGames {
				sum.FilteredGames++
				log.Debug("filtered by games played", "player", a.PlayerID, "games", a.GamesPlayed)
				continue
			}
			if opts.MinMinutes > 0 && a.Minutes() < opts.MinMinutes {
				sum.FilteredMinutes++
				log.Debug("filtered by minutes", "player", a.PlayerID, "minutes", a.Minutes())
				continue
			}
			kept = append(kept, *a)
		}
		aggs = kept
	}

	if sum.Skipped > 0 {
		log.Warn("records without player identifier", "count", sum.Skipped)
	}
	log.Info("population folded",
		"records", sum.Records,
		"players", len(aggs),
		"zero_minutes", sum.ZeroMinutes,
		"filtered", sum.FilteredGames+sum.FilteredMinutes)

	return aggs, sum
}

// accumulate adds one record's counting stats into the aggregate. Every
// record counts one game played, including scoreless garbage-time lines.
func accumulate(acc *model.PlayerAggregate, rec *model.RawRecord) {
	if acc.Name == "" && rec.PlayerName != "" {
		acc.Name = rec.PlayerName
	}

	acc.GamesPlayed++
	acc.Seconds += rec.Seconds

	acc.Points += rec.Points
	acc.Assists += rec.Assists
	acc.OffRebounds += rec.OffRebounds
	acc.DefRebounds += rec.DefRebounds
	acc.Steals += rec.Steals
	acc.Blocks += rec.Blocks
	acc.Turnovers += rec.Turnovers

	acc.FieldGoalAtt += rec.FieldGoalAtt
	acc.FieldGoalMade += rec.FieldGoalMade
	acc.ThreePointAtt += rec.ThreePointAtt
	acc.ThreePointMade += rec.ThreePointMade
	acc.FreeThrowAtt += rec.FreeThrowAtt
	acc.FreeThrowMade += rec.FreeThrowMade

	acc.PersonalFouls += rec.PersonalFouls

	acc.InteriorAtt += rec.InteriorAtt
	acc.InteriorMade += rec.InteriorMade
	acc.ExteriorAtt += rec.ExteriorAtt
	acc.ExteriorMade += rec.ExteriorMade
}
