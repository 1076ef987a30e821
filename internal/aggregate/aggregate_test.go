package aggregate

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
)

func TestMain(m *testing.M) {
	logging.Init(slog.LevelError, "text", io.Discard)
	os.Exit(m.Run())
}

// makeRec builds a minimal record; callers override what they care about.
func makeRec(playerID string, points, seconds int) model.RawRecord {
	return model.RawRecord{
		PlayerID:   playerID,
		PlayerName: "Player " + playerID,
		MatchID:    "m1",
		Points:     points,
		Seconds:    seconds,
	}
}

func TestFold_SumsTotals(t *testing.T) {
	// Two games: 10 pts in 20 min, 20 pts in 16 min. Totals must be the
	// plain sums, so a per-36 points rate downstream is exactly 30.0.
	records := []model.RawRecord{
		makeRec("p1", 10, 20*60),
		makeRec("p1", 20, 16*60),
	}

	aggs, sum := Fold(records, Options{})
	if len(aggs) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(aggs))
	}
	a := aggs[0]
	if a.Points != 30 {
		t.Errorf("Points = %d, want 30", a.Points)
	}
	if a.Minutes() != 36 {
		t.Errorf("Minutes() = %v, want 36", a.Minutes())
	}
	if a.GamesPlayed != 2 {
		t.Errorf("GamesPlayed = %d, want 2", a.GamesPlayed)
	}
	if sum.Records != 2 || sum.Players != 1 || sum.Skipped != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestFold_FieldwiseSums(t *testing.T) {
	r1 := model.RawRecord{
		PlayerID: "p1", MatchID: "m1", Seconds: 1200,
		Points: 12, Assists: 3, OffRebounds: 2, DefRebounds: 5,
		Steals: 1, Blocks: 0, Turnovers: 2,
		FieldGoalAtt: 10, FieldGoalMade: 5,
		ThreePointAtt: 4, ThreePointMade: 1,
		FreeThrowAtt: 2, FreeThrowMade: 1,
		PersonalFouls: 3,
		InteriorAtt:   4, InteriorMade: 3,
		ExteriorAtt: 6, ExteriorMade: 2,
	}
	r2 := model.RawRecord{
		PlayerID: "p1", MatchID: "m2", Seconds: 900,
		Points: 8, Assists: 1, OffRebounds: 1, DefRebounds: 2,
		Steals: 2, Blocks: 1, Turnovers: 1,
		FieldGoalAtt: 7, FieldGoalMade: 3,
		ThreePointAtt: 2, ThreePointMade: 0,
		FreeThrowAtt: 4, FreeThrowMade: 2,
		PersonalFouls: 2,
		InteriorAtt:   3, InteriorMade: 2,
		ExteriorAtt: 4, ExteriorMade: 1,
	}

	aggs, _ := Fold([]model.RawRecord{r1, r2}, Options{})
	if len(aggs) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(aggs))
	}
	a := aggs[0]

	cases := []struct {
		name string
		got  int
		want int
	}{
		{"Points", a.Points, 20},
		{"Assists", a.Assists, 4},
		{"OffRebounds", a.OffRebounds, 3},
		{"DefRebounds", a.DefRebounds, 7},
		{"Steals", a.Steals, 3},
		{"Blocks", a.Blocks, 1},
		{"Turnovers", a.Turnovers, 3},
		{"FieldGoalAtt", a.FieldGoalAtt, 17},
		{"FieldGoalMade", a.FieldGoalMade, 8},
		{"ThreePointAtt", a.ThreePointAtt, 6},
		{"ThreePointMade", a.ThreePointMade, 1},
		{"FreeThrowAtt", a.FreeThrowAtt, 6},
		{"FreeThrowMade", a.FreeThrowMade, 3},
		{"PersonalFouls", a.PersonalFouls, 5},
		{"InteriorAtt", a.InteriorAtt, 7},
		{"InteriorMade", a.InteriorMade, 5},
		{"ExteriorAtt", a.ExteriorAtt, 10},
		{"ExteriorMade", a.ExteriorMade, 3},
		{"Seconds", a.Seconds, 2100},
		{"TwoPointAtt", a.TwoPointAtt(), 11},
		{"TwoPointMade", a.TwoPointMade(), 7},
		{"TotalRebounds", a.TotalRebounds(), 10},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestFold_SkipsMissingIdentifier(t *testing.T) {
	records := []model.RawRecord{
		makeRec("p1", 10, 600),
		makeRec("", 99, 600), // unattributable, skipped
		makeRec("p2", 5, 300),
	}

	aggs, sum := Fold(records, Options{})
	if len(aggs) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(aggs))
	}
	if sum.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", sum.Skipped)
	}
	for _, a := range aggs {
		if a.Points == 99 {
			t.Error("skipped record leaked into an aggregate")
		}
	}
}

func TestMissingIdentifierError(t *testing.T) {
	err := error(&MissingIdentifierError{Index: 4, MatchID: "m9"})
	var mie *MissingIdentifierError
	if !errors.As(err, &mie) {
		t.Fatal("errors.As failed for MissingIdentifierError")
	}
	if mie.Index != 4 {
		t.Errorf("Index = %d, want 4", mie.Index)
	}
}

func TestFold_RetainsZeroMinutePlayers(t *testing.T) {
	records := []model.RawRecord{
		makeRec("p1", 0, 0), // dressed, never played
		makeRec("p2", 12, 1500),
	}

	aggs, sum := Fold(records, Options{})
	if len(aggs) != 2 {
		t.Fatalf("zero-minute player was dropped, got %d aggregates", len(aggs))
	}
	if sum.ZeroMinutes != 1 {
		t.Errorf("ZeroMinutes = %d, want 1", sum.ZeroMinutes)
	}
	if aggs[0].PlayerID != "p1" || aggs[0].Seconds != 0 {
		t.Errorf("unexpected first aggregate: %+v", aggs[0])
	}
}

func TestFold_OrdersByPlayerID(t *testing.T) {
	records := []model.RawRecord{
		makeRec("zz", 1, 60),
		makeRec("aa", 2, 60),
		makeRec("mm", 3, 60),
	}
	aggs, _ := Fold(records, Options{})
	if len(aggs) != 3 {
		t.Fatalf("expected 3 aggregates, got %d", len(aggs))
	}
	for i, want := range []string{"aa", "mm", "zz"} {
		if aggs[i].PlayerID != want {
			t.Errorf("aggs[%d].PlayerID = %s, want %s", i, aggs[i].PlayerID, want)
		}
	}
}

func TestFold_PopulationFilters(t *testing.T) {
	records := []model.RawRecord{
		// p1: 6 games, plenty of minutes
		makeRec("p1", 10, 1200), makeRec("p1", 10, 1200), makeRec("p1", 10, 1200),
		makeRec("p1", 10, 1200), makeRec("p1", 10, 1200), makeRec("p1", 10, 1200),
		// p2: 2 games only
		makeRec("p2", 10, 1200), makeRec("p2", 10, 1200),
		// p3: 6 games but 5 minutes total
		makeRec("p3", 0, 60), makeRec("p3", 0, 60), makeRec("p3", 0, 60),
		makeRec("p3", 0, 60), makeRec("p3", 0, 60), makeRec("p3", 0, 0),
	}

	aggs, sum := Fold(records, Options{MinGames: 5, MinMinutes: 10})
	if len(aggs) != 1 {
		t.Fatalf("expected 1 surviving aggregate, got %d", len(aggs))
	}
	if aggs[0].PlayerID != "p1" {
		t.Errorf("survivor = %s, want p1", aggs[0].PlayerID)
	}
	if sum.FilteredGames != 1 {
		t.Errorf("FilteredGames = %d, want 1", sum.FilteredGames)
	}
	if sum.FilteredMinutes != 1 {
		t.Errorf("FilteredMinutes = %d, want 1", sum.FilteredMinutes)
	}
}

func TestFold_KeepsFirstNonEmptyName(t *testing.T) {
	records := []model.RawRecord{
		{PlayerID: "p1", MatchID: "m1", Seconds: 60},
		{PlayerID: "p1", PlayerName: "A. Garcia", MatchID: "m2", Seconds: 60},
	}
	aggs, _ := Fold(records, Options{})
	if aggs[0].Name != "A. Garcia" {
		t.Errorf("Name = %q, want %q", aggs[0].Name, "A. Garcia")
	}
}
