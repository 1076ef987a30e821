package model

// ---- Raw box-score records ----

// RawRecord is one observed stat line for one player in one match, as
// delivered by the input boundary. Immutable once ingested.
type RawRecord struct {
	PlayerID   string // league-wide player identifier; empty means unattributable
	PlayerName string
	Season     string // e.g. "2023-24"; optional provenance
	MatchID    string
	TeamID     string

	Points      int
	Assists     int
	OffRebounds int
	DefRebounds int
	Steals      int
	Blocks      int
	Turnovers   int

	FieldGoalAtt   int // all field goals, 2P + 3P
	FieldGoalMade  int
	ThreePointAtt  int
	ThreePointMade int
	FreeThrowAtt   int
	FreeThrowMade  int

	PersonalFouls int
	Seconds       int // playing time in seconds

	// Shot-zone aggregates: court zones collapsed into interior (paint +
	// short mid-range) and exterior (long two + three-point territory).
	// Zero when the source carries no zone chart.
	InteriorAtt  int
	InteriorMade int
	ExteriorAtt  int
	ExteriorMade int
}

// Minutes converts the stored seconds of playing time.
func (r *RawRecord) Minutes() float64 {
	return float64(r.Seconds) / 60
}

// Dataset is one ingested source file: its records plus a content hash used
// as the idempotency key when persisting.
type Dataset struct {
	Source     string // base name of the file the records came from
	SourceHash string // sha256 of the file contents
	Records    []RawRecord
}

// TwoPointAtt derives two-point attempts from total and three-point attempts.
func (r *RawRecord) TwoPointAtt() int {
	return r.FieldGoalAtt - r.ThreePointAtt
}

func (r *RawRecord) TwoPointMade() int {
	return r.FieldGoalMade - r.ThreePointMade
}

func (r *RawRecord) TotalRebounds() int {
	return r.OffRebounds + r.DefRebounds
}

// ---- Aggregated player totals ----

// PlayerAggregate holds the field-wise sums of every RawRecord sharing a
// player identifier, plus the exposure totals. Rates are derived from these
// sums downstream, never averaged per game first.
type PlayerAggregate struct {
	PlayerID string
	Name     string

	GamesPlayed int
	Seconds     int

	Points      int
	Assists     int
	OffRebounds int
	DefRebounds int
	Steals      int
	Blocks      int
	Turnovers   int

	FieldGoalAtt   int
	FieldGoalMade  int
	ThreePointAtt  int
	ThreePointMade int
	FreeThrowAtt   int
	FreeThrowMade  int

	PersonalFouls int

	InteriorAtt  int
	InteriorMade int
	ExteriorAtt  int
	ExteriorMade int
}

func (a *PlayerAggregate) Minutes() float64 {
	return float64(a.Seconds) / 60
}

func (a *PlayerAggregate) TwoPointAtt() int {
	return a.FieldGoalAtt - a.ThreePointAtt
}

func (a *PlayerAggregate) TwoPointMade() int {
	return a.FieldGoalMade - a.ThreePointMade
}

func (a *PlayerAggregate) TotalRebounds() int {
	return a.OffRebounds + a.DefRebounds
}

func (a *PlayerAggregate) MinutesPerGame() float64 {
	if a.GamesPlayed == 0 {
		return 0
	}
	return a.Minutes() / float64(a.GamesPlayed)
}

func (a *PlayerAggregate) PointsPerGame() float64 {
	if a.GamesPlayed == 0 {
		return 0
	}
	return float64(a.Points) / float64(a.GamesPlayed)
}

// ---- Engineered features ----

// ClusteringColumns is the ordered schema of the clustering input matrix.
// Column order is load-bearing: scaler parameters, centroid coordinates and
// stored feature rows all follow it.
var ClusteringColumns = []string{
	"pts_per36", "ast_per36", "trb_per36", "stl_per36", "blk_per36",
	"tov_per36", "fga_per36", "3pa_per36", "2pa_per36",
	"fg2_pct", "fg3_pct", "ft_pct",
	"usage_2p", "usage_3p",
	"oer", "der", "ts_pct",
	"orb_pg", "drb_pg", "pf_pg",
}

// EDAColumns are computed for exploration only and stay out of the clustering
// matrix: each tracks an included column too closely to add information.
var EDAColumns = []string{
	"interior_pct", "interior_freq", "exterior_pct", "exterior_freq",
}

// ColumnIndex returns the position of name in ClusteringColumns, -1 if absent.
func ColumnIndex(name string) int {
	for i, c := range ClusteringColumns {
		if c == name {
			return i
		}
	}
	return -1
}

// FeatureVector is one player's engineered feature row: twenty clustering
// features plus four exploration-only companions. LowExposure marks players
// with zero total minutes, whose rate features are defined as 0.
type FeatureVector struct {
	PlayerID string
	Name     string

	LowExposure bool

	// Per-36 rates.
	PointsPer36    float64
	AssistsPer36   float64
	ReboundsPer36  float64
	StealsPer36    float64
	BlocksPer36    float64
	TurnoversPer36 float64
	FGAttPer36     float64
	ThreeAttPer36  float64
	TwoAttPer36    float64

	// Shooting percentages, in [0,1].
	TwoPointPct   float64
	ThreePointPct float64
	FreeThrowPct  float64

	// Usage shares of total field-goal attempts, in [0,1].
	TwoPointShare   float64
	ThreePointShare float64

	// Composite efficiency indices.
	OffensiveRating float64
	DefensiveRating float64
	TrueShootingPct float64

	// Per-game averages.
	OffRebPerGame float64
	DefRebPerGame float64
	FoulsPerGame  float64

	// Exploration-only zone features.
	InteriorPct  float64
	InteriorFreq float64
	ExteriorPct  float64
	ExteriorFreq float64
}

// ClusteringRow returns the twenty clustering values in ClusteringColumns
// order.
func (f *FeatureVector) ClusteringRow() []float64 {
	return []float64{
		f.PointsPer36, f.AssistsPer36, f.ReboundsPer36, f.StealsPer36, f.BlocksPer36,
		f.TurnoversPer36, f.FGAttPer36, f.ThreeAttPer36, f.TwoAttPer36,
		f.TwoPointPct, f.ThreePointPct, f.FreeThrowPct,
		f.TwoPointShare, f.ThreePointShare,
		f.OffensiveRating, f.DefensiveRating, f.TrueShootingPct,
		f.OffRebPerGame, f.DefRebPerGame, f.FoulsPerGame,
	}
}

// EDARow returns the exploration-only values in EDAColumns order.
func (f *FeatureVector) EDARow() []float64 {
	return []float64{f.InteriorPct, f.InteriorFreq, f.ExteriorPct, f.ExteriorFreq}
}

// ---- Scaling ----

// ScalerParams are the fitted per-column standardization parameters. Fit once
// per pipeline run on the full population, then threaded explicitly to every
// consumer; scoring new players reuses them without refitting.
type ScalerParams struct {
	Columns []string
	Mean    []float64
	Std     []float64 // zero-variance columns carry 1 here
}

// ---- Clustering ----

// ClusterAssignment maps one player to a canonical cluster label plus the
// Euclidean distance to its centroid in scaled-feature space.
type ClusterAssignment struct {
	PlayerID string
	Name     string
	Label    int
	Distance float64
}

// ClusterModel is the fitted model of one pipeline run: centroids live in
// scaled-feature space and follow canonical label order. A re-run supersedes
// the model wholesale, never merges into it.
type ClusterModel struct {
	K          int
	Columns    []string
	Centroids  [][]float64 // K rows, one per canonical label
	Validity   float64     // silhouette of the selected K
	Seed       int64
	Iterations int
	Converged  bool // false when the iteration cap cut the fit short
}

// KScanRow is one candidate's result in the model-selection scan.
type KScanRow struct {
	K         int
	Score     float64
	Converged bool
}

// ---- Projection ----

// Projection is one player's coordinates in the reduced space.
type Projection struct {
	PlayerID   string
	Components []float64
}

// VariancePoint is one step of the cumulative explained-variance curve.
type VariancePoint struct {
	Component  int     // 1-based
	Ratio      float64 // share of total variance explained by this component
	Cumulative float64
}

// ---- Stability ----

// StabilityReport certifies assignment reproducibility: each repetition
// re-clusters the same matrix under a different seed and is scored by
// chance-adjusted agreement against the production assignment. The report
// never feeds back into the assignments it measures.
type StabilityReport struct {
	Reps       int
	Seeds      []int64
	Agreements []float64 // one per repetition, aligned with Seeds

	Mean float64
	Min  float64
	Max  float64
	Std  float64

	Threshold float64
	Stable    bool
}

// ---- Run bookkeeping ----

// RunSummary is a lightweight record for list/show commands.
type RunSummary struct {
	RunID         string
	CreatedAt     string
	Label         string
	Players       int
	K             int
	Validity      float64
	Converged     bool
	StabilityMean float64
	Stable        bool
	Seed          int64
}
