package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/hooplab/hoopcluster/internal/features"
	"github.com/hooplab/hoopcluster/internal/model"
	"github.com/hooplab/hoopcluster/internal/scale"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// PrintRunHeader prints a one-line summary header for a run.
func PrintRunHeader(w io.Writer, s *model.RunSummary) {
	stable := "yes"
	if !s.Stable {
		stable = "NO"
	}
	converged := ""
	if !s.Converged {
		converged = "  |  NOT CONVERGED"
	}
	fmt.Fprintf(w, "\nRun: %s  |  Created: %s  |  Players: %d  |  K: %d  |  Silhouette: %.3f  |  Stable: %s (mean %.3f)%s\n\n",
		shortID(s.RunID), s.CreatedAt, s.Players, s.K, s.Validity, stable, s.StabilityMean, converged)
}

// PrintRunTable prints the stored runs, newest first.
func PrintRunTable(runs []model.RunSummary) {
	PrintRunTableTo(os.Stdout, runs)
}

// PrintRunTableTo writes the run listing to the provided writer.
func PrintRunTableTo(w io.Writer, runs []model.RunSummary) {
	table := newTable(w)
	table.Header("RUN", "CREATED", "LABEL", "PLAYERS", "K", "SILHOUETTE", "CONV", "STAB_MEAN", "STABLE")

	for _, r := range runs {
		label := r.Label
		if label == "" {
			label = "—"
		}
		table.Append(
			shortID(r.RunID),
			r.CreatedAt,
			label,
			strconv.Itoa(r.Players),
			strconv.Itoa(r.K),
			fmt.Sprintf("%.3f", r.Validity),
			yesNo(r.Converged),
			fmt.Sprintf("%.3f", r.StabilityMean),
			yesNo(r.Stable),
		)
	}
	table.Render()
}

// PrintKScanTable prints the model-selection scan; the chosen K is marked with ">".
func PrintKScanTable(w io.Writer, rows []model.KScanRow, bestK int) {
	table := newTable(w)
	table.Header(" ", "K", "SILHOUETTE", "CONV")

	for _, r := range rows {
		marker := " "
		if r.K == bestK {
			marker = ">"
		}
		table.Append(
			marker,
			strconv.Itoa(r.K),
			fmt.Sprintf("%.3f", r.Score),
			yesNo(r.Converged),
		)
	}
	table.Render()
}

// PrintClusterSizeTable prints per-cluster population counts with the
// tightest-fitting player of each cluster as its exemplar.
func PrintClusterSizeTable(w io.Writer, assignments []model.ClusterAssignment, k int) {
	sizes := make([]int, k)
	distSums := make([]float64, k)
	exemplar := make([]string, k)
	exemplarDist := make([]float64, k)
	for i := range exemplarDist {
		exemplarDist[i] = math.MaxFloat64
	}

	for _, a := range assignments {
		if a.Label < 0 || a.Label >= k {
			continue
		}
		sizes[a.Label]++
		distSums[a.Label] += a.Distance
		if a.Distance < exemplarDist[a.Label] {
			exemplarDist[a.Label] = a.Distance
			exemplar[a.Label] = a.Name
		}
	}

	table := newTable(w)
	table.Header("CLUSTER", "PLAYERS", "SHARE", "AVG_DIST", "EXEMPLAR")

	total := len(assignments)
	for c := 0; c < k; c++ {
		share := "—"
		avg := "—"
		name := exemplar[c]
		if name == "" {
			name = "—"
		}
		if total > 0 {
			share = fmt.Sprintf("%.0f%%", float64(sizes[c])/float64(total)*100)
		}
		if sizes[c] > 0 {
			avg = fmt.Sprintf("%.3f", distSums[c]/float64(sizes[c]))
		}
		table.Append(strconv.Itoa(c), strconv.Itoa(sizes[c]), share, avg, name)
	}
	table.Render()
}

// PrintCentroidTable prints cluster centroids in raw feature units, one row
// per feature with clusters as columns. Scaled coordinates are mapped back
// through the run's scaler so the numbers read like box-score rates.
func PrintCentroidTable(w io.Writer, cm *model.ClusterModel, scaler model.ScalerParams) error {
	raw := make([][]float64, cm.K)
	for c, centroid := range cm.Centroids {
		row, err := scale.InverseRow(centroid, scaler)
		if err != nil {
			return fmt.Errorf("centroid %d: %w", c, err)
		}
		raw[c] = row
	}

	header := make([]any, 0, cm.K+1)
	header = append(header, "FEATURE")
	for c := 0; c < cm.K; c++ {
		header = append(header, "C"+strconv.Itoa(c))
	}

	table := newTable(w)
	table.Header(header...)

	for j, col := range cm.Columns {
		cells := make([]any, 0, cm.K+1)
		cells = append(cells, col)
		for c := 0; c < cm.K; c++ {
			cells = append(cells, fmt.Sprintf("%.2f", raw[c][j]))
		}
		table.Append(cells...)
	}
	table.Render()
	return nil
}

// PrintAssignmentTable prints player-to-cluster assignments. If focusPlayerID
// is non-empty, that player's row is marked with ">".
func PrintAssignmentTable(w io.Writer, assignments []model.ClusterAssignment, focusPlayerID string) {
	table := newTable(w)
	table.Header(" ", "CLUSTER", "PLAYER_ID", "NAME", "DIST")

	for _, a := range assignments {
		marker := " "
		if focusPlayerID != "" && a.PlayerID == focusPlayerID {
			marker = ">"
		}
		table.Append(
			marker,
			strconv.Itoa(a.Label),
			a.PlayerID,
			a.Name,
			fmt.Sprintf("%.3f", a.Distance),
		)
	}
	table.Render()
}

// PrintStabilityReport prints the reseeding certification summary.
func PrintStabilityReport(w io.Writer, st *model.StabilityReport) {
	if st == nil {
		fmt.Fprintln(w, "No stability report stored for this run.")
		return
	}
	verdict := "STABLE"
	if !st.Stable {
		verdict = "UNSTABLE"
	}
	fmt.Fprintf(w, "\nStability: %s  |  Reps: %d  |  Agreement mean %.3f (min %.3f, max %.3f, std %.3f)  |  Threshold: %.2f\n\n",
		verdict, st.Reps, st.Mean, st.Min, st.Max, st.Std, st.Threshold)

	// Distribution of agreements, bucketed from the threshold down.
	perfect, above, below := 0, 0, 0
	for _, a := range st.Agreements {
		switch {
		case a >= 0.999:
			perfect++
		case a >= st.Threshold:
			above++
		default:
			below++
		}
	}
	fmt.Fprintf(w, "  %d/%d repetitions identical, %d above threshold, %d below\n\n",
		perfect, st.Reps, above, below)
}

// PrintVarianceTable prints the explained-variance curve of the projection.
func PrintVarianceTable(w io.Writer, points []model.VariancePoint, components int) {
	table := newTable(w)
	table.Header(" ", "COMPONENT", "VARIANCE", "CUMULATIVE")

	for _, p := range points {
		marker := " "
		if p.Component <= components {
			marker = ">"
		}
		table.Append(
			marker,
			strconv.Itoa(p.Component),
			fmt.Sprintf("%.1f%%", p.Ratio*100),
			fmt.Sprintf("%.1f%%", p.Cumulative*100),
		)
	}
	table.Render()
}

// PrintCorrelationTable prints each exploration-only zone feature against the
// clustering column it tracks most closely; rows at or above the redundancy
// cutoff are marked with "*" and explained below the table.
func PrintCorrelationTable(w io.Writer, corrs []features.Correlation, cutoff float64) {
	if len(corrs) == 0 {
		return
	}
	table := newTable(w)
	table.Header(" ", "ZONE_FEATURE", "TRACKS", "R")

	var redundant []string
	for _, c := range corrs {
		marker := " "
		if math.Abs(c.R) >= cutoff {
			marker = "*"
			redundant = append(redundant,
				fmt.Sprintf("%s tracks %s at r=%.2f; kept exploration-only.",
					c.EDAColumn, c.ClusteringColumn, c.R))
		}
		table.Append(marker, c.EDAColumn, c.ClusteringColumn, fmt.Sprintf("%.2f", c.R))
	}
	table.Render()

	if len(redundant) > 0 {
		fmt.Fprintln(w, "\nRedundant zone features:")
		for _, line := range redundant {
			fmt.Fprintf(w, "  * %s\n", line)
		}
		fmt.Fprintln(w)
	}
}

// PrintFeatureProfile prints one player's engineered features, one row per
// feature, clustering features first and exploration-only zone features after.
func PrintFeatureProfile(w io.Writer, fv *model.FeatureVector) {
	table := newTable(w)
	table.Header("FEATURE", "VALUE", "SCOPE")

	clustering := fv.ClusteringRow()
	for j, col := range model.ClusteringColumns {
		table.Append(col, fmt.Sprintf("%.3f", clustering[j]), "cluster")
	}
	eda := fv.EDARow()
	for j, col := range model.EDAColumns {
		table.Append(col, fmt.Sprintf("%.3f", eda[j]), "eda")
	}
	table.Render()

	if fv.LowExposure {
		fmt.Fprintln(w, "\n  Zero recorded minutes: rate features are definitional zeros and the player is excluded from clustering.")
	}
}

// PrintGameLog prints a player's per-game box-score lines.
func PrintGameLog(w io.Writer, records []model.RawRecord) {
	table := newTable(w)
	table.Header("MATCH", "MIN", "PTS", "AST", "ORB", "DRB", "STL", "BLK", "TOV",
		"FG", "3P", "FT", "PF")

	for i := range records {
		r := &records[i]
		table.Append(
			r.MatchID,
			fmt.Sprintf("%.1f", r.Minutes()),
			strconv.Itoa(r.Points),
			strconv.Itoa(r.Assists),
			strconv.Itoa(r.OffRebounds),
			strconv.Itoa(r.DefRebounds),
			strconv.Itoa(r.Steals),
			strconv.Itoa(r.Blocks),
			strconv.Itoa(r.Turnovers),
			fmt.Sprintf("%d/%d", r.FieldGoalMade, r.FieldGoalAtt),
			fmt.Sprintf("%d/%d", r.ThreePointMade, r.ThreePointAtt),
			fmt.Sprintf("%d/%d", r.FreeThrowMade, r.FreeThrowAtt),
			strconv.Itoa(r.PersonalFouls),
		)
	}
	table.Render()
}

// PrintAggregateLine prints a player's season totals as a one-line header.
func PrintAggregateLine(w io.Writer, a *model.PlayerAggregate) {
	fmt.Fprintf(w, "\n%s (%s)  |  Games: %d  |  Minutes: %.1f  |  PPG: %.1f  |  FG: %d/%d  |  3P: %d/%d  |  FT: %d/%d\n\n",
		a.Name, a.PlayerID, a.GamesPlayed, a.Minutes(), a.PointsPerGame(),
		a.FieldGoalMade, a.FieldGoalAtt,
		a.ThreePointMade, a.ThreePointAtt,
		a.FreeThrowMade, a.FreeThrowAtt)
}

// PrintClusterMeansTable prints per-cluster means of selected raw features,
// computed over the assigned players. Gives the reader the same view as the
// centroid table but from the population side.
func PrintClusterMeansTable(w io.Writer, fvs []model.FeatureVector, assignments []model.ClusterAssignment, k int) {
	labelByPlayer := make(map[string]int, len(assignments))
	for _, a := range assignments {
		labelByPlayer[a.PlayerID] = a.Label
	}

	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, len(model.ClusteringColumns))
	}
	for i := range fvs {
		label, ok := labelByPlayer[fvs[i].PlayerID]
		if !ok || label < 0 || label >= k {
			continue
		}
		counts[label]++
		for j, v := range fvs[i].ClusteringRow() {
			sums[label][j] += v
		}
	}

	header := make([]any, 0, k+1)
	header = append(header, "FEATURE")
	for c := 0; c < k; c++ {
		header = append(header, fmt.Sprintf("C%d (n=%d)", c, counts[c]))
	}

	table := newTable(w)
	table.Header(header...)

	for j, col := range model.ClusteringColumns {
		cells := make([]any, 0, k+1)
		cells = append(cells, col)
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				cells = append(cells, "—")
				continue
			}
			cells = append(cells, fmt.Sprintf("%.2f", sums[c][j]/float64(counts[c])))
		}
		table.Append(cells...)
	}
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
