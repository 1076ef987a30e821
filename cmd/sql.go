package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/storage"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a raw SQL query against the database",
	Long: `Run an arbitrary SQL query against the database and print results as a table.

Schema overview:
  datasets(hash, source, ingested_at, records)
  raw_records(dataset_hash, player_id TEXT, player_name, season, match_id, team_id,
    pts, ast, orb, drb, stl, blk, tov, fga, fgm, fg3a, fg3m, fta, ftm, pf,
    seconds, int_att, int_made, ext_att, ext_made)
  runs(id, created_at, label, players, k, validity, seed, iterations, converged,
    stability_reps, stability_mean, stability_min, stability_max, stability_std,
    stability_threshold, stable)
  run_features(run_id, player_id TEXT, player_name, low_exposure, pts_per36, ...)
  run_scaler(run_id, col_idx, col_name, mean, std)
  run_centroids(run_id, label, col_idx, col_name, value)
  run_assignments(run_id, player_id TEXT, player_name, label, distance)
  run_kscan(run_id, k, score, converged)
  run_projections(run_id, player_id TEXT, comp_idx, value)
  run_variance(run_id, component, ratio, cumulative)
  run_stability_reps(run_id, rep, seed, agreement)

Note: 3PA/3PM are stored as fg3a/fg3m. player_id is TEXT; quote it:
  WHERE player_id = 'curryst01'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	return printSQL(db, strings.Join(args, " "))
}

// printSQL renders a raw query as a table. Shared with the shell.
func printSQL(db *storage.DB, query string) error {
	cols, rows, err := db.QueryRaw(query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))

	colsAny := make([]any, len(cols))
	for i, c := range cols {
		colsAny[i] = c
	}
	table.Header(colsAny...)

	for _, row := range rows {
		rowAny := make([]any, len(row))
		for i, v := range row {
			rowAny[i] = v
		}
		table.Append(rowAny...)
	}
	table.Render()
	fmt.Fprintf(os.Stdout, "\n(%d rows)\n", len(rows))
	return nil
}
