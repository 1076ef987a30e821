package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/aggregate"
	"github.com/hooplab/hoopcluster/internal/features"
	"github.com/hooplab/hoopcluster/internal/report"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var playerGames bool

// playerCmd profiles one or more players from their stored games.
var playerCmd = &cobra.Command{
	Use:   "player <player-id> [<player-id>...]",
	Short: "Feature profile for one or more players",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlayer,
}

func init() {
	playerCmd.Flags().BoolVar(&playerGames, "games", false, "print the per-game box-score log")
}

func runPlayer(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	for _, id := range args {
		if err := printPlayerProfile(db, id, playerGames); err != nil {
			return err
		}
	}
	return nil
}

// printPlayerProfile aggregates one player's stored games and prints the
// season line, feature profile, and per-run cluster history. Shared with the
// shell.
func printPlayerProfile(db *storage.DB, id string, games bool) error {
	records, err := db.PlayerRecords(id)
	if err != nil {
		return fmt.Errorf("query records for %s: %w", id, err)
	}
	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "No records found for player %q\n", id)
		return nil
	}

	aggs, _ := aggregate.Fold(records, aggregate.Options{MinGames: 1})
	if len(aggs) == 0 {
		return nil
	}
	agg := &aggs[0]

	fv, err := features.Derive(agg, cfg.ExposureMinutes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot derive features for %s: %v\n", id, err)
		return nil
	}

	fmt.Fprintln(os.Stdout)
	report.PrintAggregateLine(os.Stdout, agg)
	report.PrintFeatureProfile(os.Stdout, fv)

	history, err := db.AssignmentHistory(agg.PlayerID)
	if err != nil {
		return fmt.Errorf("query assignment history for %s: %w", id, err)
	}
	if len(history) > 0 {
		fmt.Fprintf(os.Stdout, "\n%-10s  %-19s  %-12s  %3s  %8s  %9s\n",
			"RUN", "CREATED", "LABEL", "K", "CLUSTER", "DISTANCE")
		fmt.Fprintf(os.Stdout, "%-10s  %-19s  %-12s  %3s  %8s  %9s\n",
			"──────────", "───────────────────", "────────────", "───", "────────", "─────────")
		for _, e := range history {
			label := e.RunLabel
			if label == "" {
				label = "—"
			}
			fmt.Fprintf(os.Stdout, "%-10s  %-19s  %-12s  %3d  %8s  %9.3f\n",
				e.RunID[:8], e.CreatedAt, label, e.K, fmt.Sprintf("C%d", e.Label), e.Distance)
		}
	}

	if games {
		report.PrintGameLog(os.Stdout, records)
	}
	return nil
}
