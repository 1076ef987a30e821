package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/loader"
	"github.com/hooplab/hoopcluster/internal/model"
	"github.com/hooplab/hoopcluster/internal/pipeline"
	"github.com/hooplab/hoopcluster/internal/report"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var (
	scoreRun    string
	scoreFormat string
)

var scoreCmd = &cobra.Command{
	Use:   "score <stats-file>",
	Short: "Assign players from a file to a stored run's clusters",
	Long: `Score new players against a stored model without refitting anything.

The run's scaler and centroids are applied as fitted: each player in the file
is aggregated, standardized with the stored feature means, and assigned to the
nearest centroid. Scores against the most recent run unless --run names one.`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreRun, "run", "", "run id prefix to score against (default: latest)")
	scoreCmd.Flags().StringVar(&scoreFormat, "format", "", "input format: csv or jsonl (default: by extension)")
}

func runScore(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	var sum *model.RunSummary
	if scoreRun != "" {
		sum, err = db.GetRunByPrefix(scoreRun)
		if err != nil {
			return fmt.Errorf("find run: %w", err)
		}
		if sum == nil {
			fmt.Fprintf(os.Stderr, "No run found with id prefix %q\n", scoreRun)
			return nil
		}
	} else {
		sum, err = db.LatestRun()
		if err != nil {
			return fmt.Errorf("load latest run: %w", err)
		}
		if sum == nil {
			fmt.Fprintln(os.Stderr, "No runs stored yet. Run 'hoopcluster run' to fit a model first.")
			return nil
		}
	}

	scaler, err := db.GetScaler(sum.RunID)
	if err != nil {
		return fmt.Errorf("load scaler: %w", err)
	}
	cm, err := db.GetModel(sum.RunID)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	format := scoreFormat
	if format == "" {
		format, err = loader.DetectFormat(args[0])
		if err != nil {
			return err
		}
	}
	ds, err := loader.Load(args[0], format)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	// Population filters guard the fit, not scoring: score whatever the
	// file holds, down to single-game players.
	opts := pipelineOptions()
	opts.MinGames = 1
	opts.MinMinutes = 0

	assignments, err := pipeline.ScoreNew(ds.Records, scaler, cm, opts)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	if len(assignments) == 0 {
		fmt.Fprintln(os.Stderr, "No scorable players in the file.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "Scored %d player(s) against run %s (K=%d).\n",
		len(assignments), sum.RunID[:8], cm.K)
	report.PrintAssignmentTable(os.Stdout, assignments, "")
	return nil
}
