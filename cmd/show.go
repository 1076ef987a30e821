package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/report"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var (
	showPlayers bool
	showPlayer  string
	showMeans   bool
)

var showCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show a stored run's clusters, centroids, and stability",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showPlayers, "players", false, "print every player's assignment")
	showCmd.Flags().StringVar(&showPlayer, "player", "", "highlight one player in the assignment table")
	showCmd.Flags().BoolVar(&showMeans, "means", false, "print per-cluster feature means")
}

func runShow(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	return showRun(db, args[0], showPlayers, showPlayer, showMeans)
}

// showRun prints one stored run. Shared with the shell's show command.
func showRun(db *storage.DB, prefix string, players bool, focus string, means bool) error {
	sum, err := db.GetRunByPrefix(prefix)
	if err != nil {
		return fmt.Errorf("find run: %w", err)
	}
	if sum == nil {
		fmt.Fprintf(os.Stderr, "No run found with id prefix %q\n", prefix)
		return nil
	}

	cm, err := db.GetModel(sum.RunID)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	scaler, err := db.GetScaler(sum.RunID)
	if err != nil {
		return fmt.Errorf("load scaler: %w", err)
	}
	assignments, err := db.GetAssignments(sum.RunID)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}
	kscan, err := db.GetKScan(sum.RunID)
	if err != nil {
		return fmt.Errorf("load scan: %w", err)
	}
	stab, err := db.GetStability(sum.RunID)
	if err != nil {
		return fmt.Errorf("load stability: %w", err)
	}
	variance, err := db.GetVariance(sum.RunID)
	if err != nil {
		return fmt.Errorf("load variance: %w", err)
	}
	projections, err := db.GetProjections(sum.RunID)
	if err != nil {
		return fmt.Errorf("load projections: %w", err)
	}

	report.PrintRunHeader(os.Stdout, sum)
	report.PrintKScanTable(os.Stdout, kscan, sum.K)
	report.PrintClusterSizeTable(os.Stdout, assignments, cm.K)
	if err := report.PrintCentroidTable(os.Stdout, cm, scaler); err != nil {
		return err
	}
	if stab != nil {
		report.PrintStabilityReport(os.Stdout, stab)
	}
	components := 0
	if len(projections) > 0 {
		components = len(projections[0].Components)
	}
	report.PrintVarianceTable(os.Stdout, variance, components)

	if means {
		fvs, err := db.GetFeatures(sum.RunID)
		if err != nil {
			return fmt.Errorf("load features: %w", err)
		}
		report.PrintClusterMeansTable(os.Stdout, fvs, assignments, cm.K)
	}
	if players || focus != "" {
		report.PrintAssignmentTable(os.Stdout, assignments, focus)
	}
	return nil
}
