package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/storage"
)

var dropForce bool

// dropCmd deletes one stored run, or the whole database when no run is named.
var dropCmd = &cobra.Command{
	Use:   "drop [run]",
	Short: "Delete a stored run, or the whole database",
	Long: `Delete a stored run by id prefix, including its model, assignments, and
stability repetitions. Without an argument, permanently delete the SQLite
database file itself; re-ingest your stats files afterwards to rebuild.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "skip confirmation prompt")
}

func runDrop(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return dropRun(args[0])
	}

	if !dropForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}
	if err := os.Remove(dbPath); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(os.Stdout, "Database does not exist, nothing to drop.")
			return nil
		}
		return fmt.Errorf("remove database: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Deleted: %s\n", dbPath)
	return nil
}

func dropRun(prefix string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	sum, err := db.GetRunByPrefix(prefix)
	if err != nil {
		return fmt.Errorf("find run: %w", err)
	}
	if sum == nil {
		fmt.Fprintf(os.Stderr, "No run found with id prefix %q\n", prefix)
		return nil
	}

	if !dropForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete run %s (created %s, %d players, K=%d).\n",
			sum.RunID[:8], sum.CreatedAt, sum.Players, sum.K)
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}

	if err := db.DeleteRun(sum.RunID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Deleted run %s.\n", sum.RunID[:8])
	return nil
}
