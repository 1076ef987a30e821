package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/report"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored clustering runs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns()
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "No runs stored yet. Run 'hoopcluster run' to create one.")
		return nil
	}

	report.PrintRunTable(runs)
	fmt.Fprintf(os.Stdout, "\n%d run(s). Use 'hoopcluster show <run>' for details.\n", len(runs))
	return nil
}
