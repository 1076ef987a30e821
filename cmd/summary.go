package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/report"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the database contents",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		return fmt.Errorf("query stats: %w", err)
	}

	fmt.Fprintf(os.Stdout, "\n=== Database Summary ===\n\n")
	fmt.Fprintf(os.Stdout, "Datasets: %d\n", stats.Datasets)
	fmt.Fprintf(os.Stdout, "Records:  %d\n", stats.Records)
	fmt.Fprintf(os.Stdout, "Players:  %d\n", stats.Players)
	fmt.Fprintf(os.Stdout, "Runs:     %d\n", stats.Runs)

	datasets, err := db.ListDatasets()
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}
	if len(datasets) > 0 {
		fmt.Fprintf(os.Stdout, "\n--- Datasets ---\n")
		table := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
			Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
			Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
		}))
		table.Header("DATASET", "SOURCE", "RECORDS", "INGESTED")
		for _, d := range datasets {
			table.Append(d.Hash[:12], d.Source, d.Records, d.IngestedAt)
		}
		table.Render()
	} else {
		fmt.Fprintln(os.Stdout, "\nNo datasets ingested yet. Run 'hoopcluster ingest <stats-file>' to add one.")
	}

	runs, err := db.ListRuns()
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) > 0 {
		fmt.Fprintf(os.Stdout, "\n--- Runs ---\n")
		report.PrintRunTableTo(os.Stdout, runs)
	} else if stats.Records > 0 {
		fmt.Fprintln(os.Stdout, "\nNo runs stored yet. Run 'hoopcluster run' to cluster the stored players.")
	}
	return nil
}
