package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/loader"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var ingestFormat string

var ingestCmd = &cobra.Command{
	Use:   "ingest <stats-file>",
	Short: "Ingest a box-score file and store its records",
	Long: `Read per-game box-score lines from a CSV or JSONL file and store them.

The file is content-addressed: ingesting the same file twice is a no-op.
Required columns: player_id, player_name, match_id, pts, ast, orb, drb, stl,
blk, tov, fga, fgm, 3pa, 3pm, fta, ftm, pf, seconds. Optional: season,
team_id, int_att, int_made, ext_att, ext_made.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "input format: csv or jsonl (default: by extension)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	statsPath := args[0]

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	format := ingestFormat
	if format == "" {
		format, err = loader.DetectFormat(statsPath)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stdout, "Ingesting %s...\n", statsPath)
	ds, err := loader.Load(statsPath, format)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	exists, err := db.DatasetExists(ds.SourceHash)
	if err != nil {
		return fmt.Errorf("check dataset: %w", err)
	}
	if exists {
		fmt.Fprintf(os.Stdout, "Dataset %s already stored, nothing to do.\n", ds.SourceHash[:12])
		return nil
	}

	if err := db.InsertDataset(ds); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	players := make(map[string]struct{})
	blank := 0
	for i := range ds.Records {
		if ds.Records[i].PlayerID == "" {
			blank++
			continue
		}
		players[ds.Records[i].PlayerID] = struct{}{}
	}
	fmt.Fprintf(os.Stdout, "Stored %d records for %d players (dataset %s).\n",
		len(ds.Records), len(players), ds.SourceHash[:12])
	if blank > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d record(s) carry no player_id and will be skipped at aggregation.\n", blank)
	}
	fmt.Fprintln(os.Stdout, "Run 'hoopcluster run' to cluster the stored players.")
	return nil
}
