package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/loader"
	"github.com/hooplab/hoopcluster/internal/model"
	"github.com/hooplab/hoopcluster/internal/pipeline"
	"github.com/hooplab/hoopcluster/internal/report"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var (
	runLabel     string
	runSeason    string
	runInput     string
	runExposure  float64
	runKMin      int
	runKMax      int
	runSeed      int64
	runMaxIter   int
	runMinGames  int
	runMinMins   float64
	runReps      int
	runThreshold float64
	runCutoff    float64
	runComps     int
	runWorkers   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Cluster the stored players into behavioral profiles",
	Long: `Run the full clustering pipeline over every stored record.

Aggregates each player's games, derives per-36 rate features, scans K
candidates for the best silhouette, fits K-Means at the winner, projects the
population with PCA, and measures assignment stability over reseeded
repetitions. The run is stored and printable later via 'show'.

Examples:
  hoopcluster run --label baseline
  hoopcluster run --season 2023-24 --k-min 3 --k-max 9
  hoopcluster run --input league.csv --seed 7 --min-games 10`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runLabel, "label", "", "free-form label stored with the run")
	runCmd.Flags().StringVar(&runSeason, "season", "", "only cluster stored records from this season")
	runCmd.Flags().StringVar(&runInput, "input", "", "cluster a CSV/JSONL file directly instead of stored records")
	runCmd.Flags().Float64Var(&runExposure, "exposure", 0, "rate normalization minutes (overrides config)")
	runCmd.Flags().IntVar(&runKMin, "k-min", 0, "lowest candidate cluster count (overrides config)")
	runCmd.Flags().IntVar(&runKMax, "k-max", 0, "highest candidate cluster count (overrides config)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "base random seed (overrides config)")
	runCmd.Flags().IntVar(&runMaxIter, "max-iter", 0, "K-Means iteration cap (overrides config)")
	runCmd.Flags().IntVar(&runMinGames, "min-games", 0, "minimum games played to enter the population (overrides config)")
	runCmd.Flags().Float64Var(&runMinMins, "min-minutes", 0, "minimum total minutes to enter the population (overrides config)")
	runCmd.Flags().IntVar(&runReps, "stability-reps", 0, "stability repetitions (overrides config)")
	runCmd.Flags().Float64Var(&runThreshold, "stability-threshold", 0, "mean agreement required to call the run stable (overrides config)")
	runCmd.Flags().Float64Var(&runCutoff, "correlation-cutoff", 0, "|r| above which a zone feature counts as redundant (overrides config)")
	runCmd.Flags().IntVar(&runComps, "pca-components", 0, "projection dimensionality, 2 or 3 (overrides config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel workers for scan and stability (overrides config)")
}

// pipelineOptions maps the loaded config onto pipeline options.
func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		Exposure:           cfg.ExposureMinutes,
		MinGames:           cfg.MinGames,
		MinMinutes:         cfg.MinMinutes,
		KMin:               cfg.KMin,
		KMax:               cfg.KMax,
		Seed:               cfg.Seed,
		MaxIter:            cfg.MaxIter,
		StabilityReps:      cfg.StabilityReps,
		StabilityThreshold: cfg.StabilityThreshold,
		CorrelationCutoff:  cfg.CorrelationCutoff,
		PCAComponents:      cfg.PCAComponents,
		Workers:            cfg.EffectiveWorkers(),
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	var records []model.RawRecord
	if runInput != "" {
		format, err := loader.DetectFormat(runInput)
		if err != nil {
			return err
		}
		ds, err := loader.Load(runInput, format)
		if err != nil {
			return fmt.Errorf("load input: %w", err)
		}
		records = ds.Records
	} else {
		records, err = db.RawRecords(runSeason)
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "No records to cluster. Run 'hoopcluster ingest <stats-file>' first.")
		return nil
	}

	opts := pipelineOptions()
	opts.Label = runLabel
	f := cmd.Flags()
	if f.Changed("exposure") {
		opts.Exposure = runExposure
	}
	if f.Changed("k-min") {
		opts.KMin = runKMin
	}
	if f.Changed("k-max") {
		opts.KMax = runKMax
	}
	if f.Changed("seed") {
		opts.Seed = runSeed
	}
	if f.Changed("max-iter") {
		opts.MaxIter = runMaxIter
	}
	if f.Changed("min-games") {
		opts.MinGames = runMinGames
	}
	if f.Changed("min-minutes") {
		opts.MinMinutes = runMinMins
	}
	if f.Changed("stability-reps") {
		opts.StabilityReps = runReps
	}
	if f.Changed("stability-threshold") {
		opts.StabilityThreshold = runThreshold
	}
	if f.Changed("correlation-cutoff") {
		opts.CorrelationCutoff = runCutoff
	}
	if f.Changed("pca-components") {
		opts.PCAComponents = runComps
	}
	if f.Changed("workers") {
		opts.Workers = runWorkers
	}

	res, err := pipeline.Run(cmd.Context(), records, opts)
	if err != nil {
		return fmt.Errorf("cluster: %w", err)
	}

	if err := db.SaveRun(res.ToBundle()); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	fmt.Fprintln(os.Stdout)
	report.PrintRunHeader(os.Stdout, res.Summary())
	report.PrintKScanTable(os.Stdout, res.Scan.Rows, res.Scan.BestK)
	report.PrintClusterSizeTable(os.Stdout, res.Assignments, res.Model.K)
	if err := report.PrintCentroidTable(os.Stdout, res.Model, res.Scaler); err != nil {
		return err
	}
	report.PrintCorrelationTable(os.Stdout, res.Correlations, opts.CorrelationCutoff)
	report.PrintStabilityReport(os.Stdout, res.Stability)
	report.PrintVarianceTable(os.Stdout, res.Variance, opts.PCAComponents)
	fmt.Fprintf(os.Stdout, "\nStored as run %s. Use 'hoopcluster show %s' to print it again.\n",
		res.RunID[:8], res.RunID[:8])
	return nil
}
