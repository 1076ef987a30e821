package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/model"
	"github.com/hooplab/hoopcluster/internal/scale"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var (
	exportOut    string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export <run>",
	Short: "Export a stored run as JSON or CSV",
	Long: `Export a stored run for use outside the tool.

json (default) writes one document holding the run header, the K scan, the
model with centroids in both scaled and raw units, the scaler, assignments,
projections, the explained-variance curve, and the stability report. csv
writes the assignment table only.

Examples:
  hoopcluster export ab12cd34 > run.json
  hoopcluster export ab12cd34 --format csv --out assignments.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json or csv")
}

type exportRun struct {
	ID        string  `json:"id"`
	CreatedAt string  `json:"created_at"`
	Label     string  `json:"label,omitempty"`
	Players   int     `json:"players"`
	K         int     `json:"k"`
	Validity  float64 `json:"silhouette"`
	Seed      int64   `json:"seed"`
	Converged bool    `json:"converged"`
}

type exportScanRow struct {
	K         int     `json:"k"`
	Score     float64 `json:"silhouette"`
	Converged bool    `json:"converged"`
}

type exportModel struct {
	K            int         `json:"k"`
	Columns      []string    `json:"columns"`
	Centroids    [][]float64 `json:"centroids_scaled"`
	CentroidsRaw [][]float64 `json:"centroids_raw"`
	Iterations   int         `json:"iterations"`
}

type exportScaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

type exportAssignment struct {
	PlayerID string  `json:"player_id"`
	Name     string  `json:"player_name"`
	Cluster  int     `json:"cluster"`
	Distance float64 `json:"distance"`
}

type exportProjection struct {
	PlayerID   string    `json:"player_id"`
	Components []float64 `json:"components"`
}

type exportVariance struct {
	Component  int     `json:"component"`
	Ratio      float64 `json:"ratio"`
	Cumulative float64 `json:"cumulative"`
}

type exportStability struct {
	Reps       int       `json:"reps"`
	Mean       float64   `json:"mean"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Std        float64   `json:"std"`
	Threshold  float64   `json:"threshold"`
	Stable     bool      `json:"stable"`
	Seeds      []int64   `json:"seeds"`
	Agreements []float64 `json:"agreements"`
}

type exportDoc struct {
	Run         exportRun          `json:"run"`
	Scan        []exportScanRow    `json:"k_scan"`
	Model       exportModel        `json:"model"`
	Scaler      exportScaler       `json:"scaler"`
	Assignments []exportAssignment `json:"assignments"`
	Projections []exportProjection `json:"projections"`
	Variance    []exportVariance   `json:"explained_variance"`
	Stability   *exportStability   `json:"stability,omitempty"`
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "json" && exportFormat != "csv" {
		return fmt.Errorf("unknown format %q: want json or csv", exportFormat)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	sum, err := db.GetRunByPrefix(args[0])
	if err != nil {
		return fmt.Errorf("find run: %w", err)
	}
	if sum == nil {
		fmt.Fprintf(os.Stderr, "No run found with id prefix %q\n", args[0])
		return nil
	}

	assignments, err := db.GetAssignments(sum.RunID)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	if exportFormat == "csv" {
		if err := writeAssignmentCSV(out, assignments); err != nil {
			return err
		}
	} else {
		doc, err := buildExportDoc(db, sum, assignments)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}

	if exportOut != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", exportOut)
	}
	return nil
}

func buildExportDoc(db *storage.DB, sum *model.RunSummary, assignments []model.ClusterAssignment) (*exportDoc, error) {
	cm, err := db.GetModel(sum.RunID)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	scaler, err := db.GetScaler(sum.RunID)
	if err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	kscan, err := db.GetKScan(sum.RunID)
	if err != nil {
		return nil, fmt.Errorf("load scan: %w", err)
	}
	projections, err := db.GetProjections(sum.RunID)
	if err != nil {
		return nil, fmt.Errorf("load projections: %w", err)
	}
	variance, err := db.GetVariance(sum.RunID)
	if err != nil {
		return nil, fmt.Errorf("load variance: %w", err)
	}
	stab, err := db.GetStability(sum.RunID)
	if err != nil {
		return nil, fmt.Errorf("load stability: %w", err)
	}

	raw := make([][]float64, len(cm.Centroids))
	for i, c := range cm.Centroids {
		raw[i], err = scale.InverseRow(c, scaler)
		if err != nil {
			return nil, fmt.Errorf("invert centroid %d: %w", i, err)
		}
	}

	doc := &exportDoc{
		Run: exportRun{
			ID:        sum.RunID,
			CreatedAt: sum.CreatedAt,
			Label:     sum.Label,
			Players:   sum.Players,
			K:         sum.K,
			Validity:  sum.Validity,
			Seed:      sum.Seed,
			Converged: sum.Converged,
		},
		Model: exportModel{
			K:            cm.K,
			Columns:      cm.Columns,
			Centroids:    cm.Centroids,
			CentroidsRaw: raw,
			Iterations:   cm.Iterations,
		},
		Scaler: exportScaler{
			Columns: scaler.Columns,
			Mean:    scaler.Mean,
			Std:     scaler.Std,
		},
	}
	for _, r := range kscan {
		doc.Scan = append(doc.Scan, exportScanRow{K: r.K, Score: r.Score, Converged: r.Converged})
	}
	for _, a := range assignments {
		doc.Assignments = append(doc.Assignments, exportAssignment{
			PlayerID: a.PlayerID,
			Name:     a.Name,
			Cluster:  a.Label,
			Distance: a.Distance,
		})
	}
	for _, p := range projections {
		doc.Projections = append(doc.Projections, exportProjection{
			PlayerID:   p.PlayerID,
			Components: p.Components,
		})
	}
	for _, v := range variance {
		doc.Variance = append(doc.Variance, exportVariance{
			Component:  v.Component,
			Ratio:      v.Ratio,
			Cumulative: v.Cumulative,
		})
	}
	if stab != nil {
		doc.Stability = &exportStability{
			Reps:       stab.Reps,
			Mean:       stab.Mean,
			Min:        stab.Min,
			Max:        stab.Max,
			Std:        stab.Std,
			Threshold:  stab.Threshold,
			Stable:     stab.Stable,
			Seeds:      stab.Seeds,
			Agreements: stab.Agreements,
		}
	}
	return doc, nil
}

func writeAssignmentCSV(out *os.File, assignments []model.ClusterAssignment) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"player_id", "player_name", "cluster", "distance"}); err != nil {
		return err
	}
	for _, a := range assignments {
		rec := []string{
			a.PlayerID,
			a.Name,
			strconv.Itoa(a.Label),
			strconv.FormatFloat(a.Distance, 'f', 6, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
