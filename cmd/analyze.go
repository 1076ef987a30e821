package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/aggregate"
	"github.com/hooplab/hoopcluster/internal/features"
	"github.com/hooplab/hoopcluster/internal/model"
	"github.com/hooplab/hoopcluster/internal/scale"
	"github.com/hooplab/hoopcluster/internal/storage"
)

const analyzeSystemPrompt = `You are a basketball scouting analyst. You are given structured data from a
player-clustering tool and a question from an analyst.

Rules:
- Answer ONLY from the data provided. Never invent or estimate statistics.
- Always cite specific numbers when making a claim.
- If the data is insufficient to answer confidently, say so explicitly.
- Be concise and actionable. Describe playing style, not box-score trivia.
- Avoid generic basketball advice unless it directly explains a pattern in the data.

Metrics glossary:
- *_per36: totals normalized to 36 minutes of playing time. Measures usage rate, not efficiency.
- fg2_pct / fg3_pct / ft_pct: shooting accuracy by attempt type.
- usage_2p / usage_3p: share of field-goal attempts inside vs beyond the arc.
- oer: points per 100 individual possessions. Rough efficiency, around 100 is average.
- der: defensive activity blend of steals, blocks, defensive boards, and fouls per 36.
- ts_pct: true shooting, points over 2 x (FGA + 0.44 x FTA). Good: above 0.55.
- orb_pg / drb_pg / pf_pg: per-game rebounds and fouls.
- silhouette: cluster separation in [-1, 1]. Above 0.25 is usable, above 0.5 is strong.
- stability: mean chance-adjusted agreement across reseeded refits, in [0, 1].
- centroid: the average feature profile of a cluster, given in raw units.
- distance: how far a player sits from their centroid in scaled space. Smaller = more typical.`

var (
	analyzeModel  string
	analyzeAPIKey string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "AI-powered grounded analysis (requires ANTHROPIC_API_KEY)",
}

var analyzeRunCmd = &cobra.Command{
	Use:   "run <run> <question>",
	Short: "Analyze a stored run's cluster structure with AI",
	Args:  cobra.ExactArgs(2),
	RunE:  runAnalyzeRun,
}

var analyzePlayerCmd = &cobra.Command{
	Use:   "player <player-id> <question>",
	Short: "Analyze a player's profile and cluster fit with AI",
	Args:  cobra.ExactArgs(2),
	RunE:  runAnalyzePlayer,
}

func init() {
	analyzeCmd.PersistentFlags().StringVar(&analyzeModel, "model", "claude-haiku-4-5-20251001", "Anthropic model to use")
	analyzeCmd.PersistentFlags().StringVar(&analyzeAPIKey, "api-key", "", "Anthropic API key (falls back to $ANTHROPIC_API_KEY)")

	analyzeCmd.AddCommand(analyzeRunCmd)
	analyzeCmd.AddCommand(analyzePlayerCmd)
}

func runAnalyzeRun(cmd *cobra.Command, args []string) error {
	question := args[1]

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
		return fmt.Errorf("no run found with id prefix %q", args[0])
	}

	contextJSON, err := buildRunAnalysisContext(db, sum)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	return callAnthropic(cmd.Context(), analyzeAPIKey, analyzeModel, contextJSON, question)
}

func runAnalyzePlayer(cmd *cobra.Command, args []string) error {
	id, question := args[0], args[1]

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	records, err := db.PlayerRecords(id)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no records found for player %q", id)
	}

	aggs, _ := aggregate.Fold(records, aggregate.Options{MinGames: 1})
	if len(aggs) == 0 {
		return fmt.Errorf("no aggregable games for player %q", id)
	}
	agg := &aggs[0]

	fv, err := features.Derive(agg, cfg.ExposureMinutes)
	if err != nil {
		return fmt.Errorf("derive features: %w", err)
	}

	contextJSON, err := buildPlayerAnalysisContext(db, agg, fv)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	return callAnthropic(cmd.Context(), analyzeAPIKey, analyzeModel, contextJSON, question)
}

// buildRunAnalysisContext serialises one run's cluster structure into compact JSON.
func buildRunAnalysisContext(db *storage.DB, sum *model.RunSummary) (string, error) {
	cm, err := db.GetModel(sum.RunID)
	if err != nil {
		return "", err
	}
	scaler, err := db.GetScaler(sum.RunID)
	if err != nil {
		return "", err
	}
	assignments, err := db.GetAssignments(sum.RunID)
	if err != nil {
		return "", err
	}
	kscan, err := db.GetKScan(sum.RunID)
	if err != nil {
		return "", err
	}
	stab, err := db.GetStability(sum.RunID)
	if err != nil {
		return "", err
	}

	sizes := make([]int, cm.K)
	exemplar := make([]string, cm.K)
	best := make([]float64, cm.K)
	for _, a := range assignments {
		sizes[a.Label]++
		if exemplar[a.Label] == "" || a.Distance < best[a.Label] {
			exemplar[a.Label] = a.Name
			best[a.Label] = a.Distance
		}
	}

	clusters := make([]map[string]any, 0, cm.K)
	for c := 0; c < cm.K; c++ {
		raw, err := scale.InverseRow(cm.Centroids[c], scaler)
		if err != nil {
			return "", err
		}
		centroid := make(map[string]float64, len(cm.Columns))
		for i, col := range cm.Columns {
			centroid[col] = round2(raw[i])
		}
		clusters = append(clusters, map[string]any{
			"label":    fmt.Sprintf("C%d", c),
			"players":  sizes[c],
			"share":    round2(float64(sizes[c]) / float64(len(assignments)) * 100),
			"exemplar": exemplar[c],
			"centroid": centroid,
		})
	}

	scan := make([]map[string]any, 0, len(kscan))
	for _, r := range kscan {
		scan = append(scan, map[string]any{"k": r.K, "silhouette": round2(r.Score)})
	}

	doc := map[string]any{
		"subject": "run",
		"run": map[string]any{
			"id":         sum.RunID,
			"created":    sum.CreatedAt,
			"label":      sum.Label,
			"players":    sum.Players,
			"k":          sum.K,
			"silhouette": round2(sum.Validity),
			"converged":  sum.Converged,
		},
		"k_scan":   scan,
		"clusters": clusters,
	}
	if stab != nil {
		doc["stability"] = map[string]any{
			"reps":      stab.Reps,
			"mean":      round2(stab.Mean),
			"min":       round2(stab.Min),
			"max":       round2(stab.Max),
			"threshold": stab.Threshold,
			"stable":    stab.Stable,
		}
	}

	b, err := json.Marshal(doc)
	return string(b), err
}

// buildPlayerAnalysisContext serialises one player's profile, plus the cluster
// they land in under the newest run.
func buildPlayerAnalysisContext(db *storage.DB, agg *model.PlayerAggregate, fv *model.FeatureVector) (string, error) {
	profile := make(map[string]float64, len(model.ClusteringColumns)+len(model.EDAColumns))
	for i, col := range model.ClusteringColumns {
		profile[col] = round2(fv.ClusteringRow()[i])
	}
	for i, col := range model.EDAColumns {
		profile[col] = round2(fv.EDARow()[i])
	}

	doc := map[string]any{
		"subject":      "player",
		"player":       agg.Name,
		"player_id":    agg.PlayerID,
		"games":        agg.GamesPlayed,
		"minutes":      round2(agg.Minutes()),
		"low_exposure": fv.LowExposure,
		"profile":      profile,
	}

	latest, err := db.LatestRun()
	if err != nil {
		return "", err
	}
	if latest != nil {
		assignments, err := db.GetAssignments(latest.RunID)
		if err != nil {
			return "", err
		}
		for _, a := range assignments {
			if a.PlayerID != agg.PlayerID {
				continue
			}
			cm, err := db.GetModel(latest.RunID)
			if err != nil {
				return "", err
			}
			scaler, err := db.GetScaler(latest.RunID)
			if err != nil {
				return "", err
			}
			raw, err := scale.InverseRow(cm.Centroids[a.Label], scaler)
			if err != nil {
				return "", err
			}
			centroid := make(map[string]float64, len(cm.Columns))
			for i, col := range cm.Columns {
				centroid[col] = round2(raw[i])
			}
			doc["cluster"] = map[string]any{
				"run":      latest.RunID,
				"label":    fmt.Sprintf("C%d", a.Label),
				"distance": round2(a.Distance),
				"centroid": centroid,
			}
			break
		}
	}

	b, err := json.Marshal(doc)
	return string(b), err
}

// round2 rounds a float64 to 2 decimal places.
func round2(v float64) float64 {
	if v < 0 {
		return -float64(int(-v*100+0.5)) / 100
	}
	return float64(int(v*100+0.5)) / 100
}

// callAnthropic streams a response from the Anthropic API and prints it to stdout.
func callAnthropic(ctx context.Context, apiKey, modelID, dataJSON, question string) error {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no API key: set ANTHROPIC_API_KEY or use --api-key")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	userMsg := fmt.Sprintf("DATA:\n%s\n\nQUESTION: %s", dataJSON, question)

	fmt.Fprintln(os.Stdout, "\n─── AI Analysis ─────────────────────────────────────")

	stream := client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: analyzeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMsg)),
		},
	})

	for stream.Next() {
		evt := stream.Current()
		if evt.Type == "content_block_delta" {
			delta := evt.AsContentBlockDelta()
			if delta.Delta.Type == "text_delta" {
				fmt.Fprint(os.Stdout, delta.Delta.AsTextDelta().Text)
			}
		}
	}
	fmt.Fprintln(os.Stdout, "\n─────────────────────────────────────────────────────")

	if err := stream.Err(); err != nil {
		// Surface common API failures without the SDK's wrapping noise.
		errStr := err.Error()
		if strings.Contains(errStr, "401") || strings.Contains(errStr, "authentication") {
			return fmt.Errorf("API authentication failed, check your API key")
		}
		return fmt.Errorf("streaming error: %w", err)
	}
	return nil
}
