package storage

import (
	"database/sql"
	"fmt"

	"github.com/hooplab/hoopcluster/internal/model"
)

// RunBundle is everything one pipeline run persists. SaveRun writes it in a
// single transaction so a run is either fully stored or absent.
type RunBundle struct {
	RunID     string
	CreatedAt string
	Label     string

	Features    []model.FeatureVector
	Scaler      model.ScalerParams
	Model       *model.ClusterModel
	Assignments []model.ClusterAssignment
	KScan       []model.KScanRow
	Projections []model.Projection
	Variance    []model.VariancePoint
	Stability   *model.StabilityReport
}

// SaveRun persists a complete run bundle atomically.
func (db *DB) SaveRun(b *RunBundle) error {
	if b.Model == nil {
		return fmt.Errorf("save run %s: missing cluster model", b.RunID)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	st := b.Stability
	if st == nil {
		st = &model.StabilityReport{}
	}
	_, err = tx.Exec(`
		INSERT INTO runs(
			id, created_at, label, players, k, validity, seed, iterations, converged,
			stability_reps, stability_mean, stability_min, stability_max, stability_std,
			stability_threshold, stable
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.RunID, b.CreatedAt, b.Label, len(b.Assignments),
		b.Model.K, b.Model.Validity, b.Model.Seed, b.Model.Iterations, boolInt(b.Model.Converged),
		st.Reps, st.Mean, st.Min, st.Max, st.Std, st.Threshold, boolInt(st.Stable),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertFeatures(tx, b.RunID, b.Features); err != nil {
		return err
	}
	if err := insertScaler(tx, b.RunID, b.Scaler); err != nil {
		return err
	}
	if err := insertCentroids(tx, b.RunID, b.Model); err != nil {
		return err
	}
	if err := insertAssignments(tx, b.RunID, b.Assignments); err != nil {
		return err
	}
	if err := insertKScan(tx, b.RunID, b.KScan); err != nil {
		return err
	}
	if err := insertProjections(tx, b.RunID, b.Projections); err != nil {
		return err
	}
	if err := insertVariance(tx, b.RunID, b.Variance); err != nil {
		return err
	}
	if b.Stability != nil {
		if err := insertStabilityReps(tx, b.RunID, b.Stability); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertFeatures(tx *sql.Tx, runID string, fvs []model.FeatureVector) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_features(
			run_id, player_id, player_name, low_exposure,
			pts_per36, ast_per36, trb_per36, stl_per36, blk_per36,
			tov_per36, fga_per36, fg3a_per36, fg2a_per36,
			fg2_pct, fg3_pct, ft_pct,
			usage_2p, usage_3p,
			oer, der, ts_pct,
			orb_pg, drb_pg, pf_pg,
			interior_pct, interior_freq, exterior_pct, exterior_freq
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range fvs {
		f := &fvs[i]
		args := make([]any, 0, 28)
		args = append(args, runID, f.PlayerID, f.Name, boolInt(f.LowExposure))
		for _, v := range f.ClusteringRow() {
			args = append(args, v)
		}
		for _, v := range f.EDARow() {
			args = append(args, v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert run_features for %s: %w", f.PlayerID, err)
		}
	}
	return nil
}

func insertScaler(tx *sql.Tx, runID string, sp model.ScalerParams) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_scaler(run_id, col_idx, col_name, mean, std)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, col := range sp.Columns {
		if _, err := stmt.Exec(runID, i, col, sp.Mean[i], sp.Std[i]); err != nil {
			return fmt.Errorf("insert run_scaler for %s: %w", col, err)
		}
	}
	return nil
}

func insertCentroids(tx *sql.Tx, runID string, cm *model.ClusterModel) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_centroids(run_id, label, col_idx, col_name, value)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for label, centroid := range cm.Centroids {
		for j, v := range centroid {
			if _, err := stmt.Exec(runID, label, j, cm.Columns[j], v); err != nil {
				return fmt.Errorf("insert run_centroids for label %d: %w", label, err)
			}
		}
	}
	return nil
}

func insertAssignments(tx *sql.Tx, runID string, as []model.ClusterAssignment) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_assignments(run_id, player_id, player_name, label, distance)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range as {
		if _, err := stmt.Exec(runID, a.PlayerID, a.Name, a.Label, a.Distance); err != nil {
			return fmt.Errorf("insert run_assignments for %s: %w", a.PlayerID, err)
		}
	}
	return nil
}

func insertKScan(tx *sql.Tx, runID string, rows []model.KScanRow) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_kscan(run_id, k, score, converged)
		VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(runID, r.K, r.Score, boolInt(r.Converged)); err != nil {
			return fmt.Errorf("insert run_kscan for k=%d: %w", r.K, err)
		}
	}
	return nil
}

func insertProjections(tx *sql.Tx, runID string, ps []model.Projection) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_projections(run_id, player_id, comp_idx, value)
		VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range ps {
		for j, v := range p.Components {
			if _, err := stmt.Exec(runID, p.PlayerID, j, v); err != nil {
				return fmt.Errorf("insert run_projections for %s: %w", p.PlayerID, err)
			}
		}
	}
	return nil
}

func insertVariance(tx *sql.Tx, runID string, vs []model.VariancePoint) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_variance(run_id, component, ratio, cumulative)
		VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range vs {
		if _, err := stmt.Exec(runID, v.Component, v.Ratio, v.Cumulative); err != nil {
			return fmt.Errorf("insert run_variance for component %d: %w", v.Component, err)
		}
	}
	return nil
}

func insertStabilityReps(tx *sql.Tx, runID string, st *model.StabilityReport) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_stability_reps(run_id, rep, seed, agreement)
		VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range st.Seeds {
		if _, err := stmt.Exec(runID, i, st.Seeds[i], st.Agreements[i]); err != nil {
			return fmt.Errorf("insert run_stability_reps for rep %d: %w", i, err)
		}
	}
	return nil
}

const runSummaryColumns = `
	id, created_at, label, players, k, validity, converged, stability_mean, stable, seed`

// ListRuns returns all stored runs, newest first.
func (db *DB) ListRuns() ([]model.RunSummary, error) {
	rows, err := db.conn.Query(
		"SELECT" + runSummaryColumns + " FROM runs ORDER BY created_at DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		s, err := scanRunSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetRunByPrefix finds the first run whose id starts with the given prefix.
func (db *DB) GetRunByPrefix(prefix string) (*model.RunSummary, error) {
	row := db.conn.QueryRow(
		"SELECT"+runSummaryColumns+" FROM runs WHERE id LIKE ? ORDER BY created_at DESC LIMIT 1",
		prefix+"%")
	s, err := scanRunSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LatestRun returns the most recent run, nil if the store has none.
func (db *DB) LatestRun() (*model.RunSummary, error) {
	row := db.conn.QueryRow(
		"SELECT" + runSummaryColumns + " FROM runs ORDER BY created_at DESC, id LIMIT 1")
	s, err := scanRunSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRunSummary(row scannable) (*model.RunSummary, error) {
	var s model.RunSummary
	var converged, stable int
	if err := row.Scan(&s.RunID, &s.CreatedAt, &s.Label, &s.Players, &s.K,
		&s.Validity, &converged, &s.StabilityMean, &stable, &s.Seed); err != nil {
		return nil, err
	}
	s.Converged = converged != 0
	s.Stable = stable != 0
	return &s, nil
}

// GetModel rebuilds the fitted cluster model of a run.
func (db *DB) GetModel(runID string) (*model.ClusterModel, error) {
	var cm model.ClusterModel
	var converged int
	err := db.conn.QueryRow(`
		SELECT k, validity, seed, iterations, converged
		FROM runs WHERE id = ?`, runID).
		Scan(&cm.K, &cm.Validity, &cm.Seed, &cm.Iterations, &converged)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	cm.Converged = converged != 0

	rows, err := db.conn.Query(`
		SELECT label, col_idx, col_name, value
		FROM run_centroids WHERE run_id = ?
		ORDER BY label, col_idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var label, colIdx int
		var colName string
		var value float64
		if err := rows.Scan(&label, &colIdx, &colName, &value); err != nil {
			return nil, err
		}
		for label >= len(cm.Centroids) {
			cm.Centroids = append(cm.Centroids, nil)
		}
		cm.Centroids[label] = append(cm.Centroids[label], value)
		if label == 0 {
			cm.Columns = append(cm.Columns, colName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cm.Centroids) != cm.K {
		return nil, fmt.Errorf("run %s: %d centroids stored for k=%d", runID, len(cm.Centroids), cm.K)
	}
	return &cm, nil
}

// GetScaler returns the standardization parameters of a run.
func (db *DB) GetScaler(runID string) (model.ScalerParams, error) {
	rows, err := db.conn.Query(`
		SELECT col_name, mean, std
		FROM run_scaler WHERE run_id = ?
		ORDER BY col_idx`, runID)
	if err != nil {
		return model.ScalerParams{}, err
	}
	defer rows.Close()

	var sp model.ScalerParams
	for rows.Next() {
		var col string
		var mean, std float64
		if err := rows.Scan(&col, &mean, &std); err != nil {
			return model.ScalerParams{}, err
		}
		sp.Columns = append(sp.Columns, col)
		sp.Mean = append(sp.Mean, mean)
		sp.Std = append(sp.Std, std)
	}
	if err := rows.Err(); err != nil {
		return model.ScalerParams{}, err
	}
	if len(sp.Columns) == 0 {
		return model.ScalerParams{}, fmt.Errorf("run %s: no scaler parameters stored", runID)
	}
	return sp, nil
}

// GetAssignments returns the cluster assignment of every player in a run,
// grouped by label with the tightest fits first.
func (db *DB) GetAssignments(runID string) ([]model.ClusterAssignment, error) {
	rows, err := db.conn.Query(`
		SELECT player_id, player_name, label, distance
		FROM run_assignments WHERE run_id = ?
		ORDER BY label, distance, player_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ClusterAssignment
	for rows.Next() {
		var a model.ClusterAssignment
		if err := rows.Scan(&a.PlayerID, &a.Name, &a.Label, &a.Distance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AssignmentHistoryEntry is one run's placement of a player.
type AssignmentHistoryEntry struct {
	RunID     string
	CreatedAt string
	RunLabel  string
	K         int
	Label     int
	Distance  float64
}

// AssignmentHistory returns a player's cluster placement in every stored run,
// newest first.
func (db *DB) AssignmentHistory(playerID string) ([]AssignmentHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT r.id, r.created_at, r.label, r.k, a.label, a.distance
		FROM run_assignments a JOIN runs r ON r.id = a.run_id
		WHERE a.player_id = ?
		ORDER BY r.created_at DESC, r.id`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssignmentHistoryEntry
	for rows.Next() {
		var e AssignmentHistoryEntry
		if err := rows.Scan(&e.RunID, &e.CreatedAt, &e.RunLabel, &e.K, &e.Label, &e.Distance); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetFeatures returns the engineered feature rows of a run in player order.
func (db *DB) GetFeatures(runID string) ([]model.FeatureVector, error) {
	rows, err := db.conn.Query(`
		SELECT player_id, player_name, low_exposure,
		       pts_per36, ast_per36, trb_per36, stl_per36, blk_per36,
		       tov_per36, fga_per36, fg3a_per36, fg2a_per36,
		       fg2_pct, fg3_pct, ft_pct,
		       usage_2p, usage_3p,
		       oer, der, ts_pct,
		       orb_pg, drb_pg, pf_pg,
		       interior_pct, interior_freq, exterior_pct, exterior_freq
		FROM run_features WHERE run_id = ?
		ORDER BY player_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FeatureVector
	for rows.Next() {
		var f model.FeatureVector
		var lowExposure int
		if err := rows.Scan(
			&f.PlayerID, &f.Name, &lowExposure,
			&f.PointsPer36, &f.AssistsPer36, &f.ReboundsPer36, &f.StealsPer36, &f.BlocksPer36,
			&f.TurnoversPer36, &f.FGAttPer36, &f.ThreeAttPer36, &f.TwoAttPer36,
			&f.TwoPointPct, &f.ThreePointPct, &f.FreeThrowPct,
			&f.TwoPointShare, &f.ThreePointShare,
			&f.OffensiveRating, &f.DefensiveRating, &f.TrueShootingPct,
			&f.OffRebPerGame, &f.DefRebPerGame, &f.FoulsPerGame,
			&f.InteriorPct, &f.InteriorFreq, &f.ExteriorPct, &f.ExteriorFreq,
		); err != nil {
			return nil, err
		}
		f.LowExposure = lowExposure != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetKScan returns the model-selection scan of a run in candidate order.
func (db *DB) GetKScan(runID string) ([]model.KScanRow, error) {
	rows, err := db.conn.Query(`
		SELECT k, score, converged
		FROM run_kscan WHERE run_id = ?
		ORDER BY k`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KScanRow
	for rows.Next() {
		var r model.KScanRow
		var converged int
		if err := rows.Scan(&r.K, &r.Score, &converged); err != nil {
			return nil, err
		}
		r.Converged = converged != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetProjections returns the reduced-space coordinates of a run in player order.
func (db *DB) GetProjections(runID string) ([]model.Projection, error) {
	rows, err := db.conn.Query(`
		SELECT player_id, value
		FROM run_projections WHERE run_id = ?
		ORDER BY player_id, comp_idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Projection
	for rows.Next() {
		var playerID string
		var value float64
		if err := rows.Scan(&playerID, &value); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].PlayerID != playerID {
			out = append(out, model.Projection{PlayerID: playerID})
		}
		p := &out[len(out)-1]
		p.Components = append(p.Components, value)
	}
	return out, rows.Err()
}

// GetVariance returns the explained-variance curve of a run.
func (db *DB) GetVariance(runID string) ([]model.VariancePoint, error) {
	rows, err := db.conn.Query(`
		SELECT component, ratio, cumulative
		FROM run_variance WHERE run_id = ?
		ORDER BY component`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VariancePoint
	for rows.Next() {
		var v model.VariancePoint
		if err := rows.Scan(&v.Component, &v.Ratio, &v.Cumulative); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetStability rebuilds the stability report of a run, nil if the run stored none.
func (db *DB) GetStability(runID string) (*model.StabilityReport, error) {
	var st model.StabilityReport
	var stable int
	err := db.conn.QueryRow(`
		SELECT stability_reps, stability_mean, stability_min, stability_max,
		       stability_std, stability_threshold, stable
		FROM runs WHERE id = ?`, runID).
		Scan(&st.Reps, &st.Mean, &st.Min, &st.Max, &st.Std, &st.Threshold, &stable)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	if st.Reps == 0 {
		return nil, nil
	}
	st.Stable = stable != 0

	rows, err := db.conn.Query(`
		SELECT seed, agreement
		FROM run_stability_reps WHERE run_id = ?
		ORDER BY rep`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seed int64
		var agreement float64
		if err := rows.Scan(&seed, &agreement); err != nil {
			return nil, err
		}
		st.Seeds = append(st.Seeds, seed)
		st.Agreements = append(st.Agreements, agreement)
	}
	return &st, rows.Err()
}

// DeleteRun removes a run and all its artifacts.
func (db *DB) DeleteRun(runID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	children := []string{
		"run_features", "run_scaler", "run_centroids", "run_assignments",
		"run_kscan", "run_projections", "run_variance", "run_stability_reps",
	}
	for _, table := range children {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}

	res, err := tx.Exec("DELETE FROM runs WHERE id = ?", runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return tx.Commit()
}
