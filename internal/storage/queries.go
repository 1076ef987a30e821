package storage

import (
	"fmt"
	"time"

	"github.com/hooplab/hoopcluster/internal/model"
)

// DatasetInfo describes one ingested source file.
type DatasetInfo struct {
	Hash       string
	Source     string
	IngestedAt string
	Records    int
}

// StoreStats summarizes the database for the summary command.
type StoreStats struct {
	Datasets int
	Records  int
	Players  int
	Runs     int
}

// DatasetExists returns true if a dataset with the given content hash is already stored.
func (db *DB) DatasetExists(hash string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(1) FROM datasets WHERE hash = ?", hash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertDataset stores the dataset header and all its raw records in one
// transaction. Re-ingesting the same content replaces the header and appends
// nothing new because the caller gates on DatasetExists first.
func (db *DB) InsertDataset(ds *model.Dataset) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO datasets(hash, source, ingested_at, records)
		VALUES (?, ?, ?, ?)`,
		ds.SourceHash, ds.Source, time.Now().UTC().Format("2006-01-02 15:04:05"), len(ds.Records),
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO raw_records(
			dataset_hash, player_id, player_name, season, match_id, team_id,
			pts, ast, orb, drb, stl, blk, tov,
			fga, fgm, fg3a, fg3m, fta, ftm,
			pf, seconds,
			int_att, int_made, ext_att, ext_made
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range ds.Records {
		_, err = stmt.Exec(
			ds.SourceHash, r.PlayerID, r.PlayerName, r.Season, r.MatchID, r.TeamID,
			r.Points, r.Assists, r.OffRebounds, r.DefRebounds, r.Steals, r.Blocks, r.Turnovers,
			r.FieldGoalAtt, r.FieldGoalMade, r.ThreePointAtt, r.ThreePointMade, r.FreeThrowAtt, r.FreeThrowMade,
			r.PersonalFouls, r.Seconds,
			r.InteriorAtt, r.InteriorMade, r.ExteriorAtt, r.ExteriorMade,
		)
		if err != nil {
			return fmt.Errorf("insert raw_record for %s/%s: %w", r.PlayerID, r.MatchID, err)
		}
	}
	return tx.Commit()
}

// ListDatasets returns all ingested datasets, newest first.
func (db *DB) ListDatasets() ([]DatasetInfo, error) {
	rows, err := db.conn.Query(`
		SELECT hash, source, ingested_at, records
		FROM datasets ORDER BY ingested_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var d DatasetInfo
		if err := rows.Scan(&d.Hash, &d.Source, &d.IngestedAt, &d.Records); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const rawRecordColumns = `
	player_id, player_name, season, match_id, team_id,
	pts, ast, orb, drb, stl, blk, tov,
	fga, fgm, fg3a, fg3m, fta, ftm,
	pf, seconds,
	int_att, int_made, ext_att, ext_made`

// RawRecords returns every stored record, optionally filtered by season,
// ordered by match then player.
func (db *DB) RawRecords(season string) ([]model.RawRecord, error) {
	query := "SELECT" + rawRecordColumns + " FROM raw_records"
	var args []any
	if season != "" {
		query += " WHERE season = ?"
		args = append(args, season)
	}
	query += " ORDER BY match_id, player_id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRawRecords(rows)
}

// PlayerRecords returns all records for one player, ordered by match.
func (db *DB) PlayerRecords(playerID string) ([]model.RawRecord, error) {
	rows, err := db.conn.Query(
		"SELECT"+rawRecordColumns+" FROM raw_records WHERE player_id = ? ORDER BY match_id",
		playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRawRecords(rows)
}

func scanRawRecords(rows rowScanner) ([]model.RawRecord, error) {
	var out []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		if err := rows.Scan(
			&r.PlayerID, &r.PlayerName, &r.Season, &r.MatchID, &r.TeamID,
			&r.Points, &r.Assists, &r.OffRebounds, &r.DefRebounds, &r.Steals, &r.Blocks, &r.Turnovers,
			&r.FieldGoalAtt, &r.FieldGoalMade, &r.ThreePointAtt, &r.ThreePointMade, &r.FreeThrowAtt, &r.FreeThrowMade,
			&r.PersonalFouls, &r.Seconds,
			&r.InteriorAtt, &r.InteriorMade, &r.ExteriorAtt, &r.ExteriorMade,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rowScanner is the subset of *sql.Rows the record scanners need.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Stats counts what the store holds.
func (db *DB) Stats() (StoreStats, error) {
	var s StoreStats
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(1) FROM datasets", &s.Datasets},
		{"SELECT COUNT(1) FROM raw_records", &s.Records},
		{"SELECT COUNT(DISTINCT player_id) FROM raw_records WHERE player_id != ''", &s.Players},
		{"SELECT COUNT(1) FROM runs", &s.Runs},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dst); err != nil {
			return StoreStats{}, err
		}
	}
	return s, nil
}
