// Package loader reads raw box-score datasets from CSV or JSON-lines files
// into model records. The column contract is validated up front so a malformed
// file fails before anything is persisted.
package loader

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hooplab/hoopcluster/internal/logging"
	"github.com/hooplab/hoopcluster/internal/model"
)

// Supported input formats.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// requiredColumns must all appear in a CSV header. Zone and provenance
// columns are optional and default to zero values.
var requiredColumns = []string{
	"player_id", "player_name", "match_id",
	"pts", "ast", "orb", "drb", "stl", "blk", "tov",
	"fga", "fgm", "3pa", "3pm", "fta", "ftm",
	"pf", "seconds",
}

var optionalColumns = []string{
	"season", "team_id", "int_att", "int_made", "ext_att", "ext_made",
}

// HeaderError reports required columns absent from a CSV header.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("csv header missing required columns: %s", strings.Join(e.Missing, ", "))
}

// DetectFormat infers the input format from the file extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("cannot infer format of %q: expected .csv, .jsonl or .ndjson", filepath.Base(path))
	}
}

// Load reads the dataset at path. An empty format means detect by extension.
func Load(path, format string) (*model.Dataset, error) {
	log := logging.New("loader")

	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	// Hash file for idempotency key.
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash dataset: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek dataset: %w", err)
	}

	var records []model.RawRecord
	switch format {
	case FormatCSV:
		records, err = readCSV(f)
	case FormatJSONL:
		records, err = readJSONL(f)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		log.Warn("dataset is empty", "source", filepath.Base(path))
	}

	log.Info("dataset loaded",
		"source", filepath.Base(path),
		"format", format,
		"records", len(records))

	return &model.Dataset{
		Source:     filepath.Base(path),
		SourceHash: fmt.Sprintf("%x", h.Sum(nil)),
		Records:    records,
	}, nil
}

func readCSV(r io.Reader) ([]model.RawRecord, error) {
	log := logging.New("loader")

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file, no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	known := make(map[string]bool, len(requiredColumns)+len(optionalColumns))
	for _, col := range requiredColumns {
		known[col] = true
	}
	for _, col := range optionalColumns {
		known[col] = true
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		idx[name] = i
		if !known[name] {
			log.Warn("ignoring unrecognized column", "column", name)
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing}
	}

	str := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []model.RawRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var rec model.RawRecord
		var convErr error
		num := func(col string) int {
			if convErr != nil {
				return 0
			}
			s := str(row, col)
			if s == "" {
				return 0
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				convErr = fmt.Errorf("line %d: column %q: %w", line, col, err)
			}
			return n
		}

		rec.PlayerID = str(row, "player_id")
		rec.PlayerName = str(row, "player_name")
		rec.Season = str(row, "season")
		rec.MatchID = str(row, "match_id")
		rec.TeamID = str(row, "team_id")
		rec.Points = num("pts")
		rec.Assists = num("ast")
		rec.OffRebounds = num("orb")
		rec.DefRebounds = num("drb")
		rec.Steals = num("stl")
		rec.Blocks = num("blk")
		rec.Turnovers = num("tov")
		rec.FieldGoalAtt = num("fga")
		rec.FieldGoalMade = num("fgm")
		rec.ThreePointAtt = num("3pa")
		rec.ThreePointMade = num("3pm")
		rec.FreeThrowAtt = num("fta")
		rec.FreeThrowMade = num("ftm")
		rec.PersonalFouls = num("pf")
		rec.Seconds = num("seconds")
		rec.InteriorAtt = num("int_att")
		rec.InteriorMade = num("int_made")
		rec.ExteriorAtt = num("ext_att")
		rec.ExteriorMade = num("ext_made")
		if convErr != nil {
			return nil, convErr
		}
		records = append(records, rec)
	}
	return records, nil
}

// jsonRecord is the JSONL wire shape; keys match the CSV column names.
type jsonRecord struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Season     string `json:"season"`
	MatchID    string `json:"match_id"`
	TeamID     string `json:"team_id"`

	Points    int `json:"pts"`
	Assists   int `json:"ast"`
	OffReb    int `json:"orb"`
	DefReb    int `json:"drb"`
	Steals    int `json:"stl"`
	Blocks    int `json:"blk"`
	Turnovers int `json:"tov"`

	FGA int `json:"fga"`
	FGM int `json:"fgm"`
	TPA int `json:"3pa"`
	TPM int `json:"3pm"`
	FTA int `json:"fta"`
	FTM int `json:"ftm"`

	Fouls   int `json:"pf"`
	Seconds int `json:"seconds"`

	IntAtt  int `json:"int_att"`
	IntMade int `json:"int_made"`
	ExtAtt  int `json:"ext_att"`
	ExtMade int `json:"ext_made"`
}

func readJSONL(r io.Reader) ([]model.RawRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []model.RawRecord
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var jr jsonRecord
		if err := json.Unmarshal([]byte(text), &jr); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, model.RawRecord{
			PlayerID:       jr.PlayerID,
			PlayerName:     jr.PlayerName,
			Season:         jr.Season,
			MatchID:        jr.MatchID,
			TeamID:         jr.TeamID,
			Points:         jr.Points,
			Assists:        jr.Assists,
			OffRebounds:    jr.OffReb,
			DefRebounds:    jr.DefReb,
			Steals:         jr.Steals,
			Blocks:         jr.Blocks,
			Turnovers:      jr.Turnovers,
			FieldGoalAtt:   jr.FGA,
			FieldGoalMade:  jr.FGM,
			ThreePointAtt:  jr.TPA,
			ThreePointMade: jr.TPM,
			FreeThrowAtt:   jr.FTA,
			FreeThrowMade:  jr.FTM,
			PersonalFouls:  jr.Fouls,
			Seconds:        jr.Seconds,
			InteriorAtt:    jr.IntAtt,
			InteriorMade:   jr.IntMade,
			ExteriorAtt:    jr.ExtAtt,
			ExteriorMade:   jr.ExtMade,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return records, nil
}
