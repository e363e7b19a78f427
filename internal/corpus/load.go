package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidTable reports a malformed input table.
var ErrInvalidTable = errors.New("invalid input table")

// columnAliases lists accepted header names per field.
var columnAliases = map[string][]string{
	"video_id":   {"video_id", "youtube_id"},
	"label":      {"label"},
	"start_time": {"start_time", "time_start"},
	"end_time":   {"end_time", "time_end"},
}

// LoadFile reads the table at path, see Load.
func LoadFile(path string) ([]VideoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a CSV table with a header row. Columns are matched by name
// and extra columns are ignored; every required column must be present.
func Load(r io.Reader) ([]VideoRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty table", ErrInvalidTable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidTable, err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var records []VideoRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidTable, line, err)
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidTable, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func resolveColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make(map[string]int, len(columnAliases))
	var missing []string
	for field, aliases := range columnAliases {
		found := false
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				cols[field] = i
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", ErrInvalidTable, missing)
	}
	return cols, nil
}

func parseRow(row []string, cols map[string]int) (VideoRecord, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(row) {
			return "", fmt.Errorf("missing %s", name)
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return "", fmt.Errorf("empty %s", name)
		}
		return v, nil
	}
	seconds := func(name string) (int, error) {
		v, err := field(name)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			// tables exported from dataframes sometimes carry "10.0"
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil || f != float64(int(f)) {
				return 0, fmt.Errorf("%s %q is not a whole number of seconds", name, v)
			}
			n = int(f)
		}
		if n < 0 {
			return 0, fmt.Errorf("%s %d is negative", name, n)
		}
		return n, nil
	}

	var rec VideoRecord
	var err error
	if rec.VideoID, err = field("video_id"); err != nil {
		return rec, err
	}
	if rec.Label, err = field("label"); err != nil {
		return rec, err
	}
	if rec.StartTime, err = seconds("start_time"); err != nil {
		return rec, err
	}
	if rec.EndTime, err = seconds("end_time"); err != nil {
		return rec, err
	}
	return rec, nil
}
