package topology

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/encodeous/satmesh/state"
)

var requiredColumns = []string{"source", "target", "starttime", "endtime", "linktype"}

// NodeIdFromField extracts the satellite id from a topology field such as
// "STARLINK-1007 (44713)".
func NodeIdFromField(field string) string {
	parts := strings.Fields(field)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// ReadCSV reads a link topology table. The header row names the columns, the
// Quality, Bandwidth and Directed columns are optional.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", state.ErrMalformedTopologyRecord)
		}
		return nil, fmt.Errorf("%w: %v", state.ErrMalformedTopologyRecord, err)
	}
	cols := make(map[string]int)
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", state.ErrMalformedTopologyRecord, c)
		}
	}

	records := make([]Record, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", state.ErrMalformedTopologyRecord, line, err)
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", state.ErrMalformedTopologyRecord, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, cols map[string]int) (Record, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var rec Record
	var err error
	rec.Source = NodeIdFromField(get("source"))
	rec.Destination = NodeIdFromField(get("target"))
	rec.LinkType = get("linktype")
	if rec.StartTime, err = time.Parse(state.TopologyTimeLayout, get("starttime")); err != nil {
		return rec, fmt.Errorf("start time: %w", err)
	}
	if rec.EndTime, err = time.Parse(state.TopologyTimeLayout, get("endtime")); err != nil {
		return rec, fmt.Errorf("end time: %w", err)
	}
	if v := get("quality"); v != "" {
		if rec.Quality, err = strconv.ParseFloat(v, 64); err != nil {
			return rec, fmt.Errorf("quality: %w", err)
		}
	}
	if v := get("bandwidth"); v != "" {
		if rec.Bandwidth, err = strconv.Atoi(v); err != nil {
			return rec, fmt.Errorf("bandwidth: %w", err)
		}
	}
	if v := get("directed"); v != "" {
		if rec.Directed, err = strconv.ParseBool(v); err != nil {
			return rec, fmt.Errorf("directed: %w", err)
		}
	}
	return rec, nil
}

// LoadFile reads and loads a CSV topology file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Load(records)
}
