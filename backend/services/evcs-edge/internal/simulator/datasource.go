// Package simulator replays recorded profiles as simulated devices.
package simulator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Datasource replays a column of numeric values in a loop.
type Datasource struct {
	id string

	mu     sync.Mutex
	values []float64
	next   int
}

// LoadCSV reads column from the CSV file at path. The first row is a header
// when its column cell is not numeric. An empty column selects the first one.
func LoadCSV(id, path, column string) (*Datasource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("simulator: open datasource %s: %w", id, err)
	}
	defer f.Close()
	return ReadCSV(id, f, column)
}

// ReadCSV is LoadCSV on a reader.
func ReadCSV(id string, r io.Reader, column string) (*Datasource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("simulator: parse datasource %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("simulator: datasource %s is empty", id)
	}

	idx := 0
	start := 0
	if _, err := strconv.ParseFloat(strings.TrimSpace(records[0][0]), 64); err != nil || column != "" {
		if column != "" {
			idx = -1
			for i, name := range records[0] {
				if strings.EqualFold(strings.TrimSpace(name), column) {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("simulator: datasource %s has no column %q", id, column)
			}
		}
		start = 1
	}

	values := make([]float64, 0, len(records)-start)
	for line, rec := range records[start:] {
		if idx >= len(rec) {
			return nil, fmt.Errorf("simulator: datasource %s row %d: missing column", id, line+start+1)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
		if err != nil {
			return nil, fmt.Errorf("simulator: datasource %s row %d: %w", id, line+start+1, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, errors.New("simulator: datasource " + id + " has no values")
	}
	return &Datasource{id: id, values: values}, nil
}

// ID returns the datasource id.
func (d *Datasource) ID() string {
	return d.id
}

// Len returns the number of samples.
func (d *Datasource) Len() int {
	return len(d.values)
}

// Next returns the next sample, wrapping around at the end.
func (d *Datasource) Next() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.values[d.next]
	d.next = (d.next + 1) % len(d.values)
	return v
}
