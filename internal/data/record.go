// Package data loads labeled and unlabeled abstract records from
// tab-separated files and assembles them into padded batches.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Mode selects which columns a split is required to carry.
type Mode int

const (
	// Train splits carry labels and additionally build the label index.
	Train Mode = iota
	// Valid splits carry labels.
	Valid
	// Test splits carry no labels.
	Test
)

// Record is one example: its abstract text, an optional scalar label, and
// the identifier carried through to prediction output.
type Record struct {
	Text     string
	Label    float64
	HasLabel bool
	ID       string
}

// MalformedRecordError reports an unusable input row. Loading aborts on the
// first occurrence; no partial state survives.
type MalformedRecordError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("data: malformed record in %s line %d: %s", e.Path, e.Line, e.Reason)
}

// LabelIndex maps each raw label value to a dense zero-based index in
// first-seen order. It exists only to report the cardinality of the label
// space; the loss always treats labels as continuous scalars.
type LabelIndex struct {
	index map[int]int
}

// NewLabelIndex returns an empty index.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{index: make(map[int]int)}
}

// Observe registers a raw label value if unseen.
func (li *LabelIndex) Observe(label int) {
	if _, ok := li.index[label]; !ok {
		li.index[label] = len(li.index)
	}
}

// Cardinality returns the number of distinct labels observed.
func (li *LabelIndex) Cardinality() int { return len(li.index) }

// LoadRecords parses a tab-separated file with a header row into records.
// Required columns are `id` and `sentence`, plus `sentiment` for non-test
// modes. Text and id are lower-cased and whitespace-trimmed.
func LoadRecords(path string, mode Mode) ([]Record, error) {
	recs, _, err := load(path, mode)
	return recs, err
}

// LoadTrainRecords loads a training split and additionally returns the
// cardinality of the distinct label values observed, as a diagnostic.
func LoadTrainRecords(path string) ([]Record, int, error) {
	return load(path, Train)
}

func load(path string, mode Mode) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("data: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, 0, &MalformedRecordError{Path: path, Line: 1, Reason: "missing header row"}
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	required := []string{"id", "sentence"}
	if mode != Test {
		required = append(required, "sentiment")
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, 0, &MalformedRecordError{Path: path, Line: 1, Reason: fmt.Sprintf("missing required column %q", name)}
		}
	}

	labels := NewLabelIndex()
	var records []Record
	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, &MalformedRecordError{Path: path, Line: line + 1, Reason: err.Error()}
		}
		line++

		get := func(name string) (string, bool) {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return "", false
			}
			return row[i], true
		}

		sent, ok := get("sentence")
		if !ok {
			return nil, 0, &MalformedRecordError{Path: path, Line: line, Reason: "missing sentence field"}
		}
		id, ok := get("id")
		if !ok {
			return nil, 0, &MalformedRecordError{Path: path, Line: line, Reason: "missing id field"}
		}

		rec := Record{
			Text: strings.ToLower(strings.TrimSpace(sent)),
			ID:   strings.ToLower(strings.TrimSpace(id)),
		}

		if mode != Test {
			raw, ok := get("sentiment")
			if !ok {
				return nil, 0, &MalformedRecordError{Path: path, Line: line, Reason: "missing sentiment field"}
			}
			label, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, 0, &MalformedRecordError{Path: path, Line: line, Reason: fmt.Sprintf("label %q is not an integer", raw)}
			}
			labels.Observe(label)
			rec.Label = float64(label)
			rec.HasLabel = true
		}
		records = append(records, rec)
	}

	if mode == Train {
		slog.Info("loaded records", "path", path, "count", len(records))
	}
	return records, labels.Cardinality(), nil
}
