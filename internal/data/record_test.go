package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "split.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tsv: %v", err)
	}
	return path
}

func TestLoadTrainRecords(t *testing.T) {
	path := writeTSV(t, "id\tsentence\tsentiment\nA1\tDeep Learning Works \t3\na2\tanother abstract\t0\n")

	records, card, err := LoadTrainRecords(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Text != "deep learning works" {
		t.Fatalf("text not normalized: %q", records[0].Text)
	}
	if records[0].ID != "a1" {
		t.Fatalf("id not normalized: %q", records[0].ID)
	}
	if records[0].Label != 3 || !records[0].HasLabel {
		t.Fatalf("label not parsed: %+v", records[0])
	}
	if card != 2 {
		t.Fatalf("cardinality %d, want 2", card)
	}
}

func TestLoadTestRecordsSkipLabels(t *testing.T) {
	path := writeTSV(t, "id\tsentence\nx\tsome abstract\n")

	records, err := LoadRecords(path, Test)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].HasLabel {
		t.Fatal("test split record carries a label")
	}
}

func TestLoadMissingColumn(t *testing.T) {
	path := writeTSV(t, "id\tsentence\nx\tabstract without labels\n")

	_, err := LoadRecords(path, Valid)
	var mre *MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
}

func TestLoadNonIntegerLabel(t *testing.T) {
	path := writeTSV(t, "id\tsentence\tsentiment\nx\tabstract\thigh\n")

	_, err := LoadRecords(path, Valid)
	var mre *MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
	if mre.Line != 2 {
		t.Fatalf("error at line %d, want 2", mre.Line)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadRecords(filepath.Join(t.TempDir(), "absent.tsv"), Train); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLabelIndexFirstSeenOrder(t *testing.T) {
	li := NewLabelIndex()
	for _, v := range []int{4, 2, 4, 0, 2} {
		li.Observe(v)
	}
	if li.Cardinality() != 3 {
		t.Fatalf("cardinality %d, want 3", li.Cardinality())
	}
}
