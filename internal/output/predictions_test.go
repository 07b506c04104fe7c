package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWritePredictions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preds", "dev-out.csv")
	err := WritePredictions(path, []string{"a1", "b2"}, []float64{1.5, -0.25})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "id,predicted_score" {
		t.Fatalf("header %q", lines[0])
	}
	if lines[1] != "a1,1.5" {
		t.Fatalf("row %q, want a1,1.5", lines[1])
	}
	if lines[2] != "b2,-0.25" {
		t.Fatalf("row %q, want b2,-0.25", lines[2])
	}
}

func TestWritePredictionsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WritePredictions(path, nil, nil); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if strings.TrimRight(string(raw), "\n") != "id,predicted_score" {
		t.Fatalf("empty output should be header only, got %q", raw)
	}
}

func TestWritePredictionsLengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WritePredictions(path, []string{"a"}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for mismatched ids and predictions")
	}
}
