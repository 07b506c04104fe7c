// Package output writes prediction files for scored splits.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// WritePredictions writes a CSV file with one row per example: the example id
// and its predicted score. Parent directories are created as needed.
func WritePredictions(path string, ids []string, preds []float64) error {
	if len(ids) != len(preds) {
		return fmt.Errorf("output: %d ids for %d predictions", len(ids), len(preds))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("output: create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, "id,predicted_score"); err != nil {
		f.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	for i, id := range ids {
		if _, err := fmt.Fprintf(w, "%s,%g\n", id, preds[i]); err != nil {
			f.Close()
			return fmt.Errorf("output: write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("output: flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	return nil
}
