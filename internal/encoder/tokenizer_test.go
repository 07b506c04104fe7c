package encoder

import (
	"os"
	"path/filepath"
	"testing"
)

// testVocab writes a small vocab.txt and returns its path. IDs follow line
// order: [PAD]=0, [UNK]=1, [CLS]=2, [SEP]=3.
func testVocab(t *testing.T) string {
	t.Helper()
	vocab := "[PAD]\n[UNK]\n[CLS]\n[SEP]\ndeep\nlearning\nmodel\n##s\ncitation\n.\n"
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(vocab), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	return path
}

func TestNewTokenizerMissingSpecial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("just\nwords\n"), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	if _, err := NewTokenizer(path); err == nil {
		t.Fatal("expected error for vocab without special tokens")
	}
}

func TestEncodeBatchPadsToBatchMax(t *testing.T) {
	tok, err := NewTokenizer(testVocab(t))
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	ids, mask := tok.EncodeBatch([]string{"deep learning", "citation"})
	if len(ids) != 2 || len(mask) != 2 {
		t.Fatalf("got %d/%d rows, want 2/2", len(ids), len(mask))
	}

	// "deep learning" -> [CLS] deep learning [SEP] = 4 tokens, the longest.
	width := len(ids[0])
	if width != 4 {
		t.Fatalf("batch width %d, want 4", width)
	}
	for i := range ids {
		if len(ids[i]) != width || len(mask[i]) != width {
			t.Fatalf("row %d not padded to batch width", i)
		}
	}

	// The shorter row ends in padding with mask zero.
	if ids[1][3] != tok.PadID() {
		t.Fatalf("expected pad id %d at tail, got %d", tok.PadID(), ids[1][3])
	}
	if mask[1][3] != 0 {
		t.Fatal("padding position has mask 1")
	}
	if mask[1][0] != 1 || mask[1][1] != 1 || mask[1][2] != 1 {
		t.Fatalf("real tokens not masked 1: %v", mask[1])
	}
}

func TestEncodeBatchWidthIsBatchLocal(t *testing.T) {
	tok, err := NewTokenizer(testVocab(t))
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	short, _ := tok.EncodeBatch([]string{"citation"})
	long, _ := tok.EncodeBatch([]string{"deep learning model citation"})
	if len(short[0]) == len(long[0]) {
		t.Fatal("batch width did not adapt to batch contents")
	}
	// A lone sequence carries no padding at all.
	if len(short[0]) != 3 {
		t.Fatalf("single short sequence width %d, want 3", len(short[0]))
	}
}

func TestWordpieceSubwords(t *testing.T) {
	tok, err := NewTokenizer(testVocab(t))
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	// "models" decomposes into "model" + "##s".
	ids, _ := tok.EncodeBatch([]string{"models"})
	want := []int64{2, 6, 7, 3} // [CLS] model ##s [SEP]
	if len(ids[0]) != len(want) {
		t.Fatalf("got %v, want %v", ids[0], want)
	}
	for i := range want {
		if ids[0][i] != want[i] {
			t.Fatalf("got %v, want %v", ids[0], want)
		}
	}
}

func TestUnknownTokenMapsToUnk(t *testing.T) {
	tok, err := NewTokenizer(testVocab(t))
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	ids, _ := tok.EncodeBatch([]string{"zzzzz"})
	if ids[0][1] != 1 {
		t.Fatalf("unknown word mapped to %d, want [UNK]=1", ids[0][1])
	}
}

func TestCaseAndPunctuation(t *testing.T) {
	tok, err := NewTokenizer(testVocab(t))
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	upper, _ := tok.EncodeBatch([]string{"DEEP Learning."})
	lower, _ := tok.EncodeBatch([]string{"deep learning ."})
	if len(upper[0]) != len(lower[0]) {
		t.Fatalf("case/punct variants tokenized differently: %v vs %v", upper[0], lower[0])
	}
	for i := range upper[0] {
		if upper[0][i] != lower[0][i] {
			t.Fatalf("case/punct variants tokenized differently: %v vs %v", upper[0], lower[0])
		}
	}
}
