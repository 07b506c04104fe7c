package data

import "fmt"

// Tokenizer converts a slice of raw texts into rectangular token-id and
// attention-mask grids padded to the batch-local maximum length.
type Tokenizer interface {
	EncodeBatch(texts []string) (ids, mask [][]int64)
}

// Batch is one assembled group of examples. Contents are immutable once
// assembled; only the order of whole batches is ever shuffled.
type Batch struct {
	TokenIDs      [][]int64
	AttentionMask [][]int64
	// Labels is nil for test-only splits.
	Labels []float64
	Texts  []string
	IDs    []string
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int { return len(b.TokenIDs) }

// ShapeMismatchError reports inconsistent batch tensors, which indicates an
// assembler defect rather than bad input data.
type ShapeMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("data: batch shape mismatch: %s: want %d, got %d", e.What, e.Want, e.Got)
}

// Validate checks the batch invariants: matching row counts across all
// fields and rectangular id/mask grids of equal width.
func (b *Batch) Validate() error {
	n := len(b.TokenIDs)
	if len(b.AttentionMask) != n {
		return &ShapeMismatchError{What: "attention mask rows", Want: n, Got: len(b.AttentionMask)}
	}
	if b.Labels != nil && len(b.Labels) != n {
		return &ShapeMismatchError{What: "labels", Want: n, Got: len(b.Labels)}
	}
	if len(b.Texts) != n {
		return &ShapeMismatchError{What: "texts", Want: n, Got: len(b.Texts)}
	}
	if len(b.IDs) != n {
		return &ShapeMismatchError{What: "ids", Want: n, Got: len(b.IDs)}
	}
	if n == 0 {
		return nil
	}
	width := len(b.TokenIDs[0])
	for i := range b.TokenIDs {
		if len(b.TokenIDs[i]) != width {
			return &ShapeMismatchError{What: fmt.Sprintf("token ids row %d", i), Want: width, Got: len(b.TokenIDs[i])}
		}
		if len(b.AttentionMask[i]) != width {
			return &ShapeMismatchError{What: fmt.Sprintf("mask row %d", i), Want: width, Got: len(b.AttentionMask[i])}
		}
	}
	return nil
}

// Assembler turns record slices into batches of a fixed size.
type Assembler struct {
	tok       Tokenizer
	batchSize int
}

// NewAssembler creates an assembler for the given tokenizer and batch size.
func NewAssembler(tok Tokenizer, batchSize int) *Assembler {
	return &Assembler{tok: tok, batchSize: batchSize}
}

// Split chunks records into batch-sized groups, preserving order. The final
// group may be smaller than the batch size.
func (a *Assembler) Split(records []Record) [][]Record {
	var groups [][]Record
	for start := 0; start < len(records); start += a.batchSize {
		end := start + a.batchSize
		if end > len(records) {
			end = len(records)
		}
		groups = append(groups, records[start:end])
	}
	return groups
}

// Assemble produces exactly one batch from a record slice. All texts are
// tokenized jointly so the padded width is the longest sequence in this
// batch. Labels are included when every record carries one.
func (a *Assembler) Assemble(records []Record) (*Batch, error) {
	texts := make([]string, len(records))
	ids := make([]string, len(records))
	labeled := len(records) > 0
	for i, r := range records {
		texts[i] = r.Text
		ids[i] = r.ID
		if !r.HasLabel {
			labeled = false
		}
	}

	tokenIDs, mask := a.tok.EncodeBatch(texts)
	b := &Batch{
		TokenIDs:      tokenIDs,
		AttentionMask: mask,
		Texts:         texts,
		IDs:           ids,
	}
	if labeled {
		b.Labels = make([]float64, len(records))
		for i, r := range records {
			b.Labels[i] = r.Label
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// AssembleAll splits and assembles a full record slice.
func (a *Assembler) AssembleAll(records []Record) ([]*Batch, error) {
	groups := a.Split(records)
	batches := make([]*Batch, 0, len(groups))
	for _, g := range groups {
		b, err := a.Assemble(g)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
