package model

import (
	"testing"

	"github.com/crimson-sun/citepred/internal/encoder"
	"github.com/crimson-sun/citepred/internal/rng"
	"github.com/crimson-sun/citepred/internal/tensor"
)

func tinyEncoderConfig() encoder.Config {
	return encoder.Config{
		VocabSize:             12,
		HiddenSize:            8,
		NumLayers:             1,
		NumHeads:              2,
		IntermediateSize:      16,
		MaxPositionEmbeddings: 16,
		LayerNormEps:          1e-12,
	}
}

func newTinyScorer(t *testing.T, mode FineTuneMode) (*Scorer, *encoder.Bert) {
	t.Helper()
	rngs := rng.NewSet(11711)
	enc, err := encoder.NewBert(tinyEncoderConfig(), rngs.Init)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	s, err := New(enc, Config{Mode: mode, DropoutProb: 0.1, HiddenSize: 8}, rngs)
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	return s, enc
}

func tinyBatch() (ids, mask [][]int64) {
	ids = [][]int64{
		{2, 5, 6, 3},
		{2, 7, 3, 0},
	}
	mask = [][]int64{
		{1, 1, 1, 1},
		{1, 1, 1, 0},
	}
	return ids, mask
}

func TestForwardShape(t *testing.T) {
	s, _ := newTinyScorer(t, FullModel)
	ids, mask := tinyBatch()

	logits, err := s.Forward(ids, mask)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if logits.Rows() != 2 || logits.Cols() != 1 {
		t.Fatalf("logits shape [%d,%d], want [2,1]", logits.Rows(), logits.Cols())
	}
}

func TestHeadOnlyFreezesEncoder(t *testing.T) {
	s, enc := newTinyScorer(t, HeadOnly)
	ids, mask := tinyBatch()

	logits, err := s.Forward(ids, mask)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	tensor.MSE(logits, []float64{1, 2}).Backward()

	for name, p := range enc.ParamMap() {
		for _, g := range p.Grad() {
			if g != 0 {
				t.Fatalf("frozen encoder parameter %q accumulated gradient", name)
			}
		}
	}

	headGrad := s.ParamMap()["classifier.weight"].Grad()
	nonzero := false
	for _, g := range headGrad {
		if g != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Fatal("head weight received no gradient")
	}
}

func TestFullModelTrainsEncoder(t *testing.T) {
	s, enc := newTinyScorer(t, FullModel)
	ids, mask := tinyBatch()

	logits, err := s.Forward(ids, mask)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	tensor.MSE(logits, []float64{1, 2}).Backward()

	emb := enc.ParamMap()["word_embeddings"]
	nonzero := false
	for _, g := range emb.Grad() {
		if g != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Fatal("word embeddings received no gradient in full-model mode")
	}
}

func TestTrainableParamsByMode(t *testing.T) {
	head, _ := newTinyScorer(t, HeadOnly)
	full, enc := newTinyScorer(t, FullModel)

	if got := len(head.TrainableParams()); got != 2 {
		t.Fatalf("head-only trains %d tensors, want 2", got)
	}
	want := len(enc.Params()) + 2
	if got := len(full.TrainableParams()); got != want {
		t.Fatalf("full-model trains %d tensors, want %d", got, want)
	}
}

func TestDropoutOnlyDuringTraining(t *testing.T) {
	s, _ := newTinyScorer(t, HeadOnly)
	ids, mask := tinyBatch()

	s.SetTraining(false)
	a, err := s.Forward(ids, mask)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	b, err := s.Forward(ids, mask)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	for i := 0; i < a.Rows(); i++ {
		if a.At(i, 0) != b.At(i, 0) {
			t.Fatal("inference forward is not deterministic")
		}
	}
}

func TestConfigValidation(t *testing.T) {
	rngs := rng.NewSet(1)
	enc, err := encoder.NewBert(tinyEncoderConfig(), rngs.Init)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}

	if _, err := New(enc, Config{Mode: "partial", DropoutProb: 0.1, HiddenSize: 8}, rngs); err == nil {
		t.Fatal("expected error for unknown fine-tune mode")
	}
	if _, err := New(enc, Config{Mode: HeadOnly, DropoutProb: 1.0, HiddenSize: 8}, rngs); err == nil {
		t.Fatal("expected error for dropout probability 1.0")
	}
	if _, err := New(enc, Config{Mode: HeadOnly, DropoutProb: 0.1, HiddenSize: 16}, rngs); err == nil {
		t.Fatal("expected error for hidden size mismatch")
	}
}

// paramlessEncoder mimics a frozen external encoder with no trainable state.
type paramlessEncoder struct{}

func (paramlessEncoder) Forward(ids, mask [][]int64, _ bool) (*encoder.Output, error) {
	pooled := tensor.New(len(ids), 8)
	return &encoder.Output{Pooled: pooled}, nil
}
func (paramlessEncoder) Params() []*tensor.Tensor            { return nil }
func (paramlessEncoder) ParamMap() map[string]*tensor.Tensor { return nil }
func (paramlessEncoder) HiddenSize() int                     { return 8 }

func TestFullModelRejectsFrozenEncoder(t *testing.T) {
	rngs := rng.NewSet(1)
	if _, err := New(paramlessEncoder{}, Config{Mode: FullModel, DropoutProb: 0.1, HiddenSize: 8}, rngs); err == nil {
		t.Fatal("expected error for full-model mode on an encoder without parameters")
	}
}
