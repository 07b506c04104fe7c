// Package encoder provides the pretrained text encoders behind the scoring
// model: WordPiece tokenization, a trainable pure-Go transformer, and a
// frozen ONNX-backed alternative for head-only fine-tuning.
package encoder

import "github.com/crimson-sun/citepred/internal/tensor"

// Output is the result of one encoder forward pass.
type Output struct {
	// Pooled is the per-example representation of the leading [CLS] token
	// after the pooler, shape [batch, hidden].
	Pooled *tensor.Tensor
	// Hidden holds the full per-token hidden-state sequence for each
	// example, trimmed to its true (unpadded) length.
	Hidden []*tensor.Tensor
}

// Encoder maps token-id and attention-mask grids to pooled representations.
type Encoder interface {
	// Forward runs the encoder over a rectangular batch. Padding positions
	// (mask 0) do not contribute to the result.
	Forward(ids, mask [][]int64, train bool) (*Output, error)
	// Params returns the encoder's parameter tensors. Empty for encoders
	// whose weights live outside the process (and can therefore never be
	// fine-tuned).
	Params() []*tensor.Tensor
	// ParamMap returns the parameters keyed by stable names for
	// serialization.
	ParamMap() map[string]*tensor.Tensor
	// HiddenSize returns the width of the pooled representation.
	HiddenSize() int
}
