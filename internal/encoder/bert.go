package encoder

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/crimson-sun/citepred/internal/tensor"
)

// Config holds the transformer encoder hyperparameters.
type Config struct {
	VocabSize             int     `json:"vocab_size" yaml:"vocab_size"`
	HiddenSize            int     `json:"hidden_size" yaml:"hidden_size"`
	NumLayers             int     `json:"num_layers" yaml:"num_layers"`
	NumHeads              int     `json:"num_heads" yaml:"num_heads"`
	IntermediateSize      int     `json:"intermediate_size" yaml:"intermediate_size"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings" yaml:"max_position_embeddings"`
	LayerNormEps          float64 `json:"layer_norm_eps" yaml:"layer_norm_eps"`
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	if c.VocabSize < 1 || c.HiddenSize < 1 || c.NumLayers < 1 || c.NumHeads < 1 {
		return fmt.Errorf("encoder: invalid config: vocab=%d hidden=%d layers=%d heads=%d",
			c.VocabSize, c.HiddenSize, c.NumLayers, c.NumHeads)
	}
	if c.HiddenSize%c.NumHeads != 0 {
		return fmt.Errorf("encoder: hidden size %d must be divisible by %d heads", c.HiddenSize, c.NumHeads)
	}
	if c.MaxPositionEmbeddings < 2 {
		return fmt.Errorf("encoder: max position embeddings %d too small", c.MaxPositionEmbeddings)
	}
	if c.IntermediateSize < 1 {
		return fmt.Errorf("encoder: invalid intermediate size %d", c.IntermediateSize)
	}
	if c.LayerNormEps <= 0 {
		return fmt.Errorf("encoder: layer norm eps must be positive, got %g", c.LayerNormEps)
	}
	return nil
}

// DefaultConfig returns a compact encoder configuration (BERT-Tiny shape).
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:             vocabSize,
		HiddenSize:            128,
		NumLayers:             2,
		NumHeads:              2,
		IntermediateSize:      512,
		MaxPositionEmbeddings: 512,
		LayerNormEps:          1e-12,
	}
}

// bertLayer is a single post-norm transformer block.
type bertLayer struct {
	wq, bq, wk, bk, wv, bv *tensor.Tensor
	wo, bo                 *tensor.Tensor
	attnGamma, attnBeta    *tensor.Tensor

	fc1W, fc1B, fc2W, fc2B *tensor.Tensor
	outGamma, outBeta      *tensor.Tensor
}

// Bert is a trainable transformer encoder: token and position embeddings,
// a stack of attention + GELU MLP blocks, and a tanh pooler over the leading
// [CLS] position.
type Bert struct {
	cfg Config

	wordEmb, posEmb     *tensor.Tensor
	embGamma, embBeta   *tensor.Tensor
	layers              []*bertLayer
	poolDense, poolBias *tensor.Tensor
}

// NewBert builds an encoder with Xavier-initialized weights drawn from init.
func NewBert(cfg Config, init *rand.Rand) (*Bert, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := cfg.HiddenSize

	b := &Bert{
		cfg:       cfg,
		wordEmb:   tensor.Param(cfg.VocabSize, h),
		posEmb:    tensor.Param(cfg.MaxPositionEmbeddings, h),
		embGamma:  tensor.Param(1, h),
		embBeta:   tensor.Param(1, h),
		poolDense: tensor.Param(h, h),
		poolBias:  tensor.Param(1, h),
	}
	b.wordEmb.XavierInit(init)
	b.posEmb.XavierInit(init)
	ones(b.embGamma)
	b.poolDense.XavierInit(init)

	for i := 0; i < cfg.NumLayers; i++ {
		l := &bertLayer{
			wq: tensor.Param(h, h), bq: tensor.Param(1, h),
			wk: tensor.Param(h, h), bk: tensor.Param(1, h),
			wv: tensor.Param(h, h), bv: tensor.Param(1, h),
			wo: tensor.Param(h, h), bo: tensor.Param(1, h),
			attnGamma: tensor.Param(1, h), attnBeta: tensor.Param(1, h),
			fc1W: tensor.Param(h, cfg.IntermediateSize), fc1B: tensor.Param(1, cfg.IntermediateSize),
			fc2W: tensor.Param(cfg.IntermediateSize, h), fc2B: tensor.Param(1, h),
			outGamma: tensor.Param(1, h), outBeta: tensor.Param(1, h),
		}
		for _, w := range []*tensor.Tensor{l.wq, l.wk, l.wv, l.wo, l.fc1W, l.fc2W} {
			w.XavierInit(init)
		}
		ones(l.attnGamma)
		ones(l.outGamma)
		b.layers = append(b.layers, l)
	}
	return b, nil
}

func ones(t *tensor.Tensor) {
	d := t.Data()
	for i := range d {
		d[i] = 1
	}
}

// Config returns the encoder configuration.
func (b *Bert) Config() Config { return b.cfg }

// HiddenSize returns the pooled representation width.
func (b *Bert) HiddenSize() int { return b.cfg.HiddenSize }

// Forward encodes a rectangular batch. Each sequence is processed at its true
// length (mask prefix of 1s), so padding positions never enter the attention
// computation.
func (b *Bert) Forward(ids, mask [][]int64, train bool) (*Output, error) {
	if len(ids) == 0 || len(ids) != len(mask) {
		return nil, fmt.Errorf("encoder: batch of %d id rows and %d mask rows", len(ids), len(mask))
	}

	pooled := make([]*tensor.Tensor, len(ids))
	hidden := make([]*tensor.Tensor, len(ids))
	for i := range ids {
		if len(ids[i]) != len(mask[i]) {
			return nil, fmt.Errorf("encoder: example %d has %d ids but %d mask values", i, len(ids[i]), len(mask[i]))
		}
		trueLen := 0
		for _, m := range mask[i] {
			if m == 1 {
				trueLen++
			}
		}
		if trueLen == 0 {
			return nil, fmt.Errorf("encoder: example %d has no real tokens", i)
		}

		x := b.embed(ids[i][:trueLen])
		for _, l := range b.layers {
			x = b.block(l, x)
		}
		hidden[i] = x

		cls := tensor.SliceRows(x, 0, 1)
		pooled[i] = tensor.Tanh(tensor.AddBias(tensor.MatMul(cls, b.poolDense), b.poolBias))
	}

	return &Output{Pooled: tensor.ConcatRows(pooled...), Hidden: hidden}, nil
}

// embed sums token and position embeddings and layer-normalizes the result.
func (b *Bert) embed(tokenIDs []int64) *tensor.Tensor {
	tokIdx := make([]int, len(tokenIDs))
	posIdx := make([]int, len(tokenIDs))
	for i, id := range tokenIDs {
		tokIdx[i] = int(id)
		if i >= b.cfg.MaxPositionEmbeddings {
			posIdx[i] = b.cfg.MaxPositionEmbeddings - 1
		} else {
			posIdx[i] = i
		}
	}
	x := tensor.Add(tensor.GatherRows(b.wordEmb, tokIdx), tensor.GatherRows(b.posEmb, posIdx))
	return tensor.LayerNorm(x, b.embGamma, b.embBeta, b.cfg.LayerNormEps)
}

// block applies one transformer layer: multi-head self-attention and a GELU
// MLP, each followed by a residual connection and layer norm.
func (b *Bert) block(l *bertLayer, x *tensor.Tensor) *tensor.Tensor {
	headDim := b.cfg.HiddenSize / b.cfg.NumHeads
	scale := 1 / math.Sqrt(float64(headDim))

	q := tensor.AddBias(tensor.MatMul(x, l.wq), l.bq)
	k := tensor.AddBias(tensor.MatMul(x, l.wk), l.bk)
	v := tensor.AddBias(tensor.MatMul(x, l.wv), l.bv)

	heads := make([]*tensor.Tensor, b.cfg.NumHeads)
	for h := 0; h < b.cfg.NumHeads; h++ {
		from, to := h*headDim, (h+1)*headDim
		qh := tensor.SliceCols(q, from, to)
		kh := tensor.SliceCols(k, from, to)
		vh := tensor.SliceCols(v, from, to)

		scores := tensor.SoftmaxRows(tensor.Scale(tensor.MatMulBT(qh, kh), scale))
		heads[h] = tensor.MatMul(scores, vh)
	}
	ctx := tensor.ConcatCols(heads...)
	attnOut := tensor.AddBias(tensor.MatMul(ctx, l.wo), l.bo)
	x = tensor.LayerNorm(tensor.Add(x, attnOut), l.attnGamma, l.attnBeta, b.cfg.LayerNormEps)

	mlp := tensor.GELU(tensor.AddBias(tensor.MatMul(x, l.fc1W), l.fc1B))
	mlp = tensor.AddBias(tensor.MatMul(mlp, l.fc2W), l.fc2B)
	return tensor.LayerNorm(tensor.Add(x, mlp), l.outGamma, l.outBeta, b.cfg.LayerNormEps)
}

// Params returns every parameter tensor.
func (b *Bert) Params() []*tensor.Tensor {
	pm := b.ParamMap()
	out := make([]*tensor.Tensor, 0, len(pm))
	for _, name := range b.paramNames() {
		out = append(out, pm[name])
	}
	return out
}

// ParamMap returns parameters keyed by stable names.
func (b *Bert) ParamMap() map[string]*tensor.Tensor {
	m := map[string]*tensor.Tensor{
		"word_embeddings":     b.wordEmb,
		"position_embeddings": b.posEmb,
		"embeddings_gamma":    b.embGamma,
		"embeddings_beta":     b.embBeta,
		"pooler_dense":        b.poolDense,
		"pooler_bias":         b.poolBias,
	}
	for i, l := range b.layers {
		prefix := fmt.Sprintf("layer%d.", i)
		m[prefix+"attn_wq"] = l.wq
		m[prefix+"attn_bq"] = l.bq
		m[prefix+"attn_wk"] = l.wk
		m[prefix+"attn_bk"] = l.bk
		m[prefix+"attn_wv"] = l.wv
		m[prefix+"attn_bv"] = l.bv
		m[prefix+"attn_wo"] = l.wo
		m[prefix+"attn_bo"] = l.bo
		m[prefix+"attn_gamma"] = l.attnGamma
		m[prefix+"attn_beta"] = l.attnBeta
		m[prefix+"mlp_fc1"] = l.fc1W
		m[prefix+"mlp_fc1_bias"] = l.fc1B
		m[prefix+"mlp_fc2"] = l.fc2W
		m[prefix+"mlp_fc2_bias"] = l.fc2B
		m[prefix+"out_gamma"] = l.outGamma
		m[prefix+"out_beta"] = l.outBeta
	}
	return m
}

// paramNames returns the map keys in a deterministic order.
func (b *Bert) paramNames() []string {
	names := []string{
		"word_embeddings", "position_embeddings",
		"embeddings_gamma", "embeddings_beta",
	}
	for i := range b.layers {
		prefix := fmt.Sprintf("layer%d.", i)
		names = append(names,
			prefix+"attn_wq", prefix+"attn_bq",
			prefix+"attn_wk", prefix+"attn_bk",
			prefix+"attn_wv", prefix+"attn_bv",
			prefix+"attn_wo", prefix+"attn_bo",
			prefix+"attn_gamma", prefix+"attn_beta",
			prefix+"mlp_fc1", prefix+"mlp_fc1_bias",
			prefix+"mlp_fc2", prefix+"mlp_fc2_bias",
			prefix+"out_gamma", prefix+"out_beta",
		)
	}
	return append(names, "pooler_dense", "pooler_bias")
}
