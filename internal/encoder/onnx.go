package encoder

import (
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/citepred/internal/tensor"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNX is a frozen pretrained encoder served by ONNX Runtime. It has no
// trainable parameters, so it is only valid for head-only fine-tuning and
// inference; the scoring model rejects it in full-model mode.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	hiddenSize int64
}

// NewONNX loads the model and creates an inference session. The ONNX Runtime
// shared library is expected alongside the model file.
func NewONNX(modelPath string) (*ONNX, error) {
	libPath := filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputNames, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	// Expect a single [batch, seq, hidden] last-hidden-state output.
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	outputName := outputs[0].Name
	dims := outputs[0].Dimensions
	if len(dims) != 3 {
		return nil, fmt.Errorf("onnx: expected 3D output tensor, got %v", dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(4)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		[]string{outputName},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNX{
		session:    session,
		inputNames: inputNames,
		outputName: outputName,
		hiddenSize: dims[2],
	}, nil
}

// validateInputs checks that the model has the expected BERT-style inputs
// and returns them in the correct order.
func validateInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	nameSet := make(map[string]bool, len(inputs))
	for _, inp := range inputs {
		nameSet[inp.Name] = true
	}
	required := []string{"input_ids", "attention_mask", "token_type_ids"}
	for _, name := range required {
		if !nameSet[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	return required, nil
}

// HiddenSize returns the width of the hidden states.
func (o *ONNX) HiddenSize() int { return int(o.hiddenSize) }

// Params returns nil: the weights live in the ONNX artifact and never train.
func (o *ONNX) Params() []*tensor.Tensor { return nil }

// ParamMap returns nil for the same reason as Params.
func (o *ONNX) ParamMap() map[string]*tensor.Tensor { return nil }

// Forward runs inference over the batch and wraps the results as leaf
// tensors: the [CLS] hidden state of each example serves as the pooled
// representation. The train flag is ignored; this encoder is always frozen.
func (o *ONNX) Forward(ids, mask [][]int64, _ bool) (*Output, error) {
	batchSize := int64(len(ids))
	if batchSize == 0 {
		return nil, fmt.Errorf("onnx: empty batch")
	}
	seqLen := int64(len(ids[0]))

	flatIDs := make([]int64, 0, batchSize*seqLen)
	flatMask := make([]int64, 0, batchSize*seqLen)
	for i := range ids {
		if int64(len(ids[i])) != seqLen || int64(len(mask[i])) != seqLen {
			return nil, fmt.Errorf("onnx: ragged batch at row %d", i)
		}
		flatIDs = append(flatIDs, ids[i]...)
		flatMask = append(flatMask, mask[i]...)
	}
	tokenTypes := make([]int64, batchSize*seqLen)

	hiddenFlat, err := o.infer(flatIDs, flatMask, tokenTypes, batchSize, seqLen)
	if err != nil {
		return nil, err
	}

	h := o.hiddenSize
	pooledData := make([]float64, batchSize*h)
	hidden := make([]*tensor.Tensor, batchSize)
	for i := int64(0); i < batchSize; i++ {
		trueLen := int64(0)
		for _, m := range mask[i] {
			if m == 1 {
				trueLen++
			}
		}
		rows := make([]float64, trueLen*h)
		base := i * seqLen * h
		for j := int64(0); j < trueLen*h; j++ {
			rows[j] = float64(hiddenFlat[base+j])
		}
		hidden[i] = tensor.FromData(int(trueLen), int(h), rows)
		// CLS is the first position of each sequence.
		copy(pooledData[i*h:(i+1)*h], rows[:h])
	}

	return &Output{
		Pooled: tensor.FromData(int(batchSize), int(h), pooledData),
		Hidden: hidden,
	}, nil
}

// infer runs a single inference call over flat [batch*seq] inputs and returns
// the flat [batch*seq*hidden] last hidden state.
func (o *ONNX) infer(inputIDs, attentionMask, tokenTypeIDs []int64, batchSize, seqLen int64) ([]float32, error) {
	shape := ort.NewShape(batchSize, seqLen)

	tIDs, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input_ids tensor: %w", err)
	}
	defer tIDs.Destroy()

	tMask, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create attention_mask tensor: %w", err)
	}
	defer tMask.Destroy()

	tTypes, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create token_type_ids tensor: %w", err)
	}
	defer tTypes.Destroy()

	outShape := ort.NewShape(batchSize, seqLen, o.hiddenSize)
	tOut, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	err = o.session.Run(
		[]ort.Value{tIDs, tMask, tTypes},
		[]ort.Value{tOut},
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before tensor is destroyed.
	src := tOut.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

// Close releases the ONNX session resources.
func (o *ONNX) Close() error {
	return o.session.Destroy()
}
