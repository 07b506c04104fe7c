// Package train drives fine-tuning: the epoch loop, dev-set evaluation, and
// best-checkpoint persistence.
package train

import (
	"fmt"
	"math"

	"github.com/crimson-sun/citepred/internal/data"
	"github.com/crimson-sun/citepred/internal/model"
	"github.com/crimson-sun/citepred/internal/tensor"
)

// EvalResult holds the outcome of one pass over a labeled split.
type EvalResult struct {
	// Predictions are the raw scalar scores, one per example, in the same
	// order the batches were given.
	Predictions []float64
	// IDs are the example identifiers aligned with Predictions.
	IDs []string
	// Correlation is the Pearson correlation between predictions and
	// labels. NaN when either side has zero variance.
	Correlation float64
	// Loss is the mean per-batch training objective over the split.
	Loss float64
}

// Evaluate runs the scorer over labeled batches without dropout and computes
// loss and Pearson correlation. The scorer's training flag is restored before
// returning, so evaluation can run mid-epoch.
func Evaluate(s *model.Scorer, batches []*data.Batch, batchSize int) (*EvalResult, error) {
	wasTraining := s.Training()
	s.SetTraining(false)
	defer s.SetTraining(wasTraining)

	res := &EvalResult{}
	var labels []float64
	var lossSum float64
	for _, b := range batches {
		if b.Labels == nil {
			return nil, fmt.Errorf("train: evaluate on unlabeled batch")
		}
		logits, err := s.Forward(b.TokenIDs, b.AttentionMask)
		if err != nil {
			return nil, fmt.Errorf("train: evaluate: %w", err)
		}
		lossSum += tensor.MSE(logits, b.Labels).Item() / float64(batchSize)
		for i := 0; i < logits.Rows(); i++ {
			res.Predictions = append(res.Predictions, logits.At(i, 0))
		}
		res.IDs = append(res.IDs, b.IDs...)
		labels = append(labels, b.Labels...)
	}
	if len(batches) > 0 {
		res.Loss = lossSum / float64(len(batches))
	}
	res.Correlation = Pearson(res.Predictions, labels)
	return res, nil
}

// Predict runs the scorer over batches without dropout and returns the raw
// scores and their aligned ids. Labels, if present, are ignored.
func Predict(s *model.Scorer, batches []*data.Batch) (preds []float64, ids []string, err error) {
	wasTraining := s.Training()
	s.SetTraining(false)
	defer s.SetTraining(wasTraining)

	for _, b := range batches {
		logits, err := s.Forward(b.TokenIDs, b.AttentionMask)
		if err != nil {
			return nil, nil, fmt.Errorf("train: predict: %w", err)
		}
		for i := 0; i < logits.Rows(); i++ {
			preds = append(preds, logits.At(i, 0))
		}
		ids = append(ids, b.IDs...)
	}
	return preds, ids, nil
}

// Pearson returns the Pearson correlation coefficient of x and y. It returns
// NaN when the slices are empty, differ in length, or either side has zero
// variance.
func Pearson(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return math.NaN()
	}
	n := float64(len(x))
	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= n
	meanY /= n

	var cov, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varX*varY)
}
