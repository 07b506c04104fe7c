package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// MatMul returns a·b for a [m,k] and b [k,n].
func MatMul(a, b *Tensor) *Tensor {
	if a.cols != b.rows {
		panic(fmt.Sprintf("tensor: matmul inner dims [%d,%d]·[%d,%d]", a.rows, a.cols, b.rows, b.cols))
	}
	out := child(a.rows, b.cols, []*Tensor{a, b}, func(out *Tensor) {
		// dA = dC·Bᵀ, dB = Aᵀ·dC
		if a.requiresGrad {
			for i := 0; i < a.rows; i++ {
				for k := 0; k < a.cols; k++ {
					var sum float64
					for j := 0; j < b.cols; j++ {
						sum += out.grad[i*out.cols+j] * b.data[k*b.cols+j]
					}
					a.grad[i*a.cols+k] += sum
				}
			}
		}
		if b.requiresGrad {
			for k := 0; k < b.rows; k++ {
				for j := 0; j < b.cols; j++ {
					var sum float64
					for i := 0; i < a.rows; i++ {
						sum += a.data[i*a.cols+k] * out.grad[i*out.cols+j]
					}
					b.grad[k*b.cols+j] += sum
				}
			}
		}
	})
	for i := 0; i < a.rows; i++ {
		for k := 0; k < a.cols; k++ {
			av := a.data[i*a.cols+k]
			if av == 0 {
				continue
			}
			for j := 0; j < b.cols; j++ {
				out.data[i*out.cols+j] += av * b.data[k*b.cols+j]
			}
		}
	}
	return out
}

// MatMulBT returns a·bᵀ for a [m,k] and b [n,k]. Used for attention scores
// without materializing a transpose.
func MatMulBT(a, b *Tensor) *Tensor {
	if a.cols != b.cols {
		panic(fmt.Sprintf("tensor: matmulBT inner dims [%d,%d]·[%d,%d]ᵀ", a.rows, a.cols, b.rows, b.cols))
	}
	out := child(a.rows, b.rows, []*Tensor{a, b}, func(out *Tensor) {
		// dA = dC·B, dB = dCᵀ·A
		if a.requiresGrad {
			for i := 0; i < a.rows; i++ {
				for k := 0; k < a.cols; k++ {
					var sum float64
					for j := 0; j < b.rows; j++ {
						sum += out.grad[i*out.cols+j] * b.data[j*b.cols+k]
					}
					a.grad[i*a.cols+k] += sum
				}
			}
		}
		if b.requiresGrad {
			for j := 0; j < b.rows; j++ {
				for k := 0; k < b.cols; k++ {
					var sum float64
					for i := 0; i < a.rows; i++ {
						sum += out.grad[i*out.cols+j] * a.data[i*a.cols+k]
					}
					b.grad[j*b.cols+k] += sum
				}
			}
		}
	})
	for i := 0; i < a.rows; i++ {
		for j := 0; j < b.rows; j++ {
			var sum float64
			for k := 0; k < a.cols; k++ {
				sum += a.data[i*a.cols+k] * b.data[j*b.cols+k]
			}
			out.data[i*out.cols+j] = sum
		}
	}
	return out
}

// Add returns the elementwise sum of two same-shape tensors.
func Add(a, b *Tensor) *Tensor {
	checkSameShape("add", a, b)
	out := child(a.rows, a.cols, []*Tensor{a, b}, func(out *Tensor) {
		if a.requiresGrad {
			for i := range a.grad {
				a.grad[i] += out.grad[i]
			}
		}
		if b.requiresGrad {
			for i := range b.grad {
				b.grad[i] += out.grad[i]
			}
		}
	})
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	return out
}

// AddBias broadcasts a [1,c] bias across every row of x.
func AddBias(x, bias *Tensor) *Tensor {
	if bias.rows != 1 || bias.cols != x.cols {
		panic(fmt.Sprintf("tensor: bias shape [%d,%d] for input [%d,%d]", bias.rows, bias.cols, x.rows, x.cols))
	}
	out := child(x.rows, x.cols, []*Tensor{x, bias}, func(out *Tensor) {
		if x.requiresGrad {
			for i := range x.grad {
				x.grad[i] += out.grad[i]
			}
		}
		if bias.requiresGrad {
			for i := 0; i < x.rows; i++ {
				for j := 0; j < x.cols; j++ {
					bias.grad[j] += out.grad[i*x.cols+j]
				}
			}
		}
	})
	for i := 0; i < x.rows; i++ {
		for j := 0; j < x.cols; j++ {
			out.data[i*x.cols+j] = x.data[i*x.cols+j] + bias.data[j]
		}
	}
	return out
}

// Scale multiplies every element by a constant.
func Scale(x *Tensor, s float64) *Tensor {
	out := child(x.rows, x.cols, []*Tensor{x}, func(out *Tensor) {
		if x.requiresGrad {
			for i := range x.grad {
				x.grad[i] += s * out.grad[i]
			}
		}
	})
	for i := range out.data {
		out.data[i] = s * x.data[i]
	}
	return out
}

// Tanh applies the hyperbolic tangent elementwise.
func Tanh(x *Tensor) *Tensor {
	out := child(x.rows, x.cols, []*Tensor{x}, func(out *Tensor) {
		if x.requiresGrad {
			for i := range x.grad {
				y := out.data[i]
				x.grad[i] += (1 - y*y) * out.grad[i]
			}
		}
	})
	for i := range out.data {
		out.data[i] = math.Tanh(x.data[i])
	}
	return out
}

// geluCoeff is sqrt(2/pi) for the tanh GELU approximation.
const geluCoeff = 0.7978845608028654

// GELU applies the Gaussian error linear unit (tanh approximation).
func GELU(x *Tensor) *Tensor {
	out := child(x.rows, x.cols, []*Tensor{x}, func(out *Tensor) {
		if x.requiresGrad {
			for i := range x.grad {
				v := x.data[i]
				u := geluCoeff * (v + 0.044715*v*v*v)
				th := math.Tanh(u)
				du := geluCoeff * (1 + 3*0.044715*v*v)
				d := 0.5*(1+th) + 0.5*v*(1-th*th)*du
				x.grad[i] += d * out.grad[i]
			}
		}
	})
	for i := range out.data {
		v := x.data[i]
		out.data[i] = 0.5 * v * (1 + math.Tanh(geluCoeff*(v+0.044715*v*v*v)))
	}
	return out
}

// SoftmaxRows applies a numerically stable softmax independently to each row.
func SoftmaxRows(x *Tensor) *Tensor {
	out := child(x.rows, x.cols, []*Tensor{x}, func(out *Tensor) {
		if !x.requiresGrad {
			return
		}
		for i := 0; i < x.rows; i++ {
			row := out.data[i*x.cols : (i+1)*x.cols]
			gout := out.grad[i*x.cols : (i+1)*x.cols]
			gin := x.grad[i*x.cols : (i+1)*x.cols]
			var dot float64
			for j := range row {
				dot += gout[j] * row[j]
			}
			for j := range row {
				gin[j] += row[j] * (gout[j] - dot)
			}
		}
	})
	for i := 0; i < x.rows; i++ {
		row := x.data[i*x.cols : (i+1)*x.cols]
		orow := out.data[i*x.cols : (i+1)*x.cols]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for j, v := range row {
			orow[j] = math.Exp(v - maxV)
			sum += orow[j]
		}
		for j := range orow {
			orow[j] /= sum
		}
	}
	return out
}

// LayerNorm normalizes each row of x to zero mean and unit variance, then
// applies the learned [1,c] scale gamma and shift beta.
func LayerNorm(x, gamma, beta *Tensor, eps float64) *Tensor {
	if gamma.cols != x.cols || beta.cols != x.cols || gamma.rows != 1 || beta.rows != 1 {
		panic(fmt.Sprintf("tensor: layernorm params for input [%d,%d]", x.rows, x.cols))
	}
	n := float64(x.cols)
	xhat := make([]float64, len(x.data))
	invstd := make([]float64, x.rows)

	out := child(x.rows, x.cols, []*Tensor{x, gamma, beta}, func(out *Tensor) {
		for i := 0; i < x.rows; i++ {
			gout := out.grad[i*x.cols : (i+1)*x.cols]
			xh := xhat[i*x.cols : (i+1)*x.cols]

			if gamma.requiresGrad {
				for j := range gout {
					gamma.grad[j] += gout[j] * xh[j]
				}
			}
			if beta.requiresGrad {
				for j := range gout {
					beta.grad[j] += gout[j]
				}
			}
			if x.requiresGrad {
				var meanDx, meanDxXh float64
				dxhat := make([]float64, x.cols)
				for j := range gout {
					dxhat[j] = gout[j] * gamma.data[j]
					meanDx += dxhat[j]
					meanDxXh += dxhat[j] * xh[j]
				}
				meanDx /= n
				meanDxXh /= n
				gin := x.grad[i*x.cols : (i+1)*x.cols]
				for j := range gout {
					gin[j] += invstd[i] * (dxhat[j] - meanDx - xh[j]*meanDxXh)
				}
			}
		}
	})
	for i := 0; i < x.rows; i++ {
		row := x.data[i*x.cols : (i+1)*x.cols]
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= n
		var variance float64
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= n
		invstd[i] = 1 / math.Sqrt(variance+eps)
		for j, v := range row {
			xh := (v - mean) * invstd[i]
			xhat[i*x.cols+j] = xh
			out.data[i*x.cols+j] = xh*gamma.data[j] + beta.data[j]
		}
	}
	return out
}

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p). When inactive (train false or p zero) the input passes through
// untouched and no graph node is created.
func Dropout(x *Tensor, p float64, rng *rand.Rand, train bool) *Tensor {
	if !train || p <= 0 {
		return x
	}
	keep := 1 - p
	mask := make([]float64, len(x.data))
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
	}
	out := child(x.rows, x.cols, []*Tensor{x}, func(out *Tensor) {
		if x.requiresGrad {
			for i := range x.grad {
				x.grad[i] += mask[i] * out.grad[i]
			}
		}
	})
	for i := range out.data {
		out.data[i] = mask[i] * x.data[i]
	}
	return out
}

// GatherRows selects rows of w by index, as an embedding lookup. Gradients
// scatter-add back into the selected rows.
func GatherRows(w *Tensor, indices []int) *Tensor {
	out := child(len(indices), w.cols, []*Tensor{w}, func(out *Tensor) {
		if !w.requiresGrad {
			return
		}
		for i, idx := range indices {
			grow := w.grad[idx*w.cols : (idx+1)*w.cols]
			gout := out.grad[i*w.cols : (i+1)*w.cols]
			for j := range grow {
				grow[j] += gout[j]
			}
		}
	})
	for i, idx := range indices {
		if idx < 0 || idx >= w.rows {
			panic(fmt.Sprintf("tensor: gather index %d out of range [0,%d)", idx, w.rows))
		}
		copy(out.data[i*w.cols:(i+1)*w.cols], w.data[idx*w.cols:(idx+1)*w.cols])
	}
	return out
}

// SliceCols copies columns [from, to) of x into a new tensor.
func SliceCols(x *Tensor, from, to int) *Tensor {
	if from < 0 || to > x.cols || from >= to {
		panic(fmt.Sprintf("tensor: slice cols [%d,%d) of width %d", from, to, x.cols))
	}
	w := to - from
	out := child(x.rows, w, []*Tensor{x}, func(out *Tensor) {
		if !x.requiresGrad {
			return
		}
		for i := 0; i < x.rows; i++ {
			for j := 0; j < w; j++ {
				x.grad[i*x.cols+from+j] += out.grad[i*w+j]
			}
		}
	})
	for i := 0; i < x.rows; i++ {
		copy(out.data[i*w:(i+1)*w], x.data[i*x.cols+from:i*x.cols+to])
	}
	return out
}

// SliceRows copies rows [from, to) of x into a new tensor.
func SliceRows(x *Tensor, from, to int) *Tensor {
	if from < 0 || to > x.rows || from >= to {
		panic(fmt.Sprintf("tensor: slice rows [%d,%d) of height %d", from, to, x.rows))
	}
	h := to - from
	out := child(h, x.cols, []*Tensor{x}, func(out *Tensor) {
		if !x.requiresGrad {
			return
		}
		for i := 0; i < h*x.cols; i++ {
			x.grad[from*x.cols+i] += out.grad[i]
		}
	})
	copy(out.data, x.data[from*x.cols:to*x.cols])
	return out
}

// ConcatCols joins same-height tensors side by side.
func ConcatCols(ts ...*Tensor) *Tensor {
	rows := ts[0].rows
	total := 0
	for _, t := range ts {
		if t.rows != rows {
			panic("tensor: concat cols with mismatched row counts")
		}
		total += t.cols
	}
	out := child(rows, total, ts, func(out *Tensor) {
		off := 0
		for _, t := range ts {
			if t.requiresGrad {
				for i := 0; i < rows; i++ {
					for j := 0; j < t.cols; j++ {
						t.grad[i*t.cols+j] += out.grad[i*total+off+j]
					}
				}
			}
			off += t.cols
		}
	})
	off := 0
	for _, t := range ts {
		for i := 0; i < rows; i++ {
			copy(out.data[i*total+off:i*total+off+t.cols], t.data[i*t.cols:(i+1)*t.cols])
		}
		off += t.cols
	}
	return out
}

// ConcatRows stacks same-width tensors vertically.
func ConcatRows(ts ...*Tensor) *Tensor {
	cols := ts[0].cols
	total := 0
	for _, t := range ts {
		if t.cols != cols {
			panic("tensor: concat rows with mismatched column counts")
		}
		total += t.rows
	}
	out := child(total, cols, ts, func(out *Tensor) {
		off := 0
		for _, t := range ts {
			if t.requiresGrad {
				for i := range t.grad {
					t.grad[i] += out.grad[off+i]
				}
			}
			off += len(t.data)
		}
	})
	off := 0
	for _, t := range ts {
		copy(out.data[off:off+len(t.data)], t.data)
		off += len(t.data)
	}
	return out
}

// MSE returns the mean squared error between the flattened prediction tensor
// and the target values as a 1×1 tensor.
func MSE(pred *Tensor, target []float64) *Tensor {
	if len(pred.data) != len(target) {
		panic(fmt.Sprintf("tensor: mse with %d predictions and %d targets", len(pred.data), len(target)))
	}
	n := float64(len(target))
	out := child(1, 1, []*Tensor{pred}, func(out *Tensor) {
		if !pred.requiresGrad {
			return
		}
		for i := range pred.data {
			pred.grad[i] += out.grad[0] * 2 * (pred.data[i] - target[i]) / n
		}
	})
	var sum float64
	for i, p := range pred.data {
		d := p - target[i]
		sum += d * d
	}
	out.data[0] = sum / n
	return out
}
