// Package tensor implements row-major float64 matrices with reverse-mode
// automatic differentiation. Every operation records its parents and a
// backward closure; Backward on a scalar output walks the graph in reverse
// topological order and accumulates gradients into any node that requires
// them. Leaves created with Param take part in optimization; Freeze detaches
// a leaf from gradient tracking without rebuilding the graph around it.
package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Tensor is a rows×cols matrix. Non-leaf tensors carry the closure that
// propagates their gradient to their parents.
type Tensor struct {
	rows, cols int
	data       []float64
	grad       []float64

	requiresGrad bool
	parents      []*Tensor
	backFn       func()
}

// New returns a zero-filled tensor that does not track gradients.
func New(rows, cols int) *Tensor {
	return &Tensor{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
		grad: make([]float64, rows*cols),
	}
}

// FromData wraps an existing flat slice. The slice is used directly, not
// copied; len(data) must equal rows*cols.
func FromData(rows, cols int, data []float64) *Tensor {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("tensor: data length %d does not match shape [%d,%d]", len(data), rows, cols))
	}
	return &Tensor{
		rows: rows,
		cols: cols,
		data: data,
		grad: make([]float64, rows*cols),
	}
}

// Param returns a zero-filled trainable leaf.
func Param(rows, cols int) *Tensor {
	t := New(rows, cols)
	t.requiresGrad = true
	return t
}

// Rows returns the row count.
func (t *Tensor) Rows() int { return t.rows }

// Cols returns the column count.
func (t *Tensor) Cols() int { return t.cols }

// At returns the element at (i, j).
func (t *Tensor) At(i, j int) float64 { return t.data[i*t.cols+j] }

// Set assigns the element at (i, j).
func (t *Tensor) Set(i, j int, v float64) { t.data[i*t.cols+j] = v }

// Data exposes the underlying flat slice.
func (t *Tensor) Data() []float64 { return t.data }

// Grad exposes the accumulated gradient slice.
func (t *Tensor) Grad() []float64 { return t.grad }

// RequiresGrad reports whether gradients accumulate into this tensor.
func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// Freeze detaches the tensor from gradient tracking. Meant for leaves whose
// parameters must stay fixed for the lifetime of a model instance.
func (t *Tensor) Freeze() { t.requiresGrad = false }

// ZeroGrad clears the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	for i := range t.grad {
		t.grad[i] = 0
	}
}

// Item returns the single element of a 1×1 tensor.
func (t *Tensor) Item() float64 {
	if t.rows != 1 || t.cols != 1 {
		panic(fmt.Sprintf("tensor: Item on shape [%d,%d]", t.rows, t.cols))
	}
	return t.data[0]
}

// Flatten returns a copy of the data as a flat slice.
func (t *Tensor) Flatten() []float64 {
	out := make([]float64, len(t.data))
	copy(out, t.data)
	return out
}

// XavierInit fills the tensor with Xavier/Glorot uniform values drawn from rng.
func (t *Tensor) XavierInit(rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(t.rows+t.cols))
	for i := range t.data {
		t.data[i] = (rng.Float64()*2 - 1) * limit
	}
}

func anyRequiresGrad(parents ...*Tensor) bool {
	for _, p := range parents {
		if p.requiresGrad {
			return true
		}
	}
	return false
}

// child builds a result tensor wired into the graph. backFn is only retained
// when some parent tracks gradients, so frozen subgraphs cost nothing to
// walk backward through.
func child(rows, cols int, parents []*Tensor, backFn func(out *Tensor)) *Tensor {
	out := New(rows, cols)
	if anyRequiresGrad(parents...) {
		out.requiresGrad = true
		out.parents = parents
		out.backFn = func() { backFn(out) }
	}
	return out
}

// Backward runs reverse-mode differentiation from a scalar output. Gradients
// of every node reachable from t are reset before seeding, so parameter
// gradients reflect exactly one backward pass.
func (t *Tensor) Backward() {
	if t.rows != 1 || t.cols != 1 {
		panic(fmt.Sprintf("tensor: Backward on non-scalar shape [%d,%d]", t.rows, t.cols))
	}

	var topo []*Tensor
	visited := make(map[*Tensor]bool)
	var build func(*Tensor)
	build = func(v *Tensor) {
		if visited[v] {
			return
		}
		visited[v] = true
		for _, p := range v.parents {
			build(p)
		}
		topo = append(topo, v)
	}
	build(t)

	for _, v := range topo {
		v.ZeroGrad()
	}
	t.grad[0] = 1
	for i := len(topo) - 1; i >= 0; i-- {
		if topo[i].backFn != nil {
			topo[i].backFn()
		}
	}
}

func checkSameShape(op string, a, b *Tensor) {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("tensor: %s shape mismatch [%d,%d] vs [%d,%d]", op, a.rows, a.cols, b.rows, b.cols))
	}
}
