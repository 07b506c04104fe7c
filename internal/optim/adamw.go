// Package optim implements the AdamW parameter update rule.
package optim

import (
	"fmt"
	"math"

	"github.com/crimson-sun/citepred/internal/tensor"
)

// AdamW updates a fixed parameter list with bias-corrected Adam moments and
// decoupled weight decay.
type AdamW struct {
	params []*tensor.Tensor

	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64

	step int
	m    [][]float64
	v    [][]float64
}

// State is the serializable optimizer state.
type State struct {
	Step int         `json:"step"`
	M    [][]float64 `json:"m"`
	V    [][]float64 `json:"v"`
}

// NewAdamW creates an optimizer over params with the given learning rate and
// weight decay. Moment estimates start at zero.
func NewAdamW(params []*tensor.Tensor, lr, weightDecay float64) *AdamW {
	o := &AdamW{
		params:      params,
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           make([][]float64, len(params)),
		v:           make([][]float64, len(params)),
	}
	for i, p := range params {
		o.m[i] = make([]float64, len(p.Data()))
		o.v[i] = make([]float64, len(p.Data()))
	}
	return o
}

// Step applies one update using the gradients currently accumulated on the
// parameters.
func (o *AdamW) Step() {
	o.step++
	c1 := 1 - math.Pow(o.beta1, float64(o.step))
	c2 := 1 - math.Pow(o.beta2, float64(o.step))

	for i, p := range o.params {
		data, grad := p.Data(), p.Grad()
		m, v := o.m[i], o.v[i]
		for j, g := range grad {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			data[j] -= o.lr * (mHat/(math.Sqrt(vHat)+o.eps) + o.weightDecay*data[j])
		}
	}
}

// ZeroGrad clears the gradient of every managed parameter.
func (o *AdamW) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}

// State returns a copy of the optimizer state for checkpointing.
func (o *AdamW) State() *State {
	st := &State{
		Step: o.step,
		M:    make([][]float64, len(o.m)),
		V:    make([][]float64, len(o.v)),
	}
	for i := range o.m {
		st.M[i] = append([]float64(nil), o.m[i]...)
		st.V[i] = append([]float64(nil), o.v[i]...)
	}
	return st
}

// LoadState restores a previously captured state. The parameter list must
// match the one the state was captured from.
func (o *AdamW) LoadState(st *State) error {
	if len(st.M) != len(o.params) || len(st.V) != len(o.params) {
		return fmt.Errorf("optim: state holds %d/%d moment slices for %d parameters", len(st.M), len(st.V), len(o.params))
	}
	for i, p := range o.params {
		if len(st.M[i]) != len(p.Data()) || len(st.V[i]) != len(p.Data()) {
			return fmt.Errorf("optim: state size mismatch at parameter %d", i)
		}
		copy(o.m[i], st.M[i])
		copy(o.v[i], st.V[i])
	}
	o.step = st.Step
	return nil
}
