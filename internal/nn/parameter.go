// Package nn provides the parameter and mean-function building blocks shared
// by the variational layers.
package nn

import (
	"github.com/born-ml/vip/internal/tensor"
)

// Parameter represents a trainable parameter of a layer.
//
// A parameter is a tensor plus a name and a trainable flag. The flag is what
// the layer freeze operations flip; the external optimizer is expected to
// skip parameters whose Trainable() is false.
//
// Example:
//
//	qMu := nn.NewParameter("q_mu", qMuTensor)
//	qMu.Freeze()          // exclude from optimization
//	qMu.Trainable()       // false
type Parameter[T tensor.DType, B tensor.Backend] struct {
	name      string
	tensor    *tensor.Tensor[T, B]
	trainable bool
}

// NewParameter creates a new trainable parameter.
//
// The parameter tensor should be initialized before creating the Parameter.
func NewParameter[T tensor.DType, B tensor.Backend](name string, t *tensor.Tensor[T, B]) *Parameter[T, B] {
	return &Parameter[T, B]{
		name:      name,
		tensor:    t,
		trainable: true,
	}
}

// Name returns the parameter name.
func (p *Parameter[T, B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[T, B]) Tensor() *tensor.Tensor[T, B] {
	return p.tensor
}

// Trainable reports whether the parameter should be updated by the optimizer.
func (p *Parameter[T, B]) Trainable() bool {
	return p.trainable
}

// Freeze marks the parameter as non-trainable.
func (p *Parameter[T, B]) Freeze() {
	p.trainable = false
}

// Unfreeze marks the parameter as trainable again.
func (p *Parameter[T, B]) Unfreeze() {
	p.trainable = true
}
