package gp

import (
	"github.com/born-ml/vip/internal/tensor"
)

// GenerativeFunction produces i.i.d. sampled function evaluations at given
// input locations. It is the external collaborator a VIP layer turns into an
// empirical basis or covariance; Bayesian neural networks, Bayesian convnets
// and random-feature GP samplers all fit this contract.
//
// Shape contract: Sample takes [N, input_dim] locations and returns
// [S, N, out] evaluations, where S is fixed per implementation and out is
// either 1 or the owning layer's output dimension.
//
// Implementations that carry their own parameter prior expose its KL through
// the optional PriorRegularizer interface.
type GenerativeFunction[B tensor.Backend] interface {
	// Sample draws S function evaluations at x. Implementations own their
	// random state; a layer never re-seeds or resets it.
	Sample(x *tensor.Tensor[float64, B]) *tensor.Tensor[float64, B]

	// NumSamples reports S, the number of function draws per call.
	NumSamples() int

	// FreezeParameters marks the function's own trainable parameters as
	// non-trainable.
	FreezeParameters()
}

// PriorRegularizer is the optional capability of a generative function to
// report the KL divergence of its own parameter posterior. Layers add it to
// their KL when configured with AddPriorKL.
type PriorRegularizer interface {
	PriorKL() float64
}

// priorKL returns the generative function's internal KL term when the
// capability is present, zero otherwise.
func priorKL[B tensor.Backend](gen GenerativeFunction[B]) float64 {
	if reg, ok := gen.(PriorRegularizer); ok {
		return reg.PriorKL()
	}
	return 0
}
