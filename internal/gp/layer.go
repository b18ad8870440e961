// Package gp implements variational implicit-process and sparse
// Gaussian-process layers.
//
// A layer approximates an implicit stochastic process by a finite set of
// sampled candidate functions and performs closed-form Bayesian linear
// regression over those samples, producing a predictive Gaussian per input
// point and output dimension. Three variants are provided:
//
//   - VIPLayer: plain basis-function regression over S function samples.
//   - VIPLayerInducing: Nyström-style low-rank conditioning through a set of
//     inducing locations, with a whitened variational parameterization.
//   - SparseGP: the same conditioning, with covariances from an explicit
//     squared-exponential kernel instead of empirical samples.
//
// All layers are float64 end to end. Forward and KL are pure functions of
// the inputs and the current parameter state; parameters are only mutated by
// an external optimizer between calls.
package gp

import (
	"github.com/born-ml/vip/internal/nn"
	"github.com/born-ml/vip/internal/tensor"
)

// Config collects the construction options recognized by all layer variants.
type Config[B tensor.Backend] struct {
	InputDim  int // dimensionality of input locations
	OutputDim int // D: number of independent processes in this layer

	// NumCoeffs is S, the number of regression coefficients (= function
	// samples) for VIPLayer. Inducing variants derive their count from the
	// inducing set instead and ignore this field.
	NumCoeffs int

	// QMuInitial is the initial value broadcast over the variational mean.
	QMuInitial float64

	// QSqrtInitial scales the identity used to initialize the variational
	// covariance factor. Zero means 1; the factor diagonal must never be
	// exactly zero, its logarithm enters the KL.
	QSqrtInitial float64

	// LogNoise, when non-nil, enables a fixed additive noise of
	// exp(*LogNoise) per output dimension on the predictive variance.
	LogNoise *float64

	// MeanFunction, when non-nil, is added to the predictive mean.
	MeanFunction nn.MeanFunction[B]

	// AddPriorKL folds the generative function's own KL term into the
	// layer KL.
	AddPriorKL bool
}

// qSqrtInitial returns the effective initial factor scale.
func (c *Config[B]) qSqrtInitial() float64 {
	if c.QSqrtInitial == 0 {
		return 1
	}
	return c.QSqrtInitial
}

// Conditioning holds the per-forward factorization results a whitened KL
// depends on: the Cholesky factor of the (jittered) inducing covariance and
// the dense unpacked variational factor, both batched over output
// dimensions as [D, M, M].
//
// Forward returns it inside Prediction and KL takes it as an explicit
// argument, so the Forward-before-KL ordering dependency is visible in the
// API instead of hidden in layer state.
type Conditioning[B tensor.Backend] struct {
	Chol  *tensor.Tensor[float64, B] // [D, M, M] lower Cholesky of Ku
	QSqrt *tensor.Tensor[float64, B] // [D, M, M] dense variational factor
}

// Prediction is the result of a layer forward pass.
type Prediction[B tensor.Backend] struct {
	Mean     *tensor.Tensor[float64, B] // [N, D]
	Variance *tensor.Tensor[float64, B] // [N, D]

	// Samples holds the raw generative-function draws restricted to the
	// data locations, [S, N, out]. Only populated when requested.
	Samples *tensor.Tensor[float64, B]

	// Cond carries the conditioning factors the whitened KL needs. Nil for
	// VIPLayer, whose KL is independent of the forward pass.
	Cond *Conditioning[B]
}

// Layer is the per-layer contract consumed by the stacking and training
// collaborators.
type Layer[B tensor.Backend] interface {
	// Forward computes the predictive mean and variance at x [N, input_dim].
	// returnSamples additionally populates Prediction.Samples.
	Forward(x *tensor.Tensor[float64, B], returnSamples bool) (*Prediction[B], error)

	// KL computes the KL divergence from the variational distribution to
	// its prior. Inducing variants require the Conditioning produced by a
	// Forward call of the same step; VIPLayer ignores the argument.
	KL(cond *Conditioning[B]) (float64, error)

	// FreezePosterior marks the variational parameters (q_mu, q_sqrt and
	// the fixed noise, when present) as non-trainable.
	FreezePosterior()

	// FreezePrior marks the prior's parameters as non-trainable.
	FreezePrior()

	InputDim() int
	OutputDim() int
}

// baseLayer carries the state shared by every variant.
type baseLayer struct {
	dtype    tensor.DataType
	device   tensor.Device
	inputDim int
	frozen   bool
}

func newBaseLayer(inputDim int, device tensor.Device) baseLayer {
	return baseLayer{
		dtype:    tensor.Float64,
		device:   device,
		inputDim: inputDim,
	}
}

// InputDim returns the layer's input dimensionality.
func (l *baseLayer) InputDim() int {
	return l.inputDim
}

// DType returns the layer's numeric precision.
func (l *baseLayer) DType() tensor.DataType {
	return l.dtype
}

// Device returns the layer's compute device.
func (l *baseLayer) Device() tensor.Device {
	return l.device
}
