package gp

import (
	"math"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vip/internal/nn"
	"github.com/born-ml/vip/internal/tensor"
)

// VIPLayerInducing is a variational implicit process layer conditioned
// through a trainable set of M inducing locations.
//
// Instead of regressing on the samples directly, the layer draws joint
// samples at the data and inducing locations in a single call, builds an
// empirical joint covariance, and applies a Nyström-style whitened
// conditioning: the predictive distribution is a low-rank GP posterior whose
// variational parameters live on the inducing function values.
type VIPLayerInducing[B tensor.Backend] struct {
	baseLayer

	gen         GenerativeFunction[B]
	numInducing int // M
	outputDim   int // D

	inducingPoints *nn.Parameter[float64, B] // [M, input_dim]
	qMu            *nn.Parameter[float64, B] // [M, D]
	qSqrtTri       *nn.Parameter[float64, B] // [D, M*(M+1)/2]
	logNoise       *nn.Parameter[float64, B] // [D], nil when no fixed noise

	meanFunction nn.MeanFunction[B]
	addPriorKL   bool

	backend B
}

// NewVIPLayerInducing creates an inducing-point layer. z [M, input_dim] is
// the initial inducing set; it becomes a trainable parameter of the layer.
// The basis count is derived from the inducing set size, so cfg.NumCoeffs is
// ignored.
func NewVIPLayerInducing[B tensor.Backend](gen GenerativeFunction[B], z *tensor.Tensor[float64, B], cfg Config[B], backend B) (*VIPLayerInducing[B], error) {
	if gen == nil {
		return nil, errors.New("inducing layer: generative function is required")
	}
	if cfg.InputDim <= 0 || cfg.OutputDim <= 0 {
		return nil, errors.Errorf("inducing layer: dimensions must be positive, got input=%d output=%d", cfg.InputDim, cfg.OutputDim)
	}
	zShape := z.Shape()
	if len(zShape) != 2 || zShape[1] != cfg.InputDim {
		return nil, errors.Errorf("inducing layer: inducing points %v do not match input dimension %d", zShape, cfg.InputDim)
	}

	m, d := zShape[0], cfg.OutputDim
	l := &VIPLayerInducing[B]{
		baseLayer:    newBaseLayer(cfg.InputDim, backend.Device()),
		gen:          gen,
		numInducing:  m,
		outputDim:    d,
		meanFunction: cfg.MeanFunction,
		addPriorKL:   cfg.AddPriorKL,
		backend:      backend,
	}

	l.inducingPoints = nn.NewParameter("inducing_points", z.Clone())
	l.qMu = nn.NewParameter("q_mu", tensor.Full[float64](tensor.Shape{m, d}, cfg.QMuInitial, backend))
	l.qSqrtTri = nn.NewParameter("q_sqrt_tri", scaledIdentityPacked(m, d, cfg.qSqrtInitial(), backend))
	if cfg.LogNoise != nil {
		l.logNoise = nn.NewParameter("log_noise", tensor.Full[float64](tensor.Shape{d}, *cfg.LogNoise, backend))
	}

	if klog.V(2).Enabled() {
		klog.Infof("inducing vip layer: M=%d, %d->%d, noise=%v, prior_kl=%v", m, cfg.InputDim, d, cfg.LogNoise != nil, cfg.AddPriorKL)
	}
	return l, nil
}

// OutputDim returns the number of independent processes in this layer.
func (l *VIPLayerInducing[B]) OutputDim() int {
	return l.outputDim
}

// NumInducing returns the size of the inducing set.
func (l *VIPLayerInducing[B]) NumInducing() int {
	return l.numInducing
}

// InducingPoints returns the trainable inducing locations [M, input_dim].
func (l *VIPLayerInducing[B]) InducingPoints() *nn.Parameter[float64, B] {
	return l.inducingPoints
}

// Forward computes the predictive distribution at x [N, input_dim].
//
// The data and inducing locations are sampled jointly so the empirical
// covariance blocks share the same draws. Prediction.Samples, when
// requested, holds only the data portion of the joint draw. The whitened KL
// needs Prediction.Cond from the same call.
func (l *VIPLayerInducing[B]) Forward(x *tensor.Tensor[float64, B], returnSamples bool) (*Prediction[B], error) {
	n := x.Shape()[0]
	m := l.numInducing

	xz := tensor.Cat([]*tensor.Tensor[float64, B]{x, l.inducingPoints.Tensor()}, 0)
	f := l.gen.Sample(xz) // [S, N+M, out]
	s := f.Shape()[0]

	fMean := f.MeanDim(0, true)
	phi := f.Sub(fMean).MulScalar(1 / math.Sqrt(float64(s-1))) // [S, N+M, out]

	// Empirical joint covariance per output dimension: [out, N+M, N+M].
	phiT := phi.Transpose(2, 1, 0)
	fK := phiT.BatchMatMul(phiT.Transpose(0, 2, 1))

	ku := fK.Narrow(1, n, m).Narrow(2, n, m).Add(jitterEye(m, jitterPartition, l.backend))
	kf := fK.Narrow(1, 0, n).Narrow(2, 0, n).Add(jitterEye(n, jitterPartition, l.backend))
	kfu := fK.Narrow(1, 0, n).Narrow(2, n, m)

	mean, variance, cond, err := nystromConditioning(ku, kf, kfu, l.qMu.Tensor(), l.qSqrtTri.Tensor(), l.outputDim, l.backend)
	if err != nil {
		return nil, errors.WithMessagef(err, "inducing layer: empirical inducing covariance (M=%d, S=%d)", m, s)
	}

	if l.logNoise != nil {
		variance = variance.Add(l.logNoise.Tensor().Exp())
	}
	if l.meanFunction != nil {
		mean = mean.Add(l.meanFunction.Apply(x))
	}

	pred := &Prediction[B]{Mean: mean, Variance: variance, Cond: cond}
	if returnSamples {
		pred.Samples = f.Narrow(1, 0, n)
	}
	return pred, nil
}

// KL computes the whitened KL divergence between Q and the GP prior
// N(0, Ku), using the conditioning factors produced by Forward in the same
// step. Calling it without a conditioning is an error: the factors depend on
// the same random draw as the prediction they accompany.
func (l *VIPLayerInducing[B]) KL(cond *Conditioning[B]) (float64, error) {
	if cond == nil {
		return 0, errors.New("inducing layer: KL requires the conditioning returned by Forward")
	}
	kl := whitenedKL(cond, l.qMu.Tensor(), l.qSqrtTri.Tensor(), l.numInducing, l.outputDim)
	if l.addPriorKL {
		kl += priorKL(l.gen)
	}
	return kl, nil
}

// FreezePosterior marks q_mu, q_sqrt and the fixed noise (when present) as
// non-trainable.
func (l *VIPLayerInducing[B]) FreezePosterior() {
	l.qMu.Freeze()
	l.qSqrtTri.Freeze()
	if l.logNoise != nil {
		l.logNoise.Freeze()
	}
	l.frozen = true
}

// FreezePrior marks the generative function's parameters as non-trainable.
func (l *VIPLayerInducing[B]) FreezePrior() {
	l.gen.FreezeParameters()
}

// Parameters returns the layer's trainable parameters.
func (l *VIPLayerInducing[B]) Parameters() []*nn.Parameter[float64, B] {
	params := []*nn.Parameter[float64, B]{l.inducingPoints, l.qMu, l.qSqrtTri}
	if l.logNoise != nil {
		params = append(params, l.logNoise)
	}
	return params
}
