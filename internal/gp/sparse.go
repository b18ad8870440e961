package gp

import (
	"math"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vip/internal/nn"
	"github.com/born-ml/vip/internal/tensor"
)

// SparseGP is a sparse variational Gaussian-process layer.
//
// It runs the same whitened Nyström conditioning as VIPLayerInducing, but
// the covariance blocks come from an explicit isotropic squared-exponential
// kernel over learnable log-amplitude and log-lengthscale instead of
// empirical function samples:
//
//	k(x1, x2) = exp(log_amp) * exp(-||x1/ℓ - x2/ℓ||²), ℓ = exp(log_lengthscale)
//
// No sampling occurs; requesting samples yields a zero placeholder tensor
// for interface parity with the other layers.
type SparseGP[B tensor.Backend] struct {
	baseLayer

	gen         GenerativeFunction[B] // optional, only consulted for the prior-KL flag
	numInducing int                   // M
	outputDim   int                   // D

	inducingPoints *nn.Parameter[float64, B] // [M, input_dim]
	qMu            *nn.Parameter[float64, B] // [M, D]
	qSqrtTri       *nn.Parameter[float64, B] // [D, M*(M+1)/2]
	logNoise       *nn.Parameter[float64, B] // [D], nil when no fixed noise

	logLengthscale *nn.Parameter[float64, B] // scalar
	logAmplitude   *nn.Parameter[float64, B] // scalar

	meanFunction nn.MeanFunction[B]
	addPriorKL   bool

	backend B
}

// NewSparseGP creates a sparse GP layer with inducing set z [M, input_dim].
// Both kernel hyperparameters start at 0 (unit amplitude and lengthscale).
// gen may be nil; it is only used when cfg.AddPriorKL is set.
func NewSparseGP[B tensor.Backend](gen GenerativeFunction[B], z *tensor.Tensor[float64, B], cfg Config[B], backend B) (*SparseGP[B], error) {
	if cfg.InputDim <= 0 || cfg.OutputDim <= 0 {
		return nil, errors.Errorf("sparse gp: dimensions must be positive, got input=%d output=%d", cfg.InputDim, cfg.OutputDim)
	}
	zShape := z.Shape()
	if len(zShape) != 2 || zShape[1] != cfg.InputDim {
		return nil, errors.Errorf("sparse gp: inducing points %v do not match input dimension %d", zShape, cfg.InputDim)
	}

	m, d := zShape[0], cfg.OutputDim
	l := &SparseGP[B]{
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
	l.logLengthscale = nn.NewParameter("log_lengthscale", tensor.Zeros[float64](tensor.Shape{1}, backend))
	l.logAmplitude = nn.NewParameter("log_amplitude", tensor.Zeros[float64](tensor.Shape{1}, backend))

	if klog.V(2).Enabled() {
		klog.Infof("sparse gp layer: M=%d, %d->%d, noise=%v", m, cfg.InputDim, d, cfg.LogNoise != nil)
	}
	return l, nil
}

// OutputDim returns the number of independent processes in this layer.
func (l *SparseGP[B]) OutputDim() int {
	return l.outputDim
}

// NumInducing returns the size of the inducing set.
func (l *SparseGP[B]) NumInducing() int {
	return l.numInducing
}

// Kernel evaluates the squared-exponential kernel between x1 [N1, d] and
// x2 [N2, d], producing a single-output covariance batch [1, N1, N2].
func (l *SparseGP[B]) Kernel(x1, x2 *tensor.Tensor[float64, B]) *tensor.Tensor[float64, B] {
	n1, dims := x1.Shape()[0], x1.Shape()[1]
	n2 := x2.Shape()[0]
	amp := math.Exp(l.logAmplitude.Tensor().Data()[0])
	ls := math.Exp(l.logLengthscale.Tensor().Data()[0])

	out := tensor.Zeros[float64](tensor.Shape{1, n1, n2}, l.backend)
	a, b, dst := x1.Data(), x2.Data(), out.Data()
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			var dist float64
			for k := 0; k < dims; k++ {
				diff := a[i*dims+k]/ls - b[j*dims+k]/ls
				dist += diff * diff
			}
			dst[i*n2+j] = amp * math.Exp(-dist)
		}
	}
	return out
}

// Forward computes the predictive distribution at x [N, input_dim] using
// kernel-evaluated covariance blocks and the shared whitened conditioning.
func (l *SparseGP[B]) Forward(x *tensor.Tensor[float64, B], returnSamples bool) (*Prediction[B], error) {
	n := x.Shape()[0]
	m := l.numInducing
	z := l.inducingPoints.Tensor()

	ku := l.Kernel(z, z).Add(jitterEye(m, jitterPartition, l.backend))
	kf := l.Kernel(x, x).Add(jitterEye(n, jitterPartition, l.backend))
	kfu := l.Kernel(x, z)

	mean, variance, cond, err := nystromConditioning(ku, kf, kfu, l.qMu.Tensor(), l.qSqrtTri.Tensor(), l.outputDim, l.backend)
	if err != nil {
		return nil, errors.WithMessagef(err, "sparse gp: kernel inducing covariance (M=%d)", m)
	}

	if l.logNoise != nil {
		variance = variance.Add(l.logNoise.Tensor().Exp())
	}
	if l.meanFunction != nil {
		mean = mean.Add(l.meanFunction.Apply(x))
	}

	pred := &Prediction[B]{Mean: mean, Variance: variance, Cond: cond}
	if returnSamples {
		// No sample-based representation exists; return a placeholder.
		pred.Samples = tensor.Zeros[float64](tensor.Shape{1, n, 1}, l.backend)
	}
	return pred, nil
}

// KL computes the whitened KL divergence between Q and the GP prior
// N(0, Ku), using the conditioning factors produced by Forward.
func (l *SparseGP[B]) KL(cond *Conditioning[B]) (float64, error) {
	if cond == nil {
		return 0, errors.New("sparse gp: KL requires the conditioning returned by Forward")
	}
	kl := whitenedKL(cond, l.qMu.Tensor(), l.qSqrtTri.Tensor(), l.numInducing, l.outputDim)
	if l.addPriorKL && l.gen != nil {
		kl += priorKL(l.gen)
	}
	return kl, nil
}

// FreezePosterior marks q_mu, q_sqrt and the fixed noise (when present) as
// non-trainable.
func (l *SparseGP[B]) FreezePosterior() {
	l.qMu.Freeze()
	l.qSqrtTri.Freeze()
	if l.logNoise != nil {
		l.logNoise.Freeze()
	}
	l.frozen = true
}

// FreezePrior marks the kernel hyperparameters (and the generative
// function's parameters, when one is attached) as non-trainable.
func (l *SparseGP[B]) FreezePrior() {
	l.logLengthscale.Freeze()
	l.logAmplitude.Freeze()
	if l.gen != nil {
		l.gen.FreezeParameters()
	}
}

// Parameters returns the layer's trainable parameters.
func (l *SparseGP[B]) Parameters() []*nn.Parameter[float64, B] {
	params := []*nn.Parameter[float64, B]{
		l.inducingPoints, l.qMu, l.qSqrtTri, l.logLengthscale, l.logAmplitude,
	}
	if l.logNoise != nil {
		params = append(params, l.logNoise)
	}
	return params
}
