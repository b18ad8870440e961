package gp

import (
	"math"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vip/internal/nn"
	"github.com/born-ml/vip/internal/tensor"
)

// VIPLayer is a variational implicit process layer.
//
// The underlying model performs a Bayesian linear regression approximation
//
//	f(x) = mean_function(x) + aᵀ phi(x)
//
// with phi(x) = (f_1(x) - m(x), ..., f_S(x) - m(x)) / sqrt(S-1), where the
// f_i are S sampled functions, m is their empirical mean and a ~ N(0, I).
// The variational distribution over the regression coefficients is
// Q(a) = N(q_mu, q_sqrt q_sqrtᵀ). The layer holds D independent processes,
// one per output dimension.
type VIPLayer[B tensor.Backend] struct {
	baseLayer

	gen       GenerativeFunction[B]
	numCoeffs int // S
	outputDim int // D

	qMu      *nn.Parameter[float64, B] // [S, D]
	qSqrtTri *nn.Parameter[float64, B] // [D, S*(S+1)/2], packed lower triangular
	logNoise *nn.Parameter[float64, B] // [D], nil when no fixed noise is configured

	meanFunction nn.MeanFunction[B]
	addPriorKL   bool

	backend B
}

// NewVIPLayer creates a basis-regression layer over cfg.NumCoeffs sampled
// functions. q_mu starts at cfg.QMuInitial and q_sqrt as a scaled identity
// factor per output dimension.
func NewVIPLayer[B tensor.Backend](gen GenerativeFunction[B], cfg Config[B], backend B) (*VIPLayer[B], error) {
	if gen == nil {
		return nil, errors.New("vip layer: generative function is required")
	}
	if cfg.InputDim <= 0 || cfg.OutputDim <= 0 {
		return nil, errors.Errorf("vip layer: dimensions must be positive, got input=%d output=%d", cfg.InputDim, cfg.OutputDim)
	}
	if cfg.NumCoeffs <= 0 {
		return nil, errors.Errorf("vip layer: basis count must be positive, got %d", cfg.NumCoeffs)
	}
	if s := gen.NumSamples(); s != cfg.NumCoeffs {
		return nil, errors.Errorf("vip layer: basis count %d does not match generative function sample count %d", cfg.NumCoeffs, s)
	}

	s, d := cfg.NumCoeffs, cfg.OutputDim
	l := &VIPLayer[B]{
		baseLayer:    newBaseLayer(cfg.InputDim, backend.Device()),
		gen:          gen,
		numCoeffs:    s,
		outputDim:    d,
		meanFunction: cfg.MeanFunction,
		addPriorKL:   cfg.AddPriorKL,
		backend:      backend,
	}

	l.qMu = nn.NewParameter("q_mu", tensor.Full[float64](tensor.Shape{s, d}, cfg.QMuInitial, backend))
	l.qSqrtTri = nn.NewParameter("q_sqrt_tri", scaledIdentityPacked(s, d, cfg.qSqrtInitial(), backend))
	if cfg.LogNoise != nil {
		l.logNoise = nn.NewParameter("log_noise", tensor.Full[float64](tensor.Shape{d}, *cfg.LogNoise, backend))
	}

	if klog.V(2).Enabled() {
		klog.Infof("vip layer: S=%d, %d->%d, noise=%v, prior_kl=%v", s, cfg.InputDim, d, cfg.LogNoise != nil, cfg.AddPriorKL)
	}
	return l, nil
}

// scaledIdentityPacked builds the packed representation of D identity
// matrices scaled by value: zeros everywhere except the diagonal positions.
func scaledIdentityPacked[B tensor.Backend](k, d int, value float64, backend B) *tensor.Tensor[float64, B] {
	packed := tensor.Zeros[float64](tensor.Shape{d, PackedSize(k)}, backend)
	data := packed.Data()
	n := PackedSize(k)
	for _, p := range diagIndices(k) {
		for i := 0; i < d; i++ {
			data[i*n+p] = value
		}
	}
	return packed
}

// OutputDim returns the number of independent processes in this layer.
func (l *VIPLayer[B]) OutputDim() int {
	return l.outputDim
}

// Forward computes the marginalized predictive distribution at x [N, input_dim].
//
// With phi the empirically standardized samples and Q(a) = N(q_mu,
// q_sqrt q_sqrtᵀ), the coefficients marginalize in closed form:
//
//	mean = m(x) + phi(x)ᵀ q_mu
//	var  = diag(phi(x)ᵀ q_sqrt q_sqrtᵀ phi(x)) [+ exp(log_noise)]
//
// The variance is a sum of squares and therefore analytically non-negative;
// no floor is applied, so in low precision it may underflow to exactly 0.
func (l *VIPLayer[B]) Forward(x *tensor.Tensor[float64, B], returnSamples bool) (*Prediction[B], error) {
	f := l.gen.Sample(x) // [S, N, out]
	s := f.Shape()[0]

	m := f.MeanDim(0, true)                                // [1, N, out]
	phi := f.Sub(m).MulScalar(1 / math.Sqrt(float64(s-1))) // [S, N, out]

	// mean = m + phi ᵀ q_mu, contracted over the sample axis.
	mean := m.Squeeze(0).Add(contractBasis(phi, l.qMu.Tensor(), l.outputDim))

	// variance = sum over s of (q_sqrt phi)², the diagonal of
	// phiᵀ q_sqrt q_sqrtᵀ phi without forming the N x N matrix.
	qSqrt := UnpackTriangular(l.qSqrtTri.Tensor(), l.numCoeffs) // [S, S, D]
	variance := basisVariance(phi, qSqrt, l.outputDim)

	if l.logNoise != nil {
		variance = variance.Add(l.logNoise.Tensor().Exp())
	}
	if l.meanFunction != nil {
		mean = mean.Add(l.meanFunction.Apply(x))
	}

	pred := &Prediction[B]{Mean: mean, Variance: variance}
	if returnSamples {
		pred.Samples = f
	}
	return pred, nil
}

// contractBasis computes einsum("snd,sd->nd", phi, qMu): the regression
// prediction using the posterior-mean coefficients. When the generative
// function produces a single shared output (out=1), that basis is used for
// every output dimension.
func contractBasis[B tensor.Backend](phi, qMu *tensor.Tensor[float64, B], outputDim int) *tensor.Tensor[float64, B] {
	s, n, fOut := phi.Shape()[0], phi.Shape()[1], phi.Shape()[2]
	d := outputDim

	out := tensor.Zeros[float64](tensor.Shape{n, d}, phi.Backend())
	phiData, muData, dst := phi.Data(), qMu.Data(), out.Data()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			dp := j
			if fOut == 1 {
				dp = 0
			}
			var acc float64
			for si := 0; si < s; si++ {
				acc += phiData[si*n*fOut+i*fOut+dp] * muData[si*d+j]
			}
			dst[i*d+j] = acc
		}
	}
	return out
}

// basisVariance computes sum_s (einsum("ind,sid->snd", phi, qSqrt))²: the
// predictive variance per point and output dimension.
func basisVariance[B tensor.Backend](phi, qSqrt *tensor.Tensor[float64, B], outputDim int) *tensor.Tensor[float64, B] {
	s, n, fOut := phi.Shape()[0], phi.Shape()[1], phi.Shape()[2]
	d := outputDim

	out := tensor.Zeros[float64](tensor.Shape{n, d}, phi.Backend())
	phiData, sqData, dst := phi.Data(), qSqrt.Data(), out.Data()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			dp := j
			if fOut == 1 {
				dp = 0
			}
			var total float64
			for si := 0; si < s; si++ {
				// Row si of the triangular factor has entries up to
				// column si; the rest are zero.
				var acc float64
				for ii := 0; ii <= si; ii++ {
					acc += sqData[si*s*d+ii*d+j] * phiData[ii*n*fOut+i*fOut+dp]
				}
				total += acc * acc
			}
			dst[i*d+j] = total
		}
	}
	return out
}

// KL computes the closed-form KL divergence from Q(a) = N(q_mu,
// q_sqrt q_sqrtᵀ) to the standard normal prior N(0, I), summed over output
// dimensions:
//
//	KL = -D*S/2 - Σ log|diag(q_sqrt)| + Σ q_sqrt²/2 + Σ q_mu²/2
//
// The trace term sums every packed entry squared: for a triangular factor
// the squared Frobenius norm equals tr(q_sqrt q_sqrtᵀ). The cond argument is
// ignored; this KL does not depend on the forward pass.
func (l *VIPLayer[B]) KL(_ *Conditioning[B]) (float64, error) {
	kl := -0.5 * float64(l.outputDim) * float64(l.numCoeffs)

	diag := TriangularDiagonal(l.qSqrtTri.Tensor(), l.numCoeffs)
	for _, v := range diag.Data() {
		kl -= math.Log(math.Abs(v))
	}
	for _, v := range l.qSqrtTri.Tensor().Data() {
		kl += 0.5 * v * v
	}
	for _, v := range l.qMu.Tensor().Data() {
		kl += 0.5 * v * v
	}

	if l.addPriorKL {
		kl += priorKL(l.gen)
	}
	return kl, nil
}

// FreezePosterior marks q_mu, q_sqrt and the fixed noise (when present) as
// non-trainable.
func (l *VIPLayer[B]) FreezePosterior() {
	l.qMu.Freeze()
	l.qSqrtTri.Freeze()
	if l.logNoise != nil {
		l.logNoise.Freeze()
	}
	l.frozen = true
}

// FreezePrior marks the generative function's parameters as non-trainable.
func (l *VIPLayer[B]) FreezePrior() {
	l.gen.FreezeParameters()
}

// Parameters returns the layer's trainable parameters.
func (l *VIPLayer[B]) Parameters() []*nn.Parameter[float64, B] {
	params := []*nn.Parameter[float64, B]{l.qMu, l.qSqrtTri}
	if l.logNoise != nil {
		params = append(params, l.logNoise)
	}
	return params
}
