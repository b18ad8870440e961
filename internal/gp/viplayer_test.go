package gp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vip/internal/backend/cpu"
	"github.com/born-ml/vip/internal/nn"
	"github.com/born-ml/vip/internal/tensor"
)

func TestNewVIPLayer_Validation(t *testing.T) {
	backend := cpu.New()
	gen := &constGen{s: 4, backend: backend}

	_, err := NewVIPLayer[testBackend](nil, Config[testBackend]{InputDim: 1, OutputDim: 1, NumCoeffs: 4}, backend)
	assert.Error(t, err, "nil generative function")

	_, err = NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 0, OutputDim: 1, NumCoeffs: 4}, backend)
	assert.Error(t, err, "non-positive input dimension")

	_, err = NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 1, OutputDim: 1, NumCoeffs: 0}, backend)
	assert.Error(t, err, "non-positive basis count")

	_, err = NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 1, OutputDim: 1, NumCoeffs: 5}, backend)
	assert.Error(t, err, "basis count and sample count disagree")

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 2, OutputDim: 3, NumCoeffs: 4}, backend)
	require.NoError(t, err)
	assert.Equal(t, 2, l.InputDim())
	assert.Equal(t, 3, l.OutputDim())
}

func TestVIPLayer_Forward_EmpiricalMoments(t *testing.T) {
	backend := cpu.New()

	// Three sampled functions evaluated at two points:
	// f1 = (1, 2), f2 = (3, 4), f3 = (5, 6).
	samples, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2, 1}, backend)
	require.NoError(t, err)
	gen := &fixedGen{samples: samples}

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 1, OutputDim: 1, NumCoeffs: 3}, backend)
	require.NoError(t, err)

	x := tensor.Zeros[float64](tensor.Shape{2, 1}, backend)
	pred, err := l.Forward(x, false)
	require.NoError(t, err)

	// With q_mu = 0 the predictive mean is the empirical sample mean.
	assert.Equal(t, tensor.Shape{2, 1}, pred.Mean.Shape())
	assert.InDelta(t, 3.0, pred.Mean.At(0, 0), 1e-12)
	assert.InDelta(t, 4.0, pred.Mean.At(1, 0), 1e-12)

	// With q_sqrt = I the predictive variance is the unbiased empirical
	// variance of the draws: var{1,3,5} = var{2,4,6} = 4.
	assert.Equal(t, tensor.Shape{2, 1}, pred.Variance.Shape())
	assert.InDelta(t, 4.0, pred.Variance.At(0, 0), 1e-12)
	assert.InDelta(t, 4.0, pred.Variance.At(1, 0), 1e-12)

	assert.Nil(t, pred.Samples, "samples not requested")
	assert.Nil(t, pred.Cond, "basis regression has no conditioning")
}

func TestVIPLayer_Forward_SharedBasisAcrossOutputs(t *testing.T) {
	backend := cpu.New()

	// The generative function emits a single output column; a layer with
	// D=2 reuses it for both output dimensions.
	samples, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2, 1}, backend)
	require.NoError(t, err)
	gen := &fixedGen{samples: samples}

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 1, OutputDim: 2, NumCoeffs: 3}, backend)
	require.NoError(t, err)

	pred, err := l.Forward(tensor.Zeros[float64](tensor.Shape{2, 1}, backend), false)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 2}, pred.Mean.Shape())
	for i := 0; i < 2; i++ {
		assert.InDelta(t, pred.Mean.At(i, 0), pred.Mean.At(i, 1), 1e-12, "mean row %d", i)
		assert.InDelta(t, pred.Variance.At(i, 0), pred.Variance.At(i, 1), 1e-12, "variance row %d", i)
	}
	assert.InDelta(t, 4.0, pred.Variance.At(0, 0), 1e-12)
}

func TestVIPLayer_Forward_ConstantSamples(t *testing.T) {
	backend := cpu.New()
	logNoise := math.Log(0.25)
	gen := &constGen{s: 5, value: 7, backend: backend}

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{
		InputDim:  1,
		OutputDim: 1,
		NumCoeffs: 5,
		LogNoise:  &logNoise,
	}, backend)
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float64{0, 1, 2}, tensor.Shape{3, 1}, backend)
	require.NoError(t, err)
	pred, err := l.Forward(x, false)
	require.NoError(t, err)

	// Constant draws have a zero basis: mean is the constant and the
	// variance reduces to the fixed noise.
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 7.0, pred.Mean.At(i, 0), 1e-12)
		assert.InDelta(t, 0.25, pred.Variance.At(i, 0), 1e-12)
	}
}

func TestVIPLayer_Forward_MeanFunction(t *testing.T) {
	backend := cpu.New()
	gen := &constGen{s: 3, value: 2, backend: backend}

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{
		InputDim:     1,
		OutputDim:    1,
		NumCoeffs:    3,
		MeanFunction: nn.NewIdentityProjection(1, backend),
	}, backend)
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float64{0, 10}, tensor.Shape{2, 1}, backend)
	require.NoError(t, err)
	pred, err := l.Forward(x, false)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, pred.Mean.At(0, 0), 1e-12)
	assert.InDelta(t, 12.0, pred.Mean.At(1, 0), 1e-12)
}

func TestVIPLayer_Forward_ReturnSamples(t *testing.T) {
	backend := cpu.New()
	samples, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2, 1}, backend)
	require.NoError(t, err)
	gen := &fixedGen{samples: samples}

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 1, OutputDim: 1, NumCoeffs: 2}, backend)
	require.NoError(t, err)

	pred, err := l.Forward(tensor.Zeros[float64](tensor.Shape{2, 1}, backend), true)
	require.NoError(t, err)
	require.NotNil(t, pred.Samples)
	assert.Equal(t, tensor.Shape{2, 2, 1}, pred.Samples.Shape())
}

func TestVIPLayer_Forward_VarianceNonNegative(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(16, 2, 7, backend)

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{
		InputDim:     2,
		OutputDim:    1,
		NumCoeffs:    16,
		QSqrtInitial: 0.3,
	}, backend)
	require.NoError(t, err)

	x := tensor.RandnSource[float64](tensor.Shape{10, 2}, newTestRng(3), backend)
	pred, err := l.Forward(x, false)
	require.NoError(t, err)

	for _, v := range pred.Variance.Data() {
		assert.GreaterOrEqual(t, v, 0.0, "variance is a sum of squares")
	}
}

func TestVIPLayer_KL(t *testing.T) {
	backend := cpu.New()

	t.Run("ZeroAtInit", func(t *testing.T) {
		// q_mu = 0, q_sqrt = I is exactly the prior.
		gen := &constGen{s: 3, backend: backend}
		l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{InputDim: 1, OutputDim: 2, NumCoeffs: 3}, backend)
		require.NoError(t, err)

		kl, err := l.KL(nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, kl, 1e-12)
	})

	t.Run("MeanShift", func(t *testing.T) {
		// Shifting q_mu by c adds S*D*c²/2.
		gen := &constGen{s: 3, backend: backend}
		l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{
			InputDim: 1, OutputDim: 2, NumCoeffs: 3, QMuInitial: 0.5,
		}, backend)
		require.NoError(t, err)

		kl, err := l.KL(nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, kl, 1e-12)
	})

	t.Run("ScaledFactor", func(t *testing.T) {
		// q_sqrt = 2I, S=2, D=1:
		// KL = -S/2 - 2 log 2 + (4 + 4)/2 = 3 - 2 log 2.
		gen := &constGen{s: 2, backend: backend}
		l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{
			InputDim: 1, OutputDim: 1, NumCoeffs: 2, QSqrtInitial: 2,
		}, backend)
		require.NoError(t, err)

		kl, err := l.KL(nil)
		require.NoError(t, err)
		assert.InDelta(t, 3-2*math.Log(2), kl, 1e-12)
	})

	t.Run("PriorKL", func(t *testing.T) {
		gen := &regularizedGen{
			GenerativeFunction: &constGen{s: 3, backend: backend},
			kl:                 1.5,
		}
		l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{
			InputDim: 1, OutputDim: 1, NumCoeffs: 3, AddPriorKL: true,
		}, backend)
		require.NoError(t, err)

		kl, err := l.KL(nil)
		require.NoError(t, err)
		assert.InDelta(t, 1.5, kl, 1e-12)
	})
}

func TestVIPLayer_Freeze(t *testing.T) {
	backend := cpu.New()
	logNoise := 0.0
	gen := &constGen{s: 3, backend: backend}

	l, err := NewVIPLayer[testBackend](gen, Config[testBackend]{
		InputDim: 1, OutputDim: 1, NumCoeffs: 3, LogNoise: &logNoise,
	}, backend)
	require.NoError(t, err)

	params := l.Parameters()
	require.Len(t, params, 3)
	for _, p := range params {
		assert.True(t, p.Trainable(), "%s starts trainable", p.Name())
	}

	l.FreezePosterior()
	for _, p := range params {
		assert.False(t, p.Trainable(), "%s frozen", p.Name())
	}

	assert.False(t, gen.frozen)
	l.FreezePrior()
	assert.True(t, gen.frozen)
}
