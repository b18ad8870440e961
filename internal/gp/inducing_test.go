package gp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vip/internal/backend/cpu"
	"github.com/born-ml/vip/internal/nn"
	"github.com/born-ml/vip/internal/tensor"
)

func inducingSet(t *testing.T, backend testBackend, values ...float64) *tensor.Tensor[float64, testBackend] {
	t.Helper()
	z, err := tensor.FromSlice(values, tensor.Shape{len(values), 1}, backend)
	require.NoError(t, err)
	return z
}

func TestNewVIPLayerInducing_Validation(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(8, 1, 1, backend)
	z := inducingSet(t, backend, -1, 0, 1)

	_, err := NewVIPLayerInducing[testBackend](nil, z, Config[testBackend]{InputDim: 1, OutputDim: 1}, backend)
	assert.Error(t, err, "nil generative function")

	_, err = NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 2, OutputDim: 1}, backend)
	assert.Error(t, err, "inducing points do not match input dimension")

	_, err = NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 0}, backend)
	assert.Error(t, err, "non-positive output dimension")

	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 2}, backend)
	require.NoError(t, err)
	assert.Equal(t, 3, l.NumInducing())
	assert.Equal(t, 2, l.OutputDim())
}

func TestVIPLayerInducing_Forward_Shapes(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(32, 1, 2, backend)
	z := inducingSet(t, backend, -2, -1, 0, 1)

	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 2}, backend)
	require.NoError(t, err)

	x := inducingSet(t, backend, 0.5, 1.5, 2.5)
	pred, err := l.Forward(x, true)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{3, 2}, pred.Mean.Shape())
	assert.Equal(t, tensor.Shape{3, 2}, pred.Variance.Shape())
	require.NotNil(t, pred.Samples)
	assert.Equal(t, tensor.Shape{32, 3, 1}, pred.Samples.Shape(), "samples restricted to data locations")

	require.NotNil(t, pred.Cond)
	assert.Equal(t, tensor.Shape{2, 4, 4}, pred.Cond.Chol.Shape())
	assert.Equal(t, tensor.Shape{2, 4, 4}, pred.Cond.QSqrt.Shape())
}

func TestVIPLayerInducing_Forward_ZeroMeanAtInit(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(32, 1, 3, backend)
	z := inducingSet(t, backend, -1, 0, 1)

	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 1}, backend)
	require.NoError(t, err)

	pred, err := l.Forward(inducingSet(t, backend, 0.25, 0.75), false)
	require.NoError(t, err)

	// q_mu = 0 makes the conditioning mean exactly zero.
	for _, v := range pred.Mean.Data() {
		assert.InDelta(t, 0.0, v, 1e-12)
	}
}

func TestVIPLayerInducing_Forward_CollapseAtInducingPoints(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(64, 1, 4, backend)
	z := inducingSet(t, backend, -1, 0, 1, 2)

	// A near-zero variational factor pins the posterior to the inducing
	// values, so predicting at the inducing locations themselves leaves
	// only jitter-scale variance.
	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{
		InputDim: 1, OutputDim: 1, QSqrtInitial: 1e-5,
	}, backend)
	require.NoError(t, err)

	pred, err := l.Forward(inducingSet(t, backend, -1, 0, 1, 2), false)
	require.NoError(t, err)

	for i, v := range pred.Variance.Data() {
		assert.Greater(t, v, -1e-9, "point %d", i)
		assert.Less(t, v, 1e-3, "point %d", i)
	}
}

func TestVIPLayerInducing_KL(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(32, 1, 5, backend)
	z := inducingSet(t, backend, -1, 0, 1)

	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 2, QMuInitial: 0.3}, backend)
	require.NoError(t, err)

	_, err = l.KL(nil)
	assert.Error(t, err, "KL without a forward conditioning")

	pred, err := l.Forward(inducingSet(t, backend, 0.5), false)
	require.NoError(t, err)

	kl, err := l.KL(pred.Cond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, kl, -1e-9, "KL divergence is non-negative")
}

// With q_mu = 0 and q_sqrt repacked from the prior Cholesky factor Lu, the
// variational posterior coincides with the whitened prior and the KL
// vanishes.
func TestVIPLayerInducing_KL_ZeroWhenPosteriorMatchesPrior(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(64, 1, 11, backend)
	z := inducingSet(t, backend, -1, 0, 1)
	m := 3

	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 1}, backend)
	require.NoError(t, err)

	x := inducingSet(t, backend, 0.25, 0.75)
	pred, err := l.Forward(x, false)
	require.NoError(t, err)

	var qSqrt *nn.Parameter[float64, testBackend]
	for _, p := range l.Parameters() {
		if p.Name() == "q_sqrt_tri" {
			qSqrt = p
		}
	}
	require.NotNil(t, qSqrt)

	// Repack the [1, M, M] factor into row-major tril order.
	lu := pred.Cond.Chol.Data()
	packed := qSqrt.Tensor().Data()
	i := 0
	for r := 0; r < m; r++ {
		for c := 0; c <= r; c++ {
			packed[i] = lu[r*m+c]
			i++
		}
	}

	// The generative function is deterministic in x, so the second forward
	// reproduces Lu while picking up the new factor.
	pred, err = l.Forward(x, false)
	require.NoError(t, err)

	kl, err := l.KL(pred.Cond)
	require.NoError(t, err)
	assert.InDelta(t, 0, kl, 1e-8)
}

func TestVIPLayerInducing_KL_PriorKL(t *testing.T) {
	backend := cpu.New()
	gen := &regularizedGen{GenerativeFunction: newFeatureGen(32, 1, 6, backend), kl: 2.5}
	z := inducingSet(t, backend, -1, 0, 1)

	withPrior, err := NewVIPLayerInducing[testBackend](gen, z, Config[testBackend]{
		InputDim: 1, OutputDim: 1, AddPriorKL: true,
	}, backend)
	require.NoError(t, err)
	without, err := NewVIPLayerInducing[testBackend](gen, z, Config[testBackend]{
		InputDim: 1, OutputDim: 1,
	}, backend)
	require.NoError(t, err)

	x := inducingSet(t, backend, 0.5)
	predA, err := withPrior.Forward(x, false)
	require.NoError(t, err)
	predB, err := without.Forward(x, false)
	require.NoError(t, err)

	klA, err := withPrior.KL(predA.Cond)
	require.NoError(t, err)
	klB, err := without.KL(predB.Cond)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, klA-klB, 1e-9)
}

func TestVIPLayerInducing_Freeze(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(16, 1, 7, backend)
	z := inducingSet(t, backend, -1, 1)

	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 1}, backend)
	require.NoError(t, err)

	params := l.Parameters()
	require.Len(t, params, 3) // inducing points, q_mu, q_sqrt

	l.FreezePosterior()
	assert.True(t, l.InducingPoints().Trainable(), "inducing locations are not part of the posterior")
	for _, p := range params[1:] {
		assert.False(t, p.Trainable(), "%s frozen", p.Name())
	}

	l.FreezePrior()
	assert.True(t, gen.frozen)
}

func TestVIPLayerInducing_InducingPointsAreCopied(t *testing.T) {
	backend := cpu.New()
	gen := newFeatureGen(16, 1, 8, backend)
	z := inducingSet(t, backend, -1, 1)

	l, err := NewVIPLayerInducing(gen, z, Config[testBackend]{InputDim: 1, OutputDim: 1}, backend)
	require.NoError(t, err)

	z.Data()[0] = 99
	assert.InDelta(t, -1.0, l.InducingPoints().Tensor().At(0, 0), 1e-12, "layer owns its inducing set")
}
