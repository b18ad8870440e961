package gp

import (
	"math"
	"math/rand"

	"github.com/born-ml/vip/internal/backend/cpu"
	"github.com/born-ml/vip/internal/tensor"
)

type testBackend = *cpu.CPUBackend

func newTestRng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Compile-time checks that every variant satisfies the layer contract.
var (
	_ Layer[testBackend] = (*VIPLayer[testBackend])(nil)
	_ Layer[testBackend] = (*VIPLayerInducing[testBackend])(nil)
	_ Layer[testBackend] = (*SparseGP[testBackend])(nil)
)

// fixedGen replays a predetermined sample tensor, ignoring the input
// locations. The caller is responsible for matching N to its test input.
type fixedGen struct {
	samples *tensor.Tensor[float64, testBackend]
	frozen  bool
}

func (g *fixedGen) Sample(_ *tensor.Tensor[float64, testBackend]) *tensor.Tensor[float64, testBackend] {
	return g.samples
}

func (g *fixedGen) NumSamples() int   { return g.samples.Shape()[0] }
func (g *fixedGen) FreezeParameters() { g.frozen = true }

// constGen returns the same constant at every location, so the empirical
// basis is identically zero.
type constGen struct {
	s       int
	value   float64
	backend testBackend
	frozen  bool
}

func (g *constGen) Sample(x *tensor.Tensor[float64, testBackend]) *tensor.Tensor[float64, testBackend] {
	n := x.Shape()[0]
	return tensor.Full[float64](tensor.Shape{g.s, n, 1}, g.value, g.backend)
}

func (g *constGen) NumSamples() int   { return g.s }
func (g *constGen) FreezeParameters() { g.frozen = true }

// featureGen evaluates S deterministic random cosine features. Unlike a
// plain noise generator it is a function of the location, so joint draws at
// coincident points coincide exactly.
type featureGen struct {
	s, inputDim int
	omega       []float64 // [S * inputDim]
	phase       []float64 // [S]
	backend     testBackend
	frozen      bool
}

func newFeatureGen(s, inputDim int, seed int64, backend testBackend) *featureGen {
	rng := rand.New(rand.NewSource(seed))
	g := &featureGen{
		s:        s,
		inputDim: inputDim,
		omega:    make([]float64, s*inputDim),
		phase:    make([]float64, s),
		backend:  backend,
	}
	for i := range g.omega {
		g.omega[i] = rng.NormFloat64()
	}
	for i := range g.phase {
		g.phase[i] = 2 * math.Pi * rng.Float64()
	}
	return g
}

func (g *featureGen) Sample(x *tensor.Tensor[float64, testBackend]) *tensor.Tensor[float64, testBackend] {
	n := x.Shape()[0]
	out := tensor.Zeros[float64](tensor.Shape{g.s, n, 1}, g.backend)
	xd, dst := x.Data(), out.Data()
	for si := 0; si < g.s; si++ {
		for i := 0; i < n; i++ {
			arg := g.phase[si]
			for k := 0; k < g.inputDim; k++ {
				arg += g.omega[si*g.inputDim+k] * xd[i*g.inputDim+k]
			}
			dst[si*n+i] = math.Sqrt2 * math.Cos(arg)
		}
	}
	return out
}

func (g *featureGen) NumSamples() int   { return g.s }
func (g *featureGen) FreezeParameters() { g.frozen = true }

// regularizedGen decorates a generative function with a fixed prior KL.
type regularizedGen struct {
	GenerativeFunction[testBackend]
	kl float64
}

func (g *regularizedGen) PriorKL() float64 { return g.kl }
