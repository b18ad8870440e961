package nn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/vip/internal/tensor"
)

// MeanFunction maps input locations to an additive mean contribution:
// [N, input_dim] -> [N, output_dim]. Implementations must be pure functions
// of their (read-only) state, so a single instance can be shared across
// layers.
type MeanFunction[B tensor.Backend] interface {
	Apply(x *tensor.Tensor[float64, B]) *tensor.Tensor[float64, B]
}

// LinearProjection is a mean function defined by a fixed projection matrix P:
// Apply(X) = X @ P with P of shape [input_dim, output_dim].
//
// The matrix is not a trainable parameter; it is precomputed at model-build
// time (identity for dimension-preserving layers, a PCA projection for
// dimension-reducing ones) and shared read-only.
type LinearProjection[B tensor.Backend] struct {
	P *tensor.Tensor[float64, B]
}

// NewLinearProjection creates a mean function from an explicit [in, out]
// projection matrix.
func NewLinearProjection[B tensor.Backend](p *tensor.Tensor[float64, B]) *LinearProjection[B] {
	if len(p.Shape()) != 2 {
		panic(errors.Errorf("linear projection matrix must be 2D, got %v", p.Shape()))
	}
	return &LinearProjection[B]{P: p}
}

// NewIdentityProjection creates the identity mean function for
// dimension-preserving layers.
func NewIdentityProjection[B tensor.Backend](dim int, b B) *LinearProjection[B] {
	return &LinearProjection[B]{P: tensor.Eye[float64](dim, b)}
}

// NewPCAProjection builds a projection onto the top outDim right singular
// vectors of the data matrix x [N, D] (the maximum-variance projection used
// when a layer reduces dimensionality). Requires outDim <= D.
func NewPCAProjection[B tensor.Backend](x *tensor.Tensor[float64, B], outDim int, b B) (*LinearProjection[B], error) {
	shape := x.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("pca projection: data must be 2D, got %v", shape)
	}
	n, d := shape[0], shape[1]
	if outDim <= 0 || outDim > d {
		return nil, errors.Errorf("pca projection: output dimension %d not in [1, %d]", outDim, d)
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(n, d, x.Clone().Data()), mat.SVDThin); !ok {
		return nil, errors.Errorf("pca projection: SVD of %dx%d data matrix failed to converge", n, d)
	}
	var v mat.Dense
	svd.VTo(&v)

	// Columns of V are the right singular vectors, ordered by singular value.
	p := tensor.Zeros[float64](tensor.Shape{d, outDim}, b)
	data := p.Data()
	for i := 0; i < d; i++ {
		for j := 0; j < outDim; j++ {
			data[i*outDim+j] = v.At(i, j)
		}
	}
	return &LinearProjection[B]{P: p}, nil
}

// Apply computes X @ P.
func (l *LinearProjection[B]) Apply(x *tensor.Tensor[float64, B]) *tensor.Tensor[float64, B] {
	return x.MatMul(l.P)
}
