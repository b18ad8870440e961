package gp

import (
	"math"

	"github.com/born-ml/vip/internal/tensor"
)

// Diagonal jitter restoring positive-definiteness of empirical covariances.
// The partition jitter is applied to the Ku and Kf blocks as they are formed;
// the larger factorization jitter is added on top of Ku right before the
// Cholesky decomposition. There is no automatic retry with a larger jitter:
// a factorization failure aborts the forward pass.
const (
	jitterPartition = 2e-6
	jitterCholesky  = 1e-4
)

// nystromConditioning runs the whitened low-rank conditioning shared by
// VIPLayerInducing and SparseGP.
//
// Inputs are batched over output dimensions with batch size out (1 or D):
// ku [out, M, M] (inducing block, partition-jittered), kf [out, N, N] (data
// block), kfu [out, N, M] (cross block). qMu is [M, D] and qSqrtTri the
// packed [D, M*(M+1)/2] factor. When out=1 and D>1 the covariance batch is
// tiled to D so every contraction is defined per output dimension.
//
// Returns the predictive mean [N, D] (before any mean function), the
// predictive variance [N, D] (before any fixed noise), and the Conditioning
// the whitened KL needs.
func nystromConditioning[B tensor.Backend](
	ku, kf, kfu *tensor.Tensor[float64, B],
	qMu, qSqrtTri *tensor.Tensor[float64, B],
	outputDim int,
	backend B,
) (mean, variance *tensor.Tensor[float64, B], cond *Conditioning[B], err error) {
	out := ku.Shape()[0]
	m := ku.Shape()[1]

	// Lu = chol(Ku + jitter I), per output dimension.
	lu, err := ku.Add(jitterEye(m, jitterCholesky, backend)).Cholesky()
	if err != nil {
		return nil, nil, nil, err
	}

	// A = Kfu Lu⁻ᵀ Lu⁻¹, two right-side triangular solves instead of an
	// explicit inverse.
	a := lu.TriangularSolve(kfu, false, true)
	a = lu.TriangularSolve(a, false, false)

	kfDiag := kf.BatchDiagonal() // [out, N]

	// A single shared covariance batch serves every output dimension.
	if out == 1 && outputDim > 1 {
		ku = ku.Tile(0, outputDim)
		lu = lu.Tile(0, outputDim)
		a = a.Tile(0, outputDim)
		kfDiag = kfDiag.Tile(0, outputDim)
	}

	// mean = A q_mu per output dimension.
	qMuCol := qMu.Transpose().Reshape(outputDim, m, 1)  // [D, M, 1]
	mean = a.BatchMatMul(qMuCol).Squeeze(2).Transpose() // [N, D]

	// SK = q_sqrt q_sqrtᵀ - Ku: the deviation of the variational covariance
	// from the prior inducing covariance.
	qSqrt := UnpackTriangular(qSqrtTri, m).Transpose(2, 0, 1) // [D, M, M]
	sk := qSqrt.BatchMatMul(qSqrt.Transpose(0, 2, 1)).Sub(ku)

	// variance = diag(Kf) + diag(A SK Aᵀ), without forming the N x N block.
	b := sk.BatchMatMul(a.Transpose(0, 2, 1))             // [D, M, N]
	delta := a.Mul(b.Transpose(0, 2, 1)).SumDim(2, false) // [D, N]
	variance = kfDiag.Add(delta).Transpose()              // [N, D]

	cond = &Conditioning[B]{Chol: lu, QSqrt: qSqrt}
	return mean, variance, cond, nil
}

// whitenedKL computes the KL divergence between Q and the GP prior N(0, Ku)
// in the whitened parameterization, entirely through triangular factors:
//
//	KL = -D*M/2 - Σ log|diag(q_sqrt)| + Σ log|diag(Lu)|
//	     + Σ (Lu⁻¹ q_sqrt)²/2 + Σ q_mu (Lu⁻¹ q_mu)/2
//
// The two log-determinant terms express log|Ku| - log|q_sqrt q_sqrtᵀ| via
// the factor diagonals; the quadratic terms cost one triangular solve each.
func whitenedKL[B tensor.Backend](
	cond *Conditioning[B],
	qMu, qSqrtTri *tensor.Tensor[float64, B],
	numInducing, outputDim int,
) float64 {
	m, d := numInducing, outputDim
	kl := -0.5 * float64(d) * float64(m)

	diag := TriangularDiagonal(qSqrtTri, m)
	for _, v := range diag.Data() {
		kl -= math.Log(math.Abs(v))
	}
	for _, v := range cond.Chol.BatchDiagonal().Data() {
		kl += math.Log(math.Abs(v))
	}

	// Trace term: ||Lu⁻¹ q_sqrt||² per output dimension.
	white := cond.Chol.TriangularSolve(cond.QSqrt, true, false)
	for _, v := range white.Data() {
		kl += 0.5 * v * v
	}

	// Mean term: q_muᵀ Lu⁻¹ q_mu per output dimension.
	qMuCol := qMu.Transpose().Reshape(d, m, 1)
	solved := cond.Chol.TriangularSolve(qMuCol, true, false)
	mu, sv := qMuCol.Data(), solved.Data()
	for i := range mu {
		kl += 0.5 * mu[i] * sv[i]
	}

	return kl
}

// jitterEye returns value * I as an [K, K] tensor, for broadcast addition
// onto a batched covariance.
func jitterEye[B tensor.Backend](k int, value float64, backend B) *tensor.Tensor[float64, B] {
	return tensor.Eye[float64](k, backend).MulScalar(value)
}
