package cpu

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"

	"github.com/born-ml/vip/internal/tensor"
)

// Cholesky factorizes each [K, K] matrix of a [B, K, K] float64 batch into
// its lower-triangular Cholesky factor via LAPACK dpotrf. The strictly upper
// triangle of every output matrix is zero.
//
// A non-positive-definite matrix aborts the whole batch; the error names the
// batch index and matrix size so callers can report which output dimension's
// covariance failed.
func (cpu *CPUBackend) Cholesky(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := x.Shape()
	if len(shape) != 3 || shape[1] != shape[2] {
		panic(fmt.Sprintf("cholesky: expected [B, K, K] tensor, got %v", shape))
	}
	if x.DType() != tensor.Float64 {
		panic(fmt.Sprintf("cholesky: unsupported dtype %s (factorizations are float64 only)", x.DType()))
	}
	batch, k := shape[0], shape[1]

	out := x.Clone()
	data := out.AsFloat64()
	for i := 0; i < batch; i++ {
		m := data[i*k*k : (i+1)*k*k]
		sym := blas64.Symmetric{Uplo: blas.Lower, N: k, Stride: k, Data: m}
		if _, ok := lapack64.Potrf(sym); !ok {
			return nil, errors.Errorf("cholesky: matrix %d of %d (size %dx%d) is not positive-definite", i, batch, k, k)
		}
		// dpotrf leaves the strictly upper triangle untouched.
		for r := 0; r < k; r++ {
			for c := r + 1; c < k; c++ {
				m[r*k+c] = 0
			}
		}
	}
	return out, nil
}

// TriangularSolve solves batched triangular systems against the
// lower-triangular factors l [B, K, K] via BLAS dtrsm.
//
//	left=true:  op(L) X = b  with b [B, K, N]
//	left=false: X op(L) = b  with b [B, N, K]
//
// transpose selects op(L) = Lᵀ. The result has b's shape. Singularity is not
// detected here; a zero diagonal produces non-finite values downstream.
func (cpu *CPUBackend) TriangularSolve(l, b *tensor.RawTensor, left, transpose bool) *tensor.RawTensor {
	ls, bs := l.Shape(), b.Shape()
	if len(ls) != 3 || ls[1] != ls[2] {
		panic(fmt.Sprintf("triangularsolve: expected [B, K, K] factors, got %v", ls))
	}
	if len(bs) != 3 || bs[0] != ls[0] {
		panic(fmt.Sprintf("triangularsolve: factor batch %v does not match rhs %v", ls, bs))
	}
	if l.DType() != tensor.Float64 || b.DType() != tensor.Float64 {
		panic(fmt.Sprintf("triangularsolve: unsupported dtypes %s, %s (factorizations are float64 only)", l.DType(), b.DType()))
	}
	batch, k := ls[0], ls[1]

	side := blas.Right
	kDim := 2
	if left {
		side = blas.Left
		kDim = 1
	}
	if bs[kDim] != k {
		panic(fmt.Sprintf("triangularsolve: rhs %v incompatible with factor size %d (left=%v)", bs, k, left))
	}
	trans := blas.NoTrans
	if transpose {
		trans = blas.Trans
	}

	out := b.Clone()
	ldata := l.AsFloat64()
	odata := out.AsFloat64()
	rows, cols := bs[1], bs[2]
	for i := 0; i < batch; i++ {
		tri := blas64.Triangular{
			Uplo:   blas.Lower,
			Diag:   blas.NonUnit,
			N:      k,
			Stride: k,
			Data:   ldata[i*k*k : (i+1)*k*k],
		}
		rhs := blas64.General{
			Rows:   rows,
			Cols:   cols,
			Stride: cols,
			Data:   odata[i*rows*cols : (i+1)*rows*cols],
		}
		blas64.Trsm(side, trans, 1, tri, rhs)
	}
	return out
}

// BatchDiagonal extracts the main diagonal of each matrix of a [B, K, K]
// batch, producing [B, K].
func (cpu *CPUBackend) BatchDiagonal(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 3 || shape[1] != shape[2] {
		panic(fmt.Sprintf("batchdiagonal: expected [B, K, K] tensor, got %v", shape))
	}
	batch, k := shape[0], shape[1]

	out := tensor.MustNewRaw(tensor.Shape{batch, k}, x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), out.AsFloat32()
		for i := 0; i < batch; i++ {
			for j := 0; j < k; j++ {
				dst[i*k+j] = src[i*k*k+j*k+j]
			}
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), out.AsFloat64()
		for i := 0; i < batch; i++ {
			for j := 0; j < k; j++ {
				dst[i*k+j] = src[i*k*k+j*k+j]
			}
		}
	default:
		panic(fmt.Sprintf("batchdiagonal: unsupported dtype %s", x.DType()))
	}
	return out
}
