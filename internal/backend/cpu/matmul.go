package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/vip/internal/tensor"
)

// MatMul performs 2D matrix multiplication via gonum GEMM:
// [M, K] @ [K, N] -> [M, N].
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	sa, sb := a.Shape(), b.Shape()
	if len(sa) != 2 || len(sb) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", sa, sb))
	}
	if sa[1] != sb[0] {
		panic(fmt.Sprintf("matmul: inner dimensions do not match: %v @ %v", sa, sb))
	}
	m, k, n := sa[0], sa[1], sb[1]

	out := tensor.MustNewRaw(tensor.Shape{m, n}, a.DType(), cpu.device)
	gemm(a, b, out, m, k, n, 0, 0, 0)
	return out
}

// BatchMatMul performs batched matrix multiplication for 3D tensors:
// [B, M, K] @ [B, K, N] -> [B, M, N].
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	sa, sb := a.Shape(), b.Shape()
	if len(sa) != 3 || len(sb) != 3 {
		panic(fmt.Sprintf("batchmatmul: expected 3D tensors, got %v and %v", sa, sb))
	}
	if sa[0] != sb[0] {
		panic(fmt.Sprintf("batchmatmul: batch dimensions do not match: %v @ %v", sa, sb))
	}
	if sa[2] != sb[1] {
		panic(fmt.Sprintf("batchmatmul: inner dimensions do not match: %v @ %v", sa, sb))
	}
	batch, m, k, n := sa[0], sa[1], sa[2], sb[2]

	out := tensor.MustNewRaw(tensor.Shape{batch, m, n}, a.DType(), cpu.device)
	for i := 0; i < batch; i++ {
		gemm(a, b, out, m, k, n, i*m*k, i*k*n, i*m*n)
	}
	return out
}

// gemm multiplies one [m, k] x [k, n] pair at the given element offsets.
func gemm(a, b, out *tensor.RawTensor, m, k, n, offA, offB, offOut int) {
	switch a.DType() {
	case tensor.Float64:
		ga := blas64.General{Rows: m, Cols: k, Stride: k, Data: a.AsFloat64()[offA : offA+m*k]}
		gb := blas64.General{Rows: k, Cols: n, Stride: n, Data: b.AsFloat64()[offB : offB+k*n]}
		gc := blas64.General{Rows: m, Cols: n, Stride: n, Data: out.AsFloat64()[offOut : offOut+m*n]}
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, ga, gb, 0, gc)
	case tensor.Float32:
		ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: a.AsFloat32()[offA : offA+m*k]}
		gb := blas32.General{Rows: k, Cols: n, Stride: n, Data: b.AsFloat32()[offB : offB+k*n]}
		gc := blas32.General{Rows: m, Cols: n, Stride: n, Data: out.AsFloat32()[offOut : offOut+m*n]}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, ga, gb, 0, gc)
	default:
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}
}
