package gp

import (
	"fmt"

	"github.com/born-ml/vip/internal/tensor"
)

// Packed lower-triangular covariance factors.
//
// A [K, K, D] stack of per-output-dimension lower-triangular matrices is
// stored as [D, K*(K+1)/2] with the triangular entries enumerated row-major:
// (0,0), (1,0), (1,1), (2,0), (2,1), (2,2), ...
// The j-th diagonal entry sits at packed index cumsum(1..j+1) - 1, so the
// diagonal (the only part the KL log-determinant needs) can be read without
// unpacking.

// PackedSize returns the number of packed entries for a K x K lower
// triangular matrix: K*(K+1)/2.
func PackedSize(k int) int {
	return k * (k + 1) / 2
}

// TrilIndices enumerates the (row, col) index pairs of the lower triangle of
// a K x K matrix in packed order.
func TrilIndices(k int) (rows, cols []int) {
	n := PackedSize(k)
	rows = make([]int, 0, n)
	cols = make([]int, 0, n)
	for r := 0; r < k; r++ {
		for c := 0; c <= r; c++ {
			rows = append(rows, r)
			cols = append(cols, c)
		}
	}
	return rows, cols
}

// diagIndices returns the packed positions of the K diagonal entries:
// cumsum(1..K) - 1, i.e. 0, 2, 5, 9, 14, ...
func diagIndices(k int) []int {
	idx := make([]int, k)
	acc := 0
	for j := 0; j < k; j++ {
		acc += j + 1
		idx[j] = acc - 1
	}
	return idx
}

// PackTriangular packs a [K, K, D] stack of lower-triangular matrices into
// [D, K*(K+1)/2]. Strictly upper entries of the input are ignored.
func PackTriangular[B tensor.Backend](dense *tensor.Tensor[float64, B]) *tensor.Tensor[float64, B] {
	shape := dense.Shape()
	if len(shape) != 3 || shape[0] != shape[1] {
		panic(fmt.Sprintf("pack: expected [K, K, D] tensor, got %v", shape))
	}
	k, d := shape[0], shape[2]
	n := PackedSize(k)

	out := tensor.Zeros[float64](tensor.Shape{d, n}, dense.Backend())
	src, dst := dense.Data(), out.Data()
	rows, cols := TrilIndices(k)
	for p := 0; p < n; p++ {
		base := rows[p]*k*d + cols[p]*d
		for j := 0; j < d; j++ {
			dst[j*n+p] = src[base+j]
		}
	}
	return out
}

// UnpackTriangular is the exact inverse of PackTriangular: it writes the
// packed entries into a zero-initialized [K, K, D] tensor, leaving all
// strictly-upper entries at zero.
func UnpackTriangular[B tensor.Backend](packed *tensor.Tensor[float64, B], k int) *tensor.Tensor[float64, B] {
	shape := packed.Shape()
	n := PackedSize(k)
	if len(shape) != 2 || shape[1] != n {
		panic(fmt.Sprintf("unpack: expected [D, %d] tensor for K=%d, got %v", n, k, shape))
	}
	d := shape[0]

	out := tensor.Zeros[float64](tensor.Shape{k, k, d}, packed.Backend())
	src, dst := packed.Data(), out.Data()
	rows, cols := TrilIndices(k)
	for p := 0; p < n; p++ {
		base := rows[p]*k*d + cols[p]*d
		for j := 0; j < d; j++ {
			dst[base+j] = src[j*n+p]
		}
	}
	return out
}

// TriangularDiagonal extracts, for each output dimension, the K diagonal
// entries of a packed factor, producing [D, K]. This avoids a full unpack
// when only the log-determinant term is needed.
func TriangularDiagonal[B tensor.Backend](packed *tensor.Tensor[float64, B], k int) *tensor.Tensor[float64, B] {
	shape := packed.Shape()
	n := PackedSize(k)
	if len(shape) != 2 || shape[1] != n {
		panic(fmt.Sprintf("diagonal: expected [D, %d] tensor for K=%d, got %v", n, k, shape))
	}
	d := shape[0]

	out := tensor.Zeros[float64](tensor.Shape{d, k}, packed.Backend())
	src, dst := packed.Data(), out.Data()
	for j, p := range diagIndices(k) {
		for i := 0; i < d; i++ {
			dst[i*k+j] = src[i*n+p]
		}
	}
	return out
}
