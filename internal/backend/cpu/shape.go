package cpu

import (
	"fmt"

	"github.com/born-ml/vip/internal/tensor"
)

// Reshape returns a tensor sharing the same buffer with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return t.WithShape(newShape)
}

// Transpose permutes the tensor's dimensions, materializing the result.
// With no axes it reverses all dimensions.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	rank := len(shape)

	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("transpose: %d axes for rank-%d tensor", len(axes), rank))
	}
	seen := make([]bool, rank)
	outShape := make(tensor.Shape, rank)
	for i, ax := range axes {
		if ax < 0 || ax >= rank || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for shape %v", axes, shape))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	out := tensor.MustNewRaw(outShape, t.DType(), cpu.device)

	// Source strides rearranged into output order: walking the output
	// row-major advances the source offset by permuted strides.
	srcStrides := t.Strides()
	permStrides := make([]int, rank)
	for i, ax := range axes {
		permStrides[i] = srcStrides[ax]
	}

	switch t.DType() {
	case tensor.Float32:
		permuteCopy(out.AsFloat32(), t.AsFloat32(), outShape, permStrides)
	case tensor.Float64:
		permuteCopy(out.AsFloat64(), t.AsFloat64(), outShape, permStrides)
	case tensor.Int32:
		permuteCopy(out.AsInt32(), t.AsInt32(), outShape, permStrides)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}
	return out
}

func permuteCopy[T any](dst, src []T, shape tensor.Shape, strides []int) {
	rank := len(shape)
	coords := make([]int, rank)
	off := 0
	for i := range dst {
		dst[i] = src[off]
		for d := rank - 1; d >= 0; d-- {
			coords[d]++
			off += strides[d]
			if coords[d] < shape[d] {
				break
			}
			coords[d] = 0
			off -= strides[d] * shape[d]
		}
	}
}
