package cpu

import (
	"fmt"

	"github.com/born-ml/vip/internal/tensor"
)

// Sum reduces the whole tensor to a single element (shape {1}).
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.MustNewRaw(tensor.Shape{1}, x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		var acc float32
		for _, v := range x.AsFloat32() {
			acc += v
		}
		out.AsFloat32()[0] = acc
	case tensor.Float64:
		var acc float64
		for _, v := range x.AsFloat64() {
			acc += v
		}
		out.AsFloat64()[0] = acc
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return out
}

// SumDim sums along a dimension. Negative dims count from the end.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sumdim", x, dim, keepDim, false)
}

// MeanDim averages along a dimension. Negative dims count from the end.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("meandim", x, dim, keepDim, true)
}

// reduceDim collapses one dimension by summation, optionally dividing by the
// reduced size. The input is treated as [outer, reduce, inner] around dim.
func (cpu *CPUBackend) reduceDim(name string, x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	rank := len(shape)
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("%s: dimension %d out of range for shape %v", name, dim, shape))
	}

	outer, inner := 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < rank; i++ {
		inner *= shape[i]
	}
	reduce := shape[dim]

	outShape := make(tensor.Shape, 0, rank)
	for i, d := range shape {
		switch {
		case i != dim:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}
	if len(outShape) == 0 {
		outShape = tensor.Shape{1}
	}
	out := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		reduceSlices(out.AsFloat32(), x.AsFloat32(), outer, reduce, inner, mean)
	case tensor.Float64:
		reduceSlices(out.AsFloat64(), x.AsFloat64(), outer, reduce, inner, mean)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}
	return out
}

func reduceSlices[T float32 | float64](dst, src []T, outer, reduce, inner int, mean bool) {
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var acc T
			base := o*reduce*inner + in
			for r := 0; r < reduce; r++ {
				acc += src[base+r*inner]
			}
			if mean {
				acc /= T(reduce)
			}
			dst[o*inner+in] = acc
		}
	}
}
