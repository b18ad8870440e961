package cpu

import (
	"fmt"

	"github.com/born-ml/vip/internal/tensor"
)

// Cat concatenates tensors along the given dimension.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: empty tensor list")
	}
	first := tensors[0]
	rank := len(first.Shape())
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("cat: dimension %d out of range for shape %v", dim, first.Shape()))
	}

	outShape := first.Shape().Clone()
	for _, t := range tensors[1:] {
		s := t.Shape()
		if len(s) != rank {
			panic(fmt.Sprintf("cat: rank mismatch %v vs %v", first.Shape(), s))
		}
		for i := range s {
			if i != dim && s[i] != outShape[i] {
				panic(fmt.Sprintf("cat: shape mismatch %v vs %v at dim %d", first.Shape(), s, i))
			}
		}
		outShape[dim] += s[dim]
	}

	out := tensor.MustNewRaw(outShape, first.DType(), cpu.device)

	// Copy block-wise: each input contributes contiguous runs of
	// catDim*inner elements per outer index.
	elemSize := first.DType().Size()
	inner := 1
	for i := dim + 1; i < rank; i++ {
		inner *= outShape[i]
	}
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= outShape[i]
	}

	dst := out.Data()
	rowBytes := outShape[dim] * inner * elemSize
	colOffset := 0
	for _, t := range tensors {
		src := t.Data()
		runBytes := t.Shape()[dim] * inner * elemSize
		for o := 0; o < outer; o++ {
			copy(dst[o*rowBytes+colOffset:], src[o*runBytes:(o+1)*runBytes])
		}
		colOffset += runBytes
	}
	return out
}

// Unsqueeze inserts a dimension of size 1 at the given position.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	rank := len(shape)
	if dim < 0 {
		dim += rank + 1
	}
	if dim < 0 || dim > rank {
		panic(fmt.Sprintf("unsqueeze: dimension %d out of range for shape %v", dim, shape))
	}
	newShape := make(tensor.Shape, 0, rank+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	return x.WithShape(newShape)
}

// Squeeze removes a dimension of size 1 at the given position.
func (cpu *CPUBackend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	rank := len(shape)
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("squeeze: dimension %d out of range for shape %v", dim, shape))
	}
	if shape[dim] != 1 {
		panic(fmt.Sprintf("squeeze: dimension %d has size %d, expected 1", dim, shape[dim]))
	}
	newShape := make(tensor.Shape, 0, rank-1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, shape[dim+1:]...)
	if len(newShape) == 0 {
		newShape = tensor.Shape{1}
	}
	return x.WithShape(newShape)
}

// Narrow copies the slice [start, start+length) along a dimension.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	rank := len(shape)
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("narrow: dimension %d out of range for shape %v", dim, shape))
	}
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension of size %d", start, start+length, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	out := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	elemSize := x.DType().Size()
	inner := 1
	for i := dim + 1; i < rank; i++ {
		inner *= shape[i]
	}
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}

	src, dst := x.Data(), out.Data()
	srcRow := shape[dim] * inner * elemSize
	dstRow := length * inner * elemSize
	off := start * inner * elemSize
	for o := 0; o < outer; o++ {
		copy(dst[o*dstRow:(o+1)*dstRow], src[o*srcRow+off:o*srcRow+off+dstRow])
	}
	return out
}

// Tile repeats a size-1 dimension the given number of times.
func (cpu *CPUBackend) Tile(x *tensor.RawTensor, dim, repeats int) *tensor.RawTensor {
	shape := x.Shape()
	rank := len(shape)
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("tile: dimension %d out of range for shape %v", dim, shape))
	}
	if shape[dim] != 1 {
		panic(fmt.Sprintf("tile: dimension %d has size %d, expected 1", dim, shape[dim]))
	}
	if repeats <= 0 {
		panic(fmt.Sprintf("tile: repeats must be positive, got %d", repeats))
	}

	outShape := shape.Clone()
	outShape[dim] = repeats
	out := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	elemSize := x.DType().Size()
	inner := 1
	for i := dim + 1; i < rank; i++ {
		inner *= shape[i]
	}
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}

	src, dst := x.Data(), out.Data()
	run := inner * elemSize
	for o := 0; o < outer; o++ {
		block := src[o*run : (o+1)*run]
		for r := 0; r < repeats; r++ {
			copy(dst[(o*repeats+r)*run:], block)
		}
	}
	return out
}
