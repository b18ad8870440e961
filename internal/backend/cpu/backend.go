// Package cpu implements the CPU backend on top of gonum's BLAS and LAPACK
// bindings.
package cpu

import (
	"fmt"

	"github.com/born-ml/vip/internal/tensor"
)

// CPUBackend implements tensor operations on CPU. Dense matrix products and
// factorizations are delegated to gonum (blas64/lapack64); element-wise and
// shape operations are plain Go loops.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

// binaryOp applies a float binary operation with broadcasting.
func (cpu *CPUBackend) binaryOp(
	name string,
	a, b *tensor.RawTensor,
	op32 func(float32, float32) float32,
	op64 func(float64, float64) float64,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	out := tensor.MustNewRaw(outShape, a.DType(), cpu.device)

	strideA := tensor.BroadcastStrides(a.Shape(), outShape)
	strideB := tensor.BroadcastStrides(b.Shape(), outShape)

	switch a.DType() {
	case tensor.Float32:
		applyBinary(out.AsFloat32(), a.AsFloat32(), b.AsFloat32(), outShape, strideA, strideB, op32)
	case tensor.Float64:
		applyBinary(out.AsFloat64(), a.AsFloat64(), b.AsFloat64(), outShape, strideA, strideB, op64)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}
	return out
}

// applyBinary walks the broadcast output in row-major order, advancing the
// input offsets with the (possibly zero) broadcast strides.
func applyBinary[T float32 | float64](
	dst, a, b []T,
	shape tensor.Shape,
	strideA, strideB []int,
	op func(T, T) T,
) {
	rank := len(shape)
	if rank == 0 {
		dst[0] = op(a[0], b[0])
		return
	}

	coords := make([]int, rank)
	offA, offB := 0, 0
	for i := range dst {
		dst[i] = op(a[offA], b[offB])

		for d := rank - 1; d >= 0; d-- {
			coords[d]++
			offA += strideA[d]
			offB += strideB[d]
			if coords[d] < shape[d] {
				break
			}
			coords[d] = 0
			offA -= strideA[d] * shape[d]
			offB -= strideB[d] * shape[d]
		}
	}
}
