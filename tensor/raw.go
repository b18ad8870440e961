// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/vip/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Type-safe data access via AsFloat32(), AsFloat64(), etc.
//   - Buffer duplication via Clone()
//
// Most users should use the high-level Tensor[T, B] type instead.
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float64, tensor.CPU)
//	data := raw.AsFloat64()  // Type-safe access
type RawTensor = tensor.RawTensor

// NewRaw creates a new RawTensor with the given shape, data type and device.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// MustNewRaw is NewRaw that panics on error. Intended for tests and
// initialization code where the shape is known to be valid.
func MustNewRaw(shape Shape, dtype DataType, device Device) *RawTensor {
	return tensor.MustNewRaw(shape, dtype, device)
}
