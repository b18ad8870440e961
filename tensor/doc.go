// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides type-safe tensor operations for the VIP library.
//
// # Overview
//
// Tensors are the fundamental data structure behind every layer in this
// module. This package provides:
//   - Generic type-safe tensors (Tensor[T, B])
//   - NumPy-style broadcasting
//   - Batched dense linear algebra (Cholesky, triangular solves)
//   - Device abstraction
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/vip/backend/cpu"
//	    "github.com/born-ml/vip/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    // Create tensors
//	    x := tensor.Zeros[float64](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float64](tensor.Shape{2, 3}, backend)
//
//	    // Tensor operations
//	    z := x.Add(y)
//	    result := x.MatMul(y.T())
//	}
//
// # Supported Data Types
//
// The tensor package supports the following data types via the DType
// constraint:
//   - float32, float64 (floating-point)
//   - int32 (signed integers)
//   - bool (boolean masks)
//
// Gaussian-process layers operate on float64 throughout; the remaining
// types exist for auxiliary data such as index sets and masks.
package tensor
