// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the CPU compute backend.
//
// Element-wise and shape operations are pure Go; matrix products,
// Cholesky factorizations and triangular solves are delegated to the
// gonum BLAS/LAPACK implementations.
package cpu

import (
	internalcpu "github.com/born-ml/vip/internal/backend/cpu"
	"github.com/born-ml/vip/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	import (
//	    "github.com/born-ml/vip/backend/cpu"
//	    "github.com/born-ml/vip/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float64](tensor.Shape{2, 3}, backend)
//	}
func New() *Backend {
	return internalcpu.New()
}
