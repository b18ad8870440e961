// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the building blocks shared by the Gaussian-process
// layers: trainable parameters and input mean functions.
package nn

import (
	"github.com/born-ml/vip/internal/nn"
	"github.com/born-ml/vip/internal/tensor"
)

// Parameter represents a trainable parameter.
type Parameter[T tensor.DType, B tensor.Backend] = nn.Parameter[T, B]

// NewParameter creates a new trainable parameter with the given name and
// initial value.
func NewParameter[T tensor.DType, B tensor.Backend](name string, t *tensor.Tensor[T, B]) *Parameter[T, B] {
	return nn.NewParameter(name, t)
}

// Mean functions

// MeanFunction maps layer inputs to an additive predictive mean component.
type MeanFunction[B tensor.Backend] = nn.MeanFunction[B]

// LinearProjection is a fixed linear mean function X @ P.
type LinearProjection[B tensor.Backend] = nn.LinearProjection[B]

// NewLinearProjection creates a linear mean function from an explicit
// [inputDim, outputDim] projection matrix.
func NewLinearProjection[B tensor.Backend](p *tensor.Tensor[float64, B]) *LinearProjection[B] {
	return nn.NewLinearProjection(p)
}

// NewIdentityProjection creates the identity mean function for layers whose
// input and output dimensions match.
func NewIdentityProjection[B tensor.Backend](dim int, b B) *LinearProjection[B] {
	return nn.NewIdentityProjection(dim, b)
}

// NewPCAProjection creates a linear mean function whose projection matrix
// holds the top principal components of the given data matrix, for layers
// that reduce dimensionality.
func NewPCAProjection[B tensor.Backend](x *tensor.Tensor[float64, B], outDim int, b B) (*LinearProjection[B], error) {
	return nn.NewPCAProjection(x, outDim, b)
}
