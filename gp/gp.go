// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gp provides variational implicit process layers.
//
// The package exposes three posterior constructions over a shared layer
// interface:
//   - VIPLayer: basis regression over sampled prior functions
//   - VIPLayerInducing: inducing points with an empirical Nyström covariance
//   - SparseGP: inducing points with a squared-exponential kernel
//
// Example:
//
//	backend := cpu.New()
//	layer, err := gp.NewVIPLayer(gen, gp.Config[*cpu.Backend]{
//	    InputDim:  1,
//	    OutputDim: 1,
//	    NumCoeffs: 20,
//	}, backend)
//	if err != nil {
//	    return err
//	}
//	pred, err := layer.Forward(x, false)
package gp

import (
	"github.com/born-ml/vip/internal/gp"
	"github.com/born-ml/vip/internal/tensor"
)

// Config holds the shared construction options for all layer types.
type Config[B tensor.Backend] = gp.Config[B]

// Conditioning carries the Cholesky factor of the inducing covariance and
// the unpacked posterior scale from a Forward pass, for reuse by KL.
type Conditioning[B tensor.Backend] = gp.Conditioning[B]

// Prediction is the result of a Forward pass.
type Prediction[B tensor.Backend] = gp.Prediction[B]

// Layer is the interface implemented by all variational layers.
type Layer[B tensor.Backend] = gp.Layer[B]

// GenerativeFunction produces sampled functions from an implicit prior.
type GenerativeFunction[B tensor.Backend] = gp.GenerativeFunction[B]

// PriorRegularizer is optionally implemented by generative functions that
// contribute their own KL term to the objective.
type PriorRegularizer = gp.PriorRegularizer

// Layers

// VIPLayer is the basis-regression variational layer.
type VIPLayer[B tensor.Backend] = gp.VIPLayer[B]

// NewVIPLayer creates a basis-regression layer over the given generative
// function. cfg.NumCoeffs must match gen.NumSamples().
func NewVIPLayer[B tensor.Backend](gen GenerativeFunction[B], cfg Config[B], backend B) (*VIPLayer[B], error) {
	return gp.NewVIPLayer(gen, cfg, backend)
}

// VIPLayerInducing is the inducing-point variational layer with an
// empirical Nyström covariance.
type VIPLayerInducing[B tensor.Backend] = gp.VIPLayerInducing[B]

// NewVIPLayerInducing creates an inducing-point layer at the inducing
// locations z of shape [M, InputDim].
func NewVIPLayerInducing[B tensor.Backend](gen GenerativeFunction[B], z *tensor.Tensor[float64, B], cfg Config[B], backend B) (*VIPLayerInducing[B], error) {
	return gp.NewVIPLayerInducing(gen, z, cfg, backend)
}

// SparseGP is the inducing-point variational layer with a
// squared-exponential kernel.
type SparseGP[B tensor.Backend] = gp.SparseGP[B]

// NewSparseGP creates a sparse GP layer at the inducing locations z of
// shape [M, InputDim]. gen is optional; when non-nil it only contributes a
// prior KL term.
func NewSparseGP[B tensor.Backend](gen GenerativeFunction[B], z *tensor.Tensor[float64, B], cfg Config[B], backend B) (*SparseGP[B], error) {
	return gp.NewSparseGP(gen, z, cfg, backend)
}

// Triangular packing utilities

// PackedSize returns the number of elements in the packed lower triangle of
// a k×k matrix, k*(k+1)/2.
func PackedSize(k int) int {
	return gp.PackedSize(k)
}

// TrilIndices returns the row and column indices of the lower triangle of a
// k×k matrix in row-major order.
func TrilIndices(k int) (rows, cols []int) {
	return gp.TrilIndices(k)
}

// PackTriangular packs the lower triangles of a [K, K, D] tensor into
// [D, K*(K+1)/2] row-major packed form.
func PackTriangular[B tensor.Backend](dense *tensor.Tensor[float64, B]) *tensor.Tensor[float64, B] {
	return gp.PackTriangular(dense)
}

// UnpackTriangular expands [D, K*(K+1)/2] packed factors into dense
// [K, K, D] lower-triangular matrices.
func UnpackTriangular[B tensor.Backend](packed *tensor.Tensor[float64, B], k int) *tensor.Tensor[float64, B] {
	return gp.UnpackTriangular(packed, k)
}

// TriangularDiagonal extracts the diagonals of packed factors,
// [D, K*(K+1)/2] -> [D, K].
func TriangularDiagonal[B tensor.Backend](packed *tensor.Tensor[float64, B], k int) *tensor.Tensor[float64, B] {
	return gp.TriangularDiagonal(packed, k)
}
