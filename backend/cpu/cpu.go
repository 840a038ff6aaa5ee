// Copyright 2026 The trackformer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the public CPU backend.
package cpu

import (
	internalcpu "github.com/ftag-ml/trackformer/internal/backend/cpu"
	"github.com/ftag-ml/trackformer/tensor"
)

// Backend is the CPU backend implementation. Matrix multiplication rides on
// gonum's BLAS; batched kernels fan out across cores.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}
