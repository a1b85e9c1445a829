// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation over
// scalar and matrix dual numbers.
//
// Dual numbers are allocated in a Tape's arena. Operations applied through
// the tape while it is recording register a backward closure; Backward runs
// those closures in reverse registration order, each exactly once.
//
// Example:
//
//	tape := autodiff.NewTape()
//	tape.StartRecording()
//
//	x := tape.Scalar(3)
//	y := tape.Mul(x, x) // y = x²
//
//	if err := tape.Backward(y); err != nil {
//	    return err
//	}
//	fmt.Println(x.Adjoint()) // 6
package autodiff

import (
	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/autodiff/ops"
)

// Tape records backward closures and owns the dual-number arena.
type Tape = autodiff.Tape

// Var is a scalar dual number.
type Var = autodiff.Var

// MatVar is a matrix dual number.
type MatVar = autodiff.MatVar

// Operation is a recorded backward closure.
type Operation = ops.Operation

// ErrAlreadySwept is returned by a second Backward without new recording.
var ErrAlreadySwept = autodiff.ErrAlreadySwept

// NewTape creates an empty tape. Recording is off until StartRecording.
func NewTape() *Tape {
	return autodiff.NewTape()
}

// Gradient returns the adjoints of xs in order.
func Gradient(xs ...*Var) []float64 {
	return autodiff.Gradient(xs...)
}
