// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package extfn splices foreign numeric routines into a differentiation
// graph: the value comes from the host, the gradient rule is registered on
// the tape.
//
// Example:
//
//	import (
//	    "github.com/born-ml/extdiff/autodiff"
//	    "github.com/born-ml/extdiff/extfn"
//	    "github.com/born-ml/extdiff/host"
//	)
//
//	s := host.NewLocal(nil) // *host.Session on the in-process host
//	defer s.Close()
//
//	tape := autodiff.NewTape()
//	tape.StartRecording()
//	logP := tape.Scalar(-0.5)
//	q, err := extfn.QuantileLog(tape, s, extfn.StdNormal(), logP)
//	...
//	err = tape.Backward(q) // logP.Adjoint() = exp(logP - log φ(q))
package extfn

import (
	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/extfn"
	"github.com/born-ml/extdiff/internal/host"
)

// Dist is a location-scale family evaluated in the host.
type Dist = extfn.Dist

// Normal is N(Mu, Sigma²).
type Normal = extfn.Normal

// StudentT is Student's t with Nu degrees of freedom, shifted and scaled.
type StudentT = extfn.StudentT

// Routine describes a generic external scalar routine.
type Routine = extfn.Routine

// StdNormal returns N(0, 1).
func StdNormal() Normal { return extfn.StdNormal() }

// StdStudentT returns the standard t distribution with nu degrees of freedom.
func StdStudentT(nu float64) StudentT { return extfn.StdStudentT(nu) }

// QuantileLog returns the quantile of exp(logP) under d.
func QuantileLog(t *autodiff.Tape, s *host.Session, d Dist, logP *autodiff.Var) (*autodiff.Var, error) {
	return extfn.QuantileLog(t, s, d, logP)
}

// Quantile returns the quantile of p under d.
func Quantile(t *autodiff.Tape, s *host.Session, d Dist, p *autodiff.Var) (*autodiff.Var, error) {
	return extfn.Quantile(t, s, d, p)
}

// LogDeterminant returns log(det(m)).
func LogDeterminant(t *autodiff.Tape, s *host.Session, m *autodiff.MatVar) (*autodiff.Var, error) {
	return extfn.LogDeterminant(t, s, m)
}

// Call evaluates r on inputs.
func Call(t *autodiff.Tape, s *host.Session, r Routine, inputs ...*autodiff.Var) (*autodiff.Var, error) {
	return extfn.Call(t, s, r, inputs...)
}
