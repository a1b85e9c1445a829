// Package dual defines the dual numbers that take part in reverse-mode
// differentiation: a value fixed at creation paired with an adjoint that
// accumulates contributions during the backward sweep.
//
// Two shapes exist:
//   - Var: a scalar
//   - MatVar: a dense matrix backed by gonum
//
// Dual numbers are normally allocated by an autodiff.Tape, which owns them
// for the length of one gradient evaluation.
package dual

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Node is anything that can be an operand of a recorded operation.
type Node interface {
	// ID is unique within the tape that allocated the node (0 if untracked).
	ID() int
	// Dims returns (1, 1) for scalars.
	Dims() (r, c int)
	// Touched reports whether any adjoint contribution was added.
	Touched() bool
}

// Var is a scalar dual number.
type Var struct {
	id      int
	value   float64
	adj     float64
	touched bool
}

// NewVar creates an untracked scalar. Use Tape.Scalar for differentiable leaves.
func NewVar(id int, value float64) *Var {
	return &Var{id: id, value: value}
}

// ID returns the arena id.
func (v *Var) ID() int { return v.id }

// Dims returns (1, 1).
func (v *Var) Dims() (r, c int) { return 1, 1 }

// Value returns the primal value.
func (v *Var) Value() float64 { return v.value }

// Adjoint returns the accumulated adjoint.
func (v *Var) Adjoint() float64 { return v.adj }

// AddAdjoint accumulates d into the adjoint.
func (v *Var) AddAdjoint(d float64) {
	v.adj += d
	v.touched = true
}

// Touched reports whether AddAdjoint was called since the last ZeroAdjoint.
func (v *Var) Touched() bool { return v.touched }

// ZeroAdjoint resets the adjoint.
func (v *Var) ZeroAdjoint() {
	v.adj = 0
	v.touched = false
}

// String implements fmt.Stringer.
func (v *Var) String() string {
	return fmt.Sprintf("Var#%d(%g, adj=%g)", v.id, v.value, v.adj)
}

// MatVar is a matrix dual number.
// The value is owned by the MatVar and must not be mutated by callers.
type MatVar struct {
	id      int
	value   *mat.Dense
	adj     *mat.Dense
	touched bool
}

// NewMatVar creates an untracked matrix dual number holding a copy of m.
func NewMatVar(id int, m mat.Matrix) *MatVar {
	r, c := m.Dims()
	return &MatVar{
		id:    id,
		value: mat.DenseCopyOf(m),
		adj:   mat.NewDense(r, c, nil),
	}
}

// ID returns the arena id.
func (m *MatVar) ID() int { return m.id }

// Dims returns the matrix dimensions.
func (m *MatVar) Dims() (r, c int) { return m.value.Dims() }

// Value returns the primal value.
func (m *MatVar) Value() *mat.Dense { return m.value }

// Adjoint returns the accumulated adjoint matrix.
func (m *MatVar) Adjoint() *mat.Dense { return m.adj }

// AddAdjoint accumulates d into the adjoint. d must have the same dimensions.
func (m *MatVar) AddAdjoint(d mat.Matrix) {
	m.adj.Add(m.adj, d)
	m.touched = true
}

// Touched reports whether AddAdjoint was called since the last ZeroAdjoint.
func (m *MatVar) Touched() bool { return m.touched }

// ZeroAdjoint resets the adjoint.
func (m *MatVar) ZeroAdjoint() {
	m.adj.Zero()
	m.touched = false
}

// String implements fmt.Stringer.
func (m *MatVar) String() string {
	r, c := m.Dims()
	return fmt.Sprintf("MatVar#%d(%dx%d)", m.id, r, c)
}
