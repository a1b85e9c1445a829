// Package autodiff implements the reverse-mode differentiation engine that
// external routines are spliced into.
//
// Architecture:
//   - Tape: arena for dual numbers plus the list of pending closures
//   - ops.Operation: tagged closure, one per recorded forward step
//   - Backward: runs closures last-in-first-out, each exactly once
//
// Usage:
//
//	tape := autodiff.NewTape()
//	tape.StartRecording()
//	x := tape.Scalar(3)
//	y := tape.Add(tape.Square(x), tape.Scale(x, 2)) // y = x² + 2x
//	if err := tape.Backward(y); err != nil { ... }
//	fmt.Println(x.Adjoint()) // dy/dx = 2x + 2 = 8
package autodiff

import (
	"math"

	"github.com/born-ml/extdiff/internal/autodiff/ops"
	"github.com/born-ml/extdiff/internal/dual"
)

// Var is a scalar dual number.
type Var = dual.Var

// MatVar is a matrix dual number.
type MatVar = dual.MatVar

// Add returns a + b and records the operation.
func (t *Tape) Add(a, b *Var) *Var {
	out := t.Result(a.Value() + b.Value())
	t.Record(ops.NewAddOp(a, b, out))
	return out
}

// Sub returns a - b and records the operation.
func (t *Tape) Sub(a, b *Var) *Var {
	out := t.Result(a.Value() - b.Value())
	t.Record(ops.NewSubOp(a, b, out))
	return out
}

// Mul returns a * b and records the operation.
func (t *Tape) Mul(a, b *Var) *Var {
	out := t.Result(a.Value() * b.Value())
	t.Record(ops.NewMulOp(a, b, out))
	return out
}

// Scale returns k * x for a constant k.
func (t *Tape) Scale(x *Var, k float64) *Var {
	out := t.Result(k * x.Value())
	t.Record(ops.NewScaleOp(x, k, out))
	return out
}

// Exp returns exp(x).
func (t *Tape) Exp(x *Var) *Var {
	out := t.Result(math.Exp(x.Value()))
	t.Record(ops.NewExpOp(x, out))
	return out
}

// Log returns log(x).
//
// Note: x must be positive. A non-positive input gives NaN or -Inf, which
// propagates rather than panicking.
func (t *Tape) Log(x *Var) *Var {
	out := t.Result(math.Log(x.Value()))
	t.Record(ops.NewLogOp(x, out))
	return out
}

// Square returns x².
func (t *Tape) Square(x *Var) *Var {
	out := t.Result(x.Value() * x.Value())
	t.Record(ops.NewSquareOp(x, out))
	return out
}

// Sum returns the sum of xs.
func (t *Tape) Sum(xs ...*Var) *Var {
	s := 0.0
	for _, x := range xs {
		s += x.Value()
	}
	out := t.Result(s)
	t.Record(ops.NewSumOp(append([]*Var(nil), xs...), out))
	return out
}

// Trace returns tr(M). A non-square M gives NaN and a NaN gradient.
func (t *Tape) Trace(m *MatVar) *Var {
	n, c := m.Dims()
	s := 0.0
	if n != c {
		s = math.NaN()
	}
	for i := 0; i < n && i < c; i++ {
		s += m.Value().At(i, i)
	}
	out := t.Result(s)
	t.Record(ops.NewTraceOp(m, out))
	return out
}

// SumSquares returns Σ M[i,j]².
func (t *Tape) SumSquares(m *MatVar) *Var {
	r, c := m.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.Value().At(i, j)
			s += v * v
		}
	}
	out := t.Result(s)
	t.Record(ops.NewSumSquaresOp(m, out))
	return out
}
