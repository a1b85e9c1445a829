package ops

import "github.com/born-ml/extdiff/internal/dual"

// ExpOp represents output = exp(x).
//
// Backward: ∂L/∂x = g * exp(x) = g * output.
type ExpOp struct {
	x      *dual.Var
	output *dual.Var
}

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *dual.Var) *ExpOp {
	return &ExpOp{x: x, output: output}
}

// Kind returns KindExp.
func (op *ExpOp) Kind() Kind { return KindExp }

// Inputs returns [x].
func (op *ExpOp) Inputs() []dual.Node { return []dual.Node{op.x} }

// Output returns exp(x).
func (op *ExpOp) Output() *dual.Var { return op.output }

// Backward reuses the forward value as the local derivative.
func (op *ExpOp) Backward() {
	op.x.AddAdjoint(op.output.Adjoint() * op.output.Value())
}

// LogOp represents output = log(x).
//
// Backward: ∂L/∂x = g / x.
// x must be positive; a non-positive input yields a NaN or infinite adjoint.
type LogOp struct {
	x      *dual.Var
	output *dual.Var
}

// NewLogOp creates a new LogOp.
func NewLogOp(x, output *dual.Var) *LogOp {
	return &LogOp{x: x, output: output}
}

// Kind returns KindLog.
func (op *LogOp) Kind() Kind { return KindLog }

// Inputs returns [x].
func (op *LogOp) Inputs() []dual.Node { return []dual.Node{op.x} }

// Output returns log(x).
func (op *LogOp) Output() *dual.Var { return op.output }

// Backward computes g / x.
func (op *LogOp) Backward() {
	op.x.AddAdjoint(op.output.Adjoint() / op.x.Value())
}

// SquareOp represents output = x².
type SquareOp struct {
	x      *dual.Var
	output *dual.Var
}

// NewSquareOp creates a new SquareOp.
func NewSquareOp(x, output *dual.Var) *SquareOp {
	return &SquareOp{x: x, output: output}
}

// Kind returns KindSquare.
func (op *SquareOp) Kind() Kind { return KindSquare }

// Inputs returns [x].
func (op *SquareOp) Inputs() []dual.Node { return []dual.Node{op.x} }

// Output returns x².
func (op *SquareOp) Output() *dual.Var { return op.output }

// Backward computes 2 * g * x.
func (op *SquareOp) Backward() {
	op.x.AddAdjoint(2 * op.output.Adjoint() * op.x.Value())
}
