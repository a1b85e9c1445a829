// Package ops defines the backward closures recorded on a gradient tape.
//
// Each closure is an explicit value: a Kind tag plus the operands captured at
// forward time. Backward reads the output adjoint and adds the contribution
// of the chain rule into each input adjoint. The tape invokes every
// operation exactly once per sweep, last recorded first.
//
// Supported operations:
//   - AddOp, SubOp, MulOp, ScaleOp: arithmetic on scalars
//   - ExpOp, LogOp, SquareOp: unary scalar functions
//   - SumOp: n-ary sum, used to build objectives
//   - TraceOp, SumSquaresOp: matrix to scalar reductions
//   - QuantileOp: quantile transform evaluated by an external routine
//   - LogDetOp: log-determinant evaluated by an external routine
//   - ExternalOp: any external scalar routine with captured partials
package ops

import "github.com/born-ml/extdiff/internal/dual"

// Kind tags an operation.
type Kind int

// Operation kinds.
const (
	KindAdd Kind = iota
	KindSub
	KindMul
	KindScale
	KindExp
	KindLog
	KindSquare
	KindSum
	KindTrace
	KindSumSquares
	KindQuantile
	KindLogDet
	KindExternal
)

var kindNames = [...]string{
	KindAdd:        "add",
	KindSub:        "sub",
	KindMul:        "mul",
	KindScale:      "scale",
	KindExp:        "exp",
	KindLog:        "log",
	KindSquare:     "square",
	KindSum:        "sum",
	KindTrace:      "trace",
	KindSumSquares: "sum_squares",
	KindQuantile:   "quantile",
	KindLogDet:     "log_determinant",
	KindExternal:   "external",
}

// String returns the kind name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Operation is a pending gradient closure.
type Operation interface {
	// Kind returns the operation tag.
	Kind() Kind

	// Inputs returns the captured operands whose adjoints Backward updates.
	Inputs() []dual.Node

	// Output returns the value produced by the forward step.
	Output() *dual.Var

	// Backward propagates Output().Adjoint() onto the inputs.
	//
	// Example for AddOp:
	//   output adjoint: g
	//   a.adj += g, b.adj += g
	Backward()
}
