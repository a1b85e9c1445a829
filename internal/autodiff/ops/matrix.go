package ops

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/dual"
)

// TraceOp represents output = tr(M).
//
// Backward: ∂L/∂M = g * I. A non-square M has no trace; its contribution is
// NaN in every entry.
type TraceOp struct {
	m      *dual.MatVar
	output *dual.Var
}

// NewTraceOp creates a new TraceOp.
func NewTraceOp(m *dual.MatVar, output *dual.Var) *TraceOp {
	return &TraceOp{m: m, output: output}
}

// Kind returns KindTrace.
func (op *TraceOp) Kind() Kind { return KindTrace }

// Inputs returns [M].
func (op *TraceOp) Inputs() []dual.Node { return []dual.Node{op.m} }

// Output returns tr(M).
func (op *TraceOp) Output() *dual.Var { return op.output }

// Backward adds g on the diagonal.
func (op *TraceOp) Backward() {
	n, c := op.m.Dims()
	if n != c {
		op.m.AddAdjoint(nanDense(n, c))
		return
	}
	diag := make([]float64, n)
	g := op.output.Adjoint()
	for i := range diag {
		diag[i] = g
	}
	op.m.AddAdjoint(mat.NewDiagDense(n, diag))
}

// SumSquaresOp represents output = Σ M[i,j]².
//
// Backward: ∂L/∂M = 2 * g * M.
type SumSquaresOp struct {
	m      *dual.MatVar
	output *dual.Var
}

// NewSumSquaresOp creates a new SumSquaresOp.
func NewSumSquaresOp(m *dual.MatVar, output *dual.Var) *SumSquaresOp {
	return &SumSquaresOp{m: m, output: output}
}

// Kind returns KindSumSquares.
func (op *SumSquaresOp) Kind() Kind { return KindSumSquares }

// Inputs returns [M].
func (op *SumSquaresOp) Inputs() []dual.Node { return []dual.Node{op.m} }

// Output returns the sum of squares.
func (op *SumSquaresOp) Output() *dual.Var { return op.output }

// Backward computes 2 * g * M.
func (op *SumSquaresOp) Backward() {
	var grad mat.Dense
	grad.Scale(2*op.output.Adjoint(), op.m.Value())
	op.m.AddAdjoint(&grad)
}

// nanDense returns an r×c matrix filled with NaN.
func nanDense(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = math.NaN()
	}
	return mat.NewDense(r, c, data)
}
