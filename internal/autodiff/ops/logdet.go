package ops

import (
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/dual"
)

// LogDetOp represents output = log(det(M)) with det evaluated externally.
//
// Backward (Jacobi's formula):
//
//	∂L/∂M = g * (M⁻¹)ᵀ
//
// The transposed inverse is captured at forward time. A nil inverse marks a
// matrix for which it could not be computed; the contribution is then NaN in
// every entry so the failure surfaces in the gradient instead of silently
// becoming zero.
type LogDetOp struct {
	m      *dual.MatVar
	output *dual.Var
	invT   *mat.Dense
}

// NewLogDetOp creates a new LogDetOp. invT is (M⁻¹)ᵀ or nil.
func NewLogDetOp(m *dual.MatVar, output *dual.Var, invT *mat.Dense) *LogDetOp {
	return &LogDetOp{m: m, output: output, invT: invT}
}

// Kind returns KindLogDet.
func (op *LogDetOp) Kind() Kind { return KindLogDet }

// Inputs returns [M].
func (op *LogDetOp) Inputs() []dual.Node { return []dual.Node{op.m} }

// Output returns log(det(M)).
func (op *LogDetOp) Output() *dual.Var { return op.output }

// InverseTranspose returns the captured (M⁻¹)ᵀ, or nil.
func (op *LogDetOp) InverseTranspose() *mat.Dense { return op.invT }

// Backward adds g * (M⁻¹)ᵀ into the matrix adjoint.
func (op *LogDetOp) Backward() {
	if op.invT == nil {
		op.m.AddAdjoint(nanDense(op.m.Dims()))
		return
	}
	var grad mat.Dense
	grad.Scale(op.output.Adjoint(), op.invT)
	op.m.AddAdjoint(&grad)
}
