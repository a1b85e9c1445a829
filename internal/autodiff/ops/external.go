package ops

import "github.com/born-ml/extdiff/internal/dual"

// ExternalOp represents output = f(x₁, …, xₙ) for an external routine f whose
// partial derivatives ∂f/∂xᵢ were computed at forward time, either by a
// closed-form rule or by finite differences.
//
// Backward: ∂L/∂xᵢ = g * partials[i].
type ExternalOp struct {
	name     string
	inputs   []*dual.Var
	output   *dual.Var
	partials []float64
}

// NewExternalOp creates a new ExternalOp. len(partials) must equal len(inputs).
func NewExternalOp(name string, inputs []*dual.Var, output *dual.Var, partials []float64) *ExternalOp {
	if len(partials) != len(inputs) {
		panic("ExternalOp: partials and inputs length mismatch")
	}
	return &ExternalOp{name: name, inputs: inputs, output: output, partials: partials}
}

// Kind returns KindExternal.
func (op *ExternalOp) Kind() Kind { return KindExternal }

// Name returns the external routine name.
func (op *ExternalOp) Name() string { return op.name }

// Inputs returns the differentiable operands.
func (op *ExternalOp) Inputs() []dual.Node {
	nodes := make([]dual.Node, len(op.inputs))
	for i, x := range op.inputs {
		nodes[i] = x
	}
	return nodes
}

// Output returns f(x).
func (op *ExternalOp) Output() *dual.Var { return op.output }

// Partials returns the captured partial derivatives.
func (op *ExternalOp) Partials() []float64 { return op.partials }

// Backward adds g * ∂f/∂xᵢ into each input adjoint.
func (op *ExternalOp) Backward() {
	g := op.output.Adjoint()
	for i, x := range op.inputs {
		x.AddAdjoint(g * op.partials[i])
	}
}
