package ops

import "github.com/born-ml/extdiff/internal/dual"

// AddOp represents output = a + b.
//
// Backward: ∂L/∂a = ∂L/∂out, ∂L/∂b = ∂L/∂out.
type AddOp struct {
	a, b   *dual.Var
	output *dual.Var
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *dual.Var) *AddOp {
	return &AddOp{a: a, b: b, output: output}
}

// Kind returns KindAdd.
func (op *AddOp) Kind() Kind { return KindAdd }

// Inputs returns [a, b].
func (op *AddOp) Inputs() []dual.Node { return []dual.Node{op.a, op.b} }

// Output returns a + b.
func (op *AddOp) Output() *dual.Var { return op.output }

// Backward adds the output adjoint to both inputs.
func (op *AddOp) Backward() {
	g := op.output.Adjoint()
	op.a.AddAdjoint(g)
	op.b.AddAdjoint(g)
}

// SubOp represents output = a - b.
type SubOp struct {
	a, b   *dual.Var
	output *dual.Var
}

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *dual.Var) *SubOp {
	return &SubOp{a: a, b: b, output: output}
}

// Kind returns KindSub.
func (op *SubOp) Kind() Kind { return KindSub }

// Inputs returns [a, b].
func (op *SubOp) Inputs() []dual.Node { return []dual.Node{op.a, op.b} }

// Output returns a - b.
func (op *SubOp) Output() *dual.Var { return op.output }

// Backward computes ∂L/∂a = g, ∂L/∂b = -g.
func (op *SubOp) Backward() {
	g := op.output.Adjoint()
	op.a.AddAdjoint(g)
	op.b.AddAdjoint(-g)
}

// MulOp represents output = a * b.
//
// Backward: ∂L/∂a = g * b, ∂L/∂b = g * a.
type MulOp struct {
	a, b   *dual.Var
	output *dual.Var
}

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *dual.Var) *MulOp {
	return &MulOp{a: a, b: b, output: output}
}

// Kind returns KindMul.
func (op *MulOp) Kind() Kind { return KindMul }

// Inputs returns [a, b].
func (op *MulOp) Inputs() []dual.Node { return []dual.Node{op.a, op.b} }

// Output returns a * b.
func (op *MulOp) Output() *dual.Var { return op.output }

// Backward applies the product rule.
func (op *MulOp) Backward() {
	g := op.output.Adjoint()
	op.a.AddAdjoint(g * op.b.Value())
	op.b.AddAdjoint(g * op.a.Value())
}

// ScaleOp represents output = k * x for a constant k.
type ScaleOp struct {
	x      *dual.Var
	k      float64
	output *dual.Var
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(x *dual.Var, k float64, output *dual.Var) *ScaleOp {
	return &ScaleOp{x: x, k: k, output: output}
}

// Kind returns KindScale.
func (op *ScaleOp) Kind() Kind { return KindScale }

// Inputs returns [x].
func (op *ScaleOp) Inputs() []dual.Node { return []dual.Node{op.x} }

// Output returns k * x.
func (op *ScaleOp) Output() *dual.Var { return op.output }

// Backward computes ∂L/∂x = g * k.
func (op *ScaleOp) Backward() {
	op.x.AddAdjoint(op.output.Adjoint() * op.k)
}

// SumOp represents output = Σ xs.
type SumOp struct {
	xs     []*dual.Var
	output *dual.Var
}

// NewSumOp creates a new SumOp.
func NewSumOp(xs []*dual.Var, output *dual.Var) *SumOp {
	return &SumOp{xs: xs, output: output}
}

// Kind returns KindSum.
func (op *SumOp) Kind() Kind { return KindSum }

// Inputs returns the summands.
func (op *SumOp) Inputs() []dual.Node {
	nodes := make([]dual.Node, len(op.xs))
	for i, x := range op.xs {
		nodes[i] = x
	}
	return nodes
}

// Output returns the sum.
func (op *SumOp) Output() *dual.Var { return op.output }

// Backward adds the output adjoint to every summand.
func (op *SumOp) Backward() {
	g := op.output.Adjoint()
	for _, x := range op.xs {
		x.AddAdjoint(g)
	}
}
