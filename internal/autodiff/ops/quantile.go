package ops

import (
	"math"

	"github.com/born-ml/extdiff/internal/dual"
)

// QuantileOp represents output = F⁻¹(p) where the quantile function F⁻¹ was
// evaluated by an external routine.
//
// The input is either the probability p or, on the log scale, log(p).
// With f the density at the output:
//
//	p scale:   ∂L/∂p     = g / f(out)            = g * exp(-log f(out))
//	log scale: ∂L/∂log p = g * p / f(out)        = g * exp(log p - log f(out))
//
// The log-scale form is evaluated as a single exponential of a difference so
// that tiny probabilities and tiny densities do not underflow separately.
type QuantileOp struct {
	input      *dual.Var
	output     *dual.Var
	logDensity float64 // log f(out), captured at forward time
	logScale   bool
}

// NewQuantileOp creates a new QuantileOp. logDensity is the log density of the
// distribution at output.Value().
func NewQuantileOp(input, output *dual.Var, logDensity float64, logScale bool) *QuantileOp {
	return &QuantileOp{
		input:      input,
		output:     output,
		logDensity: logDensity,
		logScale:   logScale,
	}
}

// Kind returns KindQuantile.
func (op *QuantileOp) Kind() Kind { return KindQuantile }

// Inputs returns [p] or [log p].
func (op *QuantileOp) Inputs() []dual.Node { return []dual.Node{op.input} }

// Output returns the quantile.
func (op *QuantileOp) Output() *dual.Var { return op.output }

// LogScale reports whether the input is a log probability.
func (op *QuantileOp) LogScale() bool { return op.logScale }

// Partial returns ∂out/∂input.
func (op *QuantileOp) Partial() float64 {
	if op.logScale {
		return math.Exp(op.input.Value() - op.logDensity)
	}
	return math.Exp(-op.logDensity)
}

// Backward adds g * Partial() into the input adjoint.
func (op *QuantileOp) Backward() {
	op.input.AddAdjoint(op.output.Adjoint() * op.Partial())
}
