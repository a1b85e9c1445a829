// Package extfn splices foreign numeric routines into a reverse-mode
// differentiation graph.
//
// Every adapter follows the same two steps:
//  1. Forward: strip the values from the dual-number inputs, evaluate the
//     routine in the foreign host through a scope that is released before
//     returning, and wrap the plain result in a new dual number.
//  2. Defer: record a closure on the tape that later adds the analytic (or
//     finite-difference) adjoint contribution into each input.
//
// Numeric domain errors never abort: an undefined routine yields a NaN value
// and a NaN contribution so that the caller can reject the point and move
// on. Only host transport failures are returned as errors.
package extfn

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/autodiff/ops"
	"github.com/born-ml/extdiff/internal/host"
)

// DefaultStep is the finite-difference step used when a Routine has no
// closed-form partials and no explicit Step.
const DefaultStep = 1e-6

// QuantileLog returns F⁻¹(exp(logP)) for the distribution d.
//
// The recorded closure adds
//
//	g * exp(logP - log f(value))
//
// into logP's adjoint, applying the log-transform chain rule in one
// exponential.
func QuantileLog(t *autodiff.Tape, s *host.Session, d Dist, logP *autodiff.Var) (*autodiff.Var, error) {
	return quantile(t, s, d, logP, true)
}

// Quantile returns F⁻¹(p) for the distribution d. The recorded closure adds
// g / f(value) into p's adjoint.
func Quantile(t *autodiff.Tape, s *host.Session, d Dist, p *autodiff.Var) (*autodiff.Var, error) {
	return quantile(t, s, d, p, false)
}

func quantile(t *autodiff.Tape, s *host.Session, d Dist, in *autodiff.Var, logScale bool) (*autodiff.Var, error) {
	mu, sigma := d.Location()
	z, logDens := math.NaN(), math.NaN()

	if sigma > 0 {
		err := s.Do(func(sc *host.Scope) error {
			p, err := sc.Bind(in.Value())
			if err != nil {
				return err
			}
			qc, err := d.quantileCall(sc, p, logScale)
			if err != nil {
				return err
			}
			if z, err = sc.CallScalar(qc); err != nil {
				return err
			}
			zName, err := sc.Bind(z)
			if err != nil {
				return err
			}
			dc, err := d.logDensityCall(sc, zName)
			if err != nil {
				return err
			}
			logDens, err = sc.CallScalar(dc)
			return err
		})
		if err != nil {
			if !host.IsEvalError(err) {
				return nil, errors.Wrapf(err, "quantile of %v", d)
			}
			z, logDens = math.NaN(), math.NaN()
		}
	}

	// Location-scale: x = mu + sigma*z, log f(x) = log f₀(z) - log sigma.
	out := t.Result(mu + sigma*z)
	t.Record(ops.NewQuantileOp(in, out, logDens-math.Log(sigma), logScale))
	return out, nil
}

// LogDeterminant returns log(det(M)).
//
// The recorded closure adds g * (M⁻¹)ᵀ into M's adjoint. Singular or
// non-square matrices and matrices with a negative determinant give a NaN
// value and a NaN gradient.
func LogDeterminant(t *autodiff.Tape, s *host.Session, m *autodiff.MatVar) (*autodiff.Var, error) {
	det := math.NaN()
	var inv *mat.Dense

	err := s.Do(func(sc *host.Scope) error {
		name, err := sc.Bind(m.Value())
		if err != nil {
			return err
		}
		if det, err = sc.CallScalar(host.Call{Routine: "det", Args: []string{name}}); err != nil {
			return err
		}
		v, err := sc.Call(host.Call{Routine: "solve", Args: []string{name}})
		if err != nil {
			return err
		}
		inv, err = host.Matrix(v)
		return err
	})
	if err != nil {
		if !host.IsEvalError(err) {
			return nil, errors.Wrap(err, "log determinant")
		}
		det, inv = math.NaN(), nil
	}

	value := math.Log(det)
	var invT *mat.Dense
	if inv != nil && !math.IsNaN(value) {
		invT = mat.DenseCopyOf(inv.T())
	}

	out := t.Result(value)
	t.Record(ops.NewLogDetOp(m, out, invT))
	return out, nil
}

// Routine describes an external scalar routine f(x₁, …, xₙ, aux…).
type Routine struct {
	// Name is the host routine.
	Name string

	// Aux are non-differentiable trailing arguments.
	Aux []float64

	// Flags are passed to the host unchanged.
	Flags []host.Flag

	// Partials returns ∂f/∂xᵢ given the inputs and f's value. When nil the
	// partials are estimated by central finite differences in the host.
	Partials func(x []float64, value float64) []float64

	// Step is the finite-difference step (DefaultStep when zero).
	Step float64
}

// Call evaluates r on the values of inputs and records an ExternalOp.
func Call(t *autodiff.Tape, s *host.Session, r Routine, inputs ...*autodiff.Var) (*autodiff.Var, error) {
	x := make([]float64, len(inputs))
	for i, in := range inputs {
		x[i] = in.Value()
	}

	value, err := evalRoutine(s, r, x)
	if err != nil {
		return nil, err
	}

	var partials []float64
	switch {
	case math.IsNaN(value):
		partials = nanSlice(len(x))
	case r.Partials != nil:
		partials = r.Partials(x, value)
		if len(partials) != len(x) {
			return nil, errors.Errorf("routine %s: %d partials for %d inputs", r.Name, len(partials), len(x))
		}
	default:
		if partials, err = finiteDifferences(s, r, x); err != nil {
			return nil, err
		}
	}

	out := t.Result(value)
	t.Record(ops.NewExternalOp(r.Name, append([]*autodiff.Var(nil), inputs...), out, partials))
	return out, nil
}

// evalRoutine runs r once in its own scope. Domain errors become NaN.
func evalRoutine(s *host.Session, r Routine, x []float64) (float64, error) {
	var value float64
	err := s.Do(func(sc *host.Scope) error {
		args := make([]string, 0, len(x)+len(r.Aux))
		for _, v := range append(append([]float64(nil), x...), r.Aux...) {
			name, err := sc.Bind(v)
			if err != nil {
				return err
			}
			args = append(args, name)
		}
		var err error
		value, err = sc.CallScalar(host.Call{Routine: r.Name, Args: args, Flags: r.Flags})
		return err
	})
	if err != nil {
		if host.IsEvalError(err) {
			return math.NaN(), nil
		}
		return 0, errors.Wrapf(err, "routine %s", r.Name)
	}
	return value, nil
}

// finiteDifferences estimates the gradient with gonum's central formula.
// Evaluations run sequentially because the session is single-threaded.
func finiteDifferences(s *host.Session, r Routine, x []float64) ([]float64, error) {
	step := r.Step
	if step == 0 {
		step = DefaultStep
	}
	var firstErr error
	f := func(x []float64) float64 {
		v, err := evalRoutine(s, r, x)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}
	grad := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: step})
	if firstErr != nil {
		return nil, firstErr
	}
	return grad, nil
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
