// Package gradcheck validates recorded gradients against central finite
// differences.
//
// A forgotten or wrong backward closure does not raise an error anywhere: it
// silently produces a zero or wrong adjoint. Comparing the tape gradient
// with an independent numerical estimate is the only way to catch it.
package gradcheck

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/config"
)

// Settings controls the comparison.
type Settings struct {
	Step   float64 // finite-difference step
	RelTol float64 // relative tolerance
	AbsTol float64 // absolute tolerance for near-zero derivatives
}

// DefaultSettings returns a 1e-4 relative tolerance.
func DefaultSettings() Settings {
	return Settings{Step: 1e-6, RelTol: 1e-4, AbsTol: 1e-8}
}

// FromConfig converts the check section of the configuration.
func FromConfig(c config.CheckConfig) Settings {
	return Settings{Step: c.Step, RelTol: c.RelTol, AbsTol: c.AbsTol}
}

// Objective builds a scalar from leaves allocated on tape.
type Objective func(tape *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error)

// MatrixObjective builds a scalar from a matrix leaf allocated on tape.
type MatrixObjective func(tape *autodiff.Tape, m *autodiff.MatVar) (*autodiff.Var, error)

// Coord is the comparison for one input coordinate.
type Coord struct {
	Index    int
	Analytic float64
	Numeric  float64
	OK       bool
}

// RelErr returns |a - n| / max(|a|, |n|), or 0 when both are zero.
func (c Coord) RelErr() float64 {
	scale := math.Max(math.Abs(c.Analytic), math.Abs(c.Numeric))
	if scale == 0 {
		return 0
	}
	return math.Abs(c.Analytic-c.Numeric) / scale
}

// Report is the outcome of one check.
type Report struct {
	Name   string
	Value  float64
	Coords []Coord
}

// OK reports whether every coordinate agreed.
func (r *Report) OK() bool {
	for _, c := range r.Coords {
		if !c.OK {
			return false
		}
	}
	return true
}

// String renders one line per coordinate.
func (r *Report) String() string {
	var b strings.Builder
	status := "ok"
	if !r.OK() {
		status = "MISMATCH"
	}
	fmt.Fprintf(&b, "%s: value=%.12g %s\n", r.Name, r.Value, status)
	for _, c := range r.Coords {
		fmt.Fprintf(&b, "  [%d] analytic=%.12g numeric=%.12g rel_err=%.3g\n", c.Index, c.Analytic, c.Numeric, c.RelErr())
	}
	return b.String()
}

// Scalar compares the tape gradient of obj at x with finite differences.
func Scalar(name string, obj Objective, x []float64, s Settings) (*Report, error) {
	tape := autodiff.NewTape()
	tape.StartRecording()
	leaves := tape.Scalars(x...)
	out, err := obj(tape, leaves)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: forward", name)
	}
	if err := tape.Backward(out); err != nil {
		return nil, errors.Wrapf(err, "%s: backward", name)
	}
	analytic := autodiff.Gradient(leaves...)

	var evalErr error
	f := func(xs []float64) float64 {
		t := autodiff.NewTape()
		o, err := obj(t, t.Scalars(xs...))
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return math.NaN()
		}
		return o.Value()
	}
	numeric := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: s.Step})
	if evalErr != nil {
		return nil, errors.Wrapf(evalErr, "%s: finite differences", name)
	}

	return compare(name, out.Value(), analytic, numeric, s), nil
}

// Matrix compares the tape gradient of obj at m with finite differences
// over every entry, in row-major order.
func Matrix(name string, obj MatrixObjective, m mat.Matrix, s Settings) (*Report, error) {
	r, c := m.Dims()

	tape := autodiff.NewTape()
	tape.StartRecording()
	leaf := tape.Matrix(m)
	out, err := obj(tape, leaf)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: forward", name)
	}
	if err := tape.Backward(out); err != nil {
		return nil, errors.Wrapf(err, "%s: backward", name)
	}
	analytic := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			analytic = append(analytic, leaf.Adjoint().At(i, j))
		}
	}

	var evalErr error
	f := func(xs []float64) float64 {
		t := autodiff.NewTape()
		o, err := obj(t, t.Matrix(mat.NewDense(r, c, xs)))
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return math.NaN()
		}
		return o.Value()
	}
	x := mat.DenseCopyOf(m).RawMatrix().Data
	numeric := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: s.Step})
	if evalErr != nil {
		return nil, errors.Wrapf(evalErr, "%s: finite differences", name)
	}

	return compare(name, out.Value(), analytic, numeric, s), nil
}

func compare(name string, value float64, analytic, numeric []float64, s Settings) *Report {
	rep := &Report{Name: name, Value: value, Coords: make([]Coord, len(analytic))}
	for i := range analytic {
		a, n := analytic[i], numeric[i]
		rep.Coords[i] = Coord{
			Index:    i,
			Analytic: a,
			Numeric:  n,
			OK:       !math.IsNaN(a) && !math.IsNaN(n) && scalar.EqualWithinAbsOrRel(a, n, s.AbsTol, s.RelTol),
		}
	}
	return rep
}
