package gradcheck

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/autodiff/ops"
	"github.com/born-ml/extdiff/internal/config"
	"github.com/born-ml/extdiff/internal/dual"
	"github.com/born-ml/extdiff/internal/extfn"
	"github.com/born-ml/extdiff/internal/host"
)

func TestScalar_Polynomial(t *testing.T) {
	// f(x, y) = x²y + exp(y)
	obj := func(tape *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
		return tape.Add(tape.Mul(tape.Square(x[0]), x[1]), tape.Exp(x[1])), nil
	}
	rep, err := Scalar("poly", obj, []float64{1.5, -0.3}, DefaultSettings())
	require.NoError(t, err)

	assert.True(t, rep.OK(), rep.String())
	require.Len(t, rep.Coords, 2)
	assert.InDelta(t, 2*1.5*-0.3, rep.Coords[0].Analytic, 1e-12)
	assert.InDelta(t, 1.5*1.5+math.Exp(-0.3), rep.Coords[1].Analytic, 1e-12)
}

// brokenMul computes a*b but records the closure for a only, the silent
// bug the check exists to catch.
type brokenMul struct {
	a, b, out *autodiff.Var
}

func (op *brokenMul) Kind() ops.Kind        { return ops.KindMul }
func (op *brokenMul) Output() *autodiff.Var { return op.out }
func (op *brokenMul) Inputs() []dual.Node   { return []dual.Node{op.a, op.b} }
func (op *brokenMul) Backward()             { op.a.AddAdjoint(op.out.Adjoint() * op.b.Value()) }

func TestScalar_DetectsMissingClosure(t *testing.T) {
	obj := func(tape *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
		out := tape.Result(x[0].Value() * x[1].Value())
		tape.Record(&brokenMul{a: x[0], b: x[1], out: out})
		return out, nil
	}
	rep, err := Scalar("broken", obj, []float64{2, 3}, DefaultSettings())
	require.NoError(t, err)

	assert.False(t, rep.OK())
	assert.True(t, rep.Coords[0].OK)
	assert.False(t, rep.Coords[1].OK, "b received no adjoint")
	assert.Contains(t, rep.String(), "MISMATCH")
}

func TestScalar_QuantileAdapter(t *testing.T) {
	s := host.NewSession(host.NewLocal(), nil)
	defer s.Close()

	for _, d := range []extfn.Dist{extfn.StdNormal(), extfn.StdStudentT(3)} {
		obj := func(tape *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
			return extfn.QuantileLog(tape, s, d, x[0])
		}
		for _, lp := range []float64{-2, -0.5, -0.05} {
			rep, err := Scalar(d.String(), obj, []float64{lp}, DefaultSettings())
			require.NoError(t, err)
			assert.True(t, rep.OK(), rep.String())
		}
	}
}

func TestMatrix_LogDeterminant(t *testing.T) {
	s := host.NewSession(host.NewLocal(), nil)
	defer s.Close()

	obj := func(tape *autodiff.Tape, m *autodiff.MatVar) (*autodiff.Var, error) {
		return extfn.LogDeterminant(tape, s, m)
	}
	a := mat.NewDense(3, 3, []float64{
		3, 0.4, 1,
		0.2, 2, 0.1,
		0.7, 0.3, 4,
	})
	rep, err := Matrix("log_determinant", obj, a, DefaultSettings())
	require.NoError(t, err)
	assert.True(t, rep.OK(), rep.String())
	assert.Len(t, rep.Coords, 9)

	want, _ := mat.LogDet(a)
	assert.InDelta(t, want, rep.Value, 1e-12)
}

func TestScalar_NaNIsMismatch(t *testing.T) {
	obj := func(tape *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
		return tape.Log(x[0]), nil
	}
	rep, err := Scalar("log", obj, []float64{-1}, DefaultSettings())
	require.NoError(t, err)
	assert.False(t, rep.OK())
}

func TestFromConfig(t *testing.T) {
	s := FromConfig(config.Default().Check)
	assert.Equal(t, DefaultSettings(), s)
}

func TestCoord_RelErr(t *testing.T) {
	assert.Equal(t, 0.0, Coord{}.RelErr())
	assert.InDelta(t, 0.5, Coord{Analytic: 1, Numeric: 2}.RelErr(), 1e-15)
	assert.True(t, strings.HasPrefix((&Report{Name: "x"}).String(), "x: "))
}
