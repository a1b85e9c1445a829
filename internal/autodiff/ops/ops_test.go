package ops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/dual"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "quantile", KindQuantile.String())
	assert.Equal(t, "log_determinant", KindLogDet.String())
	assert.Equal(t, "unknown", Kind(-1).String())
	assert.Equal(t, "unknown", Kind(100).String())
}

func TestQuantileOp_LogScale(t *testing.T) {
	in := dual.NewVar(1, -0.5)
	out := dual.NewVar(2, 0.3)
	logDens := -1.2

	op := NewQuantileOp(in, out, logDens, true)
	out.AddAdjoint(2)
	op.Backward()

	assert.InDelta(t, 2*math.Exp(-0.5+1.2), in.Adjoint(), 1e-15)
	assert.True(t, op.LogScale())
	assert.Equal(t, []dual.Node{in}, op.Inputs())
}

func TestQuantileOp_ProbabilityScale(t *testing.T) {
	in := dual.NewVar(1, 0.7)
	out := dual.NewVar(2, 0.5)

	op := NewQuantileOp(in, out, math.Log(0.25), false)
	out.AddAdjoint(1)
	op.Backward()

	assert.InDelta(t, 4.0, in.Adjoint(), 1e-12, "dq/dp = 1/f(q)")
}

func TestLogDetOp_Backward(t *testing.T) {
	m := dual.NewMatVar(1, mat.NewDense(2, 2, []float64{2, 0, 0, 3}))
	out := dual.NewVar(2, math.Log(6))
	invT := mat.NewDense(2, 2, []float64{0.5, 0, 0, 1.0 / 3})

	op := NewLogDetOp(m, out, invT)
	out.AddAdjoint(3)
	op.Backward()

	want := mat.NewDense(2, 2, []float64{1.5, 0, 0, 1})
	assert.True(t, mat.EqualApprox(want, m.Adjoint(), 1e-12))
}

func TestLogDetOp_NilInverseGivesNaN(t *testing.T) {
	m := dual.NewMatVar(1, mat.NewDense(2, 2, []float64{1, 1, 1, 1}))
	out := dual.NewVar(2, math.Inf(-1))

	op := NewLogDetOp(m, out, nil)
	out.AddAdjoint(1)
	op.Backward()

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.True(t, math.IsNaN(m.Adjoint().At(i, j)))
		}
	}
	assert.True(t, m.Touched())
}

func TestExternalOp_Backward(t *testing.T) {
	a := dual.NewVar(1, 1)
	b := dual.NewVar(2, 2)
	out := dual.NewVar(3, 5)

	op := NewExternalOp("f", []*dual.Var{a, b}, out, []float64{2, -1})
	out.AddAdjoint(0.5)
	op.Backward()

	assert.Equal(t, 1.0, a.Adjoint())
	assert.Equal(t, -0.5, b.Adjoint())
	assert.Equal(t, "f", op.Name())
	assert.Equal(t, KindExternal, op.Kind())
}

func TestExternalOp_LengthMismatchPanics(t *testing.T) {
	require.Panics(t, func() {
		NewExternalOp("f", []*dual.Var{dual.NewVar(1, 0)}, dual.NewVar(2, 0), nil)
	})
}

func TestTraceOp_NonSquareIsNaN(t *testing.T) {
	m := dual.NewMatVar(1, mat.NewDense(2, 3, nil))
	out := dual.NewVar(2, math.NaN())

	op := NewTraceOp(m, out)
	out.AddAdjoint(1)
	assert.NotPanics(t, op.Backward)

	r, c := m.Adjoint().Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.True(t, math.IsNaN(m.Adjoint().At(i, j)))
		}
	}
}

func TestTraceOp_Backward(t *testing.T) {
	m := dual.NewMatVar(1, mat.NewDense(3, 3, nil))
	out := dual.NewVar(2, 0)

	op := NewTraceOp(m, out)
	out.AddAdjoint(2)
	op.Backward()

	want := mat.NewDense(3, 3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2})
	assert.True(t, mat.Equal(want, m.Adjoint()))
}
