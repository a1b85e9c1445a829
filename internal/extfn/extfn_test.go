package extfn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/autodiff/ops"
	"github.com/born-ml/extdiff/internal/host"
)

func newSession(t *testing.T) *host.Session {
	t.Helper()
	s := host.NewSession(host.NewLocal(), nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTape() *autodiff.Tape {
	tape := autodiff.NewTape()
	tape.StartRecording()
	return tape
}

// assertNoLeak runs fn and checks that the session's live names are unchanged.
func assertNoLeak(t *testing.T, s *host.Session, fn func()) {
	t.Helper()
	before, err := s.Names()
	require.NoError(t, err)
	fn()
	after, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, before, after, "temporaries leaked into the session")
}

func TestQuantileLog_StandardNormal(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	logP := tape.Scalar(-0.5)
	var q *autodiff.Var
	assertNoLeak(t, s, func() {
		var err error
		q, err = QuantileLog(tape, s, StdNormal(), logP)
		require.NoError(t, err)
	})

	want := distuv.UnitNormal.Quantile(math.Exp(-0.5))
	assert.InDelta(t, want, q.Value(), 1e-12)
	assert.Equal(t, 0.0, q.Adjoint(), "output adjoint starts at zero")
	require.Equal(t, 1, tape.NumOps())
	assert.Equal(t, ops.KindQuantile, tape.Operations()[0].Kind())

	require.NoError(t, tape.Backward(q))
	wantGrad := math.Exp(-0.5 - distuv.UnitNormal.LogProb(q.Value()))
	assert.InDelta(t, wantGrad, logP.Adjoint(), 1e-12)
	assert.Empty(t, tape.Orphans())
}

func TestQuantileLog_MatchesFiniteDifference(t *testing.T) {
	s := newSession(t)
	dists := []Dist{
		StdNormal(),
		Normal{Mu: 1.5, Sigma: 0.3},
		StdStudentT(4),
		StudentT{Nu: 2.5, Mu: -1, Sigma: 2},
	}
	for _, d := range dists {
		for _, lp := range []float64{-3, -0.9, -0.1} {
			tape := newTape()
			x := tape.Scalar(lp)
			q, err := QuantileLog(tape, s, d, x)
			require.NoError(t, err)
			require.NoError(t, tape.Backward(q))

			h := 1e-6
			up, err := QuantileLog(autodiff.NewTape(), s, d, autodiff.NewTape().Scalar(lp+h))
			require.NoError(t, err)
			down, err := QuantileLog(autodiff.NewTape(), s, d, autodiff.NewTape().Scalar(lp-h))
			require.NoError(t, err)
			numeric := (up.Value() - down.Value()) / (2 * h)

			assert.InEpsilon(t, numeric, x.Adjoint(), 1e-4, "%v at log p = %g", d, lp)
		}
	}
}

func TestQuantile_ProbabilityScale(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	p := tape.Scalar(0.9)
	q, err := Quantile(tape, s, Normal{Mu: 2, Sigma: 3}, p)
	require.NoError(t, err)

	d := distuv.Normal{Mu: 2, Sigma: 3}
	assert.InDelta(t, d.Quantile(0.9), q.Value(), 1e-12)

	require.NoError(t, tape.Backward(q))
	assert.InDelta(t, 1/d.Prob(q.Value()), p.Adjoint(), 1e-9)
}

func TestQuantileLog_DomainErrorsAreNaN(t *testing.T) {
	s := newSession(t)

	tests := []struct {
		name string
		dist Dist
		lp   float64
	}{
		{"probability above one", StdNormal(), 0.5},
		{"nan input", StdNormal(), math.NaN()},
		{"non-positive dof", StdStudentT(0), -1},
		{"negative scale", Normal{Mu: 0, Sigma: -1}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tape := newTape()
			x := tape.Scalar(tt.lp)
			var q *autodiff.Var
			assertNoLeak(t, s, func() {
				var err error
				q, err = QuantileLog(tape, s, tt.dist, x)
				require.NoError(t, err, "domain errors must not abort the forward pass")
			})
			assert.True(t, math.IsNaN(q.Value()))

			require.NoError(t, tape.Backward(q))
			assert.True(t, math.IsNaN(x.Adjoint()), "gradient must not silently be zero")
		})
	}
}

func TestQuantileLog_Idempotent(t *testing.T) {
	s := newSession(t)

	first, err := QuantileLog(newTape(), s, StdStudentT(3), newTape().Scalar(-0.7))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		q, err := QuantileLog(newTape(), s, StdStudentT(3), newTape().Scalar(-0.7))
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(first.Value()), math.Float64bits(q.Value()))
	}
}

func TestLogDeterminant_Diagonal(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	m := tape.Matrix(mat.NewDense(2, 2, []float64{2, 0, 0, 3}))
	var ld *autodiff.Var
	assertNoLeak(t, s, func() {
		var err error
		ld, err = LogDeterminant(tape, s, m)
		require.NoError(t, err)
	})

	assert.InDelta(t, math.Log(6), ld.Value(), 1e-12)
	require.NoError(t, tape.Backward(ld))

	want := mat.NewDense(2, 2, []float64{0.5, 0, 0, 1.0 / 3})
	assert.True(t, mat.EqualApprox(want, m.Adjoint(), 1e-12), "got %v", mat.Formatted(m.Adjoint()))
}

func TestLogDeterminant_MatchesGonum(t *testing.T) {
	s := newSession(t)
	a := mat.NewDense(3, 3, []float64{
		4, 1, 0.5,
		1, 3, 0.2,
		0.5, 0.2, 2,
	})

	tape := newTape()
	m := tape.Matrix(a)
	ld, err := LogDeterminant(tape, s, m)
	require.NoError(t, err)

	want, sign := mat.LogDet(a)
	require.Equal(t, 1.0, sign)
	assert.InDelta(t, want, ld.Value(), 1e-12)

	// Weighted objective so that the output adjoint is not 1.
	obj := tape.Scale(ld, 2.5)
	require.NoError(t, tape.Backward(obj))

	var inv mat.Dense
	require.NoError(t, inv.Inverse(a))
	var wantGrad mat.Dense
	wantGrad.Scale(2.5, inv.T())
	assert.True(t, mat.EqualApprox(&wantGrad, m.Adjoint(), 1e-12))
}

func TestLogDeterminant_Asymmetric(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	m := tape.Matrix(mat.NewDense(2, 2, []float64{2, 1, 0, 3}))
	ld, err := LogDeterminant(tape, s, m)
	require.NoError(t, err)
	require.NoError(t, tape.Backward(ld))

	// (M⁻¹)ᵀ, not M⁻¹
	want := mat.NewDense(2, 2, []float64{0.5, 0, -1.0 / 6, 1.0 / 3})
	assert.True(t, mat.EqualApprox(want, m.Adjoint(), 1e-12), "got %v", mat.Formatted(m.Adjoint()))
}

func TestLogDeterminant_DomainErrors(t *testing.T) {
	s := newSession(t)

	tests := []struct {
		name string
		m    *mat.Dense
	}{
		{"singular", mat.NewDense(2, 2, []float64{1, 2, 2, 4})},
		{"negative determinant", mat.NewDense(2, 2, []float64{0, 1, 1, 0})},
		{"non-square", mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tape := newTape()
			m := tape.Matrix(tt.m)
			var ld *autodiff.Var
			assertNoLeak(t, s, func() {
				var err error
				ld, err = LogDeterminant(tape, s, m)
				require.NoError(t, err)
			})
			assert.True(t, math.IsNaN(ld.Value()), "value = %g", ld.Value())

			require.NoError(t, tape.Backward(ld))
			assert.True(t, math.IsNaN(m.Adjoint().At(0, 0)))
		})
	}
}

func TestCall_AnalyticPartials(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	x := tape.Scalar(0.4)
	// pnorm(x) with d/dx = dnorm(x)
	r := Routine{
		Name: "pnorm",
		Partials: func(x []float64, _ float64) []float64 {
			return []float64{distuv.UnitNormal.Prob(x[0])}
		},
	}
	y, err := Call(tape, s, r, x)
	require.NoError(t, err)
	assert.InDelta(t, distuv.UnitNormal.CDF(0.4), y.Value(), 1e-15)

	require.NoError(t, tape.Backward(y))
	assert.InDelta(t, distuv.UnitNormal.Prob(0.4), x.Adjoint(), 1e-15)
}

func TestCall_FiniteDifferenceFallback(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	x := tape.Scalar(0.8)
	var y *autodiff.Var
	assertNoLeak(t, s, func() {
		var err error
		y, err = Call(tape, s, Routine{Name: "pt", Aux: []float64{5}}, x)
		require.NoError(t, err)
	})

	d := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: 5}
	assert.InDelta(t, d.CDF(0.8), y.Value(), 1e-12)

	require.NoError(t, tape.Backward(y))
	assert.InEpsilon(t, d.Prob(0.8), x.Adjoint(), 1e-6)
}

func TestCall_TwoInputs(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	// dnorm(x, mu) = φ(x - mu): ∂/∂x = -(x-mu) φ, ∂/∂mu = (x-mu) φ
	x := tape.Scalar(1.2)
	mu := tape.Scalar(0.5)
	y, err := Call(tape, s, Routine{Name: "dnorm"}, x, mu)
	require.NoError(t, err)
	require.NoError(t, tape.Backward(y))

	phi := distuv.UnitNormal.Prob(0.7)
	assert.InEpsilon(t, -0.7*phi, x.Adjoint(), 1e-6)
	assert.InEpsilon(t, 0.7*phi, mu.Adjoint(), 1e-6)
}

func TestCall_DomainErrorIsNaN(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	x := tape.Scalar(1)
	y, err := Call(tape, s, Routine{Name: "no_such_routine"}, x)
	require.Error(t, err, "unknown routines fail to render")
	assert.Nil(t, y)

	y, err = Call(tape, s, Routine{Name: "solve"}, x, x)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(y.Value()))
	require.NoError(t, tape.Backward(y))
	assert.True(t, math.IsNaN(x.Adjoint()))
}

func TestCall_PartialsLengthChecked(t *testing.T) {
	s := newSession(t)
	tape := newTape()

	r := Routine{Name: "exp", Partials: func([]float64, float64) []float64 { return nil }}
	_, err := Call(tape, s, r, tape.Scalar(1))
	assert.Error(t, err)
}
