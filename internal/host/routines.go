package host

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// routine is a numeric routine of the local host. Positional arguments
// follow R's order; logical flags trail them in declared order.
type routine struct {
	name  string
	flags []Flag // declared order with defaults
	eval  func(args []any, flags []bool) (any, error)
}

// localRoutines mirrors the subset of R's stats and base routines the
// adapters need.
var localRoutines = []routine{
	{
		name:  "qnorm",
		flags: []Flag{{"lower.tail", true}, {"log.p", false}},
		eval: func(args []any, flags []bool) (any, error) {
			p, mu, sigma, err := locScaleArgs(args)
			if err != nil {
				return nil, err
			}
			if sigma < 0 {
				return math.NaN(), nil
			}
			return quantile(distuv.Normal{Mu: mu, Sigma: sigma}, p, mu, sigma, flags[0], flags[1]), nil
		},
	},
	{
		name:  "pnorm",
		flags: []Flag{{"lower.tail", true}, {"log.p", false}},
		eval: func(args []any, flags []bool) (any, error) {
			q, mu, sigma, err := locScaleArgs(args)
			if err != nil {
				return nil, err
			}
			if !(sigma > 0) {
				return math.NaN(), nil
			}
			return cdf(distuv.Normal{Mu: mu, Sigma: sigma}, q, flags[0], flags[1]), nil
		},
	},
	{
		name:  "dnorm",
		flags: []Flag{{"log", false}},
		eval: func(args []any, flags []bool) (any, error) {
			x, mu, sigma, err := locScaleArgs(args)
			if err != nil {
				return nil, err
			}
			if !(sigma > 0) {
				return math.NaN(), nil
			}
			return density(distuv.Normal{Mu: mu, Sigma: sigma}, x, flags[0]), nil
		},
	},
	{
		name:  "qt",
		flags: []Flag{{"lower.tail", true}, {"log.p", false}},
		eval: func(args []any, flags []bool) (any, error) {
			p, df, err := dfArgs("qt", args)
			if err != nil {
				return nil, err
			}
			if !(df > 0) {
				return math.NaN(), nil
			}
			return quantile(distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}, p, 0, 1, flags[0], flags[1]), nil
		},
	},
	{
		name:  "pt",
		flags: []Flag{{"lower.tail", true}, {"log.p", false}},
		eval: func(args []any, flags []bool) (any, error) {
			q, df, err := dfArgs("pt", args)
			if err != nil {
				return nil, err
			}
			if !(df > 0) {
				return math.NaN(), nil
			}
			return cdf(distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}, q, flags[0], flags[1]), nil
		},
	},
	{
		name:  "dt",
		flags: []Flag{{"log", false}},
		eval: func(args []any, flags []bool) (any, error) {
			x, df, err := dfArgs("dt", args)
			if err != nil {
				return nil, err
			}
			if !(df > 0) {
				return math.NaN(), nil
			}
			return density(distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}, x, flags[0]), nil
		},
	},
	{
		name: "det",
		eval: func(args []any, _ []bool) (any, error) {
			m, err := squareArg("det", args)
			if err != nil {
				return nil, err
			}
			return mat.Det(m), nil
		},
	},
	{
		name: "solve",
		eval: func(args []any, _ []bool) (any, error) {
			m, err := squareArg("solve", args)
			if err != nil {
				return nil, err
			}
			var inv mat.Dense
			if err := inv.Inverse(m); err != nil {
				return nil, errors.Wrap(err, "solve: system is singular")
			}
			return &inv, nil
		},
	},
	{
		name: "t",
		eval: func(args []any, _ []bool) (any, error) {
			if len(args) != 1 {
				return nil, errors.Errorf("t: expected 1 argument, got %d", len(args))
			}
			if m, ok := args[0].(*mat.Dense); ok {
				return mat.DenseCopyOf(m.T()), nil
			}
			return toFloat(args[0])
		},
	},
	{
		name: "log",
		eval: func(args []any, _ []bool) (any, error) {
			return elementwise("log", args, math.Log)
		},
	},
	{
		name: "exp",
		eval: func(args []any, _ []bool) (any, error) {
			return elementwise("exp", args, math.Exp)
		},
	},
}

func lookupRoutine(name string) (routine, bool) {
	for _, r := range localRoutines {
		if r.name == name {
			return r, true
		}
	}
	return routine{}, false
}

type quantiler interface {
	Quantile(p float64) float64
}

// quantile follows R's boundary conventions: 0 and 1 map to the infinite
// support ends, anything outside [0, 1] or NaN gives NaN. gonum panics
// outside [0, 1], so the boundaries are handled here.
func quantile(d quantiler, p, mu, sigma float64, lowerTail, logP bool) float64 {
	if logP {
		p = math.Exp(p)
	}
	if !lowerTail {
		p = 1 - p
	}
	switch {
	case math.IsNaN(p) || p < 0 || p > 1:
		return math.NaN()
	case sigma == 0:
		return mu
	case p == 0:
		return math.Inf(-1)
	case p == 1:
		return math.Inf(1)
	}
	return d.Quantile(p)
}

type distribution interface {
	CDF(x float64) float64
	Survival(x float64) float64
	LogProb(x float64) float64
}

func cdf(d distribution, q float64, lowerTail, logP bool) float64 {
	if math.IsNaN(q) {
		return math.NaN()
	}
	p := d.CDF(q)
	if !lowerTail {
		p = d.Survival(q)
	}
	if logP {
		return math.Log(p)
	}
	return p
}

func density(d distribution, x float64, logScale bool) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	lp := d.LogProb(x)
	if logScale {
		return lp
	}
	return math.Exp(lp)
}

// locScaleArgs reads (x, mean = 0, sd = 1).
func locScaleArgs(args []any) (x, mu, sigma float64, err error) {
	if len(args) < 1 || len(args) > 3 {
		return 0, 0, 0, errors.Errorf("expected 1 to 3 numeric arguments, got %d", len(args))
	}
	vals := []float64{math.NaN(), 0, 1}
	for i, a := range args {
		if vals[i], err = toFloat(a); err != nil {
			return 0, 0, 0, err
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// dfArgs reads (x, df).
func dfArgs(name string, args []any) (x, df float64, err error) {
	if len(args) != 2 {
		return 0, 0, errors.Errorf("%s: expected 2 numeric arguments, got %d", name, len(args))
	}
	if x, err = toFloat(args[0]); err != nil {
		return 0, 0, err
	}
	if df, err = toFloat(args[1]); err != nil {
		return 0, 0, err
	}
	return x, df, nil
}

func squareArg(name string, args []any) (*mat.Dense, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("%s: expected 1 argument, got %d", name, len(args))
	}
	var m *mat.Dense
	switch x := args[0].(type) {
	case *mat.Dense:
		m = x
	default:
		f, err := toFloat(x)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		m = mat.NewDense(1, 1, []float64{f})
	}
	if r, c := m.Dims(); r != c {
		return nil, errors.Errorf("%s: 'a' (%d x %d) must be square", name, r, c)
	}
	return m, nil
}

func elementwise(name string, args []any, f func(float64) float64) (any, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("%s: expected 1 argument, got %d", name, len(args))
	}
	if m, ok := args[0].(*mat.Dense); ok {
		var out mat.Dense
		out.Apply(func(_, _ int, v float64) float64 { return f(v) }, m)
		return &out, nil
	}
	x, err := toFloat(args[0])
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return f(x), nil
}

func toFloat(a any) (float64, error) {
	switch x := a.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case *mat.Dense:
		return Scalar(x)
	default:
		return math.NaN(), errors.Errorf("non-numeric argument of type %T", a)
	}
}
