package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/dual"
	"github.com/born-ml/extdiff/internal/extfn"
	"github.com/born-ml/extdiff/internal/gradcheck"
	"github.com/born-ml/extdiff/internal/host"
	"github.com/born-ml/extdiff/internal/udf"
)

// scenario is one gradient check. Exactly one of scalar and matrix is set.
type scenario struct {
	name   string
	x      []float64
	scalar func(s *host.Session) gradcheck.Objective
	m      *mat.Dense
	matrix func(s *host.Session) gradcheck.MatrixObjective
}

func scenarios(reg *udf.Registry) []scenario {
	invoke := func(name string, data ...float64) func(s *host.Session) gradcheck.Objective {
		return func(s *host.Session) gradcheck.Objective {
			return func(t *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
				args := []dual.Node{x[0]}
				for _, d := range data {
					args = append(args, t.Scalar(d))
				}
				return reg.Invoke(name, udf.Env{Tape: t, Session: s}, args...)
			}
		}
	}

	return []scenario{
		{name: "qnorm_log", x: []float64{-0.5}, scalar: invoke("qnorm_log")},
		{name: "qt_log(nu=4)", x: []float64{-0.2}, scalar: invoke("qt_log", 4)},
		{
			name: "quantile normal(1, 2)",
			x:    []float64{0.3},
			scalar: func(s *host.Session) gradcheck.Objective {
				return func(t *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
					return extfn.Quantile(t, s, extfn.Normal{Mu: 1, Sigma: 2}, x[0])
				}
			},
		},
		{
			name: "qt_log squared sum",
			x:    []float64{-0.7, -1.5},
			scalar: func(s *host.Session) gradcheck.Objective {
				return func(t *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
					d := extfn.StudentT{Nu: 6, Mu: 0.5, Sigma: 1.5}
					a, err := extfn.QuantileLog(t, s, d, x[0])
					if err != nil {
						return nil, err
					}
					b, err := extfn.QuantileLog(t, s, d, x[1])
					if err != nil {
						return nil, err
					}
					return t.Add(t.Square(a), t.Mul(a, b)), nil
				}
			},
		},
		{
			name: "pnorm (finite differences)",
			x:    []float64{0.4, 1, 2},
			scalar: func(s *host.Session) gradcheck.Objective {
				return func(t *autodiff.Tape, x []*autodiff.Var) (*autodiff.Var, error) {
					return extfn.Call(t, s, extfn.Routine{Name: "pnorm"}, x...)
				}
			},
		},
		{
			name:   "log_determinant diagonal",
			m:      mat.NewDense(2, 2, []float64{2, 0, 0, 3}),
			matrix: invokeMatrix(reg, "log_determinant"),
		},
		{
			name:   "log_determinant asymmetric",
			m:      mat.NewDense(3, 3, []float64{4, 1, 0, 2, 3, 1, 0, 1, 5}),
			matrix: invokeMatrix(reg, "log_determinant"),
		},
	}
}

func invokeMatrix(reg *udf.Registry, name string) func(s *host.Session) gradcheck.MatrixObjective {
	return func(s *host.Session) gradcheck.MatrixObjective {
		return func(t *autodiff.Tape, m *autodiff.MatVar) (*autodiff.Var, error) {
			return reg.Invoke(name, udf.Env{Tape: t, Session: s}, m)
		}
	}
}

func newCheckCmd(a *app) *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare adapter gradients with central finite differences",
		Long: `Runs every built-in adapter through the tape and through gonum's central
finite differences and reports per-coordinate agreement. Exits non-zero when
any coordinate disagrees or when a call leaks host bindings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd.Context(), func(s *host.Session) error {
				return runCheck(cmd.OutOrStdout(), a, s, only)
			})
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "run only the scenario with this name")
	return cmd
}

func runCheck(w io.Writer, a *app, s *host.Session, only string) error {
	settings := gradcheck.FromConfig(a.cfg.Check)
	before, err := s.Names()
	if err != nil {
		return err
	}

	failed := 0
	ran := 0
	for _, sc := range scenarios(udf.Builtins()) {
		if only != "" && sc.name != only {
			continue
		}
		ran++

		var rep *gradcheck.Report
		if sc.scalar != nil {
			rep, err = gradcheck.Scalar(sc.name, sc.scalar(s), sc.x, settings)
		} else {
			rep, err = gradcheck.Matrix(sc.name, sc.matrix(s), sc.m, settings)
		}
		if err != nil {
			return err
		}
		fmt.Fprint(w, rep)
		if !rep.OK() {
			failed++
		}
		a.logger.Debug("scenario checked", "name", sc.name, "ok", rep.OK())
	}
	if ran == 0 {
		return errors.Errorf("no scenario named %q", only)
	}

	after, err := s.Names()
	if err != nil {
		return err
	}
	if !slices.Equal(before, after) {
		return errors.Errorf("host bindings leaked: before %v, after %v", before, after)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d gradient checks failed on host %s", failed, ran, s.HostName())
	}
	fmt.Fprintf(w, "%d gradient checks passed on host %s\n", ran, s.HostName())
	return nil
}
