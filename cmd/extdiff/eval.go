package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/dual"
	"github.com/born-ml/extdiff/internal/host"
	"github.com/born-ml/extdiff/internal/udf"
)

func newEvalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eval FUNCTION [ARG...]",
		Short: "Evaluate a registered function and its gradient",
		Long: `Evaluates one registered function at the given arguments and prints the
value followed by the gradient of every argument. Matrix arguments are
written row by row, columns separated by commas and rows by semicolons.`,
		Example: `  extdiff eval qnorm_log -- -0.5
  extdiff eval qt_log -- -0.2 4
  extdiff eval log_determinant "2,0;0,3"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(s *host.Session) error {
				return runEval(cmd.OutOrStdout(), udf.Builtins(), s, args[0], args[1:])
			})
		},
	}
}

func runEval(w io.Writer, reg *udf.Registry, s *host.Session, name string, raw []string) error {
	sig, ok := reg.Lookup(name)
	if !ok {
		return errors.Wrapf(udf.ErrUndefinedFunction, "%q (registered: %s)", name, strings.Join(reg.Names(), ", "))
	}
	if len(raw) != len(sig.Params) {
		return errors.Errorf("%s takes %d arguments, got %d", sig, len(sig.Params), len(raw))
	}

	tape := autodiff.NewTape()
	tape.StartRecording()
	args := make([]dual.Node, len(raw))
	for i, p := range sig.Params {
		switch p.Type {
		case udf.Matrix:
			m, err := parseMatrix(raw[i])
			if err != nil {
				return errors.Wrapf(err, "argument %s", p.Name)
			}
			args[i] = tape.Matrix(m)
		default:
			v, err := strconv.ParseFloat(raw[i], 64)
			if err != nil {
				return errors.Wrapf(err, "argument %s", p.Name)
			}
			args[i] = tape.Scalar(v)
		}
	}

	out, err := reg.Invoke(name, udf.Env{Tape: tape, Session: s}, args...)
	if err != nil {
		return err
	}
	if err := tape.Backward(out); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s = %.17g\n", sig.Name, out.Value())
	for i, p := range sig.Params {
		if p.Data {
			continue
		}
		switch x := args[i].(type) {
		case *dual.Var:
			fmt.Fprintf(w, "d/d%s = %.17g\n", p.Name, x.Adjoint())
		case *dual.MatVar:
			fmt.Fprintf(w, "d/d%s =\n%v\n", p.Name, mat.Formatted(x.Adjoint(), mat.Prefix("  "), mat.Squeeze()))
		}
	}
	return nil
}

// parseMatrix reads "a,b;c,d" as a 2x2 matrix.
func parseMatrix(s string) (*mat.Dense, error) {
	rows := strings.Split(strings.TrimSpace(s), ";")
	var data []float64
	cols := -1
	for i, row := range rows {
		fields := strings.Split(row, ",")
		if cols == -1 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, errors.Errorf("row %d has %d columns, want %d", i+1, len(fields), cols)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d", i+1)
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(len(rows), cols, data), nil
}
