package host

import (
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Local is an in-process host. Commands are evaluated with expr against the
// current bindings; routines are implemented on gonum.
//
// Besides the assignment form, the right-hand side may be any expr
// expression over bound names, e.g. "z <- mu + sigma * qnorm(p)".
type Local struct {
	vars    map[string]Value
	options []expr.Option
	closed  bool
}

var _ Host = (*Local)(nil)

// NewLocal creates an empty local host.
func NewLocal() *Local {
	l := &Local{
		vars:    make(map[string]Value),
		options: []expr.Option{expr.DisableAllBuiltins()},
	}
	for _, r := range localRoutines {
		l.options = append(l.options, expr.Function(r.name, r.call))
	}
	return l
}

// Name returns "local".
func (l *Local) Name() string { return "local" }

// Assign binds name to a copy of v.
func (l *Local) Assign(name string, v Value) error {
	if l.closed {
		return ErrClosed
	}
	if !validName(name) {
		return errors.Errorf("host: invalid name %q", name)
	}
	switch x := v.(type) {
	case float64:
		l.vars[name] = x
	case *mat.Dense:
		l.vars[name] = mat.DenseCopyOf(x)
	default:
		return errors.Errorf("host: cannot assign %T to %q", v, name)
	}
	return nil
}

// Eval runs "target <- expression".
func (l *Local) Eval(command string) error {
	if l.closed {
		return ErrClosed
	}
	target, rhs, err := splitAssign(command)
	if err != nil {
		return err
	}

	env := make(map[string]any, len(l.vars)+4)
	for k, v := range l.vars {
		env[k] = v
	}
	env["TRUE"] = true
	env["FALSE"] = false
	env["Inf"] = math.Inf(1)
	env["NaN"] = math.NaN()

	program, err := expr.Compile(rhs, append([]expr.Option{expr.Env(env)}, l.options...)...)
	if err != nil {
		return &EvalError{Command: command, Message: err.Error()}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return &EvalError{Command: command, Message: err.Error()}
	}

	switch x := out.(type) {
	case float64:
		l.vars[target] = x
	case int:
		l.vars[target] = float64(x)
	case *mat.Dense:
		l.vars[target] = x
	default:
		return &EvalError{Command: command, Message: "result is not numeric"}
	}
	return nil
}

// Render formats the call positionally, filling unspecified flags with their
// defaults.
func (l *Local) Render(target string, c Call) (string, error) {
	r, ok := lookupRoutine(c.Routine)
	if !ok {
		return "", errors.Errorf("host: local host has no routine %q", c.Routine)
	}
	values := make([]bool, len(r.flags))
	for i, f := range r.flags {
		values[i] = f.Value
	}
	for _, f := range c.Flags {
		i := flagIndex(r.flags, f.Name)
		if i < 0 {
			return "", errors.Errorf("host: routine %q has no flag %q", c.Routine, f.Name)
		}
		values[i] = f.Value
	}

	args := append([]string(nil), c.Args...)
	for _, v := range values {
		if v {
			args = append(args, "TRUE")
		} else {
			args = append(args, "FALSE")
		}
	}
	return target + " <- " + c.Routine + "(" + strings.Join(args, ", ") + ")", nil
}

// Get returns the value bound to name. Matrices are copied.
func (l *Local) Get(name string) (Value, error) {
	if l.closed {
		return nil, ErrClosed
	}
	v, ok := l.vars[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownName, "%q", name)
	}
	if m, ok := v.(*mat.Dense); ok {
		return mat.DenseCopyOf(m), nil
	}
	return v, nil
}

// Remove releases names.
func (l *Local) Remove(names ...string) error {
	if l.closed {
		return ErrClosed
	}
	for _, n := range names {
		delete(l.vars, n)
	}
	return nil
}

// Names lists live bindings.
func (l *Local) Names() ([]string, error) {
	if l.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(l.vars))
	for n := range l.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Close drops every binding.
func (l *Local) Close() error {
	l.vars = nil
	l.closed = true
	return nil
}

// call adapts a routine to expr's function signature: numeric arguments
// first, then logical flags.
func (r routine) call(params ...any) (any, error) {
	n := len(params)
	for n > 0 {
		if _, ok := params[n-1].(bool); !ok {
			break
		}
		n--
	}
	if n < len(params)-len(r.flags) {
		return nil, errors.Errorf("%s: too many logical arguments", r.name)
	}
	flags := make([]bool, len(r.flags))
	for i, f := range r.flags {
		flags[i] = f.Value
	}
	for i, p := range params[n:] {
		flags[i] = p.(bool)
	}
	return r.eval(params[:n], flags)
}

func flagIndex(flags []Flag, name string) int {
	for i, f := range flags {
		if f.Name == name {
			return i
		}
	}
	return -1
}
