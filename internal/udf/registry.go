package udf

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/extdiff/internal/autodiff"
	"github.com/born-ml/extdiff/internal/dual"
	"github.com/born-ml/extdiff/internal/extfn"
	"github.com/born-ml/extdiff/internal/host"
)

// Sentinel errors.
var (
	ErrUndefinedFunction = errors.New("udf: undefined function")
	ErrSignatureMismatch = errors.New("udf: signature mismatch")
	ErrAlreadyRegistered = errors.New("udf: function already registered")
)

// Env carries the collaborators a function needs.
type Env struct {
	Tape    *autodiff.Tape
	Session *host.Session
}

// Func implements a registered function. Real arguments arrive as *dual.Var,
// matrix arguments as *dual.MatVar, in declaration order.
type Func func(env Env, args []dual.Node) (*autodiff.Var, error)

type entry struct {
	sig Signature
	fn  Func
}

// Registry maps function names to implementations.
type Registry struct {
	funcs map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]entry)}
}

// Register adds fn under sig.Name. Only real-valued functions are supported.
func (r *Registry) Register(sig Signature, fn Func) error {
	if _, ok := r.funcs[sig.Name]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "%q", sig.Name)
	}
	if sig.Return != Real {
		return errors.Errorf("udf: %s: only real return types are supported", sig.Name)
	}
	for _, p := range sig.Params {
		if p.Type == Vector {
			return errors.Errorf("udf: %s: vector parameters are not supported", sig.Name)
		}
	}
	r.funcs[sig.Name] = entry{sig: sig, fn: fn}
	return nil
}

// Lookup returns the signature registered under name.
func (r *Registry) Lookup(name string) (Signature, bool) {
	e, ok := r.funcs[name]
	return e.sig, ok
}

// Names lists registered functions, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke checks args against the signature and calls the function.
func (r *Registry) Invoke(name string, env Env, args ...dual.Node) (*autodiff.Var, error) {
	e, ok := r.funcs[name]
	if !ok {
		return nil, errors.Wrapf(ErrUndefinedFunction, "%q", name)
	}
	if len(args) != len(e.sig.Params) {
		return nil, errors.Wrapf(ErrSignatureMismatch, "%s: %d arguments for %d parameters", e.sig, len(args), len(e.sig.Params))
	}
	for i, p := range e.sig.Params {
		switch a := args[i].(type) {
		case *dual.Var:
			if p.Type != Real {
				return nil, errors.Wrapf(ErrSignatureMismatch, "%s: argument %d is real, want %s", e.sig, i+1, p.Type)
			}
		case *dual.MatVar:
			if p.Type != Matrix {
				return nil, errors.Wrapf(ErrSignatureMismatch, "%s: argument %d is matrix, want %s", e.sig, i+1, p.Type)
			}
		default:
			return nil, errors.Wrapf(ErrSignatureMismatch, "%s: argument %d has type %T", e.sig, i+1, a)
		}
	}
	return e.fn(env, args)
}

// Declarations renders a functions block with one forward declaration per
// registered function, for inclusion in model source text.
func (r *Registry) Declarations() string {
	var b strings.Builder
	b.WriteString("functions {\n")
	for _, n := range r.Names() {
		b.WriteString("  ")
		b.WriteString(r.funcs[n].sig.String())
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// Builtins returns a registry holding the adapters shipped with the module:
//
//	real qnorm_log(real log_p);
//	real qt_log(real log_p, data real nu);
//	real log_determinant(matrix m);
func Builtins() *Registry {
	r := NewRegistry()
	mustRegister(r, Signature{
		Name:   "qnorm_log",
		Params: []Param{{Name: "log_p", Type: Real}},
		Return: Real,
	}, func(env Env, args []dual.Node) (*autodiff.Var, error) {
		return extfn.QuantileLog(env.Tape, env.Session, extfn.StdNormal(), args[0].(*dual.Var))
	})
	mustRegister(r, Signature{
		Name:   "qt_log",
		Params: []Param{{Name: "log_p", Type: Real}, {Name: "nu", Type: Real, Data: true}},
		Return: Real,
	}, func(env Env, args []dual.Node) (*autodiff.Var, error) {
		nu := args[1].(*dual.Var).Value()
		return extfn.QuantileLog(env.Tape, env.Session, extfn.StdStudentT(nu), args[0].(*dual.Var))
	})
	mustRegister(r, Signature{
		Name:   "log_determinant",
		Params: []Param{{Name: "m", Type: Matrix}},
		Return: Real,
	}, func(env Env, args []dual.Node) (*autodiff.Var, error) {
		return extfn.LogDeterminant(env.Tape, env.Session, args[0].(*dual.MatVar))
	})
	return r
}

func mustRegister(r *Registry, sig Signature, fn Func) {
	if err := r.Register(sig, fn); err != nil {
		panic(err)
	}
}
