// Package host talks to a foreign numeric-language runtime.
//
// A Host evaluates named numeric routines from command text, with values
// passed in and read back by name. Two hosts exist:
//   - Local: an in-process interpreter backed by gonum
//   - RProcess: a persistent R child process
//
// Callers never use a Host directly for adapter work. They go through a
// Session, which owns the host and hands out Scopes whose temporary
// bindings are always released before the scope returns.
//
// Command text is a single assignment of one routine call:
//
//	target <- routine(arg, arg, ...)
//
// Arguments are bound names or numeric literals. Logical flags are
// expressed in a Call and rendered by each host in its own dialect.
package host

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Sentinel errors.
var (
	// ErrUnknownName is returned by Get for a name that is not bound.
	ErrUnknownName = errors.New("host: unknown name")

	// ErrHostUnavailable is returned when the requested host cannot be started.
	ErrHostUnavailable = errors.New("host: foreign runtime unavailable")

	// ErrClosed is returned by operations on a closed host or scope.
	ErrClosed = errors.New("host: closed")
)

// EvalError reports that the foreign runtime rejected a command, for example
// because a routine is undefined for its input. Adapters treat it as a
// numeric domain error rather than a transport failure.
type EvalError struct {
	Command string
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("host: evaluating %q: %s", e.Command, e.Message)
}

// IsEvalError reports whether err wraps an *EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// Value is a float64 or a *mat.Dense.
type Value any

// Flag is a named logical argument such as R's log.p.
type Flag struct {
	Name  string
	Value bool
}

// Call describes one routine invocation.
type Call struct {
	Routine string
	Args    []string // bound names or numeric literals
	Flags   []Flag
}

// Host is a foreign-routine runtime.
//
// Implementations are not safe for concurrent use.
type Host interface {
	// Name identifies the host in logs.
	Name() string

	// Assign binds name to v.
	Assign(name string, v Value) error

	// Eval runs one command.
	Eval(command string) error

	// Render formats "target <- call" in the host's dialect.
	Render(target string, c Call) (string, error)

	// Get reads the value bound to name.
	Get(name string) (Value, error)

	// Remove releases names. Unknown names are ignored.
	Remove(names ...string) error

	// Names lists live bindings, sorted.
	Names() ([]string, error)

	// Close shuts the runtime down.
	Close() error
}

// Scalar extracts a float64 from v.
func Scalar(v Value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case *mat.Dense:
		r, c := x.Dims()
		if r == 1 && c == 1 {
			return x.At(0, 0), nil
		}
		return math.NaN(), errors.Errorf("host: expected scalar, got %dx%d matrix", r, c)
	default:
		return math.NaN(), errors.Errorf("host: expected scalar, got %T", v)
	}
}

// Matrix extracts a *mat.Dense from v.
func Matrix(v Value) (*mat.Dense, error) {
	switch x := v.(type) {
	case *mat.Dense:
		return x, nil
	case float64:
		return mat.NewDense(1, 1, []float64{x}), nil
	default:
		return nil, errors.Errorf("host: expected matrix, got %T", v)
	}
}

// FormatFloat renders f as a literal both hosts parse back bit-exactly.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', 17, 64)
}

// ParseFloat is the inverse of FormatFloat. R's NA is read as NaN.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "host: parsing %q", s)
	}
	return f, nil
}

// validName reports whether name is usable as a binding in every host.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// splitAssign splits "target <- expression".
func splitAssign(command string) (target, rhs string, err error) {
	lhs, rhs, ok := strings.Cut(command, "<-")
	if !ok {
		return "", "", errors.Errorf("host: command %q is not an assignment", command)
	}
	target = strings.TrimSpace(lhs)
	if !validName(target) {
		return "", "", errors.Errorf("host: invalid assignment target %q", target)
	}
	return target, strings.TrimSpace(rhs), nil
}
