// Package udf exposes adapters to model source text as user-defined
// functions: typed signatures, forward declarations, a check that every
// body-less declaration is provided, and the build flags the generated model
// binary needs to link against the foreign runtime.
package udf

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Type is a model-language type.
type Type int

// Supported types.
const (
	Real Type = iota
	Vector
	Matrix
)

// String returns the model-language spelling.
func (t Type) String() string {
	switch t {
	case Real:
		return "real"
	case Vector:
		return "vector"
	case Matrix:
		return "matrix"
	default:
		return "unknown"
	}
}

// ParseType parses "real", "vector" or "matrix".
func ParseType(s string) (Type, error) {
	switch s {
	case "real":
		return Real, nil
	case "vector":
		return Vector, nil
	case "matrix":
		return Matrix, nil
	}
	return 0, errors.Errorf("udf: unknown type %q", s)
}

// Param is one declared argument. Data arguments are not differentiated.
type Param struct {
	Name string
	Type Type
	Data bool
}

// String renders "data real nu".
func (p Param) String() string {
	if p.Data {
		return "data " + p.Type.String() + " " + p.Name
	}
	return p.Type.String() + " " + p.Name
}

// Signature is a function declaration.
type Signature struct {
	Name   string
	Params []Param
	Return Type
}

// String renders "real qt_log(real log_p, data real nu)".
func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s %s(%s)", s.Return, s.Name, strings.Join(params, ", "))
}

// Equal compares names, return type and parameter types. Parameter names
// are ignored.
func (s Signature) Equal(o Signature) bool {
	if s.Name != o.Name || s.Return != o.Return || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if s.Params[i].Type != o.Params[i].Type || s.Params[i].Data != o.Params[i].Data {
			return false
		}
	}
	return true
}
