package udf

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	functionsBlock = regexp.MustCompile(`(?m)^\s*functions\s*\{`)
	forwardDecl    = regexp.MustCompile(`(?m)^\s*(real|vector|matrix)\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*;`)
	lineComment    = regexp.MustCompile(`//[^\n]*`)
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// ForwardDeclarations returns the body-less function declarations in the
// functions block of model source text. A model without a functions block
// has none.
func ForwardDeclarations(source string) ([]Signature, error) {
	block, err := functionsBody(source)
	if err != nil || block == "" {
		return nil, err
	}

	var sigs []Signature
	for _, m := range forwardDecl.FindAllStringSubmatch(block, -1) {
		ret, err := ParseType(m[1])
		if err != nil {
			return nil, err
		}
		params, err := parseParams(m[3])
		if err != nil {
			return nil, errors.Wrapf(err, "declaration of %s", m[2])
		}
		sigs = append(sigs, Signature{Name: m[2], Params: params, Return: ret})
	}
	return sigs, nil
}

// CheckSource verifies that every forward declaration in source can be
// resolved. Without allowUndefined a forward declaration is an error, as it
// would be for the model compiler; with it, each one must match a registered
// function.
func (r *Registry) CheckSource(source string, allowUndefined bool) error {
	sigs, err := ForwardDeclarations(source)
	if err != nil {
		return err
	}
	for _, s := range sigs {
		if !allowUndefined {
			return errors.Wrapf(ErrUndefinedFunction, "%s declared without body (allow-undefined is off)", s.Name)
		}
		reg, ok := r.Lookup(s.Name)
		if !ok {
			return errors.Wrapf(ErrUndefinedFunction, "%s is not registered", s.Name)
		}
		if !reg.Equal(s) {
			return errors.Wrapf(ErrSignatureMismatch, "declared %s, registered %s", s, reg)
		}
	}
	return nil
}

// functionsBody returns the text between the braces of the functions block.
func functionsBody(source string) (string, error) {
	source = blockComment.ReplaceAllString(source, "")
	source = lineComment.ReplaceAllString(source, "")

	loc := functionsBlock.FindStringIndex(source)
	if loc == nil {
		return "", nil
	}
	depth := 1
	for i := loc[1]; i < len(source); i++ {
		switch source[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return topLevel(source[loc[1]:i]), nil
			}
		}
	}
	return "", errors.New("udf: unterminated functions block")
}

// topLevel blanks out nested braces (function bodies) so that statements
// inside them are not mistaken for declarations.
func topLevel(block string) string {
	var b strings.Builder
	depth := 0
	for _, c := range block {
		switch {
		case c == '{':
			depth++
			b.WriteRune(' ')
		case c == '}':
			depth--
			b.WriteRune('\n')
		case depth > 0:
			if c == '\n' {
				b.WriteRune(c)
			} else {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func parseParams(s string) ([]Param, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var params []Param
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		p := Param{}
		if len(fields) > 0 && fields[0] == "data" {
			p.Data = true
			fields = fields[1:]
		}
		if len(fields) != 2 {
			return nil, errors.Errorf("udf: malformed parameter %q", strings.TrimSpace(part))
		}
		t, err := ParseType(fields[0])
		if err != nil {
			return nil, err
		}
		p.Type, p.Name = t, fields[1]
		params = append(params, p)
	}
	return params, nil
}
