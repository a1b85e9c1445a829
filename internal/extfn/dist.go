package extfn

import (
	"fmt"

	"github.com/born-ml/extdiff/internal/host"
)

// Dist is a location-scale family whose standardized quantile and density
// routines live in the foreign host.
type Dist interface {
	fmt.Stringer

	// Location returns (mu, sigma).
	Location() (mu, sigma float64)

	// quantileCall builds the standardized quantile call for the bound
	// probability p (or log p).
	quantileCall(sc *host.Scope, p string, logScale bool) (host.Call, error)

	// logDensityCall builds the standardized log-density call for the bound z.
	logDensityCall(sc *host.Scope, z string) (host.Call, error)
}

// Normal is N(Mu, Sigma²), evaluated with qnorm/dnorm.
type Normal struct {
	Mu    float64
	Sigma float64
}

// StdNormal returns N(0, 1).
func StdNormal() Normal {
	return Normal{Mu: 0, Sigma: 1}
}

// Location returns (Mu, Sigma).
func (n Normal) Location() (mu, sigma float64) { return n.Mu, n.Sigma }

func (n Normal) String() string {
	return fmt.Sprintf("normal(%g, %g)", n.Mu, n.Sigma)
}

func (Normal) quantileCall(_ *host.Scope, p string, logScale bool) (host.Call, error) {
	return host.Call{
		Routine: "qnorm",
		Args:    []string{p, "0", "1"},
		Flags:   []host.Flag{{Name: "log.p", Value: logScale}},
	}, nil
}

func (Normal) logDensityCall(_ *host.Scope, z string) (host.Call, error) {
	return host.Call{
		Routine: "dnorm",
		Args:    []string{z, "0", "1"},
		Flags:   []host.Flag{{Name: "log", Value: true}},
	}, nil
}

// StudentT is the location-scale Student-t with Nu degrees of freedom,
// evaluated with qt/dt. Nu is a non-differentiable auxiliary parameter.
type StudentT struct {
	Nu    float64
	Mu    float64
	Sigma float64
}

// StdStudentT returns the standard Student-t with nu degrees of freedom.
func StdStudentT(nu float64) StudentT {
	return StudentT{Nu: nu, Mu: 0, Sigma: 1}
}

// Location returns (Mu, Sigma).
func (s StudentT) Location() (mu, sigma float64) { return s.Mu, s.Sigma }

func (s StudentT) String() string {
	return fmt.Sprintf("student_t(%g, %g, %g)", s.Nu, s.Mu, s.Sigma)
}

func (s StudentT) quantileCall(sc *host.Scope, p string, logScale bool) (host.Call, error) {
	nu, err := sc.Bind(s.Nu)
	if err != nil {
		return host.Call{}, err
	}
	return host.Call{
		Routine: "qt",
		Args:    []string{p, nu},
		Flags:   []host.Flag{{Name: "log.p", Value: logScale}},
	}, nil
}

func (s StudentT) logDensityCall(sc *host.Scope, z string) (host.Call, error) {
	nu, err := sc.Bind(s.Nu)
	if err != nil {
		return host.Call{}, err
	}
	return host.Call{
		Routine: "dt",
		Args:    []string{z, nu},
		Flags:   []host.Flag{{Name: "log", Value: true}},
	}, nil
}
