package host

import (
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// tempPrefix marks bindings created by a Scope.
const tempPrefix = "extdiff_"

// Session owns a Host for the lifetime of a process or a test. It is passed
// explicitly to every adapter call; there is no package-level session.
//
// A Session is not safe for concurrent use.
type Session struct {
	host   Host
	logger *slog.Logger
	closed bool
}

// NewSession wraps h. A nil logger discards log output.
func NewSession(h Host, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{host: h, logger: logger}
}

// HostName returns the name of the underlying host.
func (s *Session) HostName() string {
	return s.host.Name()
}

// Names returns the live bindings of the host. Comparing it before and after
// a call detects leaked temporaries.
func (s *Session) Names() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.host.Names()
}

// Scope opens a scope for temporary bindings. The caller must Close it.
func (s *Session) Scope() *Scope {
	return &Scope{session: s}
}

// Do runs fn inside a fresh scope and releases the scope on every exit path.
// A release failure is returned only if fn itself succeeded.
func (s *Session) Do(fn func(sc *Scope) error) (err error) {
	sc := s.Scope()
	defer func() {
		if cerr := sc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(sc)
}

// Close shuts the host down.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.host.Close()
}

// Scope tracks the temporaries one adapter call creates.
type Scope struct {
	session *Session
	names   []string
	closed  bool
}

// Bind assigns v to a fresh temporary name and returns the name.
func (sc *Scope) Bind(v Value) (string, error) {
	if err := sc.check(); err != nil {
		return "", err
	}
	name := sc.temp()
	if err := sc.session.host.Assign(name, v); err != nil {
		return "", errors.Wrapf(err, "binding %s", name)
	}
	return name, nil
}

// Call evaluates c into a fresh temporary and reads the result back.
// A routine the host rejects yields an *EvalError.
func (sc *Scope) Call(c Call) (Value, error) {
	if err := sc.check(); err != nil {
		return nil, err
	}
	target := sc.temp()
	cmd, err := sc.session.host.Render(target, c)
	if err != nil {
		return nil, err
	}
	sc.session.logger.Debug("host call", "host", sc.session.host.Name(), "command", cmd)
	if err := sc.session.host.Eval(cmd); err != nil {
		return nil, err
	}
	return sc.session.host.Get(target)
}

// CallScalar is Call for routines returning a scalar.
func (sc *Scope) CallScalar(c Call) (float64, error) {
	v, err := sc.Call(c)
	if err != nil {
		return math.NaN(), err
	}
	return Scalar(v)
}

// Close releases every temporary created in the scope. Safe to call twice.
func (sc *Scope) Close() error {
	if sc.closed {
		return nil
	}
	sc.closed = true
	if len(sc.names) == 0 || sc.session.closed {
		return nil
	}
	if err := sc.session.host.Remove(sc.names...); err != nil {
		sc.session.logger.Warn("releasing temporaries failed", "names", sc.names, "error", err)
		return errors.Wrap(err, "releasing temporaries")
	}
	return nil
}

func (sc *Scope) check() error {
	if sc.closed || sc.session.closed {
		return ErrClosed
	}
	return nil
}

// temp registers a new unique name before it is used, so that a failing
// command still has its target released.
func (sc *Scope) temp() string {
	name := tempPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	sc.names = append(sc.names, name)
	return name
}
