package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	replyOK  = "@@extdiff:ok@@"
	replyErr = "@@extdiff:err@@"
)

// RProcess drives a persistent R interpreter over stdin/stdout.
//
// Every request is wrapped in tryCatch and terminated by a sentinel line, so
// an R error is reported as an *EvalError while the process keeps running.
// Anything R writes to stderr (warnings) is logged at debug level.
type RProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *slog.Logger
	closed bool
}

var _ Host = (*RProcess)(nil)

// StartR launches executable (usually "R") with args appended to
// "--vanilla --slave". The process lives until Close or ctx is done.
// A nil logger discards log output.
func StartR(ctx context.Context, executable string, args []string, logger *slog.Logger) (*RProcess, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	path, err := exec.LookPath(executable)
	if err != nil {
		return nil, errors.Wrapf(ErrHostUnavailable, "%s: %v", executable, err)
	}

	cmd := exec.CommandContext(ctx, path, append([]string{"--vanilla", "--slave"}, args...)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "host: R stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "host: R stdout")
	}
	cmd.Stderr = &logWriter{logger: logger}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrHostUnavailable, "starting %s: %v", path, err)
	}

	p := &RProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		logger: logger,
	}
	// Handshake: fails fast if the binary is not an R interpreter.
	if _, err := p.request(`invisible(NULL)`); err != nil {
		_ = p.Close()
		return nil, errors.Wrapf(ErrHostUnavailable, "handshake with %s: %v", path, err)
	}
	logger.Debug("R process started", "path", path, "pid", cmd.Process.Pid)
	return p, nil
}

// Name returns "R".
func (p *RProcess) Name() string { return "R" }

// Assign binds name to v in R's global environment.
func (p *RProcess) Assign(name string, v Value) error {
	if !validName(name) {
		return errors.Errorf("host: invalid name %q", name)
	}
	var literal string
	switch x := v.(type) {
	case float64:
		literal = FormatFloat(x)
	case *mat.Dense:
		r, c := x.Dims()
		vals := make([]string, 0, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				vals = append(vals, FormatFloat(x.At(i, j)))
			}
		}
		literal = fmt.Sprintf("matrix(c(%s), nrow = %d, ncol = %d, byrow = TRUE)", strings.Join(vals, ", "), r, c)
	default:
		return errors.Errorf("host: cannot assign %T to %q", v, name)
	}
	_, err := p.request(name + " <- " + literal)
	return err
}

// Eval runs command in R's global environment.
func (p *RProcess) Eval(command string) error {
	if _, _, err := splitAssign(command); err != nil {
		return err
	}
	_, err := p.request(command)
	return err
}

// Render formats the call with positional arguments and named flags.
func (p *RProcess) Render(target string, c Call) (string, error) {
	if !validName(target) {
		return "", errors.Errorf("host: invalid assignment target %q", target)
	}
	args := append([]string(nil), c.Args...)
	for _, f := range c.Flags {
		args = append(args, f.Name+" = "+strings.ToUpper(strconv.FormatBool(f.Value)))
	}
	return target + " <- " + c.Routine + "(" + strings.Join(args, ", ") + ")", nil
}

// Get reads a scalar or matrix. The first reply line holds the dimensions
// ("0" for a scalar), then one value per line in row-major order.
func (p *RProcess) Get(name string) (Value, error) {
	if !validName(name) {
		return nil, errors.Errorf("host: invalid name %q", name)
	}
	// local() keeps the helper binding out of the global environment.
	body := fmt.Sprintf(`local({
if (!exists(%q, envir = globalenv(), inherits = FALSE)) stop("unknown name")
x <- get(%q, envir = globalenv())
cat(if (is.matrix(x)) dim(x) else 0L, "\n")
cat(sprintf("%%.17g", as.vector(t(x))), sep = "\n")
})`, name, name)
	lines, err := p.request(body)
	if err != nil {
		if IsEvalError(err) {
			return nil, errors.Wrapf(ErrUnknownName, "%q", name)
		}
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.Errorf("host: empty reply reading %q", name)
	}

	dims := strings.Fields(lines[0])
	vals := make([]float64, 0, len(lines)-1)
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		f, err := ParseFloat(l)
		if err != nil {
			return nil, err
		}
		vals = append(vals, f)
	}

	if len(dims) == 1 && dims[0] == "0" {
		if len(vals) != 1 {
			return nil, errors.Errorf("host: %q has length %d, expected a scalar", name, len(vals))
		}
		return vals[0], nil
	}
	if len(dims) != 2 {
		return nil, errors.Errorf("host: malformed dimensions %q for %q", lines[0], name)
	}
	r, err1 := strconv.Atoi(dims[0])
	c, err2 := strconv.Atoi(dims[1])
	if err1 != nil || err2 != nil || r*c != len(vals) {
		return nil, errors.Errorf("host: malformed matrix reply for %q", name)
	}
	return mat.NewDense(r, c, vals), nil
}

// Remove releases names with rm().
func (p *RProcess) Remove(names ...string) error {
	if len(names) == 0 {
		return nil
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(n)
	}
	_, err := p.request(fmt.Sprintf("suppressWarnings(rm(list = c(%s), envir = globalenv()))", strings.Join(quoted, ", ")))
	return err
}

// Names lists R's global environment.
func (p *RProcess) Names() ([]string, error) {
	lines, err := p.request(`cat(ls(envir = globalenv()), sep = "\n")`)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			names = append(names, l)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close asks R to quit and waits for the process.
func (p *RProcess) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	_, _ = io.WriteString(p.stdin, "q(save = \"no\")\n")
	_ = p.stdin.Close()
	if err := p.cmd.Wait(); err != nil {
		return errors.Wrap(err, "host: waiting for R")
	}
	return nil
}

// request sends body and returns the payload lines preceding the sentinel.
func (p *RProcess) request(body string) ([]string, error) {
	if p.closed {
		return nil, ErrClosed
	}
	p.logger.Debug("R request", "body", body)

	wrapped := fmt.Sprintf(`tryCatch({
%s
cat("\n%s\n")
}, error = function(e) cat("\n%s", gsub("\n", " ", conditionMessage(e)), "\n"))
`, body, replyOK, replyErr)
	if _, err := io.WriteString(p.stdin, wrapped); err != nil {
		return nil, errors.Wrap(err, "host: writing to R")
	}

	var lines []string
	for {
		line, err := p.stdout.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "host: reading from R")
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == replyOK:
			return trimBlank(lines), nil
		case strings.HasPrefix(line, replyErr):
			return nil, &EvalError{Command: body, Message: strings.TrimSpace(strings.TrimPrefix(line, replyErr))}
		}
		lines = append(lines, line)
	}
}

// trimBlank drops the leading and trailing empty lines the sentinel framing
// introduces.
func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type logWriter struct {
	logger *slog.Logger
}

func (w *logWriter) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line != "" {
			w.logger.Debug("R stderr", "line", line)
		}
	}
	return len(b), nil
}
