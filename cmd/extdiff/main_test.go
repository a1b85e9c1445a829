package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "extdiff "+version+"\n", out)
}

func TestCheck_Local(t *testing.T) {
	out, err := run(t, "--host", "local", "check")
	require.NoError(t, err, out)
	assert.NotContains(t, out, "MISMATCH")
	assert.Contains(t, out, "gradient checks passed on host local")
}

func TestCheck_Only(t *testing.T) {
	out, err := run(t, "--host", "local", "check", "--only", "qnorm_log")
	require.NoError(t, err)
	assert.Contains(t, out, "1 gradient checks passed")

	_, err = run(t, "--host", "local", "check", "--only", "nope")
	assert.Error(t, err)
}

func TestEval(t *testing.T) {
	out, err := run(t, "--host", "local", "eval", "log_determinant", "2,0;0,3")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "log_determinant = 1.79175946922805"), lines[0])
	assert.Contains(t, out, "d/dm =")

	out, err = run(t, "--host", "local", "eval", "qt_log", "--", "-0.2", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "d/dlog_p = ")
	assert.NotContains(t, out, "d/dnu", "data arguments have no gradient")
}

func TestEval_Errors(t *testing.T) {
	_, err := run(t, "--host", "local", "eval", "nope")
	assert.Error(t, err)

	_, err = run(t, "--host", "local", "eval", "qnorm_log")
	assert.Error(t, err)

	_, err = run(t, "--host", "local", "eval", "log_determinant", "1,2;3")
	assert.Error(t, err)
}

func TestParseMatrix(t *testing.T) {
	m, err := parseMatrix(" 1, 2 ; 3,4")
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 3.0, m.At(1, 0))
}

func TestDeclare(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "extdiff.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("host:\n  kind: local\nbuild:\n  libs: [R]\n"), 0o600))

	out, err := run(t, "--config", cfg, "declare", "--user-header", "external.hpp")
	require.NoError(t, err)
	assert.Contains(t, out, "  real qt_log(real log_p, data real nu);\n")
	assert.Contains(t, out, "STANCFLAGS += --allow-undefined\n")
	assert.Contains(t, out, "USER_HEADER = external.hpp\n")
	assert.Contains(t, out, "LDLIBS += -lR\n")
}

func TestDeclare_Source(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.stan")
	require.NoError(t, os.WriteFile(model, []byte("functions {\n  real mystery(real x);\n}\n"), 0o600))

	_, err := run(t, "declare", "--source", model)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(model, []byte("functions {\n  real qnorm_log(real lp);\n}\n"), 0o600))
	_, err = run(t, "declare", "--source", model)
	assert.NoError(t, err)
}

func TestBadHostKind(t *testing.T) {
	_, err := run(t, "--host", "fortran", "version")
	assert.Error(t, err)
}
