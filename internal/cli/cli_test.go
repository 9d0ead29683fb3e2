package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vk/slogxml/internal/testutil"
)

const document = `
<Logging>
  <Using>console</Using>
  <LevelSwitches><Switch Name="$ui" Level="Error"/></LevelSwitches>
  <MinimumLevel ControlledBy="$ui"/>
  <WriteTo><Console formatter="Formatters::Json"/></WriteTo>
</Logging>`

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, diag := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	err := Run(context.Background(), Options{Out: out, Diag: diag}, append([]string{"slogxml"}, args...))
	return out.String(), diag.String(), err
}

func writeDocument(t *testing.T) string {
	t.Helper()
	dir := testutil.WriteFiles(t, map[string]string{"logging.xml": document})
	return filepath.Join(dir, "logging.xml")
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	return exitErr.Code
}

func TestCheck(t *testing.T) {
	out, _, err := run(t, "check", writeDocument(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Minimum level: Error\n")
	assert.Contains(t, out, "Modules: console, formatting\n")
	assert.Contains(t, out, "Level switch $ui = Error\n")
	assert.True(t, strings.HasSuffix(out, "OK\n"))
}

func TestEmit(t *testing.T) {
	path := writeDocument(t)

	out, _, err := run(t, "emit", "--level", "Warning", path, "filtered out")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = run(t, "emit", "--switch", "$ui=Debug", "-p", "user=ann", "--count", "2", "-m", "signed in", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "signed in", gjson.Get(lines[0], "msg").String())
	assert.Equal(t, "ann", gjson.Get(lines[1], "user").String())
}

func TestUsageErrors(t *testing.T) {
	path := writeDocument(t)
	testCases := []struct {
		name string
		args []string
		code int
	}{
		{"missing config", []string{"check"}, 2},
		{"bad log format", []string{"--log-format", "xml", "check", path}, 2},
		{"bad level", []string{"emit", "--level", "Loud", path, "m"}, 2},
		{"bad property", []string{"emit", "-p", "novalue", path, "m"}, 2},
		{"missing message", []string{"emit", path}, 2},
		{"unknown switch", []string{"emit", "--switch", "$nope=Debug", path, "m"}, 1},
		{"unreadable document", []string{"check", path + ".missing"}, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := run(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, tc.code, exitCode(t, err))
		})
	}
}

func TestSettingsFlagAndOverride(t *testing.T) {
	path := writeDocument(t)
	dir := testutil.WriteFiles(t, map[string]string{"settings.toml": "log-level = \"debug\"\nlog-format = \"json\"\n"})

	_, diag, err := run(t, "--settings", filepath.Join(dir, "settings.toml"), "check", path)
	require.NoError(t, err)
	assert.Contains(t, diag, `"msg":"Logging configuration applied."`)

	_, diag, err = run(t, "--settings", filepath.Join(dir, "settings.toml"), "--log-level", "error", "check", path)
	require.NoError(t, err)
	assert.Empty(t, diag)
}
