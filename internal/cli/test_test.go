package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommand_Passes(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios")
	require.NoError(t, err)

	assert.Contains(t, out, "total_count")
	assert.Contains(t, out, "good_price")
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", "testdata/scenarios", "--filter", "total_*")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	result := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), result["total"])
	assert.Equal(t, float64(1), result["passed"])
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// writeScenario writes a plan-only scenario into dir against the test
// catalog.
func writeScenario(t *testing.T, dir, name, contains string) {
	t.Helper()
	sources, err := filepath.Abs("testdata/sources.yaml")
	require.NoError(t, err)
	body := "name: " + name + "\n" +
		"sources:\n  - " + sources + "\n" +
		"expression:\n" +
		"  op: chain\n" +
		"  expression: {op: ref, name: diamonds}\n" +
		"  actions:\n" +
		"    - action: count\n" +
		"assertions:\n" +
		"  - type: sql_contains\n" +
		"    contains: [\"" + contains + "\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0644))
}

func TestTestCommand_Golden(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "count", "COUNT(*)")

	_, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)

	golden := filepath.Join(dir, "golden", "count.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"count"`)

	_, err = execute(t, "test", dir)
	require.NoError(t, err, "matching golden file passes")

	require.NoError(t, os.WriteFile(golden, []byte(`{"queries":[]}`), 0644))
	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong", "GROUP BY")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}
