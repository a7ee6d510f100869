package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: reuse
description: freed ids come back lowest first
items_per_page: 4
steps:
  - op: allocate
    count: 3
  - op: free
    ids: [1]
  - op: allocate
    expect_ids: [1]
assertions:
  - type: active
    ids: [0, 1, 2]
  - type: invariants
`

const failingScenario = `
name: wrong
description: expects the wrong page count
items_per_page: 4
steps:
  - op: allocate
    count: 5
assertions:
  - type: page_count
    count: 1
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, _, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	out, _, err = execute(t, "test", t.TempDir(), "--format", "json")
	require.NoError(t, err)
	_, result := decodeData[TestResult](t, out)
	assert.Zero(t, result.Total)
	assert.NotNil(t, result.Scenarios)
}

func TestTestCommandPassAndFail(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reuse.yaml"), passingScenario)
	writeFile(t, filepath.Join(dir, "wrong.yml"), failingScenario)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	out, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ reuse")
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "assertion failed: page_count")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")

	out, _, err = execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	resp, result := decodeData[TestResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reuse.yaml"), passingScenario)
	writeFile(t, filepath.Join(dir, "wrong.yaml"), failingScenario)

	out, _, err := execute(t, "test", dir, "--filter", "re*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	_, _, err = execute(t, "test", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.yaml"), "name: broken\n")

	out, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reuse.yaml"), passingScenario)
	goldenPath := filepath.Join(dir, "golden", "reuse.golden")

	_, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"reuse"`)
	assert.Contains(t, string(golden), `{"active":2,"id":1,"ok":true,"op":"free","pages":1,"seq":4}`)

	out, _, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ reuse")

	writeFile(t, goldenPath, `{"scenario_name":"reuse","trace":[]}`)
	out, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "reuse.golden"),
		goldenFilePath(filepath.Join("scenarios", "reuse.yaml")))
}
