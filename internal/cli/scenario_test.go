package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

const failingScenario = `name: wrong_count
description: "Expects a post that was never made"
replicas:
  - name: a
    seed: 1
steps:
  - action: settle
assertions:
  - type: size
    replica: a
    count: 1
`

func TestScenario_SingleFileWithGolden(t *testing.T) {
	out, err := execute(t, "scenario", filepath.Join(harnessScenarios, "mention.yaml"), "--golden", harnessGolden)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ mention")
	assert.Contains(t, out, "Scenario Summary: 1 passed, 0 failed, 1 total")
}

func TestScenario_DirectoryWithFilter(t *testing.T) {
	out, err := execute(t, "scenario", harnessScenarios, "--filter", "presence*", "--format", "json")
	require.NoError(t, err)

	var summary ScenarioSummary
	assert.Equal(t, "ok", decodeData(t, out, &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	for _, s := range summary.Scenarios {
		assert.Contains(t, []string{"presence", "presence_live"}, s.Name)
	}
}

func TestScenario_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_count.yaml"), []byte(failingScenario), 0644))

	out, err := execute(t, "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_count")
	assert.Contains(t, out, "Assertion failed: size on a")
}

func TestScenario_LoadErrorIsFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := execute(t, "scenario", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var summary ScenarioSummary
	assert.Equal(t, "error", decodeData(t, out, &summary))
	require.Len(t, summary.Scenarios, 1)
	assert.Equal(t, "broken.yaml", summary.Scenarios[0].Name)
	assert.Contains(t, summary.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestScenario_UpdateThenCompare(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")
	file := filepath.Join(harnessScenarios, "like_twice.yaml")

	_, err := execute(t, "scenario", file, "--golden", golden, "--update")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(golden, "like_twice.golden"))
	require.NoError(t, err)
	committed, err := os.ReadFile(filepath.Join(harnessGolden, "like_twice.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(committed), string(written))

	_, err = execute(t, "scenario", file, "--golden", golden)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(golden, "like_twice.golden"), []byte("stale\n"), 0644))
	out, err := execute(t, "scenario", file, "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, out, "golden file mismatch")
}

func TestScenario_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing path", []string{"scenario", "does-not-exist"}, "failed to read does-not-exist"},
		{"update without golden", []string{"scenario", harnessScenarios, "--update"}, "--update requires --golden"},
		{"bad filter", []string{"scenario", harnessScenarios, "--filter", "["}, "invalid filter pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScenario_NoneFound(t *testing.T) {
	out, err := execute(t, "scenario", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
