package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessData = "../harness/testdata"

// copyFile copies src into dir/name and returns the new path.
func copyFile(t *testing.T, src, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	dst := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(dst, data, 0644))
	return dst
}

const overdraftScenario = `name: overdraft
description: "expects a commit the bank refuses"
genesis:
  - account: alice
    balance: "1"
steps:
  - tx: { txnType: transfer, srcAct: alice, tgtAct: bob, txnAmt: "4" }
    expect: committed
assertions:
  - type: chain_intact
`

func TestApply_SingleFile(t *testing.T) {
	out, err := execute(t, "apply", filepath.Join(harnessData, "scenarios", "transfers.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ transfers")
	assert.Contains(t, out, "Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestApply_GoldenMatch(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, filepath.Join(harnessData, "scenarios", "faults.yaml"), dir, "faults.yaml")
	copyFile(t, filepath.Join(harnessData, "golden", "faults.golden"), filepath.Join(dir, "golden"), "faults.golden")

	out, err := execute(t, "apply", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ faults")
}

func TestApply_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, filepath.Join(harnessData, "scenarios", "transfers.yaml"), dir, "transfers.yaml")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "transfers.golden"), []byte("{}"), 0644))

	out, err := execute(t, "apply", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestApply_UpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, filepath.Join(harnessData, "scenarios", "transfers.yaml"), dir, "transfers.yaml")

	out, err := execute(t, "apply", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	written, err := os.ReadFile(filepath.Join(dir, "golden", "transfers.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(harnessData, "golden", "transfers.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	_, err = execute(t, "apply", dir)
	require.NoError(t, err)
}

func TestApply_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overdraft.yaml"), []byte(overdraftScenario), 0644))

	out, err := execute(t, "--format", "json", "apply", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   ApplyResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "overdraft", resp.Data.Scenarios[0].Name)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestApply_Filter(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, filepath.Join(harnessData, "scenarios", "transfers.yaml"), dir, "transfers.yaml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overdraft.yaml"), []byte(overdraftScenario), 0644))

	out, err := execute(t, "apply", dir, "--filter", "trans*")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary: 1 passed, 0 failed, 1 total")
}

func TestApply_EmptyDirectory(t *testing.T) {
	out, err := execute(t, "apply", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestApply_MissingPath(t *testing.T) {
	_, err := execute(t, "apply", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "golden", "b.golden"), goldenFilePath(filepath.Join("a", "b.yaml")))
}
