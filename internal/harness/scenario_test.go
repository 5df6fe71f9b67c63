package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One transfer"
genesis:
  - account: alice
    balance: "10"
steps:
  - tx: { txnType: transfer, srcAct: alice, tgtAct: bob, txnAmt: "1" }
    expect: committed
assertions:
  - type: balance
    account: bob
    expect: "1"
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, []GenesisAccount{{Account: "alice", Balance: "10"}}, scenario.Genesis)
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, "transfer", scenario.Steps[0].Tx["txnType"])
	assert.Equal(t, "committed", scenario.Steps[0].Expect)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nsteps: [{tx: {a: 1}}]\nassertions: [{type: chain_intact}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing steps",
			content: "name: n\ndescription: d\nassertions: [{type: chain_intact}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "missing assertions",
			content: "name: n\ndescription: d\nsteps: [{tx: {a: 1}}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown hash",
			content: "name: n\ndescription: d\nhash: md5\nsteps: [{tx: {a: 1}}]\nassertions: [{type: chain_intact}]\n",
			wantErr: "unknown hash algorithm",
		},
		{
			name:    "duplicate genesis",
			content: "name: n\ndescription: d\ngenesis: [{account: a, balance: '1'}, {account: a, balance: '2'}]\nsteps: [{tx: {a: 1}}]\nassertions: [{type: chain_intact}]\n",
			wantErr: "duplicate account",
		},
		{
			name:    "unknown knob",
			content: "name: n\ndescription: d\nfaults: {explode: [true]}\nsteps: [{tx: {a: 1}}]\nassertions: [{type: chain_intact}]\n",
			wantErr: "unknown knob",
		},
		{
			name:    "empty tx",
			content: "name: n\ndescription: d\nsteps: [{verdict: pass}]\nassertions: [{type: chain_intact}]\n",
			wantErr: "steps[0]: tx is required",
		},
		{
			name:    "unknown verdict",
			content: "name: n\ndescription: d\nsteps: [{tx: {a: 1}, verdict: maybe}]\nassertions: [{type: chain_intact}]\n",
			wantErr: "unknown verdict",
		},
		{
			name:    "unknown status",
			content: "name: n\ndescription: d\nsteps: [{tx: {a: 1}, expect: done}]\nassertions: [{type: chain_intact}]\n",
			wantErr: "unknown expected status",
		},
		{
			name:    "balance without account",
			content: "name: n\ndescription: d\nsteps: [{tx: {a: 1}}]\nassertions: [{type: balance, expect: '1'}]\n",
			wantErr: "account and expect are required",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nsteps: [{tx: {a: 1}}]\nassertions: [{type: trace_order}]\n",
			wantErr: "unknown assertion type",
		},
		{
			name:    "bad receipt verdict",
			content: "name: n\ndescription: d\nsteps: [{tx: {a: 1}}]\nassertions: [{type: receipts, verdict: maybe}]\n",
			wantErr: "unknown receipt verdict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_Testdata(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "faults", scenarios[0].Name)
	assert.Equal(t, "transfers", scenarios[1].Name)
}

func TestLoadScenarios_ReportsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(minimalScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("name: broken\n"), 0644))

	_, err := LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.yaml")
}
