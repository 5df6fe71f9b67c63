package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsList(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--db", db, "accounts", "list")
	require.NoError(t, err)
	lines := nonEmptyLines(out)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "alice balance=60")
	assert.Contains(t, lines[1], "bob balance=40")
	assert.Contains(t, lines[2], "dave balance=12")

	out, err = execute(t, "--db", db, "accounts", "list", "--limit", "2")
	require.NoError(t, err)
	lines = nonEmptyLines(out)
	require.Len(t, lines, 3)
	assert.Equal(t, `... more accounts from "bob\x00"`, lines[2])

	out, err = execute(t, "--db", db, "accounts", "list", "--start", "c")
	require.NoError(t, err)
	lines = nonEmptyLines(out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "dave")
}

func TestAccountsList_JSON(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--db", db, "--format", "json", "accounts", "list", "--end", "b")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Accounts []struct {
				AccountID string         `json:"account_id"`
				Data      map[string]any `json:"data"`
			} `json:"accounts"`
			More bool `json:"more"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Accounts, 1)
	assert.Equal(t, "alice", resp.Data.Accounts[0].AccountID)
	assert.False(t, resp.Data.More)
}

func TestAccountsSummary(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--db", db, "accounts", "summary")
	require.NoError(t, err)
	assert.Equal(t, "accounts: 3\ntotalBalance: 112\n", out)

	out, err = execute(t, "--db", db, "--format", "json", "accounts", "summary")
	require.NoError(t, err)
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]any{"accounts": float64(3), "totalBalance": "112"}, resp.Data)
}

func TestAccountsSummary_MissingDatabase(t *testing.T) {
	_, err := execute(t, "--db", filepath.Join(t.TempDir(), "none.db"), "accounts", "summary")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestAccountsExportImport(t *testing.T) {
	db := seedDB(t)
	archive := filepath.Join(t.TempDir(), "snapshots.bolt")

	out, err := execute(t, "--db", db, "accounts", "export", "7", "--snapshot", archive)
	require.NoError(t, err)
	assert.Equal(t, "✓ exported 3 account(s) for cycle 7\n", out)

	out, err = execute(t, "accounts", "cycles", "--snapshot", archive)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	fresh := filepath.Join(t.TempDir(), "fresh.db")
	out, err = execute(t, "--db", fresh, "accounts", "import", "7", "--snapshot", archive)
	require.NoError(t, err)
	assert.Equal(t, "✓ imported 3 account(s) for cycle 7\n", out)

	out, err = execute(t, "--db", fresh, "accounts", "list")
	require.NoError(t, err)
	assert.Len(t, nonEmptyLines(out), 3)

	_, err = execute(t, "--db", fresh, "ledger", "verify")
	require.NoError(t, err)

	out, err = execute(t, "--db", fresh, "--format", "json", "accounts", "import", "7", "--snapshot", archive)
	require.NoError(t, err)
	var resp struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]int{"cycle": 7, "imported": 3}, resp.Data)
}

func TestAccountsImport_UnknownCycle(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "snapshots.bolt")
	db := filepath.Join(t.TempDir(), "node.db")

	_, err := execute(t, "--db", db, "accounts", "import", "3", "--snapshot", archive)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "import failed")
}

func TestAccountsExport_NeedsArchive(t *testing.T) {
	db := seedDB(t)

	_, err := execute(t, "--db", db, "accounts", "export", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no snapshot archive")
}

func TestAccountsExport_BadCycle(t *testing.T) {
	_, err := execute(t, "accounts", "export", "seven", "--snapshot", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid cycle number")
}
