package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shardstate/internal/harness"
	"github.com/roach88/shardstate/internal/store"
)

// seedDB runs the transfers scenario into a fresh database and returns its path.
// Afterwards alice holds 60, bob 40 and dave 12, with six committed entries.
func seedDB(t *testing.T) string {
	t.Helper()
	scenario, err := harness.LoadScenario(filepath.Join(harnessData, "scenarios", "transfers.yaml"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "node.db")
	result, err := harness.Run(context.Background(), scenario, harness.WithStorePath(path))
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)
	return path
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestLedgerVerify_Intact(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--db", db, "ledger", "verify")
	require.NoError(t, err)
	assert.Equal(t, "✓ 3 account(s) verified, chain intact\n", out)

	out, err = execute(t, "--db", db, "ledger", "verify", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 account(s) verified")
}

func TestLedgerVerify_ReportsTamperedAccount(t *testing.T) {
	db := seedDB(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.Exec(context.Background(), `UPDATE accounts SET hash = 'tampered' WHERE account_id = 'bob'`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "--db", db, "ledger", "verify")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 chain gap(s) found")
	assert.Contains(t, out, "✗ bob: tail_mismatch")
	assert.Contains(t, out, "found tampered")

	out, err = execute(t, "--db", db, "--format", "json", "ledger", "verify")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_CHAIN_GAP", resp.Error.Code)
}

func TestLedgerVerify_MissingDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing.db")
	_, err := execute(t, "--db", db, "ledger", "verify")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestLedgerShow(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--db", db, "ledger", "show")
	require.NoError(t, err)
	assert.Len(t, nonEmptyLines(out), 6)

	out, err = execute(t, "--db", db, "ledger", "show", "alice")
	require.NoError(t, err)
	lines := nonEmptyLines(out)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "alice")

	out, err = execute(t, "--db", db, "ledger", "show", "carol")
	require.NoError(t, err)
	assert.Equal(t, "No entries.\n", out)

	out, err = execute(t, "--db", db, "ledger", "show", "--limit", "2")
	require.NoError(t, err)
	assert.Len(t, nonEmptyLines(out), 2)
}

func TestLedgerShow_ByTxJSON(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--db", db, "--format", "json", "ledger", "show", "alice")
	require.NoError(t, err)
	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			AccountID string `json:"account_id"`
			TxID      string `json:"tx_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	txID := resp.Data[0].TxID
	require.NotEmpty(t, txID)

	out, err = execute(t, "--db", db, "--format", "json", "ledger", "show", "--tx", txID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data)
	for _, e := range resp.Data {
		assert.Equal(t, txID, e.TxID)
	}
}

func TestLedgerShow_AccountAndTxConflict(t *testing.T) {
	_, err := execute(t, "ledger", "show", "alice", "--tx", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
