package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShow_Defaults(t *testing.T) {
	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "stateTableBucketSize: 500")
	assert.Contains(t, out, "accountBucketSize: 200")
	assert.Contains(t, out, "path: shardstate.db")
}

func TestConfigShow_FileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stateManager:\n  accountBucketSize: 25\ncrypto:\n  hashAlgorithm: blake3\n"), 0644))

	out, err := execute(t, "--config", path, "--db", "other.db", "-v", "--format", "json", "config", "show")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Store        struct{ Path string }           `json:"store"`
			StateManager struct{ AccountBucketSize int } `json:"stateManager"`
			Crypto       struct{ HashAlgorithm string }  `json:"crypto"`
			Log          struct{ Level string }          `json:"log"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "other.db", resp.Data.Store.Path)
	assert.Equal(t, 25, resp.Data.StateManager.AccountBucketSize)
	assert.Equal(t, "blake3", resp.Data.Crypto.HashAlgorithm)
	assert.Equal(t, "debug", resp.Data.Log.Level)
}

func TestConfigShow_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crypto:\n  hashAlgorithm: md5\n"), 0644))

	_, err := execute(t, "--config", path, "config", "show")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
