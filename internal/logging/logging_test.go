package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/shardstate/internal/config"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	cfg := config.Default.Log
	cfg.Encoding = "json"
	cfg.File = path

	logger, closeFn, err := New(cfg)
	require.NoError(t, err)

	logger.Info("committed", zap.String("tx_id", "abc"))
	logger.Debug("filtered out")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "committed", entry["msg"])
	assert.Equal(t, "abc", entry["tx_id"])
	assert.NotContains(t, string(data), "filtered out")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := config.Default.Log
	cfg.Level = "loud"
	_, _, err := New(cfg)
	assert.Error(t, err)
}
