package cli

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/roach88/shardstate/internal/accountsync"
	"github.com/roach88/shardstate/internal/bankapp"
	"github.com/roach88/shardstate/internal/config"
	"github.com/roach88/shardstate/internal/lease"
	"github.com/roach88/shardstate/internal/ledger"
	"github.com/roach88/shardstate/internal/logging"
	"github.com/roach88/shardstate/internal/snapshot"
	"github.com/roach88/shardstate/internal/store"
)

// loadConfig builds the effective config from --config, --db and --verbose.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.New([]string{opts.ConfigPath})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger, or a no-op one if that fails.
func newLogger(cfg config.Config) (*zap.Logger, func() error) {
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return zap.NewNop(), func() error { return nil }
	}
	return logger, closer
}

// node is one opened store with the components commands work through.
type node struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *store.Store
	ledger  *ledger.Ledger
	bank    *bankapp.App
	sync    *accountsync.Service
	archive *snapshot.Archive
	closers []func() error
}

type nodeOptions struct {
	// requireDB refuses to create a database that does not exist yet.
	requireDB bool
	// snapshotPath opens the archive; empty falls back to sync.snapshotPath.
	snapshotPath string
	archive      bool
}

func openNode(opts *RootOptions, nopts nodeOptions) (*node, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if nopts.requireDB {
		if _, err := os.Stat(cfg.Store.Path); errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.Store.Path))
		}
	}

	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	n := &node{cfg: cfg}
	var closeLog func() error
	n.logger, closeLog = newLogger(cfg)
	n.closers = append(n.closers, closeLog)

	n.store, err = store.Open(cfg.Store.Path)
	if err != nil {
		n.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	n.closers = append(n.closers, n.store.Close)

	syncOpts := []accountsync.Option{accountsync.WithConfig(cfg), accountsync.WithLogger(n.logger)}
	if nopts.archive {
		n.archive, err = openArchive(cfg, nopts.snapshotPath)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.closers = append(n.closers, n.archive.Close)
		syncOpts = append(syncOpts, accountsync.WithArchive(n.archive))
	}

	n.bank = bankapp.New(hasher)
	n.ledger = ledger.New(n.store, ledger.WithLogger(n.logger))
	leases := lease.NewManager(lease.WithLogger(n.logger))
	n.sync = accountsync.New(n.bank, n.store, n.ledger, leases, syncOpts...)
	n.closers = append(n.closers, n.sync.Close)
	return n, nil
}

// openArchive opens the snapshot archive at path, or at sync.snapshotPath
// when path is empty.
func openArchive(cfg config.Config, path string) (*snapshot.Archive, error) {
	if path == "" {
		path = cfg.Sync.SnapshotPath
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no snapshot archive: set sync.snapshotPath or --snapshot")
	}
	archive, err := snapshot.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open snapshot archive", err)
	}
	return archive, nil
}

// Close releases everything in reverse order of opening.
func (n *node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			n.logger.Warn("close failed", zap.Error(err))
		}
	}
	n.closers = nil
}
