// Package config builds the single immutable Config value a process runs with.
//
// A Config is assembled once at startup from defaults, YAML files and
// environment expansion, validated, and then passed by value into every
// component constructor. Nothing reads configuration from package state.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	uconfig "go.uber.org/config"

	"github.com/roach88/shardstate/internal/ir"
)

// ErrInvalidCfg indicates a configuration value that cannot be used.
var ErrInvalidCfg = errors.New("invalid config value")

type (
	// Config is the root configuration.
	Config struct {
		Store        Store        `yaml:"store" json:"store"`
		StateManager StateManager `yaml:"stateManager" json:"stateManager"`
		Debug        Debug        `yaml:"debug" json:"debug"`
		Crypto       Crypto       `yaml:"crypto" json:"crypto"`
		Apply        Apply        `yaml:"apply" json:"apply"`
		Sync         Sync         `yaml:"sync" json:"sync"`
		Log          Log          `yaml:"log" json:"log"`
	}

	// Store locates the SQLite database.
	Store struct {
		Path string `yaml:"path" json:"path"`
	}

	// StateManager bounds range-query page sizes.
	StateManager struct {
		StateTableBucketSize int `yaml:"stateTableBucketSize" json:"stateTableBucketSize"`
		AccountBucketSize    int `yaml:"accountBucketSize" json:"accountBucketSize"`
	}

	// Debug holds fault-injection knobs. Chances are probabilities in [0, 1].
	Debug struct {
		LoseTxChance         float64 `yaml:"loseTxChance" json:"loseTxChance"`
		FailReceiptChance    float64 `yaml:"failReceiptChance" json:"failReceiptChance"`
		FailNoRepairTxChance float64 `yaml:"failNoRepairTxChance" json:"failNoRepairTxChance"`
		VoteFlipChance       float64 `yaml:"voteFlipChance" json:"voteFlipChance"`
		IgnoreVoteChance     float64 `yaml:"ignoreVoteChance" json:"ignoreVoteChance"`
		IgnoreReceiptChance  float64 `yaml:"ignoreReceiptChance" json:"ignoreReceiptChance"`
		DebugNoTxVoting      bool    `yaml:"debugNoTxVoting" json:"debugNoTxVoting"`
		Seed                 int64   `yaml:"seed" json:"seed"`
	}

	// Crypto selects the account hash algorithm.
	Crypto struct {
		HashAlgorithm string `yaml:"hashAlgorithm" json:"hashAlgorithm"`
	}

	// Apply tunes the orchestrator.
	Apply struct {
		Workers      int           `yaml:"workers" json:"workers"`
		LeaseTimeout time.Duration `yaml:"leaseTimeout" json:"leaseTimeout"`
	}

	// Sync configures the account sync surface.
	Sync struct {
		SnapshotPath    string        `yaml:"snapshotPath" json:"snapshotPath"`
		MaxRetries      uint64        `yaml:"maxRetries" json:"maxRetries"`
		InitialInterval time.Duration `yaml:"initialInterval" json:"initialInterval"`
		MaxInterval     time.Duration `yaml:"maxInterval" json:"maxInterval"`
	}

	// Log configures the process logger.
	Log struct {
		Level      string `yaml:"level" json:"level"`
		Encoding   string `yaml:"encoding" json:"encoding"`
		File       string `yaml:"file" json:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	}

	// Validate is the signature of a config validation function.
	Validate func(Config) error
)

var (
	// Default is the configuration every file overrides.
	Default = Config{
		Store: Store{
			Path: "shardstate.db",
		},
		StateManager: StateManager{
			StateTableBucketSize: 500,
			AccountBucketSize:    200,
		},
		Crypto: Crypto{
			HashAlgorithm: ir.HashSHA256,
		},
		Apply: Apply{
			Workers:      4,
			LeaseTimeout: 30 * time.Second,
		},
		Sync: Sync{
			MaxRetries:      5,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Log: Log{
			Level:      "info",
			Encoding:   "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}

	// Validates is the collection of validation functions applied by New.
	Validates = []Validate{
		ValidateSchema,
		ValidateBucketSizes,
		ValidateHashAlgorithm,
	}
)

// New creates a config instance. It first loads the defaults, then every
// non-empty path in order, expanding ${VAR} references from the environment.
// By default all Validates run; pass explicit validates to replace them.
func New(configPaths []string, validates ...Validate) (Config, error) {
	opts := make([]uconfig.YAMLOption, 0, len(configPaths)+2)
	opts = append(opts, uconfig.Static(Default))
	opts = append(opts, uconfig.Expand(os.LookupEnv))
	for _, path := range configPaths {
		if path != "" {
			opts = append(opts, uconfig.File(path))
		}
	}
	yaml, err := uconfig.NewYAML(opts...)
	if err != nil {
		return Config{}, fmt.Errorf("init config: %w", err)
	}

	var cfg Config
	if err := yaml.Get(uconfig.Root).Populate(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(validates) == 0 {
		validates = Validates
	}
	for _, validate := range validates {
		if err := validate(cfg); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
	}
	return cfg, nil
}

// DoNotValidate skips validation when passed to New.
func DoNotValidate(Config) error { return nil }

// ValidateBucketSizes rejects non-positive page sizes.
func ValidateBucketSizes(cfg Config) error {
	if cfg.StateManager.AccountBucketSize <= 0 || cfg.StateManager.StateTableBucketSize <= 0 {
		return fmt.Errorf("%w: bucket sizes must be positive", ErrInvalidCfg)
	}
	return nil
}

// ValidateHashAlgorithm rejects unknown hash algorithms.
func ValidateHashAlgorithm(cfg Config) error {
	if _, err := ir.NewHasher(cfg.Crypto.HashAlgorithm); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCfg, err)
	}
	return nil
}

// Hasher returns the configured account hasher. An unknown algorithm, which
// only a config loaded with DoNotValidate can carry, is an ErrInvalidCfg.
func (c Config) Hasher() (ir.Hasher, error) {
	h, err := ir.NewHasher(c.Crypto.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCfg, err)
	}
	return h, nil
}
