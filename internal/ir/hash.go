package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Domain prefixes for every hash the core records.
// Version suffix enables future algorithm migration.
const (
	DomainAccount    = "shardstate/account/v1"
	DomainTx         = "shardstate/tx/v1"
	DomainEmptyState = "shardstate/empty/v1"
)

// Supported hash algorithm names, as they appear in configuration.
const (
	HashSHA256 = "sha256"
	HashBlake3 = "blake3"
)

// EmptyStateHash is the stateBefore recorded for an account that did not
// exist before the transaction that created it. It is fixed regardless of the
// configured Hasher so ledgers stay comparable across deployments.
var EmptyStateHash = SHA256Hasher{}.Sum(DomainEmptyState, nil)

// Hasher computes domain-separated content hashes.
// Format: H(domain + 0x00 + data), hex encoded.
// The null byte separator prevents domain/data boundary ambiguity.
type Hasher interface {
	Name() string
	Sum(domain string, data []byte) string
}

// SHA256Hasher is the default Hasher.
type SHA256Hasher struct{}

func (SHA256Hasher) Name() string { return HashSHA256 }

func (SHA256Hasher) Sum(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Blake3Hasher produces 256-bit BLAKE3 digests.
type Blake3Hasher struct{}

func (Blake3Hasher) Name() string { return HashBlake3 }

func (Blake3Hasher) Sum(domain string, data []byte) string {
	h := blake3.New(32, nil)
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NewHasher resolves a configured algorithm name.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HashSHA256:
		return SHA256Hasher{}, nil
	case HashBlake3:
		return Blake3Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", name)
	}
}

// AccountHash hashes the canonical form of account data.
// A nil or empty object hashes like {} so that a created-but-empty account
// is distinguishable from EmptyStateHash.
func AccountHash(h Hasher, data IRObject) (string, error) {
	if data == nil {
		data = IRObject{}
	}
	canonical, err := MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("AccountHash: failed to marshal: %w", err)
	}
	return h.Sum(DomainAccount, canonical), nil
}

// TxHash is the content-addressed identity of a transaction.
func TxHash(h Hasher, tx Tx) string {
	return h.Sum(DomainTx, tx.canonical)
}
