package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountHashDeterminism(t *testing.T) {
	data := IRObject{"balance": IRString("100"), "owner": IRString("alice")}

	h1, err := AccountHash(SHA256Hasher{}, data)
	require.NoError(t, err)
	h2, err := AccountHash(SHA256Hasher{}, IRObject{"owner": IRString("alice"), "balance": IRString("100")})
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "key order must not affect the hash")
	assert.Len(t, h1, 64)
}

func TestAccountHashChangesWithData(t *testing.T) {
	h1, err := AccountHash(SHA256Hasher{}, IRObject{"balance": IRString("100")})
	require.NoError(t, err)
	h2, err := AccountHash(SHA256Hasher{}, IRObject{"balance": IRString("101")})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestAccountHashNilEqualsEmpty(t *testing.T) {
	h1, err := AccountHash(SHA256Hasher{}, nil)
	require.NoError(t, err)
	h2, err := AccountHash(SHA256Hasher{}, IRObject{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, EmptyStateHash, h1)
}

func TestAccountHashRejectsNull(t *testing.T) {
	_, err := AccountHash(SHA256Hasher{}, IRObject{"n": IRNull{}})
	assert.Error(t, err)
}

func TestHasherNullSeparator(t *testing.T) {
	sum := sha256.Sum256([]byte("d\x00payload"))
	assert.Equal(t, hex.EncodeToString(sum[:]), SHA256Hasher{}.Sum("d", []byte("payload")))

	// Moving bytes across the boundary must change the hash.
	assert.NotEqual(t,
		SHA256Hasher{}.Sum("ab", []byte("c")),
		SHA256Hasher{}.Sum("a", []byte("bc")))
}

func TestBlake3HasherDiffersFromSHA256(t *testing.T) {
	b := Blake3Hasher{}.Sum(DomainAccount, []byte("{}"))
	s := SHA256Hasher{}.Sum(DomainAccount, []byte("{}"))
	assert.Len(t, b, 64)
	assert.NotEqual(t, s, b)
	assert.Equal(t, b, Blake3Hasher{}.Sum(DomainAccount, []byte("{}")))
}

func TestNewHasher(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", HashSHA256, false},
		{"sha256", HashSHA256, false},
		{"blake3", HashBlake3, false},
		{"md5", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHasher(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Name())
		})
	}
}

func TestDomainSeparationPreventsCrossTypeCollision(t *testing.T) {
	payload := IRObject{"k": IRString("v")}
	tx := MustTx(payload)
	acct, err := AccountHash(SHA256Hasher{}, payload)
	require.NoError(t, err)
	assert.NotEqual(t, acct, TxHash(SHA256Hasher{}, tx))
}
