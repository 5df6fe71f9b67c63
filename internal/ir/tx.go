package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tx is the sealed handle for an application transaction.
//
// The core never looks inside a transaction. It hands the Tx to application
// hooks and to hashing, nothing else. The payload is fixed at construction:
// Payload returns a copy, so no caller can change what another caller sees.
type Tx struct {
	payload   IRObject
	canonical []byte
}

// NewTx seals a payload. The payload must be canonically encodable.
func NewTx(payload IRObject) (Tx, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return Tx{}, fmt.Errorf("seal tx: %w", err)
	}
	return Tx{payload: payload.Clone(), canonical: canonical}, nil
}

// MustTx is like NewTx but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTx(payload IRObject) Tx {
	tx, err := NewTx(payload)
	if err != nil {
		panic(err)
	}
	return tx
}

// Payload returns a private copy of the transaction body.
func (t Tx) Payload() IRObject {
	return t.payload.Clone()
}

// Bytes returns the canonical encoding of the payload.
func (t Tx) Bytes() []byte {
	return bytes.Clone(t.canonical)
}

// IsZero reports whether t was never sealed.
func (t Tx) IsZero() bool {
	return t.canonical == nil
}

// MarshalJSON writes the canonical payload.
func (t Tx) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return t.Bytes(), nil
}

// UnmarshalJSON seals the decoded payload.
func (t *Tx) UnmarshalJSON(data []byte) error {
	var obj IRObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode tx: %w", err)
	}
	sealed, err := NewTx(obj)
	if err != nil {
		return err
	}
	*t = sealed
	return nil
}
