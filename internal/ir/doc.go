// Package ir holds the value and record types shared by every other package.
//
// ir imports nothing internal. It defines the sealed IRValue types used for
// account data and transaction payloads, RFC 8785 canonical JSON, the
// domain-separated hashers, and the records that flow through an apply cycle
// (WrappedResponse, ApplyResponse, StateTableObject, AccountsCopy).
//
// Key design constraints:
//   - NO float types anywhere: hashes must be reproducible on every node
//   - All JSON tags use snake_case
//   - Tx is opaque: only application hooks see its payload
package ir
