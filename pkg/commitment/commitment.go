// Copyright 2025 Certen Protocol
//
// Commitment hashing
// The shared SHA-256-of-concatenated-parts primitive that record
// commitments and asset codes are derived through. The real Rescue-hash domain-separated commitments are an
// external collaborator (see pkg/accumulator); this package only needs a
// concrete, deterministic stand-in shared by every call site that hashes a
// variable number of byte-string parts together.

package commitment

import "crypto/sha256"

// Hash32 hashes the concatenation of parts into a fixed 32-byte digest.
func Hash32(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
