// Copyright 2025 Certen Protocol
//
// NullifierSet
// Membership and insertion over the ledger's set of spent nullifiers
// (spec.md §4.2). Checked twice per transaction during validation: once in
// a non-fatal filter pass, once in a fatal per-tx apply pass — both calls
// live in pkg/validator; this package only holds the set itself.

package nullifier

import (
	"errors"

	"github.com/cape-protocol/cape-validator/pkg/capetypes"
)

// ErrAlreadyExists is returned by Insert when the nullifier is already a
// member of the set.
var ErrAlreadyExists = errors.New("nullifier: already exists")

// Set is a spent-nullifier membership set. Once inserted, a nullifier is
// never removed (spec.md invariant 1).
type Set struct {
	members map[capetypes.Nullifier]struct{}
}

// New returns an empty set.
func New() *Set {
	return &Set{members: make(map[capetypes.Nullifier]struct{})}
}

// Contains reports whether n has already been spent.
func (s *Set) Contains(n capetypes.Nullifier) bool {
	_, ok := s.members[n]
	return ok
}

// Insert records n as spent, or returns ErrAlreadyExists if it was already a
// member.
func (s *Set) Insert(n capetypes.Nullifier) error {
	if s.Contains(n) {
		return ErrAlreadyExists
	}
	s.members[n] = struct{}{}
	return nil
}

// Len returns the number of spent nullifiers recorded.
func (s *Set) Len() int { return len(s.members) }

// Clone returns a deep copy, so a caller can attempt a batch of inserts and
// discard them all on failure without mutating the original.
func (s *Set) Clone() *Set {
	cp := make(map[capetypes.Nullifier]struct{}, len(s.members))
	for k := range s.members {
		cp[k] = struct{}{}
	}
	return &Set{members: cp}
}

// IntersectsAny reports whether any of ns is already a member — the
// non-fatal filter-pass test from spec.md §4.5 step 2.
func (s *Set) IntersectsAny(ns []capetypes.Nullifier) bool {
	for _, n := range ns {
		if s.Contains(n) {
			return true
		}
	}
	return false
}
