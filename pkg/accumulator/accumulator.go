// Copyright 2025 Certen Protocol
//
// Record Accumulator
// Append-only ternary Merkle tree over output record commitments.
//
// The tree never holds its full leaf set in memory. Instead it keeps a
// "frontier" — the minimal per-level state needed to append further
// leaves and to recompute the current root — per the incremental/online
// Merkle tree construction (each level buffers up to arity-1 completed
// siblings; an empty position is always provably a fixed per-level zero
// value, since insertion is strictly left to right).

package accumulator

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Hasher combines a node's children into its parent hash. The real CAPE
// hash function (Rescue) is an external collaborator (see spec.md §1); this
// package is parameterized over it and defaults to SHA-256.
type Hasher func(children [][]byte) []byte

// DefaultHasher hashes the concatenation of all children with SHA-256.
func DefaultHasher(children [][]byte) []byte {
	h := sha256.New()
	for _, c := range children {
		h.Write(c)
	}
	sum := h.Sum(nil)
	return sum[:]
}

var (
	// ErrBadFrontier is returned when a frontier's internal structure is
	// malformed (a level buffer holds arity or more entries, an entry of the
	// wrong width, or a level count that does not match the height). Mirrors spec.md §4.1: "If
	// extending from a given frontier fails (malformed frontier), the
	// operation is rejected with BadMerklePath."
	ErrBadFrontier = errors.New("accumulator: malformed frontier")
	// ErrTreeFull is returned when an append would exceed the tree's
	// fixed capacity (arity^height leaves).
	ErrTreeFull = errors.New("accumulator: tree is full")
	// ErrLeafWidth is returned when a leaf is not exactly 32 bytes.
	ErrLeafWidth = errors.New("accumulator: leaf must be 32 bytes")
)

const leafWidth = 32

// Commitment is the publicly observable state of the tree: its current
// root and leaf count, at a fixed height.
type Commitment struct {
	Root   [32]byte
	Count  uint64
	Height uint8
}

// Frontier is the rightmost-path state of the tree — sufficient to append
// new leaves without holding any other part of the tree.
type Frontier struct {
	arity  int
	height uint8
	hasher Hasher
	zeros  [][]byte   // zeros[l] is the root of an empty subtree of height l
	levels [][][]byte // levels[l] holds the 0..arity-1 completed children pending combination at level l
	count  uint64
}

// New builds an empty frontier for the given arity and height.
func New(arity int, height uint8, hasher Hasher) *Frontier {
	if hasher == nil {
		hasher = DefaultHasher
	}
	zeros := make([][]byte, height+1)
	zeros[0] = make([]byte, leafWidth)
	for l := 1; l <= int(height); l++ {
		children := make([][]byte, arity)
		for i := range children {
			children[i] = zeros[l-1]
		}
		zeros[l] = hasher(children)
	}
	return &Frontier{
		arity:  arity,
		height: height,
		hasher: hasher,
		zeros:  zeros,
		levels: make([][][]byte, height),
	}
}

// Validate checks the frontier's internal invariants: every level buffer
// must hold strictly fewer than `arity` entries (a full buffer should
// already have been combined and promoted), and every stored hash must be
// 32 bytes wide.
func (f *Frontier) Validate() error {
	if len(f.levels) != int(f.height) {
		return fmt.Errorf("%w: expected %d levels, got %d", ErrBadFrontier, f.height, len(f.levels))
	}
	for l, buf := range f.levels {
		if len(buf) >= f.arity {
			return fmt.Errorf("%w: level %d holds %d/%d children", ErrBadFrontier, l, len(buf), f.arity)
		}
		for _, h := range buf {
			if len(h) != leafWidth {
				return fmt.Errorf("%w: level %d entry has %d bytes", ErrBadFrontier, l, len(h))
			}
		}
	}
	return nil
}

// Clone returns a deep copy, so a caller can attempt a mutation and
// discard it on failure without touching the original.
func (f *Frontier) Clone() *Frontier {
	levels := make([][][]byte, len(f.levels))
	for l, buf := range f.levels {
		nb := make([][]byte, len(buf))
		for i, h := range buf {
			cp := make([]byte, len(h))
			copy(cp, h)
			nb[i] = cp
		}
		levels[l] = nb
	}
	return &Frontier{
		arity:  f.arity,
		height: f.height,
		hasher: f.hasher,
		zeros:  f.zeros, // immutable, safe to share
		levels: levels,
		count:  f.count,
	}
}

// Count returns the number of leaves appended so far.
func (f *Frontier) Count() uint64 { return f.count }

// Capacity returns the maximum number of leaves this tree can ever hold.
func (f *Frontier) Capacity() uint64 {
	c := uint64(1)
	for i := uint8(0); i < f.height; i++ {
		c *= uint64(f.arity)
	}
	return c
}

// Root recomputes the current root from the frontier state. Positions to
// the right of every level's buffer are provably empty (append-only,
// left-to-right insertion), so they are padded with that level's zero
// hash.
func (f *Frontier) Root() [32]byte {
	var bubbling []byte // the as-yet-uncombined subtree rooted just past the last full buffer entry
	for l := 0; l < int(f.height); l++ {
		buf := f.levels[l]
		children := make([][]byte, f.arity)
		idx := 0
		for ; idx < len(buf); idx++ {
			children[idx] = buf[idx]
		}
		if bubbling != nil {
			children[idx] = bubbling
			idx++
		}
		for ; idx < f.arity; idx++ {
			children[idx] = f.zeros[l]
		}
		bubbling = f.hasher(children)
	}
	var root [32]byte
	if bubbling == nil {
		copy(root[:], f.zeros[f.height])
	} else {
		copy(root[:], bubbling)
	}
	return root
}

// Commitment returns the current (root, count, height) tuple.
func (f *Frontier) Commitment() Commitment {
	return Commitment{Root: f.Root(), Count: f.count, Height: f.height}
}

// Append inserts a single leaf, bubbling completed groups of `arity`
// children up through the levels.
func (f *Frontier) Append(leaf []byte) error {
	if len(leaf) != leafWidth {
		return ErrLeafWidth
	}
	if f.count >= f.Capacity() {
		return ErrTreeFull
	}
	cur := make([]byte, leafWidth)
	copy(cur, leaf)
	for l := 0; l < int(f.height); l++ {
		f.levels[l] = append(f.levels[l], cur)
		if len(f.levels[l]) < f.arity {
			f.count++
			return nil
		}
		cur = f.hasher(f.levels[l])
		f.levels[l] = nil
	}
	// A full group bubbled all the way past the top level: the tree is at
	// capacity after this leaf (Capacity() forbids any further overflow).
	f.count++
	return nil
}

// Extend is the `merkle_append` oracle from spec.md §6: it appends a
// sequence of leaves in order and returns the resulting frontier and
// commitment. On any failure the original frontier is left untouched.
func Extend(frontier *Frontier, leaves [][]byte) (*Frontier, Commitment, error) {
	if err := frontier.Validate(); err != nil {
		return nil, Commitment{}, err
	}
	next := frontier.Clone()
	for _, leaf := range leaves {
		if err := next.Append(leaf); err != nil {
			return nil, Commitment{}, err
		}
	}
	return next, next.Commitment(), nil
}
