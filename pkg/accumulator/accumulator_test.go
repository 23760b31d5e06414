package accumulator

import (
	"bytes"
	"testing"
)

func leaf(b byte) []byte {
	l := make([]byte, 32)
	l[31] = b
	return l
}

func TestEmptyRootIsDeterministic(t *testing.T) {
	a := New(3, 4, nil)
	b := New(3, 4, nil)
	if a.Root() != b.Root() {
		t.Fatalf("two empty frontiers of the same shape must share a root")
	}
}

func TestAppendChangesRootAndCount(t *testing.T) {
	f := New(3, 4, nil)
	before := f.Root()
	if err := f.Append(leaf(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1", f.Count())
	}
	if f.Root() == before {
		t.Fatalf("root did not change after append")
	}
}

func TestAppendOrderSensitive(t *testing.T) {
	f1 := New(3, 4, nil)
	f2 := New(3, 4, nil)
	f1.Append(leaf(1))
	f1.Append(leaf(2))
	f2.Append(leaf(2))
	f2.Append(leaf(1))
	if f1.Root() == f2.Root() {
		t.Fatalf("extend must be order-sensitive")
	}
}

func TestFillingALevelBubblesUp(t *testing.T) {
	f := New(3, 2, nil)
	for i := byte(1); i <= 3; i++ {
		if err := f.Append(leaf(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if f.Count() != 3 {
		t.Fatalf("count = %d, want 3", f.Count())
	}
	// Level 0's buffer should have been combined and cleared.
	if len(f.levels[0]) != 0 {
		t.Fatalf("level 0 buffer not cleared after filling: %v", f.levels[0])
	}
}

func TestExtendIsAtomicOnFailure(t *testing.T) {
	f := New(3, 1, nil) // capacity 3
	f.Append(leaf(1))
	f.Append(leaf(2))
	f.Append(leaf(3))
	before := f.Root()
	_, _, err := Extend(f, [][]byte{leaf(4)})
	if err == nil {
		t.Fatalf("expected ErrTreeFull")
	}
	if f.Root() != before {
		t.Fatalf("original frontier must be unmutated on failure")
	}
}

func TestValidateRejectsOverfullLevel(t *testing.T) {
	f := New(3, 2, nil)
	f.levels[0] = [][]byte{leaf(1), leaf(2), leaf(3)} // arity 3, should never hold 3
	if err := f.Validate(); err == nil {
		t.Fatalf("expected ErrBadFrontier")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(3, 3, nil)
	f.Append(leaf(1))
	clone := f.Clone()
	clone.Append(leaf(2))
	if f.Count() == clone.Count() {
		t.Fatalf("mutating the clone must not affect the original")
	}
}

func TestRootHistoryBound(t *testing.T) {
	h := NewRootHistory(40)
	var last [32]byte
	for i := 0; i < 50; i++ {
		var r [32]byte
		r[0] = byte(i)
		h.Push(r)
		last = r
	}
	if h.Len() != 40 {
		t.Fatalf("history len = %d, want 40", h.Len())
	}
	if !h.Contains(last) {
		t.Fatalf("most recently pushed root must be retained")
	}
	var first [32]byte // root pushed at i=0, should have been evicted
	if h.Contains(first) {
		t.Fatalf("oldest root should have been evicted")
	}
}

func TestNewRootHistoryIsEmpty(t *testing.T) {
	// A new history holds no root, not even the zero root. The type never
	// records a root on its own; callers push the prior root only at commit
	// time (see pkg/validator).
	h := NewRootHistory(40)
	if h.Contains([32]byte{}) {
		t.Fatalf("empty history must not contain the zero root")
	}
}

func TestDefaultHasherDeterministic(t *testing.T) {
	a := DefaultHasher([][]byte{leaf(1), leaf(2)})
	b := DefaultHasher([][]byte{leaf(1), leaf(2)})
	if !bytes.Equal(a, b) {
		t.Fatalf("hasher must be deterministic")
	}
}
