package knowncache

import (
	"testing"

	"github.com/jihwankim/commgmt/internal/identifier"
)

func TestInsertRemoveContains(t *testing.T) {
	c := New()
	c.Insert(1, 2)
	if !c.Contains(1, 2) {
		t.Fatal("expected instance to be known after Insert")
	}
	c.Remove(1, 2)
	if c.Contains(1, 2) {
		t.Fatal("expected instance to be gone after Remove")
	}
}

func TestMerge(t *testing.T) {
	a := New()
	a.Insert(1, 1)
	b := New()
	b.Insert(1, 2)

	a.Merge(b)
	if !a.Contains(1, 1) || !a.Contains(1, 2) {
		t.Fatal("expected merged set to contain both instances")
	}
}

func TestGetKnownHandlesAnyInstance(t *testing.T) {
	c := New()
	c.Insert(1, 1)
	c.Insert(1, 2)
	c.Insert(2, 1)

	got := c.GetKnownHandles(identifier.AnyInstance(1, identifier.Invalid))
	if len(got) != 2 {
		t.Fatalf("expected 2 matches for service 1, got %d", len(got))
	}
}

func TestGetKnownHandlesExactInstance(t *testing.T) {
	c := New()
	c.Insert(1, 1)
	c.Insert(1, 2)

	got := c.GetKnownHandles(identifier.Specific(1, 2, identifier.Invalid))
	if len(got) != 1 || got[0].Instance != 2 {
		t.Fatalf("expected exactly instance 2, got %v", got)
	}
}

func TestEqualAndClone(t *testing.T) {
	a := New()
	a.Insert(1, 1)
	clone := a.Clone()
	if !a.Equal(clone) {
		t.Fatal("clone should equal original")
	}
	clone.Insert(1, 2)
	if a.Equal(clone) {
		t.Fatal("mutated clone should no longer equal original")
	}
}
