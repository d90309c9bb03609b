package scanner

import (
	"sort"
	"testing"
)

func TestWhitelistAddDuplicate(t *testing.T) {
	w := NewWhitelist()
	if !w.Add("A") {
		t.Error("first add returned false")
	}
	if w.Add("A") {
		t.Error("duplicate add returned true")
	}
	if w.Len() != 1 {
		t.Errorf("len = %d, want 1", w.Len())
	}
}

func TestWhitelistRemoveSwapsLast(t *testing.T) {
	w := NewWhitelist("A", "B", "C", "D")
	if !w.Remove("B") {
		t.Fatal("remove existing returned false")
	}
	if w.Contains("B") {
		t.Error("removed member still present")
	}
	got := w.Snapshot()
	sort.Strings(got)
	want := []string{"A", "C", "D"}
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
	// The index must stay consistent after the swap: every survivor
	// removable, no phantom members.
	for _, id := range want {
		if !w.Remove(id) {
			t.Errorf("remove %s after swap returned false", id)
		}
	}
	if w.Len() != 0 {
		t.Errorf("len = %d after removing all, want 0", w.Len())
	}
}

func TestWhitelistRemoveMissing(t *testing.T) {
	w := NewWhitelist("A")
	if w.Remove("B") {
		t.Error("remove missing returned true")
	}
}

func TestWhitelistSnapshotIsCopy(t *testing.T) {
	w := NewWhitelist("A", "B")
	snap := w.Snapshot()
	snap[0] = "mutated"
	if !w.Contains("A") {
		t.Error("mutating a snapshot affected the whitelist")
	}
}
