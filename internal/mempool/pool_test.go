package mempool

import (
	"testing"

	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

func tx(sender, receiver string, amount, ts float64) txn.Transaction {
	return txn.Transaction{Sender: sender, Receiver: receiver, Amount: amount, Timestamp: ts, Type: txn.Transfer}
}

func TestAddDeduplicates(t *testing.T) {
	p := New()
	a := tx("A", "B", 10, 100)
	if !p.Add(a) {
		t.Fatalf("Add() should accept a new transaction")
	}
	if p.Add(a) {
		t.Fatalf("Add() should reject a duplicate (equal) transaction")
	}
	if p.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", p.Count())
	}
}

func TestAddPreservesOrder(t *testing.T) {
	p := New()
	a := tx("A", "B", 10, 1)
	b := tx("C", "D", 5, 2)
	p.Add(a)
	p.Add(b)
	all := p.All()
	if len(all) != 2 || !all[0].Equal(a) || !all[1].Equal(b) {
		t.Fatalf("All() = %v, want [a, b] in insertion order", all)
	}
}

func TestRemoveConfirmedEvictsChained(t *testing.T) {
	p := New()
	a := tx("A", "B", 10, 1)
	b := tx("C", "D", 5, 2)
	p.Add(a)
	p.Add(b)

	p.RemoveConfirmed([]txn.Transaction{a})
	all := p.All()
	if len(all) != 1 || !all[0].Equal(b) {
		t.Fatalf("All() after RemoveConfirmed = %v, want [b]", all)
	}
}

func TestRecoverReinsertsOrphanedOnly(t *testing.T) {
	// Mirrors S4: a removed block's transaction that is absent from the new
	// chain must reappear; anything now in the new chain must not remain.
	p := New()
	alreadyPending := tx("E", "F", 1, 1)
	p.Add(alreadyPending)

	orphaned := tx("A", "B", 5, 10)
	nowChained := tx("A", "C", 7, 10)
	p.Add(nowChained) // was speculatively pending before the reorg landed it

	removed := []txn.Transaction{orphaned, nowChained}
	newChainTxs := []txn.Transaction{nowChained}

	p.Recover(removed, newChainTxs)

	all := p.All()
	foundOrphan, foundChained := false, false
	for _, got := range all {
		if got.Equal(orphaned) {
			foundOrphan = true
		}
		if got.Equal(nowChained) {
			foundChained = true
		}
	}
	if !foundOrphan {
		t.Fatalf("Recover() should re-insert the orphaned transaction, got %v", all)
	}
	if foundChained {
		t.Fatalf("Recover() should not leave a now-chained transaction pending, got %v", all)
	}
	if len(all) != 2 {
		t.Fatalf("All() = %v, want exactly [alreadyPending, orphaned]", all)
	}
}

func TestRecoverDoesNotDuplicate(t *testing.T) {
	p := New()
	orphaned := tx("A", "B", 5, 10)
	p.Add(orphaned)

	p.Recover([]txn.Transaction{orphaned}, nil)
	if p.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (no duplicate re-insertion)", p.Count())
	}
}
