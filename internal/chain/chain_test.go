package chain

import (
	"testing"

	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

func mustApply(t *testing.T, c *Chain, b *block.Block) {
	t.Helper()
	if err := c.ApplyBlock(b); err != nil {
		t.Fatalf("ApplyBlock() = %v, want nil", err)
	}
}

func TestGenesisImmutable(t *testing.T) {
	c := New()
	g := c.Chain()[0]
	if g.Index != 0 {
		t.Fatalf("genesis index = %d, want 0", g.Index)
	}
	if g.PrevHash != block.GenesisPrevHash {
		t.Fatalf("genesis prev_hash = %q, want 64 zeros", g.PrevHash)
	}
	if len(g.Transactions) != 0 {
		t.Fatalf("genesis transactions = %v, want empty", g.Transactions)
	}
	if g.Validator != block.GenesisValidator {
		t.Fatalf("genesis validator = %q, want %q", g.Validator, block.GenesisValidator)
	}
	if g.Timestamp != 0 {
		t.Fatalf("genesis timestamp = %v, want 0", g.Timestamp)
	}
	if g.Hash != block.Genesis().Hash {
		t.Fatalf("genesis hash = %q, want fixed %q", g.Hash, block.Genesis().Hash)
	}
}

func TestSimpleTransferScenario(t *testing.T) {
	// S1: genesis_state = {A: 100, B: 0}; A sends TRANSFER(A, B, 40).
	c := New()
	c.wallet.Deposit("A", 100)
	c.genesisState = c.wallet.Snapshot()

	tx := txn.Transaction{Sender: "A", Receiver: "B", Amount: 40, Timestamp: 1, Type: txn.Transfer}
	b1 := block.New(1, c.Head().Hash, 2, "A", []txn.Transaction{tx})
	mustApply(t, c, b1)

	if got := c.Balance("A"); got != 60 {
		t.Fatalf("Balance(A) = %v, want 60", got)
	}
	if got := c.Balance("B"); got != 40 {
		t.Fatalf("Balance(B) = %v, want 40", got)
	}
	if len(c.Chain()) != 2 {
		t.Fatalf("chain length = %d, want 2", len(c.Chain()))
	}
}

func TestChainContinuity(t *testing.T) {
	c := New()
	c.wallet.Deposit("A", 100)
	c.genesisState = c.wallet.Snapshot()

	for i := uint64(1); i <= 3; i++ {
		b := block.New(i, c.Head().Hash, float64(i), "A", nil)
		mustApply(t, c, b)
	}
	chain := c.Chain()
	for i := 1; i < len(chain); i++ {
		if chain[i].PrevHash != chain[i-1].Hash {
			t.Fatalf("chain[%d].prev_hash != chain[%d].hash", i, i-1)
		}
		if chain[i].Index != uint64(i) {
			t.Fatalf("chain[%d].index = %d, want %d", i, chain[i].Index, i)
		}
	}
}

func TestStakeThenElectScenario(t *testing.T) {
	// S3: {A: 100, B: 100}; A stakes 50; election must draw only A.
	c := New()
	c.wallet.Deposit("A", 100)
	c.wallet.Deposit("B", 100)
	c.genesisState = c.wallet.Snapshot()

	stakeTx := txn.Transaction{Sender: "A", Receiver: "A", Amount: 50, Timestamp: 1, Type: txn.Stake}
	b1 := block.New(1, c.Head().Hash, 2, "A", []txn.Transaction{stakeTx})
	mustApply(t, c, b1)

	if got := c.Stake("A"); got != 50 {
		t.Fatalf("Stake(A) = %v, want 50", got)
	}
	if got := c.Stake("B"); got != 0 {
		t.Fatalf("Stake(B) = %v, want 0", got)
	}

	elected, ok := c.SelectValidator([]string{"A", "B"})
	if !ok || elected != "A" {
		t.Fatalf("SelectValidator() = (%q, %v), want (A, true)", elected, ok)
	}
}

func TestValidateBlockRejectsInsufficientFunds(t *testing.T) {
	c := New()
	bad := txn.Transaction{Sender: "A", Receiver: "B", Amount: 150, Timestamp: 1, Type: txn.Transfer}
	b1 := block.New(1, c.Head().Hash, 2, "A", []txn.Transaction{bad})
	if err := c.ValidateBlock(b1); err == nil {
		t.Fatalf("ValidateBlock() should reject a transfer the sender cannot afford")
	}
	if err := c.ApplyBlock(b1); err == nil {
		t.Fatalf("ApplyBlock() should reject the same block")
	}
	if c.Head().Index != 0 {
		t.Fatalf("head should remain genesis after a rejected block")
	}
}

func TestPerBlockAtomicity(t *testing.T) {
	c := New()
	c.wallet.Deposit("A", 10)
	c.genesisState = c.wallet.Snapshot()

	// Second transaction in the block cannot succeed: should roll back the
	// first transaction's effect too.
	txs := []txn.Transaction{
		{Sender: "A", Receiver: "B", Amount: 10, Timestamp: 1, Type: txn.Transfer},
		{Sender: "A", Receiver: "C", Amount: 10, Timestamp: 1, Type: txn.Transfer},
	}
	b1 := block.New(1, c.Head().Hash, 2, "A", txs)
	if err := c.ApplyBlock(b1); err == nil {
		t.Fatalf("ApplyBlock() should fail when block contains an unaffordable transaction")
	}
	if got := c.Balance("A"); got != 10 {
		t.Fatalf("Balance(A) = %v, want 10 (rejected block must not partially apply)", got)
	}
	if got := c.Balance("B"); got != 0 {
		t.Fatalf("Balance(B) = %v, want 0", got)
	}
}

// TestForkAndReorg exercises S4: two peers extend the same parent
// independently; the longer branch wins and the orphaned block's
// transactions are reported as removed.
func TestForkAndReorg(t *testing.T) {
	n1 := New()
	n1.wallet.Deposit("A", 100)
	n1.genesisState = n1.wallet.Snapshot()

	n2 := New()
	n2.wallet.Deposit("A", 100)
	n2.genesisState = n2.wallet.Snapshot()

	orphanTx := txn.Transaction{Sender: "A", Receiver: "B", Amount: 5, Timestamp: 1, Type: txn.Transfer}
	n1Block1 := block.New(1, n1.Head().Hash, 2, "A", []txn.Transaction{orphanTx})
	mustApply(t, n1, n1Block1)

	winningTx := txn.Transaction{Sender: "A", Receiver: "C", Amount: 7, Timestamp: 1, Type: txn.Transfer}
	n2Block1 := block.New(1, n2.Head().Hash, 2, "A", []txn.Transaction{winningTx})
	mustApply(t, n2, n2Block1)

	n2Block2 := block.New(2, n2.Head().Hash, 3, "A", nil)
	mustApply(t, n2, n2Block2)

	var removed []*block.Block
	n1.RegisterReorgListener(func(r []*block.Block) { removed = r })

	// N1 receives n2's height-1 block first so it becomes known ancestry,
	// then the height-2 tip that triggers the reorg.
	if err := n1.ApplyBlock(n2Block1); err != nil {
		t.Fatalf("ApplyBlock(n2Block1) as side branch should succeed: %v", err)
	}
	if err := n1.ApplyBlock(n2Block2); err != nil {
		t.Fatalf("ApplyBlock(n2Block2) should trigger a reorg: %v", err)
	}

	if n1.Head().Hash != n2.Head().Hash {
		t.Fatalf("after reorg n1 head = %s, want n2 head %s", n1.Head().Hash, n2.Head().Hash)
	}
	if len(removed) != 1 || removed[0].Hash != n1Block1.Hash {
		t.Fatalf("removed blocks = %v, want [n1Block1]", removed)
	}
	if got := n1.Balance("B"); got != 0 {
		t.Fatalf("Balance(B) after reorg = %v, want 0 (orphaned transfer must not apply)", got)
	}
	if got := n1.Balance("C"); got != 7 {
		t.Fatalf("Balance(C) after reorg = %v, want 7", got)
	}
}

// TestReorgAtomicityOnFailedReplay covers property 5: a candidate branch
// that cannot replay must leave live wallet/chain/blocksByHash untouched.
func TestReorgAtomicityOnFailedReplay(t *testing.T) {
	c := New()
	c.wallet.Deposit("A", 100)
	c.genesisState = c.wallet.Snapshot()

	b1 := block.New(1, c.Head().Hash, 2, "A", nil)
	mustApply(t, c, b1)

	preHead := c.Head().Hash
	preChainLen := len(c.Chain())
	preBalance := c.Balance("A")

	// Build a competing branch off genesis whose second block cannot
	// possibly replay (spends funds nobody has).
	badTx := txn.Transaction{Sender: "Z", Receiver: "Y", Amount: 1, Timestamp: 1, Type: txn.Transfer}
	rival1 := block.New(1, c.Chain()[0].Hash, 2, "Z", nil)
	c.blocksByHash[rival1.Hash] = rival1
	rival2 := block.New(2, rival1.Hash, 3, "Z", []txn.Transaction{badTx})

	if err := c.ApplyBlock(rival2); err == nil {
		t.Fatalf("ApplyBlock() should fail for a candidate branch that cannot replay")
	}
	if c.Head().Hash != preHead {
		t.Fatalf("head changed after a failed reorg attempt")
	}
	if len(c.Chain()) != preChainLen {
		t.Fatalf("chain length changed after a failed reorg attempt")
	}
	if c.Balance("A") != preBalance {
		t.Fatalf("wallet changed after a failed reorg attempt")
	}
	if _, ok := c.BlockByHash(rival2.Hash); ok {
		t.Fatalf("blocksByHash gained the rejected block after a failed reorg attempt")
	}
}
