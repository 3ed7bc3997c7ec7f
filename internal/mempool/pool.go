// Package mempool holds pending transactions waiting for block inclusion
// (spec.md §3 "Mempool: ordered sequence of Transaction, deduplicated by
// equality").
package mempool

import (
	"sync"

	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

// Pool is an ordered, deduplicated queue of pending transactions.
type Pool struct {
	mu  sync.RWMutex
	txs []txn.Transaction
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{}
}

// Add appends t unless an equal transaction is already pending. Reports
// whether t was newly added.
func (p *Pool) Add(t txn.Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.containsLocked(t) {
		return false
	}
	p.txs = append(p.txs, t)
	return true
}

func (p *Pool) containsLocked(t txn.Transaction) bool {
	for _, existing := range p.txs {
		if existing.Equal(t) {
			return true
		}
	}
	return false
}

// All returns a copy of the pending transactions, in the order they were
// added.
func (p *Pool) All() []txn.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]txn.Transaction, len(p.txs))
	copy(out, p.txs)
	return out
}

// Count returns the number of pending transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// RemoveConfirmed evicts every pending transaction equal to one of chained.
// Used after a block is applied, and after a reorg to drop transactions now
// present in the new main chain.
func (p *Pool) RemoveConfirmed(chained []txn.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = filterOut(p.txs, chained)
}

// filterOut returns the subset of txs with no equal counterpart in chained.
func filterOut(txs []txn.Transaction, chained []txn.Transaction) []txn.Transaction {
	if len(chained) == 0 {
		return txs
	}
	out := txs[:0:0]
	for _, t := range txs {
		keep := true
		for _, c := range chained {
			if t.Equal(c) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, t)
		}
	}
	return out
}

// Recover re-inserts, deduplicated, every transaction from removed blocks
// whose identity is not present anywhere in the new main chain (spec.md
// §4.3 "Reorg recovery callback"). Transactions now present in the new
// chain are evicted from the pool, matching the mempool invariant in
// spec.md §3.
func (p *Pool) Recover(removedTxs []txn.Transaction, newChainTxs []txn.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.txs = filterOut(p.txs, newChainTxs)

	for _, t := range removedTxs {
		inNewChain := false
		for _, nc := range newChainTxs {
			if t.Equal(nc) {
				inNewChain = true
				break
			}
		}
		if inNewChain {
			continue
		}
		if !p.containsLocked(t) {
			p.txs = append(p.txs, t)
		}
	}
}
