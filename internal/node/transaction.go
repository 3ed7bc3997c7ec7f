package node

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
)

// handleTransactionLocked implements the TRANSACTION(tx) dispatch rule: a
// transaction announced by self is dropped (it is already in the local
// mempool), everything else is revalidated against the live wallet before
// joining the mempool.
func (n *Node) handleTransactionLocked(sender string, t *txn.Transaction) {
	if t == nil || sender == n.id {
		return
	}
	if err := n.validateAgainstWalletLocked(*t); err != nil {
		n.logger.Debug().Err(err).Str("sender", t.Sender).Msg("rejected incoming transaction")
		return
	}
	if !n.pool.Add(*t) {
		n.logger.Debug().Str("sender", t.Sender).Msg("duplicate incoming transaction, ignored")
	}
}

// validateAgainstWalletLocked checks t structurally and against the node's
// current live wallet balances/stakes.
func (n *Node) validateAgainstWalletLocked(t txn.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	switch t.Type {
	case txn.Transfer, txn.Stake:
		if n.chain.Balance(t.Sender) < t.Amount {
			return fmt.Errorf("node: %s has insufficient balance for %v", t.Sender, t.Amount)
		}
	case txn.Unstake:
		if n.chain.Stake(t.Sender) < t.Amount {
			return fmt.Errorf("node: %s has insufficient stake for %v", t.Sender, t.Amount)
		}
	}
	return nil
}

// SubmitTransaction implements "Per-transaction validation on send": the
// operator CLI's tx/stake/unstake commands all funnel through here.
func (n *Node) SubmitTransaction(t txn.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.validateAgainstWalletLocked(t); err != nil {
		return fmt.Errorf("node: transaction rejected: %w", err)
	}
	n.pool.Add(t)
	n.broadcast(wire.NewTransaction(n.id, t))
	return nil
}
