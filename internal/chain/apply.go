package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-pos/internal/walletstate"
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

// applyTransaction applies a single transaction's effect to w in place
// (spec.md §4.2 "Transaction application rules inside a block").
func applyTransaction(w *walletstate.Wallet, t txn.Transaction) error {
	if t.Amount <= 0 {
		return fmt.Errorf("chain: transaction amount must be positive, got %v", t.Amount)
	}
	switch t.Type {
	case txn.Transfer:
		if !w.Withdraw(t.Sender, t.Amount) {
			return fmt.Errorf("chain: %s has insufficient balance for transfer of %v", t.Sender, t.Amount)
		}
		w.Deposit(t.Receiver, t.Amount)
		return nil
	case txn.Stake:
		if !w.StakeTokens(t.Sender, t.Amount) {
			return fmt.Errorf("chain: %s has insufficient balance to stake %v", t.Sender, t.Amount)
		}
		return nil
	case txn.Unstake:
		if !w.UnstakeTokens(t.Sender, t.Amount) {
			return fmt.Errorf("chain: %s has insufficient stake to unstake %v", t.Sender, t.Amount)
		}
		return nil
	default:
		return fmt.Errorf("chain: unknown transaction type %q", t.Type)
	}
}

// applyBlockToWallet applies every transaction of b, in order, to w. It is
// per-block atomic: on any failure the wallet is restored to its
// pre-application state and the error is returned (spec.md §9 REDESIGN
// FLAGS — the source does not enforce this, implementers must).
func applyBlockToWallet(w *walletstate.Wallet, b *block.Block) error {
	snapshot := w.Snapshot()
	for i, t := range b.Transactions {
		if err := applyTransaction(w, t); err != nil {
			w.Restore(snapshot)
			return fmt.Errorf("chain: apply tx %d of block %s: %w", i, b.String(), err)
		}
	}
	return nil
}

// replayFromGenesis builds a fresh wallet from genesisState and re-applies
// every block of path strictly above genesis, in order. Returns the
// resulting wallet or the first application error, leaving the caller's
// live wallet untouched either way.
func (c *Chain) replayFromGenesis(path []*block.Block) (*walletstate.Wallet, error) {
	w := walletstate.New()
	w.Restore(c.genesisState)
	for _, b := range path {
		if b.IsGenesis() {
			continue
		}
		if err := applyBlockToWallet(w, b); err != nil {
			return nil, err
		}
	}
	return w, nil
}
