package node

import (
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
)

// Forge runs the forge protocol from the operator "forge" CLI command.
func (n *Node) Forge(force bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forgeLocked(force)
}

// forgeLocked implements the forge protocol (spec.md §4.3 "Forge
// protocol"), driven either by a STEP message or an operator command.
func (n *Node) forgeLocked(force bool) {
	if !force {
		elected, ok := n.chain.SelectValidator(n.knownList())
		if !ok || elected != n.id {
			return
		}
	}

	filtered := n.filterMempoolLocked()
	if len(filtered) == 0 {
		return
	}

	head := n.chain.Head()
	b := block.New(head.Index+1, head.Hash, n.now(), n.id, filtered)

	n.broadcast(wire.NewBlock(n.id, b))

	if n.cfg.VotingEnabled {
		if err := n.chain.ValidateBlock(b); err != nil {
			n.logger.Warn().Err(err).Str("block", b.String()).Msg("forged block failed local validation")
			return
		}
		n.addPendingLocked(b)
		n.pending[b.Hash].voters[n.id] = true
		n.broadcast(wire.NewBlockVote(n.id, n.id, b.Hash))
		n.checkRatificationLocked(b.Hash)
		return
	}

	if err := n.applyBlockLocked(b); err != nil {
		n.logger.Warn().Err(err).Str("block", b.String()).Msg("forged block failed to apply")
	}
}

// filterMempoolLocked returns the mempool transactions that pass current
// wallet validation, in mempool order.
func (n *Node) filterMempoolLocked() []txn.Transaction {
	var out []txn.Transaction
	for _, t := range n.pool.All() {
		if n.validateAgainstWalletLocked(t) == nil {
			out = append(out, t)
		}
	}
	return out
}

func (n *Node) knownList() []string {
	out := make([]string, 0, len(n.known))
	for id := range n.known {
		out = append(out, id)
	}
	return out
}
