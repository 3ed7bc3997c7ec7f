package chain

import (
	"github.com/Klingon-tech/klingnet-pos/internal/walletstate"
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
)

// ValidateBlock is a pure predicate: it never mutates chain state
// (spec.md §4.2 "validate_block(b)").
func (c *Chain) ValidateBlock(b *block.Block) error {
	if b.Index == 0 {
		if b.Hash != c.mainChain[0].Hash {
			return validationErrorf("genesis candidate hash %s does not match the fixed genesis hash %s", b.Hash, c.mainChain[0].Hash)
		}
		return nil
	}

	parent, ok := c.blocksByHash[b.PrevHash]
	if !ok {
		return validationErrorf("prev_hash %s is not a known block", b.PrevHash)
	}
	if b.Index != parent.Index+1 {
		return validationErrorf("index %d does not follow parent index %d", b.Index, parent.Index)
	}
	if !b.VerifyHash() {
		return validationErrorf("hash %s does not match recomputed canonical hash", b.Hash)
	}

	w, err := c.walletAt(parent)
	if err != nil {
		return validationErrorf("could not reconstruct wallet state at parent %s: %v", parent.Hash, err)
	}
	if err := applyBlockToWallet(w, b); err != nil {
		return validationErrorf("replaying candidate's transactions failed: %v", err)
	}
	return nil
}

// walletAt reconstructs the wallet state as of the given block: a clone of
// the live wallet when p is the current head, otherwise a full replay from
// genesis along the unique path to p.
func (c *Chain) walletAt(p *block.Block) (*walletstate.Wallet, error) {
	if p.Hash == c.Head().Hash {
		return c.wallet.Clone(), nil
	}
	path, err := c.pathFromGenesis(p.Hash)
	if err != nil {
		return nil, err
	}
	return c.replayFromGenesis(path)
}
