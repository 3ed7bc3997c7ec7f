package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-pos/pkg/block"
)

// ApplyBlock applies b, preconditioned on ValidateBlock(b) (spec.md §4.2
// "apply_block(b)").
func (c *Chain) ApplyBlock(b *block.Block) error {
	if err := c.ValidateBlock(b); err != nil {
		return err
	}
	c.blocksByHash[b.Hash] = b

	head := c.Head()
	switch {
	case b.PrevHash == head.Hash:
		if err := applyBlockToWallet(c.wallet, b); err != nil {
			// ValidateBlock already replayed this exact sequence successfully
			// against an equivalent wallet state, so this should not happen.
			return fmt.Errorf("chain: apply precondition held but live apply failed: %w", err)
		}
		c.mainChain = append(c.mainChain, b)
		return nil
	case b.Index > head.Index:
		return c.reorgTo(b)
	default:
		// Side branch no longer than the main chain: already stored in
		// blocksByHash above.
		return nil
	}
}

// ReorganizeTo adopts a caller-supplied chain that shares some ancestor
// with the current chain. Fails silently (returns nil, does nothing) if no
// common ancestor exists (spec.md §4.2 "reorganize_to(chain_prefix)").
func (c *Chain) ReorganizeTo(chainPrefix []*block.Block) error {
	if len(chainPrefix) == 0 {
		return nil
	}
	var added []string
	for _, b := range chainPrefix {
		if _, ok := c.blocksByHash[b.Hash]; !ok {
			added = append(added, b.Hash)
		}
		c.blocksByHash[b.Hash] = b
	}
	forgetAdded := func() {
		for _, h := range added {
			delete(c.blocksByHash, h)
		}
	}
	tip := chainPrefix[len(chainPrefix)-1]
	if _, ok := c.findCommonAncestorIndex(tip); !ok {
		forgetAdded()
		return nil
	}
	if err := c.reorgTo(tip); err != nil {
		forgetAdded()
		return err
	}
	return nil
}

// findCommonAncestorIndex returns the index of the highest-index block
// whose hash appears both in the current main chain and in the candidate
// chain's ancestry (spec.md §4.2 reorg algorithm step 1).
func (c *Chain) findCommonAncestorIndex(candidateTip *block.Block) (int, bool) {
	candidatePath, err := c.pathFromGenesis(candidateTip.Hash)
	if err != nil {
		return 0, false
	}
	limit := len(c.mainChain)
	if len(candidatePath) < limit {
		limit = len(candidatePath)
	}
	ancestor := -1
	for i := 0; i < limit; i++ {
		if c.mainChain[i].Hash == candidatePath[i].Hash {
			ancestor = i
		} else {
			break
		}
	}
	if ancestor < 0 {
		return 0, false
	}
	return ancestor, true
}

// reorgTo runs the full reorg algorithm against candidateTip (spec.md §4.2
// "Reorg algorithm"). It is used both for internal fork-switches (from
// ApplyBlock) and external chain adoption (from ReorganizeTo).
func (c *Chain) reorgTo(candidateTip *block.Block) error {
	candidatePath, err := c.pathFromGenesis(candidateTip.Hash)
	if err != nil {
		return fmt.Errorf("chain: reorg: %w", err)
	}

	ancestorIdx, ok := c.findCommonAncestorIndex(candidateTip)
	if !ok {
		return ErrNoCommonAncestor
	}

	removed := append([]*block.Block(nil), c.mainChain[ancestorIdx+1:]...)

	// Step 3: replay the full candidate path into a fresh, independent
	// wallet. On failure the live wallet/chain/blocksByHash are untouched.
	newWallet, err := c.replayFromGenesis(candidatePath)
	if err != nil {
		return fmt.Errorf("chain: reorg: candidate chain failed replay, live state unchanged: %w", err)
	}

	// Step 4: atomic swap. Rebuild blocksByHash exclusively from the new
	// chain, discarding previously-seen side branches.
	newBlocksByHash := make(map[string]*block.Block, len(candidatePath))
	for _, b := range candidatePath {
		newBlocksByHash[b.Hash] = b
	}
	c.mainChain = candidatePath
	c.blocksByHash = newBlocksByHash

	// Step 5: commit the new wallet as live.
	c.wallet = newWallet

	// Step 6: notify listeners.
	for _, listener := range c.listeners {
		listener(removed)
	}
	return nil
}
