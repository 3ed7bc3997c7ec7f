// Package chain implements the chain store: the block index, the main
// chain vector, fork-aware block validation, the reorg engine, and
// deterministic validator election (spec.md §4.2 "Chain Store (C2)").
//
// Chain is not safe for concurrent use. The owning node serializes every
// call, the way the teacher's chain.Chain documents the same contract for
// its own ProcessBlock/Reorg pair.
package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-pos/internal/consensus"
	"github.com/Klingon-tech/klingnet-pos/internal/walletstate"
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
)

// ValidationError reports a block rejected by ValidateBlock or ApplyBlock's
// precondition (spec.md §7 "ValidationError").
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "chain: validation failed: " + e.Reason }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ReorgListener is invoked with the ordered list of removed blocks (from
// just above the common ancestor to the old tip) after every successful
// reorg, including orphan recovery on external chain adoption.
type ReorgListener func(removed []*block.Block)

// Chain holds the block index, the main chain vector and the live wallet.
type Chain struct {
	blocksByHash map[string]*block.Block
	mainChain    []*block.Block
	wallet       *walletstate.Wallet
	genesisState map[string]walletstate.Account
	listeners    []ReorgListener
}

// New builds a fresh chain seeded with only the genesis block and an empty
// wallet.
func New() *Chain {
	return NewWithGenesisState(nil)
}

// NewWithGenesisState builds a fresh chain whose genesis_state is seeded
// from initial (spec.md §6 "Configuration" initial_state: identifier →
// {balance, stake}). A nil or empty map behaves exactly like New().
func NewWithGenesisState(initial map[string]walletstate.Account) *Chain {
	gen := block.Genesis()
	w := walletstate.New()
	if len(initial) > 0 {
		w.Restore(initial)
	}
	c := &Chain{
		blocksByHash: map[string]*block.Block{gen.Hash: gen},
		mainChain:    []*block.Block{gen},
		wallet:       w,
	}
	c.genesisState = c.wallet.Snapshot()
	return c
}

// Head returns the current tip of the main chain.
func (c *Chain) Head() *block.Block {
	return c.mainChain[len(c.mainChain)-1]
}

// Chain returns the main chain vector, genesis first. The returned slice
// must not be mutated by the caller.
func (c *Chain) Chain() []*block.Block {
	return c.mainChain
}

// BlockByHash looks up any known block, main-chain or side-branch.
func (c *Chain) BlockByHash(hash string) (*block.Block, bool) {
	b, ok := c.blocksByHash[hash]
	return b, ok
}

// Balance returns id's current live balance.
func (c *Chain) Balance(id string) float64 { return c.wallet.GetBalance(id) }

// Stake returns id's current live stake.
func (c *Chain) Stake(id string) float64 { return c.wallet.GetStake(id) }

// RegisterReorgListener adds f to the set of callbacks invoked after every
// successful reorg.
func (c *Chain) RegisterReorgListener(f ReorgListener) {
	c.listeners = append(c.listeners, f)
}

// SelectValidator runs the deterministic, stake-weighted election seeded
// from the current head hash (spec.md §4.2 "Validator election").
func (c *Chain) SelectValidator(knownValidators []string) (string, bool) {
	return consensus.SelectValidator(c.Head().Hash, knownValidators, c.wallet)
}

// ErrNoCommonAncestor is returned by ReorganizeTo when the candidate chain
// shares no ancestor with the current main chain.
var ErrNoCommonAncestor = errors.New("chain: candidate shares no ancestor with the current chain")

// pathFromGenesis walks prev_hash links backward from hash to genesis and
// returns the path in ascending index order (genesis first). It requires
// every ancestor to already be present in blocksByHash.
func (c *Chain) pathFromGenesis(hash string) ([]*block.Block, error) {
	var rev []*block.Block
	for {
		b, ok := c.blocksByHash[hash]
		if !ok {
			return nil, fmt.Errorf("chain: unknown ancestor %s", hash)
		}
		rev = append(rev, b)
		if b.IsGenesis() {
			break
		}
		hash = b.PrevHash
	}
	path := make([]*block.Block, len(rev))
	for i, b := range rev {
		path[len(rev)-1-i] = b
	}
	return path, nil
}
