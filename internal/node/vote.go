package node

import (
	"time"

	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
)

// handleBlockLocked implements the BLOCK(b) dispatch rule.
func (n *Node) handleBlockLocked(b *block.Block) {
	if b == nil {
		return
	}
	if _, known := n.chain.BlockByHash(b.Hash); known {
		return
	}

	if !n.cfg.VotingEnabled {
		if err := n.applyBlockLocked(b); err != nil {
			n.logger.Debug().Err(err).Str("block", b.String()).Msg("rejected incoming block")
		}
		return
	}

	if err := n.chain.ValidateBlock(b); err != nil {
		n.logger.Debug().Err(err).Str("block", b.String()).Msg("rejected candidate block")
		return
	}
	n.addPendingLocked(b)
	n.pending[b.Hash].voters[n.id] = true
	n.broadcast(wire.NewBlockVote(n.id, n.id, b.Hash))
	// The relay never echoes this vote back (broadcastFrom skips the
	// origin), so ratification must be checked here too, not just on
	// receipt of someone else's BLOCK_VOTE.
	n.checkRatificationLocked(b.Hash)
}

// addPendingLocked registers b in the pending table and arms its
// vote-timeout timer. Callers must hold n.mu.
func (n *Node) addPendingLocked(b *block.Block) {
	pb := &pendingBlock{block: b, voters: make(map[string]bool)}
	n.pending[b.Hash] = pb
	pb.timer = time.AfterFunc(n.cfg.VoteTimeout, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.expirePendingLocked(b.Hash)
	})
}

// expirePendingLocked discards a pending entry that was never ratified.
func (n *Node) expirePendingLocked(hash string) {
	pb, ok := n.pending[hash]
	if !ok {
		return
	}
	delete(n.pending, hash)
	n.logger.Debug().Str("block", pb.block.String()).Msg("pending block expired without ratification")
}

// handleBlockVoteLocked implements the BLOCK_VOTE(voter, block_hash)
// dispatch rule.
func (n *Node) handleBlockVoteLocked(v *wire.BlockVote) {
	if v == nil {
		return
	}
	pb, ok := n.pending[v.BlockHash]
	if !ok {
		return
	}
	if n.chain.Stake(v.VoterID) <= 0 {
		return
	}
	pb.voters[v.VoterID] = true
	n.checkRatificationLocked(v.BlockHash)
}

// checkRatificationLocked applies and clears the pending entry for hash once
// it meets the ratification predicate; a no-op if it doesn't exist or isn't
// ratified yet. Called both after recording someone else's BLOCK_VOTE and
// after a node records its own vote on a block it just received or forged.
func (n *Node) checkRatificationLocked(hash string) {
	pb, ok := n.pending[hash]
	if !ok {
		return
	}
	if !n.ratifiedLocked(pb) {
		return
	}

	if pb.timer != nil {
		pb.timer.Stop()
	}
	delete(n.pending, hash)

	if err := n.applyBlockLocked(pb.block); err != nil {
		n.logger.Warn().Err(err).Str("block", pb.block.String()).Msg("ratified block failed to apply")
	}
}

// ratifiedLocked evaluates the ratification predicate:
// |votes| / max(1, |{v in known_nodes : stake(v) > 0}|) >= vote_threshold.
func (n *Node) ratifiedLocked(pb *pendingBlock) bool {
	eligible := 0
	for id := range n.known {
		if n.chain.Stake(id) > 0 {
			eligible++
		}
	}
	if eligible < 1 {
		eligible = 1
	}
	return float64(len(pb.voters))/float64(eligible) >= n.cfg.VoteThreshold
}
