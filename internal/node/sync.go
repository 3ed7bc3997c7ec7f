package node

import (
	"time"

	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
)

// Bootstrap implements "Sync bootstrap": broadcast SYNC_REQUEST, mark
// in-progress, and arm the sync-timeout timer. Call once after the relay
// connection is established.
func (n *Node) Bootstrap() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startSyncLocked()
}

func (n *Node) startSyncLocked() {
	n.syncSt.inProgress = true
	n.syncSt.responses = nil
	n.broadcast(wire.NewSyncRequest(n.id))
	n.syncSt.timer = time.AfterFunc(n.cfg.SyncTimeout, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.concludeSyncLocked()
	})
}

// handleSyncRequestLocked implements SYNC_REQUEST(sender): reply with the
// full local chain.
func (n *Node) handleSyncRequestLocked(sender string) {
	n.known[sender] = true
	n.broadcast(wire.NewSyncResponse(n.id, n.chain.Chain()))
}

// handleSyncResponseLocked implements SYNC_RESPONSE(sender, blocks): stores
// the response if a sync round is in progress, otherwise ignores it.
func (n *Node) handleSyncResponseLocked(sender string, resp *wire.SyncResponse) {
	n.known[sender] = true
	if !n.syncSt.inProgress || resp == nil {
		return
	}
	n.syncSt.responses = append(n.syncSt.responses, *resp)
}

// concludeSyncLocked runs when the sync timer fires: select the longest
// received chain and adopt it if it is strictly longer than the local
// chain and not hash-sequence-identical.
func (n *Node) concludeSyncLocked() {
	defer func() { n.syncSt.inProgress = false }()

	local := n.chain.Chain()
	var best *wire.SyncResponse
	for i := range n.syncSt.responses {
		r := &n.syncSt.responses[i]
		if best == nil || len(r.Blocks) > len(best.Blocks) {
			best = r
		}
	}
	n.syncSt.responses = nil
	if best == nil || len(best.Blocks) <= len(local) {
		return
	}
	if sameHashSequence(local, best.Blocks) {
		return
	}
	if err := n.chain.ReorganizeTo(best.Blocks); err != nil {
		n.logger.Warn().Err(err).Msg("sync adoption failed")
	}
}

func sameHashSequence(a, b []*block.Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Hash != b[i].Hash {
			return false
		}
	}
	return true
}
