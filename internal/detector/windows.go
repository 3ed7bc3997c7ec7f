package detector

import (
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

// observedTx is one transaction recorded in a sender's window, tagged with
// the identity the intake path derived for it.
type observedTx struct {
	id string
	tx txn.Transaction
}

// observedBlock is one block recorded in a node's window.
type observedBlock struct {
	nodeID string
	block  *block.Block
}

// trimTxWindow drops entries older than window seconds relative to now.
// Entries are appended in arrival order and trimming is a prefix scan that
// stops at the first entry inside the window, so an old entry that arrived
// after a newer one is kept until every entry ahead of it has expired.
func trimTxWindow(entries []observedTx, now, window float64) []observedTx {
	cutoff := now - window
	i := 0
	for i < len(entries) && entries[i].tx.Timestamp < cutoff {
		i++
	}
	return entries[i:]
}

// trimBlockWindow drops entries older than window seconds relative to now.
func trimBlockWindow(entries []observedBlock, now, window float64) []observedBlock {
	cutoff := now - window
	i := 0
	for i < len(entries) && entries[i].block.Timestamp < cutoff {
		i++
	}
	return entries[i:]
}
