// Package wire defines the relay protocol's message envelope and its
// length-prefixed binary framing (spec.md §6 "External interfaces").
//
// The payload codec is encoding/gob rather than JSON: no schema or
// generated-code binary format appears anywhere in the retrieved examples
// to ground a third-party codec against, and gob is the standard-library
// binary encoding idiomatic Go reaches for in that situation.
package wire

import (
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

// Type discriminates the union of messages carried over the wire.
type Type string

const (
	Hello        Type = "HELLO"
	Bye          Type = "BYE"
	Step         Type = "STEP"
	TransactionT Type = "TRANSACTION"
	BlockT       Type = "BLOCK"
	BlockVoteT   Type = "BLOCK_VOTE"
	SyncRequestT Type = "SYNC_REQUEST"
	SyncResponseT Type = "SYNC_RESPONSE"
)

// BlockVote carries one vote for a proposed block's hash.
type BlockVote struct {
	VoterID   string
	BlockHash string
}

// SyncResponse carries the responder's full chain, genesis first.
type SyncResponse struct {
	Blocks []*block.Block
}

// Message is the tagged union sent between relay and node (spec.md §6
// "Message { type, sender_id, tx?, block?, block_vote?, sync_response? }").
// Exactly the fields relevant to Type are populated; the rest are zero
// values, which gob omits from the wire encoding.
type Message struct {
	Type         Type
	SenderID     string
	Tx           *txn.Transaction
	Block        *block.Block
	BlockVote    *BlockVote
	SyncResponse *SyncResponse
}

// NewHello builds a HELLO announcement.
func NewHello(senderID string) Message {
	return Message{Type: Hello, SenderID: senderID}
}

// NewBye builds a BYE notice, used both for a disconnecting peer's id and
// for the server's own shutdown notice ("server").
func NewBye(senderID string) Message {
	return Message{Type: Bye, SenderID: senderID}
}

// NewStep builds a STEP tick.
func NewStep(senderID string) Message {
	return Message{Type: Step, SenderID: senderID}
}

// NewTransaction wraps a transaction announcement.
func NewTransaction(senderID string, t txn.Transaction) Message {
	return Message{Type: TransactionT, SenderID: senderID, Tx: &t}
}

// NewBlock wraps a proposed or confirmed block.
func NewBlock(senderID string, b *block.Block) Message {
	return Message{Type: BlockT, SenderID: senderID, Block: b}
}

// NewBlockVote wraps a vote for a pending block's hash.
func NewBlockVote(senderID, voterID, blockHash string) Message {
	return Message{Type: BlockVoteT, SenderID: senderID, BlockVote: &BlockVote{VoterID: voterID, BlockHash: blockHash}}
}

// NewSyncRequest asks peers for their current chain.
func NewSyncRequest(senderID string) Message {
	return Message{Type: SyncRequestT, SenderID: senderID}
}

// NewSyncResponse answers a sync request with a full chain.
func NewSyncResponse(senderID string, blocks []*block.Block) Message {
	return Message{Type: SyncResponseT, SenderID: senderID, SyncResponse: &SyncResponse{Blocks: blocks}}
}
