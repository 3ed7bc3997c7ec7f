// Package node implements the PoS node (spec.md §4.3 "PoS Node (C3)"):
// inbound message dispatch, the forge protocol, the optional vote
// protocol, the sync protocol and reorg-driven mempool recovery.
//
// Node mirrors the teacher's struct-of-subsystems node.Node: a single
// struct owning its chain store, mempool and relay client, constructed
// once via New and driven afterward by inbound messages and timers. Unlike
// the teacher's goroutine-per-topic libp2p wiring, every mutation here goes
// through one mutex: spec.md §5 requires the chain store's caller to
// serialize all access, and timer callbacks (vote-timeout, sync-timeout)
// must observe the same consistent state as the message dispatcher.
package node

import (
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-pos/internal/chain"
	"github.com/Klingon-tech/klingnet-pos/internal/mempool"
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
	"github.com/Klingon-tech/klingnet-pos/pkg/wire"
	"github.com/rs/zerolog"
)

// RelayClient is the node's outbound connection to the relay. cmd/posnode's
// relayConn satisfies it with a thin adapter around its TCP connection.
type RelayClient interface {
	Send(wire.Message) error
}

// Config holds the node's tunable protocol parameters (spec.md §6
// "Configuration").
type Config struct {
	VotingEnabled bool
	VoteThreshold float64
	VoteTimeout   time.Duration
	SyncTimeout   time.Duration
}

type pendingBlock struct {
	block  *block.Block
	voters map[string]bool
	timer  *time.Timer
}

type syncState struct {
	inProgress bool
	responses  []wire.SyncResponse
	timer      *time.Timer
}

// Node is a single participant in the network: one chain store, one
// mempool, one relay client.
type Node struct {
	mu sync.Mutex

	id     string
	chain  *chain.Chain
	pool   *mempool.Pool
	client RelayClient
	logger zerolog.Logger
	cfg    Config

	known map[string]bool

	pending map[string]*pendingBlock
	syncSt  syncState

	// now returns the current time in fractional seconds, overridable in
	// tests for deterministic block timestamps.
	now func() float64

	shutdown func()
}

// New builds a node around an existing chain store and mempool.
func New(id string, c *chain.Chain, pool *mempool.Pool, client RelayClient, cfg Config, logger zerolog.Logger) *Node {
	n := &Node{
		id:      id,
		chain:   c,
		pool:    pool,
		client:  client,
		logger:  logger,
		cfg:     cfg,
		known:   map[string]bool{id: true},
		pending: make(map[string]*pendingBlock),
		now:     func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
	c.RegisterReorgListener(n.onReorg)
	return n
}

// SetShutdownFunc registers the callback invoked when the node receives
// BYE("server") (spec.md §5 "every node treats BYE(\"server\") as a
// shutdown request").
func (n *Node) SetShutdownFunc(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shutdown = fn
}

// ID returns this node's identifier.
func (n *Node) ID() string { return n.id }

// KnownNodes returns a snapshot of the known-nodes set, including self.
func (n *Node) KnownNodes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.known))
	for id := range n.known {
		out = append(out, id)
	}
	return out
}

// Chain exposes the underlying chain store for read-only inspection (CLI
// "chain"/"wallet"/"info" commands).
func (n *Node) Chain() *chain.Chain { return n.chain }

// Mempool exposes the underlying mempool for read-only inspection.
func (n *Node) Mempool() *mempool.Pool { return n.pool }

// Dispatch routes one inbound message to its handler (spec.md §4.3
// "Inbound message dispatch").
func (n *Node) Dispatch(msg wire.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatchLocked(msg)
}

func (n *Node) dispatchLocked(msg wire.Message) {
	switch msg.Type {
	case wire.Hello:
		n.known[msg.SenderID] = true
	case wire.Bye:
		n.handleByeLocked(msg.SenderID)
	case wire.Step:
		n.forgeLocked(false)
	case wire.TransactionT:
		n.handleTransactionLocked(msg.SenderID, msg.Tx)
	case wire.BlockT:
		n.handleBlockLocked(msg.Block)
	case wire.BlockVoteT:
		n.handleBlockVoteLocked(msg.BlockVote)
	case wire.SyncRequestT:
		n.handleSyncRequestLocked(msg.SenderID)
	case wire.SyncResponseT:
		n.handleSyncResponseLocked(msg.SenderID, msg.SyncResponse)
	default:
		n.logger.Warn().Str("type", string(msg.Type)).Msg("unknown message type, dropped")
	}
}

func (n *Node) handleByeLocked(sender string) {
	if sender == "server" {
		n.logger.Info().Msg("relay is shutting down, saving and exiting")
		if n.shutdown != nil {
			go n.shutdown()
		}
		return
	}
	delete(n.known, sender)
}

// applyBlockLocked applies b to the chain store and evicts its
// transactions from the mempool (spec.md §3: RemoveConfirmed "used after a
// block is applied").
func (n *Node) applyBlockLocked(b *block.Block) error {
	if err := n.chain.ApplyBlock(b); err != nil {
		return err
	}
	n.pool.RemoveConfirmed(b.Transactions)
	return nil
}

func (n *Node) broadcast(msg wire.Message) {
	if err := n.client.Send(msg); err != nil {
		n.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("failed to send message, continuing")
	}
}

// onReorg is the chain store's reorg listener: it recovers orphaned
// transactions into the mempool (spec.md §4.3 "Reorg recovery callback").
// It runs with n.mu already held, since reorgs are only ever triggered from
// within a dispatch, forge or sync-timeout call.
func (n *Node) onReorg(removed []*block.Block) {
	newChainTxs := n.chainTransactionSet()
	var removedTxs []txn.Transaction
	for _, b := range removed {
		removedTxs = append(removedTxs, b.Transactions...)
	}
	n.pool.Recover(removedTxs, newChainTxs)
}

// chainTransactionSet flattens every transaction present anywhere in the
// current main chain.
func (n *Node) chainTransactionSet() []txn.Transaction {
	var all []txn.Transaction
	for _, b := range n.chain.Chain() {
		all = append(all, b.Transactions...)
	}
	return all
}
