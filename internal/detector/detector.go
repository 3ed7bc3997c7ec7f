// Package detector implements the double-spend heuristic (spec.md §4.5
// "Double-Spend Detector (C5)"): per-sender/per-node sliding windows, a
// bounded similarity score between transactions, and a fork-conflict scan
// across competing blocks at the same height. It has no analog in the
// teacher repo (klingnet prevents double-spends structurally via its UTXO
// set); the package shape — small struct, sync.Mutex, New constructor —
// follows the teacher's general style throughout internal/mempool and
// internal/consensus.
package detector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-pos/pkg/block"
	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
	"github.com/rs/zerolog"
)

// Config holds the detector's tunables (spec.md §4.5 "Configuration").
type Config struct {
	DetectionWindow    float64 // seconds
	SimilarityThreshold float64
}

// Detector tracks recent activity and raises alerts through its
// AlertManager. All state is protected by mu; the relay calls
// ObserveTransaction/ObserveBlock inline from its receive path and must
// never block on a slow listener (spec.md §5 "called inline... MUST NOT
// block").
type Detector struct {
	cfg    Config
	alerts *AlertManager
	logger zerolog.Logger

	mu            sync.Mutex
	bySender      map[string][]observedTx
	byNode        map[string][]observedBlock
	processedIDs  map[string]float64 // id -> timestamp, for window-based expiry
	detectedPairs map[string]bool    // unordered tx-id pairs already alerted
	attackCounter uint64
}

// New builds a Detector. alerts must not be nil; pass a manager built with
// an empty dbPath to disable durable logging.
func New(cfg Config, alerts *AlertManager, logger zerolog.Logger) *Detector {
	return &Detector{
		cfg:           cfg,
		alerts:        alerts,
		logger:        logger,
		bySender:      make(map[string][]observedTx),
		byNode:        make(map[string][]observedBlock),
		processedIDs:  make(map[string]float64),
		detectedPairs: make(map[string]bool),
	}
}

// ObserveTransaction runs the transaction-intake pipeline of spec.md §4.5.
// nodeID identifies the relay peer the transaction was observed from; it is
// not part of tx identity.
func (d *Detector) ObserveTransaction(nodeID string, t txn.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn().Interface("panic", r).Msg("detector: ObserveTransaction recovered")
		}
	}()

	if t.Sender == "" || t.Receiver == "" || t.Amount <= 0 {
		return
	}
	if t.IsSelfTransfer() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := t.Hash()
	window := d.bySender[t.Sender]

	if d.hasNearDuplicateLocked(window, t) {
		return
	}
	if _, seen := d.processedIDs[id]; seen {
		return
	}
	d.processedIDs[id] = t.Timestamp

	candidates := d.historicalCandidatesLocked(t.Sender, t)
	for _, c := range candidates {
		score := similarity(c.tx, t)
		if score >= d.cfg.SimilarityThreshold {
			d.emitDoubleSpendLocked(c, observedTx{id: id, tx: t}, score)
			break
		}
	}

	d.bySender[t.Sender] = append(window, observedTx{id: id, tx: t})
	d.trimLocked(t.Timestamp)
}

// hasNearDuplicateLocked implements the 2.0s near-duplicate suppression
// rule: same receiver and amount within 2.0 seconds of an existing entry.
func (d *Detector) hasNearDuplicateLocked(window []observedTx, t txn.Transaction) bool {
	const nearDuplicateWindow = 2.0
	for _, o := range window {
		if o.tx.Receiver == t.Receiver && o.tx.Amount == t.Amount &&
			absFloat(o.tx.Timestamp-t.Timestamp) <= nearDuplicateWindow {
			return true
		}
	}
	return false
}

// historicalCandidatesLocked returns prior transactions from sender within
// the detection window, deduplicated by (receiver, amount, floor(timestamp))
// and excluding self-transfers, in arrival order.
func (d *Detector) historicalCandidatesLocked(sender string, current txn.Transaction) []observedTx {
	var out []observedTx
	seenTriple := make(map[string]bool)
	for _, o := range d.bySender[sender] {
		if o.tx.IsSelfTransfer() {
			continue
		}
		if current.Timestamp-o.tx.Timestamp > d.cfg.DetectionWindow {
			continue
		}
		triple := fmt.Sprintf("%s|%v|%d", o.tx.Receiver, o.tx.Amount, int64(o.tx.Timestamp))
		if seenTriple[triple] {
			continue
		}
		seenTriple[triple] = true
		out = append(out, o)
	}
	return out
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// emitDoubleSpendLocked raises a POTENTIAL_DOUBLE_SPENDING alert for the
// (earlier, later) pair, skipping pairs already recorded.
func (d *Detector) emitDoubleSpendLocked(earlier, later observedTx, score float64) {
	key := pairKey(earlier.id, later.id)
	if d.detectedPairs[key] {
		return
	}
	d.detectedPairs[key] = true
	d.attackCounter++

	a := Alert{
		AttackID:   nextAttackID(d.attackCounter),
		Type:       "POTENTIAL_DOUBLE_SPENDING",
		Confidence: score,
		Severity:   severityFor(score),
		Description: fmt.Sprintf(
			"sender %s sent %.4g to %s at t=%.3f and %.4g to %s at t=%.3f (similarity %.2f)",
			later.tx.Sender, earlier.tx.Amount, earlier.tx.Receiver, earlier.tx.Timestamp,
			later.tx.Amount, later.tx.Receiver, later.tx.Timestamp, score,
		),
		DetectionTime: later.tx.Timestamp,
	}
	d.alerts.Raise(a)
}

// trimLocked drops window/processed-id entries older than the detection
// window relative to now, across every tracked sender/node.
func (d *Detector) trimLocked(now float64) {
	for sender, w := range d.bySender {
		d.bySender[sender] = trimTxWindow(w, now, d.cfg.DetectionWindow)
	}
	for node, w := range d.byNode {
		d.byNode[node] = trimBlockWindow(w, now, d.cfg.DetectionWindow)
	}
	cutoff := now - d.cfg.DetectionWindow
	for id, ts := range d.processedIDs {
		if ts < cutoff {
			delete(d.processedIDs, id)
		}
	}
}

// ObserveBlock runs the fork-conflict scan of spec.md §4.5 "Block intake".
func (d *Detector) ObserveBlock(nodeID string, b *block.Block) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn().Interface("panic", r).Msg("detector: ObserveBlock recovered")
		}
	}()
	if b == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var nodeIDs []string
	for n := range d.byNode {
		nodeIDs = append(nodeIDs, n)
	}
	sort.Strings(nodeIDs) // deterministic scan order for reproducible attack ids

	for _, n := range nodeIDs {
		if n == nodeID {
			continue
		}
		for _, o := range d.byNode[n] {
			if o.block.Index != b.Index || o.block.Hash == b.Hash {
				continue
			}
			conflicts := conflictingPairs(b, o.block)
			if len(conflicts) > 0 {
				d.emitForkAlertLocked(nodeID, n, b, o.block, conflicts)
			}
		}
	}

	d.byNode[nodeID] = append(d.byNode[nodeID], observedBlock{nodeID: nodeID, block: b})
	d.trimLocked(b.Timestamp)
}

type txConflict struct {
	a, b txn.Transaction
}

// conflictingPairs finds transaction pairs across two competing blocks that
// look like the same value being spent twice: same non-empty sender,
// different receiver, amounts within 20% of the larger.
func conflictingPairs(a, b *block.Block) []txConflict {
	var out []txConflict
	for _, ta := range a.Transactions {
		if ta.IsSelfTransfer() {
			continue
		}
		for _, tb := range b.Transactions {
			if tb.IsSelfTransfer() {
				continue
			}
			if ta.Sender == "" || ta.Sender != tb.Sender || ta.Receiver == tb.Receiver {
				continue
			}
			max := ta.Amount
			if tb.Amount > max {
				max = tb.Amount
			}
			if max <= 0 {
				continue
			}
			if absFloat(ta.Amount-tb.Amount) <= 0.2*max {
				out = append(out, txConflict{a: ta, b: tb})
			}
		}
	}
	return out
}

func (d *Detector) emitForkAlertLocked(nodeA, nodeB string, blockA, blockB *block.Block, conflicts []txConflict) {
	d.attackCounter++
	hashA, hashB := truncatedHash(blockA.Hash), truncatedHash(blockB.Hash)
	a := Alert{
		AttackID:   nextAttackID(d.attackCounter),
		Type:       "FORK_DOUBLE_SPENDING",
		Confidence: 0.95,
		Severity:   "CRITICAL",
		Description: fmt.Sprintf(
			"height %d: node %s (block %s) conflicts with node %s (block %s) across %d transaction pair(s)",
			blockA.Index, nodeA, hashA, nodeB, hashB, len(conflicts),
		),
		DetectionTime: blockA.Timestamp,
	}
	d.alerts.Raise(a)
}

func truncatedHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
