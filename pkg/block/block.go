// Package block defines the Block type and its canonical hash.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-pos/pkg/txn"
)

// GenesisPrevHash is the fixed 64-character hex prev-hash used by the
// genesis block (spec.md §3: "64 zeros for genesis").
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisValidator is the fixed validator identifier for the genesis block.
const GenesisValidator = "genesis"

// Block is a single entry in the chain.
type Block struct {
	Index        uint64            `json:"index"`
	PrevHash     string            `json:"prev_hash"`
	Timestamp    float64           `json:"timestamp"`
	Validator    string            `json:"validator"`
	Transactions []txn.Transaction `json:"transactions"`
	Hash         string            `json:"hash"`
}

// canonicalString builds the string hashed to produce the block's identity:
// "index ‖ prev_hash ‖ timestamp ‖ validator ‖ concat(tx canonical strings)".
func canonicalString(index uint64, prevHash string, timestamp float64, validator string, txs []txn.Transaction) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(index, 10))
	b.WriteString(prevHash)
	b.WriteString(strconv.FormatFloat(timestamp, 'f', -1, 64))
	b.WriteString(validator)
	for _, t := range txs {
		b.WriteString(t.Canonical())
	}
	return b.String()
}

// ComputeHash returns the SHA-256 hash (hex-encoded) of the block's
// canonical representation.
func ComputeHash(index uint64, prevHash string, timestamp float64, validator string, txs []txn.Transaction) string {
	sum := sha256.Sum256([]byte(canonicalString(index, prevHash, timestamp, validator, txs)))
	return hex.EncodeToString(sum[:])
}

// New constructs a block and computes its hash.
func New(index uint64, prevHash string, timestamp float64, validator string, txs []txn.Transaction) *Block {
	b := &Block{
		Index:        index,
		PrevHash:     prevHash,
		Timestamp:    timestamp,
		Validator:    validator,
		Transactions: txs,
	}
	b.Hash = ComputeHash(b.Index, b.PrevHash, b.Timestamp, b.Validator, b.Transactions)
	return b
}

// Genesis returns the fixed genesis block (spec.md §3 invariant 1).
func Genesis() *Block {
	return New(0, GenesisPrevHash, 0, GenesisValidator, nil)
}

// VerifyHash reports whether the block's stored hash matches its recomputed
// canonical hash. Loading code (from_proto/from_dict analogs) trusts the
// stored hash but every validation path must call this.
func (b *Block) VerifyHash() bool {
	return b.Hash == ComputeHash(b.Index, b.PrevHash, b.Timestamp, b.Validator, b.Transactions)
}

// IsGenesis reports whether this block is the fixed genesis block.
func (b *Block) IsGenesis() bool {
	return b.Index == 0 && b.Hash == Genesis().Hash
}

// String returns a short human-readable description for logging.
func (b *Block) String() string {
	short := b.Hash
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("block#%d[%s..](%d txs)", b.Index, short, len(b.Transactions))
}
