package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/klingnet-pos/internal/walletstate"
	"github.com/Klingon-tech/klingnet-pos/pkg/block"
)

// blocksFileName is the on-disk snapshot file name within a node's
// directory (spec.md §6 "On-disk snapshot").
const blocksFileName = "blocks.json"

// SnapshotToDisk writes the main chain, genesis first, as a JSON array to
// <dir>/blocks.json.
func (c *Chain) SnapshotToDisk(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("chain: snapshot: create dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(c.mainChain, "", "  ")
	if err != nil {
		return fmt.Errorf("chain: snapshot: marshal chain: %w", err)
	}
	path := filepath.Join(dir, blocksFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("chain: snapshot: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("chain: snapshot: rename into place: %w", err)
	}
	return nil
}

// LoadFromDisk replaces the chain with the contents of <dir>/blocks.json,
// replayed onto a genesis wallet seeded from genesisState (spec.md §6
// "initial_state"). A missing file is not an error: the chain is left at
// genesis-only, seeded. A corrupt file, or one whose blocks fail to replay
// against genesisState, degrades to an empty chain with only the seeded
// genesis block (spec.md §7 "a corrupt snapshot degrades to an empty chain
// with only the genesis block").
func LoadFromDisk(dir string, genesisState map[string]walletstate.Account) (*Chain, error) {
	path := filepath.Join(dir, blocksFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewWithGenesisState(genesisState), nil
	}
	if err != nil {
		return nil, fmt.Errorf("chain: load: read %s: %w", path, err)
	}

	var blocks []*block.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return NewWithGenesisState(genesisState), nil
	}
	if len(blocks) == 0 || !blocks[0].IsGenesis() {
		return NewWithGenesisState(genesisState), nil
	}

	c := NewWithGenesisState(genesisState)
	for _, b := range blocks[1:] {
		if err := c.ApplyBlock(b); err != nil {
			return NewWithGenesisState(genesisState), nil
		}
	}
	return c, nil
}
