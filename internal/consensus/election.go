// Package consensus implements deterministic, stake-weighted validator
// election (spec.md §4.2 "Validator election (deterministic)").
//
// The election policy is kept in its own package, separate from the chain
// store, the way the teacher repo keeps consensus.Engine/consensus.Validator
// separate from chain.Chain — the chain store calls into this package
// rather than embedding the weighting logic itself.
package consensus

import (
	"crypto/sha256"
	"math/big"
	"math/rand"
	"sort"
)

// StakeLookup reports an account's stake and balance for election purposes.
// internal/walletstate's Wallet satisfies this.
type StakeLookup interface {
	GetStake(id string) float64
	GetBalance(id string) float64
}

// candidate is one weighted entrant in the election.
type candidate struct {
	id     string
	weight float64
}

// SelectValidator performs one deterministic weighted draw over the known
// validator set, seeded from the current head hash, per spec.md §4.2 rules
// 1–5:
//  1. First pass: any known id with stake > 0, weighted by stake.
//  2. Fallback: if no one has stake, any known id with balance > 0,
//     weighted by balance.
//  3. If neither pass yields a candidate, return ("", false).
//  4. Seed a PRNG from SHA-256(headHash) interpreted as a big-endian
//     unsigned integer.
//  5. Perform one weighted draw and return the winner.
//
// known is sorted before the draw so that map iteration order (the caller's
// set of known validators) can never perturb the result: two nodes with the
// same wallet state, head hash and validator set must elect the same
// identifier regardless of how they enumerate that set.
func SelectValidator(headHash string, known []string, wallet StakeLookup) (string, bool) {
	ids := make([]string, len(known))
	copy(ids, known)
	sort.Strings(ids)

	candidates := weightedCandidates(ids, wallet.GetStake)
	if len(candidates) == 0 {
		candidates = weightedCandidates(ids, wallet.GetBalance)
	}
	if len(candidates) == 0 {
		return "", false
	}

	rng := newSeededRand(headHash)
	return weightedDraw(candidates, rng), true
}

func weightedCandidates(ids []string, weightOf func(string) float64) []candidate {
	var out []candidate
	for _, id := range ids {
		if w := weightOf(id); w > 0 {
			out = append(out, candidate{id: id, weight: w})
		}
	}
	return out
}

// newSeededRand builds a deterministic PRNG from SHA-256(headHash)
// interpreted as a big-endian unsigned integer, truncated to an int64 seed.
func newSeededRand(headHash string) *rand.Rand {
	sum := sha256.Sum256([]byte(headHash))
	seedInt := new(big.Int).SetBytes(sum[:])
	// math/rand seeds are int64; fold the 256-bit digest down deterministically.
	mod := new(big.Int).SetUint64(1<<63 - 1)
	seed := new(big.Int).Mod(seedInt, mod).Int64()
	//nolint:gosec // deterministic, not security-sensitive: this selects a
	// block proposer among honest peers, it does not protect a secret.
	return rand.New(rand.NewSource(seed))
}

// weightedDraw performs a single weighted random draw over candidates.
func weightedDraw(candidates []candidate, rng *rand.Rand) string {
	var total float64
	for _, c := range candidates {
		total += c.weight
	}
	if total <= 0 {
		return candidates[0].id
	}
	r := rng.Float64() * total
	var cum float64
	for _, c := range candidates {
		cum += c.weight
		if r < cum {
			return c.id
		}
	}
	return candidates[len(candidates)-1].id
}
