// Package chainindex maintains the in-memory block index and fork set
// (spec.md §4.6, C6): a hash-keyed arena of block metadata plus one Fork
// per known chain tip, and the branch-walk used to find where two
// candidate chains diverge. Adapted from the teacher's internal/chain
// package — chain.go's single chain-wide sync.Mutex generalizes here into
// an index-wide lock plus one rwlock per Fork (spec.md §5's locking
// order: index lock before any per-fork lock), and reorg.go's
// collectBranch single-branch walk generalizes into a two-tip lockstep
// walk since forks here are peers, not "current chain vs. candidate."
package chainindex

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/internal/log"
	"github.com/kaelnet/chaincore/pkg/types"
)

// BlockIndex is the in-memory record kept for every known block, whether
// or not it is on any fork's active path.
type BlockIndex struct {
	Hash      types.Hash
	PrevHash  types.Hash
	Height    uint64
	Timestamp uint32
	MintDest  types.Destination
	Trust     *big.Int
	FilePos   blockfile.Pos

	// Bits is the PoW difficulty this block was mined at (zero for non-PoW
	// block types). Kept alongside Trust — which is cumulative — since
	// internal/validator's retarget check needs the per-block value back
	// for its POW_ADJUST_COUNT-deep spacing window.
	Bits uint32
}

// HeightEntry is what a fork's height bucket records about one competing
// block at a given height — enough to enumerate rivals and reject a
// delegate repeating itself within the same slot, without re-reading the
// full block.
type HeightEntry struct {
	Timestamp    uint32
	MintDest     types.Destination
	RefBlockHash types.Hash
}

// Fork tracks one chain tip: its own rwlock, its current tip, and its
// height buckets (height → competing blocks at that height).
type Fork struct {
	mu       sync.RWMutex
	commitMu sync.Mutex
	hash     types.ChainID
	tip      types.Hash
	buckets  map[uint64]map[types.Hash]HeightEntry
}

func newFork(id types.ChainID, tip types.Hash) *Fork {
	return &Fork{hash: id, tip: tip, buckets: make(map[uint64]map[types.Hash]HeightEntry)}
}

// AcquireCommit serializes committable BlockViews: only one can be building
// or committing against this fork at a time (spec.md §4.10, §5's "a
// committable BlockView upgrades a fork's read-lock to write-lock on
// commit"). Kept as a mutex separate from mu — the rwlock guarding Tip/
// height-bucket reads — rather than reusing mu itself, since a committable
// view calls Tip()/SetTip() (which take mu) at several points across its own
// lifetime; folding the two into one lock would make a committable view
// deadlock against itself.
func (f *Fork) AcquireCommit() { f.commitMu.Lock() }

// ReleaseCommit releases the commit serialization lock.
func (f *Fork) ReleaseCommit() { f.commitMu.Unlock() }

// Tip returns the fork's current tip hash.
func (f *Fork) Tip() types.Hash {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tip
}

// SetTip updates the fork's tip.
func (f *Fork) SetTip(hash types.Hash) {
	f.mu.Lock()
	prev := f.tip
	f.tip = hash
	f.mu.Unlock()
	if prev != hash {
		log.Index.Debug().Stringer("fork", f.hash).Stringer("from", prev).Stringer("to", hash).Msg("fork tip moved")
	}
}

// RecordAtHeight adds one competing block to this fork's height bucket.
func (f *Fork) RecordAtHeight(height uint64, blockHash types.Hash, entry HeightEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[height]
	if !ok {
		bucket = make(map[types.Hash]HeightEntry)
		f.buckets[height] = bucket
	}
	bucket[blockHash] = entry
}

// AtHeight returns every block this fork has recorded at height.
func (f *Fork) AtHeight(height uint64) map[types.Hash]HeightEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[types.Hash]HeightEntry, len(f.buckets[height]))
	for k, v := range f.buckets[height] {
		out[k] = v
	}
	return out
}

// HasDelegateRepeat reports whether mintDest already minted a block at
// height on this fork — used to reject same-delegate repeats within a slot.
func (f *Fork) HasDelegateRepeat(height uint64, mintDest types.Destination) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, entry := range f.buckets[height] {
		if entry.MintDest.Equal(mintDest) {
			return true
		}
	}
	return false
}

// Index is the hash → *BlockIndex arena plus fork_hash → *Fork map
// (spec.md §4.6). mu guards the maps themselves, not the individual
// BlockIndex/Fork values they point to.
type Index struct {
	mu     sync.RWMutex
	byHash map[types.Hash]*BlockIndex
	forks  map[types.ChainID]*Fork
}

// New creates an empty index.
func New() *Index {
	return &Index{
		byHash: make(map[types.Hash]*BlockIndex),
		forks:  make(map[types.ChainID]*Fork),
	}
}

// Add inserts or overwrites a block's index entry.
func (idx *Index) Add(bi *BlockIndex) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byHash[bi.Hash] = bi
}

// Get retrieves a block's index entry.
func (idx *Index) Get(hash types.Hash) (*BlockIndex, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	bi, ok := idx.byHash[hash]
	return bi, ok
}

// Fork returns the named fork, creating it (rooted at tip) if it does not
// yet exist.
func (idx *Index) Fork(id types.ChainID, tipIfNew types.Hash) *Fork {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, ok := idx.forks[id]
	if !ok {
		f = newFork(id, tipIfNew)
		idx.forks[id] = f
		log.Index.Debug().Stringer("fork", id).Stringer("tip", tipIfNew).Msg("fork registered")
	}
	return f
}

// LookupFork returns the named fork without creating it.
func (idx *Index) LookupFork(id types.ChainID) (*Fork, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	f, ok := idx.forks[id]
	return f, ok
}

// BranchWalk finds where tip and candidate diverge: it walks both back
// along PrevHash in lockstep, preferring to step the side with the later
// timestamp each round so unequal-height branches still converge, until
// the two paths meet. Returns the fork point and the candidate-side path
// from (excluding) the fork point to (including) candidate, in
// fork-point-to-candidate order (spec.md §4.6).
func (idx *Index) BranchWalk(tip, candidate types.Hash) (forkPoint types.Hash, candidatePath []types.Hash, err error) {
	a, b := tip, candidate
	visitedA := map[types.Hash]bool{a: true}
	visitedB := map[types.Hash]bool{b: true}
	// candidateBack records every block walked on the candidate side, in
	// walked (descendant-to-ancestor) order, so the final path can be
	// built by reversing it down to (excluding) the fork point.
	candidateBack := []types.Hash{b}

	if a == b {
		return a, nil, nil
	}

	for {
		if visitedB[a] {
			forkPoint = a
			break
		}
		if visitedA[b] {
			forkPoint = b
			break
		}

		biA, ok := idx.Get(a)
		if !ok {
			return types.Hash{}, nil, fmt.Errorf("chainindex: branch walk: unknown block %s", a)
		}
		biB, ok := idx.Get(b)
		if !ok {
			return types.Hash{}, nil, fmt.Errorf("chainindex: branch walk: unknown block %s", b)
		}

		// Step whichever side has the later timestamp, so an unequal-height
		// branch doesn't starve the walk before the two paths meet.
		if biA.Timestamp >= biB.Timestamp {
			a = biA.PrevHash
			visitedA[a] = true
		} else {
			b = biB.PrevHash
			visitedB[b] = true
			candidateBack = append(candidateBack, b)
		}
	}

	var path []types.Hash
	for i := len(candidateBack) - 1; i >= 0; i-- {
		if candidateBack[i] == forkPoint {
			continue
		}
		path = append(path, candidateBack[i])
	}
	return forkPoint, path, nil
}
