// Package core is the chain-state composition root (spec.md §9): it wires
// internal/blockfile, internal/chainstore, internal/chainindex,
// internal/utxo and internal/validator together behind the external
// operation surface (spec.md §6) — initialize/add_new_block/add_new_tx/
// get_block/get_tx/retrieve_fork/list_forks/get_unspent/get_work/
// submit_work/get_proof_of_work_target/verify_ref_block/check_consistency.
// Grounded on the teacher's internal/chain.Chain, generalized from one
// fixed chain wired at process start into a store shared by every fork,
// assembled here instead of through package-level state.
package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/internal/chainindex"
	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/consensus"
	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/internal/validator"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Core holds every collaborator add_new_block/add_new_tx and the query
// operations need. Every field is itself safe for concurrent use; Core
// adds no locking of its own beyond what those collaborators already do
// (spec.md §5's locking order lives in internal/chainindex and
// internal/blockview, not here).
type Core struct {
	db         storage.DB
	blockStore *blockfile.Store
	index      *chainindex.Index
	store      *chainstore.Store
	utxoStore  *utxo.Store
	validator  *validator.Validator
}

// New wires a Core over an already-open db and blockStore, then recovers
// the in-memory index and fork set from whatever block_outline/fork_tip
// rows db already holds (spec.md §7's "recovery on startup"). It never
// creates a genesis block itself — a fresh db simply recovers to an empty
// index, and the first fork comes into being the same way every later one
// does: an ORIGIN block submitted through AddNewBlock (see genesis.go).
func New(db storage.DB, blockStore *blockfile.Store) (*Core, error) {
	store := chainstore.New(db)
	utxoStore := utxo.NewStore(db)
	idx := chainindex.New()
	v := validator.New(idx, store)

	c := &Core{
		db:         db,
		blockStore: blockStore,
		index:      idx,
		store:      store,
		utxoStore:  utxoStore,
		validator:  v,
	}
	if err := c.recover(); err != nil {
		return nil, fmt.Errorf("core: recovery: %w", err)
	}
	return c, nil
}

// Open is the initialize(data_dir) operation (spec.md §6): it opens the
// on-disk chain-state database and block file store under dataDir,
// creating them if they do not yet exist, and recovers a Core over them.
func Open(dataDir string) (*Core, error) {
	blockDir := filepath.Join(dataDir, "blocks")
	if err := os.MkdirAll(blockDir, 0o755); err != nil {
		return nil, fmt.Errorf("core: create block directory: %w", err)
	}
	db, err := storage.NewBadger(filepath.Join(dataDir, "chainstate"))
	if err != nil {
		return nil, fmt.Errorf("core: open chain state database: %w", err)
	}
	blockStore, err := blockfile.Open(blockDir, blockfile.DefaultMaxFileSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("core: open block file store: %w", err)
	}
	c, err := New(db, blockStore)
	if err != nil {
		blockStore.Close()
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying database and block file handles.
func (c *Core) Close() error {
	blockErr := c.blockStore.Close()
	dbErr := c.db.Close()
	if blockErr != nil {
		return blockErr
	}
	return dbErr
}

// recover rebuilds the in-memory index, fork set and height buckets from
// the persisted block_outline and fork_tip tables (spec.md §7). A block's
// fork membership is carried on its own outline (OriginHash), set when the
// block was first accepted — see addOriginBlock/addChainedBlock — so recovery never
// needs to walk prev_hash chains to rediscover it.
func (c *Core) recover() error {
	mintDest := make(map[types.Hash]types.Destination)
	bits := make(map[types.Hash]uint32)

	if err := c.store.ForEachOutline(func(hash types.Hash, o chainstore.BlockOutline) error {
		dest, blockBits := c.readMintAndBits(o)
		mintDest[hash] = dest
		bits[hash] = blockBits
		c.index.Add(&chainindex.BlockIndex{
			Hash:      hash,
			PrevHash:  o.PrevHash,
			Height:    o.Height,
			Timestamp: o.Timestamp,
			MintDest:  dest,
			Trust:     trustFromString(o.Trust),
			FilePos:   o.FilePos,
			Bits:      blockBits,
		})
		return nil
	}); err != nil {
		return fmt.Errorf("rebuild block index: %w", err)
	}

	if err := c.store.ForEachFork(func(fork types.ChainID, tip types.Hash) error {
		c.index.Fork(fork, tip)
		return nil
	}); err != nil {
		return fmt.Errorf("rebuild fork set: %w", err)
	}

	if err := c.store.ForEachOutline(func(hash types.Hash, o chainstore.BlockOutline) error {
		fork := types.ChainID(o.OriginHash)
		f, ok := c.index.LookupFork(fork)
		if !ok {
			f = c.index.Fork(fork, hash)
		}
		f.RecordAtHeight(o.Height, hash, chainindex.HeightEntry{
			Timestamp: o.Timestamp,
			MintDest:  mintDest[hash],
		})
		return nil
	}); err != nil {
		return fmt.Errorf("rebuild height buckets: %w", err)
	}
	return nil
}

// readMintAndBits reads a block's mint destination and its starting
// proof-of-work bits off disk — block_outline carries neither, only
// chainindex.BlockIndex's in-memory copy does, so recovery has to read each
// block back once. A PRIMARY block's bits come from its own sealed proof; an
// ORIGIN block carries no proof of its own, so its fork's seed difficulty is
// recovered from the fork profile serialized into its proof_bytes (the same
// value addOriginBlock reads at acceptance time, spec.md §8 invariant 1).
func (c *Core) readMintAndBits(o chainstore.BlockOutline) (types.Destination, uint32) {
	blk, err := c.blockStore.ReadBlock(o.FilePos)
	if err != nil {
		return types.Destination{}, 0
	}
	var dest types.Destination
	if blk.MintTx != nil {
		dest = blk.MintTx.SendTo
	}
	var bits uint32
	switch block.Type(o.Type) {
	case block.Primary:
		if proof, err := consensus.DecodeProofBytes(blk.Header.ProofBytes); err == nil {
			bits = proof.Bits
		}
	case block.Origin:
		var profile config.Profile
		if err := json.Unmarshal(blk.Header.ProofBytes, &profile); err == nil {
			bits = profile.InitialBits
		}
	}
	return dest, bits
}

func trustFromString(s string) *big.Int {
	trust := new(big.Int)
	if s != "" {
		trust.SetString(s, 10)
	}
	return trust
}
