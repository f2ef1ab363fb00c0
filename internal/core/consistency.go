package core

import (
	"fmt"

	"github.com/kaelnet/chaincore/internal/blockview"
	"github.com/kaelnet/chaincore/pkg/types"
)

// CheckConsistency is the check_consistency operation (spec.md §7/§8): it
// re-derives level's tier of invariants over the trailing depth blocks of
// fork and returns the first violation found, or nil if everything checked
// out. Higher levels subsume lower ones:
//
//	0 — every trailing block's outline round-trips to real bytes on disk
//	1 — adds: every one of its transactions has a tx_index entry naming
//	    the block's fork and height
//	2 — adds: disconnecting and reconnecting those blocks through a
//	    throwaway blockview.View reproduces the same tip and delegate
//	    ledger the persisted store already has; the replayed UTXO set is
//	    not compared with the persisted one
func (c *Core) CheckConsistency(fork types.ChainID, level, depth int) error {
	f, ok := c.index.LookupFork(fork)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFork, fork)
	}
	tip := f.Tip()

	trail, err := c.trailingBlocks(tip, depth)
	if err != nil {
		return err
	}

	if err := c.checkOutlinesAndTxIndex(trail, level); err != nil {
		return err
	}
	if level >= 2 {
		if err := c.checkFoldConsistency(fork, trail); err != nil {
			return err
		}
	}
	return nil
}

// trailingBlocks walks back from tip via PrevHash, returning up to depth
// hashes oldest-first.
func (c *Core) trailingBlocks(tip types.Hash, depth int) ([]types.Hash, error) {
	var hashes []types.Hash
	cur := tip
	for i := 0; i < depth; i++ {
		if cur.IsZero() {
			break
		}
		bi, ok := c.index.Get(cur)
		if !ok {
			return nil, fmt.Errorf("core: consistency check: block %s not indexed", cur)
		}
		hashes = append(hashes, cur)
		cur = bi.PrevHash
	}
	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}
	return hashes, nil
}

// checkOutlinesAndTxIndex implements level 0 (outline round-trips to its
// recorded file position) and, at level >= 1, also confirms every
// transaction the block committed has a tx_index entry carrying the fork
// and height the outline recorded.
func (c *Core) checkOutlinesAndTxIndex(trail []types.Hash, level int) error {
	for _, hash := range trail {
		outline, ok, err := c.store.GetOutline(hash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("core: consistency check: missing outline for %s", hash)
		}
		blk, err := c.blockStore.ReadBlock(outline.FilePos)
		if err != nil {
			return fmt.Errorf("core: consistency check: read block %s: %w", hash, err)
		}
		if blk.Header.TxMerkleRoot != outline.TxMerkleRoot {
			return fmt.Errorf("core: consistency check: %s merkle root mismatch: outline %s, block %s", hash, outline.TxMerkleRoot, blk.Header.TxMerkleRoot)
		}

		if level < 1 {
			continue
		}
		for _, t := range blk.Transactions() {
			txid := t.ID()
			loc, ok, err := c.store.GetTxLocation(txid)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("core: consistency check: tx %s from block %s missing from tx_index", txid, hash)
			}
			if loc.ForkHash != types.ChainID(outline.OriginHash) || loc.BlockHeight != outline.Height {
				return fmt.Errorf("core: consistency check: tx %s index points at wrong block (fork %s height %d, want fork %s height %d)", txid, loc.ForkHash, loc.BlockHeight, types.ChainID(outline.OriginHash), outline.Height)
			}
		}
	}
	return nil
}

// checkFoldConsistency implements level 2: it opens a non-committable
// blockview.View (so nothing it does ever reaches disk — Commit is never
// called), disconnects trail's blocks and reconnects them in the same
// order, then compares the resulting tip and delegate ledger against the
// real, persisted state. A divergence here means the persisted delegate
// state was not produced by folding these blocks in order. The replayed
// UTXO set is not compared with the persisted one.
func (c *Core) checkFoldConsistency(fork types.ChainID, trail []types.Hash) error {
	if len(trail) == 0 {
		return nil
	}

	view, err := blockview.New(c.index, c.store, c.utxoStore, c.blockStore, c.db, fork, false)
	if err != nil {
		return fmt.Errorf("core: consistency check: open view: %w", err)
	}
	defer view.Discard()

	forkPoint := trail[0]
	if bi, ok := c.index.Get(forkPoint); ok {
		forkPoint = bi.PrevHash
	}
	for i := len(trail) - 1; i >= 0; i-- {
		if view.Tip() == forkPoint {
			break
		}
		if err := view.RemoveBlock(view.Tip()); err != nil {
			return fmt.Errorf("core: consistency check: disconnect %s: %w", view.Tip(), err)
		}
	}

	for _, hash := range trail {
		outline, ok, err := c.store.GetOutline(hash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("core: consistency check: missing outline for %s", hash)
		}
		blk, err := c.blockStore.ReadBlock(outline.FilePos)
		if err != nil {
			return fmt.Errorf("core: consistency check: read block %s: %w", hash, err)
		}
		if err := view.AddBlock(blk, outline); err != nil {
			return fmt.Errorf("core: consistency check: reconnect %s: %w", hash, err)
		}
	}

	wantTip := trail[len(trail)-1]
	if view.Tip() != wantTip {
		return fmt.Errorf("core: consistency check: replayed tip %s does not match recorded tip %s", view.Tip(), wantTip)
	}

	persisted, _, err := c.store.GetDelegateSnapshot(wantTip)
	if err != nil {
		return fmt.Errorf("core: consistency check: load persisted delegate snapshot: %w", err)
	}
	replayed := view.Ledger()
	if len(persisted) != len(replayed) {
		return fmt.Errorf("core: consistency check: delegate ledger size mismatch: persisted %d, replayed %d", len(persisted), len(replayed))
	}
	for dest, votes := range persisted {
		if replayed[dest] != votes {
			return fmt.Errorf("core: consistency check: delegate ledger mismatch for %s: persisted %d, replayed %d", dest, votes, replayed[dest])
		}
	}
	return nil
}
