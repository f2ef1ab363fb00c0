package blockview

import (
	"fmt"

	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/log"
	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Build walks the view from its current tip to candidateTip: it finds
// their common ancestor via the index's branch walk, disconnects blocks
// down to (but not including) that ancestor, then reconnects the
// candidate's own blocks up to candidateTip (spec.md §4.10's view-building
// algorithm). Blocks reconnected this way must already have a persisted
// BlockOutline — the validator records one for every structurally-valid
// block it accepts, whether or not that block's fork ever becomes
// committable.
func (v *View) Build(candidateTip types.Hash) error {
	forkPoint, path, err := v.index.BranchWalk(v.tip, candidateTip)
	if err != nil {
		return fmt.Errorf("blockview: branch walk to %s: %w", candidateTip, err)
	}

	for v.tip != forkPoint {
		if err := v.RemoveBlock(v.tip); err != nil {
			return fmt.Errorf("blockview: disconnect %s: %w", v.tip, err)
		}
	}

	for _, hash := range path {
		outline, err := v.lookupOutline(hash)
		if err != nil {
			return err
		}
		blk, err := v.blockStore.ReadBlock(outline.FilePos)
		if err != nil {
			return fmt.Errorf("blockview: read block %s: %w", hash, err)
		}
		if err := v.AddBlock(blk, outline); err != nil {
			return fmt.Errorf("blockview: connect %s: %w", hash, err)
		}
	}
	return nil
}

func (v *View) lookupOutline(hash types.Hash) (chainstore.BlockOutline, error) {
	if o, ok := v.outlineAdds[hash]; ok {
		return o, nil
	}
	o, ok, err := v.store.GetOutline(hash)
	if err != nil {
		return chainstore.BlockOutline{}, fmt.Errorf("blockview: load outline for %s: %w", hash, err)
	}
	if !ok {
		return chainstore.BlockOutline{}, fmt.Errorf("blockview: no outline recorded for block %s", hash)
	}
	return o, nil
}

// Commit writes every staged delta as one atomic chainstore.UpdateFork
// call — block outlines, the tx index, the UTXO set, undo data, delegate
// snapshots, enrollments, address invites, and the fork tip all land
// together — then releases the fork's commit lock. Only valid on a
// committable view; the caller must not reuse the view afterward.
func (v *View) Commit() error {
	if !v.committable {
		return fmt.Errorf("blockview: Commit called on a non-committable view")
	}
	defer v.Discard()

	txAdds := make([]chainstore.TxAdd, 0, len(v.txLocOverlay))
	for txid, loc := range v.txLocOverlay {
		txAdds = append(txAdds, chainstore.TxAdd{TxID: txid, Loc: loc})
	}
	txRemoves := make([]types.Hash, 0, len(v.txTomb))
	for txid := range v.txTomb {
		txRemoves = append(txRemoves, txid)
	}

	utxoAdds := make([]chainstore.UTXOAdd, 0, len(v.utxoOverlay))
	for op, out := range v.utxoOverlay {
		utxoAdds = append(utxoAdds, chainstore.UTXOAdd{Outpoint: op, Out: *out})
	}
	utxoRemoves := make([]types.Outpoint, 0, len(v.utxoTomb))
	for op := range v.utxoTomb {
		utxoRemoves = append(utxoRemoves, op)
	}

	stageExtra := func(b storage.Batch) error {
		for hash, outline := range v.outlineAdds {
			if err := v.store.BatchPutOutline(b, hash, outline); err != nil {
				return fmt.Errorf("stage outline %s: %w", hash, err)
			}
		}
		for hash, undo := range v.undoByBlock {
			if err := v.store.BatchPutUndo(b, hash, undo); err != nil {
				return fmt.Errorf("stage undo %s: %w", hash, err)
			}
		}
		for _, hash := range v.undoDeletes {
			if err := v.store.BatchDeleteUndo(b, hash); err != nil {
				return fmt.Errorf("stage undo delete %s: %w", hash, err)
			}
		}
		for hash, votes := range v.delegateSnaps {
			if err := v.store.BatchPutDelegateSnapshot(b, hash, votes); err != nil {
				return fmt.Errorf("stage delegate snapshot %s: %w", hash, err)
			}
		}
		for _, e := range v.enrollAdds {
			if err := v.store.BatchPutEnroll(b, e.height, e.dest, e.pos); err != nil {
				return fmt.Errorf("stage enroll %s: %w", e.dest, err)
			}
		}
		for _, e := range v.enrollDeletes {
			if err := v.store.BatchDeleteEnroll(b, e.Height, e.Dest); err != nil {
				return fmt.Errorf("stage enroll delete %s: %w", e.Dest, err)
			}
		}
		for _, a := range v.newInvites {
			if err := v.store.BatchPutAddressInvite(b, v.fork, a.dest, a.invite); err != nil {
				return fmt.Errorf("stage invite %s: %w", a.dest, err)
			}
		}
		for _, dest := range v.inviteDeletes {
			if err := v.store.BatchDeleteAddressInvite(b, v.fork, dest); err != nil {
				return fmt.Errorf("stage invite delete %s: %w", dest, err)
			}
		}
		return nil
	}

	if err := chainstore.UpdateFork(v.db, v.utxoStore, v.fork, v.tip, txAdds, txRemoves, utxoAdds, utxoRemoves, stageExtra); err != nil {
		return fmt.Errorf("blockview: commit: %w", err)
	}
	log.Storage.Debug().
		Stringer("fork", v.fork).
		Stringer("tip", v.tip).
		Int("utxo_adds", len(utxoAdds)).
		Int("utxo_removes", len(utxoRemoves)).
		Msg("fork state committed")

	if f, ok := v.index.LookupFork(v.fork); ok {
		f.SetTip(v.tip)
	}
	return nil
}
