package blockview

import (
	"fmt"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/delegate"
	"github.com/kaelnet/chaincore/internal/log"
	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/types"
)

// AddBlock connects blk on top of the view's current tip, applying its mint
// output, every ordinary transaction's spends and outputs, its delegate
// ledger transition, and its address-invite edges, all into the view's
// overlay — nothing is persisted until Commit. outline is the caller's
// already-computed block_outline row (chainindex/validator own height,
// trust and prev-hash bookkeeping; this package reads FilePos, Height and
// PrevHash out of it and stages the row itself for Commit). Grounded on the teacher's
// internal/chain/reorg.go:applyBlockWithUndo.
func (v *View) AddBlock(blk *block.Block, outline chainstore.BlockOutline) error {
	blockHash := blk.Hash(outline.Height)

	var undo chainstore.UndoData
	provider := utxoProvider{v}

	mint := blk.MintTx
	mintTxID := mint.ID()
	v.putUnspent(types.Outpoint{TxID: mintTxID, Index: 0}, utxo.TxOut{
		Dest: mint.SendTo, Amount: mint.Amount, TxTime: mint.Timestamp, LockUntil: mint.LockUntil,
	})
	v.putTxLocation(mintTxID, chainstore.TxLocation{ForkHash: v.fork, BlockHeight: outline.Height, FilePos: outline.FilePos})
	if invited, err := v.maybeInvite(types.Destination{}, mint.SendTo, mint.Amount, mintTxID); err != nil {
		return fmt.Errorf("blockview: mint invite check: %w", err)
	} else if invited {
		undo.Invited = append(undo.Invited, mint.SendTo)
	}

	apps := make([]delegate.OrdinaryApplication, 0, len(blk.VTX))
	for i, t := range blk.VTX {
		change, spender, err := t.ValidateWithUTXOs(provider, outline.Height)
		if err != nil {
			return fmt.Errorf("blockview: tx %d (%s): %w", i, t.ID(), err)
		}

		for _, in := range t.Inputs {
			op := in.Outpoint()
			spentOut, ok, err := v.getUnspent(op)
			if err != nil {
				return fmt.Errorf("blockview: tx %d: resolve spent input %s: %w", i, op, err)
			}
			if !ok {
				return fmt.Errorf("blockview: tx %d: spent input %s vanished after validation", i, op)
			}
			undo.SpentOutputs = append(undo.SpentOutputs, chainstore.SpentOutput{Outpoint: op, Out: *spentOut})
			v.spendUnspent(op)
		}

		txid := t.ID()
		v.putUnspent(types.Outpoint{TxID: txid, Index: 0}, utxo.TxOut{
			Dest: t.SendTo, Amount: t.Amount, TxTime: t.Timestamp, LockUntil: t.LockUntil,
		})
		if change > 0 {
			v.putUnspent(types.Outpoint{TxID: txid, Index: 1}, utxo.TxOut{
				Dest: spender, Amount: change, TxTime: t.Timestamp, LockUntil: t.LockUntil,
			})
		}
		v.putTxLocation(txid, chainstore.TxLocation{ForkHash: v.fork, BlockHeight: outline.Height, FilePos: outline.FilePos})

		if invited, err := v.maybeInvite(spender, t.SendTo, t.Amount, txid); err != nil {
			return fmt.Errorf("blockview: tx %d: invite check: %w", i, err)
		} else if invited {
			undo.Invited = append(undo.Invited, t.SendTo)
		}

		apps = append(apps, delegate.OrdinaryApplication{Tx: t, SpenderDest: spender, Pos: outline.FilePos})
	}

	newLedger, enrolls, err := delegate.TransitionBlock(v.ledger, config.MinEnrollAmount, mint.SendTo, mint.Amount, blk.Sig, apps)
	if err != nil {
		return fmt.Errorf("blockview: delegate transition: %w", err)
	}
	v.ledger = newLedger

	for _, e := range enrolls {
		undo.Enrollments = append(undo.Enrollments, chainstore.EnrollUndo{Height: e.AnchorHeight, Dest: e.DelegateDest})
		v.enrollAdds = append(v.enrollAdds, enrollAdd{height: e.AnchorHeight, dest: e.DelegateDest, pos: e.Pos})
		log.Delegate.Info().Stringer("delegate", e.DelegateDest).Uint64("anchor_height", e.AnchorHeight).Stringer("cert_tx", e.TxID).Msg("delegate enrolled")
	}

	v.delegateSnaps[blockHash] = map[types.Destination]int64(newLedger.Clone())
	v.undoByBlock[blockHash] = undo
	v.undoDeletes = removeHash(v.undoDeletes, blockHash)
	v.outlineAdds[blockHash] = outline

	v.addedBlocks = append(v.addedBlocks, blk)
	v.tip = blockHash
	return nil
}

// RemoveBlock disconnects the block known as blockHash from the view's
// current tip, reversing exactly what AddBlock did for it: restoring every
// output its transactions spent, deleting its own outputs, rolling the
// delegate ledger back to its parent's snapshot, and undoing its
// enrollment and address-invite records. The block and its undo data are
// read from whatever the view has staged so far, falling through to the
// persisted tables for blocks this view didn't itself add. Grounded on the
// teacher's internal/chain/reorg.go:revertBlock.
func (v *View) RemoveBlock(blockHash types.Hash) error {
	outline, ok := v.outlineAdds[blockHash]
	if !ok {
		var err error
		outline, ok, err = v.store.GetOutline(blockHash)
		if err != nil {
			return fmt.Errorf("blockview: load outline for %s: %w", blockHash, err)
		}
		if !ok {
			return fmt.Errorf("blockview: no outline recorded for block %s", blockHash)
		}
	}

	blk, err := v.blockStore.ReadBlock(outline.FilePos)
	if err != nil {
		return fmt.Errorf("blockview: read block %s: %w", blockHash, err)
	}

	undo, ok := v.undoByBlock[blockHash]
	if !ok {
		undo, ok, err = v.store.GetUndo(blockHash)
		if err != nil {
			return fmt.Errorf("blockview: load undo data for %s: %w", blockHash, err)
		}
		if !ok {
			return fmt.Errorf("blockview: no undo data recorded for block %s", blockHash)
		}
	}

	for i := len(blk.VTX) - 1; i >= 0; i-- {
		t := blk.VTX[i]
		txid := t.ID()
		v.spendUnspent(types.Outpoint{TxID: txid, Index: 0})
		v.spendUnspent(types.Outpoint{TxID: txid, Index: 1})
		v.removeTxLocation(txid)
	}
	for i := len(undo.SpentOutputs) - 1; i >= 0; i-- {
		so := undo.SpentOutputs[i]
		v.putUnspent(so.Outpoint, so.Out)
	}

	mintTxID := blk.MintTx.ID()
	v.spendUnspent(types.Outpoint{TxID: mintTxID, Index: 0})
	v.removeTxLocation(mintTxID)

	v.enrollDeletes = append(v.enrollDeletes, undo.Enrollments...)
	v.inviteDeletes = append(v.inviteDeletes, undo.Invited...)

	parentVotes, ok, err := v.store.GetDelegateSnapshot(outline.PrevHash)
	if err != nil {
		return fmt.Errorf("blockview: load parent delegate snapshot %s: %w", outline.PrevHash, err)
	}
	if ok {
		v.ledger = delegate.Ledger(parentVotes).Clone()
	} else {
		v.ledger = delegate.Ledger{}
	}

	delete(v.delegateSnaps, blockHash)
	delete(v.outlineAdds, blockHash)
	delete(v.undoByBlock, blockHash)
	v.undoDeletes = append(v.undoDeletes, blockHash)

	v.removedBlocks = append(v.removedBlocks, blk)
	v.tip = outline.PrevHash
	return nil
}

// maybeInvite stages a new address_invite edge for dest if amount clears
// the invite threshold and dest has no edge yet (spec.md §4.5). Returns
// whether an edge was staged, so the caller can record it in the block's
// undo data.
func (v *View) maybeInvite(inviter, dest types.Destination, amount int64, txid types.Hash) (bool, error) {
	if amount < config.InviteThreshold {
		return false, nil
	}
	has, err := v.hasInvite(dest)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	v.newInvites = append(v.newInvites, inviteAdd{
		dest:   dest,
		invite: chainstore.AddressInvite{Inviter: inviter, InviteTxID: txid},
	})
	return true, nil
}

// removeHash returns hashes with target removed, if present. Used when
// AddBlock re-connects a block this same view had previously disconnected
// (a fork flip-flop within one commit session).
func removeHash(hashes []types.Hash, target types.Hash) []types.Hash {
	for i, h := range hashes {
		if h == target {
			return append(hashes[:i], hashes[i+1:]...)
		}
	}
	return hashes
}
