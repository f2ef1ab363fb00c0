// Package blockview implements the BlockView / commit engine (spec.md
// §4.10, C10): an ephemeral overlay workspace used to walk a fork from its
// current tip to a candidate new tip and, if the candidate wins, commit the
// resulting deltas atomically. Grounded on the teacher's
// internal/chain/reorg.go (applyBlockWithUndo/revertBlock/Reorg/
// collectBranch), the single closest analogue in the corpus to this
// component, generalized from "the current chain vs. a challenger" to one
// fork among several independent peers.
package blockview

import (
	"fmt"

	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/internal/chainindex"
	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/delegate"
	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// View is the overlay workspace spec.md §4.10 calls BlockView: tx_overlay
// and utxo_overlay are the in-memory deltas a sequence of AddBlock/
// RemoveBlock calls has produced, falling through to the persisted tables
// when a key isn't present; added_blocks/removed_blocks record that
// sequence itself, for the caller to report or replay.
type View struct {
	fork        types.ChainID
	committable bool

	index      *chainindex.Index
	store      *chainstore.Store
	utxoStore  *utxo.Store
	blockStore *blockfile.Store
	db         storage.DB

	baseTip types.Hash
	tip     types.Hash

	utxoOverlay map[types.Outpoint]*utxo.TxOut
	utxoTomb    map[types.Outpoint]bool

	txLocOverlay map[types.Hash]chainstore.TxLocation
	txTomb       map[types.Hash]bool

	addedBlocks   []*block.Block
	removedBlocks []*block.Block

	undoByBlock map[types.Hash]chainstore.UndoData
	undoDeletes []types.Hash

	outlineAdds   map[types.Hash]chainstore.BlockOutline
	delegateSnaps map[types.Hash]map[types.Destination]int64

	newInvites    []inviteAdd
	inviteDeletes []types.Destination
	enrollAdds    []enrollAdd
	enrollDeletes []chainstore.EnrollUndo

	ledger delegate.Ledger
}

type inviteAdd struct {
	dest   types.Destination
	invite chainstore.AddressInvite
}

type enrollAdd struct {
	height uint64
	dest   types.Destination
	pos    blockfile.Pos
}

// New opens a view over fork's currently persisted tip. A committable view
// must be released with Commit or Discard — it holds the fork's commit
// serialization lock for its whole lifetime (spec.md §4.10: "only one
// committable view per fork at a time").
func New(
	idx *chainindex.Index,
	store *chainstore.Store,
	utxoStore *utxo.Store,
	blockStore *blockfile.Store,
	db storage.DB,
	fork types.ChainID,
	committable bool,
) (*View, error) {
	f, ok := idx.LookupFork(fork)
	if !ok {
		return nil, fmt.Errorf("blockview: unknown fork %s", fork)
	}
	if committable {
		f.AcquireCommit()
	}

	tip := f.Tip()
	votes, _, err := store.GetDelegateSnapshot(tip)
	if err != nil {
		if committable {
			f.ReleaseCommit()
		}
		return nil, fmt.Errorf("blockview: load delegate snapshot for tip %s: %w", tip, err)
	}

	return &View{
		fork: fork, committable: committable,
		index: idx, store: store, utxoStore: utxoStore, blockStore: blockStore, db: db,
		baseTip: tip, tip: tip,
		utxoOverlay:   make(map[types.Outpoint]*utxo.TxOut),
		utxoTomb:      make(map[types.Outpoint]bool),
		txLocOverlay:  make(map[types.Hash]chainstore.TxLocation),
		txTomb:        make(map[types.Hash]bool),
		undoByBlock:   make(map[types.Hash]chainstore.UndoData),
		outlineAdds:   make(map[types.Hash]chainstore.BlockOutline),
		delegateSnaps: make(map[types.Hash]map[types.Destination]int64),
		ledger:        delegate.Ledger(votes),
	}, nil
}

// Discard releases a committable view's commit lock without writing
// anything. Safe to call on a non-committable view (a no-op).
func (v *View) Discard() {
	if !v.committable {
		return
	}
	if f, ok := v.index.LookupFork(v.fork); ok {
		f.ReleaseCommit()
	}
}

// Tip returns the tip this view currently represents, after whatever
// AddBlock/RemoveBlock calls have been applied so far.
func (v *View) Tip() types.Hash { return v.tip }

// AddedBlocks returns every block this view has connected, in connection
// order.
func (v *View) AddedBlocks() []*block.Block { return v.addedBlocks }

// RemovedBlocks returns every block this view has disconnected, in
// disconnection order (descendant-to-ancestor, i.e. the order RemoveBlock
// was called).
func (v *View) RemovedBlocks() []*block.Block { return v.removedBlocks }

// Ledger returns the delegate vote tally this view currently represents.
func (v *View) Ledger() delegate.Ledger { return v.ledger }

// getUnspent resolves an outpoint through the overlay, falling through to
// the persisted UTXO set when the view hasn't touched it.
func (v *View) getUnspent(op types.Outpoint) (*utxo.TxOut, bool, error) {
	if v.utxoTomb[op] {
		return nil, false, nil
	}
	if out, ok := v.utxoOverlay[op]; ok {
		return out, true, nil
	}
	return v.utxoStore.Get(v.fork, op)
}

func (v *View) putUnspent(op types.Outpoint, out utxo.TxOut) {
	delete(v.utxoTomb, op)
	v.utxoOverlay[op] = &out
}

func (v *View) spendUnspent(op types.Outpoint) {
	delete(v.utxoOverlay, op)
	v.utxoTomb[op] = true
}

func (v *View) putTxLocation(txid types.Hash, loc chainstore.TxLocation) {
	delete(v.txTomb, txid)
	v.txLocOverlay[txid] = loc
}

func (v *View) removeTxLocation(txid types.Hash) {
	delete(v.txLocOverlay, txid)
	v.txTomb[txid] = true
}

// hasInvite reports whether dest already has an address_invite edge,
// checking this view's own staged additions before falling through to the
// persisted table.
func (v *View) hasInvite(dest types.Destination) (bool, error) {
	for _, a := range v.newInvites {
		if a.dest.Equal(dest) {
			return true, nil
		}
	}
	_, ok, err := v.store.GetAddressInvite(v.fork, dest)
	return ok, err
}

// utxoProvider adapts View to tx.UTXOProvider, so AddBlock can call
// Transaction.ValidateWithUTXOs against the overlay directly instead of
// re-deriving a spend's authorization and change amount by hand.
type utxoProvider struct{ v *View }

func (p utxoProvider) GetUnspent(op types.Outpoint) (tx.Unspent, bool) {
	out, ok, err := p.v.getUnspent(op)
	if err != nil || !ok {
		return tx.Unspent{}, false
	}
	return tx.Unspent{Destination: out.Dest, Amount: out.Amount}, true
}
