package chainstore

import (
	"fmt"

	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/pkg/types"
)

// TxAdd indexes a newly-connected transaction.
type TxAdd struct {
	TxID types.Hash
	Loc  TxLocation
}

// UTXOAdd stages a newly-produced unspent output.
type UTXOAdd struct {
	Outpoint types.Outpoint
	Out      utxo.TxOut
}

// UpdateFork applies every change from reconnecting fork to new_tip as one
// atomic transaction (spec.md §4.5): the tx index adds/removes, the UTXO
// set adds/removes, and the fork's tip pointer all land together, or none
// do. Requires db to implement storage.Batcher — both BadgerDB and
// MemoryDB do.
//
// stageExtra, if non-nil, stages additional writes onto the same batch
// before it commits — internal/blockview uses this to fold block outlines,
// undo data, delegate snapshots, enrollments and address invites into the
// same atomic commit as the tx/UTXO/tip changes above.
func UpdateFork(
	db storage.DB,
	utxoStore *utxo.Store,
	fork types.ChainID,
	newTip types.Hash,
	txAdds []TxAdd,
	txRemoves []types.Hash,
	utxoAdds []UTXOAdd,
	utxoRemoves []types.Outpoint,
	stageExtra func(b storage.Batch) error,
) error {
	batcher, ok := db.(storage.Batcher)
	if !ok {
		return fmt.Errorf("chainstore: UpdateFork requires a Batcher-capable DB")
	}
	b := batcher.NewBatch()
	cs := &Store{db: db}

	for _, add := range txAdds {
		if err := cs.BatchPutTxLocation(b, add.TxID, add.Loc); err != nil {
			return fmt.Errorf("chainstore: stage tx add %s: %w", add.TxID, err)
		}
	}
	for _, txid := range txRemoves {
		if err := cs.BatchDeleteTxLocation(b, txid); err != nil {
			return fmt.Errorf("chainstore: stage tx remove %s: %w", txid, err)
		}
	}
	for _, add := range utxoAdds {
		out := add.Out
		if err := utxoStore.BatchPut(b, fork, add.Outpoint, &out); err != nil {
			return fmt.Errorf("chainstore: stage utxo add %s: %w", add.Outpoint, err)
		}
	}
	for _, op := range utxoRemoves {
		if err := utxoStore.BatchDelete(b, fork, op); err != nil {
			return fmt.Errorf("chainstore: stage utxo remove %s: %w", op, err)
		}
	}
	if stageExtra != nil {
		if err := stageExtra(b); err != nil {
			return fmt.Errorf("chainstore: stage extra writes: %w", err)
		}
	}
	if err := cs.BatchSetForkTip(b, fork, newTip); err != nil {
		return fmt.Errorf("chainstore: stage fork tip: %w", err)
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("chainstore: commit UpdateFork: %w", err)
	}
	return nil
}
