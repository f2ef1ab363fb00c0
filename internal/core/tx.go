package core

import (
	"errors"
	"fmt"

	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/internal/validator"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// AddNewTx is the add_new_tx operation (spec.md §6). There is no persistent
// mempool (spec.md's Non-goals), so admission is a one-shot check against
// the fork's already-committed unspent set rather than anything staged
// through internal/blockview: a transaction this call accepts is only a
// candidate for whatever block eventually includes it, and must pass the
// same context-dependent checks again at that point.
func (c *Core) AddNewTx(t *tx.Transaction, fork types.ChainID) (validator.Code, error) {
	if err := validator.ValidateTxContextFree(t); err != nil {
		return codeOf(err), err
	}

	f, ok := c.index.LookupFork(fork)
	if !ok {
		return validator.ErrFatal, fmt.Errorf("%w: %s", ErrUnknownFork, fork)
	}
	height := uint64(1)
	if tip, ok := c.index.Get(f.Tip()); ok {
		height = tip.Height + 1
	}

	provider := utxo.NewProvider(c.utxoStore, fork)
	if _, _, err := t.ValidateWithUTXOs(provider, height); err != nil {
		return mapUTXOErrCode(err), err
	}
	return validator.OK, nil
}

// mapUTXOErrCode classifies a ValidateWithUTXOs failure the same way
// internal/validator classifies a block's context-dependent rejection, so
// callers of add_new_tx and add_new_block see a consistent Code space.
func mapUTXOErrCode(err error) validator.Code {
	switch {
	case errors.Is(err, tx.ErrInputNotFound):
		return validator.ErrMissingPrev
	case errors.Is(err, tx.ErrAuthFailed):
		return validator.ErrBlockSignatureInvalid
	default:
		return validator.ErrBlockTxInvalid
	}
}
