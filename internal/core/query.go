package core

import (
	"errors"
	"fmt"

	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// errStopIteration is returned from a ForEach callback to stop early once
// GetUnspent's max has been reached (internal/storage.DB.ForEach's
// documented "non-nil error stops iteration" contract).
var errStopIteration = errors.New("core: stop iteration")

// GetBlock is the get_block operation (spec.md §6): it resolves a block's
// outline to its on-disk position and reads the full block back.
func (c *Core) GetBlock(hash types.Hash) (*block.Block, error) {
	outline, ok, err := c.store.GetOutline(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash)
	}
	blk, err := c.blockStore.ReadBlock(outline.FilePos)
	if err != nil {
		return nil, fmt.Errorf("core: read block %s: %w", hash, err)
	}
	return blk, nil
}

// GetTx is the get_tx operation (spec.md §6): it resolves a transaction's
// tx_index entry to the file position of the block it was committed in,
// reads that block back and returns the transaction from it.
func (c *Core) GetTx(txid types.Hash) (*tx.Transaction, error) {
	loc, ok, err := c.store.GetTxLocation(txid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: tx %s", ErrNotFound, txid)
	}
	blk, err := c.blockStore.ReadBlock(loc.FilePos)
	if err != nil {
		return nil, fmt.Errorf("core: read block holding tx %s: %w", txid, err)
	}
	for _, t := range blk.Transactions() {
		if t.ID() == txid {
			return t, nil
		}
	}
	return nil, fmt.Errorf("core: tx %s not found in block at %+v", txid, loc.FilePos)
}

// RetrieveFork is the retrieve_fork operation (spec.md §6): given any block
// belonging to a fork, it returns that fork's ChainID and its rooting
// context (parent fork, join point, profile).
func (c *Core) RetrieveFork(hash types.Hash) (types.ChainID, chainstore.ForkContext, error) {
	outline, ok, err := c.store.GetOutline(hash)
	if err != nil {
		return types.ChainID{}, chainstore.ForkContext{}, err
	}
	if !ok {
		return types.ChainID{}, chainstore.ForkContext{}, fmt.Errorf("%w: block %s", ErrNotFound, hash)
	}
	fork := types.ChainID(outline.OriginHash)
	ctx, ok, err := c.store.GetForkContext(fork)
	if err != nil {
		return types.ChainID{}, chainstore.ForkContext{}, err
	}
	if !ok {
		return fork, chainstore.ForkContext{}, fmt.Errorf("%w: fork context %s", ErrNotFound, fork)
	}
	return fork, ctx, nil
}

// ListForks is the list_forks operation (spec.md §6): every fork this
// process currently tracks a tip for, paired with that tip.
func (c *Core) ListForks() (map[types.ChainID]types.Hash, error) {
	out := make(map[types.ChainID]types.Hash)
	if err := c.store.ForEachFork(func(fork types.ChainID, tip types.Hash) error {
		out[fork] = tip
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// UnspentOutput pairs an outpoint with the output it still carries,
// returned by GetUnspent (spec.md §6's get_unspent).
type UnspentOutput struct {
	Outpoint types.Outpoint
	Out      types.Destination
	Amount   int64
}

// GetUnspent is the get_unspent operation (spec.md §6): every unspent
// output of fork currently owned by dest, up to max entries. max <= 0
// means unbounded. Iteration order follows internal/storage.DB.ForEach's
// key order, not insertion order — callers needing a stable wallet view
// should sort the result themselves.
func (c *Core) GetUnspent(fork types.ChainID, dest types.Destination, max int) ([]UnspentOutput, error) {
	var out []UnspentOutput
	err := c.utxoStore.ForEach(fork, func(op types.Outpoint, txOut *utxo.TxOut) error {
		if !txOut.Dest.Equal(dest) {
			return nil
		}
		out = append(out, UnspentOutput{Outpoint: op, Out: txOut.Dest, Amount: txOut.Amount})
		if max > 0 && len(out) >= max {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return out, nil
}
