// Package validator implements block and transaction acceptance checks
// (spec.md §4.11, C11): structural rules that hold for a transaction or
// block on its own (context-free), and the consensus rules that need the
// chain index and persisted chain state to check (context-dependent),
// split by block type. Adapted from the teacher's pkg/tx/validate.go +
// pkg/block/validate.go + internal/chain/processor.go's
// validateBlockState, generalized from the teacher's single PoA block
// shape to this chain's PoW/subsidiary/extended/origin/vacant branches.
//
// Context-free checks never touch the index or chain state and never
// return a transient error (spec.md §7); context-dependent checks read
// state but make no mutation — committing a validated block's effects is
// internal/blockview's job, not this package's.
package validator

import (
	"errors"
	"fmt"

	"github.com/kaelnet/chaincore/internal/chainindex"
	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Validator holds the read-only collaborators context-dependent checks
// consult: the in-memory index (for ancestor walks) and the persisted
// store (for delegate snapshots, enroll ballots, and fork profiles).
type Validator struct {
	index *chainindex.Index
	store *chainstore.Store
}

// New builds a Validator over the given index and store.
func New(index *chainindex.Index, store *chainstore.Store) *Validator {
	return &Validator{index: index, store: store}
}

// ValidateTxContextFree runs spec.md §4.11's context-free transaction
// checks: type, money range, input/signature shape, send_to, fee floor,
// data-frame header, and size.
func ValidateTxContextFree(t *tx.Transaction) error {
	if err := t.Validate(); err != nil {
		return reject(txErrorCode(err), err)
	}
	return nil
}

func txErrorCode(err error) Code {
	switch {
	case errors.Is(err, tx.ErrTxTooLarge):
		return ErrTxOversize
	case errors.Is(err, tx.ErrMissingSig), errors.Is(err, tx.ErrSigForMint):
		return ErrTxSigInvalid
	case errors.Is(err, tx.ErrNullSendTo), errors.Is(err, tx.ErrDataFrame):
		return ErrTxOutputInvalid
	case errors.Is(err, tx.ErrNoInputs), errors.Is(err, tx.ErrDuplicateInput), errors.Is(err, tx.ErrInputIndexRange), errors.Is(err, tx.ErrInputsForMint):
		return ErrTxInputInvalid
	default:
		return ErrTxInvalid
	}
}

// ValidateBlockContextFree runs spec.md §4.11's context-free block checks:
// version/timestamp bounds, mint/vacant shape, merkle root, duplicate
// txids, every embedded tx's own context-free check (via block.Validate),
// and overall size. It does not check the block-level signature — that
// needs the connecting height to resolve a template mint destination, so
// it is folded into each type's context-dependent branch immediately after
// this check passes (see pow.go, dpos.go).
func ValidateBlockContextFree(blk *block.Block, now uint32) error {
	if err := blk.Validate(now); err != nil {
		return reject(blockErrorCode(err), err)
	}
	return nil
}

func blockErrorCode(err error) Code {
	switch {
	case errors.Is(err, block.ErrBadType):
		return ErrBlockTypeInvalid
	case errors.Is(err, block.ErrZeroTimestamp), errors.Is(err, block.ErrFutureTimestamp):
		return ErrBlockTimestampOutOfRange
	case errors.Is(err, block.ErrBadMerkleRoot):
		return ErrBlockTxHashMismatch
	case errors.Is(err, block.ErrDuplicateTxID):
		return ErrBlockDuplicatedTx
	case errors.Is(err, block.ErrBlockTooLarge):
		return ErrBlockOversize
	default:
		return ErrBlockTxInvalid
	}
}

// Ancestor is the slice of a parent block's index entry the
// context-dependent checks need, kept narrow so callers building it from a
// chainindex.BlockIndex don't have to hand over the whole struct.
type Ancestor struct {
	Hash      types.Hash
	Height    uint64
	Timestamp uint32
	Bits      uint32
}

// FromBlockIndex narrows a chainindex.BlockIndex down to an Ancestor.
func FromBlockIndex(bi *chainindex.BlockIndex) Ancestor {
	return Ancestor{Hash: bi.Hash, Height: bi.Height, Timestamp: bi.Timestamp, Bits: bi.Bits}
}

// ErrUnsupportedType is returned by the top-level dispatch for any block
// type a particular deployment's policy does not accept. v1 policy (see
// internal/core) only ever submits PRIMARY blocks through this dispatch;
// the per-type branches below remain independently valid and tested so a
// future policy can route SUBSIDIARY/EXTENDED/ORIGIN blocks through the
// same dispatch without the validator itself changing shape.
var ErrUnsupportedType = errors.New("validator: block type not accepted by current policy")

// ValidateContextDependent routes blk to the context-dependent branch for
// its header type and returns the chainstore.BlockOutline the caller
// should hand to internal/blockview on success. ORIGIN blocks are not
// routed here: creating a fork needs the parent fork's ChainID alongside
// its join point, one extra parameter every other branch doesn't carry, so
// callers invoke ValidateOrigin directly instead of through this dispatch.
func (v *Validator) ValidateContextDependent(blk *block.Block, prev Ancestor, window []uint32) (chainstore.BlockOutline, error) {
	switch blk.Header.Type {
	case block.Primary:
		return v.ValidatePoW(blk, prev, window)
	case block.Subsidiary, block.Extended:
		return v.ValidateDPoS(blk, prev)
	case block.Vacant:
		return v.ValidateVacant(blk, prev)
	default:
		return chainstore.BlockOutline{}, reject(ErrBlockTypeInvalid, fmt.Errorf("%w: %s", ErrUnsupportedType, blk.Header.Type))
	}
}
