package block

import (
	"errors"
	"fmt"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Structural (context-free) validation errors (spec.md §4.11).
var (
	ErrBadType         = errors.New("unknown or disallowed block type")
	ErrNoMintTx        = errors.New("non-vacant block must have a mint transaction")
	ErrMintTxForVacant = errors.New("vacant block must have no mint transaction")
	ErrVTXForVacant    = errors.New("vacant block must have no ordinary transactions")
	ErrProofForVacant  = errors.New("vacant block must have empty proof bytes")
	ErrSigForVacant    = errors.New("vacant block must have no signature")
	ErrBadMerkleRoot   = errors.New("merkle root mismatch")
	ErrBadVersion      = errors.New("unsupported block version")
	ErrZeroTimestamp   = errors.New("block timestamp is zero")
	ErrFutureTimestamp = errors.New("block timestamp too far in the future")
	ErrDuplicateTxID   = errors.New("duplicate txid within block")
	ErrBlockTooLarge   = errors.New("block too large")
)

// Block version constants.
const (
	CurrentVersion = 1 // The current block version produced by this software.
	MaxVersion     = 1 // Bump when a fork introduces a new block version.
)

// Validate checks structural, context-free rules common to every block
// type (spec.md §4.11): version, timestamp bounds, mint/vacant shape,
// merkle root, duplicate txids, per-tx context-free validity, and overall
// size. Per-type consensus rules (PoW target, subsidiary slot spacing,
// origin profile parsing) are context-dependent and live in the validator
// that has access to the chain index, not here.
func (b *Block) Validate(now uint32) error {
	if !b.Header.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrBadType, b.Header.Type)
	}
	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	if uint64(b.Header.Timestamp) > uint64(now)+config.MaxClockDrift {
		return fmt.Errorf("%w: %d > now(%d)+%ds", ErrFutureTimestamp, b.Header.Timestamp, now, config.MaxClockDrift)
	}

	if b.Header.Type == Vacant {
		if b.MintTx != nil {
			return ErrMintTxForVacant
		}
		if len(b.VTX) != 0 {
			return ErrVTXForVacant
		}
		if len(b.Header.ProofBytes) != 0 {
			return ErrProofForVacant
		}
		if len(b.Sig) != 0 {
			return ErrSigForVacant
		}
		if !b.Header.TxMerkleRoot.IsZero() {
			return fmt.Errorf("%w: merkle root must be zero", ErrBadMerkleRoot)
		}
		return nil
	}

	if b.MintTx == nil {
		return ErrNoMintTx
	}

	expectedRoot := b.ComputeMerkleRoot()
	if b.Header.TxMerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.TxMerkleRoot, expectedRoot)
	}

	seen := make(map[types.Hash]bool, 1+len(b.VTX))
	for i, t := range b.Transactions() {
		id := t.ID()
		if seen[id] {
			return fmt.Errorf("tx %d: %w: %s", i, ErrDuplicateTxID, id)
		}
		seen[id] = true
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}
	if !b.MintTx.Type.IsMint() {
		return fmt.Errorf("mint tx: %w: type %s is not a mint type", ErrBadType, b.MintTx.Type)
	}

	if b.Size() > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, b.Size(), config.MaxBlockSize)
	}

	return nil
}
