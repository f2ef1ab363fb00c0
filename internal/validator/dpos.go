package validator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/consensus"
	"github.com/kaelnet/chaincore/internal/delegate"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// dposProofSize is a SUBSIDIARY/EXTENDED block's proof_bytes: the 32-byte
// hash of the primary block this DPoS block references, plus the 4-byte
// slot index within that primary block's window. No analogous framing
// exists in the corpus's own proof_bytes codec (that one is PoW-specific,
// spec.md §4.8) — this chain's DPoS blocks need their own fixed header the
// same way, so it follows the same [fixed fields, nothing else] idiom
// rather than inventing a variable-length scheme.
const dposProofSize = types.HashSize + 4

var (
	ErrDPoSProofTooShort    = errors.New("validator: proof bytes too short for a DPoS block")
	ErrDPoSSlotInvalid      = errors.New("validator: DPoS slot index out of range for the referenced primary window")
	ErrDPoSNotPrimary       = errors.New("validator: referenced block is not a primary block")
	ErrDPoSDelegateMismatch = errors.New("validator: mint destination is not the slot's assigned delegate")
)

// DPoSProof is the decoded proof_bytes of a SUBSIDIARY/EXTENDED block.
type DPoSProof struct {
	RefPrimary types.Hash
	Slot       uint32
}

// EncodeDPoSProof renders a DPoSProof in its wire form.
func EncodeDPoSProof(p DPoSProof) []byte {
	buf := make([]byte, 0, dposProofSize)
	buf = append(buf, p.RefPrimary[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, p.Slot)
	return buf
}

// DecodeDPoSProof parses a SUBSIDIARY/EXTENDED block's proof_bytes.
func DecodeDPoSProof(data []byte) (DPoSProof, error) {
	if len(data) < dposProofSize {
		return DPoSProof{}, fmt.Errorf("%w: got %d, want %d", ErrDPoSProofTooShort, len(data), dposProofSize)
	}
	var p DPoSProof
	copy(p.RefPrimary[:], data[:types.HashSize])
	p.Slot = binary.LittleEndian.Uint32(data[types.HashSize:dposProofSize])
	return p, nil
}

// ValidateDPoS runs the SUBSIDIARY/EXTENDED context-dependent checks
// (spec.md §4.11): the referenced primary block must actually be a primary
// block; the slot must fall within that primary window's spacing budget;
// and the block's mint destination must be the delegate the enrollment
// ballot assigns to that slot. Ballot membership is drawn from the
// enrollment set anchored at prev.Height, per
// internal/delegate.BuildBallot's anchor-height-h → ballot-for-h+1 rule.
func (v *Validator) ValidateDPoS(blk *block.Block, prev Ancestor) (chainstore.BlockOutline, error) {
	proof, err := DecodeDPoSProof(blk.Header.ProofBytes)
	if err != nil {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfStakeInvalid, err)
	}

	refOutline, ok, err := v.store.GetOutline(proof.RefPrimary)
	if err != nil {
		return chainstore.BlockOutline{}, reject(ErrFatal, fmt.Errorf("load ref primary %s: %w", proof.RefPrimary, err))
	}
	if !ok || refOutline.Type != uint16(block.Primary) {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfStakeInvalid, fmt.Errorf("%w: %s", ErrDPoSNotPrimary, proof.RefPrimary))
	}

	maxSlots := uint32(config.BlockTargetSpacing / config.ExtendedBlockSpacing)
	if blk.Header.Type == block.Subsidiary {
		maxSlots = 1
	}
	if proof.Slot >= maxSlots {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfStakeInvalid, fmt.Errorf("%w: slot %d, max %d", ErrDPoSSlotInvalid, proof.Slot, maxSlots))
	}

	ledger, _, err := v.store.GetDelegateSnapshot(prev.Hash)
	if err != nil {
		return chainstore.BlockOutline{}, reject(ErrFatal, fmt.Errorf("load delegate snapshot %s: %w", prev.Hash, err))
	}
	enrolled := make(map[types.Destination]blockfile.Pos)
	if err := v.store.ForEachEnroll(prev.Height, func(dest types.Destination, pos blockfile.Pos) error {
		enrolled[dest] = pos
		return nil
	}); err != nil {
		return chainstore.BlockOutline{}, reject(ErrFatal, fmt.Errorf("walk enroll set at height %d: %w", prev.Height, err))
	}

	ballot := delegate.BuildBallot(delegate.Ledger(ledger), config.MinEnrollAmount, enrolled)
	if len(ballot) == 0 {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfStakeInvalid, fmt.Errorf("validator: no active delegate ballot at height %d", prev.Height))
	}
	expected := ballot[int(proof.Slot)%len(ballot)]
	if !blk.MintTx.SendTo.Equal(expected) {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfStakeInvalid, fmt.Errorf("%w: slot %d wants %s, got %s", ErrDPoSDelegateMismatch, proof.Slot, expected, blk.MintTx.SendTo))
	}

	if err := tx.VerifyDestinationSignature(blk.MintTx.SendTo, blk.HeaderHash(), blk.Sig, prev.Height+1); err != nil {
		return chainstore.BlockOutline{}, reject(ErrBlockSignatureInvalid, err)
	}

	prevTrust := new(big.Int)
	if prevOutline, ok, err := v.store.GetOutline(prev.Hash); err == nil && ok && prevOutline.Trust != "" {
		prevTrust.SetString(prevOutline.Trust, 10)
	}
	trust := new(big.Int).Add(prevTrust, consensus.DelegateTrust(1, v.lastPrimaryBits(prev.Hash)))

	return chainstore.BlockOutline{
		Version:      blk.Header.Version,
		Type:         uint16(blk.Header.Type),
		Timestamp:    blk.Header.Timestamp,
		Height:       prev.Height + 1,
		PrevHash:     prev.Hash,
		TxMerkleRoot: blk.Header.TxMerkleRoot,
		Trust:        trust.String(),
	}, nil
}

// lastPrimaryBits walks back from hash through the in-memory index to the
// nearest PRIMARY ancestor and returns the PoW bits it was mined at (spec.md
// §4.8: a DPoS block's trust is weighted by the difficulty of the PoW chain
// it rides on, not by its immediate parent, which is zero whenever that
// parent is itself a SUBSIDIARY/EXTENDED/VACANT block). Mirrors the same
// walk-to-height-1-or-missing-parent bound internal/core.retargetWindow
// uses; returns 0 (DelegateTrust(1, 0) == 1<<0) if no PRIMARY ancestor is
// reachable, which only happens this close to a fork's own origin.
func (v *Validator) lastPrimaryBits(hash types.Hash) uint32 {
	if v.index == nil {
		return 0
	}
	cur, ok := v.index.Get(hash)
	for ok {
		if cur.Bits > 0 {
			return cur.Bits
		}
		if cur.Height <= 1 {
			return 0
		}
		cur, ok = v.index.Get(cur.PrevHash)
	}
	return 0
}
