package validator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/consensus"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/tx"
)

// ErrStaleTimestamp reports a block timestamped before its parent.
var ErrStaleTimestamp = errors.New("validator: block timestamp precedes parent")

// ErrBadRetarget reports a PoW block whose claimed bits does not match the
// retarget this validator independently computes for the same window.
var ErrBadRetarget = errors.New("validator: bits does not match retarget")

// ValidatePoW runs the PRIMARY/PoW context-dependent checks (spec.md
// §4.11): proof_bytes length, non-decreasing timestamp, retargeted bits,
// mint-destination match, and the proof-of-work hash itself. window holds
// the spacing (in seconds, oldest first) between each of the prior
// config.PowAdjustCount same-algo blocks ending at prev — supplied by the
// caller (internal/core, which owns the ancestor walk) rather than walked
// here, so this package stays free of any index-traversal policy beyond
// the single Ancestor it's handed. A window shorter than
// config.PowAdjustCount (early chain life) skips the retarget comparison:
// consensus.RetargetBits already no-ops on a short window, returning
// prev.Bits unchanged, so the proof must simply repeat it.
func (v *Validator) ValidatePoW(blk *block.Block, prev Ancestor, window []uint32) (chainstore.BlockOutline, error) {
	if blk.Header.Timestamp < prev.Timestamp {
		return chainstore.BlockOutline{}, reject(ErrBlockTimestampOutOfRange, fmt.Errorf("%w: %d < %d", ErrStaleTimestamp, blk.Header.Timestamp, prev.Timestamp))
	}

	proof, err := consensus.DecodeProofBytes(blk.Header.ProofBytes)
	if err != nil {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfWorkInvalid, err)
	}

	wantBits := consensus.RetargetBits(window, prev.Bits)
	if proof.Bits != wantBits {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfWorkInvalid, fmt.Errorf("%w: got %d, want %d", ErrBadRetarget, proof.Bits, wantBits))
	}

	if err := consensus.VerifyPoW(&blk.Header, blk.MintTx.SendTo); err != nil {
		return chainstore.BlockOutline{}, reject(ErrBlockProofOfWorkInvalid, err)
	}

	if err := tx.VerifyDestinationSignature(blk.MintTx.SendTo, blk.HeaderHash(), blk.Sig, prev.Height+1); err != nil {
		return chainstore.BlockOutline{}, reject(ErrBlockSignatureInvalid, err)
	}

	prevOutline, ok, err := v.store.GetOutline(prev.Hash)
	if err != nil {
		return chainstore.BlockOutline{}, reject(ErrFatal, fmt.Errorf("load parent outline %s: %w", prev.Hash, err))
	}
	prevTrust := new(big.Int)
	if ok && prevOutline.Trust != "" {
		if _, parsed := prevTrust.SetString(prevOutline.Trust, 10); !parsed {
			return chainstore.BlockOutline{}, reject(ErrFatal, fmt.Errorf("corrupt trust value %q for %s", prevOutline.Trust, prev.Hash))
		}
	}
	trust := new(big.Int).Add(prevTrust, consensus.BlockTrust(proof.Bits))

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
