package validator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

var (
	ErrOriginProfileInvalid = errors.New("validator: origin block proof_bytes is not a valid profile")
	ErrOriginPrivacyBreak   = errors.New("validator: child fork of a private parent must itself be private with the same owner")
)

// ValidateOrigin runs the ORIGIN context-dependent check (spec.md §4.11):
// its proof_bytes must parse as a config.Profile, and if parentFork is
// private, the new fork must be private under the same owner (spec.md §9's
// fork-flags design note). join is the parent fork's block this origin
// joins from — an origin's own height always starts its fork at 1 (spec.md
// §8 invariant 1), so the returned outline's PrevHash is the zero hash,
// not join.Hash; the parent linkage is recorded by the caller via
// chainstore.PutForkContext, not by BlockOutline.PrevHash.
func (v *Validator) ValidateOrigin(blk *block.Block, parentFork types.ChainID, join Ancestor) (chainstore.BlockOutline, config.Profile, error) {
	var profile config.Profile
	if err := json.Unmarshal(blk.Header.ProofBytes, &profile); err != nil {
		return chainstore.BlockOutline{}, config.Profile{}, reject(ErrBlockTypeInvalid, fmt.Errorf("%w: %v", ErrOriginProfileInvalid, err))
	}

	if !parentFork.IsZero() {
		parentCtx, ok, err := v.store.GetForkContext(parentFork)
		if err != nil {
			return chainstore.BlockOutline{}, config.Profile{}, reject(ErrFatal, fmt.Errorf("load parent fork context %s: %w", parentFork, err))
		}
		if ok {
			var parentProfile config.Profile
			if parentCtx.Profile != "" {
				if err := json.Unmarshal([]byte(parentCtx.Profile), &parentProfile); err != nil {
					return chainstore.BlockOutline{}, config.Profile{}, reject(ErrFatal, fmt.Errorf("corrupt parent profile for %s: %w", parentFork, err))
				}
			}
			if parentProfile.Flags.Private {
				if !profile.Flags.Private || profile.Owner != parentProfile.Owner {
					return chainstore.BlockOutline{}, config.Profile{}, reject(ErrBlockTypeInvalid, ErrOriginPrivacyBreak)
				}
			}
		}
	}

	if err := tx.VerifyDestinationSignature(blk.MintTx.SendTo, blk.HeaderHash(), blk.Sig, 1); err != nil {
		return chainstore.BlockOutline{}, config.Profile{}, reject(ErrBlockSignatureInvalid, err)
	}

	outline := chainstore.BlockOutline{
		Version:      blk.Header.Version,
		Type:         uint16(blk.Header.Type),
		Timestamp:    blk.Header.Timestamp,
		Height:       1,
		PrevHash:     types.Hash{},
		TxMerkleRoot: blk.Header.TxMerkleRoot,
		Trust:        "0",
	}
	return outline, profile, nil
}
