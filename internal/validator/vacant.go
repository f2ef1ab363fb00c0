package validator

import (
	"math/big"

	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/pkg/block"
)

// ValidateVacant runs the VACANT context-dependent check. Structurally a
// vacant block carries nothing beyond its header (empty merkle, mint, txs,
// proof, sig) — block.Validate already enforces that shape at the
// context-free stage, so there is nothing left to check against chain
// state; this exists only to produce the BlockOutline a vacant block still
// needs for hole-filling (spec.md's glossary entry), carrying its parent's
// trust forward unchanged since a vacant block contributes no work.
func (v *Validator) ValidateVacant(blk *block.Block, prev Ancestor) (chainstore.BlockOutline, error) {
	prevTrust := new(big.Int)
	if prevOutline, ok, err := v.store.GetOutline(prev.Hash); err == nil && ok && prevOutline.Trust != "" {
		prevTrust.SetString(prevOutline.Trust, 10)
	}
	return chainstore.BlockOutline{
		Version:   blk.Header.Version,
		Type:      uint16(blk.Header.Type),
		Timestamp: blk.Header.Timestamp,
		Height:    prev.Height + 1,
		PrevHash:  prev.Hash,
		Trust:     prevTrust.String(),
	}, nil
}
