package template

import (
	"fmt"
	"math"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/pkg/types"
)

// ForkRedemption locks a balance on the parent fork that may only be
// redeemed by RedeemDest, and enforces a decaying floor below which the
// locked balance may never be spent down (spec.md §4.7). Grounded on
// BigBang's CTemplateFork/mortgage mechanism.
type ForkRedemption struct {
	ForkHash   types.Hash
	RedeemDest types.Destination
}

func (f *ForkRedemption) Kind() types.TemplateKind { return types.TemplateForkRedemption }

func (f *ForkRedemption) Encode() []byte {
	buf := make([]byte, types.HashSize+types.DestinationSize)
	putHash(buf[:types.HashSize], f.ForkHash)
	putDest(buf[types.HashSize:], f.RedeemDest)
	return buf
}

func decodeForkRedemption(b []byte) (*ForkRedemption, error) {
	if len(b) != types.HashSize+types.DestinationSize {
		return nil, fmt.Errorf("template: fork-redemption params wrong size")
	}
	var hash types.Hash
	copy(hash[:], b[:types.HashSize])
	dest, err := readDest(b[types.HashSize:])
	if err != nil {
		return nil, err
	}
	return &ForkRedemption{ForkHash: hash, RedeemDest: dest}, nil
}

func (f *ForkRedemption) TemplateID() types.TemplateID { return idFor(f.Kind(), f.Encode()) }
func (f *ForkRedemption) IsSpendable() bool             { return true }
func (f *ForkRedemption) IsDestInRecorded() bool        { return false }

func (f *ForkRedemption) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	if f.RedeemDest.IsTemplate() {
		inner, _, err := FromSignature(f.RedeemDest, rest)
		if err != nil {
			return false, false, err
		}
		return inner.VerifyTxSignature(sigMsg, f.RedeemDest, rest, forkHeight)
	}
	return false, false, fmt.Errorf("template: fork-redemption requires a template redeem destination")
}

// LockedCoinFloor computes the minimum balance (base units) a redemption
// output must retain at the given height: starting from MinMortgage and
// halving every MortgageDecayCycle blocks (spec.md §4.7).
func (f *ForkRedemption) LockedCoinFloor(height uint64) int64 {
	cycles := float64(height) / float64(config.MortgageDecayCycle)
	ratio := math.Pow(float64(config.MortgageDecayRatioNum)/float64(config.MortgageDecayRatioDen), cycles)
	floor := float64(config.MinMortgage) * ratio
	return int64(floor)
}
