package template

import (
	"fmt"

	"github.com/kaelnet/chaincore/pkg/types"
)

// Vote wraps a voter's real spending destination behind a delegate vote:
// funds sent to a Vote destination are tallied toward DelegateDest's
// enrollment ballot while remaining ultimately controlled by OwnerDest
// (spec.md §4.9). The real controller is recorded in the spend signature,
// not in send_to, so Vote implements DestInRecorded.
type Vote struct {
	DelegateDest types.Destination
	OwnerDest    types.Destination
}

func (v *Vote) Kind() types.TemplateKind { return types.TemplateVote }

func (v *Vote) Encode() []byte {
	buf := make([]byte, types.DestinationSize*2)
	putDest(buf[:types.DestinationSize], v.DelegateDest)
	putDest(buf[types.DestinationSize:], v.OwnerDest)
	return buf
}

func decodeVote(b []byte) (*Vote, error) {
	if len(b) != types.DestinationSize*2 {
		return nil, fmt.Errorf("template: vote params wrong size")
	}
	delegate, err := readDest(b[:types.DestinationSize])
	if err != nil {
		return nil, err
	}
	owner, err := readDest(b[types.DestinationSize:])
	if err != nil {
		return nil, err
	}
	return &Vote{DelegateDest: delegate, OwnerDest: owner}, nil
}

func (v *Vote) TemplateID() types.TemplateID { return idFor(v.Kind(), v.Encode()) }
func (v *Vote) IsSpendable() bool             { return true }
func (v *Vote) IsDestInRecorded() bool        { return true }
func (v *Vote) RecordedDestination() types.Destination { return v.OwnerDest }

func (v *Vote) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	return verifyPartyShare(v.OwnerDest, sigMsg, rest, forkHeight)
}
