package template

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// DelegateMint is a delegate's enrollment identity: MintKey authenticates
// the blocks it stakes, OwnerDest is where its mint reward and redeemed
// vote stake ultimately settle. Grounded on BigBang's CTemplateDelegate.
type DelegateMint struct {
	MintKey  []byte
	OwnerDest types.Destination
}

func (d *DelegateMint) Kind() types.TemplateKind { return types.TemplateDelegate }

func (d *DelegateMint) Encode() []byte {
	buf := make([]byte, 0, 4+len(d.MintKey)+types.DestinationSize)
	var l [4]byte
	putUint32(l[:], uint32(len(d.MintKey)))
	buf = append(buf, l[:]...)
	buf = append(buf, d.MintKey...)
	destBuf := make([]byte, types.DestinationSize)
	putDest(destBuf, d.OwnerDest)
	buf = append(buf, destBuf...)
	return buf
}

func decodeDelegateMint(b []byte) (*DelegateMint, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("template: delegate-mint params too short")
	}
	l := binary.LittleEndian.Uint32(b[:4])
	if len(b) != 4+int(l)+types.DestinationSize {
		return nil, fmt.Errorf("template: delegate-mint params wrong size")
	}
	key := append([]byte(nil), b[4:4+int(l)]...)
	dest, err := readDest(b[4+int(l):])
	if err != nil {
		return nil, err
	}
	return &DelegateMint{MintKey: key, OwnerDest: dest}, nil
}

func (d *DelegateMint) TemplateID() types.TemplateID { return idFor(d.Kind(), d.Encode()) }
func (d *DelegateMint) IsSpendable() bool             { return true }
func (d *DelegateMint) IsDestInRecorded() bool        { return false }

// VerifyTxSignature accepts either the delegate's own mint key (spending
// its stake/reward directly) or, if the recorded signer routes through
// OwnerDest and that resolves to a template, the owner template's
// authorization (spec.md §4.9: enrollment stake redeems to whichever
// destination actually controls it).
func (d *DelegateMint) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	if crypto.VerifySignature(sigMsg[:], rest, d.MintKey) {
		return true, false, nil
	}
	if d.OwnerDest.IsTemplate() {
		inner, _, err := FromSignature(d.OwnerDest, rest)
		if err != nil {
			return false, false, nil
		}
		return inner.VerifyTxSignature(sigMsg, d.OwnerDest, rest, forkHeight)
	}
	return false, false, nil
}

// VerifyBlockSignature authenticates a delegate-staked block header.
func (d *DelegateMint) VerifyBlockSignature(hash types.Hash, sig []byte) bool {
	return crypto.VerifySignature(hash[:], sig, d.MintKey)
}
