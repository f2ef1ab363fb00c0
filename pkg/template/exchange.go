package template

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Exchange is a two-party timelocked swap: before Height both SellerDest
// and BuyerDest must sign (a cooperative close), after Height SellerDest
// alone may reclaim the funds (the refund path). Grounded on BigBang's
// CTemplateExchange atomic-swap style construction.
type Exchange struct {
	SellerDest types.Destination
	BuyerDest  types.Destination
	Height     uint64
}

func (e *Exchange) Kind() types.TemplateKind { return types.TemplateExchange }

func (e *Exchange) Encode() []byte {
	buf := make([]byte, types.DestinationSize*2+8)
	putDest(buf[:types.DestinationSize], e.SellerDest)
	putDest(buf[types.DestinationSize:types.DestinationSize*2], e.BuyerDest)
	binary.LittleEndian.PutUint64(buf[types.DestinationSize*2:], e.Height)
	return buf
}

func decodeExchange(b []byte) (*Exchange, error) {
	want := types.DestinationSize*2 + 8
	if len(b) != want {
		return nil, fmt.Errorf("template: exchange params wrong size")
	}
	seller, err := readDest(b[:types.DestinationSize])
	if err != nil {
		return nil, err
	}
	buyer, err := readDest(b[types.DestinationSize : types.DestinationSize*2])
	if err != nil {
		return nil, err
	}
	height := binary.LittleEndian.Uint64(b[types.DestinationSize*2:])
	return &Exchange{SellerDest: seller, BuyerDest: buyer, Height: height}, nil
}

func (e *Exchange) TemplateID() types.TemplateID { return idFor(e.Kind(), e.Encode()) }
func (e *Exchange) IsSpendable() bool             { return true }
func (e *Exchange) IsDestInRecorded() bool        { return false }

func (e *Exchange) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	if forkHeight > e.Height {
		return verifyPartyShare(e.SellerDest, sigMsg, rest, forkHeight)
	}
	half := len(rest) / 2
	if half == 0 {
		return false, false, nil
	}
	sellerOK, _, err := verifyPartyShare(e.SellerDest, sigMsg, rest[:half], forkHeight)
	if err != nil {
		return false, false, err
	}
	buyerOK, _, err := verifyPartyShare(e.BuyerDest, sigMsg, rest[half:], forkHeight)
	if err != nil {
		return false, false, err
	}
	if sellerOK && buyerOK {
		return true, false, nil
	}
	if sellerOK || buyerOK {
		return false, true, nil
	}
	return false, false, nil
}

// verifyPubKeyShare checks a pubkey-destination signature share framed as
// [4-byte pubkey length][pubkey][schnorr signature], confirming the
// embedded pubkey actually hashes to dest.Hash before verifying the
// signature over sigMsg.
func verifyPubKeyShare(dest types.Destination, sigMsg types.Hash, share []byte) (bool, error) {
	if len(share) < 4 {
		return false, fmt.Errorf("template: pubkey share too short")
	}
	l := binary.LittleEndian.Uint32(share[:4])
	if uint32(len(share)-4) < l {
		return false, fmt.Errorf("template: pubkey share truncated")
	}
	pub := share[4 : 4+l]
	if crypto.PubKeyHash(pub) != dest.Hash {
		return false, fmt.Errorf("template: pubkey does not match destination")
	}
	return crypto.VerifySignature(sigMsg[:], share[4+l:], pub), nil
}

func verifyPartyShare(dest types.Destination, sigMsg types.Hash, share []byte, forkHeight uint64) (bool, bool, error) {
	if dest.IsPubKey() {
		ok, err := verifyPubKeyShare(dest, sigMsg, share)
		return ok, false, err
	}
	if !dest.IsTemplate() {
		return false, false, fmt.Errorf("template: exchange party must be a pubkey or template destination")
	}
	inner, _, err := FromSignature(dest, share)
	if err != nil {
		return false, false, err
	}
	return inner.VerifyTxSignature(sigMsg, dest, share, forkHeight)
}
