package template

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/types"
)

// Payment is a deferred, forfeitable transfer: SenderDest may cancel and
// reclaim the balance before ExecHeight, either party may close out
// cooperatively between ExecHeight and EndHeight, and ReceiverDest alone
// may claim after EndHeight. Pledge is part of the encoded parameters, and
// so of the template_id; VerifyTxSignature does not read it.
// Grounded on BigBang's CTemplatePayment, which embeds its own height
// fields in the signature; spec.md §9 resolves the "whose height wins"
// open question by making the chain's connecting-block height
// authoritative, so a spend whose embedded height disagrees with
// forkHeight is rejected outright.
type Payment struct {
	SenderDest   types.Destination
	ReceiverDest types.Destination
	ExecHeight   uint64
	EndHeight    uint64
	Pledge       int64
}

func (p *Payment) Kind() types.TemplateKind { return types.TemplatePayment }

func (p *Payment) Encode() []byte {
	buf := make([]byte, types.DestinationSize*2+24)
	off := 0
	putDest(buf[off:off+types.DestinationSize], p.SenderDest)
	off += types.DestinationSize
	putDest(buf[off:off+types.DestinationSize], p.ReceiverDest)
	off += types.DestinationSize
	binary.LittleEndian.PutUint64(buf[off:], p.ExecHeight)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], p.EndHeight)
	off += 8
	putInt64(buf[off:], p.Pledge)
	return buf
}

func decodePayment(b []byte) (*Payment, error) {
	want := types.DestinationSize*2 + 24
	if len(b) != want {
		return nil, fmt.Errorf("template: payment params wrong size")
	}
	off := 0
	sender, err := readDest(b[off : off+types.DestinationSize])
	if err != nil {
		return nil, err
	}
	off += types.DestinationSize
	receiver, err := readDest(b[off : off+types.DestinationSize])
	if err != nil {
		return nil, err
	}
	off += types.DestinationSize
	exec := binary.LittleEndian.Uint64(b[off:])
	off += 8
	end := binary.LittleEndian.Uint64(b[off:])
	off += 8
	pledge := int64(binary.LittleEndian.Uint64(b[off:]))
	if end < exec {
		return nil, fmt.Errorf("template: payment end_height before exec_height")
	}
	return &Payment{SenderDest: sender, ReceiverDest: receiver, ExecHeight: exec, EndHeight: end, Pledge: pledge}, nil
}

func (p *Payment) TemplateID() types.TemplateID { return idFor(p.Kind(), p.Encode()) }
func (p *Payment) IsSpendable() bool             { return true }
func (p *Payment) IsDestInRecorded() bool        { return false }

// heightHeaderSize is the width of the embedded height prefix every Payment
// signature share must carry ahead of its party signature, letting
// VerifyTxSignature reject a spend whose claimed phase disagrees with the
// connecting block's actual height.
const heightHeaderSize = 8

func (p *Payment) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	if len(rest) < heightHeaderSize {
		return false, false, fmt.Errorf("template: payment signature missing height header")
	}
	claimed := binary.LittleEndian.Uint64(rest[:heightHeaderSize])
	if claimed != forkHeight {
		return false, false, fmt.Errorf("template: payment embedded height %d disagrees with connecting height %d", claimed, forkHeight)
	}
	share := rest[heightHeaderSize:]

	switch {
	case forkHeight < p.ExecHeight:
		return verifyPartyShare(p.SenderDest, sigMsg, share, forkHeight)
	case forkHeight < p.EndHeight:
		if ok, partial, err := verifyPartyShare(p.ReceiverDest, sigMsg, share, forkHeight); ok || partial || err != nil {
			return ok, partial, err
		}
		return verifyPartyShare(p.SenderDest, sigMsg, share, forkHeight)
	default:
		return verifyPartyShare(p.ReceiverDest, sigMsg, share, forkHeight)
	}
}
