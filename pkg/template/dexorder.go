package template

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/types"
)

// DEXOrder posts one side of a decentralized-exchange order: SellerDest
// may reclaim the balance unmatched after SectHeight, or a DEXMatch
// template naming this order's TemplateID in its OrderA/OrderB fields may
// settle it earlier. Grounded on BigBang's CTemplateDexOrder.
type DEXOrder struct {
	SellerDest types.Destination
	ForkHash   types.Hash
	Price      uint64
	SectHeight uint64
}

func (d *DEXOrder) Kind() types.TemplateKind { return types.TemplateDEXOrder }

func (d *DEXOrder) Encode() []byte {
	buf := make([]byte, types.DestinationSize+types.HashSize+16)
	off := 0
	putDest(buf[off:off+types.DestinationSize], d.SellerDest)
	off += types.DestinationSize
	putHash(buf[off:off+types.HashSize], d.ForkHash)
	off += types.HashSize
	binary.LittleEndian.PutUint64(buf[off:], d.Price)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], d.SectHeight)
	return buf
}

func decodeDEXOrder(b []byte) (*DEXOrder, error) {
	want := types.DestinationSize + types.HashSize + 16
	if len(b) != want {
		return nil, fmt.Errorf("template: dex-order params wrong size")
	}
	off := 0
	seller, err := readDest(b[off : off+types.DestinationSize])
	if err != nil {
		return nil, err
	}
	off += types.DestinationSize
	var fork types.Hash
	copy(fork[:], b[off:off+types.HashSize])
	off += types.HashSize
	price := binary.LittleEndian.Uint64(b[off:])
	off += 8
	sect := binary.LittleEndian.Uint64(b[off:])
	return &DEXOrder{SellerDest: seller, ForkHash: fork, Price: price, SectHeight: sect}, nil
}

func (d *DEXOrder) TemplateID() types.TemplateID { return idFor(d.Kind(), d.Encode()) }
func (d *DEXOrder) IsSpendable() bool             { return true }
func (d *DEXOrder) IsDestInRecorded() bool        { return false }

func (d *DEXOrder) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	if forkHeight < d.SectHeight {
		return false, false, fmt.Errorf("template: dex-order not yet reclaimable, sect_height %d", d.SectHeight)
	}
	return verifyPartyShare(d.SellerDest, sigMsg, rest, forkHeight)
}
