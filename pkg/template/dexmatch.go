package template

import (
	"fmt"

	"github.com/kaelnet/chaincore/pkg/types"
)

// DEXMatch settles two complementary DEXOrder templates against each
// other: the destination it wraps is MatcherDest, the relayer authorized
// to pair OrderA against OrderB. VerifyTxSignature checks only the
// matcher's signature share; it does not check either order's SectHeight.
// The actual beneficiary of a match is recorded in the signature rather
// than in send_to, so DEXMatch implements DestInRecorded. Grounded on
// BigBang's CTemplateDexMatch.
type DEXMatch struct {
	OrderA      types.TemplateID
	OrderB      types.TemplateID
	MatcherDest types.Destination
}

func (d *DEXMatch) Kind() types.TemplateKind { return types.TemplateDEXMatch }

func (d *DEXMatch) Encode() []byte {
	buf := make([]byte, 2+types.HashSize+2+types.HashSize+types.DestinationSize)
	off := 0
	putUint16(buf[off:], uint16(d.OrderA.Kind))
	off += 2
	putHash(buf[off:off+types.HashSize], d.OrderA.Hash)
	off += types.HashSize
	putUint16(buf[off:], uint16(d.OrderB.Kind))
	off += 2
	putHash(buf[off:off+types.HashSize], d.OrderB.Hash)
	off += types.HashSize
	putDest(buf[off:], d.MatcherDest)
	return buf
}

func decodeDEXMatch(b []byte) (*DEXMatch, error) {
	want := 2 + types.HashSize + 2 + types.HashSize + types.DestinationSize
	if len(b) != want {
		return nil, fmt.Errorf("template: dex-match params wrong size")
	}
	off := 0
	aKind := readUint16(b[off:])
	off += 2
	var aHash types.Hash
	copy(aHash[:], b[off:off+types.HashSize])
	off += types.HashSize
	bKind := readUint16(b[off:])
	off += 2
	var bHash types.Hash
	copy(bHash[:], b[off:off+types.HashSize])
	off += types.HashSize
	matcher, err := readDest(b[off:])
	if err != nil {
		return nil, err
	}
	return &DEXMatch{
		OrderA:      types.TemplateID{Kind: types.TemplateKind(aKind), Hash: aHash},
		OrderB:      types.TemplateID{Kind: types.TemplateKind(bKind), Hash: bHash},
		MatcherDest: matcher,
	}, nil
}

func (d *DEXMatch) TemplateID() types.TemplateID       { return idFor(d.Kind(), d.Encode()) }
func (d *DEXMatch) IsSpendable() bool                  { return true }
func (d *DEXMatch) IsDestInRecorded() bool             { return true }
func (d *DEXMatch) RecordedDestination() types.Destination { return d.MatcherDest }

func (d *DEXMatch) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	return verifyPartyShare(d.MatcherDest, sigMsg, rest, forkHeight)
}

func putUint16(buf []byte, v uint16) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
}

func readUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
