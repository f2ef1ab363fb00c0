// Package template implements the ten parameterized template kinds a
// Template destination can resolve to (spec.md §3/§4.2/§6), grounded on
// BigBang's CTemplate hierarchy (_examples/original_source/src/common/template).
//
// A template never throws on adversarial input: every Decode here returns
// an error instead of panicking, recasting the source's exception-driven
// parsing into Go's result-returning style (spec.md §9, Design Notes).
package template

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Template is the operation set every template kind implements
// (spec.md §4.2): encode its parameters, derive a template_id, report
// its spendability flags and verify a spend's signature.
type Template interface {
	Kind() types.TemplateKind
	// Encode renders the kind-specific parameter bytes (not including the
	// kind tag itself — TemplateID/sig-prefix framing carries that).
	Encode() []byte
	// TemplateID derives this instance's stable identifier.
	TemplateID() types.TemplateID
	// IsSpendable reports whether this template may appear as send_to of a
	// spending input (spec.md §4.2).
	IsSpendable() bool
	// IsDestInRecorded reports whether the real spender destination is
	// recorded inside the signature blob rather than being destIn itself.
	IsDestInRecorded() bool
	// VerifyTxSignature authenticates sig over sigMsg for a spend naming
	// sendTo as the outer destination, at the given connecting-block
	// height. ok_complete=true,err=nil on full authorization;
	// ok_partial=false,true,nil on a recognized-but-incomplete threshold
	// signature; fail=false,false,nil (or non-nil err) otherwise.
	VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, forkHeight uint64) (complete, partial bool, err error)
}

// LockedCoinTemplate is implemented by templates that impose a
// time-decaying lower bound on the balance a spend must leave behind
// (spec.md §4.7, the fork-redemption kind).
type LockedCoinTemplate interface {
	Template
	LockedCoinFloor(height uint64) int64
}

// MintTemplate is implemented by the two kinds allowed as a block's mint
// destination: they can authenticate the block header itself.
type MintTemplate interface {
	Template
	VerifyBlockSignature(hash types.Hash, sig []byte) bool
}

// DestInRecorded is implemented by templates whose signature blob records
// the actual spender destination because the outer destination is a
// policy wrapper (vote, dex-match).
type DestInRecorded interface {
	Template
	RecordedDestination() types.Destination
}

// idFor computes (kind, H(kind‖params)) for a template's encoded
// parameter bytes.
func idFor(kind types.TemplateKind, params []byte) types.TemplateID {
	buf := make([]byte, 2+len(params))
	binary.LittleEndian.PutUint16(buf[:2], uint16(kind))
	copy(buf[2:], params)
	return types.TemplateID{Kind: kind, Hash: crypto.Hash(buf)}
}

// Decode parses a kind's parameter bytes, as produced by that kind's
// Encode or split out by ParseSigPrefix. Used both to reconstruct a Destination's backing
// template and to parse the template-data prefix out of a signature blob
// (spec.md §4.2).
func Decode(kind types.TemplateKind, params []byte) (Template, error) {
	switch kind {
	case types.TemplateWeighted:
		return decodeWeighted(params)
	case types.TemplateMultiSig:
		return decodeMultiSig(params)
	case types.TemplateForkRedemption:
		return decodeForkRedemption(params)
	case types.TemplateProofOfWork:
		return decodeProofOfWorkMint(params)
	case types.TemplateDelegate:
		return decodeDelegateMint(params)
	case types.TemplateExchange:
		return decodeExchange(params)
	case types.TemplateVote:
		return decodeVote(params)
	case types.TemplatePayment:
		return decodePayment(params)
	case types.TemplateDEXOrder:
		return decodeDEXOrder(params)
	case types.TemplateDEXMatch:
		return decodeDEXMatch(params)
	default:
		return nil, fmt.Errorf("template: unknown kind %d", kind)
	}
}

// ParseSigPrefix splits a spending signature blob into the template-data
// prefix (kind + length-framed params) and the remaining signature bytes,
// per spec.md §4.2's "template-data prefix" contract.
func ParseSigPrefix(sig []byte) (kind types.TemplateKind, params []byte, rest []byte, err error) {
	if len(sig) < 6 {
		return 0, nil, nil, fmt.Errorf("template: signature too short for template-data prefix")
	}
	kind = types.TemplateKind(binary.LittleEndian.Uint16(sig[:2]))
	plen := binary.LittleEndian.Uint32(sig[2:6])
	if uint32(len(sig)-6) < plen {
		return 0, nil, nil, fmt.Errorf("template: truncated template-data prefix")
	}
	params = sig[6 : 6+plen]
	rest = sig[6+plen:]
	return kind, params, rest, nil
}

// FrameSigPrefix builds the template-data prefix for a signature blob.
func FrameSigPrefix(kind types.TemplateKind, params []byte) []byte {
	buf := make([]byte, 6+len(params))
	binary.LittleEndian.PutUint16(buf[:2], uint16(kind))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(len(params)))
	copy(buf[6:], params)
	return buf
}

// FromSignature reconstructs and validates a spending destination's
// template from the outer destination and the spend's signature blob:
// parses (kind, params), builds the template, and asserts its TemplateID
// matches dest.Hash (spec.md §4.2).
func FromSignature(dest types.Destination, sig []byte) (Template, []byte, error) {
	if !dest.IsTemplate() {
		return nil, nil, fmt.Errorf("template: destination is not a template")
	}
	kind, params, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return nil, nil, err
	}
	tmpl, err := Decode(kind, params)
	if err != nil {
		return nil, nil, err
	}
	if tmpl.TemplateID().Hash != dest.Hash {
		return nil, nil, fmt.Errorf("template: template_id mismatch")
	}
	return tmpl, rest, nil
}

// --- shared LE param codec helpers -----------------------------------------

func putHash(buf []byte, h types.Hash) { copy(buf, h[:]) }

func putDest(buf []byte, d types.Destination) {
	enc := d.Encode()
	copy(buf, enc[:])
}

func readDest(b []byte) (types.Destination, error) {
	return types.DecodeDestination(b[:types.DestinationSize])
}

func putUint64(buf []byte, v uint64) { binary.LittleEndian.PutUint64(buf, v) }
func putUint32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }
func putInt64(buf []byte, v int64)   { binary.LittleEndian.PutUint64(buf, uint64(v)) }
