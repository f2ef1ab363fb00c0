package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DestPrefix tags which alternative of the Destination sum is in use
// (spec.md §3: `Null | PubKey(hash256) | Template(template_id)`).
type DestPrefix uint8

const (
	DestNull DestPrefix = 0x00
	DestPubKey DestPrefix = 0x01
	DestTemplate DestPrefix = 0x02
)

// DestinationSize is the canonical on-wire size: 1-byte prefix + 32-byte hash.
const DestinationSize = 1 + HashSize

// Destination is the tagged sum every transaction input/output destination
// resolves to. For PubKey it carries H(pubkey); for Template it carries
// H(kind‖params) — the template's kind travels alongside as TemplateKind
// in practice, but the bare Destination only ever serializes prefix‖hash,
// matching the canonical 33-byte wire form.
type Destination struct {
	Prefix DestPrefix `json:"prefix"`
	Hash   Hash       `json:"hash"`
}

// NullDestination is the zero-value, unspendable destination.
var NullDestination = Destination{Prefix: DestNull}

// NewPubKeyDestination builds a PubKey destination from a pubkey hash
// (crypto.PubKeyHash(pubkey)).
func NewPubKeyDestination(pubKeyHash Hash) Destination {
	return Destination{Prefix: DestPubKey, Hash: pubKeyHash}
}

// NewTemplateDestination builds a Template destination from a template ID
// hash (H(kind‖params)).
func NewTemplateDestination(templateHash Hash) Destination {
	return Destination{Prefix: DestTemplate, Hash: templateHash}
}

// IsNull reports whether this is the null destination.
func (d Destination) IsNull() bool {
	return d.Prefix == DestNull
}

// IsPubKey reports whether this destination names a pubkey hash directly.
func (d Destination) IsPubKey() bool {
	return d.Prefix == DestPubKey
}

// IsTemplate reports whether this destination names a template.
func (d Destination) IsTemplate() bool {
	return d.Prefix == DestTemplate
}

// Encode renders the canonical 33-byte on-wire form: prefix‖hash.
func (d Destination) Encode() [DestinationSize]byte {
	var out [DestinationSize]byte
	out[0] = byte(d.Prefix)
	copy(out[1:], d.Hash[:])
	return out
}

// DecodeDestination parses the canonical 33-byte on-wire form.
func DecodeDestination(b []byte) (Destination, error) {
	if len(b) != DestinationSize {
		return Destination{}, fmt.Errorf("destination must be %d bytes, got %d", DestinationSize, len(b))
	}
	prefix := DestPrefix(b[0])
	if prefix != DestNull && prefix != DestPubKey && prefix != DestTemplate {
		return Destination{}, fmt.Errorf("unknown destination prefix 0x%02x", b[0])
	}
	var h Hash
	copy(h[:], b[1:])
	return Destination{Prefix: prefix, Hash: h}, nil
}

// Equal reports whether two destinations are identical.
func (d Destination) Equal(o Destination) bool {
	return d.Prefix == o.Prefix && d.Hash == o.Hash
}

// String renders "null", "pubkey:<hex>", or "template:<hex>".
func (d Destination) String() string {
	switch d.Prefix {
	case DestNull:
		return "null"
	case DestPubKey:
		return "pubkey:" + d.Hash.String()
	case DestTemplate:
		return "template:" + d.Hash.String()
	default:
		return "invalid:" + hex.EncodeToString(d.Encode1Byte())
	}
}

// Encode1Byte returns just the prefix byte, used by String's error path.
func (d Destination) Encode1Byte() []byte {
	return []byte{byte(d.Prefix)}
}

// MarshalJSON encodes the destination as its hex-encoded 33-byte wire form.
func (d Destination) MarshalJSON() ([]byte, error) {
	enc := d.Encode()
	return json.Marshal(hex.EncodeToString(enc[:]))
}

// UnmarshalJSON decodes the hex-encoded 33-byte wire form.
func (d *Destination) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Destination{}
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid destination hex: %w", err)
	}
	parsed, err := DecodeDestination(b)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TemplateKind identifies a fixed, finite template type (spec.md §3/§6).
type TemplateKind uint16

const (
	TemplateMin            TemplateKind = 0
	TemplateWeighted       TemplateKind = 1
	TemplateMultiSig       TemplateKind = 2
	TemplateForkRedemption TemplateKind = 3
	TemplateProofOfWork    TemplateKind = 4
	TemplateDelegate       TemplateKind = 5
	TemplateExchange       TemplateKind = 6
	TemplateVote           TemplateKind = 7
	TemplatePayment        TemplateKind = 8
	TemplateDEXOrder       TemplateKind = 9
	TemplateDEXMatch       TemplateKind = 10
	TemplateMax            TemplateKind = 11
)

// String returns the template kind's canonical name.
func (k TemplateKind) String() string {
	switch k {
	case TemplateWeighted:
		return "weighted-multisig"
	case TemplateMultiSig:
		return "multisig"
	case TemplateForkRedemption:
		return "fork-redemption"
	case TemplateProofOfWork:
		return "proof-of-work-mint"
	case TemplateDelegate:
		return "delegate-mint"
	case TemplateExchange:
		return "exchange"
	case TemplateVote:
		return "vote"
	case TemplatePayment:
		return "payment"
	case TemplateDEXOrder:
		return "dex-order"
	case TemplateDEXMatch:
		return "dex-match"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the ten known kinds.
func (k TemplateKind) Valid() bool {
	return k > TemplateMin && k < TemplateMax
}

// TemplateID identifies a template instance: its kind plus the hash of its
// encoded parameters (spec.md §3: `template_id = (u16 type, hash256 of
// template params)`). A Template destination's Hash field is
// H(kind‖params); TemplateID is the richer pair used off the wire, inside
// the template registry, to reconstruct a Destination or re-derive params.
type TemplateID struct {
	Kind TemplateKind
	Hash Hash
}

// Destination renders this template ID as a Template destination carrying
// its Hash, which is already H(kind‖params) as the on-wire form expects.
func (t TemplateID) Destination() Destination {
	return Destination{Prefix: DestTemplate, Hash: t.Hash}
}
