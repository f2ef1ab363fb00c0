package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Type identifies which of the six block kinds a header belongs to
// (spec.md §3).
type Type uint16

const (
	Genesis Type = iota
	Origin
	Primary
	Subsidiary
	Extended
	Vacant
)

// String returns the block type's canonical name.
func (t Type) String() string {
	switch t {
	case Genesis:
		return "genesis"
	case Origin:
		return "origin"
	case Primary:
		return "primary"
	case Subsidiary:
		return "subsidiary"
	case Extended:
		return "extended"
	case Vacant:
		return "vacant"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the six known block types.
func (t Type) Valid() bool { return t <= Vacant }

// Header is the signed portion of a block: everything block_hash commits
// to except the trailing signature (spec.md §3). mint_tx and vtx live on
// Block, not Header — they're committed through TxMerkleRoot instead of
// being hashed directly.
type Header struct {
	Version      uint16     `json:"version"`
	Type         Type       `json:"type"`
	Timestamp    uint32     `json:"timestamp"`
	PrevHash     types.Hash `json:"prev_hash"`
	TxMerkleRoot types.Hash `json:"tx_merkle_root"`
	ProofBytes   []byte     `json:"proof_bytes"`
}

type headerJSON struct {
	Version      uint16     `json:"version"`
	Type         Type       `json:"type"`
	Timestamp    uint32     `json:"timestamp"`
	PrevHash     types.Hash `json:"prev_hash"`
	TxMerkleRoot types.Hash `json:"tx_merkle_root"`
	ProofBytes   string     `json:"proof_bytes"`
}

// MarshalJSON hex-encodes ProofBytes.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		Version:      h.Version,
		Type:         h.Type,
		Timestamp:    h.Timestamp,
		PrevHash:     h.PrevHash,
		TxMerkleRoot: h.TxMerkleRoot,
		ProofBytes:   hex.EncodeToString(h.ProofBytes),
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a hex-encoded ProofBytes field.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.Version = j.Version
	h.Type = j.Type
	h.Timestamp = j.Timestamp
	h.PrevHash = j.PrevHash
	h.TxMerkleRoot = j.TxMerkleRoot
	if j.ProofBytes != "" {
		b, err := hex.DecodeString(j.ProofBytes)
		if err != nil {
			return err
		}
		h.ProofBytes = b
	}
	return nil
}

// SigningBytes renders the canonical little-endian encoding of every field
// block_hash commits to, in declared order (spec.md §4.3). Excludes Sig —
// that lives on Block and is verified against this hash, not folded into it.
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 2+2+4+types.HashSize*2+4+len(h.ProofBytes))
	buf = binary.LittleEndian.AppendUint16(buf, h.Version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(h.Type))
	buf = binary.LittleEndian.AppendUint32(buf, h.Timestamp)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.TxMerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(h.ProofBytes)))
	buf = append(buf, h.ProofBytes...)
	return buf
}

// Hash computes H(header) — the value block_hash's lower 224 bits are
// drawn from (spec.md §3).
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}
