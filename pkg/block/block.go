// Package block defines the block wire format, its hashing/signing rules,
// and structural validation (spec.md §3, §4.3, §4.11).
package block

import (
	"encoding/hex"
	"encoding/json"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Block is a header plus its mint transaction and ordinary transactions,
// plus the block-level signature (spec.md §3). mint_tx is conceptually
// position 0 of the committed tx set but is stored separately from VTX,
// matching the teacher's historical coinbase-is-special convention
// generalized to the new single-mint-tx model.
type Block struct {
	Header
	MintTx *tx.Transaction   `json:"mint_tx"`
	VTX    []*tx.Transaction `json:"vtx"`
	Sig    []byte            `json:"sig"`
}

// blockJSON mirrors Block's fields explicitly rather than embedding Header,
// since Header's own hex-encoding MarshalJSON (pointer receiver) would not
// be promoted through a by-value embed.
type blockJSON struct {
	Version      uint16            `json:"version"`
	Type         Type              `json:"type"`
	Timestamp    uint32            `json:"timestamp"`
	PrevHash     types.Hash        `json:"prev_hash"`
	TxMerkleRoot types.Hash        `json:"tx_merkle_root"`
	ProofBytes   string            `json:"proof_bytes"`
	MintTx       *tx.Transaction   `json:"mint_tx"`
	VTX          []*tx.Transaction `json:"vtx"`
	Sig          string            `json:"sig"`
}

// MarshalJSON hex-encodes ProofBytes and Sig.
func (b *Block) MarshalJSON() ([]byte, error) {
	j := blockJSON{
		Version:      b.Header.Version,
		Type:         b.Header.Type,
		Timestamp:    b.Header.Timestamp,
		PrevHash:     b.Header.PrevHash,
		TxMerkleRoot: b.Header.TxMerkleRoot,
		ProofBytes:   hex.EncodeToString(b.Header.ProofBytes),
		MintTx:       b.MintTx,
		VTX:          b.VTX,
		Sig:          hex.EncodeToString(b.Sig),
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes hex-encoded ProofBytes and Sig fields.
func (b *Block) UnmarshalJSON(data []byte) error {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	b.Header = Header{
		Version:      j.Version,
		Type:         j.Type,
		Timestamp:    j.Timestamp,
		PrevHash:     j.PrevHash,
		TxMerkleRoot: j.TxMerkleRoot,
	}
	if j.ProofBytes != "" {
		pb, err := hex.DecodeString(j.ProofBytes)
		if err != nil {
			return err
		}
		b.Header.ProofBytes = pb
	}
	b.MintTx = j.MintTx
	b.VTX = j.VTX
	if j.Sig != "" {
		sig, err := hex.DecodeString(j.Sig)
		if err != nil {
			return err
		}
		b.Sig = sig
	}
	return nil
}

// NewBlock assembles a block from its header fields, mint transaction, and
// ordinary transactions. TxMerkleRoot is computed and stamped onto the
// header automatically.
func NewBlock(header Header, mintTx *tx.Transaction, vtx []*tx.Transaction) *Block {
	b := &Block{Header: header, MintTx: mintTx, VTX: vtx}
	b.Header.TxMerkleRoot = b.ComputeMerkleRoot()
	return b
}

// Transactions returns the mint transaction followed by every ordinary
// transaction, the order the merkle tree and tx-index commit in.
func (b *Block) Transactions() []*tx.Transaction {
	out := make([]*tx.Transaction, 0, 1+len(b.VTX))
	if b.MintTx != nil {
		out = append(out, b.MintTx)
	}
	out = append(out, b.VTX...)
	return out
}

// ComputeMerkleRoot recomputes the merkle root over [mint_txid, ...vtx_txids]
// (spec.md §4.3).
func (b *Block) ComputeMerkleRoot() types.Hash {
	txs := b.Transactions()
	ids := make([]types.Hash, len(txs))
	for i, t := range txs {
		ids[i] = t.ID()
	}
	return ComputeMerkleRoot(ids)
}

// HeaderHash is H(header) — the value block_hash's lower 224 bits come from.
func (b *Block) HeaderHash() types.Hash {
	return b.Header.Hash()
}

// Hash computes block_hash = (height<<32) | lower224(H(header)) (spec.md
// §3). height is supplied by the caller because it is a property of where
// the block connects in the chain, not of the block's own bytes — a block
// is not self-identifying until a BlockIndex assigns it a height.
func (b *Block) Hash(height uint64) types.Hash {
	return crypto.WithUpper32(b.HeaderHash(), uint32(height))
}

// HeightFromHash extracts the height a block_hash was stamped with.
func HeightFromHash(blockHash types.Hash) uint64 {
	return uint64(crypto.Upper32(blockHash))
}

// Size returns the on-disk size of this block: header signing bytes plus
// every transaction's signing bytes plus the block signature.
func (b *Block) Size() int {
	size := len(b.Header.SigningBytes()) + len(b.Sig)
	for _, t := range b.Transactions() {
		size += len(t.Bytes())
	}
	return size
}
