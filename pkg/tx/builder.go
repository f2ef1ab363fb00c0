package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/template"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder stamped with the given
// timestamp (spec.md §3: Timestamp feeds the txid formula, so it must be
// fixed before signing, not derived later).
func NewBuilder(txType Type, timestamp uint32) *Builder {
	return &Builder{tx: &Transaction{Version: 1, Type: txType, Timestamp: timestamp}}
}

// AddInput adds an input referencing a previous output.
func (b *Builder) AddInput(prevHash types.Hash, prevIndex uint8) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevHash: prevHash, PrevIndex: prevIndex})
	return b
}

// SetSendTo sets the recipient destination and amount.
func (b *Builder) SetSendTo(dest types.Destination, amount int64) *Builder {
	b.tx.SendTo = dest
	b.tx.Amount = amount
	return b
}

// SetFee sets the transaction fee.
func (b *Builder) SetFee(fee int64) *Builder {
	b.tx.Fee = fee
	return b
}

// SetLockUntil sets the height below which this transaction may not be
// included in a block.
func (b *Builder) SetLockUntil(lockUntil uint32) *Builder {
	b.tx.LockUntil = lockUntil
	return b
}

// SetData attaches application data to the transaction.
func (b *Builder) SetData(data []byte) *Builder {
	b.tx.Data = data
	return b
}

// SignPubKey signs a spend from a bare PubKey destination, framing Sig as
// [4-byte pubkey length][pubkey][schnorr signature] so a verifier can
// recover the pubkey the on-chain hash doesn't carry.
func (b *Builder) SignPubKey(key *crypto.PrivateKey) error {
	hash := b.tx.SigningHash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pub := key.PublicKey()
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(pub)))
	blob := append(l[:], pub...)
	blob = append(blob, sig...)
	b.tx.Sig = blob
	return nil
}

// SignTemplate signs a spend from a template destination: tmpl must be
// the exact template instance backing the spent destination, and partial
// is the kind-specific signature payload to append after the template's
// framed parameters (e.g. EncodePartialSigs for multisig kinds, or a raw
// schnorr signature for single-key kinds like proof-of-work-mint).
func (b *Builder) SignTemplate(tmpl template.Template, partial []byte) *Builder {
	prefix := template.FrameSigPrefix(tmpl.Kind(), tmpl.Encode())
	b.tx.Sig = append(prefix, partial...)
	return b
}

// Build returns the constructed transaction. Does NOT validate — call
// tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
