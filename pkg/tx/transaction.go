// Package tx defines the transaction wire format, its canonical hashing,
// and context-free validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Type identifies what a transaction does (spec.md §3): TOKEN transfers
// move an existing balance, CERT carries a delegate enrollment, GENESIS
// mints the chain's first coins, STAKE mints a delegate-staked block
// reward, WORK mints a proof-of-work block reward.
type Type uint16

const (
	Token Type = iota
	Cert
	Genesis
	Stake
	Work
)

func (t Type) String() string {
	switch t {
	case Token:
		return "token"
	case Cert:
		return "cert"
	case Genesis:
		return "genesis"
	case Stake:
		return "stake"
	case Work:
		return "work"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the five known transaction types.
func (t Type) Valid() bool {
	return t <= Work
}

// IsMint reports whether t mints new coins rather than spending existing
// ones. Mint transactions carry no inputs and no spend signature — the
// enclosing block's own signature authorizes them.
func (t Type) IsMint() bool {
	return t == Genesis || t == Stake || t == Work
}

// Input references a specific output of a prior transaction. A
// transaction produces at most two outputs (spec.md §3/§4.7), so
// PrevIndex is restricted to {0, 1}: 0 is the payment to send_to, 1 is
// the change returned to the spender.
type Input struct {
	PrevHash  types.Hash `json:"prev_hash"`
	PrevIndex uint8      `json:"prev_index"`
}

// Outpoint renders this input's reference as an Outpoint for UTXO lookups.
func (in Input) Outpoint() types.Outpoint {
	return types.Outpoint{TxID: in.PrevHash, Index: in.PrevIndex}
}

// Transaction is the chain's sole transaction shape (spec.md §3): one
// unified envelope for transfers, delegate enrollment, and every mint
// kind, distinguished by Type. Unlike a multi-output ledger, a
// Transaction names a single SendTo destination and Amount; any balance
// left over after Amount and Fee are subtracted returns to the spender
// as an implicit second output, computed at block-application time
// rather than carried on the wire.
type Transaction struct {
	Version   uint16            `json:"version"`
	Type      Type              `json:"type"`
	Timestamp uint32            `json:"timestamp"`
	LockUntil uint32            `json:"lock_until"`
	Inputs    []Input           `json:"inputs"`
	SendTo    types.Destination `json:"send_to"`
	Amount    int64             `json:"amount"`
	Fee       int64             `json:"fee"`
	Data      []byte            `json:"data"`
	Sig       []byte            `json:"sig"`
}

type txJSON struct {
	Version   uint16            `json:"version"`
	Type      Type              `json:"type"`
	Timestamp uint32            `json:"timestamp"`
	LockUntil uint32            `json:"lock_until"`
	Inputs    []Input           `json:"inputs"`
	SendTo    types.Destination `json:"send_to"`
	Amount    int64             `json:"amount"`
	Fee       int64             `json:"fee"`
	Data      string            `json:"data"`
	Sig       string            `json:"sig"`
}

// MarshalJSON hex-encodes the Data and Sig byte slices.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		Version: tx.Version, Type: tx.Type, Timestamp: tx.Timestamp, LockUntil: tx.LockUntil,
		Inputs: tx.Inputs, SendTo: tx.SendTo, Amount: tx.Amount, Fee: tx.Fee,
		Data: hex.EncodeToString(tx.Data), Sig: hex.EncodeToString(tx.Sig),
	})
}

// UnmarshalJSON decodes the hex-encoded Data and Sig byte slices.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	dataBytes, err := hex.DecodeString(j.Data)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	sigBytes, err := hex.DecodeString(j.Sig)
	if err != nil {
		return fmt.Errorf("sig: %w", err)
	}
	tx.Version, tx.Type, tx.Timestamp, tx.LockUntil = j.Version, j.Type, j.Timestamp, j.LockUntil
	tx.Inputs, tx.SendTo, tx.Amount, tx.Fee = j.Inputs, j.SendTo, j.Amount, j.Fee
	tx.Data, tx.Sig = dataBytes, sigBytes
	return nil
}

// SigningBytes is the canonical encoding signed by Sig: every field
// except Sig itself.
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, tx.Version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(tx.Type))
	buf = binary.LittleEndian.AppendUint32(buf, tx.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, tx.LockUntil)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevHash[:]...)
		buf = append(buf, in.PrevIndex)
	}
	sendTo := tx.SendTo.Encode()
	buf = append(buf, sendTo[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(tx.Amount))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(tx.Fee))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Data)))
	buf = append(buf, tx.Data...)
	return buf
}

// SigningHash is H(SigningBytes()) — the message a spend signature, or a
// mint's implicit block-level authorization, is computed over.
func (tx *Transaction) SigningHash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// Bytes is the full canonical encoding, including Sig, used to derive ID.
func (tx *Transaction) Bytes() []byte {
	buf := tx.SigningBytes()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Sig)))
	buf = append(buf, tx.Sig...)
	return buf
}

// ID computes the transaction's hash identity: H(canonical_tx) with its
// upper 32 bits replaced by Timestamp (spec.md §3), so two transactions
// that are otherwise identical but minted at different times never
// collide.
func (tx *Transaction) ID() types.Hash {
	return crypto.WithUpper32(crypto.Hash(tx.Bytes()), tx.Timestamp)
}

// Size returns the encoded transaction size in bytes, the quantity
// MAX_TX_SIZE and fee-rate checks are measured against.
func (tx *Transaction) Size() int {
	return len(tx.Bytes())
}
