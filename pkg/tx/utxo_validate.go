package tx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/template"
	"github.com/kaelnet/chaincore/pkg/types"
)

// UTXO-aware validation errors (spec.md §4.11's context-dependent rules).
var (
	ErrInputNotFound    = errors.New("input UTXO not found")
	ErrInputOverflow    = errors.New("input values overflow")
	ErrInsufficientFunds = errors.New("inputs do not cover amount plus fee")
	ErrBelowLockedFloor = errors.New("change balance below the locked-coin floor")
	ErrAuthFailed       = errors.New("input signature failed authorization")
)

// Unspent is a single UTXO's value and owning destination, as stored by
// the chain state.
type Unspent struct {
	Destination types.Destination
	Amount      int64
}

// UTXOProvider resolves an input's prior output for validation.
type UTXOProvider interface {
	GetUnspent(outpoint types.Outpoint) (Unspent, bool)
}

// ValidateWithUTXOs performs the context-dependent checks that require the
// UTXO set: every input exists and is unspent, every input's owning
// destination authorizes this spend, inputs cover Amount+Fee, and — when
// an input's destination is a LockedCoinTemplate — the balance returned to
// the spender does not fall below that template's floor at forkHeight.
// Returns the change amount routed back to the spender (outpoint index 1)
// and the single destination every input resolved to, which callers that
// apply the transaction (internal/blockview, internal/delegate) need and
// would otherwise have to re-derive.
func (tx *Transaction) ValidateWithUTXOs(provider UTXOProvider, forkHeight uint64) (change int64, spender types.Destination, err error) {
	if tx.Type.IsMint() {
		return 0, types.Destination{}, nil
	}

	var totalInput int64
	var spenderDest types.Destination
	var lockedFloor int64
	sigMsg := tx.SigningHash()

	for i, in := range tx.Inputs {
		op := in.Outpoint()
		unspent, ok := provider.GetUnspent(op)
		if !ok {
			return 0, types.Destination{}, fmt.Errorf("input %d (%s): %w", i, op, ErrInputNotFound)
		}

		if i == 0 {
			spenderDest = unspent.Destination
		} else if !unspent.Destination.Equal(spenderDest) {
			return 0, types.Destination{}, fmt.Errorf("input %d: all inputs of one transaction must share one owning destination", i)
		}

		if totalInput > config.MaxMoney-unspent.Amount {
			return 0, types.Destination{}, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += unspent.Amount

		if unspent.Destination.IsTemplate() {
			tmpl, _, err := template.FromSignature(unspent.Destination, tx.Sig)
			if err != nil {
				return 0, types.Destination{}, fmt.Errorf("input %d: %w: %v", i, ErrAuthFailed, err)
			}
			if lc, ok := tmpl.(template.LockedCoinTemplate); ok {
				lockedFloor = lc.LockedCoinFloor(forkHeight)
			}
		}
	}

	if err := verifySpenderAuthorization(spenderDest, sigMsg, tx.Sig, forkHeight); err != nil {
		return 0, types.Destination{}, err
	}

	if totalInput < tx.Amount+tx.Fee {
		return 0, types.Destination{}, fmt.Errorf("%w: inputs=%d amount=%d fee=%d", ErrInsufficientFunds, totalInput, tx.Amount, tx.Fee)
	}
	change = totalInput - tx.Amount - tx.Fee

	if lockedFloor > 0 && change < lockedFloor {
		return 0, types.Destination{}, fmt.Errorf("input: %w: change=%d floor=%d", ErrBelowLockedFloor, change, lockedFloor)
	}

	return change, spenderDest, nil
}

// VerifyDestinationSignature checks sig authenticates msg against dest,
// exactly as an input's spend authorization is checked, for any caller that
// needs the same rule applied outside a transaction's own inputs — a
// block's mint-destination signature, most notably (spec.md §4.11: "block
// signature verifies against the mint destination's signing rule").
func VerifyDestinationSignature(dest types.Destination, msg types.Hash, sig []byte, forkHeight uint64) error {
	return verifySpenderAuthorization(dest, msg, sig, forkHeight)
}

// verifySpenderAuthorization checks Sig authenticates a spend from
// spenderDest: a direct Schnorr signature for a PubKey destination (Sig
// framed as [4-byte pubkey length][pubkey][signature]), or full template
// resolution otherwise.
func verifySpenderAuthorization(spenderDest types.Destination, sigMsg types.Hash, sig []byte, forkHeight uint64) error {
	if spenderDest.IsPubKey() {
		ok, err := verifyPubKeySpend(spenderDest, sigMsg, sig)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		if !ok {
			return ErrAuthFailed
		}
		return nil
	}
	if !spenderDest.IsTemplate() {
		return fmt.Errorf("%w: spender destination is null", ErrAuthFailed)
	}
	tmpl, _, err := template.FromSignature(spenderDest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	complete, _, err := tmpl.VerifyTxSignature(sigMsg, spenderDest, sig, forkHeight)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !complete {
		return ErrAuthFailed
	}
	return nil
}

// verifyPubKeySpend checks a bare-PubKey spend's signature, framed as
// [4-byte pubkey length][pubkey][schnorr signature] since a PubKey
// destination records only H(pubkey) on-chain.
func verifyPubKeySpend(dest types.Destination, sigMsg types.Hash, sig []byte) (bool, error) {
	if len(sig) < 4 {
		return false, fmt.Errorf("pubkey spend signature too short")
	}
	l := binary.LittleEndian.Uint32(sig[:4])
	if uint32(len(sig)-4) < l {
		return false, fmt.Errorf("pubkey spend signature truncated")
	}
	pub := sig[4 : 4+l]
	if crypto.PubKeyHash(pub) != dest.Hash {
		return false, fmt.Errorf("pubkey does not match destination")
	}
	return crypto.VerifySignature(sigMsg[:], sig[4+l:], pub), nil
}
