package tx

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Context-free validation errors (spec.md §4.11): checkable from the
// transaction alone, without consulting the UTXO set or chain state.
var (
	ErrUnknownType     = errors.New("unknown transaction type")
	ErrMoneyRange      = errors.New("amount or fee out of money range")
	ErrInputsForMint   = errors.New("mint transaction must have no inputs")
	ErrNoInputs        = errors.New("non-mint transaction must have at least one input")
	ErrDuplicateInput  = errors.New("duplicate input")
	ErrInputIndexRange = errors.New("input index must be 0 or 1")
	ErrSigForMint      = errors.New("mint transaction must have no signature")
	ErrMissingSig      = errors.New("non-mint transaction must have a signature")
	ErrNullSendTo      = errors.New("send_to must not be null")
	ErrTxTooLarge      = errors.New("transaction exceeds max size")
	ErrFeeTooLow       = errors.New("token transaction fee below minimum")
	ErrFeeNotZero      = errors.New("non-token transaction must have zero fee")
	ErrDataFrame       = errors.New("data frame header invalid for this destination")
)

// dataFrameHeaderSize is the fixed portion of the data-frame header: a
// 16-byte uuid, a 4-byte timestamp, and a 1-byte description length
// (spec.md §4.11), followed by desc_len bytes of base64-decodable text.
const dataFrameHeaderSize = 16 + 4 + 1

// Validate checks structural, context-free rules that hold regardless of
// chain state or the UTXO set (spec.md §4.11).
func (tx *Transaction) Validate() error {
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, tx.Type)
	}
	if tx.Amount < 0 || tx.Amount > config.MaxMoney || tx.Fee < 0 || tx.Fee > config.MaxMoney {
		return fmt.Errorf("%w: amount=%d fee=%d", ErrMoneyRange, tx.Amount, tx.Fee)
	}

	if tx.Type.IsMint() {
		if len(tx.Inputs) != 0 {
			return ErrInputsForMint
		}
		if len(tx.Sig) != 0 {
			return ErrSigForMint
		}
	} else {
		if len(tx.Inputs) == 0 {
			return ErrNoInputs
		}
		if len(tx.Sig) == 0 {
			return ErrMissingSig
		}
	}

	seen := make(map[types.Outpoint]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if in.PrevIndex > 1 {
			return fmt.Errorf("input %d: %w: got %d", i, ErrInputIndexRange, in.PrevIndex)
		}
		op := in.Outpoint()
		if seen[op] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[op] = true
	}

	if tx.SendTo.IsNull() {
		return ErrNullSendTo
	}

	if tx.Type == Token {
		if tx.Fee < config.MinTxFee {
			return fmt.Errorf("%w: %d, minimum %d", ErrFeeTooLow, tx.Fee, config.MinTxFee)
		}
	} else if tx.Fee != 0 {
		return fmt.Errorf("%w: got %d", ErrFeeNotZero, tx.Fee)
	}

	if err := tx.validateDataFrame(); err != nil {
		return err
	}

	if tx.Size() > config.MaxTxSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrTxTooLarge, tx.Size(), config.MaxTxSize)
	}

	return nil
}

// validateDataFrame enforces the data-frame header rule (spec.md §4.11): a
// bare PubKey destination has no signature-embedded structure of its own to
// carry application metadata, so non-empty Data sent to one must open with
// a `[16B uuid, 4B timestamp, 1B desc_len, desc_len bytes of
// base64-decodable description]` header rather than being opaque,
// unauthenticated bytes.
//
// Template destinations are exempt: the wire Destination only ever carries
// prefix‖hash, never the backing template's kind, so a context-free check
// over send_to alone cannot distinguish a "simple" template (weighted-
// multisig, multisig) from any other — the kind only surfaces once a
// spending input's signature is parsed, which belongs to context-dependent
// validation (ValidateWithUTXOs), not here.
func (tx *Transaction) validateDataFrame() error {
	if len(tx.Data) == 0 {
		return nil
	}
	if !tx.SendTo.IsPubKey() {
		return nil
	}
	if len(tx.Data) < dataFrameHeaderSize {
		return fmt.Errorf("%w: too short for header", ErrDataFrame)
	}
	descLen := int(tx.Data[20])
	if len(tx.Data) < dataFrameHeaderSize+descLen {
		return fmt.Errorf("%w: truncated description", ErrDataFrame)
	}
	desc := tx.Data[dataFrameHeaderSize : dataFrameHeaderSize+descLen]
	if _, err := base64.StdEncoding.DecodeString(string(desc)); err != nil {
		return fmt.Errorf("%w: description not base64: %v", ErrDataFrame, err)
	}
	return nil
}
