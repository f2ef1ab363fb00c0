package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrBadBits          = errors.New("bits outside the retarget range")
	ErrProofTooShort    = errors.New("proof bytes too short for a PoW proof")
	ErrMintDestMismatch = errors.New("proof mint destination does not match mint tx send_to")
)

// AlgoCryptoNight is the only proof-of-work algorithm currently defined
// (spec.md §4.8: PoWHash is identified by algo=CRYPTONIGHT).
const AlgoCryptoNight uint8 = 1

// proofHeaderSize is the fixed-size prefix of a PoW proof_bytes blob:
// algo(1) + bits(4) + nonce(8) + mint_dest(33) = 46, the spec's minimum
// proof_bytes length for a PoW block.
const proofHeaderSize = 1 + 4 + 8 + types.DestinationSize

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Target returns (~0u256) >> bits, the threshold a PoWHash must not exceed
// (spec.md §4.8).
func Target(bits uint32) *big.Int {
	return new(big.Int).Rsh(maxUint256, uint(bits))
}

// Proof is the decoded content of a PoW block's header.proof_bytes.
type Proof struct {
	Algo     uint8
	Bits     uint32
	Nonce    uint64
	MintDest types.Destination
}

// EncodeProofBytes renders a Proof in its canonical wire form.
func EncodeProofBytes(p Proof) []byte {
	buf := make([]byte, 0, proofHeaderSize)
	buf = append(buf, p.Algo)
	buf = binary.BigEndian.AppendUint32(buf, p.Bits)
	buf = binary.BigEndian.AppendUint64(buf, p.Nonce)
	dest := p.MintDest.Encode()
	buf = append(buf, dest[:]...)
	return buf
}

// DecodeProofBytes parses a PoW proof_bytes blob.
func DecodeProofBytes(data []byte) (Proof, error) {
	if len(data) < proofHeaderSize {
		return Proof{}, fmt.Errorf("%w: got %d bytes, want >= %d", ErrProofTooShort, len(data), proofHeaderSize)
	}
	dest, err := types.DecodeDestination(data[13:proofHeaderSize])
	if err != nil {
		return Proof{}, fmt.Errorf("proof mint dest: %w", err)
	}
	return Proof{
		Algo:     data[0],
		Bits:     binary.BigEndian.Uint32(data[1:5]),
		Nonce:    binary.BigEndian.Uint64(data[5:13]),
		MintDest: dest,
	}, nil
}

// VerifyPoW checks that a block's header hashes below the target implied
// by its proof's bits, and that the proof's recorded mint destination
// matches the block's actual mint transaction recipient (spec.md §4.11).
func VerifyPoW(h *block.Header, mintSendTo types.Destination) error {
	proof, err := DecodeProofBytes(h.ProofBytes)
	if err != nil {
		return err
	}
	if proof.Bits < config.PowBitsLower || proof.Bits > config.PowBitsUpper {
		return fmt.Errorf("%w: %d", ErrBadBits, proof.Bits)
	}
	if !proof.MintDest.Equal(mintSendTo) {
		return ErrMintDestMismatch
	}
	hash := crypto.PoWHash(h.SigningBytes())
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(Target(proof.Bits)) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// Seal mines header by iterating ProofBytes' nonce field until the header
// hash meets bits' target, or ctx is cancelled.
func Seal(ctx context.Context, h *block.Header, bits uint32, mintDest types.Destination) error {
	target := Target(bits)
	base := Proof{Algo: AlgoCryptoNight, Bits: bits, MintDest: mintDest}
	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		base.Nonce = nonce
		h.ProofBytes = EncodeProofBytes(base)
		hash := crypto.PoWHash(h.SigningBytes())
		hashInt := new(big.Int).SetBytes(hash[:])
		if hashInt.Cmp(target) <= 0 {
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

// RetargetBits computes the next bits value from the spacing (in seconds,
// most recent last) between each of the prior POW_ADJUST_COUNT=8 same-algo
// blocks, weighted 2^7..2^0 (spec.md §4.8: sliding-window EWMA). spacings
// must have exactly config.PowAdjustCount entries, oldest first.
func RetargetBits(spacings []uint32, currentBits uint32) uint32 {
	if len(spacings) != config.PowAdjustCount {
		return currentBits
	}
	var weightedSum, weightTotal uint64
	for i, s := range spacings {
		weight := uint64(1) << uint(i) // oldest gets 2^0, most recent gets 2^7
		weightedSum += uint64(s) * weight
		weightTotal += weight
	}
	avg := weightedSum / weightTotal

	upper := uint64(config.BlockTargetSpacing + config.PowAdjustDebounce)
	lower := uint64(config.BlockTargetSpacing - config.PowAdjustDebounce)

	bits := currentBits
	switch {
	case avg > upper && bits > config.PowBitsLower:
		bits--
	case avg < lower && bits < config.PowBitsUpper:
		bits++
	}
	if bits < config.PowBitsLower {
		bits = config.PowBitsLower
	}
	if bits > config.PowBitsUpper {
		bits = config.PowBitsUpper
	}
	return bits
}

// BlockTrust computes a PoW block's contribution to chain_trust: 1<<bits
// (spec.md §4.8). Returned as big.Int since bits may reach 200.
func BlockTrust(bits uint32) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(bits))
}

// DelegateTrust computes a non-PoW (DPoS) block's contribution to
// chain_trust: weight<<bits, where bits is the last PoW ancestor's
// retargeted bits and weight is the delegate agreement weight (spec.md
// §4.8).
func DelegateTrust(weight uint64, bits uint32) *big.Int {
	return new(big.Int).Lsh(new(big.Int).SetUint64(weight), uint(bits))
}
