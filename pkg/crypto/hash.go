// Package crypto provides cryptographic primitives for chaincore: the
// collision-resistant hash used for transaction and block identity, the
// memory-hard hash used to evaluate proof-of-work, and secp256k1 Schnorr
// signing/verification (single-key and multi-sig).
package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/kaelnet/chaincore/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

// Hash computes a BLAKE3-256 hash of the input data. This is H() from
// spec.md §4.1: used for tx/block identity and as the signature message.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// powSalt namespaces the PoWHash derivation so it can never collide with
// an ordinary Hash() call over the same bytes.
var powSalt = []byte("chaincore/powhash/cryptonight-argon2id-v1")

// PoWHash is the memory-hard hash function identified by algo=CRYPTONIGHT
// in spec.md §4.8. No Cryptonight implementation exists anywhere in the
// available dependency set, so this reuses Argon2id (golang.org/x/crypto/argon2)
// as the bound memory-hard primitive — see DESIGN.md for the deviation.
// Parameters are tuned for per-block verification cost (every validating
// node recomputes this once per candidate header), not KDF-grade cost.
func PoWHash(data []byte) types.Hash {
	out := argon2.IDKey(data, powSalt, 1, 8*1024, 1, 32)
	var h types.Hash
	copy(h[:], out)
	return h
}

// PubKeyHash returns H(pubkey), the hash256 payload carried inside a
// PubKey destination (spec.md §3: `PubKey(hash256)`). The destination
// stores this hash directly, not the address derived from it — Address
// (pkg/types) is a separate, shorter, display-only encoding.
func PubKeyHash(pubKey []byte) types.Hash {
	return Hash(pubKey)
}

// AddressFromPubKey derives a display address from a compressed public
// key: BLAKE3(pubkey)[:20]. Used only for bech32 rendering and wallet
// bookkeeping, never for on-chain destination comparison — destinations
// compare the full 32-byte PubKeyHash.
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// HashConcat hashes the concatenation of two hashes. Used for building
// merkle trees (pairwise H(a‖b), spec.md §4.3).
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// WithUpper32 returns a copy of h with its upper 32 bits (the first 4
// bytes, big-endian position) replaced by v. Used to build txid
// (upper 32 bits = timestamp, spec.md §3) and block_hash
// (upper 32 bits = height, spec.md §3).
func WithUpper32(h types.Hash, v uint32) types.Hash {
	out := h
	out[0] = byte(v >> 24)
	out[1] = byte(v >> 16)
	out[2] = byte(v >> 8)
	out[3] = byte(v)
	return out
}

// Upper32 extracts the upper 32 bits previously written by WithUpper32.
func Upper32(h types.Hash) uint32 {
	return uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
}

// Lower224 returns the lower 224 bits (28 bytes) of h, used to build
// block_hash := (height<<32) | lower224(H(header)) (spec.md §3).
func Lower224(h types.Hash) [28]byte {
	var out [28]byte
	copy(out[:], h[4:])
	return out
}

// PublicKeyFromHex parses a hex-encoded compressed secp256k1 public key,
// validating that it decodes to a point on the curve.
func PublicKeyFromHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return nil, fmt.Errorf("invalid pubkey: %w", err)
	}
	return b, nil
}
