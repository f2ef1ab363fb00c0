package utxo

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Commitment computes a merkle root over every unspent output of one fork,
// for state-consistency checks (spec.md §6's check_consistency). Hashes are
// sorted before the tree is built so iteration order never affects the
// result. Returns a zero hash for an empty set.
func Commitment(store *Store, fork types.ChainID) (types.Hash, error) {
	var hashes []types.Hash

	err := store.ForEach(fork, func(op types.Outpoint, out *TxOut) error {
		hashes = append(hashes, hashTxOut(op, out))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("utxo commitment: %w", err)
	}
	if len(hashes) == 0 {
		return types.Hash{}, nil
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashLess(hashes[i], hashes[j])
	})

	return block.ComputeMerkleRoot(hashes), nil
}

// hashTxOut deterministically hashes one unspent output:
// txid(32) | index(1) | dest(33) | amount(8) | tx_time(4) | lock_until(4).
func hashTxOut(op types.Outpoint, out *TxOut) types.Hash {
	var buf []byte
	buf = append(buf, op.TxID[:]...)
	buf = append(buf, op.Index)
	dest := out.Dest.Encode()
	buf = append(buf, dest[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(out.Amount))
	buf = binary.LittleEndian.AppendUint32(buf, out.TxTime)
	buf = binary.LittleEndian.AppendUint32(buf, out.LockUntil)
	return crypto.Hash(buf)
}

func hashLess(a, b types.Hash) bool {
	for i := 0; i < types.HashSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
