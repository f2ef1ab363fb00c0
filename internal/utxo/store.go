package utxo

import (
	"encoding/json"
	"fmt"

	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/pkg/types"
)

// prefixUTXO namespaces every key this store writes: u/<fork 32><txid 32><index 1>.
var prefixUTXO = []byte("u/")

// Store implements Set backed by a storage.DB, grounded on the teacher's
// own key-prefix-per-concern convention (internal/storage's PrefixDB), here
// specialized to fold the fork ID directly into the key so one underlying
// DB safely backs every fork's UTXO set at once (spec.md §5: "UTXO set per
// fork", no cross-fork leakage).
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// utxoKey builds "u/" + fork(32) + txid(32) + index(1).
func utxoKey(fork types.ChainID, op types.Outpoint) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize+types.HashSize+1)
	off := copy(key, prefixUTXO)
	off += copy(key[off:], fork[:])
	off += copy(key[off:], op.TxID[:])
	key[off] = op.Index
	return key
}

func forkPrefix(fork types.ChainID) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize)
	off := copy(key, prefixUTXO)
	copy(key[off:], fork[:])
	return key
}

// Get retrieves an unspent output by fork and outpoint.
func (s *Store) Get(fork types.ChainID, outpoint types.Outpoint) (*TxOut, bool, error) {
	data, err := s.db.Get(utxoKey(fork, outpoint))
	if err != nil {
		return nil, false, nil
	}
	var out TxOut
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &out, true, nil
}

// Put stores an unspent output.
func (s *Store) Put(fork types.ChainID, outpoint types.Outpoint, out *TxOut) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(fork, outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	return nil
}

// Delete removes an unspent output (it has been consumed by a later tx).
func (s *Store) Delete(fork types.ChainID, outpoint types.Outpoint) error {
	if err := s.db.Delete(utxoKey(fork, outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// BatchPut stages an unspent-output write onto an externally-owned batch,
// so a caller (chainstore's UpdateFork) can land UTXO changes atomically
// alongside its own chain-metadata writes in one Commit.
func (s *Store) BatchPut(b storage.Batch, fork types.ChainID, outpoint types.Outpoint, out *TxOut) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	return b.Put(utxoKey(fork, outpoint), data)
}

// BatchDelete stages an unspent-output removal onto an externally-owned
// batch. See BatchPut.
func (s *Store) BatchDelete(b storage.Batch, fork types.ChainID, outpoint types.Outpoint) error {
	return b.Delete(utxoKey(fork, outpoint))
}

// Has reports whether an outpoint is currently unspent in fork.
func (s *Store) Has(fork types.ChainID, outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(fork, outpoint))
}

// ForEach iterates every unspent output of one fork.
func (s *Store) ForEach(fork types.ChainID, fn func(types.Outpoint, *TxOut) error) error {
	prefix := forkPrefix(fork)
	return s.db.ForEach(prefix, func(key, value []byte) error {
		off := len(prefix)
		if len(key) < off+types.HashSize+1 {
			return nil // malformed key, skip
		}
		var op types.Outpoint
		copy(op.TxID[:], key[off:off+types.HashSize])
		op.Index = key[off+types.HashSize]

		var out TxOut
		if err := json.Unmarshal(value, &out); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(op, &out)
	})
}

// ClearFork removes every unspent output belonging to fork, used when a
// fork is abandoned or its UTXO set is being rebuilt from scratch during
// reorg recovery.
func (s *Store) ClearFork(fork types.ChainID) error {
	var keys [][]byte
	if err := s.db.ForEach(forkPrefix(fork), func(key, _ []byte) error {
		k := make([]byte, len(key))
		copy(k, key)
		keys = append(keys, k)
		return nil
	}); err != nil {
		return fmt.Errorf("scan fork %s: %w", fork, err)
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}
