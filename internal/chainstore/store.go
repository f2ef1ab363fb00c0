// Package chainstore persists the chain metadata tables that sit beside the
// per-fork UTXO set (internal/utxo) and the append-only block file store
// (internal/blockfile): block outlines, the tx index, fork tips and
// contexts, delegate vote snapshots, enrollment positions, and the
// address-invite graph (spec.md §4.5, C5). Adapted from the teacher's
// internal/chain/store.go key-prefix-per-table convention, generalized
// from a single fixed chain to one store instance shared by every fork.
package chainstore

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Key prefixes, one per logical table (spec.md §4.5).
var (
	prefixOutline = []byte("o/") // o/<block_hash(32)> -> BlockOutline JSON
	prefixTxIndex = []byte("x/") // x/<txid(32)> -> TxLocation JSON
	prefixFork    = []byte("f/") // f/<fork_hash(32)> -> tip_hash(32)
	prefixCtx     = []byte("c/") // c/<fork_hash(32)> -> ForkContext JSON
	prefixDeleg   = []byte("d/") // d/<block_hash(32)> -> delegate_dest(hex) -> votes JSON map
	prefixEnroll  = []byte("e/") // e/<height(8)><delegate_dest(33)> -> blockfile.Pos JSON
	prefixInvite  = []byte("i/") // i/<fork_hash(32)><dest(33)> -> AddressInvite JSON
	prefixUndo    = []byte("u/") // u/<block_hash(32)> -> UndoData JSON
)

// BlockOutline is the block_outline table's value: everything
// internal/chainindex's in-memory BlockIndex needs to rehydrate on
// startup, plus where to find the full block in the file store.
type BlockOutline struct {
	Version      uint16         `json:"version"`
	Type         uint16         `json:"type"`
	Timestamp    uint32         `json:"timestamp"`
	Height       uint64         `json:"height"`
	PrevHash     types.Hash     `json:"prev_hash"`
	OriginHash   types.Hash     `json:"origin_hash"`
	TxMerkleRoot types.Hash     `json:"tx_merkle_root"`
	FilePos      blockfile.Pos  `json:"file_pos"`
	Trust        string         `json:"trust"` // decimal big.Int string; cumulative chain trust to this block
}

// TxLocation is the tx_index table's value.
type TxLocation struct {
	ForkHash    types.ChainID `json:"fork_hash"`
	BlockHeight uint64        `json:"block_height"`
	FilePos     blockfile.Pos `json:"file_pos"`
}

// ForkContext is the fork_context table's value: how a fork is rooted in
// its parent, needed to walk between forks without replaying every block.
type ForkContext struct {
	ParentFork  types.ChainID `json:"parent_fork"`
	JointHash   types.Hash    `json:"joint_hash"`
	JointHeight uint64        `json:"joint_height"`
	Profile     string        `json:"profile"`
}

// AddressInvite records the first-receipt graph edge for a destination
// whose first incoming amount cleared the invite threshold.
type AddressInvite struct {
	Inviter     types.Destination `json:"inviter"`
	InviteTxID  types.Hash        `json:"invite_txid"`
}

// SpentOutput is one input a block's transactions consumed, recorded at
// connect time with enough of the output it spent (spec.md §4.10's restore
// requirement for RemoveBlock) to recreate it exactly on revert. Grounded on
// original_source/src/storage/blockbase.cpp's CTxContxt/CTxInContxt, which
// the original stores per connected block for the same reason: a spent
// output's amount (particularly a change output's) isn't recoverable by
// re-deriving it from the spending transaction's own wire fields alone.
type SpentOutput struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Out      utxo.TxOut     `json:"out"`
}

// EnrollUndo is one enrollment a block's connection recorded, named so
// RemoveBlock can delete it again on revert.
type EnrollUndo struct {
	Height uint64            `json:"height"`
	Dest   types.Destination `json:"dest"`
}

// UndoData is the undo table's value: everything connecting a block
// recorded outside its own UTXO outputs, which disconnecting it must
// reverse — the outputs its transactions consumed, the enrollments its CERT
// transactions recorded, and the address-invite edges its transfers newly
// created. A reorg that disconnects the block restores/removes each of
// these before removing the block's own outputs.
type UndoData struct {
	SpentOutputs []SpentOutput       `json:"spent_outputs"`
	Enrollments  []EnrollUndo        `json:"enrollments,omitempty"`
	Invited      []types.Destination `json:"invited,omitempty"`
}

// Store is the chainstore's handle on a storage.DB.
type Store struct {
	db storage.DB
}

// New creates a chainstore backed by db.
func New(db storage.DB) *Store {
	return &Store{db: db}
}

func outlineKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixOutline...), hash[:]...)
}

// PutOutline stores a block's outline.
func (s *Store) PutOutline(hash types.Hash, o BlockOutline) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("chainstore: marshal outline: %w", err)
	}
	if err := s.db.Put(outlineKey(hash), data); err != nil {
		return fmt.Errorf("chainstore: put outline %s: %w", hash, err)
	}
	return nil
}

// GetOutline retrieves a block's outline.
func (s *Store) GetOutline(hash types.Hash) (BlockOutline, bool, error) {
	data, err := s.db.Get(outlineKey(hash))
	if err != nil {
		return BlockOutline{}, false, nil
	}
	var o BlockOutline
	if err := json.Unmarshal(data, &o); err != nil {
		return BlockOutline{}, false, fmt.Errorf("chainstore: unmarshal outline %s: %w", hash, err)
	}
	return o, true, nil
}

// ForEachOutline iterates every recorded block outline, used to rebuild
// the in-memory index and fork set on startup (spec.md §7).
func (s *Store) ForEachOutline(fn func(hash types.Hash, o BlockOutline) error) error {
	return s.db.ForEach(prefixOutline, func(key, value []byte) error {
		if len(key) < len(prefixOutline)+types.HashSize {
			return nil
		}
		var hash types.Hash
		copy(hash[:], key[len(prefixOutline):])
		var o BlockOutline
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("chainstore: unmarshal outline %s: %w", hash, err)
		}
		return fn(hash, o)
	})
}

func txIndexKey(txid types.Hash) []byte {
	return append(append([]byte{}, prefixTxIndex...), txid[:]...)
}

// PutTxLocation indexes where one transaction lives.
func (s *Store) PutTxLocation(txid types.Hash, loc TxLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("chainstore: marshal tx location: %w", err)
	}
	if err := s.db.Put(txIndexKey(txid), data); err != nil {
		return fmt.Errorf("chainstore: put tx location %s: %w", txid, err)
	}
	return nil
}

// GetTxLocation looks up where one transaction lives.
func (s *Store) GetTxLocation(txid types.Hash) (TxLocation, bool, error) {
	data, err := s.db.Get(txIndexKey(txid))
	if err != nil {
		return TxLocation{}, false, nil
	}
	var loc TxLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return TxLocation{}, false, fmt.Errorf("chainstore: unmarshal tx location %s: %w", txid, err)
	}
	return loc, true, nil
}

// DeleteTxLocation removes a transaction's index entry (used when a block
// is disconnected during reorg).
func (s *Store) DeleteTxLocation(txid types.Hash) error {
	return s.db.Delete(txIndexKey(txid))
}

// BatchPutTxLocation stages a tx-index write onto an externally-owned batch.
func (s *Store) BatchPutTxLocation(b storage.Batch, txid types.Hash, loc TxLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("chainstore: marshal tx location: %w", err)
	}
	return b.Put(txIndexKey(txid), data)
}

// BatchDeleteTxLocation stages a tx-index removal onto an externally-owned batch.
func (s *Store) BatchDeleteTxLocation(b storage.Batch, txid types.Hash) error {
	return b.Delete(txIndexKey(txid))
}

// BatchSetForkTip stages a fork-tip update onto an externally-owned batch.
func (s *Store) BatchSetForkTip(b storage.Batch, fork types.ChainID, tip types.Hash) error {
	return b.Put(forkKey(fork), tip[:])
}

func forkKey(fork types.ChainID) []byte {
	return append(append([]byte{}, prefixFork...), fork[:]...)
}

// SetForkTip records fork's current tip.
func (s *Store) SetForkTip(fork types.ChainID, tip types.Hash) error {
	if err := s.db.Put(forkKey(fork), tip[:]); err != nil {
		return fmt.Errorf("chainstore: set fork tip %s: %w", fork, err)
	}
	return nil
}

// GetForkTip retrieves fork's current tip.
func (s *Store) GetForkTip(fork types.ChainID) (types.Hash, bool, error) {
	data, err := s.db.Get(forkKey(fork))
	if err != nil {
		return types.Hash{}, false, nil
	}
	if len(data) != types.HashSize {
		return types.Hash{}, false, fmt.Errorf("chainstore: corrupt fork tip for %s", fork)
	}
	var h types.Hash
	copy(h[:], data)
	return h, true, nil
}

// ForEachFork iterates every fork's recorded tip, used to rebuild the
// index's fork set on startup (spec.md §7) and to serve list_forks.
func (s *Store) ForEachFork(fn func(fork types.ChainID, tip types.Hash) error) error {
	return s.db.ForEach(prefixFork, func(key, value []byte) error {
		if len(key) < len(prefixFork)+types.HashSize || len(value) != types.HashSize {
			return nil
		}
		var fork types.ChainID
		copy(fork[:], key[len(prefixFork):])
		var tip types.Hash
		copy(tip[:], value)
		return fn(fork, tip)
	})
}

func ctxKey(fork types.ChainID) []byte {
	return append(append([]byte{}, prefixCtx...), fork[:]...)
}

// PutForkContext records how fork is rooted in its parent.
func (s *Store) PutForkContext(fork types.ChainID, ctx ForkContext) error {
	data, err := json.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("chainstore: marshal fork context: %w", err)
	}
	if err := s.db.Put(ctxKey(fork), data); err != nil {
		return fmt.Errorf("chainstore: put fork context %s: %w", fork, err)
	}
	return nil
}

// GetForkContext retrieves how fork is rooted in its parent.
func (s *Store) GetForkContext(fork types.ChainID) (ForkContext, bool, error) {
	data, err := s.db.Get(ctxKey(fork))
	if err != nil {
		return ForkContext{}, false, nil
	}
	var ctx ForkContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return ForkContext{}, false, fmt.Errorf("chainstore: unmarshal fork context %s: %w", fork, err)
	}
	return ctx, true, nil
}

func delegateKey(blockHash types.Hash) []byte {
	return append(append([]byte{}, prefixDeleg...), blockHash[:]...)
}

// PutDelegateSnapshot persists the delegate → votes table as it stands
// immediately after connecting blockHash.
func (s *Store) PutDelegateSnapshot(blockHash types.Hash, votes map[types.Destination]int64) error {
	encoded := make(map[string]int64, len(votes))
	for dest, v := range votes {
		encoded[destHex(dest)] = v
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("chainstore: marshal delegate snapshot: %w", err)
	}
	if err := s.db.Put(delegateKey(blockHash), data); err != nil {
		return fmt.Errorf("chainstore: put delegate snapshot %s: %w", blockHash, err)
	}
	return nil
}

// GetDelegateSnapshot retrieves the delegate → votes table as of blockHash.
func (s *Store) GetDelegateSnapshot(blockHash types.Hash) (map[types.Destination]int64, bool, error) {
	data, err := s.db.Get(delegateKey(blockHash))
	if err != nil {
		return nil, false, nil
	}
	var encoded map[string]int64
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, false, fmt.Errorf("chainstore: unmarshal delegate snapshot %s: %w", blockHash, err)
	}
	votes := make(map[types.Destination]int64, len(encoded))
	for hexDest, v := range encoded {
		dest, err := destFromHex(hexDest)
		if err != nil {
			return nil, false, fmt.Errorf("chainstore: decode delegate dest: %w", err)
		}
		votes[dest] = v
	}
	return votes, true, nil
}

func enrollKey(height uint64, dest types.Destination) []byte {
	key := make([]byte, 0, len(prefixEnroll)+8+types.DestinationSize)
	key = append(key, prefixEnroll...)
	key = binary.BigEndian.AppendUint64(key, height)
	enc := dest.Encode()
	key = append(key, enc[:]...)
	return key
}

// PutEnroll records where a delegate's enrollment cert tx lives, anchored
// at the given height.
func (s *Store) PutEnroll(height uint64, dest types.Destination, pos blockfile.Pos) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("chainstore: marshal enroll pos: %w", err)
	}
	if err := s.db.Put(enrollKey(height, dest), data); err != nil {
		return fmt.Errorf("chainstore: put enroll %d/%s: %w", height, dest, err)
	}
	return nil
}

// DeleteEnroll removes a delegate's enrollment record at the given anchor
// height (used when RemoveBlock reverts the CERT transaction that recorded
// it).
func (s *Store) DeleteEnroll(height uint64, dest types.Destination) error {
	return s.db.Delete(enrollKey(height, dest))
}

// BatchDeleteEnroll stages an enrollment removal onto an externally-owned
// batch.
func (s *Store) BatchDeleteEnroll(b storage.Batch, height uint64, dest types.Destination) error {
	return b.Delete(enrollKey(height, dest))
}

// GetEnroll retrieves where a delegate's enrollment cert tx lives, if any,
// anchored at the given height.
func (s *Store) GetEnroll(height uint64, dest types.Destination) (blockfile.Pos, bool, error) {
	data, err := s.db.Get(enrollKey(height, dest))
	if err != nil {
		return blockfile.Pos{}, false, nil
	}
	var pos blockfile.Pos
	if err := json.Unmarshal(data, &pos); err != nil {
		return blockfile.Pos{}, false, fmt.Errorf("chainstore: unmarshal enroll pos: %w", err)
	}
	return pos, true, nil
}

// ForEachEnroll iterates every delegate enrolled at height.
func (s *Store) ForEachEnroll(height uint64, fn func(dest types.Destination, pos blockfile.Pos) error) error {
	prefix := make([]byte, 0, len(prefixEnroll)+8)
	prefix = append(prefix, prefixEnroll...)
	prefix = binary.BigEndian.AppendUint64(prefix, height)
	return s.db.ForEach(prefix, func(key, value []byte) error {
		off := len(prefix)
		if len(key) < off+types.DestinationSize {
			return nil
		}
		var enc [types.DestinationSize]byte
		copy(enc[:], key[off:off+types.DestinationSize])
		dest, err := types.DecodeDestination(enc[:])
		if err != nil {
			return fmt.Errorf("chainstore: decode enroll key dest: %w", err)
		}
		var pos blockfile.Pos
		if err := json.Unmarshal(value, &pos); err != nil {
			return fmt.Errorf("chainstore: unmarshal enroll pos: %w", err)
		}
		return fn(dest, pos)
	})
}

func inviteKey(fork types.ChainID, dest types.Destination) []byte {
	key := make([]byte, 0, len(prefixInvite)+types.HashSize+types.DestinationSize)
	key = append(key, prefixInvite...)
	key = append(key, fork[:]...)
	enc := dest.Encode()
	key = append(key, enc[:]...)
	return key
}

// PutAddressInvite records the first-receipt graph edge for dest within fork.
func (s *Store) PutAddressInvite(fork types.ChainID, dest types.Destination, invite AddressInvite) error {
	data, err := json.Marshal(invite)
	if err != nil {
		return fmt.Errorf("chainstore: marshal address invite: %w", err)
	}
	if err := s.db.Put(inviteKey(fork, dest), data); err != nil {
		return fmt.Errorf("chainstore: put address invite: %w", err)
	}
	return nil
}

// GetAddressInvite retrieves dest's first-receipt graph edge within fork,
// if one has been recorded.
func (s *Store) GetAddressInvite(fork types.ChainID, dest types.Destination) (AddressInvite, bool, error) {
	data, err := s.db.Get(inviteKey(fork, dest))
	if err != nil {
		return AddressInvite{}, false, nil
	}
	var invite AddressInvite
	if err := json.Unmarshal(data, &invite); err != nil {
		return AddressInvite{}, false, fmt.Errorf("chainstore: unmarshal address invite: %w", err)
	}
	return invite, true, nil
}

func undoKey(blockHash types.Hash) []byte {
	return append(append([]byte{}, prefixUndo...), blockHash[:]...)
}

// PutUndo records blockHash's undo data.
func (s *Store) PutUndo(blockHash types.Hash, undo UndoData) error {
	data, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("chainstore: marshal undo data: %w", err)
	}
	if err := s.db.Put(undoKey(blockHash), data); err != nil {
		return fmt.Errorf("chainstore: put undo data %s: %w", blockHash, err)
	}
	return nil
}

// GetUndo retrieves blockHash's undo data, if any has been recorded.
func (s *Store) GetUndo(blockHash types.Hash) (UndoData, bool, error) {
	data, err := s.db.Get(undoKey(blockHash))
	if err != nil {
		return UndoData{}, false, nil
	}
	var undo UndoData
	if err := json.Unmarshal(data, &undo); err != nil {
		return UndoData{}, false, fmt.Errorf("chainstore: unmarshal undo data %s: %w", blockHash, err)
	}
	return undo, true, nil
}

// DeleteUndo removes blockHash's undo data, once the block it describes can
// never be disconnected again (it is behind the deepest fork's joint point).
func (s *Store) DeleteUndo(blockHash types.Hash) error {
	return s.db.Delete(undoKey(blockHash))
}

// BatchPutUndo stages an undo-data write onto an externally-owned batch.
func (s *Store) BatchPutUndo(b storage.Batch, blockHash types.Hash, undo UndoData) error {
	data, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("chainstore: marshal undo data: %w", err)
	}
	return b.Put(undoKey(blockHash), data)
}

// BatchDeleteUndo stages an undo-data removal onto an externally-owned batch.
func (s *Store) BatchDeleteUndo(b storage.Batch, blockHash types.Hash) error {
	return b.Delete(undoKey(blockHash))
}

// BatchPutOutline stages a block outline write onto an externally-owned batch.
func (s *Store) BatchPutOutline(b storage.Batch, hash types.Hash, o BlockOutline) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("chainstore: marshal outline: %w", err)
	}
	return b.Put(outlineKey(hash), data)
}

// BatchPutDelegateSnapshot stages a delegate-snapshot write onto an
// externally-owned batch.
func (s *Store) BatchPutDelegateSnapshot(b storage.Batch, blockHash types.Hash, votes map[types.Destination]int64) error {
	encoded := make(map[string]int64, len(votes))
	for dest, v := range votes {
		encoded[destHex(dest)] = v
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("chainstore: marshal delegate snapshot: %w", err)
	}
	return b.Put(delegateKey(blockHash), data)
}

// BatchPutEnroll stages an enrollment write onto an externally-owned batch.
func (s *Store) BatchPutEnroll(b storage.Batch, height uint64, dest types.Destination, pos blockfile.Pos) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("chainstore: marshal enroll pos: %w", err)
	}
	return b.Put(enrollKey(height, dest), data)
}

// BatchPutAddressInvite stages an address-invite write onto an
// externally-owned batch.
func (s *Store) BatchPutAddressInvite(b storage.Batch, fork types.ChainID, dest types.Destination, invite AddressInvite) error {
	data, err := json.Marshal(invite)
	if err != nil {
		return fmt.Errorf("chainstore: marshal address invite: %w", err)
	}
	return b.Put(inviteKey(fork, dest), data)
}

// DeleteAddressInvite removes dest's first-receipt graph edge within fork
// (used when RemoveBlock reverts the transaction that created it).
func (s *Store) DeleteAddressInvite(fork types.ChainID, dest types.Destination) error {
	return s.db.Delete(inviteKey(fork, dest))
}

// BatchDeleteAddressInvite stages an address-invite removal onto an
// externally-owned batch.
func (s *Store) BatchDeleteAddressInvite(b storage.Batch, fork types.ChainID, dest types.Destination) error {
	return b.Delete(inviteKey(fork, dest))
}

func destHex(d types.Destination) string {
	enc := d.Encode()
	return hex.EncodeToString(enc[:])
}

func destFromHex(s string) (types.Destination, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return types.Destination{}, fmt.Errorf("invalid destination hex: %w", err)
	}
	return types.DecodeDestination(b)
}
