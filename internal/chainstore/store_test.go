package chainstore

import (
	"testing"

	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/internal/utxo"
	"github.com/kaelnet/chaincore/pkg/types"
)

func testFork(b byte) types.ChainID {
	var id types.ChainID
	id[0] = b
	return id
}

func TestStore_OutlinePutAndGet(t *testing.T) {
	s := New(storage.NewMemory())
	hash := types.Hash{0x01}

	o := BlockOutline{
		Version:   1,
		Type:      2,
		Timestamp: 1700000000,
		Height:    5,
		PrevHash:  types.Hash{0xaa},
		FilePos:   blockfile.Pos{FileNo: 0, Offset: 128},
		Trust:     "1024",
	}
	if err := s.PutOutline(hash, o); err != nil {
		t.Fatalf("PutOutline: %v", err)
	}

	got, ok, err := s.GetOutline(hash)
	if err != nil {
		t.Fatalf("GetOutline: %v", err)
	}
	if !ok {
		t.Fatal("GetOutline ok = false")
	}
	if got.Height != o.Height || got.PrevHash != o.PrevHash || got.FilePos != o.FilePos {
		t.Errorf("outline mismatch: got %+v, want %+v", got, o)
	}
}

func TestStore_OutlineMissing(t *testing.T) {
	s := New(storage.NewMemory())
	_, ok, err := s.GetOutline(types.Hash{0x99})
	if err != nil {
		t.Fatalf("GetOutline: %v", err)
	}
	if ok {
		t.Error("GetOutline should report ok=false for missing hash")
	}
}

func TestStore_TxIndex(t *testing.T) {
	s := New(storage.NewMemory())
	txid := types.Hash{0x02}
	loc := TxLocation{ForkHash: testFork(0x01), BlockHeight: 10, FilePos: blockfile.Pos{FileNo: 1, Offset: 256}}

	if err := s.PutTxLocation(txid, loc); err != nil {
		t.Fatalf("PutTxLocation: %v", err)
	}

	got, ok, err := s.GetTxLocation(txid)
	if err != nil {
		t.Fatalf("GetTxLocation: %v", err)
	}
	if !ok || got != loc {
		t.Errorf("GetTxLocation = %+v, %v, want %+v, true", got, ok, loc)
	}

	if err := s.DeleteTxLocation(txid); err != nil {
		t.Fatalf("DeleteTxLocation: %v", err)
	}
	_, ok, _ = s.GetTxLocation(txid)
	if ok {
		t.Error("tx location should be gone after delete")
	}
}

func TestStore_ForkTip(t *testing.T) {
	s := New(storage.NewMemory())
	fork := testFork(0x01)
	tip := types.Hash{0x03}

	if err := s.SetForkTip(fork, tip); err != nil {
		t.Fatalf("SetForkTip: %v", err)
	}

	got, ok, err := s.GetForkTip(fork)
	if err != nil {
		t.Fatalf("GetForkTip: %v", err)
	}
	if !ok || got != tip {
		t.Errorf("GetForkTip = %v, %v, want %v, true", got, ok, tip)
	}
}

func TestStore_ForkContext(t *testing.T) {
	s := New(storage.NewMemory())
	fork := testFork(0x01)
	ctx := ForkContext{ParentFork: testFork(0x00), JointHash: types.Hash{0x04}, JointHeight: 42, Profile: "sub"}

	if err := s.PutForkContext(fork, ctx); err != nil {
		t.Fatalf("PutForkContext: %v", err)
	}

	got, ok, err := s.GetForkContext(fork)
	if err != nil {
		t.Fatalf("GetForkContext: %v", err)
	}
	if !ok || got != ctx {
		t.Errorf("GetForkContext = %+v, %v, want %+v, true", got, ok, ctx)
	}
}

func TestStore_DelegateSnapshot(t *testing.T) {
	s := New(storage.NewMemory())
	blockHash := types.Hash{0x05}

	votes := map[types.Destination]int64{
		types.NewPubKeyDestination(types.Hash{0x01}): 1000,
		types.NewTemplateDestination(types.Hash{0x02}): 2000,
	}
	if err := s.PutDelegateSnapshot(blockHash, votes); err != nil {
		t.Fatalf("PutDelegateSnapshot: %v", err)
	}

	got, ok, err := s.GetDelegateSnapshot(blockHash)
	if err != nil {
		t.Fatalf("GetDelegateSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("GetDelegateSnapshot ok = false")
	}
	if len(got) != len(votes) {
		t.Fatalf("got %d entries, want %d", len(got), len(votes))
	}
	for dest, v := range votes {
		if got[dest] != v {
			t.Errorf("votes[%s] = %d, want %d", dest, got[dest], v)
		}
	}
}

func TestStore_Enroll(t *testing.T) {
	s := New(storage.NewMemory())
	dest := types.NewPubKeyDestination(types.Hash{0x06})
	pos := blockfile.Pos{FileNo: 2, Offset: 512}

	if err := s.PutEnroll(100, dest, pos); err != nil {
		t.Fatalf("PutEnroll: %v", err)
	}

	got, ok, err := s.GetEnroll(100, dest)
	if err != nil {
		t.Fatalf("GetEnroll: %v", err)
	}
	if !ok || got != pos {
		t.Errorf("GetEnroll = %+v, %v, want %+v, true", got, ok, pos)
	}

	// Different height should not see it.
	_, ok, _ = s.GetEnroll(101, dest)
	if ok {
		t.Error("enroll entry should be scoped to its anchor height")
	}
}

func TestStore_ForEachEnroll(t *testing.T) {
	s := New(storage.NewMemory())
	d1 := types.NewPubKeyDestination(types.Hash{0x01})
	d2 := types.NewPubKeyDestination(types.Hash{0x02})

	s.PutEnroll(200, d1, blockfile.Pos{FileNo: 0, Offset: 10})
	s.PutEnroll(200, d2, blockfile.Pos{FileNo: 0, Offset: 20})
	s.PutEnroll(201, d1, blockfile.Pos{FileNo: 0, Offset: 30}) // different height

	var count int
	err := s.ForEachEnroll(200, func(dest types.Destination, pos blockfile.Pos) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachEnroll: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestStore_AddressInvite(t *testing.T) {
	s := New(storage.NewMemory())
	fork := testFork(0x01)
	dest := types.NewPubKeyDestination(types.Hash{0x07})
	invite := AddressInvite{
		Inviter:    types.NewPubKeyDestination(types.Hash{0x08}),
		InviteTxID: types.Hash{0x09},
	}

	if err := s.PutAddressInvite(fork, dest, invite); err != nil {
		t.Fatalf("PutAddressInvite: %v", err)
	}

	got, ok, err := s.GetAddressInvite(fork, dest)
	if err != nil {
		t.Fatalf("GetAddressInvite: %v", err)
	}
	if !ok || got != invite {
		t.Errorf("GetAddressInvite = %+v, %v, want %+v, true", got, ok, invite)
	}

	// Different fork should not see it.
	_, ok, _ = s.GetAddressInvite(testFork(0x02), dest)
	if ok {
		t.Error("address invite should be scoped to its fork")
	}
}

func TestStore_Undo(t *testing.T) {
	s := New(storage.NewMemory())
	blockHash := types.Hash{0x0a}
	undo := UndoData{
		SpentOutputs: []SpentOutput{
			{
				Outpoint: types.Outpoint{TxID: types.Hash{0x0b}, Index: 1},
				Out:      utxo.TxOut{Dest: types.NewPubKeyDestination(types.Hash{0x0c}), Amount: 250, TxTime: 5, LockUntil: 0},
			},
		},
	}

	if err := s.PutUndo(blockHash, undo); err != nil {
		t.Fatalf("PutUndo: %v", err)
	}

	got, ok, err := s.GetUndo(blockHash)
	if err != nil {
		t.Fatalf("GetUndo: %v", err)
	}
	if !ok || len(got.SpentOutputs) != 1 || got.SpentOutputs[0] != undo.SpentOutputs[0] {
		t.Errorf("GetUndo = %+v, %v, want %+v, true", got, ok, undo)
	}

	if err := s.DeleteUndo(blockHash); err != nil {
		t.Fatalf("DeleteUndo: %v", err)
	}
	if _, ok, _ := s.GetUndo(blockHash); ok {
		t.Error("undo data should be gone after DeleteUndo")
	}
}

func TestStore_UndoBatch(t *testing.T) {
	db := storage.NewMemory()
	s := New(db)
	blockHash := types.Hash{0x0d}
	undo := UndoData{SpentOutputs: []SpentOutput{{Outpoint: types.Outpoint{TxID: types.Hash{0x0e}}, Out: utxo.TxOut{Amount: 1}}}}

	batcher := db.(storage.Batcher)
	b := batcher.NewBatch()
	if err := s.BatchPutUndo(b, blockHash, undo); err != nil {
		t.Fatalf("BatchPutUndo: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, ok, _ := s.GetUndo(blockHash); !ok {
		t.Fatal("undo data should be present after batch commit")
	}

	b2 := batcher.NewBatch()
	if err := s.BatchDeleteUndo(b2, blockHash); err != nil {
		t.Fatalf("BatchDeleteUndo: %v", err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, ok, _ := s.GetUndo(blockHash); ok {
		t.Error("undo data should be gone after batch delete commit")
	}
}
