package utxo

import (
	"testing"

	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/pkg/types"
)

func TestCommitment_Empty(t *testing.T) {
	store := NewStore(storage.NewMemory())
	fork := testFork(0x01)

	root, err := Commitment(store, fork)
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if !root.IsZero() {
		t.Error("empty fork commitment should be zero hash")
	}
}

func TestCommitment_SingleOutput(t *testing.T) {
	store := NewStore(storage.NewMemory())
	fork := testFork(0x01)

	store.Put(fork, types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, &TxOut{
		Dest:   types.NewPubKeyDestination(types.Hash{0xaa}),
		Amount: 1000,
	})

	root, err := Commitment(store, fork)
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if root.IsZero() {
		t.Error("single-output commitment should not be zero")
	}
}

func TestCommitment_Deterministic(t *testing.T) {
	fork := testFork(0x01)
	makeStore := func() *Store {
		s := NewStore(storage.NewMemory())
		s.Put(fork, types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, &TxOut{
			Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 1000,
		})
		s.Put(fork, types.Outpoint{TxID: types.Hash{0x02}, Index: 1}, &TxOut{
			Dest: types.NewPubKeyDestination(types.Hash{0xbb}), Amount: 2000,
		})
		return s
	}

	root1, _ := Commitment(makeStore(), fork)
	root2, _ := Commitment(makeStore(), fork)
	if root1 != root2 {
		t.Error("commitment should be deterministic")
	}
}

func TestCommitment_ChangesOnModification(t *testing.T) {
	store := NewStore(storage.NewMemory())
	fork := testFork(0x01)

	store.Put(fork, types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, &TxOut{
		Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 1000,
	})

	root1, _ := Commitment(store, fork)

	store.Put(fork, types.Outpoint{TxID: types.Hash{0x02}, Index: 0}, &TxOut{
		Dest: types.NewPubKeyDestination(types.Hash{0xbb}), Amount: 2000,
	})

	root2, _ := Commitment(store, fork)

	if root1 == root2 {
		t.Error("commitment should change after adding an output")
	}
}

func TestCommitment_ChangesOnDelete(t *testing.T) {
	store := NewStore(storage.NewMemory())
	fork := testFork(0x01)

	op1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	op2 := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}

	store.Put(fork, op1, &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 1000})
	store.Put(fork, op2, &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xbb}), Amount: 2000})

	root1, _ := Commitment(store, fork)

	store.Delete(fork, op2)

	root2, _ := Commitment(store, fork)

	if root1 == root2 {
		t.Error("commitment should change after deleting an output")
	}
}

func TestCommitment_OrderIndependent(t *testing.T) {
	fork := testFork(0x01)
	op1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	op2 := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}
	out1 := &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 1000}
	out2 := &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xbb}), Amount: 2000}

	s1 := NewStore(storage.NewMemory())
	s1.Put(fork, op1, out1)
	s1.Put(fork, op2, out2)
	root1, _ := Commitment(s1, fork)

	s2 := NewStore(storage.NewMemory())
	s2.Put(fork, op2, out2)
	s2.Put(fork, op1, out1)
	root2, _ := Commitment(s2, fork)

	if root1 != root2 {
		t.Error("commitment should be independent of insertion order")
	}
}

func TestCommitment_ForksAreIndependent(t *testing.T) {
	store := NewStore(storage.NewMemory())
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	out := &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 1000}

	store.Put(testFork(0x01), op, out)

	rootA, _ := Commitment(store, testFork(0x01))
	rootB, _ := Commitment(store, testFork(0x02))

	if rootA.IsZero() {
		t.Error("fork A should have a non-zero commitment")
	}
	if !rootB.IsZero() {
		t.Error("fork B should be untouched and have a zero commitment")
	}
}

func TestHashTxOut_Deterministic(t *testing.T) {
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	out := &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 1000}

	h1 := hashTxOut(op, out)
	h2 := hashTxOut(op, out)
	if h1 != h2 {
		t.Error("hashTxOut should be deterministic")
	}
	if h1.IsZero() {
		t.Error("hashTxOut should not be zero")
	}
}

func TestHashTxOut_DifferentAmounts(t *testing.T) {
	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	out1 := &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 1000}
	out2 := &TxOut{Dest: types.NewPubKeyDestination(types.Hash{0xaa}), Amount: 2000}

	if hashTxOut(op, out1) == hashTxOut(op, out2) {
		t.Error("different amounts should produce different hashes")
	}
}
