package blockfile

import (
	"testing"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

func testMintTx() *tx.Transaction {
	dest := types.NewPubKeyDestination(types.Hash{0x01})
	return &tx.Transaction{Version: 1, Type: tx.Work, Timestamp: 1700000000, SendTo: dest, Amount: 1000}
}

func testOrdinaryTx(t *testing.T, prevHash types.Hash) *tx.Transaction {
	t.Helper()
	key, _ := crypto.GenerateKey()
	dest := types.NewPubKeyDestination(crypto.PubKeyHash(key.PublicKey()))
	b := tx.NewBuilder(tx.Token, 1700000000).
		AddInput(prevHash, 0).
		SetSendTo(dest, 1000).
		SetFee(config.MinTxFee)
	if err := b.SignPubKey(key); err != nil {
		t.Fatal(err)
	}
	return b.Build()
}

func testBlock(t *testing.T) *block.Block {
	t.Helper()
	header := block.Header{Version: block.CurrentVersion, Type: block.Primary, Timestamp: 1700000000, PrevHash: types.Hash{0xaa}}
	return block.NewBlock(header, testMintTx(), nil)
}

func TestStore_WriteAndReadBlock(t *testing.T) {
	s, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	blk := testBlock(t)
	pos, err := s.WriteBlock(blk)
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got, err := s.ReadBlock(pos)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if got.Header.Timestamp != blk.Header.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Header.Timestamp, blk.Header.Timestamp)
	}
	if got.Header.PrevHash != blk.Header.PrevHash {
		t.Error("PrevHash mismatch")
	}
	if got.MintTx == nil || got.MintTx.Amount != blk.MintTx.Amount {
		t.Error("MintTx round-trip mismatch")
	}
}

func TestStore_WriteAndReadTx(t *testing.T) {
	s, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	txn := testOrdinaryTx(t, types.Hash{0x02})
	pos, err := s.WriteTx(txn)
	if err != nil {
		t.Fatalf("WriteTx: %v", err)
	}

	got, err := s.ReadTx(pos)
	if err != nil {
		t.Fatalf("ReadTx: %v", err)
	}
	if got.Amount != txn.Amount || got.Fee != txn.Fee {
		t.Error("tx round-trip mismatch")
	}
	if got.SendTo != txn.SendTo {
		t.Error("SendTo round-trip mismatch")
	}
}

func TestStore_BlockAndTxRecordsIndependentlyAddressable(t *testing.T) {
	s, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	blk := testBlock(t)
	blockPos, err := s.WriteBlock(blk)
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	txn := testOrdinaryTx(t, types.Hash{0x03})
	txPos, err := s.WriteTx(txn)
	if err != nil {
		t.Fatalf("WriteTx: %v", err)
	}

	if blockPos == txPos {
		t.Fatal("block and tx records should not share a position")
	}

	gotBlk, err := s.ReadBlock(blockPos)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	gotTx, err := s.ReadTx(txPos)
	if err != nil {
		t.Fatalf("ReadTx: %v", err)
	}
	if gotBlk.Header.Timestamp != blk.Header.Timestamp {
		t.Error("block read at its own position should still round-trip correctly")
	}
	if gotTx.Amount != txn.Amount {
		t.Error("tx read at its own position should still round-trip correctly")
	}
}
