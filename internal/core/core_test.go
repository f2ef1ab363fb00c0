package core

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/internal/consensus"
	"github.com/kaelnet/chaincore/internal/storage"
	"github.com/kaelnet/chaincore/internal/validator"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// newCoreHarness wires a Core over an in-memory database and a temp-dir
// block file store, the same pairing internal/blockview's own tests use.
func newCoreHarness(t *testing.T) (*Core, storage.DB, *blockfile.Store) {
	t.Helper()
	db := storage.NewMemory()
	blockStore, err := blockfile.Open(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("blockfile.Open: %v", err)
	}
	c, err := New(db, blockStore)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, db, blockStore
}

// testnetOwnerKey returns the well-known testnet owner key config.Genesis's
// TestnetGenesis is rooted on, so BuildOriginBlock's signature verifies
// against the genesis preset without inventing a detached keypair.
func testnetOwnerKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	raw, err := hex.DecodeString(config.TestnetOwnerPrivKey)
	if err != nil {
		t.Fatalf("decode testnet owner key: %v", err)
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	return key
}

func mustAddGenesis(t *testing.T, c *Core, gen *config.Genesis, ownerKey *crypto.PrivateKey) (*block.Block, types.ChainID) {
	t.Helper()
	blk, err := BuildOriginBlock(gen, ownerKey, types.ChainID{}, types.Hash{})
	if err != nil {
		t.Fatalf("BuildOriginBlock: %v", err)
	}
	code, err := c.AddNewBlock(blk)
	if err != nil {
		t.Fatalf("AddNewBlock(origin): code=%v err=%v", code, err)
	}
	if code != validator.OK {
		t.Fatalf("AddNewBlock(origin) code = %v, want OK", code)
	}
	return blk, types.ChainID(blk.Hash(1))
}

// mineAndSubmit runs GetWork/Seal/SubmitWork end to end for fork, returning
// the newly accepted block.
func mineAndSubmit(t *testing.T, c *Core, fork types.ChainID, minerKey *crypto.PrivateKey) *block.Block {
	t.Helper()
	mintDest := types.NewPubKeyDestination(crypto.PubKeyHash(minerKey.PublicKey()))
	tmpl, err := c.GetWork(fork, mintDest)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	bits, _, err := c.GetProofOfWorkTarget(fork)
	if err != nil {
		t.Fatalf("GetProofOfWorkTarget: %v", err)
	}
	if err := consensus.Seal(context.Background(), &tmpl.Header, bits, mintDest); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	code, err := c.SubmitWork(tmpl, minerKey)
	if err != nil {
		t.Fatalf("SubmitWork: code=%v err=%v", code, err)
	}
	if code != validator.OK {
		t.Fatalf("SubmitWork code = %v, want OK", code)
	}
	return tmpl
}

func TestAddNewBlock_GenesisRoundTrip(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)

	blk, fork := mustAddGenesis(t, c, gen, ownerKey)

	got, err := c.GetBlock(blk.Hash(1))
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Header.Type != block.Origin {
		t.Errorf("GetBlock type = %v, want origin", got.Header.Type)
	}

	gotFork, ctx, err := c.RetrieveFork(blk.Hash(1))
	if err != nil {
		t.Fatalf("RetrieveFork: %v", err)
	}
	if gotFork != fork {
		t.Errorf("RetrieveFork fork = %s, want %s", gotFork, fork)
	}
	if !ctx.ParentFork.IsZero() {
		t.Errorf("ParentFork = %s, want zero for a root fork", ctx.ParentFork)
	}

	forks, err := c.ListForks()
	if err != nil {
		t.Fatalf("ListForks: %v", err)
	}
	if tip, ok := forks[fork]; !ok || tip != blk.Hash(1) {
		t.Errorf("ListForks[%s] = %s, ok=%v, want %s", fork, tip, ok, blk.Hash(1))
	}

	ok, err := c.VerifyRefBlock(blk.Hash(1), types.Hash(fork))
	if err != nil {
		t.Fatalf("VerifyRefBlock: %v", err)
	}
	if !ok {
		t.Error("VerifyRefBlock = false, want true for a block against its own fork's genesis")
	}
}

func TestAddNewBlock_ChainedPrimaryExtendsTip(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	_, fork := mustAddGenesis(t, c, gen, ownerKey)

	blk1 := mineAndSubmit(t, c, fork, ownerKey)
	blk2 := mineAndSubmit(t, c, fork, ownerKey)

	forks, err := c.ListForks()
	if err != nil {
		t.Fatalf("ListForks: %v", err)
	}
	wantTip := blk2.Hash(3)
	if tip := forks[fork]; tip != wantTip {
		t.Errorf("fork tip = %s, want %s", tip, wantTip)
	}
	if blk1.Header.PrevHash.IsZero() {
		t.Error("first mined block unexpectedly has a zero prev hash")
	}
}

func TestAddNewBlock_RejectsAlreadyHave(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	blk, _ := mustAddGenesis(t, c, gen, ownerKey)

	code, err := c.AddNewBlock(blk)
	if err == nil {
		t.Fatal("expected rejection resubmitting the same origin block")
	}
	if code != validator.ErrAlreadyHave {
		t.Errorf("code = %v, want ErrAlreadyHave", code)
	}
}

func TestAddNewBlock_RejectsUnknownParent(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	ownerKey := testnetOwnerKey(t)
	mintDest := types.NewPubKeyDestination(crypto.PubKeyHash(ownerKey.PublicKey()))

	mint := tx.NewBuilder(tx.Work, 2000).SetSendTo(mintDest, 1500).Build()
	header := block.Header{Version: 1, Type: block.Primary, Timestamp: 2000, PrevHash: types.Hash{0xAB}}
	blk := block.NewBlock(header, mint, nil)
	if err := consensus.Seal(context.Background(), &blk.Header, 0, mintDest); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sig, err := framePubKeySig(ownerKey, blk.HeaderHash())
	if err != nil {
		t.Fatalf("framePubKeySig: %v", err)
	}
	blk.Sig = sig

	code, err := c.AddNewBlock(blk)
	if err == nil {
		t.Fatal("expected rejection for a block whose parent was never submitted")
	}
	if code != validator.ErrMissingPrev {
		t.Errorf("code = %v, want ErrMissingPrev", code)
	}
}

func TestAddNewTx_AcceptsSpendOfCommittedMintOutput(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	blk, fork := mustAddGenesis(t, c, gen, ownerKey)

	recv := types.NewPubKeyDestination(types.Hash{0x42})
	spendOp := types.Outpoint{TxID: blk.MintTx.ID(), Index: 0}
	builder := tx.NewBuilder(tx.Token, blk.Header.Timestamp+1).
		AddInput(spendOp.TxID, spendOp.Index).
		SetSendTo(recv, gen.InitialSupply-config.MinTxFee).
		SetFee(config.MinTxFee)
	t2 := builder.Build()
	if err := builder.SignPubKey(ownerKey); err != nil {
		t.Fatalf("SignPubKey: %v", err)
	}

	code, err := c.AddNewTx(t2, fork)
	if err != nil {
		t.Fatalf("AddNewTx: code=%v err=%v", code, err)
	}
	if code != validator.OK {
		t.Fatalf("AddNewTx code = %v, want OK", code)
	}
}

func TestAddNewTx_RejectsMissingInput(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	_, fork := mustAddGenesis(t, c, gen, ownerKey)

	recv := types.NewPubKeyDestination(types.Hash{0x42})
	builder := tx.NewBuilder(tx.Token, 5000).
		AddInput(types.Hash{0x99}, 0).
		SetSendTo(recv, 1000).
		SetFee(config.MinTxFee)
	t2 := builder.Build()
	if err := builder.SignPubKey(ownerKey); err != nil {
		t.Fatalf("SignPubKey: %v", err)
	}

	code, err := c.AddNewTx(t2, fork)
	if err == nil {
		t.Fatal("expected rejection spending a never-recorded outpoint")
	}
	if code != validator.ErrMissingPrev {
		t.Errorf("code = %v, want ErrMissingPrev", code)
	}
}

func TestCheckConsistency_AllLevelsPassAfterMining(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	_, fork := mustAddGenesis(t, c, gen, ownerKey)

	mineAndSubmit(t, c, fork, ownerKey)
	mineAndSubmit(t, c, fork, ownerKey)
	mineAndSubmit(t, c, fork, ownerKey)

	for level := 0; level <= 2; level++ {
		if err := c.CheckConsistency(fork, level, 3); err != nil {
			t.Errorf("CheckConsistency(level=%d): %v", level, err)
		}
	}
}

func TestOpen_RecoversStateAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()
	c, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	_, fork := mustAddGenesis(t, c, gen, ownerKey)
	blk1 := mineAndSubmit(t, c, fork, ownerKey)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open (restart): %v", err)
	}
	defer reopened.Close()

	forks, err := reopened.ListForks()
	if err != nil {
		t.Fatalf("ListForks after restart: %v", err)
	}
	wantTip := blk1.Hash(2)
	if tip, ok := forks[fork]; !ok || tip != wantTip {
		t.Errorf("recovered tip = %s, ok=%v, want %s", tip, ok, wantTip)
	}

	got, err := reopened.GetBlock(wantTip)
	if err != nil {
		t.Fatalf("GetBlock after restart: %v", err)
	}
	if got.Header.Type != block.Primary {
		t.Errorf("recovered block type = %v, want primary", got.Header.Type)
	}
}

func TestGetUnspent_ListsOwnerMintOutput(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	blk, fork := mustAddGenesis(t, c, gen, ownerKey)

	ownerHash, err := gen.OwnerDestinationHash()
	if err != nil {
		t.Fatalf("OwnerDestinationHash: %v", err)
	}
	ownerDest := types.NewPubKeyDestination(ownerHash)

	outs, err := c.GetUnspent(fork, ownerDest, 0)
	if err != nil {
		t.Fatalf("GetUnspent: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("GetUnspent returned %d outputs, want 1", len(outs))
	}
	if outs[0].Outpoint.TxID != blk.MintTx.ID() || outs[0].Amount != int64(gen.InitialSupply) {
		t.Errorf("GetUnspent entry = %+v, want txid %s amount %d", outs[0], blk.MintTx.ID(), gen.InitialSupply)
	}
}

func TestGetWork_ExtendsTipAtOriginBitsUntilRetargetWindowFills(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	_, fork := mustAddGenesis(t, c, gen, ownerKey)

	bits, target, err := c.GetProofOfWorkTarget(fork)
	if err != nil {
		t.Fatalf("GetProofOfWorkTarget: %v", err)
	}
	if bits != gen.InitialBits {
		t.Errorf("bits = %d, want %d (the fork's seeded origin bits) before a full retarget window exists", bits, gen.InitialBits)
	}
	if target.Cmp(consensus.Target(gen.InitialBits)) != 0 {
		t.Errorf("target does not match Target(%d)", gen.InitialBits)
	}

	now := uint32(time.Now().Unix())
	mintDest := types.NewPubKeyDestination(crypto.PubKeyHash(ownerKey.PublicKey()))
	tmpl, err := c.GetWork(fork, mintDest)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if tmpl.Header.Type != block.Primary {
		t.Errorf("template type = %v, want primary", tmpl.Header.Type)
	}
	if tmpl.Header.Timestamp < now-5 {
		t.Errorf("template timestamp = %d looks stale relative to now = %d", tmpl.Header.Timestamp, now)
	}
}

// mineWithVTX builds on GetWork's template (for its timestamp/prev_hash/
// retargeted bits) but splices in vtx before sealing and signing, so a test
// can submit a PRIMARY block carrying ordinary transactions without going
// through the no-VTX GetWork/SubmitWork pair.
func mineWithVTX(t *testing.T, c *Core, fork types.ChainID, minerKey *crypto.PrivateKey, vtx []*tx.Transaction) (*block.Block, validator.Code, error) {
	t.Helper()
	mintDest := types.NewPubKeyDestination(crypto.PubKeyHash(minerKey.PublicKey()))
	tmpl, err := c.GetWork(fork, mintDest)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	bits, _, err := c.GetProofOfWorkTarget(fork)
	if err != nil {
		t.Fatalf("GetProofOfWorkTarget: %v", err)
	}
	blk := block.NewBlock(tmpl.Header, tmpl.MintTx, vtx)
	if err := consensus.Seal(context.Background(), &blk.Header, bits, mintDest); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sig, err := framePubKeySig(minerKey, blk.HeaderHash())
	if err != nil {
		t.Fatalf("framePubKeySig: %v", err)
	}
	blk.Sig = sig
	code, err := c.AddNewBlock(blk)
	return blk, code, err
}

func TestAddNewBlock_RejectsDoubleSpendAgainstOwnAncestry(t *testing.T) {
	c, _, _ := newCoreHarness(t)
	gen := config.TestnetGenesis()
	ownerKey := testnetOwnerKey(t)
	blk0, fork := mustAddGenesis(t, c, gen, ownerKey)

	spendOp := types.Outpoint{TxID: blk0.MintTx.ID(), Index: 0}
	destA := types.NewPubKeyDestination(types.Hash{0xA1})
	destB := types.NewPubKeyDestination(types.Hash{0xB2})

	spendTx := func(ts uint32, recv types.Destination) *tx.Transaction {
		b := tx.NewBuilder(tx.Token, ts).
			AddInput(spendOp.TxID, spendOp.Index).
			SetSendTo(recv, gen.InitialSupply-config.MinTxFee).
			SetFee(config.MinTxFee)
		t2 := b.Build()
		if err := b.SignPubKey(ownerKey); err != nil {
			t.Fatalf("SignPubKey: %v", err)
		}
		return t2
	}

	blk1, code, err := mineWithVTX(t, c, fork, ownerKey, []*tx.Transaction{spendTx(blk0.Header.Timestamp+1, destA)})
	if err != nil {
		t.Fatalf("first spend of the genesis mint output should be accepted: code=%v err=%v", code, err)
	}
	if code != validator.OK {
		t.Fatalf("code = %v, want OK", code)
	}

	blk2, code, err := mineWithVTX(t, c, fork, ownerKey, []*tx.Transaction{spendTx(blk1.Header.Timestamp+1, destB)})
	if err == nil {
		t.Fatal("expected rejection spending the same genesis mint output a second time")
	}
	if code != validator.ErrBlockTxInvalid {
		t.Errorf("code = %v, want ErrBlockTxInvalid (not ErrFatal — the double-spend is a block-acceptance rejection, not an internal failure)", code)
	}

	if _, err := c.GetBlock(blk2.Hash(3)); err == nil {
		t.Error("rejected block must not be indexed: GetBlock found it anyway")
	}
}
