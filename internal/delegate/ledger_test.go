package delegate

import (
	"encoding/binary"
	"testing"

	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/pkg/template"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

func delegateDest(b byte) (types.Destination, *template.DelegateMint) {
	tmpl := &template.DelegateMint{MintKey: []byte{b, b, b}, OwnerDest: types.NewPubKeyDestination(types.Hash{b + 1})}
	return tmpl.TemplateID().Destination(), tmpl
}

func voteDest(delegate, owner types.Destination) (types.Destination, *template.Vote) {
	tmpl := &template.Vote{DelegateDest: delegate, OwnerDest: owner}
	return tmpl.TemplateID().Destination(), tmpl
}

func sigFor(tmpl template.Template) []byte {
	return template.FrameSigPrefix(tmpl.Kind(), tmpl.Encode())
}

func TestTransitionBlock_MintToDelegate(t *testing.T) {
	dest, tmpl := delegateDest(0x01)
	d, enrolls, err := TransitionBlock(nil, 1000, dest, 5000, sigFor(tmpl), nil)
	if err != nil {
		t.Fatalf("TransitionBlock: %v", err)
	}
	if d[dest] != 5000 {
		t.Errorf("d[dest] = %d, want 5000", d[dest])
	}
	if len(enrolls) != 0 {
		t.Errorf("enrolls = %v, want none", enrolls)
	}
}

func TestTransitionBlock_MintToNonDelegateIgnored(t *testing.T) {
	pubkey := types.NewPubKeyDestination(types.Hash{0x02})
	d, _, err := TransitionBlock(nil, 1000, pubkey, 5000, nil, nil)
	if err != nil {
		t.Fatalf("TransitionBlock: %v", err)
	}
	if len(d) != 0 {
		t.Errorf("d = %v, want empty", d)
	}
}

func TestTransitionBlock_OrdinaryVoteRouting(t *testing.T) {
	owner := types.NewPubKeyDestination(types.Hash{0x10})
	delDest, delTmpl := delegateDest(0x20)
	voteD, voteTmpl := voteDest(delDest, owner)

	txn := &tx.Transaction{
		Type:   tx.Token,
		SendTo: voteD,
		Amount: 1000,
		Fee:    10,
		Sig:    sigFor(voteTmpl),
	}

	prev := Ledger{delDest: 2000}
	d, _, err := TransitionBlock(prev, 1000, types.Destination{}, 0, nil, []OrdinaryApplication{
		{Tx: txn, SpenderDest: owner},
	})
	if err != nil {
		t.Fatalf("TransitionBlock: %v", err)
	}
	if d[delDest] != 3000 {
		t.Errorf("d[delDest] = %d, want 3000", d[delDest])
	}
	_ = delTmpl
}

func TestTransitionBlock_OrdinaryDirectDelegateSpend(t *testing.T) {
	delDest, delTmpl := delegateDest(0x30)
	recipient := types.NewPubKeyDestination(types.Hash{0x31})

	txn := &tx.Transaction{
		Type:   tx.Token,
		SendTo: recipient,
		Amount: 500,
		Fee:    5,
		Sig:    sigFor(delTmpl),
	}

	prev := Ledger{delDest: 1000}
	d, _, err := TransitionBlock(prev, 100, types.Destination{}, 0, nil, []OrdinaryApplication{
		{Tx: txn, SpenderDest: delDest},
	})
	if err != nil {
		t.Fatalf("TransitionBlock: %v", err)
	}
	if d[delDest] != 495 {
		t.Errorf("d[delDest] = %d, want 495", d[delDest])
	}
}

func TestTransitionBlock_NegativeBalanceRejected(t *testing.T) {
	delDest, delTmpl := delegateDest(0x40)
	recipient := types.NewPubKeyDestination(types.Hash{0x41})

	txn := &tx.Transaction{
		Type:   tx.Token,
		SendTo: recipient,
		Amount: 500,
		Fee:    5,
		Sig:    sigFor(delTmpl),
	}

	prev := Ledger{delDest: 100}
	_, _, err := TransitionBlock(prev, 100, types.Destination{}, 0, nil, []OrdinaryApplication{
		{Tx: txn, SpenderDest: delDest},
	})
	if err == nil {
		t.Fatal("expected negative balance error")
	}
}

func TestTransitionBlock_ZeroBalanceDropped(t *testing.T) {
	delDest, delTmpl := delegateDest(0x50)
	recipient := types.NewPubKeyDestination(types.Hash{0x51})

	txn := &tx.Transaction{
		Type:   tx.Token,
		SendTo: recipient,
		Amount: 995,
		Fee:    5,
		Sig:    sigFor(delTmpl),
	}

	prev := Ledger{delDest: 1000}
	d, _, err := TransitionBlock(prev, 100, types.Destination{}, 0, nil, []OrdinaryApplication{
		{Tx: txn, SpenderDest: delDest},
	})
	if err != nil {
		t.Fatalf("TransitionBlock: %v", err)
	}
	if _, ok := d[delDest]; ok {
		t.Error("zero-balance delegate entry should be dropped")
	}
}

func TestTransitionBlock_CertEnrollment(t *testing.T) {
	delDest, delTmpl := delegateDest(0x60)

	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], 777)

	txn := &tx.Transaction{
		Type:   tx.Cert,
		SendTo: delDest, // spec places no constraint that send_to differ for CERT
		Amount: 0,
		Fee:    0,
		Data:   data[:],
		Sig:    sigFor(delTmpl),
	}
	pos := blockfile.Pos{FileNo: 1, Offset: 99}

	prev := Ledger{delDest: 2000}
	_, enrolls, err := TransitionBlock(prev, 1000, types.Destination{}, 0, nil, []OrdinaryApplication{
		{Tx: txn, SpenderDest: delDest, Pos: pos},
	})
	if err != nil {
		t.Fatalf("TransitionBlock: %v", err)
	}
	if len(enrolls) != 1 {
		t.Fatalf("enrolls = %v, want 1 entry", enrolls)
	}
	e := enrolls[0]
	if e.AnchorHeight != 777 || !e.DelegateDest.Equal(delDest) || e.TxID != txn.ID() || e.Pos != pos {
		t.Errorf("enroll entry = %+v", e)
	}
}

func TestTransitionBlock_CertBelowMinimumRejected(t *testing.T) {
	delDest, delTmpl := delegateDest(0x70)

	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], 1)

	txn := &tx.Transaction{
		Type: tx.Cert,
		SendTo: delDest,
		Data:   data[:],
		Sig:    sigFor(delTmpl),
	}

	prev := Ledger{delDest: 50}
	_, _, err := TransitionBlock(prev, 1000, types.Destination{}, 0, nil, []OrdinaryApplication{
		{Tx: txn, SpenderDest: delDest},
	})
	if err == nil {
		t.Fatal("expected cert-below-minimum error")
	}
}

func TestLedger_CloneIsIndependent(t *testing.T) {
	orig := Ledger{types.NewPubKeyDestination(types.Hash{0x01}): 100}
	clone := orig.Clone()
	clone[types.NewPubKeyDestination(types.Hash{0x02})] = 200
	if len(orig) != 1 {
		t.Error("cloning should not mutate the original ledger")
	}
}

func TestBuildBallot_SortsByVotesThenPosition(t *testing.T) {
	d1, _ := delegateDest(0x01)
	d2, _ := delegateDest(0x02)
	d3, _ := delegateDest(0x03)

	tip := Ledger{d1: 1000, d2: 1000, d3: 2000}
	enrolled := map[types.Destination]blockfile.Pos{
		d1: {FileNo: 0, Offset: 10},
		d2: {FileNo: 0, Offset: 20},
		d3: {FileNo: 0, Offset: 5},
	}

	ballot := BuildBallot(tip, 500, enrolled)
	if len(ballot) != 3 {
		t.Fatalf("ballot = %v, want 3 entries", ballot)
	}
	// d3 has the most votes, so it's first; d2 and d1 tie on votes but d2
	// has the later file position, so it ranks above d1.
	if !ballot[0].Equal(d3) || !ballot[1].Equal(d2) || !ballot[2].Equal(d1) {
		t.Errorf("ballot = %v, want [%v %v %v]", ballot, d3, d2, d1)
	}
}

func TestBuildBallot_ExcludesBelowMinimumAndUnfunded(t *testing.T) {
	d1, _ := delegateDest(0x01)
	d2, _ := delegateDest(0x02)

	tip := Ledger{d1: 100}
	enrolled := map[types.Destination]blockfile.Pos{
		d1: {FileNo: 0, Offset: 1},
		d2: {FileNo: 0, Offset: 2}, // enrolled but never voted for (no tip entry)
	}

	ballot := BuildBallot(tip, 500, enrolled)
	if len(ballot) != 0 {
		t.Errorf("ballot = %v, want empty (below minimum and unfunded excluded)", ballot)
	}
}

func TestBuildBallot_TruncatesToMax(t *testing.T) {
	enrolled := make(map[types.Destination]blockfile.Pos, MaxDelegates+5)
	tip := make(Ledger, MaxDelegates+5)
	for i := 0; i < MaxDelegates+5; i++ {
		dest, _ := delegateDest(byte(i))
		enrolled[dest] = blockfile.Pos{FileNo: 0, Offset: uint32(i)}
		tip[dest] = int64(1000 + i)
	}

	ballot := BuildBallot(tip, 500, enrolled)
	if len(ballot) != MaxDelegates {
		t.Errorf("len(ballot) = %d, want %d", len(ballot), MaxDelegates)
	}
}
