package template

import (
	"testing"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pk
}

func TestMultiSig_EncodeDecodeRoundTrip(t *testing.T) {
	a, b := mustKey(t), mustKey(t)
	ms := &MultiSig{PubKeys: [][]byte{a.PublicKey(), b.PublicKey()}, Required: 2}
	params := ms.Encode()
	decoded, err := decodeMultiSig(params)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Required != ms.Required || len(decoded.PubKeys) != 2 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if ms.TemplateID().Hash != decoded.TemplateID().Hash {
		t.Error("template id should survive round trip")
	}
}

func TestMultiSig_VerifyTxSignature(t *testing.T) {
	a, b := mustKey(t), mustKey(t)
	ms := &MultiSig{PubKeys: [][]byte{a.PublicKey(), b.PublicKey()}, Required: 2}
	msg := crypto.Hash([]byte("spend"))

	sa, err := crypto.MultiSign(a, 0, msg[:])
	if err != nil {
		t.Fatal(err)
	}
	sb, err := crypto.MultiSign(b, 1, msg[:])
	if err != nil {
		t.Fatal(err)
	}

	sigBlob := FrameSigPrefix(ms.Kind(), ms.Encode())
	sigBlob = append(sigBlob, EncodePartialSigs([]crypto.PartialSig{sa, sb})...)

	complete, partial, err := ms.VerifyTxSignature(msg, ms.TemplateID().Destination(), sigBlob, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !complete || partial {
		t.Fatalf("expected complete authorization, got complete=%v partial=%v", complete, partial)
	}

	oneSigBlob := FrameSigPrefix(ms.Kind(), ms.Encode())
	oneSigBlob = append(oneSigBlob, EncodePartialSigs([]crypto.PartialSig{sa})...)
	complete, partial, err = ms.VerifyTxSignature(msg, ms.TemplateID().Destination(), oneSigBlob, 0)
	if err != nil {
		t.Fatalf("verify single: %v", err)
	}
	if complete || !partial {
		t.Fatalf("expected partial authorization with one signer, got complete=%v partial=%v", complete, partial)
	}
}

func TestForkRedemption_LockedCoinFloor(t *testing.T) {
	fr := &ForkRedemption{}
	floorAt0 := fr.LockedCoinFloor(0)
	floorAtOneCycle := fr.LockedCoinFloor(525_600)
	if floorAt0 <= floorAtOneCycle {
		t.Fatalf("floor should decay over time: at0=%d at1cycle=%d", floorAt0, floorAtOneCycle)
	}
	if floorAtOneCycle != floorAt0/2 {
		t.Fatalf("floor should halve every decay cycle: at0=%d at1cycle=%d", floorAt0, floorAtOneCycle)
	}
}

func TestProofOfWorkMint_VerifyBlockSignature(t *testing.T) {
	pk := mustKey(t)
	mint := &ProofOfWorkMint{MintKey: pk.PublicKey()}
	hash := crypto.Hash([]byte("block header"))
	sig, err := pk.Sign(hash[:])
	if err != nil {
		t.Fatal(err)
	}
	if !mint.VerifyBlockSignature(hash, sig) {
		t.Fatal("expected block signature to verify")
	}
	wrongHash := crypto.Hash([]byte("other header"))
	if mint.VerifyBlockSignature(wrongHash, sig) {
		t.Fatal("signature over a different hash should not verify")
	}
}

func TestFromSignature_TemplateIDMismatch(t *testing.T) {
	pk := mustKey(t)
	mint := &ProofOfWorkMint{MintKey: pk.PublicKey()}
	dest := types.NewTemplateDestination(types.Hash{0xff})
	sigBlob := FrameSigPrefix(mint.Kind(), mint.Encode())
	if _, _, err := FromSignature(dest, sigBlob); err == nil {
		t.Fatal("expected template_id mismatch error")
	}
}

func TestVote_RecordedDestination(t *testing.T) {
	delegate := types.NewTemplateDestination(types.Hash{0x01})
	owner := types.NewPubKeyDestination(types.Hash{0x02})
	v := &Vote{DelegateDest: delegate, OwnerDest: owner}
	if !v.IsDestInRecorded() {
		t.Fatal("vote should be dest-in recorded")
	}
	if v.RecordedDestination() != owner {
		t.Fatal("recorded destination should be the owner")
	}
	decoded, err := decodeVote(v.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.DelegateDest != delegate || decoded.OwnerDest != owner {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestPayment_RejectsDisagreeingHeight(t *testing.T) {
	sender := types.NewPubKeyDestination(types.Hash{0x01})
	receiver := types.NewPubKeyDestination(types.Hash{0x02})
	p := &Payment{SenderDest: sender, ReceiverDest: receiver, ExecHeight: 100, EndHeight: 200}

	sigBlob := FrameSigPrefix(p.Kind(), p.Encode())
	var heightHeader [8]byte
	heightHeader[0] = 50
	sigBlob = append(sigBlob, heightHeader[:]...)

	_, _, err := p.VerifyTxSignature(types.Hash{}, p.TemplateID().Destination(), sigBlob, 999)
	if err == nil {
		t.Fatal("expected error when embedded height disagrees with connecting height")
	}
}
