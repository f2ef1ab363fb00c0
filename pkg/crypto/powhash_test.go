package crypto

import (
	"testing"
)

func TestPoWHash_Deterministic(t *testing.T) {
	data := []byte("header bytes without signature")
	a := PoWHash(data)
	b := PoWHash(data)
	if a != b {
		t.Errorf("PoWHash is not deterministic: %x != %x", a, b)
	}
}

func TestPoWHash_DiffersFromHash(t *testing.T) {
	data := []byte("header bytes")
	if PoWHash(data) == Hash(data) {
		t.Error("PoWHash must not collide trivially with Hash")
	}
}

func TestPoWHash_DifferentInputs(t *testing.T) {
	if PoWHash([]byte("a")) == PoWHash([]byte("b")) {
		t.Error("different inputs produced the same PoWHash")
	}
}

func TestPubKeyHash_MatchesHash(t *testing.T) {
	pub := []byte{0x02, 0x01, 0x02, 0x03}
	if PubKeyHash(pub) != Hash(pub) {
		t.Error("PubKeyHash should equal Hash(pubkey)")
	}
}

func TestWithUpper32_RoundTrip(t *testing.T) {
	h := Hash([]byte("payload"))
	out := WithUpper32(h, 0xDEADBEEF)
	if got := Upper32(out); got != 0xDEADBEEF {
		t.Errorf("Upper32 = %x, want deadbeef", got)
	}
	// lower 224 bits unaffected
	if Lower224(out) != Lower224(h) {
		t.Error("WithUpper32 must not disturb the lower 224 bits")
	}
}

func TestLower224_Length(t *testing.T) {
	h := Hash([]byte("x"))
	lo := Lower224(h)
	var want [28]byte
	copy(want[:], h[4:])
	if lo != want {
		t.Error("Lower224 mismatch")
	}
}

func TestPublicKeyFromHex(t *testing.T) {
	pk, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	hexStr := hexEncode(pk.PublicKey())
	got, err := PublicKeyFromHex(hexStr)
	if err != nil {
		t.Fatalf("PublicKeyFromHex: %v", err)
	}
	if string(got) != string(pk.PublicKey()) {
		t.Error("round-tripped pubkey mismatch")
	}
}

func TestPublicKeyFromHex_Invalid(t *testing.T) {
	if _, err := PublicKeyFromHex("not-hex"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := PublicKeyFromHex("00"); err == nil {
		t.Error("expected error for invalid pubkey bytes")
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0xf]
	}
	return string(out)
}

func TestMultiSignVerify(t *testing.T) {
	msg := Hash([]byte("multisig message"))[:]
	var pubkeySet [][]byte
	var keys []*PrivateKey
	for i := 0; i < 3; i++ {
		k, err := GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		keys = append(keys, k)
		pubkeySet = append(pubkeySet, k.PublicKey())
	}

	var sigs []PartialSig
	for i, k := range keys[:2] {
		ps, err := MultiSign(k, uint16(i), msg)
		if err != nil {
			t.Fatalf("MultiSign: %v", err)
		}
		sigs = append(sigs, ps)
	}

	recovered := MultiVerify(pubkeySet, msg, sigs)
	if len(recovered) != 2 {
		t.Fatalf("expected 2 recovered pubkeys, got %d", len(recovered))
	}
}

func TestMultiVerify_RejectsBadSig(t *testing.T) {
	msg := Hash([]byte("msg"))[:]
	k1, _ := GenerateKey()
	k2, _ := GenerateKey()
	pubkeySet := [][]byte{k1.PublicKey(), k2.PublicKey()}

	badSig, _ := k2.Sign(Hash([]byte("other message"))[:])
	sigs := []PartialSig{{Index: 0, Sig: badSig}}

	recovered := MultiVerify(pubkeySet, msg, sigs)
	if len(recovered) != 0 {
		t.Error("expected no recovered pubkeys for mismatched signature")
	}
}

func TestMultiVerify_OutOfRangeIndex(t *testing.T) {
	msg := Hash([]byte("msg"))[:]
	k1, _ := GenerateKey()
	pubkeySet := [][]byte{k1.PublicKey()}
	sig, _ := k1.Sign(msg)
	sigs := []PartialSig{{Index: 5, Sig: sig}}

	recovered := MultiVerify(pubkeySet, msg, sigs)
	if len(recovered) != 0 {
		t.Error("expected out-of-range index to be skipped, not panic")
	}
}
