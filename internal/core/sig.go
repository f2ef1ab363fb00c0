package core

import "github.com/kaelnet/chaincore/pkg/crypto"

// framePubKeySig renders a bare-PubKey spend signature in the
// [4-byte pubkey length][pubkey][schnorr signature] framing
// pkg/tx.verifyPubKeySpend expects, applied here to block-level mint
// signatures since they authenticate against the same kind of destination
// under the same rule (internal/validator uses the identical framing in
// its own tests).
func framePubKeySig(key *crypto.PrivateKey, msg [32]byte) ([]byte, error) {
	sig, err := key.Sign(msg[:])
	if err != nil {
		return nil, err
	}
	pub := key.PublicKey()
	out := make([]byte, 0, 4+len(pub)+len(sig))
	out = append(out, byte(len(pub)), byte(len(pub)>>8), byte(len(pub)>>16), byte(len(pub)>>24))
	out = append(out, pub...)
	out = append(out, sig...)
	return out, nil
}
