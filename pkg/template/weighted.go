package template

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Weighted is an M-threshold-of-weighted-N multisig: every pubkey carries a
// weight, and a spend authorizes once the summed weight of verified partial
// signatures reaches Threshold. Generalizes the plain MultiSig kind with
// per-signer influence, grounded on BigBang's CTemplateWeighted.
type Weighted struct {
	PubKeys   [][]byte
	Weights   []uint32
	Threshold uint32
}

func (w *Weighted) Kind() types.TemplateKind { return types.TemplateWeighted }

func (w *Weighted) Encode() []byte {
	buf := make([]byte, 0, 4+8+len(w.PubKeys)*37)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(w.PubKeys)))
	buf = append(buf, n[:]...)
	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], w.Threshold)
	buf = append(buf, t[:]...)
	for i, pk := range w.PubKeys {
		var wt [4]byte
		binary.LittleEndian.PutUint32(wt[:], w.Weights[i])
		buf = append(buf, wt[:]...)
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(pk)))
		buf = append(buf, l[:]...)
		buf = append(buf, pk...)
	}
	return buf
}

func decodeWeighted(b []byte) (*Weighted, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("template: weighted params too short")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	threshold := binary.LittleEndian.Uint32(b[4:8])
	off := 8
	w := &Weighted{Threshold: threshold}
	for i := uint32(0); i < n; i++ {
		if len(b) < off+8 {
			return nil, fmt.Errorf("template: weighted entry %d truncated", i)
		}
		weight := binary.LittleEndian.Uint32(b[off : off+4])
		plen := binary.LittleEndian.Uint32(b[off+4 : off+8])
		off += 8
		if uint32(len(b)-off) < plen {
			return nil, fmt.Errorf("template: weighted pubkey %d truncated", i)
		}
		pk := append([]byte(nil), b[off:off+int(plen)]...)
		off += int(plen)
		w.PubKeys = append(w.PubKeys, pk)
		w.Weights = append(w.Weights, weight)
	}
	if threshold == 0 || len(w.PubKeys) == 0 {
		return nil, fmt.Errorf("template: weighted requires threshold>0 and at least one key")
	}
	return w, nil
}

func (w *Weighted) TemplateID() types.TemplateID { return idFor(w.Kind(), w.Encode()) }
func (w *Weighted) IsSpendable() bool             { return true }
func (w *Weighted) IsDestInRecorded() bool        { return false }

// VerifyTxSignature expects rest to be a sequence of PartialSig entries
// (2-byte index, 4-byte length, sig bytes). Authorization completes once
// the summed weight of successfully-verified signers reaches Threshold.
func (w *Weighted) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, _ uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	sigs, err := decodePartialSigs(rest)
	if err != nil {
		return false, false, err
	}
	verified := crypto.MultiVerify(w.PubKeys, sigMsg[:], sigs)
	var weight uint32
	for _, pk := range verified {
		for i, candidate := range w.PubKeys {
			if string(candidate) == string(pk) {
				weight += w.Weights[i]
			}
		}
	}
	if weight >= w.Threshold {
		return true, false, nil
	}
	if len(verified) > 0 {
		return false, true, nil
	}
	return false, false, nil
}

func decodePartialSigs(b []byte) ([]crypto.PartialSig, error) {
	var out []crypto.PartialSig
	off := 0
	for off < len(b) {
		if len(b)-off < 6 {
			return nil, fmt.Errorf("template: partial sig list truncated")
		}
		idx := binary.LittleEndian.Uint16(b[off : off+2])
		l := binary.LittleEndian.Uint32(b[off+2 : off+6])
		off += 6
		if uint32(len(b)-off) < l {
			return nil, fmt.Errorf("template: partial sig entry truncated")
		}
		out = append(out, crypto.PartialSig{Index: idx, Sig: append([]byte(nil), b[off:off+int(l)]...)})
		off += int(l)
	}
	return out, nil
}

// EncodePartialSigs frames a set of partial signatures for the rest segment
// of a Weighted or MultiSig signature blob.
func EncodePartialSigs(sigs []crypto.PartialSig) []byte {
	buf := make([]byte, 0, len(sigs)*8)
	for _, s := range sigs {
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], s.Index)
		buf = append(buf, idx[:]...)
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(s.Sig)))
		buf = append(buf, l[:]...)
		buf = append(buf, s.Sig...)
	}
	return buf
}
