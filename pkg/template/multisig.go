package template

import (
	"encoding/binary"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// MultiSig is plain Bitcoin-style bare M-of-N multisig: every signer
// carries equal weight and Required signatures out of PubKeys authorize a
// spend (spec.md §9's resolved open question). Grounded on BigBang's
// CTemplateMultiSig.
type MultiSig struct {
	PubKeys  [][]byte
	Required uint32
}

func (m *MultiSig) Kind() types.TemplateKind { return types.TemplateMultiSig }

func (m *MultiSig) Encode() []byte {
	buf := make([]byte, 0, 8+len(m.PubKeys)*37)
	var n, r [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(m.PubKeys)))
	binary.LittleEndian.PutUint32(r[:], m.Required)
	buf = append(buf, n[:]...)
	buf = append(buf, r[:]...)
	for _, pk := range m.PubKeys {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(pk)))
		buf = append(buf, l[:]...)
		buf = append(buf, pk...)
	}
	return buf
}

func decodeMultiSig(b []byte) (*MultiSig, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("template: multisig params too short")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	required := binary.LittleEndian.Uint32(b[4:8])
	off := 8
	m := &MultiSig{Required: required}
	for i := uint32(0); i < n; i++ {
		if len(b) < off+4 {
			return nil, fmt.Errorf("template: multisig entry %d truncated", i)
		}
		l := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		if uint32(len(b)-off) < l {
			return nil, fmt.Errorf("template: multisig pubkey %d truncated", i)
		}
		m.PubKeys = append(m.PubKeys, append([]byte(nil), b[off:off+int(l)]...))
		off += int(l)
	}
	if required == 0 || required > uint32(len(m.PubKeys)) {
		return nil, fmt.Errorf("template: multisig requires 0 < required <= len(pubkeys)")
	}
	return m, nil
}

func (m *MultiSig) TemplateID() types.TemplateID { return idFor(m.Kind(), m.Encode()) }
func (m *MultiSig) IsSpendable() bool             { return true }
func (m *MultiSig) IsDestInRecorded() bool        { return false }

func (m *MultiSig) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, _ uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	sigs, err := decodePartialSigs(rest)
	if err != nil {
		return false, false, err
	}
	verified := crypto.MultiVerify(m.PubKeys, sigMsg[:], sigs)
	if uint32(len(verified)) >= m.Required {
		return true, false, nil
	}
	if len(verified) > 0 {
		return false, true, nil
	}
	return false, false, nil
}
