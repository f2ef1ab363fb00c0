package template

import (
	"fmt"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// ProofOfWorkMint is the mint destination a miner's block names: the block
// reward settles to MintKey's pubkey hash once VerifyBlockSignature
// authenticates the header. Grounded on BigBang's CTemplateProof.
type ProofOfWorkMint struct {
	MintKey []byte
}

func (p *ProofOfWorkMint) Kind() types.TemplateKind { return types.TemplateProofOfWork }

func (p *ProofOfWorkMint) Encode() []byte {
	return append([]byte(nil), p.MintKey...)
}

func decodeProofOfWorkMint(b []byte) (*ProofOfWorkMint, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("template: proof-of-work-mint requires a mint key")
	}
	return &ProofOfWorkMint{MintKey: append([]byte(nil), b...)}, nil
}

func (p *ProofOfWorkMint) TemplateID() types.TemplateID { return idFor(p.Kind(), p.Encode()) }
func (p *ProofOfWorkMint) IsSpendable() bool             { return true }
func (p *ProofOfWorkMint) IsDestInRecorded() bool        { return false }

func (p *ProofOfWorkMint) VerifyTxSignature(sigMsg types.Hash, sendTo types.Destination, sig []byte, _ uint64) (bool, bool, error) {
	_, _, rest, err := ParseSigPrefix(sig)
	if err != nil {
		return false, false, err
	}
	return crypto.VerifySignature(sigMsg[:], rest, p.MintKey), false, nil
}

// VerifyBlockSignature authenticates a PoW block header's signature
// against the mint key.
func (p *ProofOfWorkMint) VerifyBlockSignature(hash types.Hash, sig []byte) bool {
	return crypto.VerifySignature(hash[:], sig, p.MintKey)
}
