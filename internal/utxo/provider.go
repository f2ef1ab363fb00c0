package utxo

import (
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// Provider adapts a fork-scoped view of Store to pkg/tx.UTXOProvider, the
// narrow interface context-dependent transaction validation depends on.
type Provider struct {
	store *Store
	fork  types.ChainID
}

// NewProvider returns a tx.UTXOProvider bound to one fork's unspent set.
func NewProvider(store *Store, fork types.ChainID) *Provider {
	return &Provider{store: store, fork: fork}
}

// GetUnspent implements pkg/tx.UTXOProvider.
func (p *Provider) GetUnspent(outpoint types.Outpoint) (tx.Unspent, bool) {
	out, ok, err := p.store.Get(p.fork, outpoint)
	if err != nil || !ok {
		return tx.Unspent{}, false
	}
	return tx.Unspent{Destination: out.Dest, Amount: out.Amount}, true
}
