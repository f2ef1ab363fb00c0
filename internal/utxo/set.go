// Package utxo maintains the per-fork unspent-output set (spec.md §3, §4.7,
// C5): outpoint -> TxOut, keyed so two forks never see each other's UTXOs.
package utxo

import "github.com/kaelnet/chaincore/pkg/types"

// TxOut is the stored form of an unspent output (spec.md §3): the
// destination it pays, its amount, the owning transaction's timestamp (fed
// into locked-coin floor computations that are a function of time as well
// as height), and the lock_until height below which it may not be spent.
type TxOut struct {
	Dest      types.Destination `json:"dest"`
	Amount    int64             `json:"amount"`
	TxTime    uint32            `json:"tx_time"`
	LockUntil uint32            `json:"lock_until"`
}

// Set is the interface for per-fork UTXO storage.
type Set interface {
	Get(fork types.ChainID, outpoint types.Outpoint) (*TxOut, bool, error)
	Put(fork types.ChainID, outpoint types.Outpoint, out *TxOut) error
	Delete(fork types.ChainID, outpoint types.Outpoint) error
	Has(fork types.ChainID, outpoint types.Outpoint) (bool, error)
}
