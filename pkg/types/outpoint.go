package types

import "fmt"

// Outpoint references a specific output in a transaction. A transaction
// produces at most two outputs (spec.md §3/§4.7): index 0 is the payment
// to send_to, index 1 is the change returned to the spender.
type Outpoint struct {
	TxID  Hash  `json:"txid"`
	Index uint8 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}
