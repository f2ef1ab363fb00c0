package blockfile

import (
	"encoding/json"
	"fmt"

	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/tx"
)

// WriteBlock appends a full block (header, mint tx, ordinary txs, and
// signature) as one record and returns its position.
func (s *Store) WriteBlock(blk *block.Block) (Pos, error) {
	data, err := json.Marshal(blk)
	if err != nil {
		return Pos{}, fmt.Errorf("blockfile: marshal block: %w", err)
	}
	return s.Append(data)
}

// ReadBlock reads back a full block previously written with WriteBlock.
func (s *Store) ReadBlock(pos Pos) (*block.Block, error) {
	data, err := s.ReadAt(pos)
	if err != nil {
		return nil, err
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("blockfile: unmarshal block at %+v: %w", pos, err)
	}
	return &blk, nil
}

// WriteTx appends a single transaction as its own record, independent of
// any block record, so the tx index can address one tx without re-reading
// and re-parsing the whole block that contains it.
func (s *Store) WriteTx(t *tx.Transaction) (Pos, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return Pos{}, fmt.Errorf("blockfile: marshal tx: %w", err)
	}
	return s.Append(data)
}

// ReadTx reads back a single transaction previously written with WriteTx.
func (s *Store) ReadTx(pos Pos) (*tx.Transaction, error) {
	data, err := s.ReadAt(pos)
	if err != nil {
		return nil, err
	}
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("blockfile: unmarshal tx at %+v: %w", pos, err)
	}
	return &t, nil
}
