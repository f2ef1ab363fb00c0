// Package delegate implements the delegate vote/enrollment tally (spec.md
// §4.9, C9): the per-tip balance table delegate templates accumulate
// through mint rewards and routed votes, CERT enrollment recording, and
// enrollment-ballot construction. Grounded on
// original_source/src/common/template/{delegate,vote}.cpp for the routing
// semantics and original_source/src/storage/blockbase.cpp's
// VerifyDelegateVote/RetrieveAvailDelegate for the transition and ballot
// rules; carried in Go as a pure function over already-resolved
// destinations rather than the original's in-place CBlockIndex walk.
package delegate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/kaelnet/chaincore/internal/blockfile"
	"github.com/kaelnet/chaincore/pkg/template"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// MaxDelegates is the enrollment ballot size (spec.md §4.9).
const MaxDelegates = 23

// Ledger is the per-tip delegate vote tally: D[dest] is a delegate
// template's accumulated balance (spec.md §3's DelegateBalance).
type Ledger map[types.Destination]int64

// Clone returns an independent copy. DelegateBalance is immutable once
// written (spec.md §3) — every tip owns its own snapshot built by cloning
// its parent's.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// OrdinaryApplication is one non-mint transaction already accepted into a
// block, carrying what TransitionBlock needs beyond the transaction
// itself: the owning destination its inputs resolved to
// (tx.ValidateWithUTXOs's spenderDest) and where it landed in the block
// file, for CERT enrollment bookkeeping.
type OrdinaryApplication struct {
	Tx          *tx.Transaction
	SpenderDest types.Destination
	Pos         blockfile.Pos
}

// EnrollEntry is one CERT enrollment recorded while transitioning a
// block, ready for the caller to persist via chainstore.PutEnroll.
type EnrollEntry struct {
	AnchorHeight uint64
	DelegateDest types.Destination
	TxID         types.Hash
	Pos          blockfile.Pos
}

// ErrNegativeBalance reports a block whose delegate tally would go
// negative, which spec.md §4.9 requires rejecting the whole block for.
var ErrNegativeBalance = errors.New("delegate: balance went negative")

// TransitionBlock computes D := copy(prev) and applies a block's mint
// transaction then its ordinary transactions in order (spec.md §4.9): a
// mint destination that is itself a delegate template receives the mint
// reward directly; an ordinary transaction's send_to and resolved input
// destination each route to a delegate template if they are one (directly,
// or via a vote template wrapping one); a CERT transaction additionally
// records an enrollment once its routed delegate clears minEnrollAmount.
func TransitionBlock(
	prev Ledger,
	minEnrollAmount int64,
	mintSendTo types.Destination,
	mintAmount int64,
	blockSig []byte,
	ordinary []OrdinaryApplication,
) (Ledger, []EnrollEntry, error) {
	d := prev.Clone()

	if mintDelegate, ok := classify(mintSendTo, blockSig); ok && mintDelegate.Equal(mintSendTo) {
		d[mintDelegate] += mintAmount
	}

	var enrolls []EnrollEntry
	for _, app := range ordinary {
		t := app.Tx
		sendToDelegate, sendOK := classify(t.SendTo, t.Sig)
		destInDelegate, destInOK := classify(app.SpenderDest, t.Sig)

		if sendOK {
			d[sendToDelegate] += t.Amount
		}
		if destInOK {
			d[destInDelegate] -= t.Amount + t.Fee
		}

		if t.Type == tx.Cert {
			if !destInOK {
				return nil, nil, fmt.Errorf("delegate: cert tx %s has no delegate-routed input", t.ID())
			}
			if d[destInDelegate] < minEnrollAmount {
				return nil, nil, fmt.Errorf("delegate: cert tx %s: balance %d below minimum enroll amount %d", t.ID(), d[destInDelegate], minEnrollAmount)
			}
			if len(t.Data) < 4 {
				return nil, nil, fmt.Errorf("delegate: cert tx %s: data too short for anchor height", t.ID())
			}
			anchor := binary.LittleEndian.Uint32(t.Data[:4])
			enrolls = append(enrolls, EnrollEntry{
				AnchorHeight: uint64(anchor),
				DelegateDest: destInDelegate,
				TxID:         t.ID(),
				Pos:          app.Pos,
			})
		}
	}

	for dest, v := range d {
		if v < 0 {
			return nil, nil, fmt.Errorf("%w: %s = %d", ErrNegativeBalance, dest, v)
		}
		if v == 0 {
			delete(d, dest)
		}
	}

	return d, enrolls, nil
}

// classify resolves dest to the delegate-template destination it routes
// votes to, if any. A raw delegate-mint template routes to itself; a vote
// template routes to the delegate it wraps; anything else — a pubkey, a
// non-delegate template, or a sig that doesn't parse against dest — does
// not participate in delegate accounting.
func classify(dest types.Destination, sig []byte) (types.Destination, bool) {
	if !dest.IsTemplate() {
		return types.Destination{}, false
	}
	tmpl, _, err := template.FromSignature(dest, sig)
	if err != nil {
		return types.Destination{}, false
	}
	switch t := tmpl.(type) {
	case *template.Vote:
		return t.DelegateDest, true
	case *template.DelegateMint:
		return dest, true
	default:
		return types.Destination{}, false
	}
}

// BuildBallot selects the active delegate set for height h+1 (spec.md
// §4.9): every delegate in enrolled (keyed by the cert tx's file position,
// as returned by chainstore.ForEachEnroll for anchor height h) whose tip
// balance still clears minEnrollAmount, ranked by (votes desc, file
// position desc) and truncated to MaxDelegates. The position tiebreak
// favors the most recently recorded enrollment, mirroring the original's
// descending scan over (votes, CDiskPos) pairs.
func BuildBallot(tip Ledger, minEnrollAmount int64, enrolled map[types.Destination]blockfile.Pos) []types.Destination {
	type candidate struct {
		dest  types.Destination
		votes int64
		pos   blockfile.Pos
	}
	candidates := make([]candidate, 0, len(enrolled))
	for dest, pos := range enrolled {
		votes, ok := tip[dest]
		if !ok || votes < minEnrollAmount {
			continue
		}
		candidates = append(candidates, candidate{dest, votes, pos})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].votes != candidates[j].votes {
			return candidates[i].votes > candidates[j].votes
		}
		if candidates[i].pos.FileNo != candidates[j].pos.FileNo {
			return candidates[i].pos.FileNo > candidates[j].pos.FileNo
		}
		return candidates[i].pos.Offset > candidates[j].pos.Offset
	})
	if len(candidates) > MaxDelegates {
		candidates = candidates[:MaxDelegates]
	}
	out := make([]types.Destination, len(candidates))
	for i, c := range candidates {
		out[i] = c.dest
	}
	return out
}
