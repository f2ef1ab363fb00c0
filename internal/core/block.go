package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/blockview"
	"github.com/kaelnet/chaincore/internal/chainindex"
	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/internal/consensus"
	"github.com/kaelnet/chaincore/internal/log"
	"github.com/kaelnet/chaincore/internal/validator"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/types"
)

// profileToJSON re-serializes a fork's resolved config.Profile for
// chainstore.ForkContext, which stores it as an opaque JSON string —
// ValidateOrigin already unmarshaled it once out of the block's ProofBytes
// to validate it.
func profileToJSON(profile config.Profile) (string, error) {
	out, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("core: marshal fork profile: %w", err)
	}
	return string(out), nil
}

// AddNewBlock is the add_new_block operation (spec.md §6): it runs
// context-free checks, then dispatches to the ORIGIN fork-creation path or
// the chained (PRIMARY/SUBSIDIARY/EXTENDED/VACANT) path, persists the
// resulting block_outline unconditionally, and only replays it onto its
// fork's active path when it wins that fork's trust comparison — a block
// that loses the comparison stays recorded (so a later BranchWalk can
// still reconnect it) but contributes nothing to chain state until then.
func (c *Core) AddNewBlock(blk *block.Block) (validator.Code, error) {
	log.Chain.Debug().Stringer("type", blk.Header.Type).Uint32("timestamp", blk.Header.Timestamp).Msg("block received")

	now := uint32(time.Now().Unix())
	if err := validator.ValidateBlockContextFree(blk, now); err != nil {
		log.Chain.Warn().Err(err).Msg("block rejected: context-free validation")
		return codeOf(err), err
	}
	for _, t := range blk.Transactions() {
		if err := validator.ValidateTxContextFree(t); err != nil {
			log.Chain.Warn().Err(err).Stringer("tx", t.ID()).Msg("block rejected: tx context-free validation")
			return codeOf(err), err
		}
	}
	log.Chain.Debug().Msg("block passed context-free validation")

	var code validator.Code
	var err error
	if blk.Header.Type == block.Origin {
		code, err = c.addOriginBlock(blk)
	} else {
		code, err = c.addChainedBlock(blk)
	}
	if err != nil {
		log.Chain.Warn().Err(err).Stringer("code", code).Msg("block rejected")
		return code, err
	}
	log.Chain.Info().Msg("block notified")
	return code, nil
}

func codeOf(err error) validator.Code {
	var rej *validator.Rejection
	if errors.As(err, &rej) {
		return rej.Code
	}
	return validator.ErrFatal
}

func alreadyHave(hash types.Hash) error {
	return &validator.Rejection{Code: validator.ErrAlreadyHave, Err: fmt.Errorf("core: block %s already known", hash)}
}

func missingPrev(hash types.Hash) error {
	return &validator.Rejection{Code: validator.ErrMissingPrev, Err: fmt.Errorf("core: unknown parent %s", hash)}
}

// addOriginBlock accepts an ORIGIN block as the root of a brand-new fork,
// or as a child fork joined from an existing block elsewhere (spec.md
// §4.11, §9's fork-flags design note). The new fork's ChainID is the
// origin block's own block_hash — every later block on that fork carries
// the same value in its BlockOutline.OriginHash, letting recovery and
// cross-fork lookups (retrieve_fork, verify_ref_block) resolve a block's
// fork without walking prev_hash at all.
func (c *Core) addOriginBlock(blk *block.Block) (validator.Code, error) {
	candidateHash := blk.Hash(1)
	if _, ok, err := c.store.GetOutline(candidateHash); err != nil {
		return validator.ErrFatal, err
	} else if ok {
		return validator.ErrAlreadyHave, alreadyHave(candidateHash)
	}

	var parentFork types.ChainID
	var join validator.Ancestor
	if !blk.Header.PrevHash.IsZero() {
		parentOutline, ok, err := c.store.GetOutline(blk.Header.PrevHash)
		if err != nil {
			return validator.ErrFatal, err
		}
		if !ok {
			return validator.ErrMissingPrev, missingPrev(blk.Header.PrevHash)
		}
		parentFork = types.ChainID(parentOutline.OriginHash)
		join = validator.Ancestor{Hash: blk.Header.PrevHash, Height: parentOutline.Height, Timestamp: parentOutline.Timestamp}
	}

	outline, profile, err := c.validator.ValidateOrigin(blk, parentFork, join)
	if err != nil {
		return codeOf(err), err
	}

	forkID := types.ChainID(candidateHash)
	outline.OriginHash = types.Hash(forkID)

	pos, err := c.blockStore.WriteBlock(blk)
	if err != nil {
		return validator.ErrFatal, fmt.Errorf("core: write origin block: %w", err)
	}
	outline.FilePos = pos

	if err := c.store.PutOutline(candidateHash, outline); err != nil {
		return validator.ErrFatal, fmt.Errorf("core: persist origin outline: %w", err)
	}
	log.Chain.Debug().Stringer("block", candidateHash).Msg("origin block indexed")

	c.index.Add(&chainindex.BlockIndex{
		Hash: candidateHash, PrevHash: blk.Header.PrevHash, Height: 1,
		Timestamp: blk.Header.Timestamp, MintDest: blk.MintTx.SendTo,
		Trust: big.NewInt(0), FilePos: pos, Bits: profile.InitialBits,
	})
	c.index.Fork(forkID, types.Hash{})

	view, err := blockview.New(c.index, c.store, c.utxoStore, c.blockStore, c.db, forkID, true)
	if err != nil {
		return validator.ErrFatal, fmt.Errorf("core: open view for new fork: %w", err)
	}
	if err := view.AddBlock(blk, outline); err != nil {
		view.Discard()
		return validator.ErrFatal, fmt.Errorf("core: apply origin block: %w", err)
	}
	if err := view.Commit(); err != nil {
		return validator.ErrFatal, fmt.Errorf("core: commit origin block: %w", err)
	}
	log.Chain.Info().Stringer("fork", forkID).Str("name", profile.Name).Msg("fork rooted, origin block committed")

	profileJSON, err := profileToJSON(profile)
	if err != nil {
		return validator.ErrFatal, err
	}
	if err := c.store.PutForkContext(forkID, chainstore.ForkContext{
		ParentFork: parentFork, JointHash: blk.Header.PrevHash, JointHeight: join.Height, Profile: profileJSON,
	}); err != nil {
		return validator.ErrFatal, fmt.Errorf("core: persist fork context: %w", err)
	}

	return validator.OK, nil
}

// addChainedBlock accepts a PRIMARY/SUBSIDIARY/EXTENDED/VACANT block onto
// whichever fork its parent belongs to. A block's transactions are checked
// against the UTXO state implied by its own ancestry before anything is
// recorded (checkTxsAgainstUTXOs), so a losing branch's outline is never
// indexed ahead of that check. Once indexed, whether it also becomes that
// fork's active tip depends on whether its cumulative trust beats the
// fork's current tip (spec.md §8 invariant 3).
func (c *Core) addChainedBlock(blk *block.Block) (validator.Code, error) {
	parentBI, ok := c.index.Get(blk.Header.PrevHash)
	if !ok {
		return validator.ErrMissingPrev, missingPrev(blk.Header.PrevHash)
	}
	candidateHash := blk.Hash(parentBI.Height + 1)
	if _, ok, err := c.store.GetOutline(candidateHash); err != nil {
		return validator.ErrFatal, err
	} else if ok {
		return validator.ErrAlreadyHave, alreadyHave(candidateHash)
	}

	parentOutline, ok, err := c.store.GetOutline(parentBI.Hash)
	if err != nil {
		return validator.ErrFatal, err
	}
	if !ok {
		return validator.ErrFatal, fmt.Errorf("core: parent %s indexed but not recorded", parentBI.Hash)
	}
	forkID := types.ChainID(parentOutline.OriginHash)

	prev := validator.Ancestor{Hash: parentBI.Hash, Height: parentBI.Height, Timestamp: parentBI.Timestamp, Bits: parentBI.Bits}

	window, err := c.retargetWindow(parentBI)
	if err != nil {
		return validator.ErrFatal, err
	}
	outline, err := c.validator.ValidateContextDependent(blk, prev, window)
	if err != nil {
		return codeOf(err), err
	}
	outline.OriginHash = parentOutline.OriginHash

	pos, err := c.blockStore.WriteBlock(blk)
	if err != nil {
		return validator.ErrFatal, fmt.Errorf("core: write block: %w", err)
	}
	outline.FilePos = pos

	if err := c.checkTxsAgainstUTXOs(forkID, blk, outline); err != nil {
		var rej *validator.Rejection
		if !errors.As(err, &rej) {
			return validator.ErrFatal, fmt.Errorf("core: rebuild ancestry for tx check: %w", err)
		}
		log.Chain.Warn().Err(err).Stringer("block", candidateHash).Msg("block rejected: tx context-dependent validation")
		return rej.Code, rej
	}

	if err := c.store.PutOutline(candidateHash, outline); err != nil {
		return validator.ErrFatal, fmt.Errorf("core: persist outline: %w", err)
	}
	log.Chain.Debug().Stringer("block", candidateHash).Uint64("height", outline.Height).Msg("block indexed")

	mintDest := types.Destination{}
	if blk.MintTx != nil {
		mintDest = blk.MintTx.SendTo
	}
	c.index.Add(&chainindex.BlockIndex{
		Hash: candidateHash, PrevHash: parentBI.Hash, Height: outline.Height,
		Timestamp: outline.Timestamp, MintDest: mintDest, Trust: trustFromString(outline.Trust),
		FilePos: pos, Bits: bitsOf(blk),
	})

	f, ok := c.index.LookupFork(forkID)
	if !ok {
		return validator.ErrFatal, fmt.Errorf("core: fork %s not indexed", forkID)
	}
	f.RecordAtHeight(outline.Height, candidateHash, chainindex.HeightEntry{Timestamp: outline.Timestamp, MintDest: mintDest})

	wins, err := c.candidateBeatsTip(f, outline)
	if err != nil {
		return validator.ErrFatal, err
	}
	if wins {
		reorg := f.Tip() != blk.Header.PrevHash
		view, err := blockview.New(c.index, c.store, c.utxoStore, c.blockStore, c.db, forkID, true)
		if err != nil {
			return validator.ErrFatal, fmt.Errorf("core: open view: %w", err)
		}
		if err := view.Build(candidateHash); err != nil {
			view.Discard()
			return validator.ErrFatal, fmt.Errorf("core: rebuild fork to %s: %w", candidateHash, err)
		}
		if err := view.Commit(); err != nil {
			return validator.ErrFatal, fmt.Errorf("core: commit %s: %w", candidateHash, err)
		}
		if reorg {
			log.Chain.Info().Stringer("fork", forkID).Stringer("tip", candidateHash).Msg("block committed via reorg")
		} else {
			log.Chain.Info().Stringer("fork", forkID).Stringer("tip", candidateHash).Msg("block committed, tip extended")
		}
	}
	return validator.OK, nil
}

// checkTxsAgainstUTXOs runs blk's transactions through the same
// ValidateWithUTXOs path blockview.AddBlock uses, against the UTXO state
// implied by blk's own ancestry — not necessarily the fork's current active
// tip. This runs for every accepted candidate, win or lose: a losing block's
// outline still gets indexed (so a later reorg can reconnect it), and
// deferring this check to that eventual reconnect would let a double-spend
// clear acceptance, sit on disk, and only surface as a commit-time ErrFatal
// once it wins. Opens a non-committable view (no commit lock, nothing
// persisted) rebuilt up to blk's parent, then runs AddBlock once for blk
// itself without ever calling Commit.
func (c *Core) checkTxsAgainstUTXOs(forkID types.ChainID, blk *block.Block, outline chainstore.BlockOutline) error {
	view, err := blockview.New(c.index, c.store, c.utxoStore, c.blockStore, c.db, forkID, false)
	if err != nil {
		return fmt.Errorf("open validation view: %w", err)
	}
	defer view.Discard()

	if err := view.Build(blk.Header.PrevHash); err != nil {
		return fmt.Errorf("rebuild parent view to %s: %w", blk.Header.PrevHash, err)
	}
	if err := view.AddBlock(blk, outline); err != nil {
		return &validator.Rejection{Code: validator.ErrBlockTxInvalid, Err: err}
	}
	return nil
}

// candidateBeatsTip reports whether outline's cumulative trust strictly
// exceeds fork f's current tip — ties keep the incumbent tip, matching the
// first-seen-wins convention the teacher's own reorg comparison uses.
func (c *Core) candidateBeatsTip(f *chainindex.Fork, outline chainstore.BlockOutline) (bool, error) {
	tipOutline, ok, err := c.store.GetOutline(f.Tip())
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	candidateTrust := trustFromString(outline.Trust)
	tipTrust := trustFromString(tipOutline.Trust)
	return candidateTrust.Cmp(tipTrust) > 0, nil
}

func bitsOf(blk *block.Block) uint32 {
	if blk.Header.Type != block.Primary {
		return 0
	}
	proof, err := consensus.DecodeProofBytes(blk.Header.ProofBytes)
	if err != nil {
		return 0
	}
	return proof.Bits
}

// retargetWindow walks parent's ancestry collecting the spacing (in
// seconds) between each of up to config.PowAdjustCount+1 consecutive
// PRIMARY ancestors, oldest first — the window internal/validator.ValidatePoW
// independently re-derives expected bits from. The walk never crosses a
// fork's own ORIGIN block (height 1 always starts a fork, spec.md §8
// invariant 1), so a young fork simply yields a short window, which
// ValidatePoW already treats as "hold bits steady."
func (c *Core) retargetWindow(parent *chainindex.BlockIndex) ([]uint32, error) {
	var primaries []*chainindex.BlockIndex
	cur := parent
	for cur != nil && len(primaries) < config.PowAdjustCount+1 {
		if cur.Bits > 0 {
			primaries = append(primaries, cur)
		}
		if cur.Height <= 1 {
			break
		}
		next, ok := c.index.Get(cur.PrevHash)
		if !ok {
			break
		}
		cur = next
	}
	if len(primaries) < 2 {
		return nil, nil
	}
	for i, j := 0, len(primaries)-1; i < j; i, j = i+1, j-1 {
		primaries[i], primaries[j] = primaries[j], primaries[i]
	}
	window := make([]uint32, 0, len(primaries)-1)
	for i := 1; i < len(primaries); i++ {
		window = append(window, primaries[i].Timestamp-primaries[i-1].Timestamp)
	}
	return window, nil
}
