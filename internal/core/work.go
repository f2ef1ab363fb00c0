package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/chainindex"
	"github.com/kaelnet/chaincore/internal/consensus"
	"github.com/kaelnet/chaincore/internal/log"
	"github.com/kaelnet/chaincore/internal/validator"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// GetWork is the get_work operation (spec.md §6): it builds an unsealed
// PRIMARY block template extending fork's current tip, with bits already
// retargeted and the mint reward computed from the fork's own profile. The
// returned block's proof_bytes carries nonce=0 — callers mine it by
// repeatedly calling consensus.Seal against the template, then submit the
// sealed result through SubmitWork.
func (c *Core) GetWork(fork types.ChainID, mintDest types.Destination) (*block.Block, error) {
	f, ok := c.index.LookupFork(fork)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFork, fork)
	}
	tip, ok := c.index.Get(f.Tip())
	if !ok {
		return nil, fmt.Errorf("core: fork %s has no tip block indexed", fork)
	}

	bits, _, err := c.getProofOfWorkTargetFor(tip)
	if err != nil {
		return nil, err
	}

	profile, err := c.forkProfile(fork)
	if err != nil {
		return nil, err
	}
	reward := rewardForProfile(profile, tip.Height+1)

	now := uint32(time.Now().Unix())
	mintTx := tx.NewBuilder(tx.Work, now).SetSendTo(mintDest, reward).Build()

	header := block.Header{
		Version:   1,
		Type:      block.Primary,
		Timestamp: now,
		PrevHash:  tip.Hash,
		ProofBytes: consensus.EncodeProofBytes(consensus.Proof{
			Algo: consensus.AlgoCryptoNight, Bits: bits, MintDest: mintDest,
		}),
	}
	return block.NewBlock(header, mintTx, nil), nil
}

// SubmitWork is the submit_work operation (spec.md §6): blk must already
// carry a sealed proof_bytes (consensus.Seal has found a qualifying
// nonce). SubmitWork signs the header with minerKey — which must own
// blk's mint destination — and submits the result through AddNewBlock,
// the same entry point every other block source uses.
func (c *Core) SubmitWork(blk *block.Block, minerKey *crypto.PrivateKey) (validator.Code, error) {
	sig, err := framePubKeySig(minerKey, blk.HeaderHash())
	if err != nil {
		return validator.ErrFatal, fmt.Errorf("core: sign mined block: %w", err)
	}
	blk.Sig = sig
	return c.AddNewBlock(blk)
}

// GetProofOfWorkTarget is the get_proof_of_work_target operation (spec.md
// §6): the bits and corresponding target fork's next PRIMARY block must
// satisfy, given the chain as it stands right now.
func (c *Core) GetProofOfWorkTarget(fork types.ChainID) (uint32, *big.Int, error) {
	f, ok := c.index.LookupFork(fork)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownFork, fork)
	}
	tip, ok := c.index.Get(f.Tip())
	if !ok {
		return 0, nil, fmt.Errorf("core: fork %s has no tip block indexed", fork)
	}
	return c.getProofOfWorkTargetFor(tip)
}

func (c *Core) getProofOfWorkTargetFor(tip *chainindex.BlockIndex) (uint32, *big.Int, error) {
	window, err := c.retargetWindow(tip)
	if err != nil {
		return 0, nil, err
	}
	bits := consensus.RetargetBits(window, tip.Bits)
	if bits != tip.Bits {
		log.Consensus.Info().Uint32("from", tip.Bits).Uint32("to", bits).Int("window", len(window)).Msg("pow difficulty retargeted")
	}
	return bits, consensus.Target(bits), nil
}

// VerifyRefBlock is the verify_ref_block operation (spec.md §6): it walks
// blk's fork back through parent forks (via each fork's recorded
// ForkContext.ParentFork) until it either reaches claimedGenesis or runs
// out of ancestry, confirming whether blk's fork genuinely descends from
// the named genesis.
func (c *Core) VerifyRefBlock(blockHash types.Hash, claimedGenesis types.Hash) (bool, error) {
	outline, ok, err := c.store.GetOutline(blockHash)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: block %s", ErrNotFound, blockHash)
	}
	fork := types.ChainID(outline.OriginHash)
	for {
		if types.Hash(fork) == claimedGenesis {
			return true, nil
		}
		ctx, ok, err := c.store.GetForkContext(fork)
		if err != nil {
			return false, err
		}
		if !ok || ctx.ParentFork.IsZero() {
			return false, nil
		}
		fork = ctx.ParentFork
	}
}

// forkProfile resolves and decodes a fork's immutable profile.
func (c *Core) forkProfile(fork types.ChainID) (config.Profile, error) {
	ctx, ok, err := c.store.GetForkContext(fork)
	if err != nil {
		return config.Profile{}, err
	}
	if !ok {
		return config.Profile{}, fmt.Errorf("%w: fork context %s", ErrNotFound, fork)
	}
	var profile config.Profile
	if ctx.Profile != "" {
		if err := json.Unmarshal([]byte(ctx.Profile), &profile); err != nil {
			return config.Profile{}, fmt.Errorf("core: corrupt fork profile %s: %w", fork, err)
		}
	}
	return profile, nil
}

// rewardForProfile computes a fork's piecewise-halving mint reward from
// its own profile fields rather than the mainnet-specific schedule in
// config.RewardFor, since every fork picks its own MintReward/HalveCycle
// at origin time (spec.md §4.5's per-fork profile, generalizing
// config.RewardFor's single hardcoded schedule to however many forks one
// process hosts).
func rewardForProfile(profile config.Profile, height uint64) uint64 {
	if profile.HalveCycle == 0 {
		return profile.MintReward
	}
	halvings := height / profile.HalveCycle
	reward := profile.MintReward
	for i := uint64(0); i < halvings && reward > 0; i++ {
		reward /= 2
	}
	return reward
}
