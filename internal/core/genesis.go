package core

import (
	"encoding/json"
	"fmt"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/tx"
	"github.com/kaelnet/chaincore/pkg/types"
)

// BuildOriginBlock builds and signs an ORIGIN block that mints gen's
// InitialSupply to ownerKey's destination, deriving gen's fork profile
// from the genesis preset's own fields (Name, Symbol, Flags, plus any
// parent/joint fields if this origin is joining an existing fork rather
// than rooting a brand-new one). It does not submit the block — callers
// pass the result through AddNewBlock, the same single entry point every
// other block type goes through (spec.md §9's "initialize never mints").
func BuildOriginBlock(gen *config.Genesis, ownerKey *crypto.PrivateKey, parentFork types.ChainID, joinHash types.Hash) (*block.Block, error) {
	ownerHash, err := gen.OwnerDestinationHash()
	if err != nil {
		return nil, fmt.Errorf("core: resolve genesis owner: %w", err)
	}

	blocksPerYear := uint64(365 * 24 * 3600 / config.BlockTargetSpacing)
	profile := config.Profile{
		Name:          gen.Name,
		Symbol:        gen.Symbol,
		InitialSupply: gen.InitialSupply,
		MintReward:    gen.InitialMintReward,
		HalveCycle:    blocksPerYear * 2,
		MinTxFee:      gen.MinTxFee,
		Flags:         gen.Flags,
		InitialBits:   gen.InitialBits,
		Owner:         ownerHash,
	}
	if !parentFork.IsZero() {
		parentHash := types.Hash(parentFork)
		profile.ParentForkHash = &parentHash
	}
	proofBytes, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("core: encode fork profile: %w", err)
	}

	dest := types.NewPubKeyDestination(ownerHash)
	mint := tx.NewBuilder(tx.Genesis, gen.GenesisTimestamp).
		SetSendTo(dest, gen.InitialSupply).
		Build()

	header := block.Header{
		Version:    1,
		Type:       block.Origin,
		Timestamp:  gen.GenesisTimestamp,
		PrevHash:   joinHash,
		ProofBytes: proofBytes,
	}
	blk := block.NewBlock(header, mint, nil)

	sig, err := framePubKeySig(ownerKey, blk.HeaderHash())
	if err != nil {
		return nil, fmt.Errorf("core: sign origin block: %w", err)
	}
	blk.Sig = sig
	return blk, nil
}
