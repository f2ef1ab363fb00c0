// Package config holds chain-wide parameters: the genesis inputs and the
// consensus-critical constants every node on a fork must agree on.
//
// Everything here is read-only once a chain launches. Hard-fork activation
// heights and similar switches are fields on ChainParams, passed explicitly
// into the validator and consensus components at construction — never read
// from a package-level variable, so a process hosting more than one fork
// (mainnet + a private fork, or two independent test chains) never has one
// fork's parameters leak into another's validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Denomination constants. 1 coin = 10^12 base units; all on-chain amounts
// are base units (i64, per the transaction's amount/fee fields).
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000
	MilliCoin = 1_000_000_000
	MicroCoin = 1_000_000
)

// Consensus-critical constants (spec.md §6).
const (
	BlockTargetSpacing    = 45  // BLOCK_TARGET_SPACING, seconds
	ExtendedBlockSpacing  = 3   // seconds per extended-block slot within one primary window
	MaxClockDrift         = 600 // MAX_CLOCK_DRIFT, seconds
	MaxBlockSize          = 2_000_000
	MaxTxSize             = 200_000
	MinTxFee              = 10_000 // MIN_TX_FEE, base units
	MaxDelegateThresh     = 23     // MAX_DELEGATE_THRESH
	PowAdjustCount        = 8      // POW_ADJUST_COUNT
	PowAdjustDebounce     = 15     // POW_ADJUST_DEBOUNCE, seconds
	PowBitsLower          = 8      // POW_LOWER
	PowBitsUpper          = 200    // POW_UPPER
	MinMortgage           = 100_000 // MIN_MORTGAGE, base units
	MortgageDecayCycle    = 525_600 // MORTGAGE_DECAY_CYCLE, blocks
	MortgageDecayRatioNum = 1       // MORTGAGE_DECAY_RATIO = 1/2 per cycle
	MortgageDecayRatioDen = 2

	// MinEnrollAmount is the delegate vote balance a destination must hold
	// before its CERT enrollment is accepted (spec.md §4.9 step 3). The
	// spec leaves the exact figure to implementers; pinned here to match
	// the magnitudes used in the delegate-cert scenario.
	MinEnrollAmount = 1_000_000

	// MaxMoney bounds every amount/fee field (i64 base units) well below
	// the point where two of them could overflow int64 when summed.
	MaxMoney = 10_000_000_000 * Coin

	// InviteThreshold is the minimum first-received amount that earns a
	// destination an address_invite graph edge (spec.md §4.5).
	InviteThreshold = 10_000
)

// ForkFlags are the three fork visibility flags named in spec.md §3.
type ForkFlags struct {
	Isolated bool `json:"isolated"`
	Private  bool `json:"private"`
	Enclosed bool `json:"enclosed"`
}

// Profile is a Fork's immutable metadata, carried in an origin block's
// proof_bytes and cached in fork_context (spec.md §4.5, §4.11).
type Profile struct {
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	InitialSupply   uint64          `json:"initial_supply"`
	MintReward      uint64          `json:"mint_reward"`
	HalveCycle      uint64          `json:"halve_cycle"`
	MinTxFee        uint64          `json:"min_tx_fee"`
	Flags           ForkFlags       `json:"flags"`
	InitialBits     uint32          `json:"initial_bits"` // seeds retargeting for the fork's first PRIMARY block
	Owner           types.Hash      `json:"owner"` // owner destination hash
	ParentForkHash  *types.Hash     `json:"parent_fork_hash,omitempty"`
	JoinHeight      uint64          `json:"join_height,omitempty"`
}

// Genesis holds the parameters that seed a chain's origin block. These are
// inputs to block construction, not on-wire fields (spec.md §6).
type Genesis struct {
	Network           NetworkType `json:"network"`
	GenesisTimestamp  uint32      `json:"genesis_timestamp"`
	OwnerPubKey       string      `json:"owner_pubkey"` // hex-encoded compressed pubkey
	InitialSupply     uint64      `json:"initial_supply"`
	InitialMintReward uint64      `json:"initial_mint_reward"`
	MinTxFee          uint64      `json:"min_tx_fee"`
	Name              string      `json:"name"`
	Symbol            string      `json:"symbol"`
	Flags             ForkFlags   `json:"flags"`
	InitialBits       uint32      `json:"initial_bits"`
}

// ChainParams is the resolved, explicit bundle of per-chain parameters
// threaded into the validator, consensus controller, and delegate ledger.
// It is the hoisted replacement for the global mutable state that used to
// hold hard-fork activation heights.
type ChainParams struct {
	Genesis Genesis
}

// OwnerDestinationHash returns H(owner pubkey), used as the PubKey
// destination hash for genesis allocations and origin-block ownership.
func (g *Genesis) OwnerDestinationHash() (types.Hash, error) {
	pub, err := crypto.PublicKeyFromHex(g.OwnerPubKey)
	if err != nil {
		return types.Hash{}, fmt.Errorf("owner_pubkey: %w", err)
	}
	return crypto.PubKeyHash(pub), nil
}

// Validate checks a genesis configuration for internal consistency.
func (g *Genesis) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}
	if g.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if g.MinTxFee < MinTxFee {
		return fmt.Errorf("min_tx_fee below protocol floor %d", MinTxFee)
	}
	if g.InitialBits < PowBitsLower || g.InitialBits > PowBitsUpper {
		return fmt.Errorf("initial_bits out of range [%d, %d]", PowBitsLower, PowBitsUpper)
	}
	if _, err := crypto.PublicKeyFromHex(g.OwnerPubKey); err != nil {
		return fmt.Errorf("owner_pubkey: %w", err)
	}
	return nil
}

// =============================================================================
// Testnet identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
// =============================================================================

const (
	TestnetOwnerPubKey  = "030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"
	TestnetOwnerPrivKey = "1f0717e6e34acc6721021f4dfed54558ec8452452b6195545d06dd348b220091"
)

// MainnetGenesis returns the mainnet genesis parameters.
func MainnetGenesis() *Genesis {
	return &Genesis{
		Network:           Mainnet,
		GenesisTimestamp:  1770734103, // 2026-02-10
		OwnerPubKey:       "03cba4d0ee4c55f5ea620393a6e6e9dafe959bfa6ddff964221126a3e41ad0487d",
		InitialSupply:     100_000 * Coin,
		InitialMintReward: 15 * Coin,
		MinTxFee:          MinTxFee,
		Name:              "Kaelnet",
		Symbol:            "KAEL",
		Flags:             ForkFlags{},
		InitialBits:       32,
	}
}

// TestnetGenesis returns the testnet genesis parameters.
func TestnetGenesis() *Genesis {
	return &Genesis{
		Network:           Testnet,
		GenesisTimestamp:  1770734103,
		OwnerPubKey:       TestnetOwnerPubKey,
		InitialSupply:     200_000 * Coin,
		InitialMintReward: 15 * Coin,
		MinTxFee:          MinTxFee,
		Name:              "Kaelnet Testnet",
		Symbol:            "tKAEL",
		Flags:             ForkFlags{},
		InitialBits:       10,
	}
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Hash returns a BLAKE3 hash of the genesis configuration, used to detect
// genesis mismatches between peers on the same named chain.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}

// RewardFor computes the piecewise-constant mint reward for the primary
// chain at the given height (spec.md §4.8): a fixed schedule of
// (end_height, reward) brackets, then a constant yearly increment past the
// last bracket. One "year" of blocks is derived from BlockTargetSpacing.
func RewardFor(g *Genesis, height uint64) uint64 {
	blocksPerYear := uint64(365 * 24 * 3600 / BlockTargetSpacing)
	schedule := []struct {
		end    uint64
		reward uint64
	}{
		{blocksPerYear * 1, g.InitialMintReward},
		{blocksPerYear * 2, g.InitialMintReward + g.InitialMintReward/2},
		{blocksPerYear * 4, g.InitialMintReward * 2},
	}
	for _, s := range schedule {
		if height <= s.end {
			return s.reward
		}
	}
	last := schedule[len(schedule)-1]
	yearsPast := (height - last.end) / blocksPerYear
	return last.reward + yearsPast*(g.InitialMintReward/10)
}
