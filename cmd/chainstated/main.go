// chainstated is a minimal composition-root binary: it opens a chain-state
// store under a data directory and, on an empty store, seeds it with a
// genesis preset's origin block. It wires no RPC, P2P, or miner driver —
// those are out of scope (spec.md §6's external interfaces) — it exists to
// exercise core.Open/core.BuildOriginBlock/core.AddNewBlock as a real
// process entry point, the way the teacher's klingnetd wires internal/chain.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/kaelnet/chaincore/config"
	"github.com/kaelnet/chaincore/internal/core"
	"github.com/kaelnet/chaincore/internal/log"
	"github.com/kaelnet/chaincore/pkg/crypto"
	"github.com/kaelnet/chaincore/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chainstated: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := flag.String("datadir", "./chainstated-data", "chain-state data directory")
	network := flag.String("network", "testnet", "genesis preset: mainnet or testnet")
	ownerKeyHex := flag.String("owner-key", "", "hex-encoded 32-byte owner private key, required only to seed a fresh data directory")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if err := log.Init(*logLevel, false, ""); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	netType := config.Testnet
	if *network == "mainnet" {
		netType = config.Mainnet
	}
	gen := config.GenesisFor(netType)
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("invalid genesis preset %q: %w", *network, err)
	}

	c, err := core.Open(*dataDir)
	if err != nil {
		return fmt.Errorf("open data directory %q: %w", *dataDir, err)
	}
	defer c.Close()
	log.Chain.Info().Str("datadir", *dataDir).Str("network", string(netType)).Msg("chain state opened")

	forks, err := c.ListForks()
	if err != nil {
		return fmt.Errorf("list forks: %w", err)
	}
	if len(forks) > 0 {
		fmt.Printf("chainstated: recovered %d fork(s) from %s\n", len(forks), *dataDir)
		return nil
	}

	if *ownerKeyHex == "" {
		return fmt.Errorf("data directory %q is empty and no --owner-key was given to seed genesis", *dataDir)
	}
	keyBytes, err := hex.DecodeString(*ownerKeyHex)
	if err != nil {
		return fmt.Errorf("owner-key: %w", err)
	}
	ownerKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("owner-key: %w", err)
	}
	origin, err := core.BuildOriginBlock(gen, ownerKey, types.ChainID{}, types.Hash{})
	if err != nil {
		return fmt.Errorf("build origin block: %w", err)
	}
	if code, err := c.AddNewBlock(origin); err != nil {
		return fmt.Errorf("seed genesis (code=%v): %w", code, err)
	}
	fmt.Printf("chainstated: seeded %s genesis at %s\n", gen.Name, *dataDir)
	return nil
}
