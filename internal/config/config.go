// Package config loads daemon settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	Home       string

	ChainID    uint64
	EthRPCURL  string // empty disables the escrow pre-check
	EscrowAddr common.Address

	MongoURI string // empty selects the in-memory store with snapshots
	MongoDB  string

	SignerURL      string // remote signing service; empty uses the local key
	OperatorKeyHex string

	Network      string
	AgentEnabled bool
}

// Load reads the environment. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:     envStr("CLAW_LISTEN_ADDR", ":8080"),
		Home:           envStr("CLAW_HOME", ".clawarena"),
		EthRPCURL:      envStr("CLAW_ETH_RPC_URL", ""),
		MongoURI:       envStr("CLAW_MONGO_URI", ""),
		MongoDB:        envStr("CLAW_MONGO_DB", "clawarena"),
		SignerURL:      envStr("CLAW_SIGNER_URL", ""),
		OperatorKeyHex: envStr("CLAW_OPERATOR_KEY", ""),
		Network:        envStr("CLAW_NETWORK", "testnet"),
	}

	var err error
	if cfg.ChainID, err = envUint64("CLAW_CHAIN_ID", 31337); err != nil {
		return Config{}, err
	}
	if cfg.AgentEnabled, err = envBool("CLAW_AGENT_ENABLED", true); err != nil {
		return Config{}, err
	}

	if raw := os.Getenv("CLAW_ESCROW_ADDRESS"); raw != "" {
		if !common.IsHexAddress(raw) {
			return Config{}, fmt.Errorf("CLAW_ESCROW_ADDRESS: %q is not an address", raw)
		}
		cfg.EscrowAddr = common.HexToAddress(raw)
	}

	if cfg.SignerURL == "" && cfg.OperatorKeyHex == "" {
		return Config{}, fmt.Errorf("one of CLAW_SIGNER_URL or CLAW_OPERATOR_KEY is required")
	}
	if cfg.Network != "testnet" && cfg.Network != "mainnet" {
		return Config{}, fmt.Errorf("CLAW_NETWORK: %q is not testnet or mainnet", cfg.Network)
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envUint64(key string, def uint64) (uint64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a uint: %w", key, raw, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a bool: %w", key, raw, err)
	}
	return v, nil
}
