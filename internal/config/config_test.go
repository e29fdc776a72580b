package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLAW_OPERATOR_KEY", "deadbeef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.ChainID != 31337 || cfg.Network != "testnet" {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
	if !cfg.AgentEnabled {
		t.Fatal("agent should default to enabled")
	}
	if cfg.MongoURI != "" {
		t.Fatalf("mongo should default off, got %q", cfg.MongoURI)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLAW_SIGNER_URL", "http://signer:7000")
	t.Setenv("CLAW_CHAIN_ID", "8453")
	t.Setenv("CLAW_NETWORK", "mainnet")
	t.Setenv("CLAW_AGENT_ENABLED", "false")
	t.Setenv("CLAW_ESCROW_ADDRESS", "0x00000000000000000000000000000000000000aa")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 8453 || cfg.Network != "mainnet" || cfg.AgentEnabled {
		t.Fatalf("overrides mismatch: %+v", cfg)
	}
	if cfg.EscrowAddr[19] != 0xaa {
		t.Fatalf("escrow address mismatch: %s", cfg.EscrowAddr.Hex())
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Setenv("CLAW_OPERATOR_KEY", "deadbeef")

	t.Setenv("CLAW_CHAIN_ID", "banana")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "CLAW_CHAIN_ID") {
		t.Fatalf("bad chain id: got %v", err)
	}
	t.Setenv("CLAW_CHAIN_ID", "1")

	t.Setenv("CLAW_ESCROW_ADDRESS", "not-an-address")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "CLAW_ESCROW_ADDRESS") {
		t.Fatalf("bad escrow address: got %v", err)
	}
	t.Setenv("CLAW_ESCROW_ADDRESS", "")

	t.Setenv("CLAW_NETWORK", "devnet")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "CLAW_NETWORK") {
		t.Fatalf("bad network: got %v", err)
	}
}

func TestLoadRequiresSigningPath(t *testing.T) {
	t.Setenv("CLAW_SIGNER_URL", "")
	t.Setenv("CLAW_OPERATOR_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("missing signer configuration should fail")
	}
}
