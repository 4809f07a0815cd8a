package dex

import (
	"fmt"

	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/types"
)

// TokenSpec describes one token deployed at genesis.
type TokenSpec struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Supply uint64 `json:"supply"` // whole tokens
}

// Config fixes a venue at genesis. A restarted venue must be given the same
// config it was created with.
type Config struct {
	ChainID        int64          `json:"chainId"`
	Deployer       types.Identity `json:"deployer"`
	FeeAccount     types.Identity `json:"feeAccount"`
	FeePercent     uint64         `json:"feePercent"`
	AllowSelfTrade bool           `json:"allowSelfTrade"`
	Tokens         []TokenSpec    `json:"tokens"`
}

// DefaultTokens is the token set deployed when none is configured.
func DefaultTokens() []TokenSpec {
	return []TokenSpec{
		{Name: "CoboltBlu", Symbol: "BLU", Supply: 1_000_000},
		{Name: "mETH", Symbol: "mETH", Supply: 1_000_000},
		{Name: "Cobolt USD", Symbol: "CUSD", Supply: 1_000_000},
	}
}

// DefaultConfig deploys the default tokens from the first development
// account, with the second collecting a 10% fee.
func DefaultConfig() Config {
	return Config{
		ChainID:        31337,
		Deployer:       crypto.DevSigner(0).Address(),
		FeeAccount:     crypto.DevSigner(1).Address(),
		FeePercent:     10,
		AllowSelfTrade: true,
		Tokens:         DefaultTokens(),
	}
}

func (c Config) validate() error {
	if types.IsNone(c.Deployer) {
		return fmt.Errorf("deployer required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("at least one token required")
	}
	seen := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if seen[t.Symbol] {
			return fmt.Errorf("duplicate token symbol %s", t.Symbol)
		}
		seen[t.Symbol] = true
	}
	return nil
}

// TokenAddress is the address of the i-th configured token.
func (c Config) TokenAddress(i int) types.Identity {
	return types.ContractAddress(c.Deployer, uint64(i))
}

// ExchangeAddress is deployed after the tokens.
func (c Config) ExchangeAddress() types.Identity {
	return types.ContractAddress(c.Deployer, uint64(len(c.Tokens)))
}
