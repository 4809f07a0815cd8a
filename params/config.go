package params

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/coboltblu/exchange/pkg/app/dex"
	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/types"
)

type Node struct {
	DataDir  string
	LogFile  string
	LogLevel string
	InMemory bool // keep state in an in-memory store; nothing survives a restart
	// Journal, when set, receives every committed event as a JSON line.
	Journal string
}

type API struct {
	Addr        string
	CORSOrigins []string
}

type P2P struct {
	// ListenAddr enables event gossip when set, e.g. /ip4/0.0.0.0/tcp/9000.
	ListenAddr string
	Bootstrap  []string
	// NodeKeySeed derives the node's BLS gossip key (at least 32 bytes).
	NodeKeySeed string
	// Follow is the hex BLS key of a publishing node. When set the node also
	// follows that publisher's event stream as a read replica.
	Follow string
}

type Config struct {
	Node  Node
	API   API
	Venue dex.Config
	P2P   P2P
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:  "data/chain",
			LogFile:  "data/node.log",
			LogLevel: "info",
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Venue: dex.DefaultConfig(),
		P2P: P2P{
			NodeKeySeed: "coboltblu-devnet-node-key-seed-000",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// .env is optional
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.Journal = getEnv("EVENT_JOURNAL", cfg.Node.Journal)
	if v := os.Getenv("IN_MEMORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("IN_MEMORY: %w", err)
		}
		cfg.Node.InMemory = b
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.API.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.Venue.ChainID = id
	}
	if v := os.Getenv("DEPLOYER"); v != "" {
		id, err := types.ParseIdentity(v)
		if err != nil {
			return cfg, fmt.Errorf("DEPLOYER: %w", err)
		}
		cfg.Venue.Deployer = id
	}
	if v := os.Getenv("FEE_ACCOUNT"); v != "" {
		id, err := types.ParseIdentity(v)
		if err != nil {
			return cfg, fmt.Errorf("FEE_ACCOUNT: %w", err)
		}
		cfg.Venue.FeeAccount = id
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		pct, err := strconv.ParseUint(v, 10, 64)
		if err != nil || pct > 100 {
			return cfg, fmt.Errorf("FEE_PERCENT: %q is not a percentage", v)
		}
		cfg.Venue.FeePercent = pct
	}
	if v := os.Getenv("ALLOW_SELF_TRADE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("ALLOW_SELF_TRADE: %w", err)
		}
		cfg.Venue.AllowSelfTrade = b
	}
	if v := os.Getenv("TOKENS"); v != "" {
		tokens, err := ParseTokens(v)
		if err != nil {
			return cfg, fmt.Errorf("TOKENS: %w", err)
		}
		cfg.Venue.Tokens = tokens
	}

	cfg.P2P.ListenAddr = getEnv("P2P_LISTEN", cfg.P2P.ListenAddr)
	if v := os.Getenv("P2P_BOOTSTRAP"); v != "" {
		cfg.P2P.Bootstrap = splitList(v)
	}
	cfg.P2P.NodeKeySeed = getEnv("NODE_KEY_SEED", cfg.P2P.NodeKeySeed)
	if cfg.P2P.ListenAddr != "" && len(cfg.P2P.NodeKeySeed) < 32 {
		return cfg, fmt.Errorf("NODE_KEY_SEED must be at least 32 bytes")
	}
	cfg.P2P.Follow = strings.TrimPrefix(getEnv("P2P_FOLLOW", cfg.P2P.Follow), "0x")
	if cfg.P2P.Follow != "" {
		if cfg.P2P.ListenAddr == "" {
			return cfg, fmt.Errorf("P2P_FOLLOW requires P2P_LISTEN")
		}
		if _, err := cfg.P2P.FollowKey(); err != nil {
			return cfg, fmt.Errorf("P2P_FOLLOW: %w", err)
		}
	}

	return cfg, nil
}

// FollowKey decodes Follow; nil when no publisher is followed.
func (p P2P) FollowKey() (*crypto.BLSPubKey, error) {
	if p.Follow == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(p.Follow)
	if err != nil {
		return nil, err
	}
	return crypto.ParseBLSPubKey(b)
}

// ParseTokens parses "name:symbol:supply" entries separated by commas, e.g.
// "CoboltBlu:BLU:1000000,Cobolt USD:CUSD:1000000".
func ParseTokens(s string) ([]dex.TokenSpec, error) {
	var out []dex.TokenSpec
	for _, entry := range splitList(s) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("entry %q: want name:symbol:supply", entry)
		}
		name, symbol := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if name == "" || symbol == "" {
			return nil, fmt.Errorf("entry %q: empty name or symbol", entry)
		}
		supply, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: supply: %w", entry, err)
		}
		out = append(out, dex.TokenSpec{Name: name, Symbol: symbol, Supply: supply})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tokens")
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
