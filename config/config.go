// Package config reads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is everything the process needs at startup.
type Config struct {
	TelegramToken string
	BotPassword   string // legacy auth gate; empty disables it
	RPCURL        string
	Network       string // mainnet, testnet, regtest
	PollInterval  time.Duration
	MaxWallets    int
	MempoolURL    string // block-explorer base for tx links, optional
	AdminChatID   int64
	MongoURI      string
	IndexerURL    string
	DataDir       string
	MetricsAddr   string
}

// Load reads the environment. Only the Telegram token is strictly
// required; everything else has a workable default.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		BotPassword:   os.Getenv("BOT_PASSWORD"),
		RPCURL:        getEnvOrDefault("RPC_URL", "http://localhost:9001"),
		Network:       getEnvOrDefault("NETWORK", "mainnet"),
		PollInterval:  time.Duration(getEnvIntOrDefault("POLL_INTERVAL_MS", 30000)) * time.Millisecond,
		MaxWallets:    getEnvIntOrDefault("MAX_WALLETS_PER_USER", 20),
		MempoolURL:    strings.TrimSuffix(os.Getenv("MEMPOOL_URL"), "/"),
		MongoURI:      getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		IndexerURL:    getEnvOrDefault("INDEXER_URL", "http://localhost:3001"),
		DataDir:       getEnvOrDefault("DATA_DIR", "./data"),
		MetricsAddr:   getEnvOrDefault("METRICS_ADDR", ":9090"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is required")
	}
	switch cfg.Network {
	case "mainnet", "testnet", "regtest":
	default:
		return nil, fmt.Errorf("NETWORK must be mainnet, testnet or regtest, got %q", cfg.Network)
	}

	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_CHAT_ID: %w", err)
		}
		cfg.AdminChatID = id
	}

	return cfg, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
