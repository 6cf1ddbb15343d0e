package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Network != "mainnet" {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval)
	}
	if cfg.MaxWallets != 20 {
		t.Errorf("max wallets = %d", cfg.MaxWallets)
	}
	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("mongo uri = %s", cfg.MongoURI)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("NETWORK", "signet")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("NETWORK", "regtest")
	t.Setenv("POLL_INTERVAL_MS", "5000")
	t.Setenv("ADMIN_CHAT_ID", "987654321")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Network != "regtest" {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval)
	}
	if cfg.AdminChatID != 987654321 {
		t.Errorf("admin chat = %d", cfg.AdminChatID)
	}
}
