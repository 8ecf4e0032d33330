// Package config loads node configuration from MAMMOTH_* environment
// variables, optionally overlaid on a YAML file named by MAMMOTH_CONFIG.
// Environment variables win over the file; the file wins over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`

	DataDir     string `yaml:"dataDir"`
	StateFile   string `yaml:"stateFile"`
	DatabaseURL string `yaml:"databaseUrl"`

	ClaimCooldownSec    int `yaml:"claimCooldownSec"`
	PeerSyncIntervalSec int `yaml:"peerSyncIntervalSec"`
	PeerSyncTimeoutMs   int `yaml:"peerSyncTimeoutMs"`
	MaxEventHistory     int `yaml:"maxEventHistory"`

	EthRPCURL       string `yaml:"ethRpcUrl"`
	TreasuryAddress string `yaml:"treasuryAddress"`

	PlatformTaxBps        int     `yaml:"platformTaxBps"`
	PlatformTaxLabel      string  `yaml:"platformTaxLabel"`
	BarterDefaultDueHours int     `yaml:"barterDefaultDueHours"`
	MaxRunBaseFee         float64 `yaml:"maxRunBaseFee"`
}

// Defaults mirrors the original daemon's built-in values.
func Defaults() *Config {
	return &Config{
		Host:                  "127.0.0.1",
		Port:                  7340,
		Token:                 "local-dev-token",
		DataDir:               "data",
		ClaimCooldownSec:      86400,
		PeerSyncIntervalSec:   20,
		PeerSyncTimeoutMs:     7000,
		MaxEventHistory:       5000,
		PlatformTaxBps:        250,
		PlatformTaxLabel:      "mammoth_protocol",
		BarterDefaultDueHours: 72,
		MaxRunBaseFee:         100000,
	}
}

// Load builds the effective configuration.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("MAMMOTH_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	stringVar(&cfg.Host, "MAMMOTH_NODE_HOST")
	intVar(&cfg.Port, "MAMMOTH_NODE_PORT")
	stringVar(&cfg.Token, "MAMMOTH_NODE_TOKEN")
	stringVar(&cfg.DataDir, "MAMMOTH_DATA_DIR")
	stringVar(&cfg.StateFile, "MAMMOTH_STATE_FILE")
	stringVar(&cfg.DatabaseURL, "MAMMOTH_DATABASE_URL")
	intVar(&cfg.ClaimCooldownSec, "MAMMOTH_CLAIM_COOLDOWN_SEC")
	intVar(&cfg.PeerSyncIntervalSec, "MAMMOTH_PEER_SYNC_INTERVAL_SEC")
	intVar(&cfg.PeerSyncTimeoutMs, "MAMMOTH_PEER_SYNC_TIMEOUT_MS")
	intVar(&cfg.MaxEventHistory, "MAMMOTH_MAX_EVENT_HISTORY")
	stringVar(&cfg.EthRPCURL, "MAMMOTH_ETH_RPC_URL")
	stringVar(&cfg.TreasuryAddress, "MAMMOTH_NODE_ETH_TREASURY_ADDRESS")
	intVar(&cfg.PlatformTaxBps, "MAMMOTH_PLATFORM_TAX_BPS")
	stringVar(&cfg.PlatformTaxLabel, "MAMMOTH_PLATFORM_TAX_LABEL")
	intVar(&cfg.BarterDefaultDueHours, "MAMMOTH_BARTER_DEFAULT_DUE_HOURS")
	floatVar(&cfg.MaxRunBaseFee, "MAMMOTH_MAX_RUN_BASE_FEE")

	cfg.EthRPCURL = strings.TrimSpace(cfg.EthRPCURL)
	cfg.TreasuryAddress = strings.ToLower(strings.TrimSpace(cfg.TreasuryAddress))
	if cfg.PeerSyncIntervalSec < 5 {
		cfg.PeerSyncIntervalSec = 5
	}
	if cfg.PeerSyncTimeoutMs < 1000 {
		cfg.PeerSyncTimeoutMs = 1000
	}
	if cfg.BarterDefaultDueHours < 1 {
		cfg.BarterDefaultDueHours = 1
	}
	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(cfg.DataDir, "state.json")
	}
	return cfg, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func stringVar(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func intVar(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func floatVar(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}
