// Package config holds Harbor's process configuration and its relational
// record store (users, API keys, usage audit log).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration, loaded once at startup. Missing
// required values are a fatal startup error, never a per-request one.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Vault   VaultConfig   `yaml:"vault"`
	Chain   ChainConfig   `yaml:"chain"`
	Storage StorageConfig `yaml:"storage"`
	Quote   QuoteConfig   `yaml:"quote"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// StoreConfig selects the record store backend. Driver is one of "sqlite",
// "postgres", or "mysql"; DSN is ignored for sqlite, which lives in DataDir.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// VaultConfig holds the master encryption key for custodial wallet material.
type VaultConfig struct {
	MasterKey string `yaml:"master_key"` // hex-encoded 32 bytes
}

// ChainConfig holds the ledger RPC endpoint and dataset registry contract.
type ChainConfig struct {
	RPCURL           string        `yaml:"rpc_url"`
	RegistryContract string        `yaml:"registry_contract"`
	ChainID          int64         `yaml:"chain_id"`
	ConfirmTimeout   time.Duration `yaml:"confirm_timeout"`
	ConfirmInterval  time.Duration `yaml:"confirm_interval"`
}

// StorageConfig holds the content-addressed storage gateway settings.
type StorageConfig struct {
	GatewayURL   string        `yaml:"gateway_url"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// QuoteConfig holds quote cache settings.
type QuoteConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LimitsConfig holds rate limit settings.
type LimitsConfig struct {
	KeysPerOwnerPerDay int `yaml:"keys_per_owner_per_day"`
	RequestsPerMinute  int `yaml:"requests_per_minute"`
}

// Default returns a Config with production defaults for everything that has
// a sensible default. Secrets and endpoints stay empty and must be supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Auth: AuthConfig{
			SessionTTL: 24 * time.Hour,
		},
		Chain: ChainConfig{
			ChainID:         1,
			ConfirmTimeout:  90 * time.Second,
			ConfirmInterval: 2 * time.Second,
		},
		Storage: StorageConfig{
			FetchTimeout: 30 * time.Second,
		},
		Quote: QuoteConfig{
			TTL: 10 * time.Second,
		},
		Limits: LimitsConfig{
			KeysPerOwnerPerDay: 5,
			RequestsPerMinute:  120,
		},
	}
}

// FromViper builds a Config from the process-wide viper instance, applying
// defaults for anything unset.
func FromViper() Config {
	cfg := Default()

	setString := func(dst *string, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	setInt := func(dst *int, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetDuration(key)
		}
	}

	setString(&cfg.Server.Host, "server.host")
	setInt(&cfg.Server.Port, "server.port")
	setDuration(&cfg.Server.ShutdownTimeout, "server.shutdown_timeout")
	if viper.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = viper.GetStringSlice("server.cors_origins")
	}

	setString(&cfg.Store.Driver, "store.driver")
	setString(&cfg.Store.DSN, "store.dsn")
	setString(&cfg.Store.DataDir, "store.data_dir")

	setString(&cfg.Auth.JWTSecret, "auth.jwt_secret")
	setDuration(&cfg.Auth.SessionTTL, "auth.session_ttl")

	setString(&cfg.Vault.MasterKey, "vault.master_key")

	setString(&cfg.Chain.RPCURL, "chain.rpc_url")
	setString(&cfg.Chain.RegistryContract, "chain.registry_contract")
	if viper.IsSet("chain.chain_id") {
		cfg.Chain.ChainID = viper.GetInt64("chain.chain_id")
	}
	setDuration(&cfg.Chain.ConfirmTimeout, "chain.confirm_timeout")
	setDuration(&cfg.Chain.ConfirmInterval, "chain.confirm_interval")

	setString(&cfg.Storage.GatewayURL, "storage.gateway_url")
	setDuration(&cfg.Storage.FetchTimeout, "storage.fetch_timeout")

	setDuration(&cfg.Quote.TTL, "quote.ttl")

	setInt(&cfg.Limits.KeysPerOwnerPerDay, "limits.keys_per_owner_per_day")
	setInt(&cfg.Limits.RequestsPerMinute, "limits.requests_per_minute")

	return cfg
}

// Validate checks everything the server cannot run without. It returns the
// first missing piece so operators can fix configuration one clear error at
// a time.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != "sqlite" && c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for driver %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	if c.Vault.MasterKey == "" {
		return fmt.Errorf("config: vault.master_key is required")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if c.Chain.RegistryContract == "" {
		return fmt.Errorf("config: chain.registry_contract is required")
	}
	if c.Chain.ConfirmTimeout <= 0 {
		return fmt.Errorf("config: chain.confirm_timeout must be positive")
	}
	if c.Storage.GatewayURL == "" {
		return fmt.Errorf("config: storage.gateway_url is required")
	}
	if c.Quote.TTL <= 0 {
		return fmt.Errorf("config: quote.ttl must be positive")
	}
	return nil
}
