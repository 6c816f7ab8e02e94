package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for the YAML configuration file. Durations are
// strings ("90s", "2m") and converted after parsing.
type fileConfig struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
		CORSOrigins     []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Store struct {
		Driver  string `yaml:"driver"`
		DSN     string `yaml:"dsn"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"store"`
	Auth struct {
		JWTSecret  string `yaml:"jwt_secret"`
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"auth"`
	Vault struct {
		MasterKey string `yaml:"master_key"`
	} `yaml:"vault"`
	Chain struct {
		RPCURL           string `yaml:"rpc_url"`
		RegistryContract string `yaml:"registry_contract"`
		ChainID          int64  `yaml:"chain_id"`
		ConfirmTimeout   string `yaml:"confirm_timeout"`
		ConfirmInterval  string `yaml:"confirm_interval"`
	} `yaml:"chain"`
	Storage struct {
		GatewayURL   string `yaml:"gateway_url"`
		FetchTimeout string `yaml:"fetch_timeout"`
	} `yaml:"storage"`
	Quote struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quote"`
	Limits struct {
		KeysPerOwnerPerDay *int `yaml:"keys_per_owner_per_day"`
		RequestsPerMinute  *int `yaml:"requests_per_minute"`
	} `yaml:"limits"`
}

// LoadFile reads and parses a YAML configuration file on top of the built-in
// defaults. Environment variables referenced as ${VAR_NAME} in the file are
// expanded before parsing.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(content), &fc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if err := fc.apply(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// apply copies every value set in the file onto cfg, leaving defaults in
// place for anything omitted.
func (fc *fileConfig) apply(cfg *Config) error {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v, key string) error {
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid duration for %s: %q", key, v)
		}
		*dst = d
		return nil
	}

	setString(&cfg.Server.Host, fc.Server.Host)
	if fc.Server.Port != 0 {
		cfg.Server.Port = fc.Server.Port
	}
	if err := setDuration(&cfg.Server.ShutdownTimeout, fc.Server.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
		return err
	}
	if len(fc.Server.CORSOrigins) > 0 {
		cfg.Server.CORSOrigins = fc.Server.CORSOrigins
	}

	setString(&cfg.Store.Driver, fc.Store.Driver)
	setString(&cfg.Store.DSN, fc.Store.DSN)
	setString(&cfg.Store.DataDir, fc.Store.DataDir)

	setString(&cfg.Auth.JWTSecret, fc.Auth.JWTSecret)
	if err := setDuration(&cfg.Auth.SessionTTL, fc.Auth.SessionTTL, "auth.session_ttl"); err != nil {
		return err
	}

	setString(&cfg.Vault.MasterKey, fc.Vault.MasterKey)

	setString(&cfg.Chain.RPCURL, fc.Chain.RPCURL)
	setString(&cfg.Chain.RegistryContract, fc.Chain.RegistryContract)
	if fc.Chain.ChainID != 0 {
		cfg.Chain.ChainID = fc.Chain.ChainID
	}
	if err := setDuration(&cfg.Chain.ConfirmTimeout, fc.Chain.ConfirmTimeout, "chain.confirm_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Chain.ConfirmInterval, fc.Chain.ConfirmInterval, "chain.confirm_interval"); err != nil {
		return err
	}

	setString(&cfg.Storage.GatewayURL, fc.Storage.GatewayURL)
	if err := setDuration(&cfg.Storage.FetchTimeout, fc.Storage.FetchTimeout, "storage.fetch_timeout"); err != nil {
		return err
	}

	if err := setDuration(&cfg.Quote.TTL, fc.Quote.TTL, "quote.ttl"); err != nil {
		return err
	}

	if fc.Limits.KeysPerOwnerPerDay != nil {
		cfg.Limits.KeysPerOwnerPerDay = *fc.Limits.KeysPerOwnerPerDay
	}
	if fc.Limits.RequestsPerMinute != nil {
		cfg.Limits.RequestsPerMinute = *fc.Limits.RequestsPerMinute
	}

	return nil
}
