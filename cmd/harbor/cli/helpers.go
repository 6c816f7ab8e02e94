package cli

import (
	"context"
	"fmt"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/vault"
)

// cmdCtx returns a background context for CLI initialization.
func cmdCtx() context.Context {
	return context.Background()
}

// openStore opens the record store described by the loaded configuration.
func openStore() (*config.Store, error) {
	cfg := config.FromViper()
	store, err := config.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return store, nil
}

// openVault builds the wallet vault from the configured master key.
func openVault() (*vault.Vault, error) {
	cfg := config.FromViper()
	if cfg.Vault.MasterKey == "" {
		return nil, fmt.Errorf("vault.master_key is not configured (set HARBOR_VAULT_MASTER_KEY or harbor.yaml)")
	}
	v, err := vault.New(cfg.Vault.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return v, nil
}
