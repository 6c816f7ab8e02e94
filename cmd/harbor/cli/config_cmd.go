package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/treenteq/harbor/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Harbor configuration",
		Long:  "Initialize a default configuration file, validate one, or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default harbor.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

const defaultConfigTemplate = `# Harbor Configuration

server:
  host: 0.0.0.0
  port: 8080
  shutdown_timeout: 30s
  cors_origins:
    - "*"

# Record store (accounts, API keys, usage audit log)
store:
  driver: sqlite        # sqlite, postgres, or mysql
  dsn: ""               # required for postgres/mysql
  data_dir: ""          # sqlite file location (default: in-memory)

# Authentication
auth:
  jwt_secret: ""        # set via HARBOR_AUTH_JWT_SECRET env var
  session_ttl: 24h

# Wallet vault
vault:
  master_key: ""        # hex-encoded 32 bytes; set via HARBOR_VAULT_MASTER_KEY

# Ledger
chain:
  rpc_url: ""           # EVM JSON-RPC endpoint
  registry_contract: "" # dataset registry contract address
  chain_id: 1
  confirm_timeout: 90s
  confirm_interval: 2s

# Content-addressed storage gateway
storage:
  gateway_url: ""       # e.g. https://ipfs.io
  fetch_timeout: 30s

# Quotes
quote:
  ttl: 10s

# Rate limits
limits:
  keys_per_owner_per_day: 5
  requests_per_minute: 120
`

func runConfigInit(force bool) error {
	path := "harbor.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Fill in the secrets and endpoints, then run 'harbor serve'.")
	return nil
}

// ---------- config validate ----------

func newConfigValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long:  "Parse a harbor.yaml file (default ./harbor.yaml) and check for missing required values.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "harbor.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			return runConfigValidate(path)
		},
	}

	return cmd
}

func runConfigValidate(path string) error {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", path)
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	initConfig()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("No configuration settings loaded.")
		fmt.Println("Run 'harbor config init' to create a default configuration file.")
		return nil
	}

	for key, value := range settings {
		fmt.Printf("  %s: %v\n", key, value)
	}

	return nil
}
