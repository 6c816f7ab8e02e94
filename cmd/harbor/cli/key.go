package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys used to authenticate against the Harbor API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// lookupUser resolves an account by email.
func lookupUser(store *config.Store, email string) (int64, error) {
	user, err := store.GetUserByEmail(cmdCtx(), email)
	if err != nil {
		return 0, fmt.Errorf("account %q not found", email)
	}
	return user.ID, nil
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		email       string
		name        string
		permissions []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key with its own custodial wallet",
		Long: "Generate a new API key bound to a freshly generated wallet. " +
			"The raw key is shown once and cannot be retrieved again.",
		Example: `  harbor key create --email owner@example.com --name "CI pipeline"
  harbor key create --email owner@example.com --name bot --permission datasets:read`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(email, name, permissions)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Owner account email (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "Permission to grant (repeatable; default datasets:read, datasets:purchase)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(email, name string, permissions []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := openVault()
	if err != nil {
		return err
	}

	userID, err := lookupUser(store, email)
	if err != nil {
		return err
	}

	cfg := config.FromViper()
	keySvc := service.NewAPIKeyService(store, v, cfg.Limits.KeysPerOwnerPerDay)
	key, rawKey, err := keySvc.Issue(cmdCtx(), userID, name, permissions, nil)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", rawKey)
	fmt.Printf("  Wallet: %s\n", key.WalletAddress)
	fmt.Printf("  Owner:  %s\n", email)
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		email      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List an account's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(email, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Owner account email (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runKeyList(email string, jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	userID, err := lookupUser(store, email)
	if err != nil {
		return err
	}

	keys, err := store.ListAPIKeysByUser(cmdCtx(), userID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		Prefix string `json:"prefix"`
		Name   string `json:"name"`
		Wallet string `json:"wallet"`
	}

	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		rows[i] = keyRow{
			Prefix: k.KeyPrefix,
			Name:   k.Name,
			Wallet: k.WalletAddress,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys for this account. Use 'harbor key create' to create one.")
		return nil
	}

	fmt.Printf("%-16s %-24s %-44s\n", "PREFIX", "NAME", "WALLET")
	fmt.Printf("%-16s %-24s %-44s\n", "------", "----", "------")
	for _, k := range rows {
		fmt.Printf("%-16s %-24s %-44s\n", k.Prefix, k.Name, k.Wallet)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Delete an API key and its wallet material, preventing any further use of that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(email, args[0])
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Owner account email (required)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runKeyRevoke(email, prefix string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	userID, err := lookupUser(store, email)
	if err != nil {
		return err
	}

	keys, err := store.ListAPIKeysByUser(cmdCtx(), userID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	for i := range keys {
		if strings.HasPrefix(keys[i].KeyPrefix, prefix) {
			if err := store.DeleteAPIKey(cmdCtx(), keys[i].ID, userID); err != nil {
				return fmt.Errorf("revoke api key: %w", err)
			}
			fmt.Printf("Revoked API key with prefix %q\n", keys[i].KeyPrefix)
			return nil
		}
	}

	return fmt.Errorf("no API key found with prefix %q", prefix)
}
