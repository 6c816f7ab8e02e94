package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/fulfillment"
	"github.com/treenteq/harbor/internal/ledger"
	"github.com/treenteq/harbor/internal/quote"
	"github.com/treenteq/harbor/internal/server"
	"github.com/treenteq/harbor/internal/service"
	"github.com/treenteq/harbor/internal/storage"
)

const banner = `
 _  _   _   ___ ___  ___  ___
| || | /_\ | _ \ _ )/ _ \| _ \
| __ |/ _ \|   / _ \ (_) |   /
|_||_/_/ \_\_|_\___/\___/|_|_\
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Harbor API server",
		Long:  "Start the HTTP server that issues API keys, quotes datasets, and fulfills purchases.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg := config.FromViper()
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := config.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer store.Close()
	logger.Info("record store initialized", "driver", cfg.Store.Driver)

	v, err := openVault()
	if err != nil {
		return err
	}

	registry := ledger.NewRegistry(cfg.Chain.RPCURL, cfg.Chain.RegistryContract, ledger.Options{
		ChainID:         cfg.Chain.ChainID,
		ConfirmTimeout:  cfg.Chain.ConfirmTimeout,
		ConfirmInterval: cfg.Chain.ConfirmInterval,
	})
	logger.Info("ledger registry initialized",
		"rpc_url", cfg.Chain.RPCURL,
		"contract", cfg.Chain.RegistryContract,
		"chain_id", cfg.Chain.ChainID)

	gateway := storage.NewGateway(cfg.Storage.GatewayURL, cfg.Storage.FetchTimeout)
	logger.Info("storage gateway initialized", "url", cfg.Storage.GatewayURL)

	authSvc := service.NewAuthService(store, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	keySvc := service.NewAPIKeyService(store, v, cfg.Limits.KeysPerOwnerPerDay)

	quotes := quote.NewCache(quote.WithTTL(cfg.Quote.TTL))
	engine := fulfillment.NewEngine(registry, gateway, keySvc, quotes)

	hasUser, err := store.HasAnyUser(cmdCtx())
	if err != nil {
		logger.Warn("failed to check for accounts", "error", err)
	}
	if !hasUser {
		logger.Warn("no account found - run: harbor user create")
	}

	srv := server.New(cfg.Server, cfg.Limits, server.Deps{
		Store:   store,
		Auth:    authSvc,
		Keys:    keySvc,
		Catalog: registry,
		Engine:  engine,
		Quotes:  quotes,
		Chain:   registry,
	}, logger)

	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
