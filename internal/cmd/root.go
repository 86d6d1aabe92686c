package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/noot-app/petfood-nutrition-server/internal/auth"
	"github.com/noot-app/petfood-nutrition-server/internal/config"
	"github.com/noot-app/petfood-nutrition-server/internal/dataset"
	"github.com/noot-app/petfood-nutrition-server/internal/mcpgo"
	"github.com/noot-app/petfood-nutrition-server/internal/server"
	"github.com/noot-app/petfood-nutrition-server/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "petfood-nutrition-server",
		Short: "Pet food label reader and nutrition server",
		Long: `Pet Food Nutrition Server reads the guaranteed analysis of pet food
labels from OCR text, checks the values against expected ranges for wet and
dry food, computes carbohydrates and calories, and reconciles scans with the
Open Pet Food Facts catalog.

The server operates in four modes:

1. HTTP Mode (default): MCP over HTTP plus the REST API
   - MCP endpoint on PORT at /mcp
   - REST and websocket scan API on API_PORT under /v1
   - Bearer token required (except /health)

2. STDIO Mode (--stdio): MCP over stdio pipes for local clients
   - No authentication required

3. API Mode (--api): REST and websocket API only

4. Fetch Database Mode (--fetch-db): Download the catalog export and exit

Available MCP Tools:
- parse_nutrition_label: Extract and check nutrients from label text
- calculate_carbs: Carbohydrates, tier and calories from five nutrients
- lookup_product_by_barcode: Local products first, then the catalog
- search_products_by_brand_and_name: Catalog search
- reconcile_label_with_product: Merge label text with the product record
- start_scan_session / add_scan_frame / finish_scan_session: Multi-frame scans

Use the AUTH_TOKEN environment variable to set the bearer token.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fetchDB, _ := cmd.Flags().GetBool("fetch-db"); fetchDB {
				return runFetchDBMode(cmd)
			}
			if stdio, _ := cmd.Flags().GetBool("stdio"); stdio {
				return runStdioMode(cmd)
			}
			apiOnly, _ := cmd.Flags().GetBool("api")
			return runHTTPMode(cmd, apiOnly)
		},
	}

	cmd.Flags().Bool("stdio", false, "Run MCP over stdio for local clients (default: HTTP mode for remote deployment)")
	cmd.Flags().Bool("api", false, "Serve only the REST and websocket API")
	cmd.Flags().Bool("fetch-db", false, "Fetch the catalog export and exit")
	cmd.MarkFlagsMutuallyExclusive("stdio", "api", "fetch-db")

	cmd.AddCommand(newParseCmd(), newCarbsCmd(), newImportCmd(), newVersionCmd())
	return cmd
}

// runFetchDBMode fetches the catalog export and exits
func runFetchDBMode(cmd *cobra.Command) error {
	logger := config.NewTextLogger(os.Stdout)
	cfg := config.Load()

	logger.Info("🗄️  Starting catalog fetch",
		"mode", "fetch-db",
		"url", cfg.DatasetURL,
		"target_dir", filepath.Dir(cfg.DatasetPath))

	dataManager := dataset.NewManager(cfg, logger)
	if err := dataManager.EnsureDataset(cmd.Context()); err != nil {
		logger.Error("Failed to fetch dataset", "error", err)
		return err
	}
	if err := dataManager.Verify(); err != nil {
		logger.Error("Dataset verification failed", "error", err)
		return err
	}

	logger.Info("✅ Catalog fetch completed successfully",
		"dataset_path", cfg.DatasetPath,
		"metadata_path", cfg.MetadataPath)
	return nil
}

func initialize(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Runtime, error) {
	rt, err := server.NewInitializer(cfg, logger).Initialize(ctx)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		return nil, err
	}
	rt.StartBackground(ctx)
	return rt, nil
}

// runStdioMode runs the MCP server over stdio
func runStdioMode(cmd *cobra.Command) error {
	cfg := config.Load()
	// stderr keeps stdout free for the MCP protocol
	logger := config.NewLogger(cfg, true)

	logger.Info("🔌 Starting Pet Food Nutrition Server in STDIO mode",
		"mode", "stdio",
		"version", version.Tag(),
		"auth", "not required for stdio mode")

	rt, err := initialize(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	mcpSrv := mcpgo.NewServer(rt, auth.NewBearerTokenAuth(cfg.AuthToken), logger)
	return mcpSrv.ServeStdio()
}

// runHTTPMode serves MCP and the REST API until interrupted
func runHTTPMode(cmd *cobra.Command, apiOnly bool) error {
	cfg := config.Load()
	logger := config.NewLogger(cfg, false)

	logger.Info("🌐 Starting Pet Food Nutrition Server in HTTP mode",
		"mode", "http",
		"version", version.Tag(),
		"mcp_port", cfg.Port,
		"api_port", cfg.APIPort,
		"api_only", apiOnly)

	rt, err := initialize(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)
	g, ctx := errgroup.WithContext(cmd.Context())

	api := server.New(rt, authenticator, config.Component(logger, "api"))
	g.Go(func() error { return api.ListenAndServe(ctx, ":"+cfg.APIPort) })

	if !apiOnly {
		mcpSrv := mcpgo.NewServer(rt, authenticator, config.Component(logger, "mcp"))
		g.Go(func() error { return mcpSrv.ServeHTTP(ctx, ":"+cfg.Port) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return err
	}
	logger.Info("👋 Server stopped")
	return nil
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// Run is the main entry point for the CLI application
func Run() error {
	if err := Execute(); err != nil {
		return fmt.Errorf("petfood-nutrition-server: %w", err)
	}
	return nil
}
