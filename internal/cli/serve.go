package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimguard/internal/api"
	"github.com/ppiankov/claimguard/internal/cache"
	"github.com/ppiankov/claimguard/internal/engine"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes the engine over HTTP:

  POST /v1/predict   {"claim_id": "...", "preset": "strict", ...}
  POST /v1/correct   {"claim_id": "..."}
  GET  /v1/presets
  GET  /health

Example:
  claimguard serve --addr :8000
  claimguard serve --cache-ttl 5m`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().Duration("cache-ttl", 0, "cache successful predictions for this long (0 disables)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.cache_ttl", serveCmd.Flags().Lookup("cache-ttl"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	eng, closer, err := engine.FromConfig(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	var responses cache.Cache
	if cfg.Server.CacheTTL > 0 {
		responses = cache.NewMemoryCache(cfg.Server.CacheTTL, 0)
	}
	srv := api.NewServer(eng, responses, log).WithCacheTTL(cfg.Server.CacheTTL)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("catalog_version", eng.CatalogVersion()).Info("Correction catalog loaded")
	return api.ListenAndServe(ctx, cfg.Server, srv.Handler(), log)
}
