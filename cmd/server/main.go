// Command server runs the dealer chat backend: the HTTP API that receives
// inbound customer messages from channel gateways, generates replies through
// the configured LLM providers, and settles usage against tenant wallets.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velora-ai/dealer-chat-backend/internal/config"
	"github.com/velora-ai/dealer-chat-backend/internal/gateway"
	httpapi "github.com/velora-ai/dealer-chat-backend/internal/http"
	"github.com/velora-ai/dealer-chat-backend/internal/llm"
	"github.com/velora-ai/dealer-chat-backend/internal/observability"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
	"github.com/velora-ai/dealer-chat-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Ledger consistency sweep: a usage record that never got its wallet
	// transaction means a reply was dispatched without being settled.
	cutoff := time.Now().UTC().Add(-cfg.Billing.UnlinkedUsageGrace)
	if stale, err := repo.UnlinkedUsageRecords(ctx, db, cutoff); err != nil {
		log.Warn().Err(err).Msg("unlinked usage sweep failed")
	} else if len(stale) > 0 {
		log.Error().
			Int("count", len(stale)).
			Str("oldest", stale[0].CreatedAt.Format(time.RFC3339)).
			Msg("usage records without wallet transactions, ledger needs reconciliation")
	}

	// LLM routing: secondary is attempted first when a tenant pins it,
	// primary is always the terminal fallback.
	primary := llm.NewOpenAIProvider(llm.ProviderPrimary, cfg.LLM.Primary)
	secondary := llm.NewOpenAIProvider(llm.ProviderSecondary, cfg.LLM.Secondary)
	router := llm.NewRouter(primary, secondary, cfg.LLM.Timeout)
	embedder := llm.NewOpenAIEmbedder(cfg.LLM.Primary, cfg.LLM.EmbeddingModel)

	var sender gateway.Sender
	if cfg.Gateway.BaseURL != "" {
		sender = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	} else {
		log.Warn().Msg("no channel gateway configured, replies are persisted but not dispatched")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, router, embedder, sender, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
