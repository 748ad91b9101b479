package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/api"
	"github.com/flowmine/engine/internal/config"
	"github.com/flowmine/engine/internal/enrich"
	"github.com/flowmine/engine/internal/extract"
	"github.com/flowmine/engine/internal/orchestrator"
	"github.com/flowmine/engine/internal/seed"
	"github.com/flowmine/engine/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbopen.Open(cfg.StorePath, dbopen.WithMkdirAll())
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(db); err != nil {
		logger.Error("migration failed", "error", err)
		db.Close()
		os.Exit(3)
	}
	db.Close()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	seedIfEmpty(ctx, st, logger)

	extractor := extract.NewEngine(st)
	if err := extractor.Reload(ctx); err != nil {
		logger.Error("load extraction rules", "error", err)
		os.Exit(1)
	}

	enrichQ, pool := buildEnrichment(cfg, st, logger)
	if pool != nil {
		go pool.Run(ctx)
	}

	maxGap := time.Duration(cfg.MaxGapSeconds) * time.Second
	afkMin := time.Duration(cfg.AFKGapSeconds) * time.Second

	orch := orchestrator.New(st, extractor, enrichQ, maxGap, afkMin, 4, orchestrator.WithLogger(logger))

	a := api.New(api.API{
		Store:          st,
		Extractor:      extractor,
		EnrichQueue:    enrichQ,
		Orchestrator:   orch,
		Logger:         logger,
		MaxGap:         maxGap,
		AFKMinDuration: afkMin,
	})

	requestTimeout := time.Duration(cfg.HTTPRequestTimeout) * time.Second
	router := api.NewRouter(a, requestTimeout)

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Error("listen", "addr", cfg.HTTPAddr, "error", err)
		os.Exit(2)
	}

	httpServer := &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", cfg.HTTPAddr)
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// seedIfEmpty loads the default ObjectType/ExtractionRule set on first
// run, per SPEC_FULL.md §4.6. A failure here is logged but not fatal:
// the server can still run against an empty type registry.
func seedIfEmpty(ctx context.Context, st *store.Store, logger *slog.Logger) {
	empty, err := seed.IsEmpty(ctx, st)
	if err != nil {
		logger.Error("check seed state", "error", err)
		return
	}
	if !empty {
		return
	}
	d, err := seed.Default()
	if err != nil {
		logger.Error("parse default seed", "error", err)
		return
	}
	if err := seed.Apply(ctx, st, d); err != nil {
		logger.Error("apply default seed", "error", err)
		return
	}
	logger.Info("seeded default object types and extraction rules", "object_types", len(d.ObjectTypes), "extraction_rules", len(d.ExtractionRules))
}

// buildEnrichment wires the LLM enrichment queue and worker pool when a
// primary provider is configured. Without LLM_API_KEY the engine runs
// rule-extraction only, per spec.md §4.3's "enrichment is best-effort."
func buildEnrichment(cfg *config.Config, st *store.Store, logger *slog.Logger) (*enrich.Queue, *enrich.Pool) {
	if cfg.LLMAPIKey == "" {
		return nil, nil
	}

	queue := enrich.NewQueue(cfg.LLMQueueCapacity)
	cache := enrich.NewFingerprintCache(cfg.LLMCacheSize, 0)
	breaker := enrich.NewProviderBreaker()

	primary := enrich.NewAnthropicProvider(cfg.LLMAPIKey, cfg.LLMModel)
	var fallback enrich.Provider
	if cfg.LLMFallbackProviderURL != "" {
		fallback = enrich.NewHTTPProvider(cfg.LLMFallbackProviderURL, cfg.LLMFallbackAPIKey, cfg.LLMModel, time.Duration(cfg.LLMTimeoutSeconds)*time.Second)
	}

	pool := enrich.NewPool(queue, cache, breaker, primary, fallback, st, cfg.LLMWorkers, time.Duration(cfg.LLMTimeoutSeconds)*time.Second, enrich.WithLogger(logger))
	return queue, pool
}
