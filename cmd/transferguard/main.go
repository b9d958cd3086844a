package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/config"
	"github.com/kailas-cloud/transferguard/internal/db"
	"github.com/kailas-cloud/transferguard/internal/db/memory"
	dbRedis "github.com/kailas-cloud/transferguard/internal/db/redis"
	"github.com/kailas-cloud/transferguard/internal/domain"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/extract"
	logpkg "github.com/kailas-cloud/transferguard/internal/logger"
	"github.com/kailas-cloud/transferguard/internal/metrics"
	documentrepo "github.com/kailas-cloud/transferguard/internal/repository/document"
	"github.com/kailas-cloud/transferguard/internal/repository/embcache"
	"github.com/kailas-cloud/transferguard/internal/repository/ledger"
	rulerepo "github.com/kailas-cloud/transferguard/internal/repository/rule"
	"github.com/kailas-cloud/transferguard/internal/repository/vector"
	chiTransport "github.com/kailas-cloud/transferguard/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/transferguard/internal/transport/openai"
	"github.com/kailas-cloud/transferguard/internal/usecase/chunking"
	"github.com/kailas-cloud/transferguard/internal/usecase/compliance"
	embeddinguc "github.com/kailas-cloud/transferguard/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/transferguard/internal/usecase/health"
	"github.com/kailas-cloud/transferguard/internal/usecase/ingestion"
	"github.com/kailas-cloud/transferguard/internal/usecase/transfer"
	"github.com/kailas-cloud/transferguard/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting transferguard",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("ledger_path", cfg.Ledger.Path),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	metrics.Register()

	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	ledgerStore, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open ledger", zap.Error(err))
	}
	defer func() { _ = ledgerStore.Close() }()

	embedder := buildEmbedder(cfg.Embedding, store, logger)

	index, err := vector.New(cfg.Embedding.Dimensions, store, logger,
		vector.WithSnapshotKey(domain.KeyPrefix+cfg.Index.SnapshotKey))
	if err != nil {
		logger.Fatal("Failed to create vector index", zap.Error(err))
	}
	defer index.Close()

	docRepo := documentrepo.New(store)
	ruleRepo := rulerepo.New(store)

	pdf := extract.NewPDF(extract.ExecRunner{})
	if err := pdf.CheckAvailable(); err != nil {
		logger.Warn("PDF extraction unavailable, .pdf uploads will fail", zap.Error(err))
	}
	extractor := compliance.NewExtractor()
	statementChunker := chunking.New(
		chunking.WithMaxChars(cfg.Chunking.StatementMaxChars), chunking.WithStatements())

	textRegistry := extract.New(extract.WithExtractor(".pdf", pdf.Extract))

	ingestSvc := ingestion.New(
		docRepo, ruleRepo, index, textRegistry,
		chunking.New(chunking.WithMaxChars(cfg.Chunking.MaxChars), chunking.WithOverlap(cfg.Chunking.Overlap)),
		extractor, embedder, logger,
		ingestion.WithPersistOnWrite(cfg.Index.ShouldPersistOnWrite()),
		ingestion.WithTypeChunker(domdoc.TypeRules, statementChunker),
		ingestion.WithTypeChunker(domdoc.TypeSanctions, statementChunker),
	)

	// Restore the snapshot before reconciling so interrupted documents are judged
	// against what the index actually holds.
	if err := ingestSvc.Restore(ctx); err != nil {
		logger.Warn("Index restore failed, starting empty", zap.Error(err))
	}
	if n, err := ingestSvc.Reconcile(ctx); err != nil {
		logger.Error("Reconcile failed", zap.Error(err))
	} else if n > 0 {
		logger.Warn("Interrupted ingestions marked failed", zap.Int("documents", n))
	}

	resolver := compliance.NewResolver(index, embedder, docRepo, docRepo, ruleRepo, extractor,
		compliance.ResolverConfig{
			TopK:                 cfg.Compliance.TopK,
			Threshold:            cfg.Compliance.SimilarityThreshold,
			BlacklistedCountries: cfg.Compliance.BlacklistedCountries,
			MatchBeneficiaryName: cfg.Compliance.MatchBeneficiaryName,
		}, logger)

	transferSvc := transfer.New(ledgerStore, resolver, transfer.Config{
		PerTransactionLimit: decimal.NewFromFloat(cfg.Compliance.DefaultPerTransactionLimit),
		DailyLimit:          decimal.NewFromFloat(cfg.Compliance.DefaultDailyLimit),
	}, logger)

	healthSvc := healthuc.New(store, ledgerStore, index, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(ingestSvc, transferSvc, ledgerStore, healthSvc, logger,
		chiTransport.WithFormatChecker(textRegistry))
	router := chiTransport.NewRouter(server, cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := index.Persist(shutdownCtx); err != nil {
		logger.Error("Final index snapshot failed", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore picks the KV backend. Redis and Valkey share the rueidis client.
func openStore(cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("%s store: %w", cfg.Driver, err)
		}
		return s, nil
	case config.DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildEmbedder assembles the decorator chain: provider -> cache -> instrumented.
func buildEmbedder(cfg config.EmbeddingConfig, store db.Store, logger *zap.Logger) domain.Embedder {
	var base domain.Embedder
	model := cfg.Model
	switch cfg.Provider {
	case config.ProviderOpenAI:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Logger:     logger,
		})
	default:
		base = embeddinguc.NewHashEmbedder(cfg.Dimensions)
		if model == "" {
			model = "hash"
		}
	}

	embedder := base
	if cfg.Cache {
		namespace := fmt.Sprintf("%s:%s:%d", cfg.Provider, model, cfg.Dimensions)
		embedder = embcache.New(base, store, namespace, metrics.EmbeddingCacheTotal, logger)
	}

	logger.Info("Embedder created",
		zap.String("provider", cfg.Provider),
		zap.String("model", model),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Bool("cache", cfg.Cache),
	)
	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, model, cfg.Dimensions, logger)
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
