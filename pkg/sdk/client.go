package transferguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/db"
	"github.com/kailas-cloud/transferguard/internal/db/memory"
	dbRedis "github.com/kailas-cloud/transferguard/internal/db/redis"
	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/account"
	"github.com/kailas-cloud/transferguard/internal/domain/chunk"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	"github.com/kailas-cloud/transferguard/internal/extract"
	documentrepo "github.com/kailas-cloud/transferguard/internal/repository/document"
	"github.com/kailas-cloud/transferguard/internal/repository/ledger"
	rulerepo "github.com/kailas-cloud/transferguard/internal/repository/rule"
	"github.com/kailas-cloud/transferguard/internal/repository/vector"
	"github.com/kailas-cloud/transferguard/internal/usecase/chunking"
	"github.com/kailas-cloud/transferguard/internal/usecase/compliance"
	embeddinguc "github.com/kailas-cloud/transferguard/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/transferguard/internal/usecase/health"
	"github.com/kailas-cloud/transferguard/internal/usecase/ingestion"
	"github.com/kailas-cloud/transferguard/internal/usecase/transfer"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultDimensions       = 384
	memoryLedger            = ":memory:"
)

// Internal interfaces, swapped for mocks in tests.
type ingestionUseCase interface {
	IngestDocument(ctx context.Context, id, filePath string, docType domdoc.Type) (int, error)
	Ingest(ctx context.Context, id, rawText string, docType domdoc.Type) ([]chunk.Chunk, error)
	DeleteDocumentVectors(ctx context.Context, id string) (int, error)
	DeleteDocument(ctx context.Context, id string) error
	Stats(ctx context.Context) (ingestion.Stats, error)
	Search(ctx context.Context, query string, topK int, docType domdoc.Type) ([]ingestion.Result, error)
}

type transferUseCase interface {
	ValidateAndExecute(
		ctx context.Context, senderAccountID, beneficiaryID string, amount decimal.Decimal,
	) (transaction.Transaction, error)
}

type ledgerStore interface {
	CreateAccount(ctx context.Context, a account.Account) error
	GetAccount(ctx context.Context, id string) (account.Account, error)
	CreateBeneficiary(ctx context.Context, b account.Beneficiary) error
	ListBeneficiaries(ctx context.Context, ownerAccountID string) ([]account.Beneficiary, error)
	GetTransaction(ctx context.Context, id string) (transaction.Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]transaction.Transaction, error)
}

// Client is the transferguard SDK entry point.
type Client struct {
	store       db.Store
	ledger      *ledger.Store
	index       *vector.Index
	ingestSvc   ingestionUseCase
	transferSvc transferUseCase
	ledgerSvc   ledgerStore
	healthSvc   healthUseCase
	currency    string
	obs         *observer
}

// New creates a Client, restores the persisted index and opens the ledger.
// The provided context is used for the readiness check and the restore.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:           "memory",
		ledgerPath:       memoryLedger,
		vectorDimensions: defaultDimensions,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.vectorDimensions <= 0 {
		return nil, errors.New("transferguard: vector dimensions must be positive")
	}
	limits, err := parseLimits(cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("transferguard: database not ready: %w", err)
	}

	c, err := wireClient(ctx, store, cfg, limits, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return memory.NewStore(), nil
	case "redis", "valkey":
		if len(cfg.addrs) == 0 || cfg.addrs[0] == "" {
			return nil, fmt.Errorf("transferguard: %s address required", cfg.driver)
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("transferguard: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("transferguard: unknown driver %q", cfg.driver)
	}
}

func parseLimits(cfg *clientConfig) (transfer.Config, error) {
	var out transfer.Config
	for _, l := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{cfg.perTransactionLimit, &out.PerTransactionLimit},
		{cfg.dailyLimit, &out.DailyLimit},
	} {
		if l.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(l.raw)
		if err != nil || !v.IsPositive() {
			return transfer.Config{}, fmt.Errorf("transferguard: limit %q: %w", l.raw, domain.ErrInvalidAmount)
		}
		*l.dst = v
	}
	return out, nil
}

func wireClient(
	ctx context.Context, store db.Store, cfg *clientConfig, limits transfer.Config, obs *observer,
) (*Client, error) {
	led, err := ledger.Open(cfg.ledgerPath, nil)
	if err != nil {
		return nil, fmt.Errorf("transferguard: open ledger: %w", err)
	}

	index, err := vector.New(cfg.vectorDimensions, store, nil)
	if err != nil {
		_ = led.Close()
		return nil, fmt.Errorf("transferguard: create index: %w", err)
	}

	var emb domain.Embedder = embeddinguc.NewHashEmbedder(cfg.vectorDimensions)
	if cfg.embedder != nil {
		emb = &embedderAdapter{inner: cfg.embedder}
	}

	docRepo := documentrepo.New(store)
	ruleRepo := rulerepo.New(store)
	extractor := compliance.NewExtractor()

	var chunkOpts []chunking.Option
	if cfg.chunkMaxChars > 0 {
		chunkOpts = append(chunkOpts, chunking.WithMaxChars(cfg.chunkMaxChars))
	}
	if cfg.chunkOverlap > 0 {
		chunkOpts = append(chunkOpts, chunking.WithOverlap(cfg.chunkOverlap))
	}

	statementChunker := chunking.New(
		chunking.WithMaxChars(chunking.DefaultStatementMaxChars), chunking.WithStatements())
	ingestSvc := ingestion.New(docRepo, ruleRepo, index, extract.New(), chunking.New(chunkOpts...),
		extractor, emb, nil,
		ingestion.WithTypeChunker(domdoc.TypeRules, statementChunker),
		ingestion.WithTypeChunker(domdoc.TypeSanctions, statementChunker),
	)
	if err := ingestSvc.Restore(ctx); err != nil {
		index.Close()
		_ = led.Close()
		return nil, fmt.Errorf("transferguard: restore index: %w", err)
	}
	if _, err := ingestSvc.Reconcile(ctx); err != nil {
		index.Close()
		_ = led.Close()
		return nil, fmt.Errorf("transferguard: reconcile documents: %w", err)
	}

	resolver := compliance.NewResolver(index, emb, docRepo, docRepo, ruleRepo, extractor,
		compliance.ResolverConfig{
			TopK:                 cfg.topK,
			Threshold:            cfg.threshold,
			BlacklistedCountries: cfg.blacklist,
			MatchBeneficiaryName: cfg.matchNames,
		}, nil)

	return &Client{
		store:       store,
		ledger:      led,
		index:       index,
		ingestSvc:   ingestSvc,
		transferSvc: transfer.New(led, resolver, limits, nil),
		ledgerSvc:   led,
		healthSvc:   healthuc.New(store, led, index, nil),
		currency:    DefaultCurrency,
		obs:         obs,
	}, nil
}

// Close persists the index snapshot and releases all resources.
func (c *Client) Close() {
	if c.index != nil {
		_ = c.index.Persist(context.Background())
		c.index.Close()
	}
	if c.ledger != nil {
		_ = c.ledger.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Documents returns the document lifecycle service.
func (c *Client) Documents() *DocumentService {
	return &DocumentService{svc: c.ingestSvc, obs: c.obs}
}

// Transfers returns the transfer service.
func (c *Client) Transfers() *TransferService {
	return &TransferService{svc: c.transferSvc, ledger: c.ledgerSvc, obs: c.obs}
}

// Accounts returns the account and beneficiary service.
func (c *Client) Accounts() *AccountService {
	return &AccountService{ledger: c.ledgerSvc, currency: c.currency, obs: c.obs}
}
