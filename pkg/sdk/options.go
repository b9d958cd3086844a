package transferguard

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "memory", "redis" or "valkey"
	addrs    []string
	password string

	ledgerPath string

	embedder         Embedder
	vectorDimensions int

	chunkMaxChars int
	chunkOverlap  int

	perTransactionLimit string
	dailyLimit          string
	topK                int
	threshold           float64
	blacklist           []string
	matchNames          bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey stores documents and the index snapshot in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis stores documents and the index snapshot in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithLedgerPath sets the SQLite ledger file. Default is a private in-memory ledger.
func WithLedgerPath(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.ledgerPath = path
	})
}

// WithEmbedder replaces the built-in hashing embedder.
// The embedder must return vectors of WithVectorDimensions size.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithVectorDimensions sets the index dimensionality. Defaults to 384.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithChunking sets the chunk window size in characters and the overlap between windows.
func WithChunking(maxChars, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkMaxChars = maxChars
		c.chunkOverlap = overlap
	})
}

// WithDefaultLimits sets the fallback limits used when neither the account nor an
// ingested rule defines one. Amounts are decimal strings.
func WithDefaultLimits(perTransaction, daily string) Option {
	return optionFunc(func(c *clientConfig) {
		c.perTransactionLimit = perTransaction
		c.dailyLimit = daily
	})
}

// WithRetrieval tunes how many chunks are considered per query and the minimum score.
func WithRetrieval(topK int, threshold float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = topK
		c.threshold = threshold
	})
}

// WithBlacklistedCountries blocks the given countries without consulting documents.
func WithBlacklistedCountries(countries ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.blacklist = append(c.blacklist, countries...)
	})
}

// WithNameMatching also checks beneficiary names against sanctioned names.
func WithNameMatching() Option {
	return optionFunc(func(c *clientConfig) {
		c.matchNames = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
