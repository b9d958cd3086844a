// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "transferguard"

var registerOnce sync.Once

// Register registers every collector with the default registry. Must be called from main;
// repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			IngestionTotal,
			IngestionDuration,
			IndexEntries,
			TransfersTotal,
			TransferStageDuration,
			SanctionsChecksTotal,
		)
	})
}
