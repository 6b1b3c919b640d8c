package providers

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

type pooledProvider struct {
	provider MetadataProvider
	sem      *semaphore.Weighted
}

// Pool tries providers in a fixed order until one returns metadata,
// capping in-flight requests per provider.
type Pool struct {
	providers []pooledProvider
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewPool creates a provider pool. Order matters: earlier providers are
// preferred. maxInFlight caps concurrent requests per provider; entries
// missing from the map default to 1.
func NewPool(ordered []MetadataProvider, maxInFlight map[string]int, logger *logging.Logger, metrics *monitoring.Metrics) *Pool {
	pool := &Pool{logger: logger, metrics: metrics}
	for _, p := range ordered {
		limit := maxInFlight[p.Name()]
		if limit <= 0 {
			limit = 1
		}
		pool.providers = append(pool.providers, pooledProvider{
			provider: p,
			sem:      semaphore.NewWeighted(int64(limit)),
		})
	}
	return pool
}

// GetContractMetadata asks each provider in order for the contract's
// metadata. Providers that do not know the contract or the chain are
// skipped; transient provider failures are logged and the next provider
// is tried. Returns domain.ErrNotFound when every provider came up empty.
func (p *Pool) GetContractMetadata(ctx context.Context, address string, chainID int64) (*EnhancedContractMetadata, error) {
	for _, entry := range p.providers {
		metadata, err := p.fetch(ctx, entry, address, chainID)
		switch {
		case err == nil:
			p.metrics.ProviderRequests.WithLabelValues(entry.provider.Name(), "hit").Inc()
			return &EnhancedContractMetadata{
				Address:          address,
				ChainID:          chainID,
				Source:           entry.provider.Name(),
				ContractMetadata: metadata,
			}, nil
		case errors.Is(err, domain.ErrChainNotSupported):
			p.metrics.ProviderRequests.WithLabelValues(entry.provider.Name(), "unsupported").Inc()
		case errors.Is(err, domain.ErrNotFound):
			p.metrics.ProviderRequests.WithLabelValues(entry.provider.Name(), "miss").Inc()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			p.metrics.ProviderRequests.WithLabelValues(entry.provider.Name(), "error").Inc()
			p.logger.WithError(err).WithFields(map[string]any{
				"provider": entry.provider.Name(),
				"address":  address,
				"chain_id": chainID,
			}).Warn("Metadata provider failed")
		}
	}
	return nil, domain.ErrNotFound
}

func (p *Pool) fetch(ctx context.Context, entry pooledProvider, address string, chainID int64) (*ContractMetadata, error) {
	if err := entry.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer entry.sem.Release(1)
	return entry.provider.GetContractMetadata(ctx, address, chainID)
}
