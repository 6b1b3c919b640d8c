// Package metadata coordinates downloading contract metadata from the
// provider pool and persisting it.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/internal/infrastructure/providers"
	"github.com/safeutils/safe-decoder-service/shared/logging"
	"github.com/safeutils/safe-decoder-service/shared/monitoring"
)

// oneShotMaxRetries is the retry budget consulted on the eager download
// path. Only the first attempt is taken eagerly; the remaining budget is
// spent by the periodic missing-metadata rescan.
const oneShotMaxRetries = 0

// sourceURLs maps provider names to the URL recorded with ABIs they
// produced.
var sourceURLs = map[string]string{
	"etherscan":  "https://etherscan.io",
	"sourcify":   "https://sourcify.dev",
	"blockscout": "https://blockscout.com",
}

// Fetcher resolves contract metadata from upstream explorers.
type Fetcher interface {
	GetContractMetadata(ctx context.Context, address string, chainID int64) (*providers.EnhancedContractMetadata, error)
}

// AttemptGate remembers contracts whose download budget is spent.
type AttemptGate interface {
	ShouldAttempt(ctx context.Context, address string, chainID int64, maxRetries int) (bool, error)
	MarkExhausted(ctx context.Context, address string, chainID int64, maxRetries int) error
}

// ResponseInvalidator drops cached API responses for a contract address.
type ResponseInvalidator interface {
	Invalidate(ctx context.Context, address string) error
}

// Service ensures metadata for a contract is either stored or its retry
// counter advanced.
type Service struct {
	fetcher   Fetcher
	contracts domain.ContractRepository
	abis      domain.AbiRepository
	sources   domain.AbiSourceRepository
	attempts  AttemptGate
	responses ResponseInvalidator
	enqueuer  domain.TaskEnqueuer
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewService wires the metadata pipeline.
func NewService(
	fetcher Fetcher,
	contracts domain.ContractRepository,
	abis domain.AbiRepository,
	sources domain.AbiSourceRepository,
	attempts AttemptGate,
	responses ResponseInvalidator,
	enqueuer domain.TaskEnqueuer,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
) *Service {
	return &Service{
		fetcher:   fetcher,
		contracts: contracts,
		abis:      abis,
		sources:   sources,
		attempts:  attempts,
		responses: responses,
		enqueuer:  enqueuer,
		logger:    logger,
		metrics:   metrics,
	}
}

// Process downloads and persists metadata for (address, chainID). The
// contract row is created if missing and its fetch counter advanced even
// when no provider knows the contract. Returns true when metadata was
// stored.
func (s *Service) Process(ctx context.Context, address string, chainID int64, skipAttemptCheck bool) (bool, error) {
	addr := common.HexToAddress(address)

	if !skipAttemptCheck {
		attempt, err := s.shouldAttemptDownload(ctx, addr, chainID)
		if err != nil {
			return false, err
		}
		if !attempt {
			s.logger.WithFields(map[string]any{
				"address":  addr.Hex(),
				"chain_id": chainID,
			}).Debug("Skipping contract metadata download")
			s.metrics.MetadataTasks.WithLabelValues("skipped").Inc()
			return false, nil
		}
	}

	s.logger.WithFields(map[string]any{
		"address":  addr.Hex(),
		"chain_id": chainID,
	}).Info("Downloading contract metadata")

	enhanced, err := s.fetcher.GetContractMetadata(ctx, addr.Hex(), chainID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	contract, _, err := s.contracts.GetOrCreate(ctx, addr.Bytes(), chainID)
	if err != nil {
		return false, err
	}

	stored := false
	if enhanced != nil {
		if err := s.applyMetadata(ctx, contract, enhanced); err != nil {
			return false, err
		}
		stored = true
	}

	contract.FetchRetries++
	if err := s.contracts.Update(ctx, contract); err != nil {
		return false, err
	}

	if err := s.responses.Invalidate(ctx, addr.Hex()); err != nil {
		s.logger.WithError(err).WithField("address", addr.Hex()).
			Warn("Could not invalidate contract response cache")
	}

	if stored {
		s.metrics.MetadataTasks.WithLabelValues("stored").Inc()
	} else {
		s.metrics.MetadataTasks.WithLabelValues("missing").Inc()
	}

	if enhanced != nil && enhanced.Implementation != "" {
		s.enqueueImplementation(ctx, addr, enhanced.Implementation, chainID)
	}
	return stored, nil
}

// shouldAttemptDownload consults the negative cache first, then the
// contract row. A contract that already has an ABI or spent its budget is
// recorded in the cache so future events can skip the database.
func (s *Service) shouldAttemptDownload(ctx context.Context, addr common.Address, chainID int64) (bool, error) {
	attempt, err := s.attempts.ShouldAttempt(ctx, addr.Hex(), chainID, oneShotMaxRetries)
	if err != nil {
		return false, err
	}
	if !attempt {
		return false, nil
	}

	contract, err := s.contracts.Get(ctx, addr.Bytes(), chainID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if contract.FetchRetries > oneShotMaxRetries || contract.HasAbi() {
		if err := s.attempts.MarkExhausted(ctx, addr.Hex(), chainID, oneShotMaxRetries); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Service) applyMetadata(ctx context.Context, contract *domain.Contract, enhanced *providers.EnhancedContractMetadata) error {
	source, err := s.sources.GetOrCreate(ctx, enhanced.Source, sourceURLs[enhanced.Source])
	if err != nil {
		return err
	}
	abi, err := s.abis.GetOrCreate(ctx, enhanced.AbiJSON, 0, source.ID)
	if err != nil {
		return fmt.Errorf("store downloaded abi: %w", err)
	}

	contract.AbiID = &abi.ID
	if enhanced.Name != "" {
		name := enhanced.Name
		contract.Name = &name
	}
	if enhanced.Implementation != "" && common.IsHexAddress(enhanced.Implementation) {
		contract.Implementation = common.HexToAddress(enhanced.Implementation).Bytes()
	}
	return nil
}

// enqueueImplementation schedules a metadata download for a proxy's
// implementation contract.
func (s *Service) enqueueImplementation(ctx context.Context, proxy common.Address, implementation string, chainID int64) {
	if !common.IsHexAddress(implementation) {
		return
	}
	impl := common.HexToAddress(implementation)
	if impl == proxy {
		return
	}
	s.logger.WithFields(map[string]any{
		"address":        proxy.Hex(),
		"implementation": impl.Hex(),
		"chain_id":       chainID,
	}).Info("Enqueueing proxy implementation metadata download")

	if err := s.enqueuer.EnqueueProcessMetadata(ctx, impl.Hex(), chainID, false); err != nil {
		s.logger.WithError(err).WithField("implementation", impl.Hex()).
			Warn("Could not enqueue proxy implementation download")
	}
}
