package tasks

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/internal/metadata"
	"github.com/safeutils/safe-decoder-service/internal/safecontracts"
	"github.com/safeutils/safe-decoder-service/shared/logging"
)

// Handlers binds task types to the services doing the work.
//
// Task failures are logged and swallowed rather than retried by the
// queue: durability comes from the periodic rescans, and retrying a
// download for a contract no provider knows would only burn quota.
type Handlers struct {
	metadata      *metadata.Service
	contracts     domain.ContractRepository
	safeContracts *safecontracts.Service
	enqueuer      domain.TaskEnqueuer
	maxRetries    int
	logger        *logging.Logger
}

// NewHandlers creates the task handler set. maxRetries bounds which
// contracts the missing-metadata rescan picks up.
func NewHandlers(
	metadataService *metadata.Service,
	contracts domain.ContractRepository,
	safeContracts *safecontracts.Service,
	enqueuer domain.TaskEnqueuer,
	maxRetries int,
	logger *logging.Logger,
) *Handlers {
	return &Handlers{
		metadata:      metadataService,
		contracts:     contracts,
		safeContracts: safeContracts,
		enqueuer:      enqueuer,
		maxRetries:    maxRetries,
		logger:        logger,
	}
}

// Register attaches every handler to the mux, wrapped in the per-task
// logging middleware.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.Use(h.loggingMiddleware)
	mux.HandleFunc(TypeProcessMetadata, h.HandleProcessMetadata)
	mux.HandleFunc(TypeRescanMissingMetadata, h.HandleRescanMissingMetadata)
	mux.HandleFunc(TypeRefreshProxies, h.HandleRefreshProxies)
	mux.HandleFunc(TypeUpdateWellKnownContracts, h.HandleUpdateWellKnownContracts)
}

// loggingMiddleware gives every task a logger carrying the task name, id
// and payload.
func (h *Handlers) loggingMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		taskID, _ := asynq.GetTaskID(ctx)
		logger := h.logger.WithTask(task.Type(), taskID, task.Payload())
		logger.Debug("Task started")
		if err := next.ProcessTask(ctx, task); err != nil {
			logger.WithError(err).Error("Task failed")
			return err
		}
		return nil
	})
}

// HandleProcessMetadata downloads metadata for one contract.
func (h *Handlers) HandleProcessMetadata(ctx context.Context, task *asynq.Task) error {
	var payload ProcessMetadataPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.logger.WithError(err).Error("Invalid process_metadata payload")
		return nil
	}

	stored, err := h.metadata.Process(ctx, payload.Address, payload.ChainID, payload.SkipAttemptCheck)
	if err != nil {
		h.logger.WithError(err).WithFields(map[string]any{
			"address":  payload.Address,
			"chain_id": payload.ChainID,
		}).Error("Contract metadata download failed")
		return nil
	}
	if stored {
		h.logger.WithFields(map[string]any{
			"address":  payload.Address,
			"chain_id": payload.ChainID,
		}).Info("Contract metadata downloaded")
	}
	return nil
}

// HandleRescanMissingMetadata enqueues a forced download for every
// contract still missing an ABI within the retry budget.
func (h *Handlers) HandleRescanMissingMetadata(ctx context.Context, task *asynq.Task) error {
	enqueued := 0
	err := h.contracts.StreamWithoutAbi(ctx, h.maxRetries, func(contract *domain.Contract) error {
		if err := h.enqueueForContract(ctx, contract); err != nil {
			return err
		}
		enqueued++
		return nil
	})
	if err != nil {
		h.logger.WithError(err).Error("Missing metadata rescan failed")
		return nil
	}
	h.logger.WithField("contracts", enqueued).Info("Missing metadata rescan enqueued")
	return nil
}

// HandleRefreshProxies enqueues a refresh for every contract with a known
// proxy implementation.
func (h *Handlers) HandleRefreshProxies(ctx context.Context, task *asynq.Task) error {
	enqueued := 0
	err := h.contracts.StreamProxies(ctx, func(contract *domain.Contract) error {
		if err := h.enqueueForContract(ctx, contract); err != nil {
			return err
		}
		enqueued++
		return nil
	})
	if err != nil {
		h.logger.WithError(err).Error("Proxy refresh failed")
		return nil
	}
	h.logger.WithField("contracts", enqueued).Info("Proxy refresh enqueued")
	return nil
}

// HandleUpdateWellKnownContracts applies curated names to the canonical
// Safe deployments.
func (h *Handlers) HandleUpdateWellKnownContracts(ctx context.Context, task *asynq.Task) error {
	if _, err := h.safeContracts.Update(ctx); err != nil {
		h.logger.WithError(err).Error("Well known contracts update failed")
	}
	return nil
}

func (h *Handlers) enqueueForContract(ctx context.Context, contract *domain.Contract) error {
	address := fmt.Sprintf("0x%s", hex.EncodeToString(contract.Address))
	return h.enqueuer.EnqueueProcessMetadata(ctx, address, contract.ChainID, true)
}
