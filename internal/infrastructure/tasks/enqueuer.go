package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/safeutils/safe-decoder-service/internal/domain"
)

// Enqueuer schedules tasks on the Redis-backed queue. It implements
// domain.TaskEnqueuer.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates a task enqueuer connected to the Redis at the given
// URL.
func NewEnqueuer(redisURL string) (*Enqueuer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Enqueuer{client: asynq.NewClient(opt)}, nil
}

// EnqueueProcessMetadata schedules a metadata download task.
func (e *Enqueuer) EnqueueProcessMetadata(ctx context.Context, address string, chainID int64, skipAttemptCheck bool) error {
	payload, err := ProcessMetadataPayload{
		Address:          address,
		ChainID:          chainID,
		SkipAttemptCheck: skipAttemptCheck,
	}.Marshal()
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeProcessMetadata, payload)
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeProcessMetadata, err)
	}
	return nil
}

// Close releases the underlying Redis connections.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

var _ domain.TaskEnqueuer = (*Enqueuer)(nil)
