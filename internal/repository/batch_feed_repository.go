package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BatchChangedChannel carries the id of every batch whose roster or balances changed.
const BatchChangedChannel = "batches:changed"

// BatchFeedRepository publishes and subscribes to batch change notifications over Redis pub/sub.
type BatchFeedRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewBatchFeedRepository constructs the feed. A nil client disables it.
func NewBatchFeedRepository(client *redis.Client, logger *zap.Logger) *BatchFeedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchFeedRepository{client: client, logger: logger}
}

// Publish announces that batchID changed.
func (r *BatchFeedRepository) Publish(ctx context.Context, batchID string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Publish(ctx, BatchChangedChannel, batchID).Err(); err != nil {
		return fmt.Errorf("publish batch change: %w", err)
	}
	return nil
}

// Subscribe streams changed batch ids until ctx is done. The returned channel is closed afterwards.
func (r *BatchFeedRepository) Subscribe(ctx context.Context) (<-chan string, error) {
	out := make(chan string, 16)
	if r.client == nil {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	sub := r.client.Subscribe(ctx, BatchChangedChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe batch changes: %w", err)
	}

	go func() {
		defer close(out)
		defer func() {
			if err := sub.Close(); err != nil {
				r.logger.Debug("close batch feed subscription", zap.Error(err))
			}
		}()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
