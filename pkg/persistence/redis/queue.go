package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

const (
	queueZSetKey         = keyPrefix + "queue"
	queueItemKeyPrefix   = keyPrefix + "queue:item:"
	queueExecKeyPrefix   = keyPrefix + "queue:execution:"
	queueLeaseKeyPrefix  = keyPrefix + "queue:lease:"
	metricsInspectionCap = 1000
)

// QueueRepository is the Redis work queue: a sorted set scored by due time
// plus one JSON value per item. Claims are SET NX PX lease keys, so a lease
// expires on its own when the claiming worker dies before completing.
type QueueRepository struct {
	client *goredis.Client
}

func (r *QueueRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	// One item per execution. If an item already exists, this is a
	// re-schedule of the same unit of work.
	existingID, err := r.client.Get(ctx, queueExecKeyPrefix+item.ExecutionID).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}

	if existingID != "" {
		item.ID = existingID
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, queueItemKeyPrefix+item.ID, raw, 0)
	pipe.Set(ctx, queueExecKeyPrefix+item.ExecutionID, item.ID, 0)
	pipe.ZAdd(ctx, queueZSetKey, goredis.Z{Score: float64(item.DueAt.UnixMilli()), Member: item.ID})
	pipe.Del(ctx, queueLeaseKeyPrefix+item.ID)

	_, err = pipe.Exec(ctx)

	return err
}

func (r *QueueRepository) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration, workerID string) ([]*models.QueueItem, error) {
	due, err := r.client.ZRangeByScore(ctx, queueZSetKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit) * 4,
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([]*models.QueueItem, 0, limit)

	for _, itemID := range due {
		if len(claimed) >= limit {
			break
		}

		// The lease key is the claim: only one worker wins the SET NX.
		ok, err := r.client.SetNX(ctx, queueLeaseKeyPrefix+itemID, workerID, lease).Result()
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		item, err := r.getItem(ctx, itemID)
		if err != nil {
			if errors.Is(err, persistence.ErrQueueItemNotFound) {
				// Completed by another worker between range and claim.
				r.client.Del(ctx, queueLeaseKeyPrefix+itemID)

				continue
			}

			return nil, err
		}

		leaseUntil := now.Add(lease)
		item.LeaseUntil = &leaseUntil
		item.ClaimedBy = workerID

		claimed = append(claimed, item)
	}

	return claimed, nil
}

func (r *QueueRepository) Complete(ctx context.Context, itemID string) error {
	item, err := r.getItem(ctx, itemID)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, queueZSetKey, itemID)
	pipe.Del(ctx, queueItemKeyPrefix+itemID)
	pipe.Del(ctx, queueExecKeyPrefix+item.ExecutionID)
	pipe.Del(ctx, queueLeaseKeyPrefix+itemID)

	_, err = pipe.Exec(ctx)

	return err
}

func (r *QueueRepository) Release(ctx context.Context, itemID string, retryAt time.Time) error {
	item, err := r.getItem(ctx, itemID)
	if err != nil {
		return err
	}

	item.DueAt = retryAt
	item.Attempts++
	item.LeaseUntil = nil
	item.ClaimedBy = ""

	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, queueItemKeyPrefix+itemID, raw, 0)
	pipe.ZAdd(ctx, queueZSetKey, goredis.Z{Score: float64(retryAt.UnixMilli()), Member: itemID})
	pipe.Del(ctx, queueLeaseKeyPrefix+itemID)

	_, err = pipe.Exec(ctx)

	return err
}

func (r *QueueRepository) RemoveByExecution(ctx context.Context, executionID string) error {
	itemID, err := r.client.Get(ctx, queueExecKeyPrefix+executionID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil
	}

	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, queueZSetKey, itemID)
	pipe.Del(ctx, queueItemKeyPrefix+itemID)
	pipe.Del(ctx, queueExecKeyPrefix+executionID)
	pipe.Del(ctx, queueLeaseKeyPrefix+itemID)

	_, err = pipe.Exec(ctx)

	return err
}

func (r *QueueRepository) Metrics(ctx context.Context, now time.Time) (*models.QueueMetrics, error) {
	pending, err := r.client.ZCard(ctx, queueZSetKey).Result()
	if err != nil {
		return nil, err
	}

	due, err := r.client.ZRangeByScoreWithScores(ctx, queueZSetKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: metricsInspectionCap,
	}).Result()
	if err != nil {
		return nil, err
	}

	metrics := &models.QueueMetrics{Pending: int(pending)}

	var oldest *time.Time

	for _, entry := range due {
		itemID, ok := entry.Member.(string)
		if !ok {
			continue
		}

		leased, err := r.client.Exists(ctx, queueLeaseKeyPrefix+itemID).Result()
		if err != nil {
			return nil, err
		}

		if leased > 0 {
			continue
		}

		metrics.Overdue++

		dueAt := time.UnixMilli(int64(entry.Score))
		if oldest == nil || dueAt.Before(*oldest) {
			oldest = &dueAt
		}
	}

	if oldest != nil && oldest.Before(now) {
		metrics.OldestUnclaimedAge = now.Sub(*oldest)
	}

	return metrics, nil
}

func (r *QueueRepository) getItem(ctx context.Context, itemID string) (*models.QueueItem, error) {
	raw, err := r.client.Get(ctx, queueItemKeyPrefix+itemID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.ErrQueueItemNotFound
	}

	if err != nil {
		return nil, err
	}

	item := &models.QueueItem{}
	if err := json.Unmarshal([]byte(raw), item); err != nil {
		return nil, err
	}

	return item, nil
}
