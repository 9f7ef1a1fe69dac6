package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

const sentKeyPrefix = keyPrefix + "sent:"

// DeliveryRepository records send markers as SETNX keys.
type DeliveryRepository struct {
	client *goredis.Client
}

// MarkSent claims the (execution, step) send marker. SETNX makes the claim
// atomic across workers.
func (r *DeliveryRepository) MarkSent(ctx context.Context, executionID, stepID string) (bool, error) {
	return r.client.SetNX(ctx, sentKeyPrefix+executionID+":"+stepID, "1", 0).Result()
}

// ClearSent releases a marker after a transient send failure.
func (r *DeliveryRepository) ClearSent(ctx context.Context, executionID, stepID string) error {
	return r.client.Del(ctx, sentKeyPrefix+executionID+":"+stepID).Err()
}
