// Package redis provides the Redis-backed persistence implementation used in
// production deployments. Workflows and executions are stored as JSON values,
// the queue is a sorted set scored by due time, and claims are expressed as
// SET NX PX lease keys.
package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dripline/dripline/pkg/persistence"
)

const keyPrefix = "dripline:"

// Persistence implements persistence.Persistence on a Redis client.
type Persistence struct {
	client     *goredis.Client
	workflows  *WorkflowRepository
	executions *ExecutionRepository
	queue      *QueueRepository
	deliveries *DeliveryRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(url string) (*Persistence, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opts)

	return &Persistence{
		client:     client,
		workflows:  &WorkflowRepository{client: client},
		executions: &ExecutionRepository{client: client},
		queue:      &QueueRepository{client: client},
		deliveries: &DeliveryRepository{client: client},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) QueueRepository() persistence.QueueRepository {
	return p.queue
}

func (p *Persistence) DeliveryRepository() persistence.DeliveryRepository {
	return p.deliveries
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}
