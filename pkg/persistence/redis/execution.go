package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

const (
	executionKeyPrefix     = keyPrefix + "execution:"
	executionTriggerPrefix = keyPrefix + "execution:by-trigger:"
	executionWorkflowIndex = keyPrefix + "executions:workflow:"
)

// ExecutionRepository stores executions as JSON values. The idempotency
// triple is a SETNX key, so concurrent duplicate trigger deliveries race on
// Redis rather than in application code.
type ExecutionRepository struct {
	client *goredis.Client
}

func tripleIndexKey(workflowID, subscriberID, triggerEventID string) string {
	return executionTriggerPrefix + workflowID + ":" + subscriberID + ":" + triggerEventID
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	key := tripleIndexKey(execution.WorkflowID, execution.SubscriberID, execution.TriggerEventID)

	reserved, err := r.client.SetNX(ctx, key, execution.ID, 0).Result()
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if !reserved {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
	}

	if err := r.write(ctx, execution); err != nil {
		return err
	}

	if err := r.client.SAdd(ctx, executionWorkflowIndex+execution.WorkflowID, execution.ID).Err(); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	raw, err := r.client.Get(ctx, executionKeyPrefix+id).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	execution := &models.Execution{}
	if err := json.Unmarshal([]byte(raw), execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetByTriggerEvent(ctx context.Context, workflowID, subscriberID, triggerEventID string) (*models.Execution, error) {
	id, err := r.client.Get(ctx, tripleIndexKey(workflowID, subscriberID, triggerEventID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewExecutionError("GetByTriggerEvent", "", persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByTriggerEvent", "", err)
	}

	return r.GetByID(ctx, id)
}

func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	exists, err := r.client.Exists(ctx, executionKeyPrefix+execution.ID).Result()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if exists == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return r.write(ctx, execution)
}

func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	executions, err := r.loadAll(ctx, opts.WorkflowID)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Execution, 0, len(executions))

	for _, execution := range executions {
		if opts.SubscriberID != "" && execution.SubscriberID != opts.SubscriberID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		if opts.From != nil && execution.CreatedAt.Before(*opts.From) {
			continue
		}

		if opts.To != nil && execution.CreatedAt.After(*opts.To) {
			continue
		}

		matched = append(matched, execution)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}

		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}

	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return &persistence.ExecutionListResult{Executions: matched, TotalCount: total}, nil
}

func (r *ExecutionRepository) ListByWorkflowAndStatus(ctx context.Context, workflowID string, statuses ...models.ExecutionStatus) ([]*models.Execution, error) {
	executions, err := r.loadAll(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[models.ExecutionStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	matched := make([]*models.Execution, 0, len(executions))

	for _, execution := range executions {
		if len(wanted) > 0 && !wanted[execution.Status] {
			continue
		}

		matched = append(matched, execution)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID < matched[j].ID
	})

	return matched, nil
}

func (r *ExecutionRepository) write(ctx context.Context, execution *models.Execution) error {
	raw, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("write", execution.ID, err)
	}

	if err := r.client.Set(ctx, executionKeyPrefix+execution.ID, raw, 0).Err(); err != nil {
		return persistence.NewExecutionError("write", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) loadAll(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	var (
		ids []string
		err error
	)

	if workflowID != "" {
		ids, err = r.client.SMembers(ctx, executionWorkflowIndex+workflowID).Result()
	} else {
		ids, err = r.scanAllIDs(ctx)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("loadAll", "", err)
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := r.GetByID(ctx, id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (r *ExecutionRepository) scanAllIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, executionWorkflowIndex+"*", 100).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			members, err := r.client.SMembers(ctx, key).Result()
			if err != nil {
				return nil, err
			}

			ids = append(ids, members...)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return ids, nil
}
