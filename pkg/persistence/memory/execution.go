package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

// ExecutionRepository stores executions in memory and enforces the
// one-execution-per-trigger-event invariant through a triple index.
type ExecutionRepository struct {
	mu         sync.RWMutex
	executions map[string]*models.Execution
	byTrigger  map[tripleKey]string
}

type tripleKey struct {
	workflowID     string
	subscriberID   string
	triggerEventID string
}

// NewExecutionRepository creates an empty execution repository.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{
		executions: make(map[string]*models.Execution),
		byTrigger:  make(map[tripleKey]string),
	}
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tripleKey{execution.WorkflowID, execution.SubscriberID, execution.TriggerEventID}
	if _, ok := r.byTrigger[key]; ok {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
	}

	r.executions[execution.ID] = copyExecution(execution)
	r.byTrigger[key] = execution.ID

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return copyExecution(execution), nil
}

func (r *ExecutionRepository) GetByTriggerEvent(_ context.Context, workflowID, subscriberID, triggerEventID string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTrigger[tripleKey{workflowID, subscriberID, triggerEventID}]
	if !ok {
		return nil, persistence.NewExecutionError("GetByTriggerEvent", "", persistence.ErrExecutionNotFound)
	}

	return copyExecution(r.executions[id]), nil
}

func (r *ExecutionRepository) Update(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[execution.ID]; !ok {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	r.executions[execution.ID] = copyExecution(execution)

	return nil
}

func (r *ExecutionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Execution, 0)

	for _, execution := range r.executions {
		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

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

		matched = append(matched, copyExecution(execution))
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

func (r *ExecutionRepository) ListByWorkflowAndStatus(_ context.Context, workflowID string, statuses ...models.ExecutionStatus) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[models.ExecutionStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	matched := make([]*models.Execution, 0)

	for _, execution := range r.executions {
		if execution.WorkflowID != workflowID {
			continue
		}

		if len(wanted) > 0 && !wanted[execution.Status] {
			continue
		}

		matched = append(matched, copyExecution(execution))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID < matched[j].ID
	})

	return matched, nil
}

func copyExecution(execution *models.Execution) *models.Execution {
	raw, err := json.Marshal(execution)
	if err != nil {
		return execution
	}

	copied := &models.Execution{}
	if err := json.Unmarshal(raw, copied); err != nil {
		return execution
	}

	return copied
}
