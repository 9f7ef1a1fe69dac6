package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

// StepPerformance aggregates outcomes per step across executions.
type StepPerformance struct {
	StepID    string `json:"step_id"`
	Entered   int    `json:"entered"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// TimelinePoint is one day of execution activity.
type TimelinePoint struct {
	Date      string `json:"date"` // YYYY-MM-DD, UTC
	Entered   int    `json:"entered"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// WorkflowAnalytics summarizes execution outcomes of one workflow. Counts
// derive solely from stored execution records, so two reads over the same
// closed time range return identical numbers.
type WorkflowAnalytics struct {
	WorkflowID string `json:"workflow_id"`
	Entered    int    `json:"entered"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Cancelled  int    `json:"cancelled"`
	Active     int    `json:"active"`
	// SuccessRate is Completed / Entered, 0 when nothing entered.
	SuccessRate float64 `json:"success_rate"`
	// AvgExecutionTime is the mean wall time of completed executions.
	AvgExecutionTime time.Duration     `json:"avg_execution_time"`
	StepPerformance  []StepPerformance `json:"step_performance"`
	Timeline         []TimelinePoint   `json:"timeline"`
}

// Analytics computes the analytics of a workflow over an optional
// CreatedAt range.
func (s *Service) Analytics(ctx context.Context, workflowID string, from, to *time.Time) (*WorkflowAnalytics, error) {
	// Existence check so a bad id is a 404, not empty analytics.
	if _, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	result, err := s.persistence.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{
		WorkflowID: workflowID,
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, err
	}

	analytics := &WorkflowAnalytics{WorkflowID: workflowID}

	perStep := make(map[string]*StepPerformance)
	perDay := make(map[string]*TimelinePoint)

	var completedTime time.Duration

	day := func(t time.Time) *TimelinePoint {
		date := t.UTC().Format("2006-01-02")
		if point, ok := perDay[date]; ok {
			return point
		}

		point := &TimelinePoint{Date: date}
		perDay[date] = point

		return point
	}

	for _, execution := range result.Executions {
		analytics.Entered++
		day(execution.CreatedAt).Entered++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			analytics.Completed++
			completedTime += execution.Duration()

			if execution.FinishedAt != nil {
				day(*execution.FinishedAt).Completed++
			}
		case models.ExecutionStatusFailed:
			analytics.Failed++

			if execution.FinishedAt != nil {
				day(*execution.FinishedAt).Failed++
			}
		case models.ExecutionStatusCancelled:
			analytics.Cancelled++
		default:
			analytics.Active++
		}

		for _, record := range execution.History {
			perf, ok := perStep[record.StepID]
			if !ok {
				perf = &StepPerformance{StepID: record.StepID}
				perStep[record.StepID] = perf
			}

			perf.Entered++

			switch record.Outcome {
			case models.StepOutcomeFailed:
				perf.Failed++
			default:
				perf.Completed++
			}
		}
	}

	if analytics.Entered > 0 {
		analytics.SuccessRate = float64(analytics.Completed) / float64(analytics.Entered)
	}

	if analytics.Completed > 0 {
		analytics.AvgExecutionTime = completedTime / time.Duration(analytics.Completed)
	}

	analytics.StepPerformance = make([]StepPerformance, 0, len(perStep))
	for _, perf := range perStep {
		analytics.StepPerformance = append(analytics.StepPerformance, *perf)
	}

	sort.Slice(analytics.StepPerformance, func(i, j int) bool {
		return analytics.StepPerformance[i].StepID < analytics.StepPerformance[j].StepID
	})

	analytics.Timeline = make([]TimelinePoint, 0, len(perDay))
	for _, point := range perDay {
		analytics.Timeline = append(analytics.Timeline, *point)
	}

	sort.Slice(analytics.Timeline, func(i, j int) bool {
		return analytics.Timeline[i].Date < analytics.Timeline[j].Date
	})

	return analytics, nil
}
