package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func validWorkflow() *Workflow {
	return &Workflow{
		ID:     "wf-1",
		Name:   "Welcome series",
		Status: WorkflowStatusDraft,
		Trigger: Trigger{
			Kind:      TriggerKindSegmentJoined,
			SegmentID: "seg-1",
		},
		Steps: []*Step{
			{
				ID:   "wait",
				Kind: StepKindDelay,
				Delay: &DelayConfig{
					Duration: 1,
					Unit:     DelayUnitDays,
				},
				Next: strPtr("welcome"),
			},
			{
				ID:   "welcome",
				Kind: StepKindSendEmail,
				SendEmail: &SendEmailConfig{
					TemplateID:      "tpl-welcome",
					SubjectTemplate: "Welcome, {{.first_name}}!",
				},
			},
		},
	}
}

func TestWorkflow_ValidateGraph_Valid(t *testing.T) {
	require.NoError(t, validWorkflow().ValidateGraph())
}

func TestWorkflow_ValidateGraph_CollectsAllViolations(t *testing.T) {
	workflow := &Workflow{
		ID:      "wf-bad",
		Name:    "Broken",
		Trigger: Trigger{Kind: TriggerKindSegmentJoined}, // missing segment id
		Steps: []*Step{
			{ID: "a", Kind: StepKindDelay, Delay: &DelayConfig{Duration: 1, Unit: DelayUnitHours}, Next: strPtr("missing")},
			{ID: "a", Kind: StepKindSendEmail, SendEmail: &SendEmailConfig{}},
		},
	}

	err := workflow.ValidateGraph()
	require.Error(t, err)

	var validationErr *ValidationError

	require.ErrorAs(t, err, &validationErr)

	// trigger, duplicate id, dangling edge
	assert.GreaterOrEqual(t, len(validationErr.Violations), 3)
	assert.Contains(t, err.Error(), "segment_joined trigger requires segment_id")
	assert.Contains(t, err.Error(), `duplicate step id "a"`)
	assert.Contains(t, err.Error(), `references unknown step "missing"`)
}

func TestWorkflow_ValidateGraph_Empty(t *testing.T) {
	workflow := &Workflow{
		ID:      "wf-empty",
		Name:    "Empty",
		Trigger: Trigger{Kind: TriggerKindManual},
	}

	err := workflow.ValidateGraph()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}

func TestWorkflow_ReachableSteps_SkipsOrphans(t *testing.T) {
	workflow := validWorkflow()
	workflow.Steps = append(workflow.Steps, &Step{
		ID:   "orphan",
		Kind: StepKindDelay,
		Delay: &DelayConfig{
			Duration: 1,
			Unit:     DelayUnitHours,
		},
	})

	reachable := workflow.ReachableSteps()

	assert.True(t, reachable["wait"])
	assert.True(t, reachable["welcome"])
	assert.False(t, reachable["orphan"])
}

func TestWorkflow_ReachableSteps_FollowsBranches(t *testing.T) {
	workflow := validWorkflow()
	workflow.Steps = []*Step{
		{
			ID:   "check",
			Kind: StepKindCondition,
			Condition: &ConditionConfig{
				Predicate: Predicate{Field: "plan", Operator: OperatorEquals, Value: "pro"},
				TrueNext:  "pro-mail",
				FalseNext: "free-mail",
			},
		},
		{ID: "pro-mail", Kind: StepKindSendEmail, SendEmail: &SendEmailConfig{TemplateID: "t1", SubjectTemplate: "s"}},
		{ID: "free-mail", Kind: StepKindSendEmail, SendEmail: &SendEmailConfig{TemplateID: "t2", SubjectTemplate: "s"}},
	}

	reachable := workflow.ReachableSteps()

	assert.Len(t, reachable, 3)
}

func TestWorkflow_UnconfiguredSteps(t *testing.T) {
	workflow := validWorkflow()
	workflow.Steps[1].SendEmail.TemplateID = ""

	unconfigured := workflow.UnconfiguredSteps()

	assert.Equal(t, []string{"welcome"}, unconfigured)
}

func TestWorkflow_UnconfiguredSteps_IgnoresUnreachable(t *testing.T) {
	workflow := validWorkflow()
	workflow.Steps = append(workflow.Steps, &Step{ID: "orphan", Kind: StepKindSendEmail})

	assert.Empty(t, workflow.UnconfiguredSteps())
}

func TestWorkflow_Editable(t *testing.T) {
	workflow := validWorkflow()

	for status, editable := range map[WorkflowStatus]bool{
		WorkflowStatusDraft:    true,
		WorkflowStatusPaused:   true,
		WorkflowStatusActive:   false,
		WorkflowStatusArchived: false,
	} {
		workflow.Status = status
		assert.Equal(t, editable, workflow.Editable(), "status %s", status)
	}
}

func TestTrigger_Matches(t *testing.T) {
	segTrigger := Trigger{Kind: TriggerKindSegmentJoined, SegmentID: "seg-1"}

	assert.True(t, segTrigger.Matches(TriggerKindSegmentJoined, "seg-1", ""))
	assert.False(t, segTrigger.Matches(TriggerKindSegmentJoined, "seg-2", ""))
	assert.False(t, segTrigger.Matches(TriggerKindEvent, "seg-1", ""))

	eventTrigger := Trigger{Kind: TriggerKindEvent, EventType: "purchase"}

	assert.True(t, eventTrigger.Matches(TriggerKindEvent, "", "purchase"))
	assert.False(t, eventTrigger.Matches(TriggerKindEvent, "", "signup"))

	manual := Trigger{Kind: TriggerKindManual}

	assert.False(t, manual.Matches(TriggerKindManual, "", ""))
}
