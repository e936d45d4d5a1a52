package workflow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
)

func TestDomainTerm_JSON(t *testing.T) {
	a := workflow.WindowDescriptor("Fee Payments", "op.student.fees.details", "list,form",
		workflow.DomainTerm{Field: "state", Operator: "=", Value: "paid"})
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "ir.actions.act_window",
		"name": "Fee Payments",
		"res_model": "op.student.fees.details",
		"view_mode": "list,form",
		"domain": [["state", "=", "paid"]],
		"target": "current"
	}`, string(b))

	var got workflow.ActionDescriptor
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, a, got)

	var term workflow.DomainTerm
	assert.Error(t, json.Unmarshal([]byte(`["state", "="]`), &term))
	assert.Error(t, json.Unmarshal([]byte(`[1, "=", 2]`), &term))
}

func TestRegistry_Resolve(t *testing.T) {
	reg := workflow.DefaultRegistry()

	a, ok := reg.Resolve("action_open_parent_main")
	require.True(t, ok)
	assert.Equal(t, "res.partner", a.Model)
	assert.Equal(t, []workflow.DomainTerm{{Field: "is_parent", Operator: "=", Value: true}}, a.Domain)

	// callers get a copy
	a.Domain[0].Value = false
	a.Name = "changed"
	again, _ := reg.Resolve("action_open_parent_main")
	assert.Equal(t, "Student Support Services", again.Name)
	assert.Equal(t, true, again.Domain[0].Value)

	_, ok = reg.Resolve("")
	assert.False(t, ok)
	_, ok = reg.Resolve("action_open_graduation")
	assert.False(t, ok)

	model, ok := reg.ModelOf("action_open_exam_results")
	assert.True(t, ok)
	assert.Equal(t, "op.result.template", model)
	_, ok = reg.ModelOf("nope")
	assert.False(t, ok)
}

func TestRegistry_Register(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	assert.Empty(t, reg.Keys())

	tests := []struct {
		name    string
		key     string
		action  workflow.ActionDescriptor
		wantErr bool
	}{
		{name: "window", key: "b_action", action: workflow.WindowDescriptor("B", "op.b", "list")},
		{name: "notification", key: "a_action", action: workflow.NotificationDescriptor("Hi", "there", workflow.NotifyInfo)},
		{name: "blank key", key: "  ", action: workflow.WindowDescriptor("B", "op.b", "list"), wantErr: true},
		{name: "window without model", key: "c_action", action: workflow.WindowDescriptor("C", "", "list"), wantErr: true},
		{name: "unknown type", key: "d_action", action: workflow.ActionDescriptor{Type: "ir.actions.server"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.key, tt.action)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.Equal(t, []string{"a_action", "b_action"}, reg.Keys())

	_, ok := reg.ModelOf("a_action")
	assert.False(t, ok, "notifications have no model")
}

func TestRegistry_LoadConfig(t *testing.T) {
	reg := workflow.DefaultRegistry()
	err := reg.LoadConfig([]core.ActionConfig{
		{Key: "action_open_graduation", Name: "Graduates", Model: "op.student"},
		{Key: "action_open_fees_main", Name: "Overdue Fees", Model: "op.student.fees.details", ViewMode: "list",
			Target: "new", Domain: [][]interface{}{{"state", "=", "overdue"}}},
	})
	require.NoError(t, err)

	a, ok := reg.Resolve("action_open_graduation")
	require.True(t, ok)
	assert.Equal(t, workflow.WindowDescriptor("Graduates", "op.student", "list,form"), a)

	a, ok = reg.Resolve("action_open_fees_main")
	require.True(t, ok)
	assert.Equal(t, "Overdue Fees", a.Name)
	assert.Equal(t, "list", a.ViewMode)
	assert.Equal(t, "new", a.Target)
	assert.Equal(t, []workflow.DomainTerm{{Field: "state", Operator: "=", Value: "overdue"}}, a.Domain)

	err = reg.LoadConfig([]core.ActionConfig{{Key: "bad", Model: "op.x", Domain: [][]interface{}{{"state"}}}})
	assert.Error(t, err)
}

func TestWorkflowActions(t *testing.T) {
	wf := workflow.Workflow{ID: "wf-1", Name: "Student Lifecycle"}

	dash := workflow.DashboardAction(wf)
	assert.Equal(t, workflow.ClientAction, dash.Type)
	assert.Equal(t, workflow.DashboardTag, dash.Tag)
	assert.Equal(t, "Student Lifecycle Dashboard", dash.Name)
	assert.Equal(t, "wf-1", dash.Context["workflow_id"])

	stages := workflow.StagesAction(wf)
	assert.Equal(t, "Student Lifecycle - Stages", stages.Name)
	assert.Equal(t, workflow.StageModel, stages.Model)
	assert.Equal(t, "kanban,list,form", stages.ViewMode)
	assert.Equal(t, []workflow.DomainTerm{{Field: "workflow_id", Operator: "=", Value: "wf-1"}}, stages.Domain)
	assert.Equal(t, "wf-1", stages.Context["default_workflow_id"])

	analytics := workflow.AnalyticsAction(wf)
	assert.Equal(t, "Student Lifecycle - Analytics", analytics.Name)
	assert.Equal(t, workflow.AnalyticsModel, analytics.Model)
	assert.Equal(t, "list,form", analytics.ViewMode)
}
