package workflow_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/flowboard/core/workflow"
	testutil "github.com/trezcool/flowboard/tests"
)

func TestService_NextStage(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()
	wf := testutil.CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	b := testutil.CreateStage(t, repo, wf, "B", 20, "")
	a := testutil.CreateStage(t, repo, wf, "A", 20, "")
	c := testutil.CreateStage(t, repo, wf, "C", 5, "")
	start := testutil.CreateStage(t, repo, wf, "Start", 1, "", b.ID, a.ID, c.ID)
	end := testutil.CreateStage(t, repo, wf, "End", 99, "")

	next, err := svc.NextStage(ctx, start)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, c.ID, next.ID, "lowest sequence first")

	start, err = svc.UpdateStage(ctx, start.ID, workflow.UpdateStage{NextStageIDs: strsPtr(b.ID, a.ID)})
	require.NoError(t, err)
	next, err = svc.NextStage(ctx, start)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, a.ID, next.ID, "name breaks sequence ties")

	next, err = svc.NextStage(ctx, end)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestService_Scenario(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	wf, err := svc.CreateWorkflow(ctx, workflow.NewWorkflow{Name: "Onboarding"})
	require.NoError(t, err)
	start, err := svc.AddStage(ctx, wf.ID, workflow.NewStage{Name: "Start", Sequence: intPtr(10)})
	require.NoError(t, err)
	done, err := svc.AddStage(ctx, wf.ID, workflow.NewStage{Name: "Done", Sequence: intPtr(20)})
	require.NoError(t, err)
	finish, err := svc.AddTransition(ctx, wf.ID, workflow.NewTransition{
		Name:        "Finish",
		FromStageID: start.ID,
		ToStageID:   done.ID,
		Condition:   "True",
	})
	require.NoError(t, err)

	start, err = svc.GetStage(ctx, start.ID)
	require.NoError(t, err)
	next, err := svc.NextStage(ctx, start)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, done.ID, next.ID)
	assert.Equal(t, "Done", next.Name)

	res := svc.EvaluateTransition(finish, map[string]interface{}{})
	assert.True(t, res.Satisfied)
	assert.Nil(t, res.Warning)
}

func TestService_TransitionToNext(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()
	wf := testutil.CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	admission := testutil.CreateStage(t, repo, wf, "Admission", 20, "")
	inquiry := testutil.CreateStage(t, repo, wf, "Inquiry", 10, "", admission.ID)

	a, err := svc.TransitionToNext(ctx, inquiry.ID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, workflow.ActionDescriptor{
		Type:     workflow.WindowAction,
		Name:     "Transition to Admission",
		Model:    workflow.StageModel,
		ResID:    admission.ID,
		ViewMode: "form",
		Target:   "current",
	}, *a)

	a, err = svc.TransitionToNext(ctx, admission.ID)
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = svc.TransitionToNext(ctx, "missing")
	assert.True(t, workflow.IsNotFound(err))
}

func TestService_ExecuteStage(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()
	wf := testutil.CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	fees := testutil.CreateStage(t, repo, wf, "Payment", 10, "action_open_fees_payments")
	unknown := testutil.CreateStage(t, repo, wf, "Graduation", 60, "action_open_graduation")

	got, err := svc.ExecuteStage(ctx, fees.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.WindowAction, got.Type)
	assert.Equal(t, "op.student.fees.details", got.Model)
	assert.Equal(t, []workflow.DomainTerm{{Field: "state", Operator: "=", Value: "paid"}}, got.Domain)

	got, err = svc.ExecuteStage(ctx, unknown.ID)
	require.NoError(t, err)
	assert.True(t, got.IsNotification())
	assert.Equal(t, &workflow.Notification{
		Title:   "Stage Action",
		Message: "Executing Graduation stage - Open",
		Type:    workflow.NotifyInfo,
	}, got.Params)
}

func TestService_OpenStageMenuAndActions(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()
	wf := testutil.CreateWorkflow(t, repo, "Student Lifecycle", 10, true)

	st, err := svc.AddStage(ctx, wf.ID, workflow.NewStage{
		Name:       "Admission",
		MenuRef:    "action_open_admission_registers",
		ActionRefs: []string{"action_unknown", "action_open_admission_applications", "action_open_students"},
	})
	require.NoError(t, err)
	bare, err := svc.AddStage(ctx, wf.ID, workflow.NewStage{Name: "Inquiry", MenuRef: "menu_unknown"})
	require.NoError(t, err)

	menu, err := svc.OpenStageMenu(ctx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, menu)
	assert.Equal(t, "op.admission.register", menu.Model)

	menu, err = svc.OpenStageMenu(ctx, bare.ID)
	require.NoError(t, err)
	assert.Nil(t, menu)

	action, err := svc.OpenStageActions(ctx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, "Admission Applications", action.Name)

	action, err = svc.OpenStageActions(ctx, bare.ID)
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestService_EvaluateTransition(t *testing.T) {
	svc, _ := newService(t, nil)
	vars := map[string]interface{}{"age": 19, "record": map[string]interface{}{"state": "draft"}}

	tests := []struct {
		name        string
		guard       string
		satisfied   bool
		wantWarning bool
	}{
		{name: "no guard", guard: "", satisfied: true},
		{name: "True", guard: "True", satisfied: true},
		{name: "False", guard: "False", satisfied: false},
		{name: "field comparison", guard: `age >= 18 and record.state == "draft"`, satisfied: true},
		{name: "false comparison", guard: "age < 18", satisfied: false},
		{name: "syntax error", guard: "age >=", wantWarning: true},
		{name: "unknown field", guard: "balance > 0", wantWarning: true},
		{name: "code injection", guard: "__import__('os').system('ls')", wantWarning: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.EvaluateTransition(workflow.Transition{Name: "T", Condition: tt.guard}, vars)
			assert.Equal(t, tt.satisfied, res.Satisfied)
			if !tt.wantWarning {
				assert.Nil(t, res.Warning)
				return
			}
			require.NotNil(t, res.Warning)
			assert.True(t, res.Warning.IsNotification())
			assert.Equal(t, "Transition Blocked", res.Warning.Params.Title)
			assert.Equal(t, workflow.NotifyWarning, res.Warning.Params.Type)
		})
	}
}

func TestService_ExecuteTransition(t *testing.T) {
	svc, repo := newService(t, nil)
	ctx := context.Background()
	wf := testutil.CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	inquiry := testutil.CreateStage(t, repo, wf, "Inquiry", 10, "")
	admission := testutil.CreateStage(t, repo, wf, "Admission", 20, "")

	open := testutil.CreateTransition(t, repo, inquiry, admission, "", "")
	withAction := testutil.CreateTransition(t, repo, inquiry, admission, "", "action_open_admission_applications")
	guarded := testutil.CreateTransition(t, repo, inquiry, admission, "paid", "action_open_admission_applications")
	broken := testutil.CreateTransition(t, repo, inquiry, admission, "paid ==", "")

	got, err := svc.ExecuteTransition(ctx, open.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.RecordDescriptor("Transition to Admission", workflow.StageModel, admission.ID), got)

	got, err = svc.ExecuteTransition(ctx, withAction.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "op.admission", got.Model)

	got, err = svc.ExecuteTransition(ctx, guarded.ID, map[string]interface{}{"paid": false})
	require.NoError(t, err)
	require.True(t, got.IsNotification())
	assert.Equal(t, "Transition condition not met.", got.Params.Message)

	got, err = svc.ExecuteTransition(ctx, guarded.ID, map[string]interface{}{"paid": true})
	require.NoError(t, err)
	assert.Equal(t, "op.admission", got.Model)

	got, err = svc.ExecuteTransition(ctx, broken.ID, map[string]interface{}{"paid": true})
	require.NoError(t, err)
	require.True(t, got.IsNotification())
	assert.Equal(t, "Transition Blocked", got.Params.Title)
	assert.True(t, strings.HasPrefix(got.Params.Message, "Transition condition could not be evaluated: "))

	_, err = svc.ExecuteTransition(ctx, "missing", nil)
	assert.True(t, workflow.IsNotFound(err))
}
