package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
)

// RepositoryTests runs the behaviour shared by every workflow.Repository implementation.
// newRepo must return an empty repository.
func RepositoryTests(t *testing.T, newRepo func(t *testing.T) workflow.Repository) {
	t.Run("workflows", func(t *testing.T) { testWorkflows(t, newRepo(t)) })
	t.Run("stages", func(t *testing.T) { testStages(t, newRepo(t)) })
	t.Run("stage ordering", func(t *testing.T) { testStageOrdering(t, newRepo(t)) })
	t.Run("transitions", func(t *testing.T) { testTransitions(t, newRepo(t)) })
	t.Run("analytics", func(t *testing.T) { testAnalytics(t, newRepo(t)) })
	t.Run("cascade", func(t *testing.T) { testCascade(t, newRepo(t)) })
}

func workflowNames(wfs []workflow.Workflow) []string {
	names := make([]string, 0, len(wfs))
	for _, wf := range wfs {
		names = append(names, wf.Name)
	}
	return names
}

func testWorkflows(t *testing.T, repo workflow.Repository) {
	ctx := context.Background()
	fees := CreateWorkflow(t, repo, "Fees", 20, true)
	CreateWorkflow(t, repo, "Admissions", 10, true)
	CreateWorkflow(t, repo, "Archive", 10, false, Now.Add(time.Hour))

	got, err := repo.GetWorkflow(ctx, fees.ID)
	require.NoError(t, err)
	assert.Equal(t, fees, got)
	assert.Equal(t, Now, got.CreatedAt)

	all, err := repo.QueryWorkflows(ctx, workflow.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admissions", "Archive", "Fees"}, workflowNames(all))

	byName, err := repo.QueryWorkflows(ctx, workflow.QueryFilter{}, []core.DBOrdering{{Field: "name", Ascending: false}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Fees", "Archive", "Admissions"}, workflowNames(byName))

	active := true
	found, err := repo.QueryWorkflows(ctx, workflow.QueryFilter{Search: "A", Active: &active}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admissions"}, workflowNames(found))

	fees.Description = "Tuition and FEES collection"
	fees.Active = false
	fees.UpdatedAt = Now.Add(2 * time.Hour)
	updated, err := repo.UpdateWorkflow(ctx, fees)
	require.NoError(t, err)
	assert.Equal(t, fees, updated)

	found, err = repo.QueryWorkflows(ctx, workflow.QueryFilter{Search: "tuition"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fees"}, workflowNames(found))

	first, err := repo.GetWorkflowByName(ctx, "Fees")
	require.NoError(t, err)
	assert.Equal(t, fees.ID, first.ID)

	_, err = repo.GetWorkflowByName(ctx, "fees")
	assert.True(t, workflow.IsNotFound(err))
	_, err = repo.GetWorkflow(ctx, "missing")
	assert.True(t, workflow.IsNotFound(err))
	_, err = repo.UpdateWorkflow(ctx, workflow.Workflow{ID: "missing", Name: "x", UpdatedAt: Now})
	assert.True(t, workflow.IsNotFound(err))
	assert.True(t, workflow.IsNotFound(repo.DeleteWorkflow(ctx, "missing")))
}

func testStages(t *testing.T, repo workflow.Repository) {
	ctx := context.Background()
	wf := CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	graduation := CreateStage(t, repo, wf, "Graduation", 30, "")
	enrollment := CreateStage(t, repo, wf, "Enrollment", 20, "action_open_students")
	admission := CreateStage(t, repo, wf, "Admission", 20, "")
	inquiry := CreateStage(t, repo, wf, "Inquiry", 10, "action_open_admission_applications",
		graduation.ID, enrollment.ID, admission.ID)

	assert.Equal(t, []string{admission.ID, enrollment.ID, graduation.ID}, inquiry.NextStageIDs)
	assert.Equal(t, "action_open_admission_applications", inquiry.ActionRef)
	assert.Empty(t, graduation.NextStageIDs)

	stages, err := repo.QueryStages(ctx, wf.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(stages))
	for _, st := range stages {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{inquiry.ID, admission.ID, enrollment.ID, graduation.ID}, ids)

	some, err := repo.GetStages(ctx, graduation.ID, "missing", inquiry.ID)
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, inquiry.ID, some[0].ID)
	assert.Equal(t, graduation.ID, some[1].ID)

	none, err := repo.GetStages(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	inquiry.Name = "First Contact"
	inquiry.ActionRefs = []string{"action_open_students", "action_open_courses"}
	inquiry.MenuRef = "action_open_module"
	inquiry.NextStageIDs = []string{graduation.ID}
	inquiry.UpdatedAt = Now.Add(time.Hour)
	updated, err := repo.UpdateStage(ctx, inquiry)
	require.NoError(t, err)
	assert.Equal(t, "First Contact", updated.Name)
	assert.Equal(t, []string{"action_open_students", "action_open_courses"}, updated.ActionRefs)
	assert.Equal(t, "action_open_module", updated.MenuRef)
	assert.Equal(t, []string{graduation.ID}, updated.NextStageIDs)
	assert.Equal(t, Now, updated.CreatedAt)
	assert.Equal(t, Now.Add(time.Hour), updated.UpdatedAt)

	CreateAnalytics(t, repo, graduation, 3, 1, time.Time{})
	require.NoError(t, repo.DeleteStage(ctx, graduation.ID))
	got, err := repo.GetStage(ctx, inquiry.ID)
	require.NoError(t, err)
	assert.Empty(t, got.NextStageIDs)
	_, err = repo.GetStageAnalytics(ctx, wf.ID, graduation.ID)
	assert.True(t, workflow.IsNotFound(err))

	_, err = repo.GetStage(ctx, graduation.ID)
	assert.True(t, workflow.IsNotFound(err))
	assert.True(t, workflow.IsNotFound(repo.DeleteStage(ctx, graduation.ID)))
	_, err = repo.UpdateStage(ctx, workflow.Stage{ID: "missing", Name: "x", UpdatedAt: Now})
	assert.True(t, workflow.IsNotFound(err))
}

// testStageOrdering checks that names break sequence ties bytewise, so upper case sorts first.
func testStageOrdering(t *testing.T, repo workflow.Repository) {
	ctx := context.Background()
	wf := CreateWorkflow(t, repo, "Bursaries", 10, true)
	apply := CreateStage(t, repo, wf, "apply", 20, "")
	bursary := CreateStage(t, repo, wf, "Bursary", 20, "")
	start := CreateStage(t, repo, wf, "Start", 10, "", apply.ID, bursary.ID)
	assert.Equal(t, []string{bursary.ID, apply.ID}, start.NextStageIDs)

	stages, err := repo.QueryStages(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, []string{"Start", "Bursary", "apply"}, []string{stages[0].Name, stages[1].Name, stages[2].Name})

	some, err := repo.GetStages(ctx, apply.ID, bursary.ID)
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, bursary.ID, some[0].ID)
	assert.Equal(t, apply.ID, some[1].ID)
}

func testTransitions(t *testing.T, repo workflow.Repository) {
	ctx := context.Background()
	wf := CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	inquiry := CreateStage(t, repo, wf, "Inquiry", 10, "")
	admission := CreateStage(t, repo, wf, "Admission", 20, "")
	enrollment := CreateStage(t, repo, wf, "Enrollment", 30, "")

	first := CreateTransition(t, repo, inquiry, admission, `record.state == "draft"`, "")
	second := CreateTransition(t, repo, admission, enrollment, "", "action_open_students")

	got, err := repo.GetTransition(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Equal(t, `record.state == "draft"`, got.Condition)

	list, err := repo.QueryTransitions(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "Admission to Enrollment sorts first by name")

	n, err := repo.CountStageTransitions(ctx, admission.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.CountStageTransitions(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first.Condition = ""
	first.ToStageID = enrollment.ID
	first.Sequence = 1
	first.UpdatedAt = Now.Add(time.Hour)
	updated, err := repo.UpdateTransition(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first, updated)

	list, err = repo.QueryTransitions(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)

	require.NoError(t, repo.DeleteTransition(ctx, second.ID))
	_, err = repo.GetTransition(ctx, second.ID)
	assert.True(t, workflow.IsNotFound(err))
	assert.True(t, workflow.IsNotFound(repo.DeleteTransition(ctx, second.ID)))
	_, err = repo.UpdateTransition(ctx, second)
	assert.True(t, workflow.IsNotFound(err))
}

func testAnalytics(t *testing.T, repo workflow.Repository) {
	ctx := context.Background()
	wf := CreateWorkflow(t, repo, "Fees", 10, true)
	payment := CreateStage(t, repo, wf, "Payment", 20, "")
	invoice := CreateStage(t, repo, wf, "Invoice", 10, "")

	paymentRec := CreateAnalytics(t, repo, payment, 4, 2.5, Now)
	invoiceRec := CreateAnalytics(t, repo, invoice, 0, 0, time.Time{})
	assert.True(t, invoiceRec.LastUpdated.IsZero())

	got, err := repo.GetAnalytics(ctx, paymentRec.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentRec, got)
	assert.Equal(t, Now, got.LastUpdated)

	got, err = repo.GetStageAnalytics(ctx, wf.ID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoiceRec.ID, got.ID)

	_, err = repo.CreateAnalytics(ctx, workflow.AnalyticsRecord{WorkflowID: wf.ID, StageID: payment.ID})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	list, err := repo.QueryAnalytics(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, invoiceRec.ID, list[0].ID)

	invoiceRec.RecordCount = 9
	invoiceRec.Bottlenecks = "bank delays"
	invoiceRec.LastUpdated = Now.Add(time.Minute)
	updated, err := repo.UpdateAnalytics(ctx, invoiceRec)
	require.NoError(t, err)
	assert.Equal(t, invoiceRec, updated)

	require.NoError(t, repo.DeleteAnalytics(ctx, invoiceRec.ID))
	_, err = repo.GetAnalytics(ctx, invoiceRec.ID)
	assert.True(t, workflow.IsNotFound(err))
	assert.True(t, workflow.IsNotFound(repo.DeleteAnalytics(ctx, invoiceRec.ID)))
	_, err = repo.UpdateAnalytics(ctx, invoiceRec)
	assert.True(t, workflow.IsNotFound(err))
}

func testCascade(t *testing.T, repo workflow.Repository) {
	ctx := context.Background()
	wf := CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	other := CreateWorkflow(t, repo, "Fees", 20, true)
	a := CreateStage(t, repo, wf, "A", 10, "")
	b := CreateStage(t, repo, wf, "B", 20, "")
	a, err := repo.UpdateStage(ctx, workflow.Stage{
		ID: a.ID, WorkflowID: wf.ID, Name: a.Name, Sequence: a.Sequence, Color: a.Color,
		ButtonLabel: a.ButtonLabel, Active: true, NextStageIDs: []string{b.ID}, CreatedAt: Now, UpdatedAt: Now,
	})
	require.NoError(t, err)
	tr := CreateTransition(t, repo, a, b, "", "")
	rec := CreateAnalytics(t, repo, a, 1, 1, Now)
	kept := CreateStage(t, repo, other, "Kept", 10, "")

	require.NoError(t, repo.DeleteWorkflow(ctx, wf.ID))

	_, err = repo.GetWorkflow(ctx, wf.ID)
	assert.True(t, workflow.IsNotFound(err))
	_, err = repo.GetStage(ctx, a.ID)
	assert.True(t, workflow.IsNotFound(err))
	_, err = repo.GetTransition(ctx, tr.ID)
	assert.True(t, workflow.IsNotFound(err))
	_, err = repo.GetAnalytics(ctx, rec.ID)
	assert.True(t, workflow.IsNotFound(err))

	_, err = repo.GetStage(ctx, kept.ID)
	assert.NoError(t, err)
}
