package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/flowboard/core/workflow"
	testutil "github.com/trezcool/flowboard/tests"
)

func Test_workflowApi_query(t *testing.T) {
	app := setup(t, nil)
	path := func(search, active, ordering string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if active != "" {
			v.Add("active", active)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		return "/v1/workflows?" + v.Encode()
	}

	fees := testutil.CreateWorkflow(t, app.repo, "Fees", 20, true)
	admissions := testutil.CreateWorkflow(t, app.repo, "Admissions", 10, true)
	archived := testutil.CreateWorkflow(t, app.repo, "Archived Fees", 30, false)

	tests := []httpTest{
		{
			name:     "all",
			path:     path("", "", ""),
			wantData: marshalObj(t, []workflow.Workflow{admissions, fees, archived}),
		},
		{
			name:     "ordering",
			path:     path("", "", "-sequence"),
			wantData: marshalObj(t, []workflow.Workflow{archived, fees, admissions}),
		},
		{
			name:     "ordering by name, unknown fields ignored",
			path:     path("", "", "bogus, -name"),
			wantData: marshalObj(t, []workflow.Workflow{fees, archived, admissions}),
		},
		{
			name:     "search",
			path:     path(" FEES ", "", ""),
			wantData: marshalObj(t, []workflow.Workflow{fees, archived}),
		},
		{
			name:     "search active",
			path:     path("fees", "true", ""),
			wantData: marshalObj(t, []workflow.Workflow{fees}),
		},
		{
			name:     "inactive",
			path:     path("", "false", ""),
			wantData: marshalObj(t, []workflow.Workflow{archived}),
		},
		{
			name:     "no match",
			path:     path("library", "", ""),
			wantData: []byte(`[]`),
		},
		{
			name:     "invalid filter",
			path:     path("", "maybe", ""),
			wantData: []byte(`[]`),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].token = app.token
		tests[i].wantCode = http.StatusOK
	}
	runHTTPTests(t, app, tests)
}

func Test_workflowApi_crud(t *testing.T) {
	app := setup(t, nil)
	ctx := context.Background()

	// create
	rec := app.serve(httpTest{
		method: http.MethodPost,
		path:   "/v1/workflows",
		token:  app.token,
		body:   []byte(`{"name": "  Admissions ", "color": "#E74C3C", "icon": "fa-user-plus"}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var wf workflow.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "Admissions", wf.Name)
	assert.Equal(t, "#e74c3c", wf.Color)
	assert.Equal(t, workflow.DefaultSequence, wf.Sequence)
	assert.True(t, wf.Active)

	st := testutil.CreateStage(t, app.repo, wf, "Review", 10, "")
	testutil.CreateAnalytics(t, app.repo, st, 4, 1, testutil.Now)

	detail, err := app.svc.GetWorkflowDetail(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, 1, detail.StageCount)
	require.Equal(t, 100.0, detail.ProgressPercentage)

	tests := []httpTest{
		{
			name:     "create without name",
			method:   http.MethodPost,
			path:     "/v1/workflows",
			body:     []byte(`{"name": "  ", "color": "blue"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field is required", "color": "color must be a hex color such as #3498db"}`),
		},
		{
			name:     "retrieve",
			method:   http.MethodGet,
			path:     "/v1/workflows/" + wf.ID,
			wantCode: http.StatusOK,
			wantData: marshalObj(t, detail),
		},
		{
			name:     "retrieve unknown",
			method:   http.MethodGet,
			path:     "/v1/workflows/unknown",
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "workflow not found"}),
		},
		{
			name:     "update blank name",
			method:   http.MethodPut,
			path:     "/v1/workflows/" + wf.ID,
			body:     []byte(`{"name": "   "}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name:     "update unknown",
			method:   http.MethodPut,
			path:     "/v1/workflows/unknown",
			body:     []byte(`{"active": false}`),
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "workflow not found"}),
		},
	}
	for i := range tests {
		tests[i].token = app.token
	}
	runHTTPTests(t, app, tests)

	rec = app.serve(httpTest{method: http.MethodPost, path: "/v1/workflows", token: app.token, body: []byte(`{"name": 12}`)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unmarshal type error")

	// update
	rec = app.serve(httpTest{
		method: http.MethodPut,
		path:   "/v1/workflows/" + wf.ID,
		token:  app.token,
		body:   []byte(`{"description": "New students", "sequence": 5, "active": false}`),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated, err := app.repo.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admissions", updated.Name)
	assert.Equal(t, "New students", updated.Description)
	assert.Equal(t, 5, updated.Sequence)
	assert.False(t, updated.Active)
	assert.Equal(t, testutil.Now, updated.UpdatedAt)

	// delete cascades
	rec = app.serve(httpTest{method: http.MethodDelete, path: "/v1/workflows/" + wf.ID, token: app.token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = app.repo.GetWorkflow(ctx, wf.ID)
	assert.True(t, workflow.IsNotFound(err))
	_, err = app.repo.GetStage(ctx, st.ID)
	assert.True(t, workflow.IsNotFound(err))

	rec = app.serve(httpTest{method: http.MethodDelete, path: "/v1/workflows/" + wf.ID, token: app.token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_workflowApi_studentLifecycle(t *testing.T) {
	app := setup(t, nil)
	tt := httpTest{method: http.MethodGet, path: "/v1/workflows/student-lifecycle", token: app.token}

	rec := app.serve(tt)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first workflow.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, workflow.StudentLifecycleName, first.Name)
	assert.Equal(t, "fa-graduation-cap", first.Icon)

	rec = app.serve(tt)
	require.Equal(t, http.StatusOK, rec.Code)
	var second workflow.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)

	all, err := app.svc.QueryWorkflows(context.Background(), workflow.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func Test_workflowApi_actions(t *testing.T) {
	app := setup(t, nil)
	wf := testutil.CreateWorkflow(t, app.repo, "Student Lifecycle", 10, true)

	tests := []httpTest{
		{
			name:     "registry keys",
			path:     "/v1/actions",
			wantCode: http.StatusOK,
			wantData: marshalObj(t, app.svc.Registry().Keys()),
		},
		{
			name:     "dashboard",
			path:     "/v1/workflows/" + wf.ID + "/actions/dashboard",
			wantCode: http.StatusOK,
			wantData: marshalObj(t, workflow.DashboardAction(wf)),
		},
		{
			name:     "stages",
			path:     "/v1/workflows/" + wf.ID + "/actions/stages",
			wantCode: http.StatusOK,
			wantData: marshalObj(t, workflow.StagesAction(wf)),
		},
		{
			name:     "analytics",
			path:     "/v1/workflows/" + wf.ID + "/actions/analytics",
			wantCode: http.StatusOK,
			wantData: marshalObj(t, workflow.AnalyticsAction(wf)),
		},
		{
			name:     "unknown action",
			path:     "/v1/workflows/" + wf.ID + "/actions/reports",
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "unknown workflow",
			path:     "/v1/workflows/unknown/actions/dashboard",
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "workflow not found"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].token = app.token
	}
	runHTTPTests(t, app, tests)
}

func Test_workflowApi_setup(t *testing.T) {
	app := setup(t, nil)
	wf := testutil.CreateWorkflow(t, app.repo, "Recruitment", 10, true)

	rec := app.serve(httpTest{
		method: http.MethodPost,
		path:   "/v1/workflows/" + wf.ID + "/setup",
		token:  app.token,
		body:   []byte(`{"setup_type": "wizard"}`),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = app.serve(httpTest{
		method: http.MethodPost,
		path:   "/v1/workflows/" + wf.ID + "/setup",
		token:  app.token,
		body: []byte(`{
			"setup_type": "custom",
			"custom_stages": [{"name": "Applied", "sequence": 1}, {"name": "Hired", "sequence": 2}],
			"custom_transitions": [{"from": "Applied", "to": "Hired"}, {"from": "Applied", "to": "Hird"}]
		}`),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res workflow.SetupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"Applied", "Hired"}, []string{res.Stages[0].Name, res.Stages[1].Name})
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, "Applied to Hired", res.Transitions[0].Name)
	assert.Zero(t, res.Analytics)
	assert.Equal(t, []string{`transition "Applied" -> "Hird" skipped: unknown stage "Hird" (did you mean "Hired"?)`}, res.Warnings)
	assert.True(t, res.Notification.IsNotification())

	// sub-collections
	stages, err := app.svc.QueryStages(context.Background(), wf.ID)
	require.NoError(t, err)
	transitions, err := app.svc.QueryTransitions(context.Background(), wf.ID)
	require.NoError(t, err)
	records, err := app.svc.QueryAnalytics(context.Background(), wf.ID)
	require.NoError(t, err)

	tests := []httpTest{
		{
			name:     "stages",
			path:     "/v1/workflows/" + wf.ID + "/stages",
			wantData: marshalObj(t, stages),
		},
		{
			name:     "transitions",
			path:     "/v1/workflows/" + wf.ID + "/transitions",
			wantData: marshalObj(t, transitions),
		},
		{
			name:     "analytics",
			path:     "/v1/workflows/" + wf.ID + "/analytics",
			wantData: marshalObj(t, records),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].token = app.token
		tests[i].wantCode = http.StatusOK
	}
	runHTTPTests(t, app, tests)
}
