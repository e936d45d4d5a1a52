package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core/workflow"
)

type workflowApi struct {
	svc *workflow.Service
}

func registerWorkflowAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *workflow.Service) {
	api := workflowApi{svc: svc}

	ag := g.Group("", jwt, adminMiddleware())
	ag.GET("/actions", api.queryActions)

	wg := ag.Group("/workflows")
	wg.GET("", api.query)
	wg.POST("", api.create)
	wg.GET("/student-lifecycle", api.studentLifecycle)
	wg.GET("/:id", api.retrieve)
	wg.PUT("/:id", api.update)
	wg.DELETE("/:id", api.destroy)
	wg.GET("/:id/actions/:name", api.action)
	wg.POST("/:id/setup", api.setup)
	wg.GET("/:id/stages", api.queryStages)
	wg.POST("/:id/stages", api.createStage)
	wg.GET("/:id/transitions", api.queryTransitions)
	wg.POST("/:id/transitions", api.createTransition)
	wg.GET("/:id/analytics", api.queryAnalytics)
	wg.POST("/:id/analytics/refresh", api.refreshAnalytics)

	sg := ag.Group("/stages/:id")
	sg.GET("", api.retrieveStage)
	sg.PUT("", api.updateStage)
	sg.DELETE("", api.destroyStage)
	sg.GET("/next", api.nextStage)
	sg.POST("/execute", api.executeStage)
	sg.POST("/transition-next", api.transitionToNext)
	sg.POST("/open-menu", api.openStageMenu)
	sg.POST("/open-actions", api.openStageActions)

	tg := ag.Group("/transitions/:id")
	tg.GET("", api.retrieveTransition)
	tg.PUT("", api.updateTransition)
	tg.DELETE("", api.destroyTransition)
	tg.POST("/evaluate", api.evaluateTransition)
	tg.POST("/execute", api.executeTransition)

	rg := ag.Group("/analytics/:id")
	rg.GET("", api.retrieveAnalytics)
	rg.PUT("", api.updateAnalytics)
	rg.DELETE("", api.destroyAnalytics)
	rg.POST("/refresh", api.refreshStageAnalytics)
	rg.GET("/records", api.viewStageRecords)
}

// Workflows

func (api *workflowApi) queryActions(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Registry().Keys())
}

func (api *workflowApi) query(ctx echo.Context) error {
	filter := new(workflow.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []workflow.Workflow{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	workflows, err := api.svc.QueryWorkflows(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying workflows")
	}
	if workflows == nil {
		workflows = []workflow.Workflow{}
	}
	return ctx.JSON(http.StatusOK, workflows)
}

func (api *workflowApi) create(ctx echo.Context) error {
	var data workflow.NewWorkflow
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewWorkflow")
	}
	wf, err := api.svc.CreateWorkflow(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating workflow")
	}
	return ctx.JSON(http.StatusCreated, wf)
}

func (api *workflowApi) studentLifecycle(ctx echo.Context) error {
	wf, err := api.svc.StudentLifecycle(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting student lifecycle")
	}
	return ctx.JSON(http.StatusOK, wf)
}

func (api *workflowApi) retrieve(ctx echo.Context) error {
	wd, err := api.svc.GetWorkflowDetail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting workflow")
	}
	return ctx.JSON(http.StatusOK, wd)
}

func (api *workflowApi) update(ctx echo.Context) error {
	var data workflow.UpdateWorkflow
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateWorkflow")
	}
	wf, err := api.svc.UpdateWorkflow(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating workflow")
	}
	return ctx.JSON(http.StatusOK, wf)
}

func (api *workflowApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteWorkflow(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting workflow")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *workflowApi) action(ctx echo.Context) error {
	wf, err := api.svc.GetWorkflow(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting workflow")
	}
	var a workflow.ActionDescriptor
	switch ctx.Param("name") {
	case "dashboard":
		a = workflow.DashboardAction(wf)
	case "stages":
		a = workflow.StagesAction(wf)
	case "analytics":
		a = workflow.AnalyticsAction(wf)
	default:
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *workflowApi) setup(ctx echo.Context) error {
	var data workflow.SetupOptions
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetupOptions")
	}
	res, err := api.svc.Setup(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting up workflow")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *workflowApi) queryStages(ctx echo.Context) error {
	stages, err := api.svc.QueryStages(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying stages")
	}
	if stages == nil {
		stages = []workflow.Stage{}
	}
	return ctx.JSON(http.StatusOK, stages)
}

func (api *workflowApi) createStage(ctx echo.Context) error {
	var data workflow.NewStage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStage")
	}
	st, err := api.svc.AddStage(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding stage")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *workflowApi) queryTransitions(ctx echo.Context) error {
	transitions, err := api.svc.QueryTransitions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying transitions")
	}
	if transitions == nil {
		transitions = []workflow.Transition{}
	}
	return ctx.JSON(http.StatusOK, transitions)
}

func (api *workflowApi) createTransition(ctx echo.Context) error {
	var data workflow.NewTransition
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTransition")
	}
	t, err := api.svc.AddTransition(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding transition")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *workflowApi) queryAnalytics(ctx echo.Context) error {
	records, err := api.svc.QueryAnalytics(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying analytics")
	}
	if records == nil {
		records = []workflow.AnalyticsDetail{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *workflowApi) refreshAnalytics(ctx echo.Context) error {
	records, err := api.svc.RefreshWorkflowAnalytics(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "refreshing analytics")
	}
	if records == nil {
		records = []workflow.AnalyticsRecord{}
	}
	return ctx.JSON(http.StatusOK, records)
}
