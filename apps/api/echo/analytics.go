package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core/workflow"
)

// Analytics

func (api *workflowApi) retrieveAnalytics(ctx echo.Context) error {
	detail, err := api.svc.GetAnalytics(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting analytics")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *workflowApi) updateAnalytics(ctx echo.Context) error {
	var data workflow.UpdateAnalytics
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnalytics")
	}
	detail, err := api.svc.UpdateAnalytics(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating analytics")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *workflowApi) destroyAnalytics(ctx echo.Context) error {
	if err := api.svc.DeleteAnalytics(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting analytics")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *workflowApi) refreshStageAnalytics(ctx echo.Context) error {
	a, err := api.svc.RefreshAnalytics(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "refreshing analytics")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *workflowApi) viewStageRecords(ctx echo.Context) error {
	a, err := api.svc.ViewStageRecords(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "viewing stage records")
	}
	return ctx.JSON(http.StatusOK, a)
}
