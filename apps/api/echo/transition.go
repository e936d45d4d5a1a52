package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core/workflow"
)

// Transitions

func (api *workflowApi) retrieveTransition(ctx echo.Context) error {
	detail, err := api.svc.GetTransitionDetail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting transition")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *workflowApi) updateTransition(ctx echo.Context) error {
	var data workflow.UpdateTransition
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTransition")
	}
	t, err := api.svc.UpdateTransition(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating transition")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *workflowApi) destroyTransition(ctx echo.Context) error {
	if err := api.svc.DeleteTransition(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting transition")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *workflowApi) evaluateTransition(ctx echo.Context) error {
	var data GuardContext
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GuardContext")
	}
	t, err := api.svc.GetTransition(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting transition")
	}
	return ctx.JSON(http.StatusOK, api.svc.EvaluateTransition(t, data.Context))
}

func (api *workflowApi) executeTransition(ctx echo.Context) error {
	var data GuardContext
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GuardContext")
	}
	a, err := api.svc.ExecuteTransition(ctx.Request().Context(), ctx.Param("id"), data.Context)
	if err != nil {
		return errors.Wrap(err, "executing transition")
	}
	return ctx.JSON(http.StatusOK, a)
}
