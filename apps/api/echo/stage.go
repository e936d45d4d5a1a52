package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core/workflow"
)

// Stages

func (api *workflowApi) retrieveStage(ctx echo.Context) error {
	detail, err := api.svc.GetStageDetail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting stage")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *workflowApi) updateStage(ctx echo.Context) error {
	var data workflow.UpdateStage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStage")
	}
	st, err := api.svc.UpdateStage(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating stage")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *workflowApi) destroyStage(ctx echo.Context) error {
	if err := api.svc.DeleteStage(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting stage")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *workflowApi) nextStage(ctx echo.Context) error {
	st, err := api.svc.GetStage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting stage")
	}
	next, err := api.svc.NextStage(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "getting next stage")
	}
	if next == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, next)
}

func (api *workflowApi) executeStage(ctx echo.Context) error {
	a, err := api.svc.ExecuteStage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "executing stage")
	}
	return ctx.JSON(http.StatusOK, a)
}

// transitionToNext, openStageMenu and openStageActions answer `null` when nothing can be opened.

func (api *workflowApi) transitionToNext(ctx echo.Context) error {
	a, err := api.svc.TransitionToNext(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "transitioning to next stage")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *workflowApi) openStageMenu(ctx echo.Context) error {
	a, err := api.svc.OpenStageMenu(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening stage menu")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *workflowApi) openStageActions(ctx echo.Context) error {
	a, err := api.svc.OpenStageActions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening stage actions")
	}
	return ctx.JSON(http.StatusOK, a)
}
