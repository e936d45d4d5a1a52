package workflow

import (
	"context"
	"fmt"

	"github.com/trezcool/flowboard/core/workflow/guard"
)

const transitionBlocked = "Transition Blocked"

// GuardResult is the outcome of a transition guard.
// Warning is set when the guard could not be parsed or evaluated.
type GuardResult struct {
	Satisfied bool              `json:"satisfied"`
	Warning   *ActionDescriptor `json:"warning"`
}

// NextStage returns the first of the stage's next stages, or nil when it has none.
func (svc *Service) NextStage(ctx context.Context, st Stage) (*Stage, error) {
	if len(st.NextStageIDs) == 0 {
		return nil, nil
	}
	stages, err := svc.repo.GetStages(ctx, st.NextStageIDs...)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, nil
	}
	sortStages(stages)
	next := stages[0]
	return &next, nil
}

// TransitionToNext opens the first next stage of the stage, or returns nil when there is none.
func (svc *Service) TransitionToNext(ctx context.Context, stageID string) (*ActionDescriptor, error) {
	st, err := svc.repo.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	next, err := svc.NextStage(ctx, st)
	if err != nil || next == nil {
		return nil, err
	}
	a := RecordDescriptor("Transition to "+next.Name, StageModel, next.ID)
	return &a, nil
}

// ExecuteStage resolves the stage action. Unknown actions fall back to an informational notification.
func (svc *Service) ExecuteStage(ctx context.Context, stageID string) (ActionDescriptor, error) {
	st, err := svc.repo.GetStage(ctx, stageID)
	if err != nil {
		return ActionDescriptor{}, err
	}
	return svc.stageAction(st), nil
}

func (svc *Service) stageAction(st Stage) ActionDescriptor {
	if a, ok := svc.registry.Resolve(st.ActionRef); ok {
		return a
	}
	if st.ActionRef != "" {
		svc.logger.Debug(fmt.Sprintf("stage %q: unknown action %q", st.Name, st.ActionRef))
	}
	return NotificationDescriptor(
		"Stage Action",
		fmt.Sprintf("Executing %s stage - %s", st.Name, st.ButtonLabel),
		NotifyInfo,
	)
}

// OpenStageMenu resolves the menu reference of the stage. It returns nil when nothing resolves.
func (svc *Service) OpenStageMenu(ctx context.Context, stageID string) (*ActionDescriptor, error) {
	st, err := svc.repo.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	a, ok := svc.registry.Resolve(st.MenuRef)
	if !ok {
		if st.MenuRef != "" {
			svc.logger.Warn(fmt.Sprintf("stage %q: menu %q not found", st.Name, st.MenuRef))
		}
		return nil, nil
	}
	return &a, nil
}

// OpenStageActions returns the first resolvable entry of the stage's action list.
func (svc *Service) OpenStageActions(ctx context.Context, stageID string) (*ActionDescriptor, error) {
	st, err := svc.repo.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	for _, ref := range st.ActionRefs {
		if a, ok := svc.registry.Resolve(ref); ok {
			return &a, nil
		}
	}
	return nil, nil
}

// EvaluateTransition evaluates the guard of t against vars. It never returns the guard error:
// a broken guard is reported as unsatisfied with a warning.
func (svc *Service) EvaluateTransition(t Transition, vars map[string]interface{}) GuardResult {
	if t.Condition == "" {
		return GuardResult{Satisfied: true}
	}
	if vars == nil {
		vars = map[string]interface{}{}
	}
	ok, err := guard.Evaluate(t.Condition, vars)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("transition %q: guard %q: %v", t.Name, t.Condition, err))
		w := NotificationDescriptor(
			transitionBlocked,
			"Transition condition could not be evaluated: "+err.Error(),
			NotifyWarning,
		)
		return GuardResult{Warning: &w}
	}
	return GuardResult{Satisfied: ok}
}

// ExecuteTransition checks the guard, then resolves the transition action,
// falling back to opening the target stage.
func (svc *Service) ExecuteTransition(ctx context.Context, id string, vars map[string]interface{}) (ActionDescriptor, error) {
	t, err := svc.repo.GetTransition(ctx, id)
	if err != nil {
		return ActionDescriptor{}, err
	}

	res := svc.EvaluateTransition(t, vars)
	if res.Warning != nil {
		return *res.Warning, nil
	}
	if !res.Satisfied {
		return NotificationDescriptor(transitionBlocked, "Transition condition not met.", NotifyWarning), nil
	}

	if a, ok := svc.registry.Resolve(t.ActionRef); ok {
		return a, nil
	}
	to, err := svc.repo.GetStage(ctx, t.ToStageID)
	if err != nil {
		return ActionDescriptor{}, err
	}
	return RecordDescriptor("Transition to "+to.Name, StageModel, to.ID), nil
}
