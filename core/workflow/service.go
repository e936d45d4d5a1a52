package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core"
)

var (
	// errors
	ErrWorkflowNotFound        = errors.New("workflow not found")
	ErrStageNotFound           = errors.New("stage not found")
	ErrTransitionNotFound      = errors.New("transition not found")
	ErrAnalyticsNotFound       = errors.New("analytics record not found")
	ErrCrossWorkflowTransition = errors.New("a transition cannot join stages of different workflows")
	ErrForeignStage            = errors.New("stage belongs to another workflow")
	ErrStageInUse              = errors.New("stage is used by transitions")
	ErrDuplicateAnalytics      = errors.New("the stage already has an analytics record")
	ErrEmptyName               = errors.New("this field is required")
)

// IsNotFound reports whether the cause of err is one of the not-found errors of this package.
func IsNotFound(err error) bool {
	switch errors.Cause(err) {
	case ErrWorkflowNotFound, ErrStageNotFound, ErrTransitionNotFound, ErrAnalyticsNotFound:
		return true
	}
	return false
}

type (
	// Repository persists workflows and everything they own.
	// Stage lists are ordered by (sequence, name); transition lists by (sequence, name) too.
	Repository interface {
		CreateWorkflow(ctx context.Context, wf Workflow) (Workflow, error)
		// QueryWorkflows applies AND on the filter fields.
		// QueryFilter.Search does a case-insensitive match on Workflow.Name or Workflow.Description.
		QueryWorkflows(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]Workflow, error)
		GetWorkflow(ctx context.Context, id string) (Workflow, error)
		GetWorkflowByName(ctx context.Context, name string) (Workflow, error)
		UpdateWorkflow(ctx context.Context, wf Workflow) (Workflow, error)
		// DeleteWorkflow deletes the workflow with its stages, transitions and analytics.
		DeleteWorkflow(ctx context.Context, id string) error

		CreateStage(ctx context.Context, st Stage) (Stage, error)
		QueryStages(ctx context.Context, workflowID string) ([]Stage, error)
		GetStage(ctx context.Context, id string) (Stage, error)
		GetStages(ctx context.Context, ids ...string) ([]Stage, error)
		// UpdateStage replaces the next-stage links with st.NextStageIDs.
		UpdateStage(ctx context.Context, st Stage) (Stage, error)
		// DeleteStage also removes the links pointing to the stage and its analytics record.
		DeleteStage(ctx context.Context, id string) error

		CreateTransition(ctx context.Context, t Transition) (Transition, error)
		QueryTransitions(ctx context.Context, workflowID string) ([]Transition, error)
		GetTransition(ctx context.Context, id string) (Transition, error)
		UpdateTransition(ctx context.Context, t Transition) (Transition, error)
		DeleteTransition(ctx context.Context, id string) error
		// CountStageTransitions counts the transitions leaving or entering the stage.
		CountStageTransitions(ctx context.Context, stageID string) (int, error)

		CreateAnalytics(ctx context.Context, rec AnalyticsRecord) (AnalyticsRecord, error)
		QueryAnalytics(ctx context.Context, workflowID string) ([]AnalyticsRecord, error)
		GetAnalytics(ctx context.Context, id string) (AnalyticsRecord, error)
		GetStageAnalytics(ctx context.Context, workflowID, stageID string) (AnalyticsRecord, error)
		UpdateAnalytics(ctx context.Context, rec AnalyticsRecord) (AnalyticsRecord, error)
		DeleteAnalytics(ctx context.Context, id string) error
	}

	Deps struct {
		Validate *validator.Validate
		Registry *Registry      // DefaultRegistry() when nil
		Counter  RecordCounter  // counts nothing when nil
		Mailer   core.EmailService
		Logger   core.Logger
		Clock    func() time.Time
		AppName  string
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		registry *Registry
		counter  RecordCounter
		mailer   core.EmailService
		logger   core.Logger
		now      func() time.Time
		appName  string
	}
)

func NewService(repo Repository, deps Deps) *Service {
	svc := &Service{
		repo:     repo,
		validate: deps.Validate,
		registry: deps.Registry,
		counter:  deps.Counter,
		mailer:   deps.Mailer,
		logger:   deps.Logger,
		now:      deps.Clock,
		appName:  deps.AppName,
	}
	if svc.validate == nil {
		svc.validate, _ = core.NewValidator()
	}
	if svc.registry == nil {
		svc.registry = DefaultRegistry()
	}
	if svc.counter == nil {
		svc.counter = RecordCounterFunc(func(context.Context, string) (int, error) { return 0, nil })
	}
	if svc.logger == nil {
		svc.logger = nopLogger{}
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

func (svc *Service) Registry() *Registry { return svc.registry }

func (svc *Service) timestamp() time.Time { return svc.now().UTC() }

// Workflows

func (svc *Service) CreateWorkflow(ctx context.Context, nw NewWorkflow) (Workflow, error) {
	if err := nw.Validate(svc.validate); err != nil {
		return Workflow{}, err
	}
	now := svc.timestamp()
	wf := Workflow{
		Name:        nw.Name,
		Description: nw.Description,
		Sequence:    intOr(nw.Sequence, DefaultSequence),
		Color:       stringOr(nw.Color, DefaultWorkflowColor),
		Icon:        nw.Icon,
		Active:      boolOr(nw.Active, true),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateWorkflow(ctx, wf)
}

func (svc *Service) QueryWorkflows(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Workflow, error) {
	filter.Clean()
	return svc.repo.QueryWorkflows(ctx, filter, orderings)
}

func (svc *Service) GetWorkflow(ctx context.Context, id string) (Workflow, error) {
	return svc.repo.GetWorkflow(ctx, id)
}

func (svc *Service) GetWorkflowDetail(ctx context.Context, id string) (WorkflowDetail, error) {
	wf, err := svc.repo.GetWorkflow(ctx, id)
	if err != nil {
		return WorkflowDetail{}, err
	}
	stages, err := svc.repo.QueryStages(ctx, id)
	if err != nil {
		return WorkflowDetail{}, err
	}
	records, err := svc.repo.QueryAnalytics(ctx, id)
	if err != nil {
		return WorkflowDetail{}, err
	}
	sortStages(stages)
	return WorkflowDetail{
		Workflow:           wf,
		StageCount:         len(stages),
		ProgressPercentage: progress(stages, records),
	}, nil
}

func (svc *Service) UpdateWorkflow(ctx context.Context, id string, uw UpdateWorkflow) (Workflow, error) {
	if err := uw.Validate(svc.validate); err != nil {
		return Workflow{}, err
	}
	if uw.Name != nil && *uw.Name == "" {
		return Workflow{}, core.NewFieldError(ErrEmptyName, "name")
	}
	wf, err := svc.repo.GetWorkflow(ctx, id)
	if err != nil {
		return Workflow{}, err
	}
	if uw.Name != nil {
		wf.Name = *uw.Name
	}
	if uw.Description != nil {
		wf.Description = *uw.Description
	}
	if uw.Sequence != nil {
		wf.Sequence = *uw.Sequence
	}
	if uw.Color != nil {
		wf.Color = stringOr(*uw.Color, DefaultWorkflowColor)
	}
	if uw.Icon != nil {
		wf.Icon = *uw.Icon
	}
	if uw.Active != nil {
		wf.Active = *uw.Active
	}
	wf.UpdatedAt = svc.timestamp()
	return svc.repo.UpdateWorkflow(ctx, wf)
}

// DeleteWorkflow deletes the workflow and everything it owns.
func (svc *Service) DeleteWorkflow(ctx context.Context, id string) error {
	return svc.repo.DeleteWorkflow(ctx, id)
}

func (svc *Service) StageCount(ctx context.Context, workflowID string) (int, error) {
	stages, err := svc.repo.QueryStages(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	return len(stages), nil
}

// Progress is the share of the recorded items sitting in the final stage, in percent.
func (svc *Service) Progress(ctx context.Context, workflowID string) (float64, error) {
	detail, err := svc.GetWorkflowDetail(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	return detail.ProgressPercentage, nil
}

// StudentLifecycle returns the "Student Lifecycle" workflow, creating it when missing.
func (svc *Service) StudentLifecycle(ctx context.Context) (Workflow, error) {
	wf, err := svc.repo.GetWorkflowByName(ctx, StudentLifecycleName)
	if err == nil {
		return wf, nil
	}
	if errors.Cause(err) != ErrWorkflowNotFound {
		return Workflow{}, err
	}
	seq := DefaultSequence
	return svc.CreateWorkflow(ctx, NewWorkflow{
		Name:        StudentLifecycleName,
		Description: "Complete student journey from inquiry to graduation",
		Sequence:    &seq,
		Color:       DefaultWorkflowColor,
		Icon:        "fa-graduation-cap",
	})
}

// Stages

func (svc *Service) AddStage(ctx context.Context, workflowID string, ns NewStage) (Stage, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Stage{}, err
	}
	if _, err := svc.repo.GetWorkflow(ctx, workflowID); err != nil {
		return Stage{}, err
	}
	if err := svc.checkNextStages(ctx, workflowID, "", ns.NextStageIDs); err != nil {
		return Stage{}, err
	}

	actionRef := DefaultStageAction
	if ns.ActionRef != nil {
		actionRef = *ns.ActionRef
	}
	now := svc.timestamp()
	st := Stage{
		WorkflowID:    workflowID,
		Name:          ns.Name,
		Sequence:      intOr(ns.Sequence, DefaultSequence),
		Description:   ns.Description,
		Color:         stringOr(ns.Color, DefaultStageColor),
		Icon:          ns.Icon,
		ButtonLabel:   stringOr(ns.ButtonLabel, DefaultStageButton),
		ActionRef:     actionRef,
		ActionRefs:    ns.ActionRefs,
		MenuRef:       ns.MenuRef,
		TechnicalName: ns.TechnicalName,
		Active:        boolOr(ns.Active, true),
		NextStageIDs:  dedupe(ns.NextStageIDs),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateStage(ctx, st)
}

// QueryStages lists the stages of a workflow ordered by (sequence, name).
func (svc *Service) QueryStages(ctx context.Context, workflowID string) ([]Stage, error) {
	if _, err := svc.repo.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStages(ctx, workflowID)
}

func (svc *Service) GetStage(ctx context.Context, id string) (Stage, error) {
	return svc.repo.GetStage(ctx, id)
}

func (svc *Service) GetStageDetail(ctx context.Context, id string) (StageDetail, error) {
	st, err := svc.repo.GetStage(ctx, id)
	if err != nil {
		return StageDetail{}, err
	}
	detail := StageDetail{Stage: st, TransitionCount: len(st.NextStageIDs)}
	rec, err := svc.repo.GetStageAnalytics(ctx, st.WorkflowID, st.ID)
	switch errors.Cause(err) {
	case nil:
		detail.RecordCount = rec.RecordCount
	case ErrAnalyticsNotFound:
	default:
		return StageDetail{}, err
	}
	return detail, nil
}

func (svc *Service) UpdateStage(ctx context.Context, id string, us UpdateStage) (Stage, error) {
	if err := us.Validate(svc.validate); err != nil {
		return Stage{}, err
	}
	if us.Name != nil && *us.Name == "" {
		return Stage{}, core.NewFieldError(ErrEmptyName, "name")
	}
	st, err := svc.repo.GetStage(ctx, id)
	if err != nil {
		return Stage{}, err
	}
	if us.NextStageIDs != nil {
		if err = svc.checkNextStages(ctx, st.WorkflowID, st.ID, *us.NextStageIDs); err != nil {
			return Stage{}, err
		}
		st.NextStageIDs = dedupe(*us.NextStageIDs)
	}
	if us.Name != nil {
		st.Name = *us.Name
	}
	if us.Sequence != nil {
		st.Sequence = *us.Sequence
	}
	if us.Description != nil {
		st.Description = *us.Description
	}
	if us.Color != nil {
		st.Color = stringOr(*us.Color, DefaultStageColor)
	}
	if us.Icon != nil {
		st.Icon = *us.Icon
	}
	if us.ButtonLabel != nil {
		st.ButtonLabel = stringOr(*us.ButtonLabel, DefaultStageButton)
	}
	if us.ActionRef != nil {
		st.ActionRef = *us.ActionRef
	}
	if us.ActionRefs != nil {
		st.ActionRefs = *us.ActionRefs
	}
	if us.MenuRef != nil {
		st.MenuRef = *us.MenuRef
	}
	if us.TechnicalName != nil {
		st.TechnicalName = *us.TechnicalName
	}
	if us.Active != nil {
		st.Active = *us.Active
	}
	st.UpdatedAt = svc.timestamp()
	return svc.repo.UpdateStage(ctx, st)
}

// DeleteStage refuses to delete a stage still joined by transitions.
func (svc *Service) DeleteStage(ctx context.Context, id string) error {
	if _, err := svc.repo.GetStage(ctx, id); err != nil {
		return err
	}
	count, err := svc.repo.CountStageTransitions(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return core.NewFieldError(ErrStageInUse, "id")
	}
	return svc.repo.DeleteStage(ctx, id)
}

// checkNextStages makes sure every next stage exists and belongs to the workflow.
func (svc *Service) checkNextStages(ctx context.Context, workflowID, selfID string, ids []string) error {
	ids = dedupe(ids)
	var lookup []string
	for _, id := range ids {
		if id != selfID {
			lookup = append(lookup, id)
		}
	}
	if len(lookup) == 0 {
		return nil
	}
	stages, err := svc.repo.GetStages(ctx, lookup...)
	if err != nil {
		return err
	}
	if len(stages) != len(lookup) {
		return core.NewFieldError(ErrStageNotFound, "next_stage_ids")
	}
	for _, st := range stages {
		if st.WorkflowID != workflowID {
			return core.NewFieldError(ErrForeignStage, "next_stage_ids")
		}
	}
	return nil
}

// Transitions

func (svc *Service) AddTransition(ctx context.Context, workflowID string, nt NewTransition) (Transition, error) {
	if err := nt.Validate(svc.validate); err != nil {
		return Transition{}, err
	}
	if _, err := svc.repo.GetWorkflow(ctx, workflowID); err != nil {
		return Transition{}, err
	}
	if err := svc.checkTransitionStages(ctx, workflowID, nt.FromStageID, nt.ToStageID); err != nil {
		return Transition{}, err
	}
	now := svc.timestamp()
	t := Transition{
		WorkflowID:  workflowID,
		Name:        nt.Name,
		FromStageID: nt.FromStageID,
		ToStageID:   nt.ToStageID,
		ButtonLabel: stringOr(nt.ButtonLabel, DefaultTransitionButton),
		Condition:   nt.Condition,
		ActionRef:   nt.ActionRef,
		Sequence:    intOr(nt.Sequence, DefaultSequence),
		Active:      boolOr(nt.Active, true),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := svc.repo.CreateTransition(ctx, t)
	if err != nil {
		return Transition{}, err
	}
	if err = svc.linkNextStage(ctx, created.FromStageID, created.ToStageID); err != nil {
		return Transition{}, err
	}
	return created, nil
}

func (svc *Service) QueryTransitions(ctx context.Context, workflowID string) ([]Transition, error) {
	if _, err := svc.repo.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return svc.repo.QueryTransitions(ctx, workflowID)
}

func (svc *Service) GetTransition(ctx context.Context, id string) (Transition, error) {
	return svc.repo.GetTransition(ctx, id)
}

func (svc *Service) GetTransitionDetail(ctx context.Context, id string) (TransitionDetail, error) {
	t, err := svc.repo.GetTransition(ctx, id)
	if err != nil {
		return TransitionDetail{}, err
	}
	return TransitionDetail{Transition: t, TransitionType: t.Type()}, nil
}

func (svc *Service) UpdateTransition(ctx context.Context, id string, ut UpdateTransition) (Transition, error) {
	if err := ut.Validate(svc.validate); err != nil {
		return Transition{}, err
	}
	if ut.Name != nil && *ut.Name == "" {
		return Transition{}, core.NewFieldError(ErrEmptyName, "name")
	}
	t, err := svc.repo.GetTransition(ctx, id)
	if err != nil {
		return Transition{}, err
	}
	if ut.FromStageID != nil {
		t.FromStageID = *ut.FromStageID
	}
	if ut.ToStageID != nil {
		t.ToStageID = *ut.ToStageID
	}
	if ut.FromStageID != nil || ut.ToStageID != nil {
		if err = svc.checkTransitionStages(ctx, t.WorkflowID, t.FromStageID, t.ToStageID); err != nil {
			return Transition{}, err
		}
		if err = svc.linkNextStage(ctx, t.FromStageID, t.ToStageID); err != nil {
			return Transition{}, err
		}
	}
	if ut.Name != nil {
		t.Name = *ut.Name
	}
	if ut.ButtonLabel != nil {
		t.ButtonLabel = stringOr(*ut.ButtonLabel, DefaultTransitionButton)
	}
	if ut.Condition != nil {
		t.Condition = *ut.Condition
	}
	if ut.ActionRef != nil {
		t.ActionRef = *ut.ActionRef
	}
	if ut.Sequence != nil {
		t.Sequence = *ut.Sequence
	}
	if ut.Active != nil {
		t.Active = *ut.Active
	}
	t.UpdatedAt = svc.timestamp()
	return svc.repo.UpdateTransition(ctx, t)
}

func (svc *Service) DeleteTransition(ctx context.Context, id string) error {
	return svc.repo.DeleteTransition(ctx, id)
}

// checkTransitionStages enforces that both ends of a transition live in its workflow.
func (svc *Service) checkTransitionStages(ctx context.Context, workflowID, fromID, toID string) error {
	from, err := svc.repo.GetStage(ctx, fromID)
	if err != nil {
		if errors.Cause(err) == ErrStageNotFound {
			return core.NewFieldError(err, "from_stage_id")
		}
		return err
	}
	to, err := svc.repo.GetStage(ctx, toID)
	if err != nil {
		if errors.Cause(err) == ErrStageNotFound {
			return core.NewFieldError(err, "to_stage_id")
		}
		return err
	}
	if from.WorkflowID != to.WorkflowID {
		return core.NewValidationError(ErrCrossWorkflowTransition,
			core.FieldError{Field: "from_stage_id", Error: ErrCrossWorkflowTransition.Error()},
			core.FieldError{Field: "to_stage_id", Error: ErrCrossWorkflowTransition.Error()},
		)
	}
	if from.WorkflowID != workflowID {
		return core.NewFieldError(ErrForeignStage, "from_stage_id")
	}
	return nil
}

// linkNextStage records toID among the next stages of fromID.
func (svc *Service) linkNextStage(ctx context.Context, fromID, toID string) error {
	from, err := svc.repo.GetStage(ctx, fromID)
	if err != nil {
		return err
	}
	if contains(from.NextStageIDs, toID) {
		return nil
	}
	from.NextStageIDs = append(from.NextStageIDs, toID)
	from.UpdatedAt = svc.timestamp()
	_, err = svc.repo.UpdateStage(ctx, from)
	return err
}

// sortStages orders stages by (sequence, name, id).
func sortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		a, b := stages[i], stages[j]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
