package workflow

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/flowboard/core"
)

// Defaults
const (
	DefaultSequence         = 10
	DefaultWorkflowColor    = "#3498db"
	DefaultStageColor       = "#95a5a6"
	DefaultStageButton      = "Open"
	DefaultStageAction      = "action_open_module"
	DefaultTransitionButton = "Continue"

	StudentLifecycleName = "Student Lifecycle"
)

type TransitionType string

const (
	TransitionAutomatic   TransitionType = "automatic"
	TransitionManual      TransitionType = "manual"
	TransitionConditional TransitionType = "conditional"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Workflow is a named, ordered process owning its stages, transitions and analytics.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Sequence    int       `json:"sequence"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Stage is a node of a workflow graph.
// NextStageIDs are ordered by the target stages' (sequence, name).
type Stage struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflow_id"`
	Name          string    `json:"name"`
	Sequence      int       `json:"sequence"`
	Description   string    `json:"description"`
	Color         string    `json:"color"`
	Icon          string    `json:"icon"`
	ButtonLabel   string    `json:"button_label"`
	ActionRef     string    `json:"action_ref"`
	ActionRefs    []string  `json:"action_refs"`
	MenuRef       string    `json:"menu_ref"`
	TechnicalName string    `json:"technical_name"`
	Active        bool      `json:"active"`
	NextStageIDs  []string  `json:"next_stage_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Transition is a labelled edge between two stages of the same workflow.
type Transition struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	Name        string    `json:"name"`
	FromStageID string    `json:"from_stage_id"`
	ToStageID   string    `json:"to_stage_id"`
	ButtonLabel string    `json:"button_label"`
	Condition   string    `json:"condition"`
	ActionRef   string    `json:"action_ref"`
	Sequence    int       `json:"sequence"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Type derives the transition type: a guard makes it conditional, an action makes it manual.
func (t Transition) Type() TransitionType {
	switch {
	case t.Condition != "":
		return TransitionConditional
	case t.ActionRef != "":
		return TransitionManual
	}
	return TransitionAutomatic
}

// AnalyticsRecord holds observational metrics of one stage. It never gates transitions.
type AnalyticsRecord struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	StageID     string    `json:"stage_id"`
	RecordCount int       `json:"record_count"`
	AvgDuration float64   `json:"avg_duration"` // hours
	Bottlenecks string    `json:"bottlenecks"`
	LastUpdated time.Time `json:"last_updated"` // zero when never refreshed
}

// Detail views with the computed fields.
type (
	WorkflowDetail struct {
		Workflow
		StageCount         int     `json:"stage_count"`
		ProgressPercentage float64 `json:"progress_percentage"`
	}

	StageDetail struct {
		Stage
		TransitionCount int `json:"transition_count"`
		RecordCount     int `json:"record_count"`
	}

	TransitionDetail struct {
		Transition
		TransitionType TransitionType `json:"transition_type"`
	}

	AnalyticsDetail struct {
		AnalyticsRecord
		EfficiencyScore float64 `json:"efficiency_score"`
		Trend           Trend   `json:"trend"`
	}
)

// QueryFilter filters workflows. Search matches name or description, case-insensitively.
type QueryFilter struct {
	Search string `query:"search"`
	Active *bool  `query:"active"`
}

func (f *QueryFilter) Clean() {
	f.Search = core.CleanString(f.Search, true /* lower */)
}

type NewWorkflow struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description"`
	Sequence    *int   `json:"sequence"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Icon        string `json:"icon" validate:"max=64"`
	Active      *bool  `json:"active"`
}

func (nw *NewWorkflow) Validate(validate *validator.Validate) error {
	nw.Name = core.CleanString(nw.Name)
	nw.Color = core.CleanString(nw.Color, true /* lower */)
	return validate.Struct(nw)
}

type UpdateWorkflow struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=128"`
	Description *string `json:"description"`
	Sequence    *int    `json:"sequence"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
	Icon        *string `json:"icon" validate:"omitempty,max=64"`
	Active      *bool   `json:"active"`
}

func (uw *UpdateWorkflow) Validate(validate *validator.Validate) error {
	cleanPtr(uw.Name)
	if uw.Color != nil {
		*uw.Color = core.CleanString(*uw.Color, true /* lower */)
	}
	return validate.Struct(uw)
}

type NewStage struct {
	Name          string   `json:"name" validate:"required,max=128"`
	Sequence      *int     `json:"sequence"`
	Description   string   `json:"description"`
	Color         string   `json:"color" validate:"omitempty,hexcolor"`
	Icon          string   `json:"icon" validate:"max=64"`
	ButtonLabel   string   `json:"button_label" validate:"max=64"`
	ActionRef     *string  `json:"action_ref" validate:"omitempty,actionref"`
	ActionRefs    []string `json:"action_refs" validate:"dive,actionref"`
	MenuRef       string   `json:"menu_ref" validate:"omitempty,actionref"`
	TechnicalName string   `json:"technical_name" validate:"max=128"`
	Active        *bool    `json:"active"`
	NextStageIDs  []string `json:"next_stage_ids" validate:"dive,required"`
}

func (ns *NewStage) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Color = core.CleanString(ns.Color, true /* lower */)
	ns.ButtonLabel = core.CleanString(ns.ButtonLabel)
	ns.MenuRef = core.CleanString(ns.MenuRef)
	cleanPtr(ns.ActionRef)
	return validate.Struct(ns)
}

type UpdateStage struct {
	Name          *string   `json:"name" validate:"omitempty,min=1,max=128"`
	Sequence      *int      `json:"sequence"`
	Description   *string   `json:"description"`
	Color         *string   `json:"color" validate:"omitempty,hexcolor"`
	Icon          *string   `json:"icon" validate:"omitempty,max=64"`
	ButtonLabel   *string   `json:"button_label" validate:"omitempty,max=64"`
	ActionRef     *string   `json:"action_ref" validate:"omitempty,actionref"`
	ActionRefs    *[]string `json:"action_refs" validate:"omitempty,dive,actionref"`
	MenuRef       *string   `json:"menu_ref" validate:"omitempty,actionref"`
	TechnicalName *string   `json:"technical_name" validate:"omitempty,max=128"`
	Active        *bool     `json:"active"`
	NextStageIDs  *[]string `json:"next_stage_ids" validate:"omitempty,dive,required"`
}

func (us *UpdateStage) Validate(validate *validator.Validate) error {
	cleanPtr(us.Name)
	cleanPtr(us.ButtonLabel)
	cleanPtr(us.ActionRef)
	cleanPtr(us.MenuRef)
	if us.Color != nil {
		*us.Color = core.CleanString(*us.Color, true /* lower */)
	}
	return validate.Struct(us)
}

type NewTransition struct {
	Name        string `json:"name" validate:"required,max=128"`
	FromStageID string `json:"from_stage_id" validate:"required"`
	ToStageID   string `json:"to_stage_id" validate:"required"`
	ButtonLabel string `json:"button_label" validate:"max=64"`
	Condition   string `json:"condition" validate:"max=1024"`
	ActionRef   string `json:"action_ref" validate:"omitempty,actionref"`
	Sequence    *int   `json:"sequence"`
	Active      *bool  `json:"active"`
}

func (nt *NewTransition) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.ButtonLabel = core.CleanString(nt.ButtonLabel)
	nt.Condition = core.CleanString(nt.Condition)
	nt.ActionRef = core.CleanString(nt.ActionRef)
	return validate.Struct(nt)
}

type UpdateTransition struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=128"`
	FromStageID *string `json:"from_stage_id" validate:"omitempty,min=1"`
	ToStageID   *string `json:"to_stage_id" validate:"omitempty,min=1"`
	ButtonLabel *string `json:"button_label" validate:"omitempty,max=64"`
	Condition   *string `json:"condition" validate:"omitempty,max=1024"`
	ActionRef   *string `json:"action_ref" validate:"omitempty,actionref"`
	Sequence    *int    `json:"sequence"`
	Active      *bool   `json:"active"`
}

func (ut *UpdateTransition) Validate(validate *validator.Validate) error {
	cleanPtr(ut.Name)
	cleanPtr(ut.ButtonLabel)
	cleanPtr(ut.Condition)
	cleanPtr(ut.ActionRef)
	return validate.Struct(ut)
}

type UpdateAnalytics struct {
	RecordCount *int     `json:"record_count" validate:"omitempty,gte=0"`
	AvgDuration *float64 `json:"avg_duration" validate:"omitempty,gte=0"`
	Bottlenecks *string  `json:"bottlenecks"`
}

func (ua *UpdateAnalytics) Validate(validate *validator.Validate) error {
	cleanPtr(ua.Bottlenecks)
	return validate.Struct(ua)
}

func cleanPtr(s *string) {
	if s != nil {
		*s = core.CleanString(*s)
	}
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func stringOr(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
