package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/flowboard/core"
)

type SetupType string

const (
	SetupBasic    SetupType = "basic"
	SetupAdvanced SetupType = "advanced"
	SetupCustom   SetupType = "custom"
)

// minimum similarity of a suggested stage name
const suggestionCutoff = .6

type (
	// SetupOptions drive the setup wizard. The Auto*/Include flags default to true.
	SetupOptions struct {
		Type                  SetupType          `json:"setup_type" validate:"omitempty,oneof=basic advanced custom"`
		AutoCreateStages      *bool              `json:"auto_create_stages"`
		AutoCreateTransitions *bool              `json:"auto_create_transitions"`
		IncludeAnalytics      *bool              `json:"include_analytics"`
		DefaultColor          string             `json:"default_color" validate:"omitempty,hexcolor"`
		CustomStages          []CustomStage      `json:"custom_stages" validate:"dive"`
		CustomTransitions     []CustomTransition `json:"custom_transitions" validate:"dive"`
	}

	CustomStage struct {
		Name        string `json:"name" validate:"required,max=128"`
		Sequence    *int   `json:"sequence"`
		Description string `json:"description"`
		Color       string `json:"color" validate:"omitempty,hexcolor"`
	}

	// CustomTransition joins two stages by name.
	CustomTransition struct {
		From        string `json:"from" validate:"required"`
		To          string `json:"to" validate:"required"`
		Name        string `json:"name" validate:"max=128"`
		ButtonLabel string `json:"button_label" validate:"max=64"`
		Sequence    *int   `json:"sequence"`
	}

	SetupResult struct {
		Workflow     Workflow         `json:"workflow"`
		Stages       []Stage          `json:"stages"`
		Transitions  []Transition     `json:"transitions"`
		Analytics    int              `json:"analytics"`
		Warnings     []string         `json:"warnings"`
		Notification ActionDescriptor `json:"notification"`
	}
)

func (opts *SetupOptions) Validate(validate *validator.Validate) error {
	opts.DefaultColor = core.CleanString(opts.DefaultColor, true /* lower */)
	if opts.Type == "" {
		opts.Type = SetupBasic
	}
	for i := range opts.CustomStages {
		cs := &opts.CustomStages[i]
		cs.Name = core.CleanString(cs.Name)
		cs.Color = core.CleanString(cs.Color, true /* lower */)
	}
	for i := range opts.CustomTransitions {
		ct := &opts.CustomTransitions[i]
		ct.From = core.CleanString(ct.From)
		ct.To = core.CleanString(ct.To)
		ct.Name = core.CleanString(ct.Name)
		ct.ButtonLabel = core.CleanString(ct.ButtonLabel)
	}
	return validate.Struct(opts)
}

type stageTemplate struct {
	name  string
	seq   int
	color string
}

var stagePalette = []string{"#e74c3c", "#f39c12", "#2ecc71", "#9b59b6", "#1abc9c", "#34495e"}

// defaultStages picks the stage set matching the workflow name.
func defaultStages(workflowName string) []stageTemplate {
	var names []string
	name := strings.ToLower(workflowName)
	switch {
	case strings.Contains(name, "student"):
		names = []string{"Inquiry", "Admission", "Registration", "Enrollment", "Academic Progress", "Graduation"}
	case strings.Contains(name, "academic"):
		names = []string{"Planning", "Scheduling", "Execution", "Assessment", "Results"}
	case strings.Contains(name, "financial"):
		names = []string{"Setup", "Collection", "Processing", "Reporting"}
	default:
		names = []string{"Start", "Process", "Complete"}
	}
	tmpls := make([]stageTemplate, 0, len(names))
	for i, n := range names {
		tmpls = append(tmpls, stageTemplate{name: n, seq: (i + 1) * 10, color: stagePalette[i]})
	}
	return tmpls
}

// Setup runs the setup wizard on the workflow:
//   - basic: default stages for the kind of workflow, sequential transitions and next-stage links, analytics.
//   - advanced: basic, then the workflow takes the default color.
//   - custom: the given stages, then the given transitions (unknown stage names are skipped with a warning).
func (svc *Service) Setup(ctx context.Context, workflowID string, opts SetupOptions) (SetupResult, error) {
	if err := opts.Validate(svc.validate); err != nil {
		return SetupResult{}, err
	}
	wf, err := svc.repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return SetupResult{}, err
	}
	color := stringOr(opts.DefaultColor, DefaultWorkflowColor)

	res := SetupResult{}
	switch opts.Type {
	case SetupBasic, SetupAdvanced:
		if err = svc.setupBasic(ctx, wf, opts, color, &res); err != nil {
			return SetupResult{}, err
		}
		if opts.Type == SetupAdvanced && opts.DefaultColor != "" {
			wf.Color = opts.DefaultColor
			wf.UpdatedAt = svc.timestamp()
			if wf, err = svc.repo.UpdateWorkflow(ctx, wf); err != nil {
				return SetupResult{}, err
			}
		}
	case SetupCustom:
		if err = svc.setupCustom(ctx, wf, opts, color, &res); err != nil {
			return SetupResult{}, err
		}
	}

	for _, w := range res.Warnings {
		svc.logger.Warn(fmt.Sprintf("setup of workflow %q: %s", wf.Name, w))
	}
	res.Workflow = wf
	res.Notification = NotificationDescriptor(
		"Workflow Setup Complete",
		fmt.Sprintf("Workflow %s has been set up successfully.", wf.Name),
		NotifySuccess,
	)
	return res, nil
}

func (svc *Service) setupBasic(ctx context.Context, wf Workflow, opts SetupOptions, color string, res *SetupResult) error {
	if boolOr(opts.AutoCreateStages, true) {
		for _, tmpl := range defaultStages(wf.Name) {
			seq := tmpl.seq
			st, err := svc.AddStage(ctx, wf.ID, NewStage{Name: tmpl.name, Sequence: &seq, Color: stringOr(tmpl.color, color)})
			if err != nil {
				return err
			}
			res.Stages = append(res.Stages, st)
		}
	}

	if boolOr(opts.AutoCreateTransitions, true) {
		if err := svc.linkStages(ctx, wf, res); err != nil {
			return err
		}
	}

	if boolOr(opts.IncludeAnalytics, true) {
		stages, err := svc.repo.QueryStages(ctx, wf.ID)
		if err != nil {
			return err
		}
		for _, st := range stages {
			if _, err = svc.EnsureAnalytics(ctx, st); err != nil {
				return err
			}
		}
		res.Analytics = len(stages)
	}
	return nil
}

// linkStages joins consecutive stages of the workflow with a transition.
func (svc *Service) linkStages(ctx context.Context, wf Workflow, res *SetupResult) error {
	stages, err := svc.repo.QueryStages(ctx, wf.ID)
	if err != nil {
		return err
	}
	sortStages(stages)
	for i := 0; i < len(stages)-1; i++ {
		from, to := stages[i], stages[i+1]
		seq := (i + 1) * 10
		t, err := svc.AddTransition(ctx, wf.ID, NewTransition{
			Name:        from.Name + " to " + to.Name,
			FromStageID: from.ID,
			ToStageID:   to.ID,
			ButtonLabel: "Go to " + to.Name,
			Sequence:    &seq,
		})
		if err != nil {
			return err
		}
		res.Transitions = append(res.Transitions, t)
	}
	return nil
}

func (svc *Service) setupCustom(ctx context.Context, wf Workflow, opts SetupOptions, color string, res *SetupResult) error {
	for _, cs := range opts.CustomStages {
		st, err := svc.AddStage(ctx, wf.ID, NewStage{
			Name:        cs.Name,
			Sequence:    cs.Sequence,
			Description: cs.Description,
			Color:       stringOr(cs.Color, color),
		})
		if err != nil {
			return err
		}
		res.Stages = append(res.Stages, st)
	}
	if len(opts.CustomTransitions) == 0 {
		return nil
	}

	stages, err := svc.repo.QueryStages(ctx, wf.ID)
	if err != nil {
		return err
	}
	sortStages(stages)
	byName := make(map[string]Stage, len(stages))
	names := make([]string, 0, len(stages))
	for _, st := range stages {
		if _, ok := byName[st.Name]; !ok {
			byName[st.Name] = st
			names = append(names, st.Name)
		}
	}

	for _, ct := range opts.CustomTransitions {
		from, fromOK := byName[ct.From]
		to, toOK := byName[ct.To]
		if !fromOK || !toOK {
			missing := ct.From
			if fromOK {
				missing = ct.To
			}
			res.Warnings = append(res.Warnings, unknownStageWarning(ct, missing, names))
			continue
		}
		t, err := svc.AddTransition(ctx, wf.ID, NewTransition{
			Name:        stringOr(ct.Name, ct.From+" to "+ct.To),
			FromStageID: from.ID,
			ToStageID:   to.ID,
			ButtonLabel: stringOr(ct.ButtonLabel, DefaultTransitionButton),
			Sequence:    ct.Sequence,
		})
		if err != nil {
			return err
		}
		res.Transitions = append(res.Transitions, t)
	}
	return nil
}

func unknownStageWarning(ct CustomTransition, missing string, names []string) string {
	msg := fmt.Sprintf("transition %q -> %q skipped: unknown stage %q", ct.From, ct.To, missing)
	if suggestion := closestName(missing, names); suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return msg
}

// closestName returns the name most similar to s, or "" when none is similar enough.
func closestName(s string, names []string) string {
	var (
		best      string
		bestRatio float64
	)
	chars := strings.Split(strings.ToLower(s), "")
	for _, name := range names {
		ratio := difflib.NewMatcher(chars, strings.Split(strings.ToLower(name), "")).Ratio()
		if ratio >= suggestionCutoff && ratio > bestRatio {
			best, bestRatio = name, ratio
		}
	}
	return best
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
