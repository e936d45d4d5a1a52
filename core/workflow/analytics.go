package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

// RecordCounter counts the business records behind a model, e.g. "op.admission".
// An empty or unknown model counts 0.
type RecordCounter interface {
	CountRecords(ctx context.Context, model string) (int, error)
}

type RecordCounterFunc func(ctx context.Context, model string) (int, error)

func (f RecordCounterFunc) CountRecords(ctx context.Context, model string) (int, error) {
	return f(ctx, model)
}

// EfficiencyScore is 100 minus 10 points per hour spent in the stage, clamped to [0, 100].
// Records without items or duration score 0.
func (rec AnalyticsRecord) EfficiencyScore() float64 {
	if rec.RecordCount <= 0 || rec.AvgDuration <= 0 {
		return 0
	}
	return math.Max(0, math.Min(100, 100-rec.AvgDuration*10))
}

// Trend classifies the freshness of the record relative to now.
func (rec AnalyticsRecord) Trend(now time.Time) Trend {
	if rec.LastUpdated.IsZero() {
		return TrendStable
	}
	age := now.Sub(rec.LastUpdated)
	switch {
	case age < 24*time.Hour:
		return TrendImproving
	case age < 7*24*time.Hour:
		return TrendStable
	}
	return TrendDeclining
}

func (svc *Service) analyticsDetail(rec AnalyticsRecord) AnalyticsDetail {
	return AnalyticsDetail{
		AnalyticsRecord: rec,
		EfficiencyScore: rec.EfficiencyScore(),
		Trend:           rec.Trend(svc.timestamp()),
	}
}

func (svc *Service) QueryAnalytics(ctx context.Context, workflowID string) ([]AnalyticsDetail, error) {
	if _, err := svc.repo.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	records, err := svc.repo.QueryAnalytics(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	details := make([]AnalyticsDetail, 0, len(records))
	for _, rec := range records {
		details = append(details, svc.analyticsDetail(rec))
	}
	return details, nil
}

func (svc *Service) GetAnalytics(ctx context.Context, id string) (AnalyticsDetail, error) {
	rec, err := svc.repo.GetAnalytics(ctx, id)
	if err != nil {
		return AnalyticsDetail{}, err
	}
	return svc.analyticsDetail(rec), nil
}

// UpdateAnalytics edits the manual fields of a record (count, duration, bottleneck note).
func (svc *Service) UpdateAnalytics(ctx context.Context, id string, ua UpdateAnalytics) (AnalyticsDetail, error) {
	if err := ua.Validate(svc.validate); err != nil {
		return AnalyticsDetail{}, err
	}
	rec, err := svc.repo.GetAnalytics(ctx, id)
	if err != nil {
		return AnalyticsDetail{}, err
	}
	if ua.RecordCount != nil {
		rec.RecordCount = *ua.RecordCount
	}
	if ua.AvgDuration != nil {
		rec.AvgDuration = *ua.AvgDuration
	}
	if ua.Bottlenecks != nil {
		rec.Bottlenecks = *ua.Bottlenecks
	}
	rec.LastUpdated = svc.timestamp()
	if rec, err = svc.repo.UpdateAnalytics(ctx, rec); err != nil {
		return AnalyticsDetail{}, err
	}
	return svc.analyticsDetail(rec), nil
}

func (svc *Service) DeleteAnalytics(ctx context.Context, id string) error {
	return svc.repo.DeleteAnalytics(ctx, id)
}

// EnsureAnalytics returns the record of the stage, creating an empty one when missing.
func (svc *Service) EnsureAnalytics(ctx context.Context, st Stage) (AnalyticsRecord, error) {
	rec, err := svc.repo.GetStageAnalytics(ctx, st.WorkflowID, st.ID)
	if err == nil {
		return rec, nil
	}
	if errors.Cause(err) != ErrAnalyticsNotFound {
		return AnalyticsRecord{}, err
	}
	return svc.repo.CreateAnalytics(ctx, AnalyticsRecord{WorkflowID: st.WorkflowID, StageID: st.ID})
}

// RefreshAnalytics recounts the records behind the stage of the analytics record.
func (svc *Service) RefreshAnalytics(ctx context.Context, id string) (ActionDescriptor, error) {
	rec, err := svc.repo.GetAnalytics(ctx, id)
	if err != nil {
		return ActionDescriptor{}, err
	}
	st, err := svc.repo.GetStage(ctx, rec.StageID)
	if err != nil {
		return ActionDescriptor{}, err
	}
	if _, err = svc.refresh(ctx, rec, st); err != nil {
		return ActionDescriptor{}, err
	}
	return NotificationDescriptor("Analytics Updated", "Analytics refreshed for "+st.Name, NotifySuccess), nil
}

func (svc *Service) refresh(ctx context.Context, rec AnalyticsRecord, st Stage) (AnalyticsRecord, error) {
	count := 0
	if model, ok := svc.registry.ModelOf(st.ActionRef); ok {
		n, err := svc.counter.CountRecords(ctx, model)
		if err != nil {
			return AnalyticsRecord{}, errors.Wrapf(err, "counting %s records", model)
		}
		count = n
	}
	rec.RecordCount = count
	rec.LastUpdated = svc.timestamp()
	return svc.repo.UpdateAnalytics(ctx, rec)
}

// RefreshWorkflowAnalytics refreshes the analytics of every stage of the workflow,
// creating the missing records.
func (svc *Service) RefreshWorkflowAnalytics(ctx context.Context, workflowID string) ([]AnalyticsRecord, error) {
	stages, err := svc.QueryStages(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	records := make([]AnalyticsRecord, 0, len(stages))
	for _, st := range stages {
		rec, err := svc.EnsureAnalytics(ctx, st)
		if err != nil {
			return nil, err
		}
		if rec, err = svc.refresh(ctx, rec, st); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// RefreshAllAnalytics refreshes the analytics of every stage of every workflow.
// It returns the number of records refreshed.
func (svc *Service) RefreshAllAnalytics(ctx context.Context) (int, error) {
	workflows, err := svc.repo.QueryWorkflows(ctx, QueryFilter{}, nil)
	if err != nil {
		return 0, err
	}
	var n int
	for _, wf := range workflows {
		if err = ctx.Err(); err != nil {
			return n, err
		}
		records, err := svc.RefreshWorkflowAnalytics(ctx, wf.ID)
		if err != nil {
			return n, errors.Wrapf(err, "refreshing workflow %q", wf.Name)
		}
		n += len(records)
	}
	svc.logger.Info(fmt.Sprintf("refreshed %d analytics records", n))
	return n, nil
}

// ViewStageRecords opens the business records behind the stage of the analytics record.
func (svc *Service) ViewStageRecords(ctx context.Context, id string) (ActionDescriptor, error) {
	rec, err := svc.repo.GetAnalytics(ctx, id)
	if err != nil {
		return ActionDescriptor{}, err
	}
	st, err := svc.repo.GetStage(ctx, rec.StageID)
	if err != nil {
		return ActionDescriptor{}, err
	}
	if model, ok := svc.registry.ModelOf(st.ActionRef); ok {
		return WindowDescriptor(st.Name+" Records", model, "list,form"), nil
	}
	return NotificationDescriptor(
		"Stage Records",
		fmt.Sprintf("No records are linked to the %s stage", st.Name),
		NotifyInfo,
	), nil
}

// progress is the share of all recorded items that sit in the final stage, rounded to 2 decimals.
// stages must be ordered by (sequence, name).
func progress(stages []Stage, records []AnalyticsRecord) float64 {
	if len(stages) == 0 {
		return 0
	}
	final := stages[len(stages)-1].ID
	var total, done int
	for _, rec := range records {
		total += rec.RecordCount
		if rec.StageID == final {
			done += rec.RecordCount
		}
	}
	if total <= 0 {
		return 0
	}
	return math.Round(float64(done)/float64(total)*10000) / 100
}
