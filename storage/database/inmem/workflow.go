package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
)

type workflowRepository struct {
	db *DB
}

func NewWorkflowRepository(db *DB) workflow.Repository {
	return &workflowRepository{db: db}
}

// Workflows

func (repo *workflowRepository) CreateWorkflow(_ context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	wf.ID = uuid.NewString()
	repo.db.workflows[wf.ID] = &wf
	return wf, nil
}

func (repo *workflowRepository) QueryWorkflows(_ context.Context, filter workflow.QueryFilter, orderings []core.DBOrdering) ([]workflow.Workflow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	res := make([]workflow.Workflow, 0, len(repo.db.workflows))
	for _, wf := range repo.db.workflows {
		if filter.Active != nil && wf.Active != *filter.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(wf.Name), search) &&
			!strings.Contains(strings.ToLower(wf.Description), search) {
			continue
		}
		res = append(res, *wf)
	}
	sortWorkflows(res, orderings)
	return res, nil
}

func (repo *workflowRepository) GetWorkflow(_ context.Context, id string) (workflow.Workflow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if wf, ok := repo.db.workflows[id]; ok {
		return *wf, nil
	}
	return workflow.Workflow{}, workflow.ErrWorkflowNotFound
}

func (repo *workflowRepository) GetWorkflowByName(_ context.Context, name string) (workflow.Workflow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var found *workflow.Workflow
	for _, wf := range repo.db.workflows {
		if wf.Name == name && (found == nil || wf.CreatedAt.Before(found.CreatedAt)) {
			found = wf
		}
	}
	if found == nil {
		return workflow.Workflow{}, workflow.ErrWorkflowNotFound
	}
	return *found, nil
}

func (repo *workflowRepository) UpdateWorkflow(_ context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.workflows[wf.ID]
	if !ok {
		return workflow.Workflow{}, workflow.ErrWorkflowNotFound
	}
	wf.CreatedAt = orig.CreatedAt
	repo.db.workflows[wf.ID] = &wf
	return wf, nil
}

func (repo *workflowRepository) DeleteWorkflow(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.workflows[id]; !ok {
		return workflow.ErrWorkflowNotFound
	}
	for tid, t := range repo.db.transitions {
		if t.WorkflowID == id {
			delete(repo.db.transitions, tid)
		}
	}
	for aid, rec := range repo.db.analytics {
		if rec.WorkflowID == id {
			delete(repo.db.analytics, aid)
		}
	}
	for sid, st := range repo.db.stages {
		if st.WorkflowID == id {
			delete(repo.db.stages, sid)
		}
	}
	delete(repo.db.workflows, id)
	return nil
}

// Stages

func (repo *workflowRepository) CreateStage(_ context.Context, st workflow.Stage) (workflow.Stage, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.workflows[st.WorkflowID]; !ok {
		return workflow.Stage{}, workflow.ErrWorkflowNotFound
	}
	st.ID = uuid.NewString()
	st.ActionRefs = copyStrings(st.ActionRefs)
	st.NextStageIDs = copyStrings(st.NextStageIDs)
	repo.db.stages[st.ID] = &st
	return repo.stage(&st), nil
}

func (repo *workflowRepository) QueryStages(_ context.Context, workflowID string) ([]workflow.Stage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]workflow.Stage, 0)
	for _, st := range repo.db.stages {
		if st.WorkflowID == workflowID {
			res = append(res, repo.stage(st))
		}
	}
	sortStages(res)
	return res, nil
}

func (repo *workflowRepository) GetStage(_ context.Context, id string) (workflow.Stage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if st, ok := repo.db.stages[id]; ok {
		return repo.stage(st), nil
	}
	return workflow.Stage{}, workflow.ErrStageNotFound
}

// GetStages returns the existing stages among ids, ordered by (sequence, name).
func (repo *workflowRepository) GetStages(_ context.Context, ids ...string) ([]workflow.Stage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]workflow.Stage, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if st, ok := repo.db.stages[id]; ok && !seen[id] {
			seen[id] = true
			res = append(res, repo.stage(st))
		}
	}
	sortStages(res)
	return res, nil
}

func (repo *workflowRepository) UpdateStage(_ context.Context, st workflow.Stage) (workflow.Stage, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.stages[st.ID]
	if !ok {
		return workflow.Stage{}, workflow.ErrStageNotFound
	}
	st.WorkflowID = orig.WorkflowID
	st.CreatedAt = orig.CreatedAt
	st.ActionRefs = copyStrings(st.ActionRefs)
	st.NextStageIDs = copyStrings(st.NextStageIDs)
	repo.db.stages[st.ID] = &st
	return repo.stage(&st), nil
}

func (repo *workflowRepository) DeleteStage(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.stages[id]; !ok {
		return workflow.ErrStageNotFound
	}
	for _, st := range repo.db.stages {
		st.NextStageIDs = removeString(st.NextStageIDs, id)
	}
	for aid, rec := range repo.db.analytics {
		if rec.StageID == id {
			delete(repo.db.analytics, aid)
		}
	}
	delete(repo.db.stages, id)
	return nil
}

// stage copies st with its next-stage links ordered by the target stages' (sequence, name).
// Callers hold the lock.
func (repo *workflowRepository) stage(st *workflow.Stage) workflow.Stage {
	res := *st
	res.ActionRefs = copyStrings(st.ActionRefs)
	if len(st.NextStageIDs) == 0 {
		res.NextStageIDs = []string{}
		return res
	}
	next := make([]workflow.Stage, 0, len(st.NextStageIDs))
	for _, id := range st.NextStageIDs {
		if target, ok := repo.db.stages[id]; ok {
			next = append(next, *target)
		}
	}
	sortStages(next)
	res.NextStageIDs = make([]string, 0, len(next))
	for _, n := range next {
		res.NextStageIDs = append(res.NextStageIDs, n.ID)
	}
	return res
}

// Transitions

func (repo *workflowRepository) CreateTransition(_ context.Context, t workflow.Transition) (workflow.Transition, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.workflows[t.WorkflowID]; !ok {
		return workflow.Transition{}, workflow.ErrWorkflowNotFound
	}
	t.ID = uuid.NewString()
	repo.db.transitions[t.ID] = &t
	return t, nil
}

func (repo *workflowRepository) QueryTransitions(_ context.Context, workflowID string) ([]workflow.Transition, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]workflow.Transition, 0)
	for _, t := range repo.db.transitions {
		if t.WorkflowID == workflowID {
			res = append(res, *t)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return res, nil
}

func (repo *workflowRepository) GetTransition(_ context.Context, id string) (workflow.Transition, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.transitions[id]; ok {
		return *t, nil
	}
	return workflow.Transition{}, workflow.ErrTransitionNotFound
}

func (repo *workflowRepository) UpdateTransition(_ context.Context, t workflow.Transition) (workflow.Transition, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.transitions[t.ID]
	if !ok {
		return workflow.Transition{}, workflow.ErrTransitionNotFound
	}
	t.WorkflowID = orig.WorkflowID
	t.CreatedAt = orig.CreatedAt
	repo.db.transitions[t.ID] = &t
	return t, nil
}

func (repo *workflowRepository) DeleteTransition(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.transitions[id]; !ok {
		return workflow.ErrTransitionNotFound
	}
	delete(repo.db.transitions, id)
	return nil
}

func (repo *workflowRepository) CountStageTransitions(_ context.Context, stageID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, t := range repo.db.transitions {
		if t.FromStageID == stageID || t.ToStageID == stageID {
			n++
		}
	}
	return n, nil
}

// Analytics

func (repo *workflowRepository) CreateAnalytics(_ context.Context, rec workflow.AnalyticsRecord) (workflow.AnalyticsRecord, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	st, ok := repo.db.stages[rec.StageID]
	if !ok || st.WorkflowID != rec.WorkflowID {
		return workflow.AnalyticsRecord{}, workflow.ErrStageNotFound
	}
	for _, other := range repo.db.analytics {
		if other.WorkflowID == rec.WorkflowID && other.StageID == rec.StageID {
			return workflow.AnalyticsRecord{}, core.NewFieldError(workflow.ErrDuplicateAnalytics, "stage_id")
		}
	}
	rec.ID = uuid.NewString()
	repo.db.analytics[rec.ID] = &rec
	return rec, nil
}

func (repo *workflowRepository) QueryAnalytics(_ context.Context, workflowID string) ([]workflow.AnalyticsRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	type entry struct {
		rec   workflow.AnalyticsRecord
		stage workflow.Stage
	}
	entries := make([]entry, 0)
	for _, rec := range repo.db.analytics {
		if rec.WorkflowID == workflowID {
			e := entry{rec: *rec}
			if st, ok := repo.db.stages[rec.StageID]; ok {
				e.stage = *st
			}
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].stage, entries[j].stage
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.Name < b.Name
	})
	res := make([]workflow.AnalyticsRecord, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.rec)
	}
	return res, nil
}

func (repo *workflowRepository) GetAnalytics(_ context.Context, id string) (workflow.AnalyticsRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.analytics[id]; ok {
		return *rec, nil
	}
	return workflow.AnalyticsRecord{}, workflow.ErrAnalyticsNotFound
}

func (repo *workflowRepository) GetStageAnalytics(_ context.Context, workflowID, stageID string) (workflow.AnalyticsRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, rec := range repo.db.analytics {
		if rec.WorkflowID == workflowID && rec.StageID == stageID {
			return *rec, nil
		}
	}
	return workflow.AnalyticsRecord{}, workflow.ErrAnalyticsNotFound
}

func (repo *workflowRepository) UpdateAnalytics(_ context.Context, rec workflow.AnalyticsRecord) (workflow.AnalyticsRecord, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.analytics[rec.ID]
	if !ok {
		return workflow.AnalyticsRecord{}, workflow.ErrAnalyticsNotFound
	}
	rec.WorkflowID = orig.WorkflowID
	rec.StageID = orig.StageID
	repo.db.analytics[rec.ID] = &rec
	return rec, nil
}

func (repo *workflowRepository) DeleteAnalytics(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.analytics[id]; !ok {
		return workflow.ErrAnalyticsNotFound
	}
	delete(repo.db.analytics, id)
	return nil
}

func sortStages(stages []workflow.Stage) {
	sort.Slice(stages, func(i, j int) bool {
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

var workflowOrderings = map[string]func(a, b workflow.Workflow) int{
	"name": func(a, b workflow.Workflow) int { return strings.Compare(a.Name, b.Name) },
	"sequence": func(a, b workflow.Workflow) int {
		return a.Sequence - b.Sequence
	},
	"created_at": func(a, b workflow.Workflow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	},
	"updated_at": func(a, b workflow.Workflow) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	},
}

// sortWorkflows applies the orderings, then (sequence, name).
func sortWorkflows(workflows []workflow.Workflow, orderings []core.DBOrdering) {
	orderings = append(append([]core.DBOrdering(nil), orderings...),
		core.DBOrdering{Field: "sequence", Ascending: true},
		core.DBOrdering{Field: "name", Ascending: true},
	)
	sort.SliceStable(workflows, func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := workflowOrderings[ord.Field]
			if !ok {
				continue
			}
			c := cmp(workflows[i], workflows[j])
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, item := range s {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
