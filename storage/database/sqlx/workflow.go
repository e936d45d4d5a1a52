package sqlxrepos

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
)

type (
	workflowRow struct {
		ID          string      `db:"id"`
		Name        string      `db:"name"`
		Description null.String `db:"description"`
		Sequence    int         `db:"sequence"`
		Color       string      `db:"color"`
		Icon        null.String `db:"icon"`
		Active      bool        `db:"active"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	stageRow struct {
		ID            string      `db:"id"`
		WorkflowID    string      `db:"workflow_id"`
		Name          string      `db:"name"`
		Sequence      int         `db:"sequence"`
		Description   null.String `db:"description"`
		Color         string      `db:"color"`
		Icon          null.String `db:"icon"`
		ButtonLabel   string      `db:"button_label"`
		ActionRef     null.String `db:"action_ref"`
		ActionRefs    null.String `db:"action_refs"` // comma-separated keys
		MenuRef       null.String `db:"menu_ref"`
		TechnicalName null.String `db:"technical_name"`
		Active        bool        `db:"active"`
		CreatedAt     time.Time   `db:"created_at"`
		UpdatedAt     time.Time   `db:"updated_at"`
	}

	transitionRow struct {
		ID          string      `db:"id"`
		WorkflowID  string      `db:"workflow_id"`
		Name        string      `db:"name"`
		FromStageID string      `db:"from_stage_id"`
		ToStageID   string      `db:"to_stage_id"`
		ButtonLabel string      `db:"button_label"`
		Guard       null.String `db:"guard"`
		ActionRef   null.String `db:"action_ref"`
		Sequence    int         `db:"sequence"`
		Active      bool        `db:"active"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	analyticsRow struct {
		ID          string      `db:"id"`
		WorkflowID  string      `db:"workflow_id"`
		StageID     string      `db:"stage_id"`
		RecordCount int         `db:"record_count"`
		AvgDuration float64     `db:"avg_duration"`
		Bottlenecks null.String `db:"bottlenecks"`
		LastUpdated null.Time   `db:"last_updated"`
	}

	nextStageRow struct {
		StageID     string `db:"stage_id"`
		NextStageID string `db:"next_stage_id"`
		Sequence    int    `db:"sequence"`
		Name        string `db:"name"`
	}
)

func optString(s string) null.String { return null.NewString(s, s != "") }

func newWorkflowRow(wf workflow.Workflow) workflowRow {
	return workflowRow{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: optString(wf.Description),
		Sequence:    wf.Sequence,
		Color:       wf.Color,
		Icon:        optString(wf.Icon),
		Active:      wf.Active,
		CreatedAt:   wf.CreatedAt.UTC(),
		UpdatedAt:   wf.UpdatedAt.UTC(),
	}
}

func (r workflowRow) toWorkflow() workflow.Workflow {
	return workflow.Workflow{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Sequence:    r.Sequence,
		Color:       r.Color,
		Icon:        r.Icon.String,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newStageRow(st workflow.Stage) stageRow {
	return stageRow{
		ID:            st.ID,
		WorkflowID:    st.WorkflowID,
		Name:          st.Name,
		Sequence:      st.Sequence,
		Description:   optString(st.Description),
		Color:         st.Color,
		Icon:          optString(st.Icon),
		ButtonLabel:   st.ButtonLabel,
		ActionRef:     optString(st.ActionRef),
		ActionRefs:    optString(strings.Join(st.ActionRefs, ",")),
		MenuRef:       optString(st.MenuRef),
		TechnicalName: optString(st.TechnicalName),
		Active:        st.Active,
		CreatedAt:     st.CreatedAt.UTC(),
		UpdatedAt:     st.UpdatedAt.UTC(),
	}
}

func (r stageRow) toStage() workflow.Stage {
	return workflow.Stage{
		ID:            r.ID,
		WorkflowID:    r.WorkflowID,
		Name:          r.Name,
		Sequence:      r.Sequence,
		Description:   r.Description.String,
		Color:         r.Color,
		Icon:          r.Icon.String,
		ButtonLabel:   r.ButtonLabel,
		ActionRef:     r.ActionRef.String,
		ActionRefs:    core.SplitList(r.ActionRefs.String),
		MenuRef:       r.MenuRef.String,
		TechnicalName: r.TechnicalName.String,
		Active:        r.Active,
		NextStageIDs:  []string{},
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newTransitionRow(t workflow.Transition) transitionRow {
	return transitionRow{
		ID:          t.ID,
		WorkflowID:  t.WorkflowID,
		Name:        t.Name,
		FromStageID: t.FromStageID,
		ToStageID:   t.ToStageID,
		ButtonLabel: t.ButtonLabel,
		Guard:       optString(t.Condition),
		ActionRef:   optString(t.ActionRef),
		Sequence:    t.Sequence,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

func (r transitionRow) toTransition() workflow.Transition {
	return workflow.Transition{
		ID:          r.ID,
		WorkflowID:  r.WorkflowID,
		Name:        r.Name,
		FromStageID: r.FromStageID,
		ToStageID:   r.ToStageID,
		ButtonLabel: r.ButtonLabel,
		Condition:   r.Guard.String,
		ActionRef:   r.ActionRef.String,
		Sequence:    r.Sequence,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newAnalyticsRow(rec workflow.AnalyticsRecord) analyticsRow {
	return analyticsRow{
		ID:          rec.ID,
		WorkflowID:  rec.WorkflowID,
		StageID:     rec.StageID,
		RecordCount: rec.RecordCount,
		AvgDuration: rec.AvgDuration,
		Bottlenecks: optString(rec.Bottlenecks),
		LastUpdated: null.NewTime(rec.LastUpdated.UTC(), !rec.LastUpdated.IsZero()),
	}
}

func (r analyticsRow) toAnalytics() workflow.AnalyticsRecord {
	rec := workflow.AnalyticsRecord{
		ID:          r.ID,
		WorkflowID:  r.WorkflowID,
		StageID:     r.StageID,
		RecordCount: r.RecordCount,
		AvgDuration: r.AvgDuration,
		Bottlenecks: r.Bottlenecks.String,
	}
	if r.LastUpdated.Valid {
		rec.LastUpdated = r.LastUpdated.Time.UTC()
	}
	return rec
}

const (
	workflowColumns   = "id, name, description, sequence, color, icon, active, created_at, updated_at"
	stageColumns      = "id, workflow_id, name, sequence, description, color, icon, button_label, action_ref, action_refs, menu_ref, technical_name, active, created_at, updated_at"
	transitionColumns = "id, workflow_id, name, from_stage_id, to_stage_id, button_label, guard, action_ref, sequence, active, created_at, updated_at"
	analyticsColumns  = "id, workflow_id, stage_id, record_count, avg_duration, bottlenecks, last_updated"
)

var (
	workflowOrderingFields = []string{"name", "sequence", "created_at", "updated_at"}
	defaultWorkflowOrder   = []core.DBOrdering{{Field: "sequence", Ascending: true}, {Field: "name", Ascending: true}}
)

type workflowRepository struct {
	db *sqlx.DB
}

var _ workflow.Repository = (*workflowRepository)(nil)

func NewWorkflowRepository(db *sqlx.DB) workflow.Repository {
	return &workflowRepository{db: db}
}

func (repo *workflowRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// get runs a single-row query and maps sql.ErrNoRows to notFound.
func get(ctx context.Context, q sqlx.ExtContext, dest interface{}, notFound error, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return err
}

// execOne runs a statement that must affect exactly one row.
func execOne(ctx context.Context, e sqlx.ExecerContext, rebind func(string) string, notFound error, query string, args ...interface{}) error {
	res, err := e.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Workflows

func (repo *workflowRepository) CreateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	wf.ID = uuid.NewString()
	q := `INSERT INTO workflows (` + workflowColumns + `)
		VALUES (:id, :name, :description, :sequence, :color, :icon, :active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newWorkflowRow(wf)); err != nil {
		return workflow.Workflow{}, errors.Wrap(err, "inserting workflow")
	}
	return repo.GetWorkflow(ctx, wf.ID)
}

func (repo *workflowRepository) QueryWorkflows(ctx context.Context, filter workflow.QueryFilter, orderings []core.DBOrdering) ([]workflow.Workflow, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if filter.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, *filter.Active)
	}

	q := "SELECT " + workflowColumns + " FROM workflows"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += core.OrderBy(orderings, workflowOrderingFields, defaultWorkflowOrder...)

	var rows []workflowRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying workflows")
	}
	res := make([]workflow.Workflow, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toWorkflow())
	}
	return res, nil
}

func (repo *workflowRepository) GetWorkflow(ctx context.Context, id string) (workflow.Workflow, error) {
	var row workflowRow
	q := "SELECT " + workflowColumns + " FROM workflows WHERE id = ?"
	if err := get(ctx, repo.db, &row, workflow.ErrWorkflowNotFound, q, id); err != nil {
		return workflow.Workflow{}, err
	}
	return row.toWorkflow(), nil
}

func (repo *workflowRepository) GetWorkflowByName(ctx context.Context, name string) (workflow.Workflow, error) {
	var row workflowRow
	q := "SELECT " + workflowColumns + " FROM workflows WHERE name = ? ORDER BY created_at, id LIMIT 1"
	if err := get(ctx, repo.db, &row, workflow.ErrWorkflowNotFound, q, name); err != nil {
		return workflow.Workflow{}, err
	}
	return row.toWorkflow(), nil
}

func (repo *workflowRepository) UpdateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	row := newWorkflowRow(wf)
	q := `UPDATE workflows SET name = ?, description = ?, sequence = ?, color = ?, icon = ?, active = ?, updated_at = ?
		WHERE id = ?`
	err := execOne(ctx, repo.db, repo.db.Rebind, workflow.ErrWorkflowNotFound, q,
		row.Name, row.Description, row.Sequence, row.Color, row.Icon, row.Active, row.UpdatedAt, row.ID)
	if err != nil {
		return workflow.Workflow{}, errors.Wrap(err, "updating workflow")
	}
	return repo.GetWorkflow(ctx, wf.ID)
}

// DeleteWorkflow deletes the owned rows explicitly so that the cascade does not depend on the engine.
func (repo *workflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		stmts := []string{
			"DELETE FROM stage_analytics WHERE workflow_id = ?",
			"DELETE FROM transitions WHERE workflow_id = ?",
			`DELETE FROM stage_next_stages WHERE stage_id IN (SELECT id FROM stages WHERE workflow_id = ?)
				OR next_stage_id IN (SELECT id FROM stages WHERE workflow_id = ?)`,
			"DELETE FROM stages WHERE workflow_id = ?",
		}
		for _, q := range stmts {
			args := []interface{}{id}
			if strings.Count(q, "?") == 2 {
				args = append(args, id)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
				return errors.Wrap(err, "deleting workflow")
			}
		}
		return execOne(ctx, tx, tx.Rebind, workflow.ErrWorkflowNotFound, "DELETE FROM workflows WHERE id = ?", id)
	})
}

// Stages

func (repo *workflowRepository) CreateStage(ctx context.Context, st workflow.Stage) (workflow.Stage, error) {
	st.ID = uuid.NewString()
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		q := `INSERT INTO stages (` + stageColumns + `)
			VALUES (:id, :workflow_id, :name, :sequence, :description, :color, :icon, :button_label, :action_ref,
				:action_refs, :menu_ref, :technical_name, :active, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, newStageRow(st)); err != nil {
			return errors.Wrap(err, "inserting stage")
		}
		return insertNextStages(ctx, tx, st.ID, st.NextStageIDs)
	})
	if err != nil {
		return workflow.Stage{}, err
	}
	return repo.GetStage(ctx, st.ID)
}

func insertNextStages(ctx context.Context, tx *sqlx.Tx, stageID string, nextIDs []string) error {
	for _, next := range nextIDs {
		q := tx.Rebind("INSERT INTO stage_next_stages (stage_id, next_stage_id) VALUES (?, ?)")
		if _, err := tx.ExecContext(ctx, q, stageID, next); err != nil {
			return errors.Wrap(err, "linking next stage")
		}
	}
	return nil
}

func (repo *workflowRepository) QueryStages(ctx context.Context, workflowID string) ([]workflow.Stage, error) {
	var rows []stageRow
	q := "SELECT " + stageColumns + " FROM stages WHERE workflow_id = ? ORDER BY sequence, name, id"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), workflowID); err != nil {
		return nil, errors.Wrap(err, "querying stages")
	}
	return repo.stages(ctx, rows)
}

func (repo *workflowRepository) GetStage(ctx context.Context, id string) (workflow.Stage, error) {
	var row stageRow
	q := "SELECT " + stageColumns + " FROM stages WHERE id = ?"
	if err := get(ctx, repo.db, &row, workflow.ErrStageNotFound, q, id); err != nil {
		return workflow.Stage{}, err
	}
	stages, err := repo.stages(ctx, []stageRow{row})
	if err != nil {
		return workflow.Stage{}, err
	}
	return stages[0], nil
}

func (repo *workflowRepository) GetStages(ctx context.Context, ids ...string) ([]workflow.Stage, error) {
	if len(ids) == 0 {
		return []workflow.Stage{}, nil
	}
	q, args, err := sqlx.In("SELECT "+stageColumns+" FROM stages WHERE id IN (?) ORDER BY sequence, name, id", ids)
	if err != nil {
		return nil, err
	}
	var rows []stageRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying stages")
	}
	return repo.stages(ctx, rows)
}

// stages converts rows and loads their next-stage links, ordered by the targets' (sequence, name, id).
func (repo *workflowRepository) stages(ctx context.Context, rows []stageRow) ([]workflow.Stage, error) {
	res := make([]workflow.Stage, 0, len(rows))
	if len(rows) == 0 {
		return res, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	q, args, err := sqlx.In(`SELECT sn.stage_id, sn.next_stage_id, s.sequence, s.name FROM stage_next_stages sn
		JOIN stages s ON s.id = sn.next_stage_id
		WHERE sn.stage_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var links []nextStageRow
	if err = repo.db.SelectContext(ctx, &links, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying next stages")
	}
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i], links[j]
		return stageLess(a.Sequence, a.Name, a.NextStageID, b.Sequence, b.Name, b.NextStageID)
	})
	next := make(map[string][]string, len(rows))
	for _, l := range links {
		next[l.StageID] = append(next[l.StageID], l.NextStageID)
	}
	for _, r := range rows {
		st := r.toStage()
		if ids, ok := next[st.ID]; ok {
			st.NextStageIDs = ids
		}
		res = append(res, st)
	}
	sortStages(res)
	return res, nil
}

// sortStages orders stages by (sequence, name, id) comparing names bytewise, whatever the DB collation.
func sortStages(stages []workflow.Stage) {
	sort.Slice(stages, func(i, j int) bool {
		a, b := stages[i], stages[j]
		return stageLess(a.Sequence, a.Name, a.ID, b.Sequence, b.Name, b.ID)
	})
}

func stageLess(aSeq int, aName, aID string, bSeq int, bName, bID string) bool {
	if aSeq != bSeq {
		return aSeq < bSeq
	}
	if aName != bName {
		return aName < bName
	}
	return aID < bID
}

func (repo *workflowRepository) UpdateStage(ctx context.Context, st workflow.Stage) (workflow.Stage, error) {
	row := newStageRow(st)
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		q := `UPDATE stages SET name = ?, sequence = ?, description = ?, color = ?, icon = ?, button_label = ?,
			action_ref = ?, action_refs = ?, menu_ref = ?, technical_name = ?, active = ?, updated_at = ?
			WHERE id = ?`
		err := execOne(ctx, tx, tx.Rebind, workflow.ErrStageNotFound, q,
			row.Name, row.Sequence, row.Description, row.Color, row.Icon, row.ButtonLabel,
			row.ActionRef, row.ActionRefs, row.MenuRef, row.TechnicalName, row.Active, row.UpdatedAt, row.ID)
		if err != nil {
			return errors.Wrap(err, "updating stage")
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM stage_next_stages WHERE stage_id = ?"), st.ID); err != nil {
			return errors.Wrap(err, "unlinking next stages")
		}
		return insertNextStages(ctx, tx, st.ID, st.NextStageIDs)
	})
	if err != nil {
		return workflow.Stage{}, err
	}
	return repo.GetStage(ctx, st.ID)
}

func (repo *workflowRepository) DeleteStage(ctx context.Context, id string) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		stmts := []string{
			"DELETE FROM stage_analytics WHERE stage_id = ?",
			"DELETE FROM stage_next_stages WHERE stage_id = ? OR next_stage_id = ?",
		}
		for _, q := range stmts {
			args := []interface{}{id}
			if strings.Count(q, "?") == 2 {
				args = append(args, id)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
				return errors.Wrap(err, "deleting stage")
			}
		}
		return execOne(ctx, tx, tx.Rebind, workflow.ErrStageNotFound, "DELETE FROM stages WHERE id = ?", id)
	})
}

// Transitions

func (repo *workflowRepository) CreateTransition(ctx context.Context, t workflow.Transition) (workflow.Transition, error) {
	t.ID = uuid.NewString()
	q := `INSERT INTO transitions (` + transitionColumns + `)
		VALUES (:id, :workflow_id, :name, :from_stage_id, :to_stage_id, :button_label, :guard, :action_ref,
			:sequence, :active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newTransitionRow(t)); err != nil {
		return workflow.Transition{}, errors.Wrap(err, "inserting transition")
	}
	return repo.GetTransition(ctx, t.ID)
}

func (repo *workflowRepository) QueryTransitions(ctx context.Context, workflowID string) ([]workflow.Transition, error) {
	var rows []transitionRow
	q := "SELECT " + transitionColumns + " FROM transitions WHERE workflow_id = ? ORDER BY sequence, name, id"
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), workflowID); err != nil {
		return nil, errors.Wrap(err, "querying transitions")
	}
	res := make([]workflow.Transition, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toTransition())
	}
	return res, nil
}

func (repo *workflowRepository) GetTransition(ctx context.Context, id string) (workflow.Transition, error) {
	var row transitionRow
	q := "SELECT " + transitionColumns + " FROM transitions WHERE id = ?"
	if err := get(ctx, repo.db, &row, workflow.ErrTransitionNotFound, q, id); err != nil {
		return workflow.Transition{}, err
	}
	return row.toTransition(), nil
}

func (repo *workflowRepository) UpdateTransition(ctx context.Context, t workflow.Transition) (workflow.Transition, error) {
	row := newTransitionRow(t)
	q := `UPDATE transitions SET name = ?, from_stage_id = ?, to_stage_id = ?, button_label = ?, guard = ?,
		action_ref = ?, sequence = ?, active = ?, updated_at = ?
		WHERE id = ?`
	err := execOne(ctx, repo.db, repo.db.Rebind, workflow.ErrTransitionNotFound, q,
		row.Name, row.FromStageID, row.ToStageID, row.ButtonLabel, row.Guard,
		row.ActionRef, row.Sequence, row.Active, row.UpdatedAt, row.ID)
	if err != nil {
		return workflow.Transition{}, errors.Wrap(err, "updating transition")
	}
	return repo.GetTransition(ctx, t.ID)
}

func (repo *workflowRepository) DeleteTransition(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, repo.db.Rebind, workflow.ErrTransitionNotFound, "DELETE FROM transitions WHERE id = ?", id)
}

func (repo *workflowRepository) CountStageTransitions(ctx context.Context, stageID string) (int, error) {
	var n int
	q := repo.db.Rebind("SELECT COUNT(*) FROM transitions WHERE from_stage_id = ? OR to_stage_id = ?")
	if err := repo.db.GetContext(ctx, &n, q, stageID, stageID); err != nil {
		return 0, errors.Wrap(err, "counting transitions")
	}
	return n, nil
}

// Analytics

func (repo *workflowRepository) CreateAnalytics(ctx context.Context, rec workflow.AnalyticsRecord) (workflow.AnalyticsRecord, error) {
	if _, err := repo.GetStageAnalytics(ctx, rec.WorkflowID, rec.StageID); err == nil {
		return workflow.AnalyticsRecord{}, core.NewFieldError(workflow.ErrDuplicateAnalytics, "stage_id")
	} else if errors.Cause(err) != workflow.ErrAnalyticsNotFound {
		return workflow.AnalyticsRecord{}, err
	}
	rec.ID = uuid.NewString()
	q := `INSERT INTO stage_analytics (` + analyticsColumns + `)
		VALUES (:id, :workflow_id, :stage_id, :record_count, :avg_duration, :bottlenecks, :last_updated)`
	if _, err := repo.db.NamedExecContext(ctx, q, newAnalyticsRow(rec)); err != nil {
		return workflow.AnalyticsRecord{}, errors.Wrap(err, "inserting analytics")
	}
	return repo.GetAnalytics(ctx, rec.ID)
}

func (repo *workflowRepository) QueryAnalytics(ctx context.Context, workflowID string) ([]workflow.AnalyticsRecord, error) {
	var rows []analyticsRow
	q := `SELECT a.id, a.workflow_id, a.stage_id, a.record_count, a.avg_duration, a.bottlenecks, a.last_updated
		FROM stage_analytics a JOIN stages s ON s.id = a.stage_id
		WHERE a.workflow_id = ?
		ORDER BY s.sequence, s.name, s.id`
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), workflowID); err != nil {
		return nil, errors.Wrap(err, "querying analytics")
	}
	res := make([]workflow.AnalyticsRecord, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toAnalytics())
	}
	return res, nil
}

func (repo *workflowRepository) GetAnalytics(ctx context.Context, id string) (workflow.AnalyticsRecord, error) {
	var row analyticsRow
	q := "SELECT " + analyticsColumns + " FROM stage_analytics WHERE id = ?"
	if err := get(ctx, repo.db, &row, workflow.ErrAnalyticsNotFound, q, id); err != nil {
		return workflow.AnalyticsRecord{}, err
	}
	return row.toAnalytics(), nil
}

func (repo *workflowRepository) GetStageAnalytics(ctx context.Context, workflowID, stageID string) (workflow.AnalyticsRecord, error) {
	var row analyticsRow
	q := "SELECT " + analyticsColumns + " FROM stage_analytics WHERE workflow_id = ? AND stage_id = ?"
	if err := get(ctx, repo.db, &row, workflow.ErrAnalyticsNotFound, q, workflowID, stageID); err != nil {
		return workflow.AnalyticsRecord{}, err
	}
	return row.toAnalytics(), nil
}

func (repo *workflowRepository) UpdateAnalytics(ctx context.Context, rec workflow.AnalyticsRecord) (workflow.AnalyticsRecord, error) {
	row := newAnalyticsRow(rec)
	q := `UPDATE stage_analytics SET record_count = ?, avg_duration = ?, bottlenecks = ?, last_updated = ?
		WHERE id = ?`
	err := execOne(ctx, repo.db, repo.db.Rebind, workflow.ErrAnalyticsNotFound, q,
		row.RecordCount, row.AvgDuration, row.Bottlenecks, row.LastUpdated, row.ID)
	if err != nil {
		return workflow.AnalyticsRecord{}, errors.Wrap(err, "updating analytics")
	}
	return repo.GetAnalytics(ctx, rec.ID)
}

func (repo *workflowRepository) DeleteAnalytics(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, repo.db.Rebind, workflow.ErrAnalyticsNotFound, "DELETE FROM stage_analytics WHERE id = ?", id)
}
