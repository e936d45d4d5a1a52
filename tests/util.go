package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/flowboard/core/workflow"
	"github.com/trezcool/flowboard/storage/database"
)

// Now is the frozen clock of the tests.
var Now = time.Date(2024, 9, 1, 8, 30, 0, 0, time.UTC)

func Clock() time.Time { return Now }

// PrepareDB opens a migrated SQLite database in a temporary directory.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "flowboard_test.db"))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateWorkflow(t *testing.T, repo workflow.Repository, name string, sequence int, active bool, createdAt ...time.Time) workflow.Workflow {
	t.Helper()
	tstamp := Now
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	wf, err := repo.CreateWorkflow(context.Background(), workflow.Workflow{
		Name:      name,
		Sequence:  sequence,
		Color:     workflow.DefaultWorkflowColor,
		Active:    active,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateWorkflow() failed: %v", err)
	}
	return wf
}

func CreateStage(t *testing.T, repo workflow.Repository, wf workflow.Workflow, name string, sequence int, actionRef string, next ...string) workflow.Stage {
	t.Helper()
	st, err := repo.CreateStage(context.Background(), workflow.Stage{
		WorkflowID:   wf.ID,
		Name:         name,
		Sequence:     sequence,
		Color:        workflow.DefaultStageColor,
		ButtonLabel:  workflow.DefaultStageButton,
		ActionRef:    actionRef,
		Active:       true,
		NextStageIDs: next,
		CreatedAt:    Now,
		UpdatedAt:    Now,
	})
	if err != nil {
		t.Fatalf("CreateStage() failed: %v", err)
	}
	return st
}

func CreateTransition(t *testing.T, repo workflow.Repository, from, to workflow.Stage, guard, actionRef string) workflow.Transition {
	t.Helper()
	tr, err := repo.CreateTransition(context.Background(), workflow.Transition{
		WorkflowID:  from.WorkflowID,
		Name:        from.Name + " to " + to.Name,
		FromStageID: from.ID,
		ToStageID:   to.ID,
		ButtonLabel: workflow.DefaultTransitionButton,
		Condition:   guard,
		ActionRef:   actionRef,
		Sequence:    workflow.DefaultSequence,
		Active:      true,
		CreatedAt:   Now,
		UpdatedAt:   Now,
	})
	if err != nil {
		t.Fatalf("CreateTransition() failed: %v", err)
	}
	return tr
}

func CreateAnalytics(t *testing.T, repo workflow.Repository, st workflow.Stage, count int, avgDuration float64, lastUpdated time.Time) workflow.AnalyticsRecord {
	t.Helper()
	rec, err := repo.CreateAnalytics(context.Background(), workflow.AnalyticsRecord{
		WorkflowID:  st.WorkflowID,
		StageID:     st.ID,
		RecordCount: count,
		AvgDuration: avgDuration,
		LastUpdated: lastUpdated,
	})
	if err != nil {
		t.Fatalf("CreateAnalytics() failed: %v", err)
	}
	return rec
}
