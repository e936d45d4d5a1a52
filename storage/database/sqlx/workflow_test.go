package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trezcool/flowboard/core/workflow"
	"github.com/trezcool/flowboard/storage/database"
	sqlxrepos "github.com/trezcool/flowboard/storage/database/sqlx"
	testutil "github.com/trezcool/flowboard/tests"
)

func TestWorkflowRepository_sqlite(t *testing.T) {
	testutil.RepositoryTests(t, func(t *testing.T) workflow.Repository {
		return sqlxrepos.NewWorkflowRepository(testutil.PrepareDB(t))
	})
}

func TestWorkflowRepository_postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("flowboard_test"),
		postgres.WithUsername("flowboard"),
		postgres.WithPassword("flowboard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sqlx.Open(database.Postgres, connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, database.Ping(ctx, db))

	testutil.RepositoryTests(t, func(t *testing.T) workflow.Repository {
		require.NoError(t, database.Migrate(db, "reset"))
		require.NoError(t, database.Migrate(db, "up"))
		return sqlxrepos.NewWorkflowRepository(db)
	})
}

func TestTableCounter(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	_, err := db.Exec(`CREATE TABLE op_admission (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO op_admission (name) VALUES ('a'), ('b'), ('c')`)
	require.NoError(t, err)

	counter := sqlxrepos.NewTableCounter(db)
	tests := []struct {
		model string
		want  int
	}{
		{model: "op.admission", want: 3},
		{model: "OP.Admission", want: 3},
		{model: "op.student", want: 0},
		{model: "", want: 0},
		{model: `op.admission"; DROP TABLE workflows; --`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			n, err := counter.CountRecords(ctx, tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	assert.Equal(t, "op_student_fees_details", sqlxrepos.TableName(" op.student.fees.details "))
}

func TestTableCounter_refreshAnalytics(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	_, err := db.Exec(`CREATE TABLE op_student (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO op_student (id) VALUES (1), (2)`)
	require.NoError(t, err)

	repo := sqlxrepos.NewWorkflowRepository(db)
	svc := workflow.NewService(repo, workflow.Deps{Counter: sqlxrepos.NewTableCounter(db), Clock: testutil.Clock})
	wf := testutil.CreateWorkflow(t, repo, "Student Lifecycle", 10, true)
	testutil.CreateStage(t, repo, wf, "Enrollment", 10, "action_open_students")
	testutil.CreateStage(t, repo, wf, "Graduation", 20, "")

	records, err := svc.RefreshWorkflowAnalytics(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].RecordCount)
	assert.Equal(t, 0, records[1].RecordCount)
	assert.Equal(t, testutil.Now, records[0].LastUpdated)
}
