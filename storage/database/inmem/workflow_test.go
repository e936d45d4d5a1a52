package inmemdb_test

import (
	"testing"

	"github.com/trezcool/flowboard/core/workflow"
	inmemdb "github.com/trezcool/flowboard/storage/database/inmem"
	testutil "github.com/trezcool/flowboard/tests"
)

func TestWorkflowRepository(t *testing.T) {
	testutil.RepositoryTests(t, func(t *testing.T) workflow.Repository {
		return inmemdb.NewWorkflowRepository(inmemdb.Open())
	})
}
