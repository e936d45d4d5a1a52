package sqlxrepos

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core/workflow"
)

var tableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// TableCounter counts the rows of the table backing a model: "op.student.fees.details"
// lives in "op_student_fees_details". Missing tables count 0.
type TableCounter struct {
	db *sqlx.DB
}

var _ workflow.RecordCounter = (*TableCounter)(nil)

func NewTableCounter(db *sqlx.DB) *TableCounter {
	return &TableCounter{db: db}
}

// TableName maps a model name to its table name.
func TableName(model string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(model)), ".", "_")
}

func (c *TableCounter) CountRecords(ctx context.Context, model string) (int, error) {
	table := TableName(model)
	if !tableNameRegex.MatchString(table) {
		return 0, nil
	}

	var existsQ string
	if c.db.DriverName() == "sqlite" {
		existsQ = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	} else {
		existsQ = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	}
	var found int
	if err := c.db.GetContext(ctx, &found, c.db.Rebind(existsQ), table); err != nil {
		return 0, errors.Wrapf(err, "looking up table %s", table)
	}
	if found == 0 {
		return 0, nil
	}

	var n int
	if err := c.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)); err != nil {
		return 0, errors.Wrapf(err, "counting %s", table)
	}
	return n, nil
}
