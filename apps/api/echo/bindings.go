package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/flowboard/core"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=sequence,-name` into DB orderings; "-" means descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range core.SplitList(val) {
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// GuardContext is the evaluation context of a transition guard.
type GuardContext struct {
	Context map[string]interface{} `json:"context"`
}
