package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy renders an ORDER BY clause from orderings whose field is in `allowed`.
// Unknown fields are dropped; `fallback` is used when nothing valid remains.
func OrderBy(orderings []DBOrdering, allowed []string, fallback ...DBOrdering) string {
	valid := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		valid[f] = true
	}
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if valid[ord.Field] {
			parts = append(parts, ord.String())
		}
	}
	if len(parts) == 0 {
		for _, ord := range fallback {
			parts = append(parts, ord.String())
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
