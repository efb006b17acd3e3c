package persistence

import "strings"

// SortColumns is the allow list of columns a list query may order by.
// Client input never reaches ORDER BY unless it names an allowed column.
type SortColumns struct {
	allowed  map[string]struct{}
	fallback string
}

// NewSortColumns allows cols and falls back to fallback for anything else
func NewSortColumns(fallback string, cols ...string) SortColumns {
	allowed := make(map[string]struct{}, len(cols)+1)
	for _, c := range append(cols, fallback) {
		allowed[c] = struct{}{}
	}
	return SortColumns{allowed: allowed, fallback: fallback}
}

// Column returns field when it is allowed, otherwise the fallback
func (s SortColumns) Column(field string) string {
	field = strings.TrimSpace(field)
	if _, ok := s.allowed[field]; ok {
		return field
	}
	return s.fallback
}

// OrderClause returns "<column> ASC|DESC" for the requested field and direction
func (s SortColumns) OrderClause(field, dir string) string {
	return s.Column(field) + " " + SortDirection(dir)
}

// SortDirection normalizes dir to ASC or DESC, defaulting to DESC
func SortDirection(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return "ASC"
	}
	return "DESC"
}

var catalogEntrySort = NewSortColumns("updated_at",
	"id", "created_at", "platform", "name", "brand", "current_price",
	"available", "first_seen_at", "last_updated_at",
)
