package search

import (
	"strings"

	"github.com/poiesic/marketsearch/core"
)

// normalizeQuery collapses whitespace and bounds the length of a query
// before it is logged. Matching uses the query as given.
func normalizeQuery(query string) string {
	return core.Truncate(strings.Join(strings.Fields(query), " "), core.MaxQueryTextLength)
}
