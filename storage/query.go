package storage

import (
	"slices"
	"strings"

	"github.com/poiesic/marketsearch/core"
)

// MatchesText reports whether text occurs case-insensitively in the entry's
// title or description. Empty text matches every entry.
func MatchesText(entry *core.IndexEntry, text string) bool {
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	return strings.Contains(strings.ToLower(entry.Title), needle) ||
		strings.Contains(strings.ToLower(entry.Description), needle)
}

// MatchesKind reports whether the entry has the given kind. Empty kind matches.
func MatchesKind(entry *core.IndexEntry, kind string) bool {
	return kind == "" || entry.SourceKind == core.NormalizeKind(kind)
}

// MatchesScan reports whether the entry satisfies kind, text, and filters of q.
func MatchesScan(entry *core.IndexEntry, q ScanQuery) bool {
	return MatchesKind(entry, q.Kind) && MatchesText(entry, q.Text) && MatchAll(q.Filters, entry.Metadata)
}

// SortNewestFirst orders entries by CreatedAt descending, ties by ascending ID.
func SortNewestFirst(entries []*core.IndexEntry) {
	slices.SortStableFunc(entries, func(a, b *core.IndexEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(a.Id, b.Id)
	})
}

// SortByDistance orders hits by ascending distance, ties by ascending ID.
// Hits without a distance sort last.
func SortByDistance(hits []*core.Hit) {
	slices.SortStableFunc(hits, func(a, b *core.Hit) int {
		switch {
		case a.Distance == nil && b.Distance == nil:
		case a.Distance == nil:
			return 1
		case b.Distance == nil:
			return -1
		case *a.Distance < *b.Distance:
			return -1
		case *a.Distance > *b.Distance:
			return 1
		}
		return cmpID(a.Entry.Id, b.Entry.Id)
	})
}

// LimitEntries truncates entries to limit. Zero or negative keeps everything.
func LimitEntries(entries []*core.IndexEntry, limit int) []*core.IndexEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

// LimitHits truncates hits to limit. Zero or negative keeps everything.
func LimitHits(hits []*core.Hit, limit int) []*core.Hit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func cmpID(a, b core.ID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
