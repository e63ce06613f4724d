package search

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

const (
	// KindParam is the request parameter restricting results to one source kind.
	KindParam = "type"

	metadataPrefix       = "metadata."
	legacyMetadataPrefix = "metadata__"
)

// ParsedFilters is the structured form of request filter parameters.
type ParsedFilters struct {
	Kind    string
	Filters []storage.Filter
}

// ParseFilters turns request parameters into a kind restriction and metadata filters.
//
// Metadata filters are written metadata.<key>[.<op>] or metadata__<key>[__<op>].
// The op defaults to eq; an unknown op degrades to equality on the key without
// the suffix. Values are coerced to int, then float, then bool, then kept as
// strings. The "type" parameter selects the kind. Other parameters are ignored.
// Filters are returned sorted by field for deterministic evaluation.
func ParseFilters(params map[string]string) ParsedFilters {
	var parsed ParsedFilters
	for key, raw := range params {
		if strings.EqualFold(key, KindParam) {
			parsed.Kind = core.NormalizeKind(raw)
			continue
		}
		field, op, ok := parseFilterKey(key)
		if !ok {
			continue
		}
		parsed.Filters = append(parsed.Filters, storage.Filter{Field: field, Op: op, Value: coerceValue(raw)})
	}
	slices.SortFunc(parsed.Filters, func(a, b storage.Filter) int {
		if c := strings.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		return strings.Compare(string(a.Op), string(b.Op))
	})
	return parsed
}

func parseFilterKey(key string) (string, storage.Op, bool) {
	var rest, sep string
	switch {
	case strings.HasPrefix(key, metadataPrefix):
		rest, sep = key[len(metadataPrefix):], "."
	case strings.HasPrefix(key, legacyMetadataPrefix):
		rest, sep = key[len(legacyMetadataPrefix):], "__"
	default:
		return "", "", false
	}

	i := strings.LastIndex(rest, sep)
	if i <= 0 {
		if rest == "" {
			return "", "", false
		}
		return rest, storage.OpEq, true
	}
	base, suffix := rest[:i], rest[i+len(sep):]
	if op, ok := storage.ParseOp(suffix); ok {
		return base, op, true
	}
	return base, storage.OpEq, true
}

func coerceValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
