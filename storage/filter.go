package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Op is a metadata comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpContains Op = "contains"
)

// ParseOp maps an operator name to an Op.
// The second result is false for unknown names.
func ParseOp(name string) (Op, bool) {
	switch Op(strings.ToLower(name)) {
	case OpEq, "exact":
		return OpEq, true
	case OpNe:
		return OpNe, true
	case OpLt:
		return OpLt, true
	case OpLte:
		return OpLte, true
	case OpGt:
		return OpGt, true
	case OpGte:
		return OpGte, true
	case OpContains, "icontains":
		return OpContains, true
	}
	return "", false
}

// Filter restricts entries by one metadata key.
// An entry that lacks the key never matches.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// String renders the filter as "field op value".
func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
}

// Match reports whether the metadata satisfies the filter.
//
// Numeric values compare numerically when both sides are numbers (or strings
// that parse as numbers). Booleans support eq and ne. Everything else compares
// as strings; contains is a case-insensitive substring test.
func (f Filter) Match(metadata map[string]any) bool {
	actual, ok := metadata[f.Field]
	if !ok || actual == nil {
		return false
	}

	if f.Op == OpContains {
		return strings.Contains(strings.ToLower(stringify(actual)), strings.ToLower(stringify(f.Value)))
	}

	if a, aok := toNumber(actual); aok {
		if b, bok := toNumber(f.Value); bok {
			return compare(f.Op, cmpFloat(a, b))
		}
	}

	if a, aok := actual.(bool); aok {
		if b, bok := f.Value.(bool); bok {
			switch f.Op {
			case OpEq:
				return a == b
			case OpNe:
				return a != b
			}
			return false
		}
	}

	return compare(f.Op, strings.Compare(stringify(actual), stringify(f.Value)))
}

// MatchAll reports whether every filter matches.
func MatchAll(filters []Filter, metadata map[string]any) bool {
	for _, f := range filters {
		if !f.Match(metadata) {
			return false
		}
	}
	return true
}

func compare(op Op, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
