package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/ternarybob/tagforge/internal/models"
	"github.com/tidwall/gjson"
)

// ConditionTrace records the outcome of one condition for debugging and
// dry-run previews.
type ConditionTrace struct {
	Field    string          `json:"field"`
	Operator models.Operator `json:"operator"`
	Expected string          `json:"expected"`
	Actual   string          `json:"actual"`
	Exists   bool            `json:"exists"`
	Result   bool            `json:"result"`
}

// Evaluation is the result of matching a condition list against a
// resource payload.
type Evaluation struct {
	Matches bool             `json:"matches"`
	Trace   []ConditionTrace `json:"trace"`
}

// operatorFunc evaluates one extracted value against an expected value.
type operatorFunc func(actual gjson.Result, expected string) bool

// operators is the single dispatch table for condition kinds. Unknown
// operators evaluate false rather than erroring; validation rejects
// them before they reach the engine.
var operators = map[models.Operator]operatorFunc{
	models.OperatorEquals: func(a gjson.Result, e string) bool {
		return a.Exists() && strings.EqualFold(a.String(), e)
	},
	models.OperatorNotEquals: func(a gjson.Result, e string) bool {
		return !a.Exists() || !strings.EqualFold(a.String(), e)
	},
	models.OperatorContains: func(a gjson.Result, e string) bool {
		return a.Exists() && strings.Contains(strings.ToLower(a.String()), strings.ToLower(e))
	},
	models.OperatorNotContains: func(a gjson.Result, e string) bool {
		return !a.Exists() || !strings.Contains(strings.ToLower(a.String()), strings.ToLower(e))
	},
	models.OperatorStartsWith: func(a gjson.Result, e string) bool {
		return a.Exists() && strings.HasPrefix(strings.ToLower(a.String()), strings.ToLower(e))
	},
	models.OperatorEndsWith: func(a gjson.Result, e string) bool {
		return a.Exists() && strings.HasSuffix(strings.ToLower(a.String()), strings.ToLower(e))
	},
	models.OperatorGreaterThan: func(a gjson.Result, e string) bool {
		av, ev, ok := parseNumericPair(a, e)
		return ok && av > ev
	},
	models.OperatorLessThan: func(a gjson.Result, e string) bool {
		av, ev, ok := parseNumericPair(a, e)
		return ok && av < ev
	},
	models.OperatorIn: func(a gjson.Result, e string) bool {
		return a.Exists() && inList(a.String(), e)
	},
	models.OperatorNotIn: func(a gjson.Result, e string) bool {
		return !a.Exists() || !inList(a.String(), e)
	},
	models.OperatorExists: func(a gjson.Result, e string) bool {
		return a.Exists()
	},
	models.OperatorNotExists: func(a gjson.Result, e string) bool {
		return !a.Exists()
	},
	models.OperatorIsEmpty: func(a gjson.Result, e string) bool {
		return isEmpty(a)
	},
	models.OperatorIsNotEmpty: func(a gjson.Result, e string) bool {
		return !isEmpty(a)
	},
}

// Evaluate matches a condition list against a JSON resource payload.
// Pure and deterministic: no I/O, never errors, safe for dry runs.
//
// An empty condition list always matches. Logical combinators are
// applied strictly left to right with no precedence grouping; (A OR B)
// AND C is not expressible and that is the documented behavior.
func Evaluate(payload []byte, conditions []models.Condition) Evaluation {
	eval := Evaluation{
		Matches: true,
		Trace:   make([]ConditionTrace, 0, len(conditions)),
	}

	for i, cond := range conditions {
		actual := extract(payload, cond.Field)

		result := false
		if fn, ok := operators[cond.Operator]; ok {
			result = fn(actual, cond.Value)
		}

		eval.Trace = append(eval.Trace, ConditionTrace{
			Field:    cond.Field,
			Operator: cond.Operator,
			Expected: cond.Value,
			Actual:   actual.String(),
			Exists:   actual.Exists(),
			Result:   result,
		})

		if i == 0 {
			eval.Matches = result
			continue
		}
		if conditions[i-1].Logical == models.LogicalOr {
			eval.Matches = eval.Matches || result
		} else {
			eval.Matches = eval.Matches && result
		}
	}

	return eval
}

// extract resolves a dotted field path against the payload. Bracket
// array indexing ("addresses[0].city") is normalized to gjson's dotted
// form before lookup. Unresolvable paths return a non-existent result.
func extract(payload []byte, field string) gjson.Result {
	return gjson.GetBytes(payload, normalizePath(field))
}

func normalizePath(field string) string {
	if !strings.ContainsAny(field, "[]") {
		return field
	}
	var b strings.Builder
	for _, r := range field {
		switch r {
		case '[':
			b.WriteByte('.')
		case ']':
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseNumericPair parses both operands as finite numbers. Either side
// failing to parse makes the comparison false, never a panic or error.
func parseNumericPair(actual gjson.Result, expected string) (float64, float64, bool) {
	if !actual.Exists() {
		return 0, 0, false
	}
	av, err := strconv.ParseFloat(strings.TrimSpace(actual.String()), 64)
	if err != nil || math.IsInf(av, 0) || math.IsNaN(av) {
		return 0, 0, false
	}
	ev, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if err != nil || math.IsInf(ev, 0) || math.IsNaN(ev) {
		return 0, 0, false
	}
	return av, ev, true
}

func inList(actual, expected string) bool {
	for _, item := range strings.Split(expected, ",") {
		if strings.EqualFold(strings.TrimSpace(item), actual) {
			return true
		}
	}
	return false
}

func isEmpty(a gjson.Result) bool {
	if !a.Exists() || a.Type == gjson.Null {
		return true
	}
	if a.IsArray() {
		return len(a.Array()) == 0
	}
	return strings.TrimSpace(a.String()) == ""
}
