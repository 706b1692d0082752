package admission

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Evaluator resolves guard conditions and key templates against a request
// environment. The engine ships a small built-in evaluator; callers with a
// richer expression language can plug their own.
type Evaluator interface {
	// Evaluate resolves expr against env. The result is interpreted by the
	// caller: key templates want a string, guard conditions want a bool.
	Evaluate(expr string, env map[string]interface{}) (interface{}, error)
}

var fieldMarker = regexp.MustCompile(`#\{([^}]*)\}`)

// TemplateEvaluator built-in evaluator. Supports #{field} substitution
// against the environment plus ==, != and bare-field guard conditions.
type TemplateEvaluator struct{}

// NewTemplateEvaluator creates the built-in evaluator.
func NewTemplateEvaluator() *TemplateEvaluator {
	return &TemplateEvaluator{}
}

// Evaluate resolves a template or comparison expression.
func (e *TemplateEvaluator) Evaluate(expr string, env map[string]interface{}) (interface{}, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", nil
	}

	if op, lhs, rhs, ok := splitComparison(expr); ok {
		left, err := e.resolveTerm(lhs, env)
		if err != nil {
			return nil, err
		}
		right, err := e.resolveTerm(rhs, env)
		if err != nil {
			return nil, err
		}
		equal := fmt.Sprint(left) == fmt.Sprint(right)
		if op == "!=" {
			return !equal, nil
		}
		return equal, nil
	}

	return e.interpolate(expr, env)
}

// interpolate replaces every #{field} marker with its environment value.
// An unknown field is an error; the key builder decides what to do with it.
func (e *TemplateEvaluator) interpolate(expr string, env map[string]interface{}) (interface{}, error) {
	var missing string
	out := fieldMarker.ReplaceAllStringFunc(expr, func(marker string) string {
		name := strings.TrimSpace(marker[2 : len(marker)-1])
		v, ok := env[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return marker
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return nil, fmt.Errorf("unknown field %q in expression %q", missing, expr)
	}
	return out, nil
}

// resolveTerm resolves one side of a comparison: a #{field} marker, a quoted
// literal, a number, a boolean, or a bare environment name.
func (e *TemplateEvaluator) resolveTerm(term string, env map[string]interface{}) (interface{}, error) {
	term = strings.TrimSpace(term)

	if strings.Contains(term, "#{") {
		return e.interpolate(term, env)
	}
	if len(term) >= 2 && (term[0] == '\'' || term[0] == '"') && term[len(term)-1] == term[0] {
		return term[1 : len(term)-1], nil
	}
	if n, err := strconv.ParseFloat(term, 64); err == nil {
		return n, nil
	}
	if b, err := strconv.ParseBool(term); err == nil {
		return b, nil
	}
	if v, ok := env[term]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown term %q", term)
}

// splitComparison splits "lhs == rhs" or "lhs != rhs" once, outside quotes.
func splitComparison(expr string) (op, lhs, rhs string, ok bool) {
	inQuote := byte(0)
	for i := 0; i+1 < len(expr); i++ {
		c := expr[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
		case '=':
			if expr[i+1] == '=' {
				return "==", expr[:i], expr[i+2:], true
			}
		case '!':
			if expr[i+1] == '=' {
				return "!=", expr[:i], expr[i+2:], true
			}
		}
	}
	return "", "", "", false
}

// truthy interprets an evaluator result as a guard outcome.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case nil:
		return false
	default:
		return false
	}
}
