package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/vesper-social/vesper/internal/shared"
)

// Rule is a tagged predicate tree over request-context attributes. Exactly
// one branch may be set; an empty rule evaluates to true so "always applies"
// policies need no sentinel predicate.
type Rule struct {
	All     []Rule   `json:"all,omitempty"`
	Any     []Rule   `json:"any,omitempty"`
	Not     *Rule    `json:"not,omitempty"`
	Compare *Compare `json:"compare,omitempty"`
}

// Compare is a leaf comparison between a context attribute and a literal.
type Compare struct {
	Attr  string `json:"attr"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Comparison operators.
const (
	OpEq  = "eq"
	OpNe  = "ne"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
	OpIn  = "in"
	OpNin = "nin"
)

// Validate checks the tree shape without evaluating it.
func (r Rule) Validate() error {
	set := 0
	if len(r.All) > 0 {
		set++
	}
	if len(r.Any) > 0 {
		set++
	}
	if r.Not != nil {
		set++
	}
	if r.Compare != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("policy: rule sets %d branches, want at most one: %w", set, shared.ErrValidation)
	}
	for _, child := range r.All {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	for _, child := range r.Any {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	if r.Not != nil {
		if err := r.Not.Validate(); err != nil {
			return err
		}
	}
	if r.Compare != nil {
		return r.Compare.validate()
	}
	return nil
}

func (c *Compare) validate() error {
	if strings.TrimSpace(c.Attr) == "" {
		return fmt.Errorf("policy: compare without attr: %w", shared.ErrValidation)
	}
	switch c.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin:
		return nil
	}
	return fmt.Errorf("policy: unknown operator %q: %w", c.Op, shared.ErrValidation)
}

// Evaluate walks the tree against the attribute map. A comparison against a
// missing attribute is a validation error, which the engine treats as
// "skip this policy" rather than failing the whole decision.
func (r Rule) Evaluate(attrs map[string]any) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	return r.eval(attrs)
}

func (r Rule) eval(attrs map[string]any) (bool, error) {
	switch {
	case len(r.All) > 0:
		for _, child := range r.All {
			ok, err := child.eval(attrs)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case len(r.Any) > 0:
		for _, child := range r.Any {
			ok, err := child.eval(attrs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case r.Not != nil:
		ok, err := r.Not.eval(attrs)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case r.Compare != nil:
		return r.Compare.eval(attrs)
	}
	return true, nil
}

func (c *Compare) eval(attrs map[string]any) (bool, error) {
	actual, ok := attrs[c.Attr]
	if !ok {
		return false, fmt.Errorf("policy: context missing attribute %q: %w", c.Attr, shared.ErrValidation)
	}
	switch c.Op {
	case OpEq:
		return looseEqual(actual, c.Value), nil
	case OpNe:
		return !looseEqual(actual, c.Value), nil
	case OpIn, OpNin:
		list, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("policy: %s operator needs a list value: %w", c.Op, shared.ErrValidation)
		}
		found := false
		for _, item := range list {
			if looseEqual(actual, item) {
				found = true
				break
			}
		}
		if c.Op == OpIn {
			return found, nil
		}
		return !found, nil
	case OpGt, OpGte, OpLt, OpLte:
		left, lok := toFloat(actual)
		right, rok := toFloat(c.Value)
		if !lok || !rok {
			return false, fmt.Errorf("policy: %s operator needs numeric operands for %q: %w", c.Op, c.Attr, shared.ErrValidation)
		}
		switch c.Op {
		case OpGt:
			return left > right, nil
		case OpGte:
			return left >= right, nil
		case OpLt:
			return left < right, nil
		default:
			return left <= right, nil
		}
	}
	return false, fmt.Errorf("policy: unknown operator %q: %w", c.Op, shared.ErrValidation)
}

// looseEqual compares scalars across the numeric representations JSON
// decoding produces. Strings compare case-insensitively because attribute
// values like country codes arrive in mixed case from upstream collaborators.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.EqualFold(as, bs)
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case time.Time:
		return float64(n.UnixNano()), true
	}
	return 0, false
}
