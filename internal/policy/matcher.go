package policy

// Criteria is an attribute matcher: every entry must match the context for
// the criteria to match. A value that is a list matches when the context
// attribute equals any element (set membership). Empty criteria match
// everything. Missing context attributes simply fail the match; unlike rule
// predicates, target criteria never error.
type Criteria map[string]any

// Match reports whether the context attributes satisfy the criteria. The A/B
// targeter reuses this matcher so experiments and policies agree on targeting
// semantics.
func (c Criteria) Match(attrs map[string]any) bool {
	for key, want := range c {
		actual, ok := attrs[key]
		if !ok {
			return false
		}
		if list, isList := want.([]any); isList {
			found := false
			for _, item := range list {
				if looseEqual(actual, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !looseEqual(actual, want) {
			return false
		}
	}
	return true
}
