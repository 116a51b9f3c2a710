package policy

import "time"

// Priority orders policies for evaluation. HIGH policies are evaluated before
// MEDIUM before LOW.
type Priority string

// Policy priorities.
const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether the priority is one of the known values.
func (p Priority) Valid() bool {
	return p.rank() > 0
}

// Status gates whether a policy participates in live evaluation. Only ACTIVE
// policies do; DRAFT and INACTIVE policies are reachable solely through the
// sandboxed test path.
type Status string

// Policy statuses.
const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusDraft    Status = "DRAFT"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive || s == StatusDraft
}

// Policy is an operator-defined rule that can restrict or permit a feature.
// When the target criteria match and the rule predicate evaluates true, the
// policy decides the outcome: Allow plus Restrictions (a partial allow, such
// as "usable but rate-limited", is Allow=true with a non-empty restriction
// list).
type Policy struct {
	ID             string
	Name           string
	Feature        string
	Priority       Priority
	Status         Status
	Rules          Rule
	TargetCriteria Criteria
	Allow          bool
	Restrictions   []string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Outcome is the result of evaluating all policies for a feature.
type Outcome struct {
	// Allowed defaults to true when no policy decides (fail-open).
	Allowed bool
	// Restrictions carried by the deciding policy.
	Restrictions []string
	// Matched lists the ids of policies whose target criteria matched, in
	// evaluation order. The last entry is the decider when DecidedBy is set.
	Matched []string
	// DecidedBy is the id of the deciding policy, empty on fail-open.
	DecidedBy string
	// Skipped lists policies that were malformed for this context and were
	// isolated from the decision.
	Skipped []string
}
