package abtest

import (
	"fmt"
	"time"

	"github.com/vesper-social/vesper/internal/policy"
	"github.com/vesper-social/vesper/internal/shared"
)

// TestStatus gates experiment eligibility.
type TestStatus string

// Experiment statuses.
const (
	TestActive    TestStatus = "ACTIVE"
	TestPaused    TestStatus = "PAUSED"
	TestCompleted TestStatus = "COMPLETED"
)

// Valid reports whether the status is one of the known values.
func (s TestStatus) Valid() bool {
	return s == TestActive || s == TestPaused || s == TestCompleted
}

// Variant is one experiment arm. Percentage is an integer share of traffic;
// a test's variants must sum to exactly 100.
type Variant struct {
	Name       string         `json:"name"`
	Percentage int            `json:"percentage"`
	Config     map[string]any `json:"config,omitempty"`
}

// Test is an experiment scoped to a feature. Assignment is deterministic per
// (test, user) for the lifetime of the test.
type Test struct {
	ID             string
	Name           string
	Feature        string
	StartDate      time.Time
	EndDate        time.Time
	TargetCriteria policy.Criteria
	Variants       []Variant
	Status         TestStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidateVariants checks that variant percentages sum to 100 and names are
// unique and non-empty.
func (t Test) ValidateVariants() error {
	if len(t.Variants) == 0 {
		return fmt.Errorf("abtest: test needs at least one variant: %w", shared.ErrValidation)
	}
	total := 0
	seen := make(map[string]struct{}, len(t.Variants))
	for _, v := range t.Variants {
		if v.Name == "" {
			return fmt.Errorf("abtest: variant without name: %w", shared.ErrValidation)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("abtest: duplicate variant %q: %w", v.Name, shared.ErrValidation)
		}
		seen[v.Name] = struct{}{}
		if v.Percentage < 0 || v.Percentage > 100 {
			return fmt.Errorf("abtest: variant %q percentage out of range: %w", v.Name, shared.ErrValidation)
		}
		total += v.Percentage
	}
	if total != 100 {
		return fmt.Errorf("abtest: variant percentages sum to %d, want 100: %w", total, shared.ErrValidation)
	}
	return nil
}

// Running reports whether the test is eligible at the given time.
func (t Test) Running(now time.Time) bool {
	return t.Status == TestActive && !now.Before(t.StartDate) && !now.After(t.EndDate)
}

// Assignment is the targeting result for one principal.
type Assignment struct {
	TestID string `json:"testId,omitempty"`
	// Variant is the assigned arm, or "control" when the principal is not in
	// the experiment.
	Variant      string `json:"variant"`
	InExperiment bool   `json:"inExperiment"`
}

// VariantControl is the sentinel returned outside the experiment window or
// for principals the target criteria exclude.
const VariantControl = "control"
