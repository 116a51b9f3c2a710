package abtest

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Store loads experiments from the backing store.
type Store interface {
	ListActiveByFeature(ctx context.Context, feature string, now time.Time) ([]Test, error)
}

// Targeter assigns principals to experiment variants.
type Targeter struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTargeter constructs a Targeter.
func NewTargeter(store Store, logger *slog.Logger) *Targeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Targeter{store: store, logger: logger, now: time.Now}
}

// Assign returns the variant for one (test, user). The result is a pure
// function of test id, user id and the test's variant table, so repeated
// calls and process restarts agree. Outside the experiment window, or when
// the target criteria exclude the principal, the control sentinel is
// returned.
func (t *Targeter) Assign(test Test, userID string, attrs map[string]any) Assignment {
	if !test.Running(t.now()) {
		return Assignment{Variant: VariantControl}
	}
	if !test.TargetCriteria.Match(attrs) {
		return Assignment{Variant: VariantControl}
	}
	if err := test.ValidateVariants(); err != nil {
		t.logger.Warn("experiment with invalid variant table",
			slog.String("test_id", test.ID), slog.Any("error", err))
		return Assignment{Variant: VariantControl}
	}

	bucket := bucketFor(test.ID, userID)
	cumulative := 0
	for _, variant := range test.Variants {
		cumulative += variant.Percentage
		if bucket < cumulative {
			return Assignment{TestID: test.ID, Variant: variant.Name, InExperiment: true}
		}
	}
	// Unreachable when percentages sum to 100.
	last := test.Variants[len(test.Variants)-1]
	return Assignment{TestID: test.ID, Variant: last.Name, InExperiment: true}
}

// ForFeature finds the experiment for a feature, if any, and assigns the
// principal. With no experiment the zero Assignment (not in experiment, no
// test id) is returned with ok=false.
func (t *Targeter) ForFeature(ctx context.Context, feature, userID string, attrs map[string]any) (Assignment, bool, error) {
	tests, err := t.store.ListActiveByFeature(ctx, feature, t.now())
	if err != nil {
		return Assignment{}, false, fmt.Errorf("abtest: list for feature %q: %w", feature, err)
	}
	if len(tests) == 0 {
		return Assignment{}, false, nil
	}
	// Newest experiment wins when operators overlap two for one feature.
	return t.Assign(tests[0], userID, attrs), true, nil
}

// bucketFor maps (testID, userID) onto [0, 100) with a keyed stable hash.
func bucketFor(testID, userID string) int {
	sum := blake2b.Sum256([]byte(testID + ":" + userID))
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}
