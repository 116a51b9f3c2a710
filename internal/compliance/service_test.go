package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRuleStore struct {
	rules []Rule
	err   error
}

func (s *stubRuleStore) ListForFeature(ctx context.Context, userID, feature string) ([]Rule, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Feature != feature {
			continue
		}
		if r.Wildcard() || r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestCheckNoRulesAllows(t *testing.T) {
	gate := NewGate(&stubRuleStore{}, nil)

	verdict, err := gate.Check(context.Background(), "u1", "payments", GeoContext{Country: "US"})
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Empty(t, verdict.Restrictions)
}

func TestCheckUserRuleBeatsWildcard(t *testing.T) {
	gate := NewGate(&stubRuleStore{rules: []Rule{
		{ID: "r-geo", Feature: "payments", Country: "US", Allowed: true, CreatedAt: time.Now()},
		{ID: "r-user", UserID: "u1", Feature: "payments", Allowed: false, Restrictions: []string{"p2p"}, Reason: "fraud hold", CreatedAt: time.Now().Add(-time.Hour)},
	}}, nil)

	verdict, err := gate.Check(context.Background(), "u1", "payments", GeoContext{Country: "US"})
	require.NoError(t, err)
	require.False(t, verdict.Allowed)
	require.Equal(t, []string{"p2p"}, verdict.Restrictions)
	require.Equal(t, "fraud hold", verdict.Message)
}

func TestCheckWildcardGeoFilter(t *testing.T) {
	gate := NewGate(&stubRuleStore{rules: []Rule{
		{ID: "r-de", Feature: "livestream", Country: "DE", Allowed: false, Reason: "jurisdiction"},
	}}, nil)

	verdict, err := gate.Check(context.Background(), "u1", "livestream", GeoContext{Country: "de"})
	require.NoError(t, err)
	require.False(t, verdict.Allowed, "lowercase country must still match")

	verdict, err = gate.Check(context.Background(), "u1", "livestream", GeoContext{Country: "US"})
	require.NoError(t, err)
	require.True(t, verdict.Allowed, "rule for DE must not apply to US")
}

func TestCheckWildcardRegionFilter(t *testing.T) {
	gate := NewGate(&stubRuleStore{rules: []Rule{
		{ID: "r-ca", Feature: "gambling", Country: "US", Region: "CA", Allowed: false},
	}}, nil)

	verdict, err := gate.Check(context.Background(), "u1", "gambling", GeoContext{Country: "US", Region: "CA"})
	require.NoError(t, err)
	require.False(t, verdict.Allowed)

	verdict, err = gate.Check(context.Background(), "u1", "gambling", GeoContext{Country: "US", Region: "NY"})
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
}

func TestCheckNewestMatchingWildcardWins(t *testing.T) {
	// The store contract delivers rules newest first.
	gate := NewGate(&stubRuleStore{rules: []Rule{
		{ID: "r-new", Feature: "payments", Country: "US", Allowed: true},
		{ID: "r-old", Feature: "payments", Country: "US", Allowed: false},
	}}, nil)

	verdict, err := gate.Check(context.Background(), "u1", "payments", GeoContext{Country: "US"})
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
}

func TestCheckStoreErrorSurfaces(t *testing.T) {
	gate := NewGate(&stubRuleStore{err: errors.New("connection refused")}, nil)

	_, err := gate.Check(context.Background(), "u1", "payments", GeoContext{})
	require.Error(t, err)
}

func TestBatchCheck(t *testing.T) {
	gate := NewGate(&stubRuleStore{rules: []Rule{
		{ID: "r-user", UserID: "u1", Feature: "payments", Allowed: false, Restrictions: []string{"p2p"}},
	}}, nil)

	verdicts, err := gate.BatchCheck(context.Background(), "u1", []string{"payments", "messaging"}, GeoContext{Country: "US"})
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	require.False(t, verdicts["payments"].Allowed)
	require.True(t, verdicts["messaging"].Allowed)
}

func TestNormalizeCountry(t *testing.T) {
	cases := map[string]string{
		"us":   "US",
		" GB ": "GB",
		"":     "",
		"usa":  "US",
		"zz9":  "ZZ9",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeCountry(in), "input %q", in)
	}
}
