package guard

import "context"

type decisionContextKey struct{}

func contextWithDecision(ctx context.Context, dec Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey{}, dec)
}

// DecisionFromContext returns the decision the guard middleware attached for
// an allowed request. Handlers use it to read the variant and restrictions.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	dec, ok := ctx.Value(decisionContextKey{}).(Decision)
	return dec, ok
}
