package obs

import "context"

type patternKey struct{}

// WithRoutePattern records the chi pattern that matched the request.
// Metrics and request logs label by pattern, not raw path, so label
// cardinality stays bounded to declared routes.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, patternKey{}, pattern)
}

// RoutePatternFromContext returns the recorded pattern, or "" when the
// request never matched a declared route.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	pattern, _ := ctx.Value(patternKey{}).(string)
	return pattern
}
