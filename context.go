package widgetAuth

import "context"

type authResultContextKey struct{}

// WithAuthResult attaches a verified [AuthResult] to ctx. The middleware
// package sets it after a successful [Engine.Verify].
func WithAuthResult(ctx context.Context, res *AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// AuthResultFromContext returns the [AuthResult] attached by
// [WithAuthResult], if any.
func AuthResultFromContext(ctx context.Context) (*AuthResult, bool) {
	if ctx == nil {
		return nil, false
	}
	res, ok := ctx.Value(authResultContextKey{}).(*AuthResult)
	return res, ok && res != nil
}
