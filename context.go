package credvault

import "context"

type callerContextKey struct{}
type adminSecretContextKey struct{}

// WithCaller attaches a caller identifier (typically the client IP) to
// ctx. The Engine uses it as the rate-limiting key; requests without a
// caller share one anonymous budget.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// WithAdminSecret attaches an administrative secret to ctx. Requests
// presenting the configured admin secret bypass rate limiting.
func WithAdminSecret(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, adminSecretContextKey{}, secret)
}

func callerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	caller, _ := ctx.Value(callerContextKey{}).(string)
	return caller
}

func adminSecretFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	secret, _ := ctx.Value(adminSecretContextKey{}).(string)
	return secret
}
