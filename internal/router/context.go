package router

import "context"

type paramsKey struct{}

// WithParams stores extracted path parameters in the context.
func WithParams(ctx context.Context, params map[string]string) context.Context {
	return context.WithValue(ctx, paramsKey{}, params)
}

// ParamsFromContext returns path parameters stored by WithParams, or nil.
func ParamsFromContext(ctx context.Context) map[string]string {
	params, _ := ctx.Value(paramsKey{}).(map[string]string)
	return params
}
