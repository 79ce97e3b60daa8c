package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// It lives in its own package so config, store and the HTTP layer can share it.
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyUsername      = ContextKey("Username")
	ContextKeyCorrelationId = ContextKey("CorrelationId")
	// ContextKeyUploadId tags work done on behalf of one upload job.
	ContextKeyUploadId = ContextKey("UploadId")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
