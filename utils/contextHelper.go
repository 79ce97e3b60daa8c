package utils

import (
	"context"

	"github.com/efbdata/impact_dashboard/appctx"
)

var (
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyUploadId      = appctx.ContextKeyUploadId
)

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetUploadIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUploadId)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetUploadIdInContext(ctx context.Context, uploadId string) context.Context {
	return appctx.Set(ctx, ContextKeyUploadId, uploadId)
}
