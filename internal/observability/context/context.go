// Package context carries request-scoped correlation values used by logs,
// traces and the audit trail.
package context

import (
	"context"
	"strings"
)

type key int

const (
	requestIDKey key = iota
	schoolIDKey
	actorTypeKey
	actorIDKey
	ipAddressKey
	userAgentKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey)
}

// WithSchoolID records the tenant for log correlation only. Services never
// read the tenant from here; it is always passed explicitly.
func WithSchoolID(ctx context.Context, schoolID string) context.Context {
	return withString(ctx, schoolIDKey, schoolID)
}

func SchoolIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, schoolIDKey)
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = withString(ctx, actorTypeKey, actorType)
	return withString(ctx, actorIDKey, actorID)
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringFrom(ctx, actorTypeKey), stringFrom(ctx, actorIDKey)
}

func WithClient(ctx context.Context, ipAddress, userAgent string) context.Context {
	ctx = withString(ctx, ipAddressKey, ipAddress)
	return withString(ctx, userAgentKey, userAgent)
}

func ClientFromContext(ctx context.Context) (string, string) {
	return stringFrom(ctx, ipAddressKey), stringFrom(ctx, userAgentKey)
}

func withString(ctx context.Context, k key, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, k, value)
}

func stringFrom(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(k).(string)
	return value
}
