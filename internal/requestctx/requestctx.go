package requestctx

import (
	"context"
	"time"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	requestTimeKey contextKey = "request_time"
	triggerKey     contextKey = "trigger"
)

// Trigger sources recorded for job runs.
const (
	TriggerCron = "cron"
	TriggerCLI  = "cli"
	TriggerHTTP = "http"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithRequestTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

// WithTrigger tags ctx with what started the current job run.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey, trigger)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func RequestTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// Trigger returns the trigger source, or TriggerCLI when none was set.
func Trigger(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey).(string); ok && t != "" {
		return t
	}
	return TriggerCLI
}
