package wsrouter

import "context"

type ctxKey string

const (
	eventTypeKey ctxKey = "event_type"
)

func withEventType(ctx context.Context, event string) context.Context {
	return context.WithValue(ctx, eventTypeKey, event)
}

func GetEventTypeFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(eventTypeKey).(string); ok {
		return v
	}

	return ""
}
