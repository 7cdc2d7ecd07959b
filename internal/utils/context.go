package utils

import "context"

type ctxKey string

const requestIDKey ctxKey = "reqid"

// RequestID returns the id stored by ContextWithRequestID, or "" outside a
// request.
func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

func ContextWithRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, requestIDKey, reqID)
}
