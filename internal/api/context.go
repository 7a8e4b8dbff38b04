package api

import "context"

type contextKey string

const actorContextKey contextKey = "actor"

// withActor records who authenticated the request.
func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func actorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorContextKey).(string); ok {
		return v
	}
	return ""
}
