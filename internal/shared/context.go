package shared

import "context"

type personContextKey struct{}

// ContextWithPersonID stores the authenticated person id in context.
func ContextWithPersonID(ctx context.Context, personID int64) context.Context {
	return context.WithValue(ctx, personContextKey{}, personID)
}

// PersonIDFromContext extracts the authenticated person id from context.
// The second return is false for unauthenticated requests.
func PersonIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(personContextKey{}).(int64)
	return id, ok
}
