package auth

import "context"

// SetAnalystIDForTest injects an analyst ID into the context for testing purposes.
func SetAnalystIDForTest(ctx context.Context, analystID string) context.Context {
	return context.WithValue(ctx, analystIDKey, analystID)
}
