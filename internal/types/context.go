package types

import (
	"context"
	"strings"
)

type sessionTokenKey struct{}

// WithSessionToken attaches a token that providers prefer over stored
// credentials for the lifetime of ctx.
func WithSessionToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

func SessionTokenFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(sessionTokenKey{}).(string)
	return token
}
