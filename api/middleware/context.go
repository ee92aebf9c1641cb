package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
)

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

// UserIDFromContext returns the caller id seeded by Auth, or "".
func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, userIDKey) }

// RoleFromContext returns the caller role seeded by Auth, or "".
func RoleFromContext(ctx context.Context) string { return stringValue(ctx, roleKey) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, roleKey, role)
}

// CurrentUserID parses the caller id. Handlers behind Auth treat a failure
// as unauthenticated.
func CurrentUserID(ctx context.Context) (uuid.UUID, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	return id, nil
}
