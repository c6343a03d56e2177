package vectorstore

import (
	"context"
	"errors"
	"strings"
)

// Tenant isolation errors. All of them fail closed.
var (
	// ErrMissingTenant is returned when no user is present in the context.
	ErrMissingTenant = errors.New("user missing from context")

	// ErrInvalidTenant is returned when the user identifier is blank or too long.
	ErrInvalidTenant = errors.New("invalid user identifier")

	// ErrTenantMismatch is returned when a record names a different user
	// than the context.
	ErrTenantMismatch = errors.New("record belongs to a different user")
)

const maxUserIDLen = 256

type userContextKey struct{}

// ContextWithUser scopes ctx to userID for every Index operation.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext returns the scoped user, or ErrMissingTenant.
func UserFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userContextKey{}).(string)
	if !ok {
		return "", ErrMissingTenant
	}
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	return userID, nil
}

// ValidateUserID checks a user identifier is usable as a filter value.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" || len(userID) > maxUserIDLen {
		return ErrInvalidTenant
	}
	return nil
}
