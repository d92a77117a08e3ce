package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// Principal is the caller identified by a bearer token.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// WithPrincipal stores p on ctx, replacing any earlier identity.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}

// PrincipalFromContext reports false for anonymous requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}

// UserIDFromContext is "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// WithUserID sets the caller while keeping any role already present. An
// unparsable id leaves the request anonymous.
func WithUserID(ctx context.Context, userID string) context.Context {
	id, err := uuid.Parse(userID)
	if err != nil {
		id = uuid.Nil
	}
	p, _ := ctx.Value(ctxPrincipal).(Principal)
	p.UserID = id
	return WithPrincipal(ctx, p)
}

func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	p, _ := ctx.Value(ctxPrincipal).(Principal)
	p.Role = role
	return WithPrincipal(ctx, p)
}
