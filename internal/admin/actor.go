package admin

import (
	"context"

	"voip-platform/internal/audit"
	"voip-platform/internal/auth"
)

type clientIPKey struct{}

// WithClientIP attaches the resolved client IP for audit capture. HTTP
// middleware sets it from gin's ClientIP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	s, _ := ctx.Value(clientIPKey{}).(string)
	return s
}

// ActorFromContext builds the audit actor from the authenticated identity.
func ActorFromContext(ctx context.Context) (audit.Actor, error) {
	id, err := auth.UserID(ctx)
	if err != nil {
		return audit.Actor{}, err
	}
	role, _ := auth.Role(ctx)
	return audit.Actor{ID: id, Role: role, IP: ClientIPFromContext(ctx)}, nil
}
