package account

import (
	"context"

	"github.com/studyolle/go-account/middleware/jwtware"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionContext stores the session claims in the given context
func WithSessionContext(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, sessionCtxKey, claims)
}

// SessionFromContext finds the session claims in the context.
func SessionFromContext(ctx context.Context) (*SessionClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(sessionCtxKey).(*SessionClaims)
	return claims, ok && claims != nil
}

// ActorFromContext returns the signed in account as an actor, or the
// system actor for anonymous requests.
func ActorFromContext(ctx context.Context) ActorRef {
	if claims, ok := SessionFromContext(ctx); ok {
		return ActorRef{ID: claims.AccountID, Type: "account"}
	}
	return ActorRef{Type: "system"}
}

// sessionContextEnricher propagates validated claims from the jwt
// middleware to the request context.
func sessionContextEnricher(ctx context.Context, claims jwtware.Claims) context.Context {
	sc, ok := claims.(*SessionClaims)
	if !ok {
		return ctx
	}
	return WithSessionContext(ctx, sc)
}
