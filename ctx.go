package users

import "context"

var sessionCtxKey = &contextKey{"session"}
var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
	IP   string
}

// WithActor stores the request actor so audit events can carry it
func WithActor(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext returns the stored actor or an anonymous one
func ActorFromContext(ctx context.Context) ActorRef {
	if ctx != nil {
		if actor, ok := ctx.Value(actorCtxKey).(ActorRef); ok {
			return actor
		}
	}
	return ActorRef{Type: "anonymous"}
}

// WithSession sets the SessionContext in the given context
func WithSession(ctx context.Context, session SessionContext) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext returns the stored session or Anonymous
func SessionFromContext(ctx context.Context) SessionContext {
	if ctx != nil {
		if s, ok := ctx.Value(sessionCtxKey).(SessionContext); ok && s != nil {
			return s
		}
	}
	return Anonymous
}
