package session

import "context"

type ctxKey string

const ctxKeySession ctxKey = "session"

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// FromContext returns the session attached by WithSession. Calling it on a context
// without a session is a programming error and panics.
func FromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(ctxKeySession).(*Session)
	if !ok || s == nil {
		panic("session: FromContext called without WithSession")
	}
	return s
}
