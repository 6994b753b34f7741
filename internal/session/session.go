// Package session carries the authenticated caller's identity as an explicit
// value instead of ambient global storage, so components stay testable
// without mocking a token store.
package session

import "context"

type Session struct {
	UserID          string
	EstablishmentID string
	Roles           []string
}

func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
