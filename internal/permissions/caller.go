package permissions

import (
	"context"
	"sort"
)

// Set is an immutable collection of granted tokens.
type Set map[Token]struct{}

// NewSet builds a set from tokens.
func NewSet(tokens ...Token) Set {
	set := make(Set, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// Has reports whether the token is present.
func (s Set) Has(token Token) bool {
	_, ok := s[token]
	return ok
}

// Sorted returns the tokens in lexical order.
func (s Set) Sorted() []Token {
	out := make([]Token, 0, len(s))
	for token := range s {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CallerContext is the authenticated caller as seen by the control plane.
type CallerContext struct {
	UserID         string
	OrganizationID string
	Permissions    Set
}

// Anonymous returns a caller with no identity and no grants.
func Anonymous() CallerContext {
	return CallerContext{Permissions: Set{}}
}

// Can reports whether the caller holds the token.
func (c CallerContext) Can(token Token) bool {
	return c.Permissions.Has(token)
}

// IsSelf reports whether the caller is the given subject.
func (c CallerContext) IsSelf(subjectID string) bool {
	return c.UserID != "" && c.UserID == subjectID
}

// Authenticated reports whether a user identity is attached.
func (c CallerContext) Authenticated() bool {
	return c.UserID != ""
}

type callerKey struct{}

// WithCaller stores the caller on the context.
func WithCaller(ctx context.Context, caller CallerContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// FromContext extracts the caller, falling back to an anonymous caller.
func FromContext(ctx context.Context) CallerContext {
	if ctx == nil {
		return Anonymous()
	}
	if caller, ok := ctx.Value(callerKey{}).(CallerContext); ok {
		return caller
	}
	return Anonymous()
}
