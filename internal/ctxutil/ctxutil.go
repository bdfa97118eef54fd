// Package ctxutil provides shared context key accessors.
//
// Both server and mcp read the caller identity that the HTTP boundary
// resolved from the request; they import ctxutil instead of each other.
package ctxutil

import (
	"context"
	"net/http"
	"strings"

	"github.com/hupe1980/agentcore/core"
)

// HeaderCaller carries the caller principal in its text form. It is set by
// the trusted gateway in front of the service.
const HeaderCaller = "IC-TEE-Caller"

type contextKey string

const keyCaller contextKey = "caller"

// WithCaller returns a new context carrying caller.
func WithCaller(ctx context.Context, caller core.Principal) context.Context {
	return context.WithValue(ctx, keyCaller, caller)
}

// CallerFromContext returns the caller stored in ctx, or the anonymous
// principal.
func CallerFromContext(ctx context.Context) core.Principal {
	if v, ok := ctx.Value(keyCaller).(core.Principal); ok {
		return v
	}
	return core.AnonymousPrincipal
}

// CallerFromRequest parses the caller header. A missing or malformed header
// yields the anonymous principal.
func CallerFromRequest(r *http.Request) core.Principal {
	text := strings.TrimSpace(r.Header.Get(HeaderCaller))
	if text == "" {
		return core.AnonymousPrincipal
	}

	p, err := core.ParsePrincipal(text)
	if err != nil {
		return core.AnonymousPrincipal
	}

	return p
}
