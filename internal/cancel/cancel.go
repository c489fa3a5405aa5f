// Package cancel implements the four-level cancellation hierarchy that the
// engine, sandbox, and tool registry all cancel through: Root -> Session ->
// Agent -> Tool. Cancelling a node propagates down to every descendant;
// cancelling a descendant never reaches back up.
package cancel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scope identifies a node's place in the hierarchy.
type Scope int

const (
	ScopeRoot Scope = iota
	ScopeSession
	ScopeAgent
	ScopeTool
)

func (s Scope) String() string {
	switch s {
	case ScopeRoot:
		return "root"
	case ScopeSession:
		return "session"
	case ScopeAgent:
		return "agent"
	case ScopeTool:
		return "tool"
	default:
		return "unknown"
	}
}

// Token is one node in the cancellation tree. It embeds a context.Context so
// it can be passed directly to anything that accepts one (exec.CommandContext,
// an LLM provider call, a tool's Execute).
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	scope  Scope
	id     string
	parent *Token
}

// Deadline, Done, Err, Value implement context.Context by delegating to the
// underlying context; Token is itself a valid context.Context.
func (t *Token) Deadline() (deadline time.Time, ok bool) { return t.ctx.Deadline() }
func (t *Token) Done() <-chan struct{}                   { return t.ctx.Done() }
func (t *Token) Err() error                              { return t.ctx.Err() }
func (t *Token) Value(key any) any                       { return t.ctx.Value(key) }

// Scope returns which level of the hierarchy this token occupies.
func (t *Token) Scope() Scope { return t.scope }

// ID returns the scope-unique identifier this token was registered under
// (session ID, agent step ID, or tool-call ID).
func (t *Token) ID() string { return t.id }

// Parent returns the token that created this one, or nil for the root.
func (t *Token) Parent() *Token { return t.parent }

// Cancel cancels this token and every descendant derived from it. Ancestors
// and siblings are unaffected.
func (t *Token) Cancel(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	t.cancel(cause)
}

// Cause returns why the token was cancelled, or nil if it hasn't been.
func (t *Token) Cause() error {
	if t.ctx.Err() == nil {
		return nil
	}
	return context.Cause(t.ctx)
}

// Registry is a flat, scope-keyed lookup table for every live token, used so
// that e.g. a session-abort request issued from outside the call stack that
// created the session can find and cancel it without any component owning a
// reference back up the tree (which would make the hierarchy cyclic).
type Registry struct {
	mu     sync.Mutex
	tokens map[Scope]map[string]*Token
	root   *Token
}

// NewRegistry creates a registry with a single root token derived from ctx.
func NewRegistry(ctx context.Context) *Registry {
	rootCtx, cancel := context.WithCancelCause(ctx)
	root := &Token{ctx: rootCtx, cancel: cancel, scope: ScopeRoot, id: "root"}
	r := &Registry{
		tokens: map[Scope]map[string]*Token{
			ScopeRoot:    {"root": root},
			ScopeSession: {},
			ScopeAgent:   {},
			ScopeTool:    {},
		},
		root: root,
	}
	return r
}

// Root returns the registry's root token.
func (r *Registry) Root() *Token { return r.root }

// New derives a new token of the given scope from parent and registers it
// under id. Registering a second token under the same (scope, id) pair
// replaces the first in the lookup table (the old token is left running
// until its own context is separately cancelled or its parent is).
func (r *Registry) New(parent *Token, scope Scope, id string) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	t := &Token{ctx: ctx, cancel: cancel, scope: scope, id: id, parent: parent}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[scope][id] = t
	return t
}

// Lookup finds a previously registered token by scope and id.
func (r *Registry) Lookup(scope Scope, id string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[scope][id]
	return t, ok
}

// Cancel looks up the token at (scope, id) and cancels it along with every
// descendant. Returns an error if no such token is registered.
func (r *Registry) Cancel(scope Scope, id string, cause error) error {
	t, ok := r.Lookup(scope, id)
	if !ok {
		return fmt.Errorf("cancel: no %s token registered for %q", scope, id)
	}
	t.Cancel(cause)
	return nil
}

// Forget removes a token from the registry once its work is done, so the
// table doesn't grow unbounded across a long-lived process. It does not
// cancel the token — callers that still hold a reference to it may keep
// using it until its own Done() channel closes.
func (r *Registry) Forget(scope Scope, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens[scope], id)
}
