package cancel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistry_CancelPropagatesToDescendants(t *testing.T) {
	reg := NewRegistry(context.Background())

	session := reg.New(reg.Root(), ScopeSession, "sess1")
	agent := reg.New(session, ScopeAgent, "agent1")
	tool := reg.New(agent, ScopeTool, "tool-call-1")

	if err := reg.Cancel(ScopeSession, "sess1", errors.New("user aborted")); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session token was not cancelled")
	}
	select {
	case <-agent.Done():
	case <-time.After(time.Second):
		t.Fatal("agent token should be cancelled when its session is")
	}
	select {
	case <-tool.Done():
	case <-time.After(time.Second):
		t.Fatal("tool token should be cancelled when its session is")
	}
}

func TestRegistry_CancelIsolatesSiblingsAndAncestors(t *testing.T) {
	reg := NewRegistry(context.Background())

	sessA := reg.New(reg.Root(), ScopeSession, "sessA")
	sessB := reg.New(reg.Root(), ScopeSession, "sessB")

	if err := reg.Cancel(ScopeSession, "sessA", nil); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if sessA.Err() == nil {
		t.Fatal("sessA should be cancelled")
	}
	if sessB.Err() != nil {
		t.Fatal("sessB should be unaffected by its sibling's cancellation")
	}
	if reg.Root().Err() != nil {
		t.Fatal("root should be unaffected by a descendant's cancellation")
	}
}

func TestRegistry_CancelUnknownTokenErrors(t *testing.T) {
	reg := NewRegistry(context.Background())
	if err := reg.Cancel(ScopeTool, "does-not-exist", nil); err == nil {
		t.Fatal("expected an error cancelling an unregistered token")
	}
}

func TestToken_CauseReportsCancellationReason(t *testing.T) {
	reg := NewRegistry(context.Background())
	cause := errors.New("step limit exceeded")
	agent := reg.New(reg.Root(), ScopeAgent, "agent1")

	if agent.Cause() != nil {
		t.Fatal("an uncancelled token should report a nil cause")
	}
	agent.Cancel(cause)
	if got := agent.Cause(); got != cause {
		t.Errorf("expected cause %v, got %v", cause, got)
	}
}

func TestRegistry_ReplacingTokenUnderSameIDDoesNotCancelOld(t *testing.T) {
	reg := NewRegistry(context.Background())
	first := reg.New(reg.Root(), ScopeAgent, "agent1")
	second := reg.New(reg.Root(), ScopeAgent, "agent1")

	got, ok := reg.Lookup(ScopeAgent, "agent1")
	if !ok || got != second {
		t.Fatal("lookup should return the most recently registered token")
	}
	if first.Err() != nil {
		t.Fatal("replacing a registry entry should not cancel the token it replaced")
	}
}

func TestRegistry_Forget(t *testing.T) {
	reg := NewRegistry(context.Background())
	reg.New(reg.Root(), ScopeTool, "tool1")

	reg.Forget(ScopeTool, "tool1")

	if _, ok := reg.Lookup(ScopeTool, "tool1"); ok {
		t.Fatal("forgotten token should no longer be in the registry")
	}
}

func TestToken_UsableAsContext(t *testing.T) {
	reg := NewRegistry(context.Background())
	tool := reg.New(reg.Root(), ScopeTool, "tool1")

	var ctx context.Context = tool
	if ctx.Err() != nil {
		t.Fatal("fresh token should not report an error")
	}
}
