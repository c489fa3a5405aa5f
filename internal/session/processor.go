package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sageruntime/sage/internal/cancel"
	"github.com/sageruntime/sage/internal/chain"
	"github.com/sageruntime/sage/internal/provider"
	"github.com/sageruntime/sage/internal/sandbox"
	"github.com/sageruntime/sage/internal/snapshot"
	"github.com/sageruntime/sage/internal/store"
	"github.com/sageruntime/sage/internal/tool"
	"github.com/sageruntime/sage/pkg/types"
)

// Processor handles message processing and the agentic loop.
type Processor struct {
	mu sync.Mutex

	providerRegistry  *provider.Registry
	toolRegistry      *tool.Registry
	storage           *store.Storage
	permissionChecker *sandbox.Checker

	// cancelRegistry holds the root of the Root -> Session -> Agent -> Tool
	// cancellation tree; Process derives a session token from it and
	// executeSingleTool derives a tool token beneath that.
	cancelRegistry *cancel.Registry

	// chainTracker assigns uuid/parent-uuid/branch bookkeeping to every
	// message this processor creates.
	chainTracker *chain.Tracker

	// snapshotTracker records file state before a write-capable tool runs
	// and classifies it once a turn's tool calls finish.
	snapshotTracker *snapshot.Tracker

	// Default provider and model to use when not specified
	defaultProviderID string
	defaultModelID    string

	// Active sessions being processed
	sessions map[string]*sessionState
}

// sessionState tracks the state of an active session being processed.
type sessionState struct {
	ctx     context.Context
	token   *cancel.Token // session-scoped cancellation node
	agent   *cancel.Token // agent-scoped cancellation node, child of token
	message *types.Message
	parts   []types.Part
	waiters []chan error
	step    int
	retries int
}

// ProcessCallback is called with message updates during processing.
type ProcessCallback func(msg *types.Message, parts []types.Part)

// NewProcessor creates a new session processor.
func NewProcessor(
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	store *store.Storage,
	permChecker *sandbox.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Processor {
	// Use reasonable defaults if not specified
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
	}
	if defaultModelID == "" {
		defaultModelID = "claude-sonnet-4-20250514"
	}
	p := &Processor{
		providerRegistry:  providerReg,
		toolRegistry:      toolReg,
		storage:           store,
		permissionChecker: permChecker,
		cancelRegistry:    cancel.NewRegistry(context.Background()),
		chainTracker:      chain.NewTracker(),
		defaultProviderID: defaultProviderID,
		defaultModelID:    defaultModelID,
		sessions:          make(map[string]*sessionState),
	}
	p.snapshotTracker = snapshot.NewTracker(p.sessionLog)
	return p
}

// Chain returns the message-chain tracker this processor assigns uuids
// through, so callers outside the agentic loop (the service layer saving a
// user message, a subagent seeding a sidechain) can link into the same chain.
func (p *Processor) Chain() *chain.Tracker { return p.chainTracker }

// Cancel returns the cancellation registry backing this processor's session
// and tool tokens, so a caller outside the loop can cancel by scope/id alone.
func (p *Processor) Cancel() *cancel.Registry { return p.cancelRegistry }

// sessionLog opens (or reopens) the durable message/snapshot log for a
// session, resolving its working directory from the stored session document.
func (p *Processor) sessionLog(sessionID string) (*store.SessionLog, error) {
	sess, err := p.findSession(context.Background(), sessionID)
	if err != nil {
		return nil, err
	}
	return store.OpenSessionLog(p.storage.BasePath(), sess.Directory, sessionID)
}

// Process handles a new user message and generates an assistant response.
// This is the main entry point for the agentic loop.
func (p *Processor) Process(ctx context.Context, sessionID string, agent *Agent, callback ProcessCallback) error {
	p.mu.Lock()

	// Check if session is already processing
	if state, ok := p.sessions[sessionID]; ok {
		// Queue this request
		waiter := make(chan error, 1)
		state.waiters = append(state.waiters, waiter)
		p.mu.Unlock()

		// Wait for current processing to complete
		select {
		case err := <-waiter:
			if err != nil {
				return err
			}
			// Retry processing
			return p.Process(ctx, sessionID, agent, callback)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Create new session state, deriving a session-scoped cancellation token
	// from the registry root rather than a plain context.WithCancel so an
	// Abort issued from outside this call stack (e.g. an HTTP handler with
	// no reference to loopCtx) can still reach it by session ID.
	token := p.cancelRegistry.New(p.cancelRegistry.Root(), cancel.ScopeSession, sessionID)
	go func() {
		select {
		case <-ctx.Done():
			token.Cancel(context.Cause(ctx))
		case <-token.Done():
		}
	}()

	// One agent-scoped token per turn, derived from the session token so an
	// abort of the session also tears down whichever tool tokens hang off
	// this agent without the engine having to cancel each one by hand.
	agentToken := p.cancelRegistry.New(token, cancel.ScopeAgent, sessionID)

	state := &sessionState{
		ctx:   token,
		token: token,
		agent: agentToken,
	}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	// Ensure cleanup
	defer func() {
		p.mu.Lock()
		delete(p.sessions, sessionID)
		p.cancelRegistry.Forget(cancel.ScopeSession, sessionID)
		p.cancelRegistry.Forget(cancel.ScopeAgent, sessionID)

		// Notify waiters
		for _, waiter := range state.waiters {
			waiter <- nil
		}
		p.mu.Unlock()
	}()

	// Run the agentic loop
	return p.runLoop(agentToken, sessionID, state, agent, callback)
}

// Abort cancels processing for a session by cancelling its session-scoped
// token, which propagates to the agent and tool tokens derived from it.
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.sessions[sessionID]; !ok {
		return fmt.Errorf("session not processing: %s", sessionID)
	}

	return p.cancelRegistry.Cancel(cancel.ScopeSession, sessionID, fmt.Errorf("session aborted"))
}

// IsProcessing returns whether a session is currently processing.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// GetActiveState returns the current state for a processing session.
func (p *Processor) GetActiveState(sessionID string) (*types.Message, []types.Part, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}

	return state.message, state.parts, true
}
