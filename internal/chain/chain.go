// Package chain tracks the parent/branch structure of a session's message
// history. It owns exactly one thing per session: the UUID of the last
// message written. Every other field on a SessionMessage (content, tool
// calls, token usage) is the caller's to fill in; the tracker's only job is
// assigning UUID, ParentUUID, and — when the write cursor has been rewound —
// BranchID/BranchParentUUID.
//
// This mirrors how internal/session/loop.go threads one assistant message's
// ID as the next message's ParentID, generalized so any message (user,
// assistant, tool-result, error, system) can sit in the chain and so a
// session can fork instead of only ever appending.
package chain

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sageruntime/sage/pkg/types"
)

// cursor is the per-session write head: the UUID a newly created message
// should name as its parent, plus sidechain provenance if this session is a
// subagent's own root rather than the main conversation.
type cursor struct {
	lastUUID string

	// pendingBranchFrom is non-empty immediately after SetLastUUID rewinds
	// the cursor; it is consumed (and cleared) by the next message created.
	pendingBranchFrom string

	isSidechain     bool
	parentSessionID string
	rootMessageID   string
}

// Tracker assigns chain identity to new messages across many concurrent
// sessions. The zero value is not usable; construct with NewTracker.
type Tracker struct {
	mu      sync.Mutex
	cursors map[string]*cursor
}

// NewTracker returns an empty message-chain tracker.
func NewTracker() *Tracker {
	return &Tracker{cursors: make(map[string]*cursor)}
}

func (t *Tracker) cursorFor(sessionID string) *cursor {
	c, ok := t.cursors[sessionID]
	if !ok {
		c = &cursor{}
		t.cursors[sessionID] = c
	}
	return c
}

// SeedSidechain marks sessionID as a subagent sidechain rooted at
// rootMessageID in parentSessionID. Every message subsequently created in
// sessionID carries IsSidechain=true. Call this once, before the first
// message of the subagent's own chain is created.
func (t *Tracker) SeedSidechain(sessionID, parentSessionID, rootMessageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.cursorFor(sessionID)
	c.isSidechain = true
	c.parentSessionID = parentSessionID
	c.rootMessageID = rootMessageID
}

// SetLastUUID rewinds sessionID's write cursor to uuid, as happens when a
// user edits an earlier message or resumes from a prior checkpoint. The
// next message created after this call gets a fresh BranchID and a
// BranchParentUUID equal to what the cursor pointed at before the rewind —
// i.e. the message that would have come next along the original chain.
// Past messages are never mutated; only the cursor moves.
func (t *Tracker) SetLastUUID(sessionID, uuid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.cursorFor(sessionID)
	if c.lastUUID == uuid {
		return
	}
	c.pendingBranchFrom = c.lastUUID
	c.lastUUID = uuid
}

func (t *Tracker) newMessage(sessionID, role, content string) *types.SessionMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.cursorFor(sessionID)

	msg := &types.SessionMessage{
		UUID:        ulid.Make().String(),
		Timestamp:   time.Now().UnixMilli(),
		SessionID:   sessionID,
		Role:        role,
		Content:     content,
		IsSidechain: c.isSidechain,
	}

	if c.lastUUID != "" {
		parent := c.lastUUID
		msg.ParentUUID = &parent
	}

	if c.pendingBranchFrom != "" {
		branchID := ulid.Make().String()
		msg.BranchID = &branchID
		branchParent := c.pendingBranchFrom
		msg.BranchParentUUID = &branchParent
		c.pendingBranchFrom = ""
	}

	c.lastUUID = msg.UUID
	return msg
}

// CreateUserMessage appends a new user message to sessionID's chain.
func (t *Tracker) CreateUserMessage(sessionID, content string) *types.SessionMessage {
	return t.newMessage(sessionID, "user", content)
}

// CreateAssistantMessage appends a new assistant message to sessionID's
// chain. Callers attach tool calls/results and token usage after creation.
func (t *Tracker) CreateAssistantMessage(sessionID, content string) *types.SessionMessage {
	return t.newMessage(sessionID, "assistant", content)
}

// CreateSystemMessage records an out-of-band system note in the chain —
// used for misbehavior (wrong call_id, duplicate tool-call id) and snapshot
// failures that must not silently vanish from the transcript.
func (t *Tracker) CreateSystemMessage(sessionID, content string) *types.SessionMessage {
	return t.newMessage(sessionID, "system", content)
}

// LastUUID returns the current write-cursor position for sessionID, or ""
// if no message has been created yet.
func (t *Tracker) LastUUID(sessionID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursorFor(sessionID).lastUUID
}

// Forget drops a session's cursor, e.g. once it's been deleted.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, sessionID)
}
