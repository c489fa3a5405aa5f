// Package replay reconstructs a session's trajectory from its durable
// message log for inspection, without ever writing to it. It generalizes
// internal/store/storage.go's directory-of-JSON Scan into a streaming
// read of one session's messages.jsonl, and reuses the folding approach
// internal/session/compact.go applies when summarizing a conversation to
// compute per-step aggregates here instead.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sageruntime/sage/internal/store"
	"github.com/sageruntime/sage/internal/tool"
	"github.com/sageruntime/sage/pkg/types"
)

// EventKind classifies one line of replayed output.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventWarning EventKind = "warning"
)

// Event is one unit of trajectory replay output: a successfully parsed
// SessionMessage, or a warning about a line that could not be parsed as one
// (a malformed or genuinely unrelated log line is skipped, not fatal).
type Event struct {
	Kind    EventKind
	Message *types.SessionMessage
	Warning string
}

// Node is a SessionMessage placed in the reconstructed tree: branches sit as
// siblings of the message their BranchParentUUID names, not nested under it.
type Node struct {
	Message  *types.SessionMessage
	Children []*Node
}

// Aggregates summarizes a replayed session: token usage and tool-call
// totals, and the wall-clock gap between consecutive messages.
type Aggregates struct {
	TotalInputTokens  int
	TotalOutputTokens int
	ToolCallCount     int
	ToolResultCount   int
	StepIntervals     []time.Duration
}

// Stream reads sessionLog's messages.jsonl in order and calls fn once per
// line. A line that fails to unmarshal into a SessionMessage produces an
// EventWarning instead of aborting the read — later, well-formed lines are
// still delivered.
func Stream(sessionLog *store.SessionLog, fn func(Event) error) error {
	return sessionLog.ReadMessages(func(line json.RawMessage) error {
		var msg types.SessionMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return fn(Event{Kind: EventWarning, Warning: fmt.Sprintf("malformed message line: %v", err)})
		}
		return fn(Event{Kind: EventMessage, Message: &msg})
	})
}

// Reconstruct streams sessionLog and builds both the full message slice (in
// log order) and a parent-UUID tree where each branch's root message is a
// sibling of the message named by its BranchParentUUID.
func Reconstruct(sessionLog *store.SessionLog) ([]*types.SessionMessage, []*Node, []string, error) {
	var messages []*types.SessionMessage
	var warnings []string

	if err := Stream(sessionLog, func(e Event) error {
		switch e.Kind {
		case EventMessage:
			messages = append(messages, e.Message)
		case EventWarning:
			warnings = append(warnings, e.Warning)
		}
		return nil
	}); err != nil {
		return nil, nil, nil, err
	}

	nodes := make(map[string]*Node, len(messages))
	for _, m := range messages {
		nodes[m.UUID] = &Node{Message: m}
	}

	var roots []*Node
	for _, m := range messages {
		n := nodes[m.UUID]
		parent := m.ParentUUID
		if m.BranchParentUUID != nil {
			// Attach beside the branch parent, under that message's own parent.
			if bp, ok := nodes[*m.BranchParentUUID]; ok {
				parent = bp.Message.ParentUUID
			}
		}
		if parent == nil {
			roots = append(roots, n)
			continue
		}
		if p, ok := nodes[*parent]; ok {
			p.Children = append(p.Children, n)
		} else {
			// Parent not present in this log (e.g. sidechain root lives in
			// another session's log) — treat as a root.
			roots = append(roots, n)
		}
	}

	return messages, roots, warnings, nil
}

// Aggregate computes token/tool-call/timing aggregates over a reconstructed
// message slice, in log order.
func Aggregate(messages []*types.SessionMessage) Aggregates {
	var agg Aggregates
	var lastTimestamp int64

	for i, m := range messages {
		if m.TokenUsage != nil {
			agg.TotalInputTokens += m.TokenUsage.Input
			agg.TotalOutputTokens += m.TokenUsage.Output
		}
		agg.ToolCallCount += len(m.ToolCalls)
		agg.ToolResultCount += len(m.ToolResults)

		if i > 0 {
			agg.StepIntervals = append(agg.StepIntervals, time.Duration(m.Timestamp-lastTimestamp)*time.Millisecond)
		}
		lastTimestamp = m.Timestamp
	}

	return agg
}

// DryRunResult is one tool call's recorded-vs-recomputed comparison.
type DryRunResult struct {
	CallID     string
	ToolName   string
	Recorded   types.ToolResult
	Recomputed *types.ToolResult
	Diverged   bool
	Skipped    string // reason a call wasn't safely replayable, if any
}

// DryRun re-executes every tool call in messages against registry using a
// pre-cancelled context, so read-only tools still run (and their results can
// be compared against what was recorded) while anything that would have a
// side effect aborts immediately and is reported as skipped rather than
// replayed. It never writes to the session log or the filesystem.
func DryRun(messages []*types.SessionMessage, registry *tool.Registry) []DryRunResult {
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	var results []DryRunResult

	for _, m := range messages {
		byCallID := make(map[string]types.ToolResult, len(m.ToolResults))
		for _, r := range m.ToolResults {
			byCallID[r.CallID] = r
		}

		for _, call := range m.ToolCalls {
			recorded, ok := byCallID[call.ID]
			if !ok {
				continue
			}

			t, found := registry.Get(call.Name)
			if !found {
				results = append(results, DryRunResult{
					CallID: call.ID, ToolName: call.Name, Recorded: recorded,
					Skipped: "tool no longer registered",
				})
				continue
			}

			input, err := json.Marshal(call.Arguments)
			if err != nil {
				results = append(results, DryRunResult{
					CallID: call.ID, ToolName: call.Name, Recorded: recorded,
					Skipped: "could not re-marshal recorded arguments",
				})
				continue
			}

			abortCh := make(chan struct{})
			close(abortCh)
			toolCtx := &tool.Context{SessionID: m.SessionID, MessageID: m.UUID, CallID: call.ID, AbortCh: abortCh}

			result, err := t.Execute(cancelledCtx, input, toolCtx)
			if err != nil {
				// A pre-cancelled context makes any tool that actually
				// checks ctx abort before doing anything; that's the
				// "not safely replayable" case for non-read-only tools.
				results = append(results, DryRunResult{
					CallID: call.ID, ToolName: call.Name, Recorded: recorded,
					Skipped: "not safely replayable without side effects: " + err.Error(),
				})
				continue
			}

			recomputed := types.ToolResult{
				CallID:   call.ID,
				ToolName: call.Name,
				Success:  true,
				Output:   &result.Output,
			}

			diverged := recorded.Output == nil || *recorded.Output != result.Output
			results = append(results, DryRunResult{
				CallID: call.ID, ToolName: call.Name,
				Recorded: recorded, Recomputed: &recomputed, Diverged: diverged,
			})
		}
	}

	return results
}
