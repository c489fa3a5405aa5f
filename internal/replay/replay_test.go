package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sageruntime/sage/internal/store"
	"github.com/sageruntime/sage/internal/tool"
	"github.com/sageruntime/sage/pkg/types"
)

func ptr(s string) *string { return &s }

// openTestLog returns a SessionLog plus the on-disk directory it writes
// messages.jsonl under, so a test can append a raw corrupt line alongside
// AppendMessage calls.
func openTestLog(t *testing.T) (*store.SessionLog, string) {
	t.Helper()
	tmpDir := t.TempDir()
	log, err := store.OpenSessionLog(tmpDir, "/home/user/project", "sess1")
	if err != nil {
		t.Fatalf("OpenSessionLog failed: %v", err)
	}
	sessionDir := filepath.Join(tmpDir, "projects", "home-user-project", "sess1")
	return log, sessionDir
}

func appendMsg(t *testing.T, log *store.SessionLog, msg *types.SessionMessage) {
	t.Helper()
	if err := log.AppendMessage(msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
}

func TestStream_EmitsMessagesInOrder(t *testing.T) {
	log, _ := openTestLog(t)
	appendMsg(t, log, &types.SessionMessage{UUID: "u1", Role: "user", Content: "hi", Timestamp: 1})
	appendMsg(t, log, &types.SessionMessage{UUID: "u2", Role: "assistant", Content: "hello", ParentUUID: ptr("u1"), Timestamp: 2})

	var uuids []string
	err := Stream(log, func(ev Event) error {
		if ev.Kind != EventMessage {
			t.Fatalf("unexpected event kind: %v (warning: %s)", ev.Kind, ev.Warning)
		}
		uuids = append(uuids, ev.Message.UUID)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(uuids) != 2 || uuids[0] != "u1" || uuids[1] != "u2" {
		t.Fatalf("unexpected stream order: %v", uuids)
	}
}

func TestStream_WarnsOnCorruptLineWithoutAborting(t *testing.T) {
	log, sessionDir := openTestLog(t)
	appendMsg(t, log, &types.SessionMessage{UUID: "u1", Role: "user", Content: "hi", Timestamp: 1})

	f, err := os.OpenFile(filepath.Join(sessionDir, "messages.jsonl"), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open messages.jsonl: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("write corrupt line: %v", err)
	}
	f.Close()

	appendMsg(t, log, &types.SessionMessage{UUID: "u2", Role: "assistant", Content: "hello", ParentUUID: ptr("u1"), Timestamp: 3})

	var messages, warnings int
	err = Stream(log, func(ev Event) error {
		switch ev.Kind {
		case EventMessage:
			messages++
		case EventWarning:
			warnings++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if messages != 2 {
		t.Errorf("expected 2 messages around the corrupt line, got %d", messages)
	}
	if warnings != 1 {
		t.Errorf("expected 1 warning for the corrupt line, got %d", warnings)
	}
}

func TestReconstruct_BuildsParentChildTree(t *testing.T) {
	log, _ := openTestLog(t)
	appendMsg(t, log, &types.SessionMessage{UUID: "u1", Role: "user", Content: "hi"})
	appendMsg(t, log, &types.SessionMessage{UUID: "u2", Role: "assistant", Content: "hello", ParentUUID: ptr("u1")})
	appendMsg(t, log, &types.SessionMessage{UUID: "u3", Role: "user", Content: "thanks", ParentUUID: ptr("u2")})

	messages, roots, warnings, err := Reconstruct(log)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if len(roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(roots))
	}
	root := roots[0]
	if root.Message.UUID != "u1" {
		t.Fatalf("expected root u1, got %s", root.Message.UUID)
	}
	if len(root.Children) != 1 || root.Children[0].Message.UUID != "u2" {
		t.Fatalf("expected u1's only child to be u2, got %+v", root.Children)
	}
	if len(root.Children[0].Children) != 1 || root.Children[0].Children[0].Message.UUID != "u3" {
		t.Fatalf("expected u2's only child to be u3")
	}
}

func TestReconstruct_BranchParentTakesPrecedence(t *testing.T) {
	log, _ := openTestLog(t)
	appendMsg(t, log, &types.SessionMessage{UUID: "u1", Role: "user"})
	appendMsg(t, log, &types.SessionMessage{UUID: "u2", Role: "assistant", ParentUUID: ptr("u1")})
	appendMsg(t, log, &types.SessionMessage{
		UUID:             "u3",
		Role:             "user",
		ParentUUID:       ptr("u1"),
		BranchID:         ptr("b1"),
		BranchParentUUID: ptr("u2"),
	})

	_, roots, _, err := Reconstruct(log)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(roots))
	}
	root := roots[0]
	if len(root.Children) != 2 {
		t.Fatalf("expected u1 to have two children (u2, and branched u3), got %d", len(root.Children))
	}
}

func TestReconstruct_OrphanBecomesItsOwnRoot(t *testing.T) {
	log, _ := openTestLog(t)
	// u1's parent "missing" never appears in this log, e.g. a sidechain
	// whose root lives in the parent session's own log.
	appendMsg(t, log, &types.SessionMessage{UUID: "u1", Role: "user", ParentUUID: ptr("missing")})

	_, roots, _, err := Reconstruct(log)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if len(roots) != 1 || roots[0].Message.UUID != "u1" {
		t.Fatalf("expected orphaned u1 to surface as its own root, got %+v", roots)
	}
}

func TestAggregate_SumsTokensAndCounts(t *testing.T) {
	messages := []*types.SessionMessage{
		{
			UUID:      "u1",
			Timestamp: 1000,
			ToolCalls: []types.ToolCall{{ID: "c1", Name: "read"}},
		},
		{
			UUID:        "u2",
			Timestamp:   1500,
			ToolResults: []types.ToolResult{{CallID: "c1", ToolName: "read", Success: true}},
			TokenUsage:  &types.TokenUsage{Input: 100, Output: 50},
		},
	}

	agg := Aggregate(messages)
	if agg.TotalInputTokens != 100 || agg.TotalOutputTokens != 50 {
		t.Errorf("unexpected token totals: %+v", agg)
	}
	if agg.ToolCallCount != 1 || agg.ToolResultCount != 1 {
		t.Errorf("unexpected tool counts: %+v", agg)
	}
	if len(agg.StepIntervals) != 1 || agg.StepIntervals[0] != 500*time.Millisecond {
		t.Errorf("unexpected step intervals: %+v", agg.StepIntervals)
	}
}

func TestDryRun_SkipsUnregisteredTool(t *testing.T) {
	registry := tool.NewRegistry(t.TempDir(), nil)

	messages := []*types.SessionMessage{
		{
			UUID:      "u1",
			ToolCalls: []types.ToolCall{{ID: "c1", Name: "nonexistent", Arguments: map[string]any{}}},
			ToolResults: []types.ToolResult{
				{CallID: "c1", ToolName: "nonexistent", Success: true, Output: ptr("stale output")},
			},
		},
	}

	results := DryRun(messages, registry)
	if len(results) != 1 {
		t.Fatalf("expected 1 dry-run result, got %d", len(results))
	}
	if results[0].Skipped == "" {
		t.Errorf("expected an unregistered tool call to be skipped, got %+v", results[0])
	}
}

func TestDryRun_RecomputesReadOnlyTool(t *testing.T) {
	workDir := t.TempDir()
	filePath := filepath.Join(workDir, "hello.txt")
	if err := os.WriteFile(filePath, []byte("hello world\n"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	registry := tool.NewRegistry(workDir, nil)
	registry.Register(tool.NewReadTool(workDir))

	messages := []*types.SessionMessage{
		{
			UUID: "u1",
			ToolCalls: []types.ToolCall{
				{ID: "c1", Name: "read", Arguments: map[string]any{"filePath": filePath}},
			},
			ToolResults: []types.ToolResult{
				{CallID: "c1", ToolName: "read", Success: true, Output: ptr("hello world\n")},
			},
		},
	}

	results := DryRun(messages, registry)
	if len(results) != 1 {
		t.Fatalf("expected 1 dry-run result, got %d", len(results))
	}
	r := results[0]
	if r.Skipped != "" {
		t.Fatalf("expected read to be replayable, got skipped: %s", r.Skipped)
	}
	if r.Recomputed == nil {
		t.Fatalf("expected a recomputed result")
	}
}
