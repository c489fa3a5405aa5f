package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/sageruntime/sage/internal/background"
)

const backgroundDescription = `Manages long-running shell commands that outlive a single tool call.

Actions:
- spawn: starts a command in the background and returns a shell_id
- status: reports whether a shell_id is still running and its exit code
- output: returns captured stdout/stderr, optionally only what's new since the last call
- remove: terminates a running task (or forgets a finished one)`

// BackgroundTool exposes the background task registry (spawn/status/
// output/remove) as an LLM-callable tool, the same way BashTool exposes a
// single synchronous command. Its spawn path reuses BashTool's shell
// detection so "Bash" and "Background" agree on what shell runs a command.
type BackgroundTool struct {
	workDir  string
	shell    string
	registry *background.Registry
}

// BackgroundInput is the input for the background tool.
type BackgroundInput struct {
	Action      string `json:"action"`
	Command     string `json:"command,omitempty"`
	ShellID     string `json:"shellID,omitempty"`
	Incremental bool   `json:"incremental,omitempty"`
}

// NewBackgroundTool creates a new background tool backed by registry.
func NewBackgroundTool(workDir string, registry *background.Registry) *BackgroundTool {
	return &BackgroundTool{
		workDir:  workDir,
		shell:    detectShell(),
		registry: registry,
	}
}

func (t *BackgroundTool) ID() string          { return "Background" }
func (t *BackgroundTool) Description() string { return backgroundDescription }

func (t *BackgroundTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["spawn", "status", "output", "remove"],
				"description": "Which background-task operation to perform"
			},
			"command": {
				"type": "string",
				"description": "The shell command to spawn (required for action=spawn)"
			},
			"shellID": {
				"type": "string",
				"description": "The task to operate on (required for status/output/remove)"
			},
			"incremental": {
				"type": "boolean",
				"description": "For action=output, return only bytes written since this caller last read"
			}
		},
		"required": ["action"]
	}`)
}

func (t *BackgroundTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BackgroundInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}

	switch params.Action {
	case "spawn":
		if params.Command == "" {
			return nil, fmt.Errorf("command is required for action=spawn")
		}
		task, err := t.registry.Spawn(ctx, t.shell, workDir, params.Command)
		if err != nil {
			return nil, fmt.Errorf("spawn: %w", err)
		}
		return &Result{
			Title:  fmt.Sprintf("Spawned %s", task.ShellID),
			Output: fmt.Sprintf("shell_id: %s", task.ShellID),
			Metadata: map[string]any{
				"shellID": task.ShellID,
				"command": params.Command,
			},
		}, nil

	case "status":
		task, ok := t.registry.Get(params.ShellID)
		if !ok {
			return nil, fmt.Errorf("no such background task: %s", params.ShellID)
		}
		status, exitCode := task.Status()
		return &Result{
			Title:  fmt.Sprintf("Status of %s", params.ShellID),
			Output: fmt.Sprintf("status: %s, exit: %d", status, exitCode),
			Metadata: map[string]any{
				"status": string(status),
				"exit":   exitCode,
			},
		}, nil

	case "output":
		task, ok := t.registry.Get(params.ShellID)
		if !ok {
			return nil, fmt.Errorf("no such background task: %s", params.ShellID)
		}
		readerID := "default"
		if toolCtx != nil && toolCtx.CallID != "" {
			readerID = toolCtx.CallID
		}
		stdout, stderr := task.Output(readerID, params.Incremental)
		status, exitCode := task.Status()
		return &Result{
			Title:  fmt.Sprintf("Output of %s", params.ShellID),
			Output: stdout,
			Metadata: map[string]any{
				"stdout": stdout,
				"stderr": stderr,
				"status": string(status),
				"exit":   exitCode,
			},
		}, nil

	case "remove":
		if err := t.registry.Remove(params.ShellID); err != nil {
			return nil, err
		}
		return &Result{
			Title:  fmt.Sprintf("Removed %s", params.ShellID),
			Output: fmt.Sprintf("removed %s", params.ShellID),
		}, nil

	default:
		return nil, fmt.Errorf("unknown action: %s", params.Action)
	}
}

func (t *BackgroundTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
