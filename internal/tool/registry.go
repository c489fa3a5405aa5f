package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/sageruntime/sage/internal/agentdef"
	"github.com/sageruntime/sage/internal/background"
	"github.com/sageruntime/sage/internal/sandbox"
	"github.com/sageruntime/sage/internal/store"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	workDir    string
	storage    *store.Storage
	policy     *sandbox.Policy
	background *background.Registry
}

// NewRegistry creates a new tool registry.
func NewRegistry(workDir string, store *store.Storage) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		workDir: workDir,
		storage: store,
	}
}

// Storage returns the storage instance.
func (r *Registry) Storage() *store.Storage {
	return r.storage
}

// Policy returns the automatic sandbox policy this registry's tools were
// constructed with, or nil if none was configured.
func (r *Registry) Policy() *sandbox.Policy {
	return r.policy
}

// Background returns the background task registry shared by this registry's
// Bash and Background tools, or nil if none was configured.
func (r *Registry) Background() *background.Registry {
	return r.background
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Printf("[registry] Registering tool: %s\n", tool.ID())
	r.tools[tool.ID()] = tool
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// IDs returns all tool IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}

// EinoTools returns Eino-compatible tools.
func (r *Registry) EinoTools() []einotool.BaseTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]einotool.BaseTool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t.EinoTool())
	}
	return tools
}

// ToolInfos returns Eino tool infos for all tools.
func (r *Registry) ToolInfos() ([]*schema.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		params := parseJSONSchemaToParams(t.Parameters())
		infos = append(infos, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos, nil
}

// defaultPolicy builds the automatic sandbox policy every DefaultRegistry
// wires into its side-effecting tools. Allowed roots default to workDir so
// writes/edits stay inside the project by default; callers who need a
// different shape (CI sandboxes, multi-root workspaces) build their own
// *sandbox.Policy and use NewRegistryWithPolicy instead.
func defaultPolicy(workDir string) *sandbox.Policy {
	allowed := map[sandbox.Operation][]string{
		sandbox.OpWrite: {workDir},
	}
	return &sandbox.Policy{
		Path:    sandbox.NewPathPolicy(allowed, nil, filepath.Join(os.TempDir(), "sage-agent")),
		Command: &sandbox.CommandPolicy{},
		Network: &sandbox.NetworkPolicy{Enabled: true},
	}
}

// DefaultRegistry creates a registry with all built-in tools, gated by a
// default automatic sandbox policy scoped to workDir.
func DefaultRegistry(workDir string, store *store.Storage) *Registry {
	return NewRegistryWithPolicy(workDir, store, defaultPolicy(workDir))
}

// NewRegistryWithPolicy creates a registry whose side-effecting tools
// (Bash, Write, Edit, WebFetch) are all gated by policy's sub-policies,
// instead of the workDir-scoped default. Pass a nil policy to build an
// unconstrained registry, e.g. for tests.
func NewRegistryWithPolicy(workDir string, store *store.Storage, policy *sandbox.Policy) *Registry {
	fmt.Printf("[registry] Creating DefaultRegistry with workDir=%s\n", workDir)
	r := NewRegistry(workDir, store)
	r.policy = policy
	r.background = background.NewRegistry(0)

	var (
		bashOpts  []BashToolOption
		writeOpts []func(*WriteTool)
		editOpts  []func(*EditTool)
		fetchOpts []func(*WebFetchTool)
	)
	if policy != nil {
		if policy.Command != nil {
			bashOpts = append(bashOpts, WithCommandPolicy(policy.Command))
		}
		if policy.Path != nil {
			writeOpts = append(writeOpts, WithWritePathPolicy(policy.Path))
			editOpts = append(editOpts, WithEditPathPolicy(policy.Path))
		}
		if policy.Network != nil {
			fetchOpts = append(fetchOpts, WithNetworkPolicy(policy.Network))
		}
	}

	// Register core tools
	r.Register(NewReadTool(workDir))
	r.Register(NewWriteTool(workDir, writeOpts...))
	r.Register(NewEditTool(workDir, editOpts...))
	r.Register(NewBashTool(workDir, bashOpts...))
	r.Register(NewGlobTool(workDir))
	r.Register(NewGrepTool(workDir))
	r.Register(NewListTool(workDir))
	r.Register(NewWebFetchTool(workDir, fetchOpts...))
	r.Register(NewBackgroundTool(workDir, r.background))

	// Register todo tools
	r.Register(NewTodoWriteTool(workDir, store))
	r.Register(NewTodoReadTool(workDir, store))

	// Register batch tool for parallel execution
	r.Register(NewBatchTool(workDir, r))

	// Note: TaskTool requires agent registry, register separately using RegisterTaskTool

	fmt.Printf("[registry] DefaultRegistry created with %d tools: %v\n", len(r.tools), r.IDs())
	return r
}

// RegisterTaskTool registers the task tool with the given agent registry.
// This must be called separately after the agent registry is available.
func (r *Registry) RegisterTaskTool(agentReg *agentdef.Registry) {
	taskTool := NewTaskTool(r.workDir, agentReg)
	r.Register(taskTool)
	fmt.Printf("[registry] Registered task tool with agent registry\n")
}

// SetTaskExecutor sets the executor for the task tool.
// This enables actual subagent execution instead of placeholder responses.
func (r *Registry) SetTaskExecutor(executor TaskExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tool, ok := r.tools["Task"]; ok {
		if taskTool, ok := tool.(*TaskTool); ok {
			taskTool.SetExecutor(executor)
			fmt.Printf("[registry] Task executor configured\n")
		}
	}
}
