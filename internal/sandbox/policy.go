package sandbox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Operation distinguishes read vs. write path checks.
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// SandboxError names which of the three sub-policies rejected a tool call
// and why. All three policies are evaluated independently; a tool call
// requires all of them to approve.
type SandboxError struct {
	Policy string // "path" | "command" | "network"
	Reason string
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox: %s policy rejected: %s", e.Policy, e.Reason)
}

// defaultSensitiveFiles are denied for writes regardless of any allow-list,
// fixed at compile time but extensible via PathPolicy.SensitiveFiles.
var defaultSensitiveFiles = []string{
	".git/config",
	".ssh/",
	".aws/",
	".env",
	".bashrc",
	".zshrc",
	".bash_profile",
	".profile",
	".netrc",
	".npmrc",
	".pypirc",
}

// defaultSystemPaths are always denied, for both reads and writes.
var defaultSystemPaths = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/proc",
	"/sys",
	"/dev",
	"/root",
	"/var/log",
}

// PathPolicy decides whether a read or write against a resolved path is
// allowed. It is stateless after construction and safe to consult from any
// goroutine.
type PathPolicy struct {
	AllowedRoots   map[Operation][]string
	DeniedRoots    map[Operation][]string
	SensitiveFiles []string
	AgentTmpPrefix string
}

// NewPathPolicy builds a PathPolicy with the fixed sensitive-file and
// system-path lists merged in, extended by any caller-supplied sensitive
// file suffixes.
func NewPathPolicy(allowed, denied map[Operation][]string, agentTmpPrefix string, extraSensitive ...string) *PathPolicy {
	sensitive := append([]string{}, defaultSensitiveFiles...)
	sensitive = append(sensitive, extraSensitive...)
	return &PathPolicy{
		AllowedRoots:   allowed,
		DeniedRoots:    denied,
		SensitiveFiles: sensitive,
		AgentTmpPrefix: agentTmpPrefix,
	}
}

// Check resolves path against the canonicalized root it's contained in (the
// nearest existing ancestor, if path itself doesn't exist yet) and applies
// the read/write policy rules.
func (p *PathPolicy) Check(op Operation, path string) error {
	resolved, err := canonicalize(path)
	if err != nil {
		return &SandboxError{Policy: "path", Reason: fmt.Sprintf("cannot resolve %q: %v", path, err)}
	}

	for _, sys := range defaultSystemPaths {
		if resolved == sys || IsWithinDir(resolved, sys) {
			return &SandboxError{Policy: "path", Reason: fmt.Sprintf("%q is a system path", resolved)}
		}
	}

	if op == OpWrite {
		for _, sensitive := range p.SensitiveFiles {
			if matchesSensitive(resolved, sensitive) {
				return &SandboxError{Policy: "path", Reason: fmt.Sprintf("%q is a protected credential/config file", resolved)}
			}
		}

		if IsWithinDir(resolved, "/tmp") {
			if p.AgentTmpPrefix == "" || !IsWithinDir(resolved, p.AgentTmpPrefix) {
				return &SandboxError{Policy: "path", Reason: fmt.Sprintf("writes under /tmp are restricted to %s", p.AgentTmpPrefix)}
			}
		}
	}

	for _, denied := range p.DeniedRoots[op] {
		if IsWithinDir(resolved, denied) {
			return &SandboxError{Policy: "path", Reason: fmt.Sprintf("%q is under denied root %s", resolved, denied)}
		}
	}

	roots := p.AllowedRoots[op]
	if len(roots) == 0 {
		return nil
	}
	for _, root := range roots {
		if IsWithinDir(resolved, root) {
			return nil
		}
	}
	return &SandboxError{Policy: "path", Reason: fmt.Sprintf("%q is outside all allowed roots for %s", resolved, op)}
}

func matchesSensitive(resolved, pattern string) bool {
	if strings.HasSuffix(pattern, "/") {
		return strings.Contains(resolved, pattern) || strings.HasSuffix(resolved+"/", pattern)
	}
	return strings.HasSuffix(resolved, pattern) || strings.Contains(resolved, "/"+pattern)
}

// canonicalize resolves path to an absolute, symlink-resolved form. When the
// path doesn't exist, the nearest existing ancestor is canonicalized and the
// missing remainder is appended uncanonicalized.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return real, nil
	}

	// Walk up to the nearest existing ancestor.
	dir := filepath.Dir(abs)
	remainder := filepath.Base(abs)
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(real, remainder), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		remainder = filepath.Join(filepath.Base(dir), remainder)
		dir = parent
	}
}

// dangerousShellPatterns blocks well-known shell escape/chaining idioms
// regardless of what the base command policy decides.
var dangerousShellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`;\s*(rm|sudo|dd|mkfs)\b`),
	regexp.MustCompile("`[^`]*`"),
	regexp.MustCompile(`\$\([^)]*\)`),
	regexp.MustCompile(`\|\s*(sh|bash|zsh|rm|sudo)\b`),
	regexp.MustCompile(`>\s*/etc/`),
	regexp.MustCompile(`>\s*/dev/`),
}

// CommandPolicy decides whether a shell command is allowed to run.
type CommandPolicy struct {
	AllowList []string // base command names; empty means permissive
	DenyList  []string
}

// Check validates command against the deny/allow list for its base command
// (path-stripped first token) and the fixed dangerous-pattern regexes.
func (p *CommandPolicy) Check(command string) error {
	for _, re := range dangerousShellPatterns {
		if re.MatchString(command) {
			return &SandboxError{Policy: "command", Reason: fmt.Sprintf("command matches a blocked shell pattern: %s", re.String())}
		}
	}

	commands, err := ParseBashCommand(command)
	if err != nil || len(commands) == 0 {
		// Can't parse it into discrete commands; fall back to checking the
		// first whitespace-separated token against deny/allow.
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return nil
		}
		return p.checkBaseName(filepath.Base(fields[0]))
	}

	for _, cmd := range commands {
		if err := p.checkBaseName(filepath.Base(cmd.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (p *CommandPolicy) checkBaseName(name string) error {
	for _, denied := range p.DenyList {
		if denied == name {
			return &SandboxError{Policy: "command", Reason: fmt.Sprintf("%q is on the command deny list", name)}
		}
	}
	if len(p.AllowList) == 0 {
		return nil
	}
	for _, allowed := range p.AllowList {
		if allowed == name {
			return nil
		}
	}
	return &SandboxError{Policy: "command", Reason: fmt.Sprintf("%q is not on the command allow list", name)}
}

// defaultBlockedPorts are rejected regardless of host allow/deny matching.
var defaultBlockedPorts = map[int]bool{
	22: true, 23: true, 25: true, 110: true, 143: true,
	445: true, 3306: true, 5432: true, 6379: true, 27017: true,
}

// NetworkPolicy decides whether an outbound network request is allowed.
type NetworkPolicy struct {
	Enabled    bool
	AllowHosts []string
	DenyHosts  []string
}

// Check validates host/port against the network policy: everything is
// rejected if networking is disabled; otherwise denied hosts are rejected
// on substring match, allowed hosts are required on substring match (when
// non-empty), and a fixed port blocklist always applies.
func (p *NetworkPolicy) Check(host string, port int) error {
	if !p.Enabled {
		return &SandboxError{Policy: "network", Reason: "networking is disabled"}
	}

	if defaultBlockedPorts[port] {
		return &SandboxError{Policy: "network", Reason: fmt.Sprintf("port %d is blocked", port)}
	}

	for _, denied := range p.DenyHosts {
		if strings.Contains(host, denied) {
			return &SandboxError{Policy: "network", Reason: fmt.Sprintf("host %q matches denied pattern %q", host, denied)}
		}
	}

	if len(p.AllowHosts) == 0 {
		return nil
	}
	for _, allowed := range p.AllowHosts {
		if strings.Contains(host, allowed) {
			return nil
		}
	}
	return &SandboxError{Policy: "network", Reason: fmt.Sprintf("host %q does not match any allowed pattern", host)}
}

// Policy bundles the three sub-policies. A tool call must satisfy the
// sub-policies relevant to its operation; there is no interactive fallback.
type Policy struct {
	Path    *PathPolicy
	Command *CommandPolicy
	Network *NetworkPolicy
}
