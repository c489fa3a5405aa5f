package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sageruntime/sage/pkg/types"
)

var interpolationPattern = regexp.MustCompile(`\{(env|file):([^}]+)\}`)

// interpolate expands {env:VAR_NAME} and {file:path} placeholders found in a
// raw config file's bytes before it's unmarshaled. {file:path} is resolved
// relative to baseDir unless it's already absolute or home-relative (~/).
// A {file:path} placeholder referencing a file that doesn't exist is left
// untouched rather than erroring, since the config may simply not need it yet.
func interpolate(input []byte, baseDir string) []byte {
	return interpolationPattern.ReplaceAllFunc(input, func(match []byte) []byte {
		groups := interpolationPattern.FindSubmatch(match)
		kind, ref := string(groups[1]), string(groups[2])

		switch kind {
		case "env":
			return []byte(os.Getenv(ref))
		case "file":
			path := ref
			if strings.HasPrefix(path, "~/") {
				if home, err := os.UserHomeDir(); err == nil {
					path = filepath.Join(home, path[2:])
				}
			} else if !filepath.IsAbs(path) && baseDir != "" {
				path = filepath.Join(baseDir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return match
			}
			escaped, _ := json.Marshal(string(data))
			return escaped[1 : len(escaped)-1]
		default:
			return match
		}
	})
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/sage/)
// 2. Project config (.sage/)
// 3. SAGE_CONFIG file and SAGE_CONFIG_CONTENT inline JSON
// 4. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Agent:    make(map[string]types.AgentConfig),
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "sage.json"), config)
	loadConfigFile(filepath.Join(globalPath, "sage.jsonc"), config)

	// 2. Project config
	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".sage", "sage.json"), config)
		loadConfigFile(filepath.Join(directory, ".sage", "sage.jsonc"), config)
	}

	// 3. An explicit config file or inline JSON named via environment variable
	if path := os.Getenv("SAGE_CONFIG"); path != "" {
		if err := loadConfigFile(path, config); err != nil {
			return nil, fmt.Errorf("loading SAGE_CONFIG file %q: %w", path, err)
		}
	}
	if inline := os.Getenv("SAGE_CONFIG_CONTENT"); inline != "" {
		var inlineConfig types.Config
		data := interpolate(stripJSONComments([]byte(inline)), directory)
		if err := json.Unmarshal(data, &inlineConfig); err != nil {
			return nil, fmt.Errorf("parsing SAGE_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inlineConfig)
	}

	// 4. Environment variables
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments if needed
	data = stripJSONComments(data)
	data = interpolate(data, filepath.Dir(path))

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// stripJSONComments removes // and /* */ comments from JSONC.
func stripJSONComments(data []byte) []byte {
	// Remove single-line comments
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	// Remove multi-line comments
	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	data = multiLine.ReplaceAll(data, nil)

	return data
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Username != "" {
		target.Username = source.Username
	}
	target.Instructions = append(target.Instructions, source.Instructions...)
	if source.Permission != nil {
		target.Permission = source.Permission
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	// Merge agents
	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}

	// Merge experimental config
	if source.Experimental != nil {
		target.Experimental = source.Experimental
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"bedrock":   "AWS_ACCESS_KEY_ID",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	// Model override
	if model := os.Getenv("SAGE_MODEL"); model != "" {
		config.Model = model
	}

	// Small model override
	if smallModel := os.Getenv("SAGE_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
