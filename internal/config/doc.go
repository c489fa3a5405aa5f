// Package config provides configuration loading, merging, and path management for sage.
//
// This package handles a layered configuration system with a hierarchical
// loading strategy that ensures proper precedence across sources.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.config/sage/ - XDG compatible)
//  2. Project config (.sage/sage.json or .sage/sage.jsonc under the working directory)
//  3. SAGE_CONFIG file
//  4. SAGE_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// Configuration files are loaded in a specific order to ensure that more specific
// configurations override more general ones, while environment variables have the
// highest precedence.
//
// # Supported Formats
//
// The package supports both JSON and JSONC (JSON with Comments) formats:
//   - sage.json - Standard JSON configuration
//   - sage.jsonc - JSON with comments; // and /* */ comments are stripped
//     before parsing
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support:
//   - Absolute paths
//   - Relative paths (resolved relative to config file directory)
//   - Home directory expansion (~/)
//
// Example configuration with interpolation:
//
//	{
//	  "provider": {
//	    "anthropic": {
//	      "options": {
//	        "apiKey": "{env:ANTHROPIC_API_KEY}"
//	      }
//	    }
//	  },
//	  "instructions": [
//	    "{file:~/custom-instructions.txt}"
//	  ]
//	}
//
// # Configuration Merging
//
// When multiple configuration sources are found, each is merged into the
// result in load order:
//   - Non-empty model, small_model, $schema and username overwrite earlier values
//   - provider and agent maps are combined by key; a later entry for the same
//     key replaces the earlier entry as a whole
//   - instructions are appended
//   - permission and experimental blocks replace earlier ones as a whole
//   - tools and promptVariables are not merged into the result
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path management
// through the Paths type:
//   - Data: ~/.local/share/sage (XDG_DATA_HOME)
//   - Config: ~/.config/sage (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/sage (XDG_CACHE_HOME)
//   - State: ~/.local/state/sage (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
//
// # Environment Variable Overrides
//
// Several environment variables provide direct configuration overrides:
//   - SAGE_MODEL - Override the default model
//   - SAGE_SMALL_MODEL - Override the small model
//   - SAGE_CONFIG - Path to a specific config file
//   - SAGE_CONFIG_CONTENT - Inline JSON configuration
//
// There is no environment override for the permission block, and the config
// directory location follows XDG_CONFIG_HOME only.
//
// # Usage Example
//
//	// Load configuration from the current directory
//	config, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get standard paths
//	paths := config.GetPaths()
//	err = paths.EnsurePaths() // Create directories if they don't exist
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Save configuration
//	err = config.Save(config, config.GlobalConfigPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config