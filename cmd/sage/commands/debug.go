package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sageruntime/sage/internal/config"
	"github.com/sageruntime/sage/internal/replay"
	"github.com/sageruntime/sage/internal/store"
	"github.com/sageruntime/sage/internal/tool"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting sage configuration and setup.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

var debugReplayDryRun bool

var debugReplayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Reconstruct a session's trajectory from its durable message log",
	Long: `Reads a session's messages.jsonl through internal/replay, printing its
reconstructed message tree and aggregate token/tool-call stats as JSON.

Pass --dry-run to also re-execute every recorded tool call against a
pre-cancelled context: read-only calls are recomputed and compared against
what was recorded, side-effecting calls are reported as skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runDebugReplay,
}

func init() {
	debugReplayCmd.Flags().BoolVar(&debugReplayDryRun, "dry-run", false, "re-execute recorded tool calls and report divergence")
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
	debugCmd.AddCommand(debugReplayCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	// Load configuration
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	// Output as JSON
	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()

	fmt.Println("sage system paths:")
	fmt.Println()
	fmt.Printf("  Config:   %s\n", paths.Config)
	fmt.Printf("  Data:     %s\n", paths.Data)
	fmt.Printf("  Cache:    %s\n", paths.Cache)
	fmt.Printf("  State:    %s\n", paths.State)
	fmt.Printf("  Storage:  %s\n", paths.StoragePath())
	fmt.Printf("  Agent tmp: %s\n", config.AgentTmpPath())

	return nil
}

func runDebugReplay(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	root := config.GetPaths().StoragePath()
	log, err := store.OpenSessionLog(root, workDir, sessionID)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}

	messages, roots, warnings, err := replay.Reconstruct(log)
	if err != nil {
		return fmt.Errorf("reconstruct: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	out := map[string]any{
		"messageCount": len(messages),
		"roots":        roots,
		"aggregates":   replay.Aggregate(messages),
	}

	if debugReplayDryRun {
		registry := tool.DefaultRegistry(workDir, nil)
		out["dryRun"] = replay.DryRun(messages, registry)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
