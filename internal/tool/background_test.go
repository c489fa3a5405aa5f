package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sageruntime/sage/internal/background"
)

func TestBackgroundTool_SpawnStatusOutputRemove(t *testing.T) {
	reg := background.NewRegistry(0)
	bg := NewBackgroundTool("/tmp", reg)
	ctx := context.Background()
	toolCtx := testContext()

	spawnInput, _ := json.Marshal(BackgroundInput{Action: "spawn", Command: "echo from-background"})
	result, err := bg.Execute(ctx, spawnInput, toolCtx)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	shellID, _ := result.Metadata["shellID"].(string)
	if shellID == "" {
		t.Fatal("expected a shell id in spawn metadata")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statusInput, _ := json.Marshal(BackgroundInput{Action: "status", ShellID: shellID})
		statusResult, err := bg.Execute(ctx, statusInput, toolCtx)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if statusResult.Metadata["status"] == "completed" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	outputInput, _ := json.Marshal(BackgroundInput{Action: "output", ShellID: shellID})
	outputResult, err := bg.Execute(ctx, outputInput, toolCtx)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if !strings.Contains(outputResult.Output, "from-background") {
		t.Errorf("expected captured output, got %q", outputResult.Output)
	}

	removeInput, _ := json.Marshal(BackgroundInput{Action: "remove", ShellID: shellID})
	if _, err := bg.Execute(ctx, removeInput, toolCtx); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestBackgroundTool_UnknownShellID(t *testing.T) {
	reg := background.NewRegistry(0)
	bg := NewBackgroundTool("/tmp", reg)

	input, _ := json.Marshal(BackgroundInput{Action: "status", ShellID: "nonexistent"})
	if _, err := bg.Execute(context.Background(), input, testContext()); err == nil {
		t.Fatal("expected error for unknown shell id")
	}
}
