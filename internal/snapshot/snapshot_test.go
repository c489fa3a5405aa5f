package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sageruntime/sage/internal/store"
	"github.com/sageruntime/sage/pkg/types"
)

func testResolver(t *testing.T, root string) LogResolver {
	t.Helper()
	return func(sessionID string) (*store.SessionLog, error) {
		return store.OpenSessionLog(root, "/work", sessionID)
	}
}

func TestTracker_ModifiedFileClassification(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("before"), 0644); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(testResolver(t, root))
	if err := tr.Track("sess1", path); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if err := os.WriteFile(path, []byte("after"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := tr.Snapshot("sess1", "msg1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != types.FileModified {
		t.Fatalf("expected one modified entry, got %+v", entries)
	}
}

func TestTracker_CreatedFileClassification(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")

	tr := NewTracker(testResolver(t, root))
	if err := tr.Track("sess1", path); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if err := os.WriteFile(path, []byte("new content"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := tr.Snapshot("sess1", "msg1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != types.FileCreated {
		t.Fatalf("expected one created entry, got %+v", entries)
	}
}

func TestTracker_DeletedFileClassification(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(testResolver(t, root))
	if err := tr.Track("sess1", path); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	entries, err := tr.Snapshot("sess1", "msg1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != types.FileDeleted {
		t.Fatalf("expected one deleted entry, got %+v", entries)
	}
}

// TestTracker_RestoreThenSnapshotClassifiesAllUnchanged verifies the
// round-trip law: track -> snapshot -> restore -> snapshot must classify
// every path unchanged, since restore is supposed to put the tree back
// exactly where track found it.
func TestTracker_RestoreThenSnapshotClassifiesAllUnchanged(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(testResolver(t, root))

	if err := tr.Track("sess1", path); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := os.WriteFile(path, []byte("modified"), 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := tr.Snapshot("sess1", "msg1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	if err := Restore(entries[0]); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if err := tr.Track("sess1", path); err != nil {
		t.Fatalf("Track (second cycle): %v", err)
	}
	entries2, err := tr.Snapshot("sess1", "msg2")
	if err != nil {
		t.Fatalf("Snapshot (second cycle): %v", err)
	}
	if len(entries2) != 1 || entries2[0].Status != types.FileUnchanged {
		t.Fatalf("expected unchanged after restore, got %+v", entries2)
	}
}

func TestTracker_TrackIsIdempotentWithinACycle(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(testResolver(t, root))
	if err := tr.Track("sess1", path); err != nil {
		t.Fatal(err)
	}

	// A second Track call after the file has already changed should not
	// move the baseline — the classification must still be against v1.
	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := tr.Track("sess1", path); err != nil {
		t.Fatal(err)
	}

	entries, err := tr.Snapshot("sess1", "msg1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != types.FileModified {
		t.Fatalf("expected modified relative to first baseline, got %+v", entries)
	}
}

func TestTracker_RemoveCreatedFileOnRestore(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")

	tr := NewTracker(testResolver(t, root))
	if err := tr.Track("sess1", path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("created"), 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := tr.Snapshot("sess1", "msg1")
	if err != nil {
		t.Fatal(err)
	}

	if err := Restore(entries[0]); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected created file to be removed by restore")
	}
}
