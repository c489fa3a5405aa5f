// Package snapshot tracks the pre-image of files a tool is about to touch
// so a turn's net effect can be classified (created/modified/deleted/
// unchanged) and, if needed, rolled back.
//
// It generalizes the read-before-write discipline internal/tool/write.go and
// internal/tool/edit.go already follow (read the file, diff it, write it)
// into something the engine can call around every tool dispatch rather than
// something each tool does for itself, and backs the pre-image up through
// internal/store.SessionLog instead of holding it only in memory.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sageruntime/sage/internal/store"
	"github.com/sageruntime/sage/pkg/types"
)

// LogResolver returns the SessionLog a session's backups and snapshot
// entries should be written through.
type LogResolver func(sessionID string) (*store.SessionLog, error)

type baseline struct {
	existed    bool
	hash       string
	backupPath string
}

// Tracker accumulates per-session, per-path baselines between track() calls
// and the snapshot() that closes them out. A Tracker is safe for concurrent
// use across sessions; within one session, Track/Snapshot calls are
// serialized against each other.
type Tracker struct {
	mu       sync.Mutex
	resolve  LogResolver
	tracked  map[string]map[string]*baseline // sessionID -> path -> baseline
}

// NewTracker returns a Tracker that resolves session logs via resolve.
func NewTracker(resolve LogResolver) *Tracker {
	return &Tracker{
		resolve: resolve,
		tracked: make(map[string]map[string]*baseline),
	}
}

// Track records path's current content (hashed and backed up) as the
// baseline against which a later Snapshot call will classify changes. It is
// idempotent within a single tracking cycle: once a path has a baseline for
// a session, subsequent Track calls for the same path before the next
// Snapshot are no-ops, so the classification always measures against the
// state before the first tool touched it.
func (t *Tracker) Track(sessionID, path string) error {
	t.mu.Lock()
	paths, ok := t.tracked[sessionID]
	if !ok {
		paths = make(map[string]*baseline)
		t.tracked[sessionID] = paths
	}
	if _, already := paths[path]; already {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	content, existed, err := readIfExists(path)
	if err != nil {
		return fmt.Errorf("snapshot: read baseline %s: %w", path, err)
	}

	b := &baseline{existed: existed}
	if existed {
		b.hash = hashBytes(content)

		log, err := t.resolve(sessionID)
		if err != nil {
			return fmt.Errorf("snapshot: resolve session log: %w", err)
		}
		backupPath, err := log.WriteBackup(path, time.Now(), content)
		if err != nil {
			return fmt.Errorf("snapshot: backup %s: %w", path, err)
		}
		b.backupPath = backupPath
	}

	t.mu.Lock()
	t.tracked[sessionID][path] = b
	t.mu.Unlock()
	return nil
}

// TrackedPaths returns the paths currently tracked for sessionID. Nothing
// in the engine calls it; the session processor decides parallel dispatch
// from tool names alone.
func (t *Tracker) TrackedPaths(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.tracked[sessionID]))
	for p := range t.tracked[sessionID] {
		paths = append(paths, p)
	}
	return paths
}

// Snapshot classifies every path tracked for sessionID since the last
// Snapshot call, appends the resulting entries to the session's snapshot
// log, and clears the tracker for that session so the next turn starts
// clean. A tracker with nothing tracked returns an empty, non-nil slice.
func (t *Tracker) Snapshot(sessionID, messageID string) ([]types.FileHistorySnapshot, error) {
	t.mu.Lock()
	paths := t.tracked[sessionID]
	delete(t.tracked, sessionID)
	t.mu.Unlock()

	entries := make([]types.FileHistorySnapshot, 0, len(paths))
	now := time.Now().UnixMilli()

	var log *store.SessionLog
	if len(paths) > 0 {
		var err error
		log, err = t.resolve(sessionID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: resolve session log: %w", err)
		}
	}

	for path, b := range paths {
		content, exists, err := readIfExists(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
		}

		entry := types.FileHistorySnapshot{
			SessionID:  sessionID,
			MessageID:  messageID,
			Path:       path,
			PriorHash:  b.hash,
			BackupPath: b.backupPath,
			Timestamp:  now,
		}

		switch {
		case !b.existed && exists:
			entry.Status = types.FileCreated
			entry.AfterHash = hashBytes(content)
		case b.existed && !exists:
			entry.Status = types.FileDeleted
		case b.existed && exists:
			afterHash := hashBytes(content)
			entry.AfterHash = afterHash
			if afterHash == b.hash {
				entry.Status = types.FileUnchanged
			} else {
				entry.Status = types.FileModified
			}
		default: // !existed && !exists
			entry.Status = types.FileUnchanged
		}

		if err := log.AppendSnapshot(entry); err != nil {
			return nil, fmt.Errorf("snapshot: append: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Restore best-effort inverts one snapshot entry: a modified or deleted
// file is restored from its backup, a created file with no backup is
// removed. A missing backup is reported but never fatal — restoration is a
// convenience, not a guarantee.
func Restore(entry types.FileHistorySnapshot) error {
	switch entry.Status {
	case types.FileUnchanged:
		return nil

	case types.FileCreated:
		if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("snapshot: restore (remove created) %s: %w", entry.Path, err)
		}
		return nil

	case types.FileModified, types.FileDeleted:
		if entry.BackupPath == "" {
			return fmt.Errorf("snapshot: no backup recorded for %s, cannot restore", entry.Path)
		}
		content, err := os.ReadFile(entry.BackupPath)
		if err != nil {
			return fmt.Errorf("snapshot: read backup for %s: %w", entry.Path, err)
		}
		if err := os.WriteFile(entry.Path, content, 0644); err != nil {
			return fmt.Errorf("snapshot: restore %s: %w", entry.Path, err)
		}
		return nil

	default:
		return fmt.Errorf("snapshot: unknown status %q for %s", entry.Status, entry.Path)
	}
}

func readIfExists(path string) ([]byte, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
