// Package model holds the plain data types shared across the workbench
// engine: workspaces, sessions, prompt entries, usage entries and the
// transient diff-preview state. Nothing here owns a mutex or a channel —
// ownership and concurrency live in internal/engine.
package model

import "time"

// Workspace identifies a filesystem directory the engine is attached to.
type Workspace struct {
	ID        string
	Path      string
	CreatedAt time.Time
}

// Session is a single run of the engine against a Workspace.
type Session struct {
	ID          string
	WorkspaceID string
	CreatedAt   time.Time
}

// Commit is an opaque content-addressed snapshot reference. The zero value
// is the "no commit yet" state.
type Commit string

// Valid reports whether c refers to an actual snapshot.
func (c Commit) Valid() bool { return c != "" }

// PromptEntry is one user-submitted prompt within a session.
type PromptEntry struct {
	Idx            int
	ID             string
	Text           string
	OutputLine     int
	AssistantText  string
	SnapshotCommit Commit
}

// UsageEntry is a point-in-time reading from a quota provider.
type UsageEntry struct {
	Provider string
	Used     *int64
	Limit    *int64
	Status   string // "" when a numeric reading is present; "loading" or an error string otherwise
}

// DiffPreview is transient UI state for the diff modal.
type DiffPreview struct {
	Title          string
	Lines          []string
	ScrollOffset   int
	PendingRestore Commit // empty when not armed for restore
}
