// Package sessionlog is the append-only sqlite record of everything a
// workbench session did: one row per workspace, session, prompt, and
// snapshot. WAL mode, foreign keys on, embedded migrations applied
// inside a transaction with a schema_migrations bookkeeping table. No
// row is ever updated or deleted.
package sessionlog

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Siiichenggg/cc-workbench/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Log is the append-only session recorder.
type Log struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at dsn and
// applies any pending migrations.
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionlog: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionlog: enable foreign keys: %w", err)
	}
	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionlog: migrate: %w", err)
	}
	return l, nil
}

func (l *Log) Close() error { return l.db.Close() }

func (l *Log) migrate() error {
	if _, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := l.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := l.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", f, nowISO()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }

// OpenWorkspace upserts a workspace row keyed by its absolute path and
// returns its id, reusing the existing row when the path has been seen
// before.
func (l *Log) OpenWorkspace(path string) (string, error) {
	var id string
	err := l.db.QueryRow("SELECT id FROM workspaces WHERE path = ?", path).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("sessionlog: lookup workspace: %w", err)
	}
	id = uuid.NewString()
	if _, err := l.db.Exec("INSERT INTO workspaces (id, path, created_at) VALUES (?, ?, ?)", id, path, nowISO()); err != nil {
		return "", fmt.Errorf("sessionlog: insert workspace: %w", err)
	}
	return id, nil
}

// StartSession records a new session under workspaceID and returns its id.
func (l *Log) StartSession(workspaceID string) (string, error) {
	id := uuid.NewString()
	if _, err := l.db.Exec("INSERT INTO sessions (id, workspace_id, created_at) VALUES (?, ?, ?)", id, workspaceID, nowISO()); err != nil {
		return "", fmt.Errorf("sessionlog: insert session: %w", err)
	}
	return id, nil
}

// AppendPrompt records one prompt-or-response entry at the caller-supplied
// index idx within sessionID.
func (l *Log) AppendPrompt(sessionID string, idx int, role, content string) error {
	id := uuid.NewString()
	_, err := l.db.Exec(
		"INSERT INTO prompts (id, session_id, idx, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, sessionID, idx, role, content, nowISO())
	if err != nil {
		return fmt.Errorf("sessionlog: append prompt: %w", err)
	}
	return nil
}

// AppendSnapshot records the commit produced for prompt index idx within
// sessionID.
func (l *Log) AppendSnapshot(sessionID string, idx int, commit model.Commit) error {
	if !commit.Valid() {
		return fmt.Errorf("sessionlog: invalid commit hash %q", commit)
	}
	id := uuid.NewString()
	_, err := l.db.Exec(
		"INSERT INTO snapshots (id, session_id, idx, commit_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		id, sessionID, idx, string(commit), nowISO())
	if err != nil {
		return fmt.Errorf("sessionlog: append snapshot: %w", err)
	}
	return nil
}

// PromptRecord is one raw (role, content) row as stored in the log —
// distinct from model.PromptEntry, which pairs a user prompt with its
// assistant response for rendering.
type PromptRecord struct {
	Idx       int
	Role      string
	Content   string
	CreatedAt time.Time
}

// SnapshotRecord is one raw snapshot row as stored in the log.
type SnapshotRecord struct {
	Idx       int
	Commit    model.Commit
	CreatedAt time.Time
}

// ListPrompts returns every prompt row for sessionID in index order.
func (l *Log) ListPrompts(sessionID string) ([]PromptRecord, error) {
	rows, err := l.db.Query(
		"SELECT idx, role, content, created_at FROM prompts WHERE session_id = ? ORDER BY idx", sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: list prompts: %w", err)
	}
	defer rows.Close()

	var out []PromptRecord
	for rows.Next() {
		var e PromptRecord
		var createdAt string
		if err := rows.Scan(&e.Idx, &e.Role, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("sessionlog: scan prompt: %w", err)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("sessionlog: parse prompt timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListSnapshots returns every snapshot row for sessionID in index order.
func (l *Log) ListSnapshots(sessionID string) ([]SnapshotRecord, error) {
	rows, err := l.db.Query(
		"SELECT idx, commit_hash, created_at FROM snapshots WHERE session_id = ? ORDER BY idx", sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var e SnapshotRecord
		var commit, createdAt string
		if err := rows.Scan(&e.Idx, &commit, &createdAt); err != nil {
			return nil, fmt.Errorf("sessionlog: scan snapshot: %w", err)
		}
		e.Commit = model.Commit(commit)
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("sessionlog: parse snapshot timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
