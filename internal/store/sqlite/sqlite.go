// Package sqlite implements store.Repository on top of database/sql with
// the mattn/go-sqlite3 driver. The handle is opened through jmoiron/sqlx;
// every query uses positional ? parameters.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sqwda22/archon-orchestrator/internal/store"
)

// Repository implements store.Repository backed by a single-writer sqlite
// database. The driver DSN should include `_foreign_keys=on` so cascade
// deletes on sessions behave as the data model requires.
type Repository struct {
	db *sqlx.DB
}

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite only tolerates a single writer; serialize all access through
	// one connection to avoid SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// DB exposes the underlying handle for callers that need it directly (e.g.
// to hand the same connection to another component's store).
func (r *Repository) DB() *sqlx.DB { return r.db }

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS codebases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		remote_url TEXT NOT NULL DEFAULT '',
		canonical_path TEXT NOT NULL,
		assistant_type TEXT NOT NULL DEFAULT '',
		default_branch TEXT NOT NULL DEFAULT 'main',
		commands TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		platform_type TEXT NOT NULL,
		platform_conversation_id TEXT NOT NULL,
		codebase_id TEXT REFERENCES codebases(id),
		cwd TEXT NOT NULL DEFAULT '',
		assistant_type TEXT NOT NULL DEFAULT '',
		parent_conversation_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(platform_type, platform_conversation_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		codebase_id TEXT NOT NULL DEFAULT '',
		assistant_type TEXT NOT NULL DEFAULT '',
		assistant_session_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active_per_conversation
		ON sessions(conversation_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS workflow_runs (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		codebase_id TEXT NOT NULL DEFAULT '',
		workflow_name TEXT NOT NULL,
		trigger_message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_workflow_runs_one_running_per_conversation
		ON workflow_runs(conversation_id) WHERE status = 'running';

	CREATE TABLE IF NOT EXISTS isolation_environments (
		id TEXT PRIMARY KEY,
		codebase_id TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT 'worktree',
		workflow_type TEXT NOT NULL,
		identifier TEXT NOT NULL,
		working_path TEXT NOT NULL,
		branch TEXT NOT NULL,
		status TEXT NOT NULL,
		creating_platform TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_isolation_environments_codebase ON isolation_environments(codebase_id);
	CREATE INDEX IF NOT EXISTS idx_isolation_environments_path ON isolation_environments(codebase_id, working_path);
	`
	_, err := r.db.Exec(schema)
	return err
}

func jsonEncode(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func jsonDecode(s string) map[string]string {
	m := map[string]string{}
	if s == "" {
		return m
	}
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

func commandsEncode(m map[string]store.Command) string {
	if m == nil {
		m = map[string]store.Command{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func commandsDecode(s string) map[string]store.Command {
	m := map[string]store.Command{}
	if s == "" {
		return m
	}
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

// --- Codebases ---

func (r *Repository) CreateCodebase(ctx context.Context, c *store.Codebase) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO codebases (id, name, remote_url, canonical_path, assistant_type, default_branch, commands, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.RemoteURL, c.CanonicalPath, c.AssistantType, c.DefaultBranch, commandsEncode(c.Commands), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *Repository) scanCodebase(row *sql.Row) (*store.Codebase, error) {
	c := &store.Codebase{}
	var commands string
	if err := row.Scan(&c.ID, &c.Name, &c.RemoteURL, &c.CanonicalPath, &c.AssistantType, &c.DefaultBranch, &commands, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.Commands = commandsDecode(commands)
	return c, nil
}

func (r *Repository) GetCodebase(ctx context.Context, id string) (*store.Codebase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, remote_url, canonical_path, assistant_type, default_branch, commands, created_at, updated_at FROM codebases WHERE id = ?`, id)
	return r.scanCodebase(row)
}

func (r *Repository) GetCodebaseByName(ctx context.Context, name string) (*store.Codebase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, remote_url, canonical_path, assistant_type, default_branch, commands, created_at, updated_at FROM codebases WHERE name = ?`, name)
	return r.scanCodebase(row)
}

func (r *Repository) UpdateCodebase(ctx context.Context, c *store.Codebase) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE codebases SET name=?, remote_url=?, canonical_path=?, assistant_type=?, default_branch=?, commands=?, updated_at=?
		WHERE id=?`,
		c.Name, c.RemoteURL, c.CanonicalPath, c.AssistantType, c.DefaultBranch, commandsEncode(c.Commands), c.UpdatedAt, c.ID)
	return err
}

// --- Conversations ---

func scanConversationRow(row *sql.Row) (*store.Conversation, error) {
	c := &store.Conversation{}
	var codebaseID sql.NullString
	if err := row.Scan(&c.ID, &c.PlatformType, &c.PlatformConversationID, &codebaseID, &c.Cwd, &c.AssistantType, &c.ParentConversationID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CodebaseID = codebaseID.String
	return c, nil
}

// GetOrCreateConversation is idempotent: a second call with the same
// (platformType, platformConversationID) returns the existing row.
func (r *Repository) GetOrCreateConversation(ctx context.Context, platformType, platformConversationID string) (*store.Conversation, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE platform_type = ? AND platform_conversation_id = ?`, platformType, platformConversationID)
	if existing, err := scanConversationRow(row); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	c := &store.Conversation{
		ID:                     uuid.New().String(),
		PlatformType:           platformType,
		PlatformConversationID: platformConversationID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at)
		VALUES (?, ?, ?, NULL, '', '', '', ?, ?)
		ON CONFLICT(platform_type, platform_conversation_id) DO NOTHING`,
		c.ID, c.PlatformType, c.PlatformConversationID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, false, err
	}

	// A concurrent insert may have won the race; re-read to return the
	// canonical row either way.
	row = r.db.QueryRowContext(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE platform_type = ? AND platform_conversation_id = ?`, platformType, platformConversationID)
	final, err := scanConversationRow(row)
	if err != nil {
		return nil, false, err
	}
	return final, final.ID == c.ID, nil
}

func (r *Repository) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	return scanConversationRow(row)
}

func (r *Repository) UpdateConversation(ctx context.Context, c *store.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	var codebaseID interface{}
	if c.CodebaseID != "" {
		codebaseID = c.CodebaseID
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET codebase_id=?, cwd=?, assistant_type=?, parent_conversation_id=?, updated_at=?
		WHERE id=?`,
		codebaseID, c.Cwd, c.AssistantType, c.ParentConversationID, c.UpdatedAt, c.ID)
	return err
}

// ConversationsWithCwd returns every conversation currently pointed at
// path, regardless of platform or codebase.
func (r *Repository) ConversationsWithCwd(ctx context.Context, path string) ([]*store.Conversation, error) {
	if path == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE cwd = ?`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Conversation
	for rows.Next() {
		c := &store.Conversation{}
		var codebaseID sql.NullString
		if err := rows.Scan(&c.ID, &c.PlatformType, &c.PlatformConversationID, &codebaseID, &c.Cwd, &c.AssistantType, &c.ParentConversationID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.CodebaseID = codebaseID.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Sessions ---

func scanSessionRow(row *sql.Row) (*store.Session, error) {
	s := &store.Session{}
	var metadata string
	if err := row.Scan(&s.ID, &s.ConversationID, &s.CodebaseID, &s.AssistantType, &s.AssistantSessionID, &s.Active, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	s.Metadata = jsonDecode(metadata)
	return s, nil
}

func (r *Repository) GetActiveSession(ctx context.Context, conversationID string) (*store.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, codebase_id, assistant_type, assistant_session_id, active, metadata, created_at, updated_at
		FROM sessions WHERE conversation_id = ? AND active = 1`, conversationID)
	return scanSessionRow(row)
}

func (r *Repository) GetSession(ctx context.Context, id string) (*store.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, codebase_id, assistant_type, assistant_session_id, active, metadata, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSessionRow(row)
}

// CreateActiveSession deactivates any existing active session for the
// conversation and inserts s as the new active one inside a single
// transaction, so the one-active-session invariant holds even under
// concurrent dispatch.
func (r *Repository) CreateActiveSession(ctx context.Context, s *store.Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Active = true

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET active = 0, updated_at = ? WHERE conversation_id = ? AND active = 1`, now, s.ConversationID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, conversation_id, codebase_id, assistant_type, assistant_session_id, active, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		s.ID, s.ConversationID, s.CodebaseID, s.AssistantType, s.AssistantSessionID, jsonEncode(s.Metadata), s.CreatedAt, s.UpdatedAt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Repository) UpdateSession(ctx context.Context, s *store.Session) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET assistant_session_id=?, metadata=?, active=?, updated_at=?
		WHERE id=?`,
		s.AssistantSessionID, jsonEncode(s.Metadata), s.Active, s.UpdatedAt, s.ID)
	return err
}

// DeactivateSession is a no-op (not an error) if the session is already
// inactive or does not exist, per the idempotent-cases contract.
func (r *Repository) DeactivateSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// --- Workflow runs ---

func scanWorkflowRunRow(row *sql.Row) (*store.WorkflowRun, error) {
	w := &store.WorkflowRun{}
	var metadata string
	if err := row.Scan(&w.ID, &w.ConversationID, &w.CodebaseID, &w.WorkflowName, &w.TriggerMessage, &w.Status, &metadata, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	w.Metadata = jsonDecode(metadata)
	return w, nil
}

// CreateRunningWorkflowRun fails with store.ErrWorkflowRunBusy if another
// run is already "running" for the conversation. It checks for one first;
// the partial unique index rejects an insert that races past that check,
// and any insert error is reported as store.ErrWorkflowRunBusy.
func (r *Repository) CreateRunningWorkflowRun(ctx context.Context, w *store.WorkflowRun) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	w.Status = store.WorkflowRunRunning

	var existing sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id FROM workflow_runs WHERE conversation_id = ? AND status = 'running'`, w.ConversationID).Scan(&existing)
	if err == nil {
		return store.ErrWorkflowRunBusy
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, conversation_id, codebase_id, workflow_name, trigger_message, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'running', ?, ?, ?)`,
		w.ID, w.ConversationID, w.CodebaseID, w.WorkflowName, w.TriggerMessage, jsonEncode(w.Metadata), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return store.ErrWorkflowRunBusy
	}
	return nil
}

func (r *Repository) GetWorkflowRun(ctx context.Context, id string) (*store.WorkflowRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, codebase_id, workflow_name, trigger_message, status, metadata, created_at, updated_at
		FROM workflow_runs WHERE id = ?`, id)
	return scanWorkflowRunRow(row)
}

func (r *Repository) GetRunningWorkflowRun(ctx context.Context, conversationID string) (*store.WorkflowRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, codebase_id, workflow_name, trigger_message, status, metadata, created_at, updated_at
		FROM workflow_runs WHERE conversation_id = ? AND status = 'running'`, conversationID)
	return scanWorkflowRunRow(row)
}

func (r *Repository) UpdateWorkflowRun(ctx context.Context, w *store.WorkflowRun) error {
	w.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status=?, metadata=?, updated_at=? WHERE id=?`,
		w.Status, jsonEncode(w.Metadata), w.UpdatedAt, w.ID)
	return err
}

func (r *Repository) ReconcileStaleRunningRuns(ctx context.Context, conversationID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status = 'failed', updated_at = ?
		WHERE conversation_id = ? AND status = 'running'`, time.Now().UTC(), conversationID)
	return err
}

// --- Isolation environments ---

func scanIsolationRow(row *sql.Row) (*store.IsolationEnvironment, error) {
	e := &store.IsolationEnvironment{}
	var metadata string
	if err := row.Scan(&e.ID, &e.CodebaseID, &e.Provider, &e.WorkflowType, &e.Identifier, &e.WorkingPath, &e.Branch, &e.Status, &e.CreatingPlatform, &metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.Metadata = jsonDecode(metadata)
	return e, nil
}

func (r *Repository) CreateIsolationEnvironment(ctx context.Context, e *store.IsolationEnvironment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = store.IsolationActive
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO isolation_environments (id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CodebaseID, e.Provider, e.WorkflowType, e.Identifier, e.WorkingPath, e.Branch, e.Status, e.CreatingPlatform, jsonEncode(e.Metadata), e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *Repository) GetIsolationEnvironment(ctx context.Context, id string) (*store.IsolationEnvironment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE id = ?`, id)
	return scanIsolationRow(row)
}

func (r *Repository) GetIsolationEnvironmentByPath(ctx context.Context, codebaseID, path string) (*store.IsolationEnvironment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE codebase_id = ? AND working_path = ? AND status = 'active'`, codebaseID, path)
	return scanIsolationRow(row)
}

func (r *Repository) ListActiveIsolationEnvironments(ctx context.Context, codebaseID string) ([]*store.IsolationEnvironment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE codebase_id = ? AND status = 'active'`, codebaseID)
	if err != nil {
		return nil, err
	}
	return scanIsolationRows(rows)
}

func (r *Repository) ListActiveIsolationEnvironmentsAll(ctx context.Context) ([]*store.IsolationEnvironment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE status = 'active'`)
	if err != nil {
		return nil, err
	}
	return scanIsolationRows(rows)
}

func scanIsolationRows(rows *sql.Rows) ([]*store.IsolationEnvironment, error) {
	defer rows.Close()
	var out []*store.IsolationEnvironment
	for rows.Next() {
		e := &store.IsolationEnvironment{}
		var metadata string
		if err := rows.Scan(&e.ID, &e.CodebaseID, &e.Provider, &e.WorkflowType, &e.Identifier, &e.WorkingPath, &e.Branch, &e.Status, &e.CreatingPlatform, &metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Metadata = jsonDecode(metadata)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateIsolationEnvironment(ctx context.Context, e *store.IsolationEnvironment) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE isolation_environments SET working_path=?, branch=?, status=?, metadata=?, updated_at=?
		WHERE id=?`,
		e.WorkingPath, e.Branch, e.Status, jsonEncode(e.Metadata), e.UpdatedAt, e.ID)
	return err
}

// MarkIsolationEnvironmentDestroyed is a no-op if the environment is
// already destroyed or missing.
func (r *Repository) MarkIsolationEnvironmentDestroyed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE isolation_environments SET status = 'destroyed', updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

var _ store.Repository = (*Repository)(nil)
