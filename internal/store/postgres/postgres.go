// Package postgres implements store.Repository on top of jackc/pgx/v5,
// for deployments that outgrow the single-writer sqlite backend. It
// implements the exact same store.Repository interface and invariants;
// see internal/store/sqlite for the reference implementation's comments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqwda22/archon-orchestrator/internal/store"
)

type Repository struct {
	pool *pgxpool.Pool
}

// Open connects to postgres and applies the schema.
func Open(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	r := &Repository{pool: pool}
	if err := r.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() { r.pool.Close() }

func (r *Repository) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS codebases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		remote_url TEXT NOT NULL DEFAULT '',
		canonical_path TEXT NOT NULL,
		assistant_type TEXT NOT NULL DEFAULT '',
		default_branch TEXT NOT NULL DEFAULT 'main',
		commands JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		platform_type TEXT NOT NULL,
		platform_conversation_id TEXT NOT NULL,
		codebase_id TEXT REFERENCES codebases(id),
		cwd TEXT NOT NULL DEFAULT '',
		assistant_type TEXT NOT NULL DEFAULT '',
		parent_conversation_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(platform_type, platform_conversation_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		codebase_id TEXT NOT NULL DEFAULT '',
		assistant_type TEXT NOT NULL DEFAULT '',
		assistant_session_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active_per_conversation
		ON sessions(conversation_id) WHERE active;

	CREATE TABLE IF NOT EXISTS workflow_runs (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		codebase_id TEXT NOT NULL DEFAULT '',
		workflow_name TEXT NOT NULL,
		trigger_message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
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
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_isolation_environments_codebase ON isolation_environments(codebase_id);
	`
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func jsonEncode(m map[string]string) []byte {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return b
}

func jsonDecode(b []byte) map[string]string {
	m := map[string]string{}
	if len(b) == 0 {
		return m
	}
	_ = json.Unmarshal(b, &m)
	return m
}

func (r *Repository) CreateCodebase(ctx context.Context, c *store.Codebase) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	commands, _ := json.Marshal(c.Commands)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO codebases (id, name, remote_url, canonical_path, assistant_type, default_branch, commands, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.Name, c.RemoteURL, c.CanonicalPath, c.AssistantType, c.DefaultBranch, commands, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *Repository) scanCodebase(row pgx.Row) (*store.Codebase, error) {
	c := &store.Codebase{}
	var commands []byte
	if err := row.Scan(&c.ID, &c.Name, &c.RemoteURL, &c.CanonicalPath, &c.AssistantType, &c.DefaultBranch, &commands, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.Commands = map[string]store.Command{}
	_ = json.Unmarshal(commands, &c.Commands)
	return c, nil
}

func (r *Repository) GetCodebase(ctx context.Context, id string) (*store.Codebase, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, remote_url, canonical_path, assistant_type, default_branch, commands, created_at, updated_at FROM codebases WHERE id = $1`, id)
	return r.scanCodebase(row)
}

func (r *Repository) GetCodebaseByName(ctx context.Context, name string) (*store.Codebase, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, remote_url, canonical_path, assistant_type, default_branch, commands, created_at, updated_at FROM codebases WHERE name = $1`, name)
	return r.scanCodebase(row)
}

func (r *Repository) UpdateCodebase(ctx context.Context, c *store.Codebase) error {
	c.UpdatedAt = time.Now().UTC()
	commands, _ := json.Marshal(c.Commands)
	_, err := r.pool.Exec(ctx, `
		UPDATE codebases SET name=$1, remote_url=$2, canonical_path=$3, assistant_type=$4, default_branch=$5, commands=$6, updated_at=$7
		WHERE id=$8`,
		c.Name, c.RemoteURL, c.CanonicalPath, c.AssistantType, c.DefaultBranch, commands, c.UpdatedAt, c.ID)
	return err
}

func scanConversation(row pgx.Row) (*store.Conversation, error) {
	c := &store.Conversation{}
	var codebaseID *string
	if err := row.Scan(&c.ID, &c.PlatformType, &c.PlatformConversationID, &codebaseID, &c.Cwd, &c.AssistantType, &c.ParentConversationID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if codebaseID != nil {
		c.CodebaseID = *codebaseID
	}
	return c, nil
}

func (r *Repository) GetOrCreateConversation(ctx context.Context, platformType, platformConversationID string) (*store.Conversation, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE platform_type = $1 AND platform_conversation_id = $2`, platformType, platformConversationID)
	if existing, err := scanConversation(row); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	id := uuid.New().String()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at)
		VALUES ($1,$2,$3,NULL,'','','',$4,$5)
		ON CONFLICT (platform_type, platform_conversation_id) DO NOTHING`,
		id, platformType, platformConversationID, now, now)
	if err != nil {
		return nil, false, err
	}

	row = r.pool.QueryRow(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE platform_type = $1 AND platform_conversation_id = $2`, platformType, platformConversationID)
	final, err := scanConversation(row)
	if err != nil {
		return nil, false, err
	}
	return final, final.ID == id, nil
}

func (r *Repository) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *Repository) UpdateConversation(ctx context.Context, c *store.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	var codebaseID *string
	if c.CodebaseID != "" {
		codebaseID = &c.CodebaseID
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET codebase_id=$1, cwd=$2, assistant_type=$3, parent_conversation_id=$4, updated_at=$5
		WHERE id=$6`,
		codebaseID, c.Cwd, c.AssistantType, c.ParentConversationID, c.UpdatedAt, c.ID)
	return err
}

// ConversationsWithCwd returns every conversation currently pointed at
// path, regardless of platform or codebase.
func (r *Repository) ConversationsWithCwd(ctx context.Context, path string) ([]*store.Conversation, error) {
	if path == "" {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, platform_type, platform_conversation_id, codebase_id, cwd, assistant_type, parent_conversation_id, created_at, updated_at
		FROM conversations WHERE cwd = $1`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Conversation
	for rows.Next() {
		c := &store.Conversation{}
		var codebaseID *string
		if err := rows.Scan(&c.ID, &c.PlatformType, &c.PlatformConversationID, &codebaseID, &c.Cwd, &c.AssistantType, &c.ParentConversationID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if codebaseID != nil {
			c.CodebaseID = *codebaseID
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*store.Session, error) {
	s := &store.Session{}
	var metadata []byte
	if err := row.Scan(&s.ID, &s.ConversationID, &s.CodebaseID, &s.AssistantType, &s.AssistantSessionID, &s.Active, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	s.Metadata = jsonDecode(metadata)
	return s, nil
}

func (r *Repository) GetActiveSession(ctx context.Context, conversationID string) (*store.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, codebase_id, assistant_type, assistant_session_id, active, metadata, created_at, updated_at
		FROM sessions WHERE conversation_id = $1 AND active`, conversationID)
	return scanSession(row)
}

func (r *Repository) GetSession(ctx context.Context, id string) (*store.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, codebase_id, assistant_type, assistant_session_id, active, metadata, created_at, updated_at
		FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *Repository) CreateActiveSession(ctx context.Context, s *store.Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Active = true

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE sessions SET active = FALSE, updated_at = $1 WHERE conversation_id = $2 AND active`, now, s.ConversationID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, conversation_id, codebase_id, assistant_type, assistant_session_id, active, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,TRUE,$6,$7,$8)`,
		s.ID, s.ConversationID, s.CodebaseID, s.AssistantType, s.AssistantSessionID, jsonEncode(s.Metadata), s.CreatedAt, s.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) UpdateSession(ctx context.Context, s *store.Session) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET assistant_session_id=$1, metadata=$2, active=$3, updated_at=$4
		WHERE id=$5`,
		s.AssistantSessionID, jsonEncode(s.Metadata), s.Active, s.UpdatedAt, s.ID)
	return err
}

func (r *Repository) DeactivateSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET active = FALSE, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	return err
}

func scanWorkflowRun(row pgx.Row) (*store.WorkflowRun, error) {
	w := &store.WorkflowRun{}
	var metadata []byte
	if err := row.Scan(&w.ID, &w.ConversationID, &w.CodebaseID, &w.WorkflowName, &w.TriggerMessage, &w.Status, &metadata, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	w.Metadata = jsonDecode(metadata)
	return w, nil
}

func (r *Repository) CreateRunningWorkflowRun(ctx context.Context, w *store.WorkflowRun) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	w.Status = store.WorkflowRunRunning

	var existing string
	err := r.pool.QueryRow(ctx, `SELECT id FROM workflow_runs WHERE conversation_id = $1 AND status = 'running'`, w.ConversationID).Scan(&existing)
	if err == nil {
		return store.ErrWorkflowRunBusy
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, conversation_id, codebase_id, workflow_name, trigger_message, status, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,'running',$6,$7,$8)`,
		w.ID, w.ConversationID, w.CodebaseID, w.WorkflowName, w.TriggerMessage, jsonEncode(w.Metadata), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return store.ErrWorkflowRunBusy
	}
	return nil
}

func (r *Repository) GetWorkflowRun(ctx context.Context, id string) (*store.WorkflowRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, codebase_id, workflow_name, trigger_message, status, metadata, created_at, updated_at
		FROM workflow_runs WHERE id = $1`, id)
	return scanWorkflowRun(row)
}

func (r *Repository) GetRunningWorkflowRun(ctx context.Context, conversationID string) (*store.WorkflowRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, codebase_id, workflow_name, trigger_message, status, metadata, created_at, updated_at
		FROM workflow_runs WHERE conversation_id = $1 AND status = 'running'`, conversationID)
	return scanWorkflowRun(row)
}

func (r *Repository) UpdateWorkflowRun(ctx context.Context, w *store.WorkflowRun) error {
	w.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `UPDATE workflow_runs SET status=$1, metadata=$2, updated_at=$3 WHERE id=$4`,
		w.Status, jsonEncode(w.Metadata), w.UpdatedAt, w.ID)
	return err
}

func (r *Repository) ReconcileStaleRunningRuns(ctx context.Context, conversationID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE workflow_runs SET status = 'failed', updated_at = $1
		WHERE conversation_id = $2 AND status = 'running'`, time.Now().UTC(), conversationID)
	return err
}

func scanIsolation(row pgx.Row) (*store.IsolationEnvironment, error) {
	e := &store.IsolationEnvironment{}
	var metadata []byte
	if err := row.Scan(&e.ID, &e.CodebaseID, &e.Provider, &e.WorkflowType, &e.Identifier, &e.WorkingPath, &e.Branch, &e.Status, &e.CreatingPlatform, &metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := r.pool.Exec(ctx, `
		INSERT INTO isolation_environments (id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.CodebaseID, e.Provider, e.WorkflowType, e.Identifier, e.WorkingPath, e.Branch, e.Status, e.CreatingPlatform, jsonEncode(e.Metadata), e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *Repository) GetIsolationEnvironment(ctx context.Context, id string) (*store.IsolationEnvironment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE id = $1`, id)
	return scanIsolation(row)
}

func (r *Repository) GetIsolationEnvironmentByPath(ctx context.Context, codebaseID, path string) (*store.IsolationEnvironment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE codebase_id = $1 AND working_path = $2 AND status = 'active'`, codebaseID, path)
	return scanIsolation(row)
}

func (r *Repository) ListActiveIsolationEnvironments(ctx context.Context, codebaseID string) ([]*store.IsolationEnvironment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE codebase_id = $1 AND status = 'active'`, codebaseID)
	if err != nil {
		return nil, err
	}
	return collectIsolation(rows)
}

func (r *Repository) ListActiveIsolationEnvironmentsAll(ctx context.Context) ([]*store.IsolationEnvironment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, codebase_id, provider, workflow_type, identifier, working_path, branch, status, creating_platform, metadata, created_at, updated_at
		FROM isolation_environments WHERE status = 'active'`)
	if err != nil {
		return nil, err
	}
	return collectIsolation(rows)
}

func collectIsolation(rows pgx.Rows) ([]*store.IsolationEnvironment, error) {
	defer rows.Close()
	var out []*store.IsolationEnvironment
	for rows.Next() {
		e := &store.IsolationEnvironment{}
		var metadata []byte
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
	_, err := r.pool.Exec(ctx, `
		UPDATE isolation_environments SET working_path=$1, branch=$2, status=$3, metadata=$4, updated_at=$5
		WHERE id=$6`,
		e.WorkingPath, e.Branch, e.Status, jsonEncode(e.Metadata), e.UpdatedAt, e.ID)
	return err
}

func (r *Repository) MarkIsolationEnvironmentDestroyed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE isolation_environments SET status = 'destroyed', updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	return err
}

var _ store.Repository = (*Repository)(nil)
