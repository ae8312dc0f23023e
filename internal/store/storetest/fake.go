// Package storetest provides an in-memory store.Repository for tests that
// need real invariant enforcement (one active session, one running
// workflow run) without a database.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqwda22/archon-orchestrator/internal/store"
)

type Fake struct {
	mu            sync.Mutex
	codebases     map[string]*store.Codebase
	conversations map[string]*store.Conversation
	sessions      map[string]*store.Session
	workflowRuns  map[string]*store.WorkflowRun
	environments  map[string]*store.IsolationEnvironment
}

func New() *Fake {
	return &Fake{
		codebases:     map[string]*store.Codebase{},
		conversations: map[string]*store.Conversation{},
		sessions:      map[string]*store.Session{},
		workflowRuns:  map[string]*store.WorkflowRun{},
		environments:  map[string]*store.IsolationEnvironment{},
	}
}

func clone[T any](v T) T { return v }

func (f *Fake) CreateCodebase(ctx context.Context, c *store.Codebase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := clone(*c)
	f.codebases[c.ID] = &cp
	return nil
}

func (f *Fake) GetCodebase(ctx context.Context, id string) (*store.Codebase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codebases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := clone(*c)
	return &cp, nil
}

func (f *Fake) GetCodebaseByName(ctx context.Context, name string) (*store.Codebase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codebases {
		if c.Name == name {
			cp := clone(*c)
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) UpdateCodebase(ctx context.Context, c *store.Codebase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.codebases[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	cp := clone(*c)
	f.codebases[c.ID] = &cp
	return nil
}

func (f *Fake) GetOrCreateConversation(ctx context.Context, platformType, platformConversationID string) (*store.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.PlatformType == platformType && c.PlatformConversationID == platformConversationID {
			cp := clone(*c)
			return &cp, false, nil
		}
	}
	now := time.Now().UTC()
	c := &store.Conversation{
		ID:                     uuid.New().String(),
		PlatformType:           platformType,
		PlatformConversationID: platformConversationID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	f.conversations[c.ID] = c
	cp := clone(*c)
	return &cp, true, nil
}

func (f *Fake) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := clone(*c)
	return &cp, nil
}

func (f *Fake) UpdateConversation(ctx context.Context, c *store.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	cp := clone(*c)
	f.conversations[c.ID] = &cp
	return nil
}

func (f *Fake) ConversationsWithCwd(ctx context.Context, path string) ([]*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == "" {
		return nil, nil
	}
	var out []*store.Conversation
	for _, c := range f.conversations {
		if c.Cwd == path {
			cp := clone(*c)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *Fake) GetActiveSession(ctx context.Context, conversationID string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ConversationID == conversationID && s.Active {
			cp := clone(*s)
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) GetSession(ctx context.Context, id string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := clone(*s)
	return &cp, nil
}

func (f *Fake) CreateActiveSession(ctx context.Context, s *store.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.ConversationID == s.ConversationID && existing.Active {
			existing.Active = false
			existing.UpdatedAt = time.Now().UTC()
		}
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Active = true
	cp := clone(*s)
	f.sessions[s.ID] = &cp
	return nil
}

func (f *Fake) UpdateSession(ctx context.Context, s *store.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; !ok {
		return store.ErrNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	cp := clone(*s)
	f.sessions[s.ID] = &cp
	return nil
}

func (f *Fake) DeactivateSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil
	}
	s.Active = false
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *Fake) CreateRunningWorkflowRun(ctx context.Context, w *store.WorkflowRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.workflowRuns {
		if existing.ConversationID == w.ConversationID && existing.Status == store.WorkflowRunRunning {
			return store.ErrWorkflowRunBusy
		}
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	w.Status = store.WorkflowRunRunning
	cp := clone(*w)
	f.workflowRuns[w.ID] = &cp
	return nil
}

func (f *Fake) GetWorkflowRun(ctx context.Context, id string) (*store.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workflowRuns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := clone(*w)
	return &cp, nil
}

func (f *Fake) GetRunningWorkflowRun(ctx context.Context, conversationID string) (*store.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workflowRuns {
		if w.ConversationID == conversationID && w.Status == store.WorkflowRunRunning {
			cp := clone(*w)
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) UpdateWorkflowRun(ctx context.Context, w *store.WorkflowRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workflowRuns[w.ID]; !ok {
		return store.ErrNotFound
	}
	w.UpdatedAt = time.Now().UTC()
	cp := clone(*w)
	f.workflowRuns[w.ID] = &cp
	return nil
}

func (f *Fake) ReconcileStaleRunningRuns(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workflowRuns {
		if w.ConversationID == conversationID && w.Status == store.WorkflowRunRunning {
			w.Status = store.WorkflowRunFailed
			w.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (f *Fake) CreateIsolationEnvironment(ctx context.Context, e *store.IsolationEnvironment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = store.IsolationActive
	}
	cp := clone(*e)
	f.environments[e.ID] = &cp
	return nil
}

func (f *Fake) GetIsolationEnvironment(ctx context.Context, id string) (*store.IsolationEnvironment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.environments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := clone(*e)
	return &cp, nil
}

func (f *Fake) GetIsolationEnvironmentByPath(ctx context.Context, codebaseID, path string) (*store.IsolationEnvironment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.environments {
		if e.CodebaseID == codebaseID && e.WorkingPath == path && e.Status == store.IsolationActive {
			cp := clone(*e)
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) ListActiveIsolationEnvironments(ctx context.Context, codebaseID string) ([]*store.IsolationEnvironment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.IsolationEnvironment
	for _, e := range f.environments {
		if e.CodebaseID == codebaseID && e.Status == store.IsolationActive {
			cp := clone(*e)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *Fake) ListActiveIsolationEnvironmentsAll(ctx context.Context) ([]*store.IsolationEnvironment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.IsolationEnvironment
	for _, e := range f.environments {
		if e.Status == store.IsolationActive {
			cp := clone(*e)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *Fake) UpdateIsolationEnvironment(ctx context.Context, e *store.IsolationEnvironment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.environments[e.ID]; !ok {
		return store.ErrNotFound
	}
	e.UpdatedAt = time.Now().UTC()
	cp := clone(*e)
	f.environments[e.ID] = &cp
	return nil
}

func (f *Fake) MarkIsolationEnvironmentDestroyed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.environments[id]
	if !ok {
		return nil
	}
	e.Status = store.IsolationDestroyed
	e.UpdatedAt = time.Now().UTC()
	return nil
}

var _ store.Repository = (*Fake)(nil)
