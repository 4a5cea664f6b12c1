// Package registry is the daemon's in-memory directory of live sessions,
// indexed by ID and by the repo/worktree each session belongs to.
package registry

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/amux-dev/amux/internal/session"
)

var (
	ErrNotFound = errors.New("registry: not found")
	ErrConflict = errors.New("registry: conflict")
)

// Registry holds every live session, with secondary indices by repo and
// by worktree path so listing and cascade-checks don't require a full
// scan.
type Registry struct {
	mu sync.Mutex

	byID       map[uuid.UUID]*session.Session
	byRepo     map[string]map[uuid.UUID]struct{}
	byWorktree map[string]map[uuid.UUID]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:       make(map[uuid.UUID]*session.Session),
		byRepo:     make(map[string]map[uuid.UUID]struct{}),
		byWorktree: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Add inserts s into the registry. A worktree may host at most one live
// session at a time (I-style uniqueness invariant); Add rejects a second.
func (r *Registry) Add(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ids, ok := r.byWorktree[s.WorktreePath]; ok && len(ids) > 0 {
		return ErrConflict
	}

	r.byID[s.ID] = s
	if r.byRepo[s.RepoID] == nil {
		r.byRepo[s.RepoID] = make(map[uuid.UUID]struct{})
	}
	r.byRepo[s.RepoID][s.ID] = struct{}{}
	if r.byWorktree[s.WorktreePath] == nil {
		r.byWorktree[s.WorktreePath] = make(map[uuid.UUID]struct{})
	}
	r.byWorktree[s.WorktreePath][s.ID] = struct{}{}
	return nil
}

// Remove deletes a session from every index.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	if ids, ok := r.byRepo[s.RepoID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byRepo, s.RepoID)
		}
	}
	if ids, ok := r.byWorktree[s.WorktreePath]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byWorktree, s.WorktreePath)
		}
	}
	return nil
}

// Get looks up a session by ID.
func (r *Registry) Get(id uuid.UUID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns every live session.
func (r *Registry) List() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// ByRepo returns every session belonging to repoID.
func (r *Registry) ByRepo(repoID string) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byRepo[repoID]
	out := make([]*session.Session, 0, len(ids))
	for id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// ByWorktree returns every session attached to worktreePath.
func (r *Registry) ByWorktree(worktreePath string) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byWorktree[worktreePath]
	out := make([]*session.Session, 0, len(ids))
	for id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// HasLiveSessionUnder reports whether any session's worktree path is
// worktreePath or nested below it, used to gate worktree/repo removal.
func (r *Registry) HasLiveSessionUnder(worktreePath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path := range r.byWorktree {
		if path == worktreePath || strings.HasPrefix(path, worktreePath+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
