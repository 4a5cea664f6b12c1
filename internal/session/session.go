// Package session defines the Session type: one running agent process
// attached to a specific repo worktree, plus the state machine that
// governs its lifecycle.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amux-dev/amux/internal/ptysession"
)

// State is the lifecycle state of a Session.
type State string

const (
	Starting State = "starting"
	Running  State = "running"
	Exited   State = "exited"
	Killed   State = "killed"
)

var validTransitions = map[State]map[State]bool{
	Starting: {Running: true, Exited: true, Killed: true},
	Running:  {Exited: true, Killed: true},
	Exited:   {},
	Killed:   {},
}

// Session is one supervised agent process.
type Session struct {
	mu sync.RWMutex

	ID           uuid.UUID
	RepoID       string
	Branch       string
	WorktreePath string
	Provider     string
	DisplayName  string
	StartedAt    time.Time
	EndedAt      time.Time
	ExitCode     *int

	state      State
	rows, cols uint16

	Supervisor *ptysession.Supervisor
}

// New constructs a Session in the Starting state. The caller attaches a
// Supervisor once the PTY process has actually been spawned.
func New(repoID, branch, worktreePath, provider, displayName string, rows, cols uint16) *Session {
	return &Session{
		ID:           uuid.New(),
		RepoID:       repoID,
		Branch:       branch,
		WorktreePath: worktreePath,
		Provider:     provider,
		DisplayName:  displayName,
		StartedAt:    time.Now(),
		state:        Starting,
		rows:         rows,
		cols:         cols,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves the session to newState, rejecting transitions that
// are not allowed by the state machine.
func (s *Session) Transition(newState State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validTransitions[s.state][newState] {
		return fmt.Errorf("session %s: invalid transition %s -> %s", s.ID, s.state, newState)
	}
	s.state = newState
	if newState == Exited || newState == Killed {
		s.EndedAt = time.Now()
	}
	return nil
}

// SetExitCode records the process exit code. The daemon calls it from
// the PTY supervisor's exit callback for every exit, including a child
// killed by DestroySession.
func (s *Session) SetExitCode(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExitCode = &code
}

// Rename updates the display name shown to clients.
func (s *Session) Rename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DisplayName = name
}

// Resize updates the tracked terminal dimensions and propagates to the
// underlying PTY, if spawned.
func (s *Session) Resize(rows, cols uint16) error {
	s.mu.Lock()
	s.rows, s.cols = rows, cols
	sup := s.Supervisor
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Resize(rows, cols)
}

// Dims returns the tracked terminal dimensions.
func (s *Session) Dims() (rows, cols uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows, s.cols
}

// Snapshot is an immutable view of a Session for listing/serialization.
type Snapshot struct {
	ID           string `json:"id"`
	RepoID       string `json:"repo_id"`
	Branch       string `json:"branch"`
	WorktreePath string `json:"worktree_path"`
	Provider     string `json:"provider"`
	DisplayName  string `json:"display_name"`
	State        State  `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	Rows         uint16 `json:"rows"`
	Cols         uint16 `json:"cols"`
}

// Snapshot captures the session's current state for serialization.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:           s.ID.String(),
		RepoID:       s.RepoID,
		Branch:       s.Branch,
		WorktreePath: s.WorktreePath,
		Provider:     s.Provider,
		DisplayName:  s.DisplayName,
		State:        s.state,
		StartedAt:    s.StartedAt,
		Rows:         s.rows,
		Cols:         s.cols,
	}
}
