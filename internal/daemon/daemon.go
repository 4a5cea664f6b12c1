// Package daemon wires the session registry, event bus, and
// repo/worktree controller into the Unix-socket RPC server amux clients
// dial into.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/amux-dev/amux/internal/daemonconfig"
	"github.com/amux-dev/amux/internal/diffstore"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/gitrepo"
	"github.com/amux-dev/amux/internal/proto"
	"github.com/amux-dev/amux/internal/ptysession"
	"github.com/amux-dev/amux/internal/registry"
	"github.com/amux-dev/amux/internal/review"
	"github.com/amux-dev/amux/internal/session"
	"github.com/amux-dev/amux/internal/todo"
)

// Daemon owns every long-lived piece of server state.
type Daemon struct {
	cfg      *daemonconfig.Config
	logger   *slog.Logger
	registry *registry.Registry
	bus      *eventbus.Bus
	repos    *gitrepo.Controller

	mu         sync.Mutex
	listener   net.Listener
	reviews    map[string]*review.Store // key: repoID + "/" + branch
	todos      map[string]*todo.Store   // key: repoID
}

// New constructs a Daemon from cfg.
func New(cfg *daemonconfig.Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	reg := registry.New()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		bus:      eventbus.New(),
		reviews:  make(map[string]*review.Store),
		todos:    make(map[string]*todo.Store),
	}
	d.repos = gitrepo.New(cfg.ReposDir, reg.HasLiveSessionUnder, logger)
	return d
}

func (d *Daemon) reviewStore(repoID, branch string) (*review.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := repoID + "/" + branch
	if s, ok := d.reviews[key]; ok {
		return s, nil
	}
	s, err := review.Open(d.cfg.ReviewsDir(), repoID, branch)
	if err != nil {
		return nil, err
	}
	d.reviews[key] = s
	return s, nil
}

func (d *Daemon) todoStore(repoID string) (*todo.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.todos[repoID]; ok {
		return s, nil
	}
	s, err := todo.Open(d.cfg.TodosDir(), repoID)
	if err != nil {
		return nil, err
	}
	d.todos[repoID] = s
	return s, nil
}

// destroySession marks one session Killed, tears down its PTY, removes
// it from the registry, and publishes SessionDestroyed. It is shared by
// the unary DestroySession RPC and RemoveWorktree's cascade path.
func (d *Daemon) destroySession(sess *session.Session) {
	_ = sess.Transition(session.Killed)
	if sess.Supervisor != nil {
		_ = sess.Supervisor.Kill()
	}
	_ = d.registry.Remove(sess.ID)
	d.bus.Publish(eventbus.Event{Type: eventbus.SessionDestroyed, SessionID: sess.ID.String()})
}

// Run listens on cfg.SocketPath and serves connections until the
// listener is closed.
func (d *Daemon) Run() error {
	_ = os.Remove(d.cfg.SocketPath)
	l, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen: %w", err)
	}
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()

	d.logger.Info("amuxd listening", "socket", d.cfg.SocketPath)
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go d.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (d *Daemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Close()
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := proto.NewLineScanner(conn)
	for scanner.Scan() {
		var req proto.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			d.respond(conn, proto.Response{Error: &proto.ErrorPayload{Code: proto.ErrProtocol, Message: err.Error()}})
			return
		}

		switch req.Type {
		case proto.ReqAttachSession:
			d.handleAttach(conn, req)
			return
		case proto.ReqSubscribeEvents:
			d.handleSubscribeEvents(conn, req)
			return
		default:
			resp := d.dispatchUnary(req)
			d.respond(conn, resp)
		}
	}
}

func (d *Daemon) respond(conn net.Conn, resp proto.Response) {
	if err := proto.WriteResponse(conn, resp); err != nil {
		d.logger.Warn("daemon: writing response", "error", err)
	}
}

func errResponse(id string, code proto.ErrorCode, err error) proto.Response {
	return proto.Response{ID: id, Error: &proto.ErrorPayload{Code: code, Message: err.Error()}}
}

func okResponse(id string, payload any) proto.Response {
	data, err := json.Marshal(payload)
	if err != nil {
		return errResponse(id, proto.ErrInternal, err)
	}
	return proto.Response{OK: true, ID: id, Payload: data}
}

// dispatchUnary handles every non-streaming RPC.
func (d *Daemon) dispatchUnary(req proto.Request) proto.Response {
	switch req.Type {
	case proto.ReqPing:
		return okResponse(req.ID, map[string]string{"status": "ok"})

	case proto.ReqAddRepo:
		var p struct{ Name, Path string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		repo, err := d.repos.AddRepo(p.Name, p.Path)
		if err != nil {
			return errResponse(req.ID, classifyGitrepoErr(err), err)
		}
		d.bus.Publish(eventbus.Event{Type: eventbus.RepoAdded, RepoID: repo.ID})
		return okResponse(req.ID, repo)

	case proto.ReqRemoveRepo:
		var p struct {
			ID    string
			Force bool
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		if err := d.repos.RemoveRepo(p.ID, p.Force); err != nil {
			return errResponse(req.ID, classifyGitrepoErr(err), err)
		}
		d.bus.Publish(eventbus.Event{Type: eventbus.RepoRemoved, RepoID: p.ID})
		return okResponse(req.ID, map[string]bool{"removed": true})

	case proto.ReqListRepos:
		return okResponse(req.ID, d.repos.ListRepos())

	case proto.ReqCreateWorktree:
		var p struct{ RepoID, Branch string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		wt, err := d.repos.CreateWorktree(p.RepoID, p.Branch)
		if err != nil {
			return errResponse(req.ID, classifyGitrepoErr(err), err)
		}
		d.bus.Publish(eventbus.Event{Type: eventbus.WorktreeAdded, RepoID: p.RepoID, Worktree: wt.Path})
		return okResponse(req.ID, wt)

	case proto.ReqRemoveWorktree:
		var p struct {
			RepoID, Branch  string
			CascadeSessions bool
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		destroyUnder := func(worktreePath string) {
			for _, sess := range d.registry.ByWorktree(worktreePath) {
				d.destroySession(sess)
			}
		}
		if err := d.repos.RemoveWorktree(p.RepoID, p.Branch, p.CascadeSessions, destroyUnder); err != nil {
			return errResponse(req.ID, classifyGitrepoErr(err), err)
		}
		d.bus.Publish(eventbus.Event{Type: eventbus.WorktreeRemoved, RepoID: p.RepoID})
		return okResponse(req.ID, map[string]bool{"removed": true})

	case proto.ReqListWorktrees:
		var p struct{ RepoID string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		return okResponse(req.ID, d.repos.ListWorktrees(p.RepoID))

	case proto.ReqCreateSession:
		return d.handleCreateSession(req)

	case proto.ReqDestroySession:
		return d.handleDestroySession(req)

	case proto.ReqRenameSession:
		return d.handleRenameSession(req)

	case proto.ReqListSessions:
		snaps := make([]session.Snapshot, 0)
		for _, s := range d.registry.List() {
			snaps = append(snaps, s.Snapshot())
		}
		return okResponse(req.ID, snaps)

	case proto.ReqResizeSession:
		return d.handleResizeSession(req)

	case proto.ReqGetDiffFiles:
		return d.withDiffstore(req, func(p diffWorktreeParams, store *diffstore.Store) (any, error) {
			return store.DiffFiles()
		})

	case proto.ReqGetFileDiff:
		return d.withDiffstore(req, func(p diffWorktreeParams, store *diffstore.Store) (any, error) {
			return store.FileDiff(p.Path)
		})

	case proto.ReqGetGitStatus:
		return d.withDiffstore(req, func(p diffWorktreeParams, store *diffstore.Store) (any, error) {
			return store.Status()
		})

	case proto.ReqStageFile:
		return d.withDiffstore(req, func(p diffWorktreeParams, store *diffstore.Store) (any, error) {
			return map[string]bool{"staged": true}, store.StageFile(p.Path)
		})

	case proto.ReqUnstageFile:
		return d.withDiffstore(req, func(p diffWorktreeParams, store *diffstore.Store) (any, error) {
			return map[string]bool{"unstaged": true}, store.UnstageFile(p.Path)
		})

	case proto.ReqStageAll:
		return d.withDiffstore(req, func(p diffWorktreeParams, store *diffstore.Store) (any, error) {
			return map[string]bool{"staged": true}, store.StageAll()
		})

	case proto.ReqUnstageAll:
		return d.withDiffstore(req, func(p diffWorktreeParams, store *diffstore.Store) (any, error) {
			return map[string]bool{"unstaged": true}, store.UnstageAll()
		})

	case proto.ReqListReviewNotes:
		var p struct{ RepoID, Branch string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.reviewStore(p.RepoID, p.Branch)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		return okResponse(req.ID, store.List())

	case proto.ReqAddReviewNote:
		var p struct {
			RepoID, Branch, FilePath, LineType, Body string
			Line                                      int
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.reviewStore(p.RepoID, p.Branch)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		note, err := store.Add(p.FilePath, p.Line, p.LineType, p.Body)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		return okResponse(req.ID, note)

	case proto.ReqUpdateReviewNote:
		var p struct{ RepoID, Branch, ID, Body string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.reviewStore(p.RepoID, p.Branch)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		note, err := store.Update(p.ID, p.Body)
		if err != nil {
			return errResponse(req.ID, classifyReviewErr(err), err)
		}
		return okResponse(req.ID, note)

	case proto.ReqRemoveReviewNote:
		var p struct{ RepoID, Branch, ID string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.reviewStore(p.RepoID, p.Branch)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		if err := store.Remove(p.ID); err != nil {
			return errResponse(req.ID, classifyReviewErr(err), err)
		}
		return okResponse(req.ID, map[string]bool{"removed": true})

	case proto.ReqListTodos:
		var p struct{ RepoID string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.todoStore(p.RepoID)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		return okResponse(req.ID, store.List())

	case proto.ReqAddTodo:
		var p struct{ RepoID, Text string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.todoStore(p.RepoID)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		item, err := store.Add(p.Text)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		return okResponse(req.ID, item)

	case proto.ReqUpdateTodo:
		var p struct {
			RepoID, ID string
			Text       *string
			Done       *bool
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.todoStore(p.RepoID)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		if err := store.Update(p.ID, p.Text, p.Done); err != nil {
			return errResponse(req.ID, classifyTodoErr(err), err)
		}
		return okResponse(req.ID, map[string]bool{"updated": true})

	case proto.ReqReorderTodos:
		var p struct {
			RepoID     string
			OrderedIDs []string
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.todoStore(p.RepoID)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		if err := store.Reorder(p.OrderedIDs); err != nil {
			return errResponse(req.ID, classifyTodoErr(err), err)
		}
		return okResponse(req.ID, map[string]bool{"reordered": true})

	case proto.ReqRemoveTodo:
		var p struct{ RepoID, ID string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, proto.ErrProtocol, err)
		}
		store, err := d.todoStore(p.RepoID)
		if err != nil {
			return errResponse(req.ID, proto.ErrIoError, err)
		}
		if err := store.Remove(p.ID); err != nil {
			return errResponse(req.ID, classifyTodoErr(err), err)
		}
		return okResponse(req.ID, map[string]bool{"removed": true})

	default:
		return errResponse(req.ID, proto.ErrProtocol, fmt.Errorf("unknown request type %q", req.Type))
	}
}

// diffWorktreeParams identifies which worktree a diff/status/staging RPC
// targets, resolved via the repo/worktree controller rather than trusting
// a client-supplied filesystem path.
type diffWorktreeParams struct {
	RepoID string
	Branch string
	Path   string `json:"path,omitempty"`
}

// withDiffstore resolves RepoID+Branch to a worktree path, opens a
// diffstore.Store rooted there, and runs fn. The store is opened fresh
// per call since go-git's Worktree/Status snapshot is cheap and the
// underlying index can change between RPCs.
func (d *Daemon) withDiffstore(req proto.Request, fn func(diffWorktreeParams, *diffstore.Store) (any, error)) proto.Response {
	var p diffWorktreeParams
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}
	wt, err := d.repos.GetWorktree(p.RepoID, p.Branch)
	if err != nil {
		return errResponse(req.ID, classifyGitrepoErr(err), err)
	}
	store, err := diffstore.Open(wt.Path)
	if err != nil {
		return errResponse(req.ID, proto.ErrIoError, err)
	}
	payload, err := fn(p, store)
	if err != nil {
		return errResponse(req.ID, proto.ErrIoError, err)
	}
	return okResponse(req.ID, payload)
}

func classifyReviewErr(err error) proto.ErrorCode {
	if errors.Is(err, review.ErrNotFound) {
		return proto.ErrNotFound
	}
	return proto.ErrInternal
}

func classifyTodoErr(err error) proto.ErrorCode {
	if errors.Is(err, todo.ErrNotFound) {
		return proto.ErrNotFound
	}
	return proto.ErrInternal
}

func (d *Daemon) handleResizeSession(req proto.Request) proto.Response {
	var p struct {
		ID         string
		Rows, Cols uint16
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}
	sess, err := d.registry.Get(id)
	if err != nil {
		return errResponse(req.ID, proto.ErrNotFound, err)
	}
	if err := sess.Resize(p.Rows, p.Cols); err != nil {
		return errResponse(req.ID, proto.ErrIoError, err)
	}
	return okResponse(req.ID, sess.Snapshot())
}

type createSessionParams struct {
	RepoID      string
	Branch      string
	Command     string
	Args        []string
	Env         []string
	Provider    string
	DisplayName string
	Rows, Cols  uint16
}

// handleCreateSession resolves RepoID/Branch to a worktree path itself
// (creating the worktree on demand) rather than trusting a path from
// the caller, so a session can never be spawned outside a repo this
// daemon actually manages.
func (d *Daemon) handleCreateSession(req proto.Request) proto.Response {
	var p createSessionParams
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}

	wt, err := d.repos.GetWorktree(p.RepoID, p.Branch)
	if err != nil {
		wt, err = d.repos.CreateWorktree(p.RepoID, p.Branch)
		if err != nil {
			return errResponse(req.ID, classifySessionErr(err), err)
		}
	}

	sess := session.New(p.RepoID, p.Branch, wt.Path, p.Provider, p.DisplayName, p.Rows, p.Cols)
	if err := d.registry.Add(sess); err != nil {
		return errResponse(req.ID, classifySessionErr(err), err)
	}

	sup, err := ptysession.Spawn(ptysession.Config{
		Command:       p.Command,
		Args:          p.Args,
		Dir:           wt.Path,
		Env:           p.Env,
		Rows:          p.Rows,
		Cols:          p.Cols,
		ScrollbackCap: d.cfg.ScrollbackBytes,
		Logger:        d.logger,
		OnExit: func(code int) {
			sess.SetExitCode(code)
			_ = sess.Transition(session.Exited)
			ec := code
			d.bus.Publish(eventbus.Event{Type: eventbus.SessionExited, SessionID: sess.ID.String(), ExitCode: &ec})
		},
	})
	if err != nil {
		_ = d.registry.Remove(sess.ID)
		return errResponse(req.ID, proto.ErrSpawnFailed, err)
	}
	sess.Supervisor = sup
	_ = sess.Transition(session.Running)

	d.bus.Publish(eventbus.Event{Type: eventbus.SessionCreated, SessionID: sess.ID.String(), RepoID: p.RepoID})
	return okResponse(req.ID, sess.Snapshot())
}

func (d *Daemon) handleDestroySession(req proto.Request) proto.Response {
	var p struct{ ID string }
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}
	sess, err := d.registry.Get(id)
	if err != nil {
		return errResponse(req.ID, proto.ErrNotFound, err)
	}
	d.destroySession(sess)
	return okResponse(req.ID, map[string]bool{"destroyed": true})
}

func (d *Daemon) handleRenameSession(req proto.Request) proto.Response {
	var p struct{ ID, Name string }
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return errResponse(req.ID, proto.ErrProtocol, err)
	}
	sess, err := d.registry.Get(id)
	if err != nil {
		return errResponse(req.ID, proto.ErrNotFound, err)
	}
	old := sess.Snapshot().DisplayName
	sess.Rename(p.Name)
	d.bus.Publish(eventbus.Event{Type: eventbus.SessionRenamed, SessionID: id.String(), OldName: old, NewName: p.Name})
	return okResponse(req.ID, sess.Snapshot())
}

// classifySessionErr maps the errors CreateSession's repo/worktree
// resolution can produce onto the session-specific wire codes: a
// missing repo, a worktree that cannot be created (e.g. nested inside
// another worktree), or a worktree already hosting a live session.
func classifySessionErr(err error) proto.ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gitrepo.ErrNotFound):
		return proto.ErrRepoNotFound
	case errors.Is(err, gitrepo.ErrPreconditionFailed):
		return proto.ErrWorktreeUnavailable
	case errors.Is(err, registry.ErrConflict):
		return proto.ErrNameConflict
	default:
		return proto.ErrInternal
	}
}

func classifyGitrepoErr(err error) proto.ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gitrepo.ErrNotFound):
		return proto.ErrNotFound
	case errors.Is(err, gitrepo.ErrConflict):
		return proto.ErrConflict
	case errors.Is(err, gitrepo.ErrPreconditionFailed):
		return proto.ErrPreconditionFailed
	default:
		return proto.ErrInternal
	}
}
