// Package diffstore is a thin wrapper over go-git exposing the
// read-only diff/status and staging operations a review collaborator
// needs, without shelling out to the git binary.
package diffstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileStatus summarizes one changed file's staged/unstaged state.
type FileStatus struct {
	Path     string `json:"path"`
	Staged   string `json:"staged"`
	Unstaged string `json:"unstaged"`
}

// Store wraps a single worktree's git repository.
type Store struct {
	repo *git.Repository
	wt   *git.Worktree
	root string
}

// Open opens the repository rooted at worktreePath.
func Open(worktreePath string) (*Store, error) {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return nil, fmt.Errorf("diffstore: open: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("diffstore: worktree: %w", err)
	}
	abs, err := filepath.Abs(worktreePath)
	if err != nil {
		return nil, fmt.Errorf("diffstore: resolving worktree path: %w", err)
	}
	return &Store{repo: repo, wt: wt, root: abs}, nil
}

// Status returns the status of every changed file, worktree-relative.
func (s *Store) Status() ([]FileStatus, error) {
	status, err := s.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("diffstore: status: %w", err)
	}
	out := make([]FileStatus, 0, len(status))
	for path, st := range status {
		out = append(out, FileStatus{
			Path:     path,
			Staged:   string(st.Staging),
			Unstaged: string(st.Worktree),
		})
	}
	return out, nil
}

// DiffFiles lists paths changed relative to HEAD.
func (s *Store) DiffFiles() ([]string, error) {
	status, err := s.Status()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(status))
	for _, st := range status {
		paths = append(paths, st.Path)
	}
	return paths, nil
}

// FileDiff returns a line-level worktree-vs-HEAD diff for a single
// path: the on-disk content as it stands right now, compared against
// the blob HEAD has for that path. A path missing from HEAD (a new,
// untracked file) diffs against an empty blob; a path missing on disk
// (a deleted file) diffs against empty worktree content.
func (s *Store) FileDiff(path string) (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("diffstore: head: %w", err)
	}
	headCommit, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("diffstore: head commit: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return "", fmt.Errorf("diffstore: head tree: %w", err)
	}

	var headContent string
	if f, err := headTree.File(path); err == nil {
		headContent, err = f.Contents()
		if err != nil {
			return "", fmt.Errorf("diffstore: reading head blob: %w", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("diffstore: reading worktree file: %w", err)
	}
	worktreeContent := string(data)

	return lineDiff(headContent, worktreeContent), nil
}

// lineDiff renders a unified-style, line-prefixed diff between a and b
// using go-diff's line-mode Myers diff: lines are first hashed to
// single runes so DiffMain operates on whole lines instead of
// characters, then expanded back for output.
func lineDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	aRunes, bRunes, lines := dmp.DiffLinesToRunes(a, b)
	diffs := dmp.DiffMainRunes(aRunes, bRunes, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var buf bytes.Buffer
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			buf.WriteString(prefix)
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// StageFile adds path to the index.
func (s *Store) StageFile(path string) error {
	_, err := s.wt.Add(path)
	return err
}

// UnstageFile resets path's index entry back to its HEAD state, leaving
// the worktree copy untouched.
func (s *Store) UnstageFile(path string) error {
	head, err := s.repo.Head()
	if err != nil {
		return fmt.Errorf("diffstore: head: %w", err)
	}
	return s.wt.Reset(&git.ResetOptions{
		Commit: head.Hash(),
		Mode:   git.MixedReset,
		Files:  []string{path},
	})
}

// StageAll stages every changed file.
func (s *Store) StageAll() error {
	status, err := s.Status()
	if err != nil {
		return err
	}
	for _, st := range status {
		if err := s.StageFile(st.Path); err != nil {
			return err
		}
	}
	return nil
}

// UnstageAll resets every staged file back to its HEAD state.
func (s *Store) UnstageAll() error {
	status, err := s.Status()
	if err != nil {
		return err
	}
	for _, st := range status {
		if err := s.UnstageFile(st.Path); err != nil {
			return err
		}
	}
	return nil
}
