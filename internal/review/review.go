// Package review is a JSON-backed store of line comments left on a
// worktree's diff, one file per repo/branch under ~/.amux/reviews/.
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("review: not found")

// Note is a single line comment.
type Note struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	Line      int       `json:"line"`
	LineType  string    `json:"line_type"` // "context", "added", or "removed"
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type document struct {
	Notes []Note `json:"notes"`
}

// Store is a single repo/branch's review notes, persisted to one JSON
// file with an atomic rename on every write.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads (or initializes) the review store at
// baseDir/<repo>/<branch>/review.json.
func Open(baseDir, repo, branch string) (*Store, error) {
	dir := filepath.Join(baseDir, repo, branch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("review: mkdir: %w", err)
	}
	s := &Store{path: filepath.Join(dir, "review.json")}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.doc = document{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("review: read: %w", err)
	}
	return json.Unmarshal(data, &s.doc)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("review: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("review: write: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// List returns every note.
func (s *Store) List() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Note, len(s.doc.Notes))
	copy(out, s.doc.Notes)
	return out
}

// Add appends a new note and persists it.
func (s *Store) Add(filePath string, line int, lineType, body string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	note := Note{
		ID:        uuid.NewString(),
		FilePath:  filePath,
		Line:      line,
		LineType:  lineType,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.doc.Notes = append(s.doc.Notes, note)
	if err := s.save(); err != nil {
		return Note{}, err
	}
	return note, nil
}

// Update replaces the body of an existing note by ID.
func (s *Store) Update(id, body string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.doc.Notes {
		if n.ID == id {
			n.Body = body
			n.UpdatedAt = time.Now()
			s.doc.Notes[i] = n
			if err := s.save(); err != nil {
				return Note{}, err
			}
			return n, nil
		}
	}
	return Note{}, ErrNotFound
}

// Remove deletes a note by ID.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.doc.Notes {
		if n.ID == id {
			s.doc.Notes = append(s.doc.Notes[:i], s.doc.Notes[i+1:]...)
			return s.save()
		}
	}
	return ErrNotFound
}
