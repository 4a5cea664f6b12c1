// Package todo is a JSON-backed per-repo to-do list, one file under
// ~/.amux/todos/<repo>/todos.json, with an explicit Order field on each
// item so reordering survives reloads.
package todo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("todo: not found")

// Item is a single to-do entry.
type Item struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

type document struct {
	Items []Item `json:"items"`
}

// Store is a single repo's to-do list.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads (or initializes) the store at baseDir/<repo>/todos.json.
func Open(baseDir, repo string) (*Store, error) {
	dir := filepath.Join(baseDir, repo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("todo: mkdir: %w", err)
	}
	s := &Store{path: filepath.Join(dir, "todos.json")}
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
		return fmt.Errorf("todo: read: %w", err)
	}
	return json.Unmarshal(data, &s.doc)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("todo: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("todo: write: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// List returns every item, ordered by Order.
func (s *Store) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.doc.Items))
	copy(out, s.doc.Items)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Add appends a new item at the end of the order.
func (s *Store) Add(text string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := Item{
		ID:        uuid.NewString(),
		Text:      text,
		Order:     len(s.doc.Items),
		CreatedAt: time.Now(),
	}
	s.doc.Items = append(s.doc.Items, item)
	if err := s.save(); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Update sets the Done flag and/or text of an item by ID.
func (s *Store) Update(id string, text *string, done *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Items {
		if s.doc.Items[i].ID == id {
			if text != nil {
				s.doc.Items[i].Text = *text
			}
			if done != nil {
				s.doc.Items[i].Done = *done
			}
			return s.save()
		}
	}
	return ErrNotFound
}

// Reorder assigns new Order values matching the position of each ID in
// orderedIDs.
func (s *Store) Reorder(orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		pos[id] = i
	}
	for i := range s.doc.Items {
		if p, ok := pos[s.doc.Items[i].ID]; ok {
			s.doc.Items[i].Order = p
		}
	}
	return s.save()
}

// Remove deletes an item by ID.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.doc.Items {
		if item.ID == id {
			s.doc.Items = append(s.doc.Items[:i], s.doc.Items[i+1:]...)
			return s.save()
		}
	}
	return ErrNotFound
}
