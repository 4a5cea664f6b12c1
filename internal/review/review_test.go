package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddListRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "myrepo", "main")
	require.NoError(t, err)

	note, err := s.Add("a.go", 10, "context", "looks off")
	require.NoError(t, err)
	assert.Len(t, s.List(), 1)

	require.NoError(t, s.Remove(note.ID))
	assert.Empty(t, s.List())
}

func TestReopenLoadsPersistedNotes(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, "myrepo", "main")
	require.NoError(t, err)
	_, err = s1.Add("a.go", 1, "context", "note")
	require.NoError(t, err)

	s2, err := Open(dir, "myrepo", "main")
	require.NoError(t, err)
	assert.Len(t, s2.List(), 1)
}

func TestRemoveMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "myrepo", "main")
	require.NoError(t, err)
	err = s.Remove("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateChangesBodyAndPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "myrepo", "main")
	require.NoError(t, err)

	note, err := s.Add("a.go", 10, "added", "first draft")
	require.NoError(t, err)

	updated, err := s.Update(note.ID, "revised")
	require.NoError(t, err)
	assert.Equal(t, "revised", updated.Body)
	assert.True(t, updated.UpdatedAt.After(note.CreatedAt) || updated.UpdatedAt.Equal(note.CreatedAt))

	s2, err := Open(dir, "myrepo", "main")
	require.NoError(t, err)
	assert.Equal(t, "revised", s2.List()[0].Body)
}

func TestUpdateMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "myrepo", "main")
	require.NoError(t, err)
	_, err = s.Update("missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
