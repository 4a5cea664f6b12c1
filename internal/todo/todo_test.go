package todo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddListRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "myrepo")
	require.NoError(t, err)

	item, err := s.Add("write tests")
	require.NoError(t, err)
	assert.Len(t, s.List(), 1)

	require.NoError(t, s.Remove(item.ID))
	assert.Empty(t, s.List())
}

func TestUpdateDoneFlag(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "myrepo")
	require.NoError(t, err)

	item, err := s.Add("write tests")
	require.NoError(t, err)

	done := true
	require.NoError(t, s.Update(item.ID, nil, &done))
	list := s.List()
	require.True(t, list[0].Done)
}

func TestReorderPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "myrepo")
	require.NoError(t, err)

	a, _ := s.Add("a")
	b, _ := s.Add("b")

	require.NoError(t, s.Reorder([]string{b.ID, a.ID}))
	list := s.List()
	require.Equal(t, b.ID, list[0].ID)
	require.Equal(t, a.ID, list[1].ID)
}
