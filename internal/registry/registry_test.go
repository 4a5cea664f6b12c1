package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/session"
)

func TestAddGetRemove(t *testing.T) {
	r := New()
	s := session.New("repo1", "main", "/tmp/wt1", "claude", "claude-main", 24, 80)
	require.NoError(t, r.Add(s))

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	require.NoError(t, r.Remove(s.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddRejectsDuplicateWorktree(t *testing.T) {
	r := New()
	s1 := session.New("repo1", "main", "/tmp/wt1", "claude", "a", 24, 80)
	s2 := session.New("repo1", "main", "/tmp/wt1", "claude", "b", 24, 80)
	require.NoError(t, r.Add(s1))
	err := r.Add(s2)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestByRepoIndex(t *testing.T) {
	r := New()
	s1 := session.New("repo1", "main", "/tmp/wt1", "claude", "a", 24, 80)
	s2 := session.New("repo1", "dev", "/tmp/wt2", "claude", "b", 24, 80)
	s3 := session.New("repo2", "main", "/tmp/wt3", "claude", "c", 24, 80)
	require.NoError(t, r.Add(s1))
	require.NoError(t, r.Add(s2))
	require.NoError(t, r.Add(s3))

	assert.Len(t, r.ByRepo("repo1"), 2)
	assert.Len(t, r.ByRepo("repo2"), 1)
	assert.Equal(t, 3, r.Count())
}

func TestHasLiveSessionUnder(t *testing.T) {
	r := New()
	s := session.New("repo1", "main", "/tmp/wt1", "claude", "a", 24, 80)
	require.NoError(t, r.Add(s))
	assert.True(t, r.HasLiveSessionUnder("/tmp/wt1"))
	assert.False(t, r.HasLiveSessionUnder("/tmp/wt2"))

	require.NoError(t, r.Remove(s.ID))
	assert.False(t, r.HasLiveSessionUnder("/tmp/wt1"))
}
