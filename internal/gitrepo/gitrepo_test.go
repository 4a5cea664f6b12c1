package gitrepo

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t.com",
			"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t.com")
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	run("add", ".")
	run("commit", "-m", "init")
	return dir
}

func TestAddRepoAndCreateWorktree(t *testing.T) {
	repoPath := initRepo(t)
	base := t.TempDir()
	c := New(base, nil, nil)

	repo, err := c.AddRepo("myrepo", repoPath)
	require.NoError(t, err)
	require.Equal(t, repoPath, repo.Path)

	wt, err := c.CreateWorktree(repo.ID, "feature-x")
	require.NoError(t, err)
	require.DirExists(t, wt.Path)

	listed := c.ListWorktrees(repo.ID)
	require.Len(t, listed, 1)
}

// TestAddRepoIdempotentOnCanonicalPath covers property P5: registering
// the same path twice, even under a different name and via a
// non-canonical (relative, unclean) form, yields the same repo entry
// rather than a duplicate.
func TestAddRepoIdempotentOnCanonicalPath(t *testing.T) {
	repoPath := initRepo(t)
	base := t.TempDir()
	c := New(base, nil, nil)

	first, err := c.AddRepo("myrepo", repoPath)
	require.NoError(t, err)

	second, err := c.AddRepo("alias", repoPath+string(filepath.Separator)+".")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, c.ListRepos(), 1)
}

// TestAddRepoOnLinkedWorktreeRegistersMainRepo covers property P6:
// AddRepo given a linked worktree's path walks up and registers the
// main repository instead of the worktree directory itself.
func TestAddRepoOnLinkedWorktreeRegistersMainRepo(t *testing.T) {
	repoPath := initRepo(t)
	base := t.TempDir()
	c := New(base, nil, nil)

	main, err := c.AddRepo("myrepo", repoPath)
	require.NoError(t, err)
	wt, err := c.CreateWorktree(main.ID, "feature-x")
	require.NoError(t, err)

	base2 := t.TempDir()
	c2 := New(base2, nil, nil)
	fromWorktree, err := c2.AddRepo("via-worktree", wt.Path)
	require.NoError(t, err)

	require.Equal(t, repoPath, fromWorktree.Path)
	require.Equal(t, main.ID, fromWorktree.ID)
}

func TestRemoveWorktreeBlockedByLiveSession(t *testing.T) {
	repoPath := initRepo(t)
	base := t.TempDir()
	c := New(base, func(path string) bool { return true }, nil)

	repo, err := c.AddRepo("myrepo", repoPath)
	require.NoError(t, err)
	wt, err := c.CreateWorktree(repo.ID, "feature-x")
	require.NoError(t, err)

	err = c.RemoveWorktree(repo.ID, wt.Branch, false, nil)
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestRemoveWorktreeCascadeDestroysSessionsFirst(t *testing.T) {
	repoPath := initRepo(t)
	base := t.TempDir()
	live := true
	c := New(base, func(path string) bool { return live }, nil)

	repo, err := c.AddRepo("myrepo", repoPath)
	require.NoError(t, err)
	wt, err := c.CreateWorktree(repo.ID, "feature-x")
	require.NoError(t, err)

	var destroyedPath string
	err = c.RemoveWorktree(repo.ID, wt.Branch, true, func(path string) {
		destroyedPath = path
		live = false
	})
	require.NoError(t, err)
	require.Equal(t, wt.Path, destroyedPath)
	require.NoDirExists(t, wt.Path)
}

func TestRemoveRepoRefusesWithWorktrees(t *testing.T) {
	repoPath := initRepo(t)
	base := t.TempDir()
	c := New(base, nil, nil)

	repo, err := c.AddRepo("myrepo", repoPath)
	require.NoError(t, err)
	_, err = c.CreateWorktree(repo.ID, "feature-x")
	require.NoError(t, err)

	err = c.RemoveRepo(repo.ID, false)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	err = c.RemoveRepo(repo.ID, true)
	require.NoError(t, err)
}
