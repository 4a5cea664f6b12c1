package diffstore

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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "init")
	return dir
}

func TestStatusAndStage(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("two\n"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)

	status, err := s.Status()
	require.NoError(t, err)
	require.Len(t, status, 1)
	require.Equal(t, "a.txt", status[0].Path)

	require.NoError(t, s.StageFile("a.txt"))
	status, err = s.Status()
	require.NoError(t, err)
	require.Equal(t, "M", status[0].Staged)
}

func TestDiffFiles(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new\n"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)
	files, err := s.DiffFiles()
	require.NoError(t, err)
	require.Contains(t, files, "b.txt")
}

func TestFileDiffModified(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)

	out, err := s.FileDiff("a.txt")
	require.NoError(t, err)
	require.Contains(t, out, " one\n")
	require.Contains(t, out, "+two\n")
}

func TestFileDiffUntracked(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("brand new\n"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)

	out, err := s.FileDiff("b.txt")
	require.NoError(t, err)
	require.Equal(t, "+brand new\n", out)
}

func TestFileDiffDeleted(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))

	s, err := Open(dir)
	require.NoError(t, err)

	out, err := s.FileDiff("a.txt")
	require.NoError(t, err)
	require.Equal(t, "-one\n", out)
}
