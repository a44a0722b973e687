package gateway

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	run("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestShortDiffReportsNoChangesOnCleanRepo(t *testing.T) {
	dir := initGitRepo(t)
	out, err := shortDiff(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFullDiffShowsModifiedContent(t *testing.T) {
	dir := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\nworld\n"), 0o644))

	out, err := fullDiff(context.Background(), dir)
	require.NoError(t, err)
	require.Contains(t, out, "world")
}

func TestShortDiffSummarizesModifiedContent(t *testing.T) {
	dir := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\nworld\n"), 0o644))

	out, err := shortDiff(context.Background(), dir)
	require.NoError(t, err)
	require.Contains(t, out, "a.txt")
}
