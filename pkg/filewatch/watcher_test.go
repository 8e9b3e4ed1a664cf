package filewatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForChange(t *testing.T, w *Watcher, path string) FileChange {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		for _, c := range w.Changes() {
			if c.Path == path {
				return c
			}
		}
		select {
		case <-deadline:
			t.Fatalf("no change observed for %s; saw %v", path, w.Changes())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcherSeesCreateAndModify(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte("x"), 0o644))
	change := waitForChange(t, w, "a.ts")
	require.Equal(t, ChangeCreated, change.Type)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte("xy"), 0o644))
	change = waitForChange(t, w, "a.ts")
	require.Equal(t, ChangeCreated, change.Type, "create then write stays a creation")
}

func TestWatcherSeesDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Remove(path))
	change := waitForChange(t, w, "gone.ts")
	require.Equal(t, ChangeDeleted, change.Type)
}

func TestWatcherIgnoresGitInternals(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "index"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.ts"), []byte("x"), 0o644))

	waitForChange(t, w, "visible.ts")
	for _, c := range w.Changes() {
		require.NotContains(t, c.Path, ".git")
	}
}

func TestWatcherUnattributed(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "recorded.ts"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rogue.ts"), []byte("x"), 0o644))
	waitForChange(t, w, "recorded.ts")
	waitForChange(t, w, "rogue.ts")

	require.Equal(t, []string{"rogue.ts"}, w.Unattributed([]string{"recorded.ts"}))
}

func TestWatcherReset(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte("x"), 0o644))
	waitForChange(t, w, "a.ts")

	w.Reset()
	require.Empty(t, w.Changes())
}
