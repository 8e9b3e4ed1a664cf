package gitops

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestOpenInitializesFreshRepo(t *testing.T) {
	dir := t.TempDir()

	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if repo.HasCommits() {
		t.Error("fresh repo should have no commits")
	}

	// Reopening must not re-init.
	if _, err := Open(dir); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestStageAndCommit(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	writeFile(t, dir, "a.txt", "hello\n")
	if err := repo.StageFiles([]string{"a.txt"}); err != nil {
		t.Fatalf("StageFiles: %v", err)
	}

	hash, err := repo.Commit("[chisel] wrote 1 file(s)", "", "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(hash) != 40 {
		t.Errorf("expected full commit hash, got %q", hash)
	}
	if !repo.HasCommits() {
		t.Error("expected HasCommits after commit")
	}
}

func TestModifiedFilesDetectsUnstagedChanges(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	writeFile(t, dir, "a.txt", "v1\n")
	repo.StageFiles([]string{"a.txt"})
	if _, err := repo.Commit("initial", "", ""); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// An out-of-pipeline edit plus a brand-new file.
	writeFile(t, dir, "a.txt", "v2\n")
	writeFile(t, dir, "stray.txt", "not recorded\n")

	modified, err := repo.ModifiedFiles()
	if err != nil {
		t.Fatalf("ModifiedFiles: %v", err)
	}
	if len(modified) != 2 {
		t.Fatalf("expected 2 modified paths, got %v", modified)
	}
	if modified[0] != "a.txt" || modified[1] != "stray.txt" {
		t.Errorf("expected sorted [a.txt stray.txt], got %v", modified)
	}
}

func TestAmendFoldsIntoPreviousCommit(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	writeFile(t, dir, "a.txt", "one\n")
	repo.StageFiles([]string{"a.txt"})
	first, err := repo.Commit("turn commit", "", "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, dir, "b.txt", "two\n")
	if err := repo.StageAll(); err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	amended, err := repo.Amend("", "")
	if err != nil {
		t.Fatalf("Amend: %v", err)
	}
	if amended == first {
		t.Error("amend should produce a new hash")
	}

	// Clean tree after amend: everything is in the single commit.
	modified, err := repo.ModifiedFiles()
	if err != nil {
		t.Fatalf("ModifiedFiles: %v", err)
	}
	if len(modified) != 0 {
		t.Errorf("expected clean tree after amend, got %v", modified)
	}
}

func TestCurrentBranch(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	writeFile(t, dir, "a.txt", "x\n")
	repo.StageFiles([]string{"a.txt"})
	if _, err := repo.Commit("initial", "", ""); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "master" && branch != "main" {
		t.Errorf("unexpected default branch %q", branch)
	}
}
