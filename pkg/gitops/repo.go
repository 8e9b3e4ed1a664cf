// Package gitops wraps the go-git operations the mutation pipeline needs:
// staging, committing, amending, and working-tree status scans.
package gitops

import (
	"fmt"
	"sort"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
)

// DefaultAuthorName and DefaultAuthorEmail identify pipeline-authored commits
// when the caller supplies no identity.
const (
	DefaultAuthorName  = "chisel"
	DefaultAuthorEmail = "agent@chisel.local"
)

// Repo is a handle to one project's repository.
type Repo struct {
	path string
	repo *git.Repository
}

// Open opens an existing repository at path, initializing one if absent so a
// fresh project can still get per-turn commits.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if err == git.ErrRepositoryNotExists {
		repo, err = git.PlainInit(path, false)
	}
	if err != nil {
		return nil, chiselerrors.Wrap(err, chiselerrors.ErrCodeGitOpen, "open repository").
			WithContext("path", path)
	}
	return &Repo{path: path, repo: repo}, nil
}

// Path returns the repository root.
func (r *Repo) Path() string {
	return r.path
}

// StageFiles stages the given paths (relative to the repo root). Paths that
// fail to stage individually (e.g. already-deleted files) are skipped; the
// deletion itself is captured by a later StageAll or status scan.
func (r *Repo) StageFiles(paths []string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return chiselerrors.Wrap(err, chiselerrors.ErrCodeGitStage, "get worktree")
	}

	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			continue
		}
	}
	return nil
}

// StageAll stages every change in the working tree (git add -A).
func (r *Repo) StageAll() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return chiselerrors.Wrap(err, chiselerrors.ErrCodeGitStage, "get worktree")
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return chiselerrors.Wrap(err, chiselerrors.ErrCodeGitStage, "stage all")
	}
	return nil
}

// Commit creates a commit from the staged changes and returns its hash.
func (r *Repo) Commit(message, authorName, authorEmail string) (string, error) {
	return r.commit(message, authorName, authorEmail, false)
}

// Amend folds the currently staged changes into the previous commit, keeping
// its message, and returns the new hash.
func (r *Repo) Amend(authorName, authorEmail string) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", chiselerrors.Wrap(err, chiselerrors.ErrCodeGitCommit, "resolve HEAD for amend")
	}
	prev, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", chiselerrors.Wrap(err, chiselerrors.ErrCodeGitCommit, "load HEAD commit for amend")
	}
	return r.commit(prev.Message, authorName, authorEmail, true)
}

func (r *Repo) commit(message, authorName, authorEmail string, amend bool) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", chiselerrors.Wrap(err, chiselerrors.ErrCodeGitCommit, "get worktree")
	}

	if authorName == "" {
		authorName = DefaultAuthorName
	}
	if authorEmail == "" {
		authorEmail = DefaultAuthorEmail
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Amend: amend,
		// A turn that only ran queries still gets its single commit.
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", chiselerrors.Wrap(err, chiselerrors.ErrCodeGitCommit, "commit").
			WithContext("amend", amend)
	}
	return hash.String(), nil
}

// ModifiedFiles returns every path the working tree or index considers
// changed, sorted for stable output.
func (r *Repo) ModifiedFiles() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, chiselerrors.Wrap(err, chiselerrors.ErrCodeGitOpen, "get worktree")
	}

	status, err := wt.Status()
	if err != nil {
		return nil, chiselerrors.Wrap(err, chiselerrors.ErrCodeGitOpen, "worktree status")
	}

	var modified []string
	for path, st := range status {
		if st.Staging != git.Unmodified || st.Worktree != git.Unmodified {
			modified = append(modified, path)
		}
	}
	sort.Strings(modified)
	return modified, nil
}

// CurrentBranch returns the short branch name, or the abbreviated hash when
// HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return head.Hash().String()[:8], nil
}

// HasCommits reports whether the repository has at least one commit.
func (r *Repo) HasCommits() bool {
	_, err := r.repo.Head()
	return err == nil
}
