// Package mutation accumulates every mutation performed during one model
// turn and, at turn end, runs deferred backend side-effects and produces a
// single version-control commit describing the turn.
package mutation

import (
	"context"
	"fmt"
	"strings"

	"github.com/chisel-dev/chisel/pkg/backend"
	"github.com/chisel-dev/chisel/pkg/gitops"
	"github.com/chisel-dev/chisel/pkg/logging"
)

// Rename is one recorded from→to move.
type Rename struct {
	From string
	To   string
}

// Options configures a turn's mutation context.
type Options struct {
	ProjectPath string
	BackendID   string

	// FunctionsDir and SharedDir describe the deployable layout, relative to
	// the project root.
	FunctionsDir string
	SharedDir    string

	CommitPrefix string
	AuthorName   string
	AuthorEmail  string

	// AmendExtraFiles folds unattributed working-tree changes into the turn
	// commit. See Config.AmendExtraFiles.
	AmendExtraFiles bool

	Backend backend.Client
	Logger  *logging.Logger
}

// Context records the facts of one turn. Every path in it corresponds to an
// operation that already completed against the filesystem; handlers record
// after success, never before. It is mutated only by tool handlers running
// under the project's resource lock, so it needs no locking of its own.
type Context struct {
	opts Options

	writtenFiles      []string
	deletedFiles      []string
	renamedFiles      []Rename
	dependenciesAdded []string
	queryCount        int
	turnSummary       string

	seen      map[string]struct{}
	finalized bool
}

// CommitResult is produced once per turn at commit time.
type CommitResult struct {
	CommitHash string

	// ExtraFiles are working-tree changes this turn never recorded: edits
	// made by something outside the pipeline. They are folded into the same
	// commit (unless opted out) and surfaced so the caller can warn.
	ExtraFiles []string

	// Warnings carries non-fatal side-effect failures.
	Warnings []string
}

// NewContext creates the mutation context for one turn.
func NewContext(opts Options) *Context {
	if opts.Backend == nil {
		opts.Backend = backend.NopClient{}
	}
	return &Context{opts: opts, seen: make(map[string]struct{})}
}

// RecordWrite records a completed file write or creation.
func (c *Context) RecordWrite(path string) {
	if c.mark("w:" + path) {
		c.writtenFiles = append(c.writtenFiles, path)
	}
}

// RecordDelete records a completed file deletion.
func (c *Context) RecordDelete(path string) {
	if c.mark("d:" + path) {
		c.deletedFiles = append(c.deletedFiles, path)
	}
}

// RecordRename records a completed rename.
func (c *Context) RecordRename(from, to string) {
	if c.mark("r:" + from + "\x00" + to) {
		c.renamedFiles = append(c.renamedFiles, Rename{From: from, To: to})
	}
}

// RecordDependency records a package added to the project.
func (c *Context) RecordDependency(name string) {
	if c.mark("p:" + name) {
		c.dependenciesAdded = append(c.dependenciesAdded, name)
	}
}

// RecordQuery counts one executed SQL statement.
func (c *Context) RecordQuery() {
	c.queryCount++
}

// SetSummary sets the optional model-authored turn summary used in the
// commit message.
func (c *Context) SetSummary(summary string) {
	c.turnSummary = strings.TrimSpace(summary)
}

func (c *Context) mark(key string) bool {
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

// Empty reports whether nothing at all was recorded this turn.
func (c *Context) Empty() bool {
	return len(c.writtenFiles) == 0 &&
		len(c.deletedFiles) == 0 &&
		len(c.renamedFiles) == 0 &&
		len(c.dependenciesAdded) == 0 &&
		c.queryCount == 0
}

// WrittenFiles returns the recorded writes in order.
func (c *Context) WrittenFiles() []string {
	return append([]string{}, c.writtenFiles...)
}

// QueryCount returns the number of executed queries.
func (c *Context) QueryCount() int {
	return c.queryCount
}

// Summary returns the turn summary, if one was set.
func (c *Context) Summary() string {
	return c.turnSummary
}

// Finalize runs the turn's deferred side-effects and produces the turn
// commit. It must be called exactly once, at normal completion or at
// cancellation; partial turns still commit whatever was recorded.
// Side-effect failures never fail the turn; they come back as warnings.
func (c *Context) Finalize(ctx context.Context) (*CommitResult, error) {
	if c.finalized {
		return nil, fmt.Errorf("mutation context already finalized")
	}
	c.finalized = true

	result := &CommitResult{}

	if c.Empty() {
		return result, nil
	}

	result.Warnings = c.runSideEffects(ctx)

	repo, err := gitops.Open(c.opts.ProjectPath)
	if err != nil {
		return nil, err
	}

	if err := repo.StageFiles(c.stagePaths()); err != nil {
		return nil, err
	}

	hash, err := repo.Commit(c.commitMessage(), c.opts.AuthorName, c.opts.AuthorEmail)
	if err != nil {
		return nil, err
	}
	result.CommitHash = hash

	extras, amended, err := c.foldExtraFiles(repo)
	if err != nil {
		return nil, err
	}
	result.ExtraFiles = extras
	if amended != "" {
		result.CommitHash = amended
	}

	c.logf("turn_committed", map[string]any{
		"commit":      result.CommitHash,
		"extra_files": len(result.ExtraFiles),
		"warnings":    len(result.Warnings),
	})

	return result, nil
}

// stagePaths returns every recorded path that needs staging: writes, both
// ends of renames, and deletions.
func (c *Context) stagePaths() []string {
	paths := append([]string{}, c.writtenFiles...)
	for _, r := range c.renamedFiles {
		paths = append(paths, r.From, r.To)
	}
	paths = append(paths, c.deletedFiles...)
	return paths
}

// foldExtraFiles amends still-modified working-tree paths into the turn
// commit and returns the paths this turn never recorded, plus the amended
// hash when an amend happened. Recorded-but-leftover paths (e.g. a staged
// deletion go-git could not Add individually) are swept up without being
// reported as extras. With the amend opted out, extras stay in the working
// tree and are only reported.
func (c *Context) foldExtraFiles(repo *gitops.Repo) (extras []string, amended string, err error) {
	leftovers, err := repo.ModifiedFiles()
	if err != nil {
		return nil, "", err
	}
	if len(leftovers) == 0 {
		return nil, "", nil
	}

	recorded := make(map[string]struct{})
	for _, p := range c.stagePaths() {
		recorded[p] = struct{}{}
	}
	for _, p := range leftovers {
		if _, ok := recorded[p]; !ok {
			extras = append(extras, p)
		}
	}

	if len(extras) > 0 && !c.opts.AmendExtraFiles {
		return extras, "", nil
	}

	if err := repo.StageAll(); err != nil {
		return nil, "", err
	}
	amended, err = repo.Amend(c.opts.AuthorName, c.opts.AuthorEmail)
	if err != nil {
		return nil, "", err
	}
	return extras, amended, nil
}

// commitMessage builds the human-readable turn summary line. Count segments
// appear only when non-zero.
func (c *Context) commitMessage() string {
	var parts []string
	if n := len(c.writtenFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("wrote %d file(s)", n))
	}
	if n := len(c.renamedFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("renamed %d file(s)", n))
	}
	if n := len(c.deletedFiles); n > 0 {
		parts = append(parts, fmt.Sprintf("deleted %d file(s)", n))
	}
	if len(c.dependenciesAdded) > 0 {
		parts = append(parts, fmt.Sprintf("added %s package(s)", strings.Join(c.dependenciesAdded, ", ")))
	}
	if c.queryCount > 0 {
		parts = append(parts, fmt.Sprintf("executed %d SQL queries", c.queryCount))
	}

	msg := c.opts.CommitPrefix
	if c.turnSummary != "" {
		msg += " " + c.turnSummary
	}
	if len(parts) > 0 {
		msg += " - " + strings.Join(parts, ", ")
	}
	return msg
}

func (c *Context) logf(eventType string, details map[string]any) {
	if c.opts.Logger == nil {
		return
	}
	c.opts.Logger.Info(logging.CategoryTurn, eventType, "", details)
}
