package mutation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chisel-dev/chisel/pkg/logging"
)

const maxConcurrentDeploys = 4

// runSideEffects redeploys every backend artifact invalidated by the turn's
// recorded mutations. A change under the shared directory invalidates all
// deployable artifacts, not just the one directly touched. Failures are
// collected as warnings; the file mutations already succeeded and are never
// rolled back because a deployment failed.
func (c *Context) runSideEffects(ctx context.Context) []string {
	deploys, removals := c.deployPlan()
	if len(deploys) == 0 && len(removals) == 0 {
		return nil
	}

	var mu sync.Mutex
	var warnings []string
	warn := func(format string, args ...any) {
		mu.Lock()
		warnings = append(warnings, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDeploys)

	for _, name := range deploys {
		g.Go(func() error {
			if err := c.opts.Backend.Deploy(gctx, name); err != nil {
				warn("deploy %s: %v", name, err)
			}
			return nil
		})
	}
	for _, name := range removals {
		g.Go(func() error {
			if err := c.opts.Backend.Remove(gctx, name); err != nil {
				warn("remove %s: %v", name, err)
			}
			return nil
		})
	}
	g.Wait()

	if len(warnings) > 0 && c.opts.Logger != nil {
		c.opts.Logger.Warn(logging.CategoryBackend, "side_effects_failed", "", map[string]any{
			"warnings": warnings,
		})
	}
	return warnings
}

// deployPlan maps recorded paths to artifact deploys and removals.
func (c *Context) deployPlan() (deploys, removals []string) {
	if c.opts.FunctionsDir == "" {
		return nil, nil
	}

	deploySet := make(map[string]struct{})
	removeSet := make(map[string]struct{})
	sharedTouched := false

	for _, p := range c.writtenFiles {
		c.classify(p, deploySet, &sharedTouched)
	}
	for _, r := range c.renamedFiles {
		c.classify(r.To, deploySet, &sharedTouched)
		if name, isRoot := c.artifactRoot(r.From); isRoot {
			removeSet[name] = struct{}{}
		}
	}
	for _, p := range c.deletedFiles {
		if name, isRoot := c.artifactRoot(p); isRoot {
			removeSet[name] = struct{}{}
			continue
		}
		c.classify(p, deploySet, &sharedTouched)
	}

	if sharedTouched {
		for _, name := range c.allArtifacts() {
			if _, gone := removeSet[name]; !gone {
				deploySet[name] = struct{}{}
			}
		}
	}

	for name := range deploySet {
		if _, gone := removeSet[name]; !gone {
			deploys = append(deploys, name)
		}
	}
	for name := range removeSet {
		removals = append(removals, name)
	}
	sort.Strings(deploys)
	sort.Strings(removals)
	return deploys, removals
}

// classify adds the artifact containing path to the deploy set, or flags the
// shared directory as touched.
func (c *Context) classify(path string, deploySet map[string]struct{}, sharedTouched *bool) {
	if c.opts.SharedDir != "" && underDir(path, c.opts.SharedDir) {
		*sharedTouched = true
		return
	}
	if name, ok := c.artifactFor(path); ok {
		deploySet[name] = struct{}{}
	}
}

// artifactFor returns the deployable artifact name containing path: the
// first path segment under the functions directory, extension stripped.
func (c *Context) artifactFor(path string) (string, bool) {
	rel, ok := relUnder(path, c.opts.FunctionsDir)
	if !ok || rel == "" {
		return "", false
	}
	first := strings.SplitN(rel, "/", 2)[0]
	return strings.TrimSuffix(first, filepath.Ext(first)), true
}

// artifactRoot reports whether path is itself an artifact's root entry
// (a file directly under the functions directory).
func (c *Context) artifactRoot(path string) (string, bool) {
	rel, ok := relUnder(path, c.opts.FunctionsDir)
	if !ok || rel == "" || strings.Contains(rel, "/") {
		return "", false
	}
	if c.opts.SharedDir != "" && underDir(path, c.opts.SharedDir) {
		return "", false
	}
	return strings.TrimSuffix(rel, filepath.Ext(rel)), true
}

// allArtifacts lists every deployable artifact in the project's functions
// directory, skipping the shared directory itself.
func (c *Context) allArtifacts() []string {
	dir := filepath.Join(c.opts.ProjectPath, c.opts.FunctionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	sharedBase := ""
	if c.opts.SharedDir != "" {
		if rel, ok := relUnder(c.opts.SharedDir, c.opts.FunctionsDir); ok {
			sharedBase = strings.SplitN(rel, "/", 2)[0]
		}
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if name == sharedBase || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(names)
	return names
}

func underDir(path, dir string) bool {
	_, ok := relUnder(path, dir)
	return ok
}

// relUnder returns path relative to dir when path is inside dir. Both are
// slash-separated project-relative paths.
func relUnder(path, dir string) (string, bool) {
	path = filepath.ToSlash(path)
	dir = strings.TrimSuffix(filepath.ToSlash(dir), "/")
	if path == dir {
		return "", true
	}
	if strings.HasPrefix(path, dir+"/") {
		return path[len(dir)+1:], true
	}
	return "", false
}
