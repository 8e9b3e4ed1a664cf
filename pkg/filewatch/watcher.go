// Package filewatch observes a project tree on disk during a turn. The
// pipeline records its own mutations; anything the watcher sees that no
// tool recorded is an out-of-pipeline edit, which the commit step folds in
// and the caller warns about.
package filewatch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
)

// ChangeType describes the kind of file change observed.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// Directories never watched. Dependency trees and VCS internals churn
// constantly and are not user edits.
var ignoredDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"dist":         {},
	"build":        {},
	".chisel":      {},
}

// FileChange records one observed change, by project-relative path.
type FileChange struct {
	Path    string
	Type    ChangeType
	ModTime time.Time
}

// Watcher tracks disk changes under a project root.
type Watcher struct {
	root string
	fw   *fsnotify.Watcher

	mu      sync.Mutex
	changes map[string]FileChange

	done   chan struct{}
	closed sync.Once
}

// New starts watching the project tree rooted at root, recursively.
func New(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, chiselerrors.Wrap(err, chiselerrors.ErrCodeInternal, "create file watcher")
	}

	w := &Watcher{
		root:    root,
		fw:      fw,
		changes: make(map[string]FileChange),
		done:    make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := ignoredDirs[d.Name()]; skip && path != dir {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
	if err != nil {
		return chiselerrors.Wrap(err, chiselerrors.ErrCodeInternal, "watch project tree").
			WithContext("dir", dir)
	}
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.record(ev)
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Watch errors degrade attribution, never the pipeline.
		}
	}
}

func (w *Watcher) record(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if _, skip := ignoredDirs[part]; skip {
			return
		}
	}

	var ct ChangeType
	switch {
	case ev.Has(fsnotify.Create):
		ct = ChangeCreated
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New subtrees need their own watch to keep coverage recursive.
			_ = w.addTree(ev.Name)
			return
		}
	case ev.Has(fsnotify.Write):
		ct = ChangeModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		ct = ChangeDeleted
	default:
		return
	}

	w.mu.Lock()
	prev, seen := w.changes[rel]
	// Creation followed by writes stays a creation.
	if seen && prev.Type == ChangeCreated && ct == ChangeModified {
		ct = ChangeCreated
	}
	w.changes[rel] = FileChange{Path: rel, Type: ct, ModTime: time.Now()}
	w.mu.Unlock()
}

// Changes returns every change observed since the last Reset, sorted by
// path.
func (w *Watcher) Changes() []FileChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]FileChange, 0, len(w.changes))
	for _, c := range w.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Unattributed returns observed paths not present in recorded, preserving
// the watcher's sorted order. recorded paths are project-relative.
func (w *Watcher) Unattributed(recorded []string) []string {
	known := make(map[string]struct{}, len(recorded))
	for _, p := range recorded {
		known[p] = struct{}{}
	}
	var out []string
	for _, c := range w.Changes() {
		if _, ok := known[c.Path]; !ok {
			out = append(out, c.Path)
		}
	}
	return out
}

// Reset clears the accumulated changes, typically at turn start.
func (w *Watcher) Reset() {
	w.mu.Lock()
	w.changes = make(map[string]FileChange)
	w.mu.Unlock()
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}
