// Package builtin registers the standard mutation tools: file reads and
// writes, search/replace edits, dependency additions, SQL execution, and
// the end-of-turn summary. Every handler that touches the working tree
// runs under the project's resource lock and records completed operations
// into the turn's mutation context.
package builtin

import (
	"path/filepath"
	"strings"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
	"github.com/chisel-dev/chisel/pkg/tools"
)

// RegisterAll adds every builtin tool to the registry.
func RegisterAll(r *tools.Registry) {
	r.MustRegister(readFileTool())
	r.MustRegister(writeFileTool())
	r.MustRegister(deleteFileTool())
	r.MustRegister(renameFileTool())
	r.MustRegister(editFileTool())
	r.MustRegister(addDependencyTool())
	r.MustRegister(executeSQLTool())
	r.MustRegister(setTurnSummaryTool())
}

// resolveProjectPath joins a model-supplied relative path with the project
// root, rejecting absolute paths and traversal outside the project.
func resolveProjectPath(projectRoot, rel string) (string, error) {
	if rel == "" {
		return "", chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "path is empty")
	}
	if filepath.IsAbs(rel) {
		return "", chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "path must be relative to the project root").
			WithContext("path", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "path escapes the project root").
			WithContext("path", rel)
	}
	return filepath.Join(projectRoot, clean), nil
}

// projectRel normalizes a model-supplied path to the slash-separated
// project-relative form used in mutation records and commit staging.
func projectRel(rel string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
}
