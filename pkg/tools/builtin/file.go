package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chisel-dev/chisel/pkg/consent"
	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
	"github.com/chisel-dev/chisel/pkg/tools"
)

func readFileTool() tools.Definition {
	return tools.Definition{
		Name:        "read_file",
		Description: "Read the contents of a file in the project.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"path": tools.StringProperty("Project-relative path of the file to read"),
		}, "path"),
		DefaultConsent: consent.PolicyAlways,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				Path string `json:"path"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			abs, err := resolveProjectPath(env.ProjectPath, args.Path)
			if err != nil {
				return tools.Result{}, err
			}

			var content []byte
			err = env.Locker.WithLock(ctx, env.LockKey(), func(ctx context.Context) error {
				var readErr error
				content, readErr = os.ReadFile(abs)
				return readErr
			})
			if err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "read "+args.Path)
			}
			return tools.NewResult(call.ID, string(content))
		},
	}
}

func writeFileTool() tools.Definition {
	return tools.Definition{
		Name:        "write_file",
		Description: "Create or overwrite a file in the project with the given content.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"path":    tools.StringProperty("Project-relative path of the file to write"),
			"content": tools.StringProperty("Full file content"),
		}, "path", "content"),
		DefaultConsent: consent.PolicyAlways,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			abs, err := resolveProjectPath(env.ProjectPath, args.Path)
			if err != nil {
				return tools.Result{}, err
			}

			err = env.Locker.WithLock(ctx, env.LockKey(), func(ctx context.Context) error {
				if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(abs, []byte(args.Content), 0o644); err != nil {
					return err
				}
				env.Mutation.RecordWrite(projectRel(args.Path))
				return nil
			})
			if err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "write "+args.Path)
			}
			return tools.NewResult(call.ID, fmt.Sprintf("wrote %s (%d bytes)", args.Path, len(args.Content)))
		},
	}
}

func deleteFileTool() tools.Definition {
	return tools.Definition{
		Name:        "delete_file",
		Description: "Delete a file from the project.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"path": tools.StringProperty("Project-relative path of the file to delete"),
		}, "path"),
		DefaultConsent: consent.PolicyAsk,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				Path string `json:"path"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			abs, err := resolveProjectPath(env.ProjectPath, args.Path)
			if err != nil {
				return tools.Result{}, err
			}

			err = env.Locker.WithLock(ctx, env.LockKey(), func(ctx context.Context) error {
				if err := os.Remove(abs); err != nil {
					return err
				}
				env.Mutation.RecordDelete(projectRel(args.Path))
				return nil
			})
			if err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "delete "+args.Path)
			}
			return tools.NewResult(call.ID, "deleted "+args.Path)
		},
	}
}

func renameFileTool() tools.Definition {
	return tools.Definition{
		Name:        "rename_file",
		Description: "Rename or move a file within the project.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"from": tools.StringProperty("Current project-relative path"),
			"to":   tools.StringProperty("New project-relative path"),
		}, "from", "to"),
		DefaultConsent: consent.PolicyAlways,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				From string `json:"from"`
				To   string `json:"to"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			fromAbs, err := resolveProjectPath(env.ProjectPath, args.From)
			if err != nil {
				return tools.Result{}, err
			}
			toAbs, err := resolveProjectPath(env.ProjectPath, args.To)
			if err != nil {
				return tools.Result{}, err
			}

			err = env.Locker.WithLock(ctx, env.LockKey(), func(ctx context.Context) error {
				if err := os.MkdirAll(filepath.Dir(toAbs), 0o755); err != nil {
					return err
				}
				if err := os.Rename(fromAbs, toAbs); err != nil {
					return err
				}
				env.Mutation.RecordRename(projectRel(args.From), projectRel(args.To))
				return nil
			})
			if err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution,
					fmt.Sprintf("rename %s to %s", args.From, args.To))
			}
			return tools.NewResult(call.ID, fmt.Sprintf("renamed %s to %s", args.From, args.To))
		},
	}
}
