package builtin

import (
	"context"
	"fmt"
	"os"

	"github.com/chisel-dev/chisel/pkg/consent"
	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
	"github.com/chisel-dev/chisel/pkg/patch"
	"github.com/chisel-dev/chisel/pkg/tools"
)

func editFileTool() tools.Definition {
	return tools.Definition{
		Name: "edit_file",
		Description: "Apply one or more SEARCH/REPLACE blocks to an existing file. " +
			"Each block's search text must uniquely locate the region to change.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"path":        tools.StringProperty("Project-relative path of the file to edit"),
			"diff":        tools.StringProperty("One or more SEARCH/REPLACE blocks"),
			"description": tools.StringProperty("Short description of the change"),
		}, "path", "diff"),
		DefaultConsent: consent.PolicyAlways,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				Path        string `json:"path"`
				Diff        string `json:"diff"`
				Description string `json:"description"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			abs, err := resolveProjectPath(env.ProjectPath, args.Path)
			if err != nil {
				return tools.Result{}, err
			}

			blocks, err := patch.ParseBlocks(args.Diff)
			if err != nil {
				return tools.Result{}, err
			}

			var result *patch.Result
			err = env.Locker.WithLock(ctx, env.LockKey(), func(ctx context.Context) error {
				content, readErr := os.ReadFile(abs)
				if readErr != nil {
					return chiselerrors.Wrap(readErr, chiselerrors.ErrCodeToolExecution, "read "+args.Path)
				}

				var applyErr error
				result, applyErr = patch.ApplyWithThreshold(args.Path, string(content), blocks, env.PatchThreshold)
				if applyErr != nil {
					return applyErr
				}

				if writeErr := os.WriteFile(abs, []byte(result.Text), 0o644); writeErr != nil {
					return chiselerrors.Wrap(writeErr, chiselerrors.ErrCodeToolExecution, "write "+args.Path)
				}
				env.Mutation.RecordWrite(projectRel(args.Path))
				return nil
			})
			if err != nil {
				return tools.Result{}, err
			}

			for _, br := range result.Blocks {
				if br.Err == nil {
					env.Metrics.PatchMatched(string(br.Strategy))
				}
			}

			out, err := tools.NewResult(call.ID,
				fmt.Sprintf("applied %d of %d block(s) to %s", result.Applied, len(blocks), args.Path))
			if err != nil {
				return tools.Result{}, err
			}
			out.Display = map[string]any{
				"path": args.Path,
				"diff": result.UnifiedDiff,
			}
			return out, nil
		},
	}
}
