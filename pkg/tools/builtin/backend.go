package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/chisel-dev/chisel/pkg/consent"
	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
	"github.com/chisel-dev/chisel/pkg/tools"
)

const maxQueryResultRows = 100

func addDependencyTool() tools.Definition {
	return tools.Definition{
		Name:        "add_dependency",
		Description: "Add one or more npm packages to the project's dependencies.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"packages": tools.ArrayProperty("Package names to add",
				tools.StringProperty("npm package name")),
		}, "packages"),
		DefaultConsent: consent.PolicyAsk,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				Packages []string `json:"packages"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			if len(args.Packages) == 0 {
				return tools.Result{}, chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "no packages given")
			}

			err := env.Locker.WithLock(ctx, env.LockKey(), func(ctx context.Context) error {
				if err := addToManifest(env.ProjectPath, args.Packages); err != nil {
					return err
				}
				env.Mutation.RecordWrite("package.json")
				for _, name := range args.Packages {
					env.Mutation.RecordDependency(name)
				}
				return nil
			})
			if err != nil {
				return tools.Result{}, err
			}
			return tools.NewResult(call.ID, "added "+strings.Join(args.Packages, ", "))
		},
	}
}

// addToManifest inserts each package into package.json's dependencies map
// at the "latest" range, preserving the rest of the manifest.
func addToManifest(projectPath string, packages []string) error {
	abs, err := resolveProjectPath(projectPath, "package.json")
	if err != nil {
		return err
	}

	manifest := map[string]any{}
	if data, err := os.ReadFile(abs); err == nil {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "parse package.json")
		}
	}

	deps, _ := manifest["dependencies"].(map[string]any)
	if deps == nil {
		deps = map[string]any{}
	}
	for _, name := range packages {
		if _, exists := deps[name]; !exists {
			deps[name] = "latest"
		}
	}
	manifest["dependencies"] = deps

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "encode package.json")
	}
	if err := os.WriteFile(abs, append(out, '\n'), 0o644); err != nil {
		return chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "write package.json")
	}
	return nil
}

func executeSQLTool() tools.Definition {
	return tools.Definition{
		Name:        "execute_sql",
		Description: "Run a SQL statement against the project's backend database.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"query": tools.StringProperty("SQL statement to execute"),
		}, "query"),
		DefaultConsent: consent.PolicyAsk,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			if strings.TrimSpace(args.Query) == "" {
				return tools.Result{}, chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "query is empty")
			}

			rows, err := env.Backend.RunQuery(ctx, args.Query)
			if err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "execute query")
			}
			env.Mutation.RecordQuery()

			shown := rows
			truncated := false
			if len(shown) > maxQueryResultRows {
				shown = shown[:maxQueryResultRows]
				truncated = true
			}

			payload, err := json.Marshal(shown)
			if err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeToolExecution, "encode query result")
			}
			content := fmt.Sprintf("%d row(s)", len(rows))
			if truncated {
				content = fmt.Sprintf("%d row(s), showing first %d", len(rows), maxQueryResultRows)
			}
			content += "\n" + string(payload)

			out, err := tools.NewResult(call.ID, content)
			if err != nil {
				return tools.Result{}, err
			}
			out.Display = map[string]any{
				"rows":      shown,
				"row_count": len(rows),
			}
			return out, nil
		},
	}
}

func setTurnSummaryTool() tools.Definition {
	return tools.Definition{
		Name:        "set_turn_summary",
		Description: "Set a one-line summary of this turn's changes, used in the commit message.",
		Parameters: tools.ObjectSchema(map[string]tools.Property{
			"summary": tools.StringProperty("One-line change summary"),
		}, "summary"),
		DefaultConsent: consent.PolicyAlways,
		Handler: func(ctx context.Context, call tools.Call, env *tools.Env) (tools.Result, error) {
			var args struct {
				Summary string `json:"summary"`
			}
			if err := call.Unmarshal(&args); err != nil {
				return tools.Result{}, chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "decode arguments")
			}
			env.Mutation.SetSummary(args.Summary)
			return tools.NewResult(call.ID, "summary recorded")
		},
	}
}
