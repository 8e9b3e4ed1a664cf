package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chisel-dev/chisel/pkg/backend"
	"github.com/chisel-dev/chisel/pkg/keyedlock"
	"github.com/chisel-dev/chisel/pkg/mutation"
	"github.com/chisel-dev/chisel/pkg/tools"
)

func testEnv(t *testing.T) (*tools.Registry, *tools.Env, *backend.Fake) {
	t.Helper()
	dir := t.TempDir()
	fake := backend.NewFake()
	env := &tools.Env{
		ProjectPath: dir,
		Mutation: mutation.NewContext(mutation.Options{
			ProjectPath: dir,
			Backend:     fake,
		}),
		Locker:  keyedlock.New(),
		Backend: fake,
	}
	registry := tools.NewRegistry()
	RegisterAll(registry)
	return registry, env, fake
}

func execute(t *testing.T, r *tools.Registry, env *tools.Env, name string, args map[string]any) tools.Result {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return r.Execute(context.Background(), tools.Call{ID: "call-1", Name: name, Arguments: raw}, env)
}

func TestWriteThenReadFile(t *testing.T) {
	r, env, _ := testEnv(t)

	result := execute(t, r, env, "write_file", map[string]any{
		"path":    "src/App.tsx",
		"content": "export default function App() {}\n",
	})
	require.False(t, result.IsError, result.Content)
	require.Equal(t, []string{"src/App.tsx"}, env.Mutation.WrittenFiles())

	result = execute(t, r, env, "read_file", map[string]any{"path": "src/App.tsx"})
	require.False(t, result.IsError, result.Content)
	require.Equal(t, "export default function App() {}\n", result.Content)
}

func TestWriteFileRejectsEscapingPath(t *testing.T) {
	r, env, _ := testEnv(t)

	result := execute(t, r, env, "write_file", map[string]any{
		"path":    "../outside.txt",
		"content": "nope",
	})
	require.True(t, result.IsError)
	require.Empty(t, env.Mutation.WrittenFiles(), "failed writes must not be recorded")
}

func TestDeleteFile(t *testing.T) {
	r, env, _ := testEnv(t)
	path := filepath.Join(env.ProjectPath, "old.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	result := execute(t, r, env, "delete_file", map[string]any{"path": "old.ts"})
	require.False(t, result.IsError, result.Content)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestDeleteMissingFileIsErrorNotRecorded(t *testing.T) {
	r, env, _ := testEnv(t)

	result := execute(t, r, env, "delete_file", map[string]any{"path": "ghost.ts"})
	require.True(t, result.IsError)
	require.True(t, env.Mutation.Empty())
}

func TestRenameFile(t *testing.T) {
	r, env, _ := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.ProjectPath, "a.ts"), []byte("x"), 0o644))

	result := execute(t, r, env, "rename_file", map[string]any{"from": "a.ts", "to": "lib/b.ts"})
	require.False(t, result.IsError, result.Content)

	_, err := os.Stat(filepath.Join(env.ProjectPath, "lib", "b.ts"))
	require.NoError(t, err)
}

func TestEditFileAppliesBlocks(t *testing.T) {
	r, env, _ := testEnv(t)
	original := "function greet() {\n  return \"hello\"\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.ProjectPath, "greet.ts"), []byte(original), 0o644))

	diff := "<<<<<<< SEARCH\n  return \"hello\"\n=======\n  return \"goodbye\"\n>>>>>>> REPLACE\n"
	result := execute(t, r, env, "edit_file", map[string]any{"path": "greet.ts", "diff": diff})
	require.False(t, result.IsError, result.Content)
	require.Contains(t, result.Content, "applied 1 of 1")
	require.NotEmpty(t, result.Display["diff"])

	updated, err := os.ReadFile(filepath.Join(env.ProjectPath, "greet.ts"))
	require.NoError(t, err)
	require.Equal(t, "function greet() {\n  return \"goodbye\"\n}\n", string(updated))
	require.Equal(t, []string{"greet.ts"}, env.Mutation.WrittenFiles())
}

func TestEditFileNoMatchLeavesFileUntouched(t *testing.T) {
	r, env, _ := testEnv(t)
	original := "const a = 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.ProjectPath, "a.ts"), []byte(original), 0o644))

	diff := "<<<<<<< SEARCH\nsomething entirely different\n=======\nreplacement\n>>>>>>> REPLACE\n"
	result := execute(t, r, env, "edit_file", map[string]any{"path": "a.ts", "diff": diff})
	require.True(t, result.IsError)

	content, err := os.ReadFile(filepath.Join(env.ProjectPath, "a.ts"))
	require.NoError(t, err)
	require.Equal(t, original, string(content))
	require.True(t, env.Mutation.Empty())
}

func TestAddDependencyUpdatesManifest(t *testing.T) {
	r, env, _ := testEnv(t)
	manifest := `{"name":"demo","dependencies":{"react":"^18.0.0"}}`
	require.NoError(t, os.WriteFile(filepath.Join(env.ProjectPath, "package.json"), []byte(manifest), 0o644))

	result := execute(t, r, env, "add_dependency", map[string]any{"packages": []string{"zod", "uuid"}})
	require.False(t, result.IsError, result.Content)

	data, err := os.ReadFile(filepath.Join(env.ProjectPath, "package.json"))
	require.NoError(t, err)
	var parsed struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, "^18.0.0", parsed.Dependencies["react"])
	require.Equal(t, "latest", parsed.Dependencies["zod"])
	require.Equal(t, "latest", parsed.Dependencies["uuid"])
	require.Contains(t, env.Mutation.WrittenFiles(), "package.json")
}

func TestExecuteSQLRecordsQuery(t *testing.T) {
	r, env, fake := testEnv(t)
	fake.QueryRows = []map[string]any{{"id": float64(1), "name": "alice"}}

	result := execute(t, r, env, "execute_sql", map[string]any{"query": "SELECT * FROM users"})
	require.False(t, result.IsError, result.Content)
	require.Contains(t, result.Content, "1 row(s)")
	require.Equal(t, 1, env.Mutation.QueryCount())
	require.Equal(t, []string{"SELECT * FROM users"}, fake.Queries)
}

func TestExecuteSQLFailureNotCounted(t *testing.T) {
	r, env, fake := testEnv(t)
	fake.QueryErr = os.ErrPermission

	result := execute(t, r, env, "execute_sql", map[string]any{"query": "DROP TABLE users"})
	require.True(t, result.IsError)
	require.Equal(t, 0, env.Mutation.QueryCount())
}

func TestSetTurnSummary(t *testing.T) {
	r, env, _ := testEnv(t)

	result := execute(t, r, env, "set_turn_summary", map[string]any{"summary": "add login page"})
	require.False(t, result.IsError, result.Content)
	require.Equal(t, "add login page", env.Mutation.Summary())
}
