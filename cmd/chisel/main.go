// Command chisel drives the agent mutation pipeline against a local
// project. Its primary mode replays a JSONL stream of model events through
// the orchestrator, producing one commit per turn; auxiliary subcommands
// inspect consent overrides and stored transcripts.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/chisel-dev/chisel/pkg/backend"
	"github.com/chisel-dev/chisel/pkg/config"
	"github.com/chisel-dev/chisel/pkg/consent"
	"github.com/chisel-dev/chisel/pkg/filewatch"
	"github.com/chisel-dev/chisel/pkg/keyedlock"
	"github.com/chisel-dev/chisel/pkg/logging"
	"github.com/chisel-dev/chisel/pkg/mutation"
	"github.com/chisel-dev/chisel/pkg/storage"
	"github.com/chisel-dev/chisel/pkg/stream"
	"github.com/chisel-dev/chisel/pkg/telemetry"
	"github.com/chisel-dev/chisel/pkg/tools"
	"github.com/chisel-dev/chisel/pkg/tools/builtin"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "chisel:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}
	switch args[0] {
	case "run":
		return runTurn(args[1:])
	case "consent":
		return runConsent(args[1:])
	case "transcript":
		return runTranscript(args[1:])
	case "version":
		fmt.Printf("chisel %s (%s)\n", version, commit)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: chisel <command> [flags]

commands:
  run         replay a model event stream against a project
  consent     list or change per-tool consent overrides
  transcript  print a stored turn transcript
  version     print version`)
}

func runTurn(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	projectPath := fs.String("project", ".", "project directory")
	eventsPath := fs.String("events", "", "JSONL event stream to replay ('-' for stdin)")
	configPath := fs.String("config", "", "config file (defaults to <project>/chisel.yaml)")
	turnID := fs.String("turn", "", "turn id (defaults to a new UUID)")
	approveAll := fs.Bool("approve-all", false, "grant every consent prompt")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *eventsPath == "" {
		return errors.New("run: -events is required")
	}

	cfg, err := config.Load(*projectPath, *configPath)
	if err != nil {
		return err
	}

	id := *turnID
	if id == "" {
		id = uuid.NewString()
	}

	logger, err := logging.NewLogger(filepath.Join(cfg.DataDir, "logs"), id)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.SetProject(cfg.ProjectPath)

	store, err := storage.New(filepath.Join(cfg.DataDir, "chisel.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := telemetry.New()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn(logging.CategoryStream, "metrics_server_failed", err.Error(), nil)
			}
		}()
	}

	registry := tools.NewRegistry()
	builtin.RegisterAll(registry)

	var prompter consent.Prompter = terminalPrompter{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	if *approveAll {
		prompter = consent.AutoApprove{}
	}
	gate := consent.NewGate(store, prompter, logger)

	env := &tools.Env{
		ProjectPath: cfg.ProjectPath,
		BackendID:   cfg.BackendID,
		Mutation: mutation.NewContext(mutation.Options{
			ProjectPath:     cfg.ProjectPath,
			BackendID:       cfg.BackendID,
			FunctionsDir:    cfg.Backend.FunctionsDir,
			SharedDir:       cfg.Backend.SharedDir,
			CommitPrefix:    cfg.Commit.Prefix,
			AuthorName:      cfg.Commit.AuthorName,
			AuthorEmail:     cfg.Commit.AuthorEmail,
			AmendExtraFiles: cfg.AmendExtraFiles(),
			Backend:         backend.NopClient{},
			Logger:          logger,
		}),
		Locker:         keyedlock.New(),
		Backend:        backend.NopClient{},
		Logger:         logger,
		Metrics:        metrics,
		PatchThreshold: cfg.Patch.FuzzyThreshold,
	}

	watcher, err := filewatch.New(cfg.ProjectPath)
	if err != nil {
		logger.Warn(logging.CategoryStream, "filewatch_unavailable", err.Error(), nil)
	} else {
		defer watcher.Close()
	}

	events, err := openEvents(*eventsPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch := stream.New(stream.Options{
		Registry: registry,
		Gate:     gate,
		Store:    store,
		Logger:   logger,
		Metrics:  metrics,
		Sink: func(text string) {
			fmt.Print(text)
		},
	})

	result, runErr := orch.Run(ctx, id, events, env)
	fmt.Println()
	if result != nil {
		report(result, watcher, env)
	}
	return runErr
}

func report(result *stream.TurnResult, watcher *filewatch.Watcher, env *tools.Env) {
	fmt.Printf("turn %s: %s\n", result.TurnID, result.State)
	if result.Commit != nil && result.Commit.CommitHash != "" {
		fmt.Printf("commit: %s\n", result.Commit.CommitHash)
	}
	if result.Commit != nil && len(result.Commit.ExtraFiles) > 0 {
		fmt.Printf("warning: %d file(s) changed outside the pipeline were folded into this commit:\n",
			len(result.Commit.ExtraFiles))
		for _, p := range result.Commit.ExtraFiles {
			fmt.Printf("  %s\n", p)
		}
	}
	if result.Commit != nil {
		for _, w := range result.Commit.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
	}
	if watcher != nil {
		if rogue := watcher.Unattributed(env.Mutation.WrittenFiles()); len(rogue) > 0 {
			fmt.Printf("observed %d unattributed change(s) during the turn\n", len(rogue))
		}
	}
}

// openEvents decodes a JSONL replay file into a stream event channel.
func openEvents(path string) (<-chan stream.Event, error) {
	var r io.ReadCloser
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r = f
	}

	ch := make(chan stream.Event, 16)
	go func() {
		defer close(ch)
		defer r.Close()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			ev, err := decodeEvent([]byte(line))
			if err != nil {
				ch <- stream.Error(err)
				return
			}
			ch <- ev
		}
		if err := scanner.Err(); err != nil {
			ch <- stream.Error(err)
		}
	}()
	return ch, nil
}

type wireEvent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func decodeEvent(line []byte) (stream.Event, error) {
	var we wireEvent
	if err := json.Unmarshal(line, &we); err != nil {
		return stream.Event{}, fmt.Errorf("malformed event: %w", err)
	}
	switch we.Type {
	case "text_delta":
		return stream.TextDelta(we.Text), nil
	case "reasoning_start":
		return stream.ReasoningStart(), nil
	case "reasoning_delta":
		return stream.ReasoningDelta(we.Text), nil
	case "reasoning_end":
		return stream.ReasoningEnd(), nil
	case "tool_call":
		id := we.ID
		if id == "" {
			id = uuid.NewString()
		}
		return stream.ToolCall(tools.Call{ID: id, Name: we.Name, Arguments: we.Arguments}), nil
	case "error":
		return stream.Error(errors.New(we.Message)), nil
	default:
		return stream.Event{}, fmt.Errorf("unknown event type %q", we.Type)
	}
}

// terminalPrompter asks for consent on the controlling terminal.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p terminalPrompter) Request(ctx context.Context, toolName, preview string) (consent.Decision, error) {
	fmt.Fprintf(p.out, "\ntool %s wants to run:\n%s\n[y]es once / [a]lways / [n]o: ", toolName, preview)
	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		text, err := p.in.ReadString('\n')
		ch <- answer{text, err}
	}()
	select {
	case <-ctx.Done():
		return consent.Deny, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return consent.Deny, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.text)) {
		case "y", "yes":
			return consent.AllowOnce, nil
		case "a", "always":
			return consent.AllowAlways, nil
		default:
			return consent.Deny, nil
		}
	}
}

func runConsent(args []string) error {
	fs := flag.NewFlagSet("consent", flag.ContinueOnError)
	projectPath := fs.String("project", ".", "project directory")
	configPath := fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()

	cfg, err := config.Load(*projectPath, *configPath)
	if err != nil {
		return err
	}
	store, err := storage.New(filepath.Join(cfg.DataDir, "chisel.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	if len(rest) == 0 || rest[0] == "list" {
		overrides, err := store.ListConsentOverrides()
		if err != nil {
			return err
		}
		if len(overrides) == 0 {
			fmt.Println("no consent overrides stored")
			return nil
		}
		for _, ov := range overrides {
			fmt.Printf("%-20s %s\n", ov.ToolName, ov.Policy)
		}
		return nil
	}

	if len(rest) < 2 {
		return errors.New("usage: chisel consent [list | allow <tool> | ask <tool> | clear <tool>]")
	}
	tool := rest[1]
	switch rest[0] {
	case "allow":
		return store.SetConsentOverride(tool, string(consent.PolicyAlways))
	case "ask":
		return store.SetConsentOverride(tool, string(consent.PolicyAsk))
	case "clear":
		return store.ClearConsentOverride(tool)
	default:
		return fmt.Errorf("unknown consent action %q", rest[0])
	}
}

func runTranscript(args []string) error {
	fs := flag.NewFlagSet("transcript", flag.ContinueOnError)
	projectPath := fs.String("project", ".", "project directory")
	configPath := fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: chisel transcript <turn-id>")
	}

	cfg, err := config.Load(*projectPath, *configPath)
	if err != nil {
		return err
	}
	store, err := storage.New(filepath.Join(cfg.DataDir, "chisel.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	text, err := store.TranscriptText(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
