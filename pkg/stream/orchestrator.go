// Package stream drives one model turn end to end. The orchestrator
// consumes stream events in order, keeps the transcript's reasoning block
// balanced, dispatches tool calls through the consent gate and registry,
// and finalizes the turn's mutation context at every terminal state,
// including cancellation.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chisel-dev/chisel/pkg/consent"
	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
	"github.com/chisel-dev/chisel/pkg/logging"
	"github.com/chisel-dev/chisel/pkg/mutation"
	"github.com/chisel-dev/chisel/pkg/storage"
	"github.com/chisel-dev/chisel/pkg/telemetry"
	"github.com/chisel-dev/chisel/pkg/tools"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Transcript markers. Open and close always appear balanced; the close
// marker is inserted before any visible text that follows reasoning.
const (
	ReasoningOpenMarker  = "<thinking>\n"
	ReasoningCloseMarker = "\n</thinking>\n"
	CancelledMarker      = "\n\n[request cancelled by user]"
)

// Options configures one orchestrator.
type Options struct {
	Registry *tools.Registry
	Gate     *consent.Gate

	// Store persists transcript chunks incrementally, so an abrupt process
	// failure loses at most one pending append. May be nil.
	Store   *storage.Store
	Logger  *logging.Logger
	Metrics *telemetry.Metrics

	// Sink receives every transcript append as it happens. May be nil.
	Sink func(text string)
}

// TurnResult is the outcome of one fully driven turn.
type TurnResult struct {
	TurnID      string
	State       State
	Transcript  string
	ToolResults []tools.Result
	Commit      *mutation.CommitResult
}

// Orchestrator runs exactly one turn.
type Orchestrator struct {
	opts Options

	mu    sync.Mutex
	state State

	reasoningOpen bool
	transcript    strings.Builder
	seq           int
	turnID        string
	results       []tools.Result
}

// New creates an idle orchestrator for a single turn.
func New(opts Options) *Orchestrator {
	return &Orchestrator{opts: opts, state: StateIdle}
}

// State returns the current lifecycle state. Safe to call from other
// goroutines while the turn runs.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run consumes events until the channel closes, the model reports an
// error, or ctx is cancelled. Cancellation is cooperative: it is checked
// before each event, never mid-tool-call, and a cancelled turn still
// finalizes whatever was recorded. Run may be called once.
func (o *Orchestrator) Run(ctx context.Context, turnID string, events <-chan Event, env *tools.Env) (*TurnResult, error) {
	if o.State() != StateIdle {
		return nil, chiselerrors.New(chiselerrors.ErrCodeInternal, "orchestrator already ran")
	}
	o.turnID = turnID
	o.setState(StateStreaming)
	started := time.Now()

	if o.opts.Store != nil {
		if err := o.opts.Store.RecordTurnStart(turnID, env.ProjectPath); err != nil {
			o.logWarn("turn_start_persist_failed", err)
		}
	}

	for {
		if ctx.Err() != nil {
			return o.finishCancelled(ctx, env, started)
		}
		select {
		case <-ctx.Done():
			return o.finishCancelled(ctx, env, started)
		case ev, ok := <-events:
			if !ok {
				return o.finishCompleted(ctx, env, started)
			}
			if done, result, err := o.handle(ctx, ev, env, started); done {
				return result, err
			}
		}
	}
}

// handle processes one event. It returns done=true when the event is
// terminal.
func (o *Orchestrator) handle(ctx context.Context, ev Event, env *tools.Env, started time.Time) (bool, *TurnResult, error) {
	switch ev.Type {
	case EventTextDelta:
		o.closeReasoning()
		o.append(storage.ChunkText, ev.Text)
	case EventReasoningStart:
		o.openReasoning()
	case EventReasoningDelta:
		o.openReasoning()
		o.append(storage.ChunkReasoning, ev.Text)
	case EventReasoningEnd:
		o.closeReasoning()
	case EventToolCall:
		if ev.Call != nil {
			o.results = append(o.results, o.dispatch(ctx, *ev.Call, env))
		}
	case EventToolResult:
		// Already handled when the call executed.
	case EventError:
		result, err := o.finishFailed(ctx, env, started, ev.Err)
		return true, result, err
	}
	return false, nil, nil
}

// dispatch resolves one tool call through consent and the registry. Every
// failure mode comes back as the call's result text; nothing here is
// turn-fatal.
func (o *Orchestrator) dispatch(ctx context.Context, call tools.Call, env *tools.Env) tools.Result {
	def, ok := o.opts.Registry.Get(call.Name)
	if !ok {
		o.opts.Metrics.ToolExecuted(call.Name, "error")
		return tools.NewError(call.ID, chiselerrors.New(chiselerrors.ErrCodeToolNotFound,
			"unknown tool "+call.Name))
	}

	if o.opts.Gate != nil {
		if err := o.opts.Gate.Check(ctx, call.Name, def.DefaultConsent, string(call.Arguments)); err != nil {
			o.opts.Metrics.ConsentDenied(call.Name)
			o.opts.Metrics.ToolExecuted(call.Name, "denied")
			o.logEvent("tool_denied", map[string]any{"tool": call.Name})
			return tools.NewError(call.ID, err)
		}
	}

	result := o.opts.Registry.Execute(ctx, call, env)
	outcome := "ok"
	if result.IsError {
		outcome = "error"
	}
	o.opts.Metrics.ToolExecuted(call.Name, outcome)
	o.logEvent("tool_executed", map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
		"outcome": outcome,
	})
	return result
}

func (o *Orchestrator) openReasoning() {
	if o.reasoningOpen {
		return
	}
	o.reasoningOpen = true
	o.append(storage.ChunkReasoningOpen, ReasoningOpenMarker)
}

func (o *Orchestrator) closeReasoning() {
	if !o.reasoningOpen {
		return
	}
	o.reasoningOpen = false
	o.append(storage.ChunkReasoningClose, ReasoningCloseMarker)
}

// append adds text to the transcript, persists the chunk, and forwards it
// to the live sink. A persist failure is logged, never fatal.
func (o *Orchestrator) append(kind, text string) {
	if text == "" {
		return
	}
	o.transcript.WriteString(text)
	o.seq++
	if o.opts.Store != nil {
		if err := o.opts.Store.AppendTranscriptChunk(o.turnID, kind, text, o.seq); err != nil {
			o.logWarn("transcript_persist_failed", err)
		}
	}
	if o.opts.Sink != nil {
		o.opts.Sink(text)
	}
}

func (o *Orchestrator) finishCompleted(ctx context.Context, env *tools.Env, started time.Time) (*TurnResult, error) {
	o.closeReasoning()
	commit, err := o.finalize(ctx, env)
	if err != nil {
		return o.fail(started, err)
	}
	o.setState(StateCompleted)
	o.recordTurnEnd("completed", commit)
	o.opts.Metrics.TurnFinished("completed", time.Since(started).Seconds())
	return o.result(commit), nil
}

func (o *Orchestrator) finishCancelled(ctx context.Context, env *tools.Env, started time.Time) (*TurnResult, error) {
	o.closeReasoning()
	o.append(storage.ChunkCancelled, CancelledMarker)
	commit, err := o.finalize(ctx, env)
	if err != nil {
		return o.fail(started, err)
	}
	o.setState(StateCancelled)
	o.recordTurnEnd("cancelled", commit)
	o.opts.Metrics.TurnFinished("cancelled", time.Since(started).Seconds())
	return o.result(commit), nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, env *tools.Env, started time.Time, cause error) (*TurnResult, error) {
	o.closeReasoning()
	// Mutations that already completed still get their commit.
	commit, err := o.finalize(ctx, env)
	if err != nil {
		return o.fail(started, err)
	}
	o.setState(StateFailed)
	o.recordTurnEnd("failed", commit)
	o.opts.Metrics.TurnFinished("failed", time.Since(started).Seconds())
	return o.result(commit), chiselerrors.Wrap(cause, chiselerrors.ErrCodeStreamFailed, "model stream failed").
		WithContext("turn_id", o.turnID)
}

// finalize commits the turn's recorded mutations. It runs detached from
// the turn's cancellation so a cancelled turn still commits its partial
// work.
func (o *Orchestrator) finalize(ctx context.Context, env *tools.Env) (*mutation.CommitResult, error) {
	commit, err := env.Mutation.Finalize(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	o.opts.Metrics.ExtraFilesFolded(len(commit.ExtraFiles))
	return commit, nil
}

func (o *Orchestrator) fail(started time.Time, err error) (*TurnResult, error) {
	o.setState(StateFailed)
	o.recordTurnEnd("failed", nil)
	o.opts.Metrics.TurnFinished("failed", time.Since(started).Seconds())
	return o.result(nil), err
}

func (o *Orchestrator) result(commit *mutation.CommitResult) *TurnResult {
	return &TurnResult{
		TurnID:      o.turnID,
		State:       o.State(),
		Transcript:  o.transcript.String(),
		ToolResults: o.results,
		Commit:      commit,
	}
}

func (o *Orchestrator) recordTurnEnd(state string, commit *mutation.CommitResult) {
	if o.opts.Store == nil {
		return
	}
	hash := ""
	if commit != nil {
		hash = commit.CommitHash
	}
	if err := o.opts.Store.RecordTurnEnd(o.turnID, state, hash); err != nil {
		o.logWarn("turn_end_persist_failed", err)
	}
}

func (o *Orchestrator) logEvent(eventType string, details map[string]any) {
	if o.opts.Logger == nil {
		return
	}
	o.opts.Logger.Info(logging.CategoryStream, eventType, "", details)
}

func (o *Orchestrator) logWarn(eventType string, err error) {
	if o.opts.Logger == nil {
		return
	}
	o.opts.Logger.Warn(logging.CategoryStream, eventType, err.Error(), nil)
}
