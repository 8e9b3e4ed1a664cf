package tools

import (
	"context"
	"encoding/json"

	"github.com/chisel-dev/chisel/pkg/backend"
	"github.com/chisel-dev/chisel/pkg/consent"
	"github.com/chisel-dev/chisel/pkg/keyedlock"
	"github.com/chisel-dev/chisel/pkg/logging"
	"github.com/chisel-dev/chisel/pkg/mutation"
	"github.com/chisel-dev/chisel/pkg/telemetry"
)

// Env is the execution environment handed to every tool handler. One Env
// exists per turn; handlers that touch files take the project's lock via
// Locker before mutating anything under ProjectPath.
type Env struct {
	ProjectPath string
	BackendID   string

	Mutation *mutation.Context
	Locker   *keyedlock.Locker
	Backend  backend.Client
	Logger   *logging.Logger
	Metrics  *telemetry.Metrics

	// PatchThreshold overrides the fuzzy-match threshold for edits.
	// Zero means the engine default.
	PatchThreshold float64

	// Emit appends text to the caller's live transcript. May be nil.
	Emit func(text string)
}

// LockKey is the resource key serializing this project's mutations.
func (e *Env) LockKey() string {
	return e.ProjectPath
}

// EmitText forwards text to the transcript when a sink is attached.
func (e *Env) EmitText(text string) {
	if e.Emit != nil {
		e.Emit(text)
	}
}

// Handler executes one tool call against the turn's environment.
type Handler func(ctx context.Context, call Call, env *Env) (Result, error)

// Definition describes a tool the model can call. Immutable once
// registered.
type Definition struct {
	// Name is the tool identifier (e.g., "edit_file")
	Name string `json:"name"`

	// Description explains what the tool does (shown to the model)
	Description string `json:"description"`

	// Parameters defines the JSON schema for tool arguments
	Parameters Schema `json:"parameters"`

	// DefaultConsent is the consent policy applied when the user has not
	// stored a per-tool override.
	DefaultConsent consent.Policy `json:"-"`

	// Handler runs the tool. Not serialized; the model only sees the
	// contract above.
	Handler Handler `json:"-"`
}

// ToOpenAIFormat converts the definition to OpenAI function calling format.
func (d Definition) ToOpenAIFormat() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  d.Parameters,
		},
	}
}

// ToAnthropicFormat converts the definition to Anthropic tool format.
func (d Definition) ToAnthropicFormat() map[string]any {
	return map[string]any{
		"name":         d.Name,
		"description":  d.Description,
		"input_schema": d.Parameters,
	}
}

// Call represents a tool invocation from a model response.
type Call struct {
	// ID is the unique identifier for this tool call (from the model)
	ID string `json:"id"`

	// Name is the tool that was called
	Name string `json:"name"`

	// Arguments is the raw JSON arguments from the model
	Arguments json.RawMessage `json:"arguments"`
}

// Unmarshal decodes the tool call arguments into the given type.
func (c Call) Unmarshal(v any) error {
	return json.Unmarshal(c.Arguments, v)
}

// Result represents the outcome of executing a tool, surfaced back to the
// model as text.
type Result struct {
	// CallID matches the Call.ID this is responding to
	CallID string `json:"tool_call_id"`

	// Content is the result content (usually JSON or text)
	Content string `json:"content"`

	// IsError indicates the tool execution failed. The model reads the
	// content and may retry with corrected input.
	IsError bool `json:"is_error,omitempty"`

	// Display carries optional structured data for a richer caller UI
	// (diffs, row sets). Never sent to the model.
	Display map[string]any `json:"-"`
}

// NewResult creates a successful tool result.
func NewResult(callID string, content any) (Result, error) {
	var contentStr string
	switch v := content.(type) {
	case string:
		contentStr = v
	case []byte:
		contentStr = string(v)
	default:
		data, err := json.Marshal(content)
		if err != nil {
			return Result{}, err
		}
		contentStr = string(data)
	}
	return Result{
		CallID:  callID,
		Content: contentStr,
	}, nil
}

// NewError creates an error tool result from err. The turn continues; only
// this call is reported as failed.
func NewError(callID string, err error) Result {
	return Result{
		CallID:  callID,
		Content: err.Error(),
		IsError: true,
	}
}
