package stream

import "github.com/chisel-dev/chisel/pkg/tools"

// EventType tags one model stream event.
type EventType string

const (
	// EventTextDelta carries a fragment of the model's visible answer.
	EventTextDelta EventType = "text_delta"
	// EventReasoningStart opens a reasoning block.
	EventReasoningStart EventType = "reasoning_start"
	// EventReasoningDelta carries a fragment of reasoning text.
	EventReasoningDelta EventType = "reasoning_delta"
	// EventReasoningEnd closes the current reasoning block.
	EventReasoningEnd EventType = "reasoning_end"
	// EventToolCall asks for a named tool to run.
	EventToolCall EventType = "tool_call"
	// EventToolResult echoes a tool result back through the stream.
	// Informational only; the call was already handled when it ran.
	EventToolResult EventType = "tool_result"
	// EventError reports an asynchronous model-side failure.
	EventError EventType = "error"
)

// Event is one item of the model stream, consumed once and in order.
type Event struct {
	Type EventType

	// Text is set for EventTextDelta and EventReasoningDelta.
	Text string

	// Call is set for EventToolCall.
	Call *tools.Call

	// Err is set for EventError.
	Err error
}

// TextDelta builds a visible-text event.
func TextDelta(text string) Event { return Event{Type: EventTextDelta, Text: text} }

// ReasoningStart builds a reasoning-open event.
func ReasoningStart() Event { return Event{Type: EventReasoningStart} }

// ReasoningDelta builds a reasoning-text event.
func ReasoningDelta(text string) Event { return Event{Type: EventReasoningDelta, Text: text} }

// ReasoningEnd builds a reasoning-close event.
func ReasoningEnd() Event { return Event{Type: EventReasoningEnd} }

// ToolCall builds a tool-call event.
func ToolCall(call tools.Call) Event { return Event{Type: EventToolCall, Call: &call} }

// Error builds a model-failure event.
func Error(err error) Event { return Event{Type: EventError, Err: err} }
