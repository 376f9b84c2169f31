// Package events implements the EventDispatcher: a
// typed lifecycle event catalog with per-event response aggregation
// rules, grounded on original_source/src/extension_events.rs's
// ExtensionEvent enum and its Tool/ToolResult/Input result shapes.
package events

import "time"

// Name is one of the ten closed lifecycle events an extension may hook.
type Name string

const (
	Startup             Name = "startup"
	AgentStart          Name = "agent_start"
	AgentEnd            Name = "agent_end"
	TurnStart           Name = "turn_start"
	TurnEnd             Name = "turn_end"
	ToolCall            Name = "tool_call"
	ToolResult          Name = "tool_result"
	SessionBeforeSwitch Name = "session_before_switch"
	SessionBeforeFork   Name = "session_before_fork"
	Input               Name = "input"
)

// DefaultHandlerTimeout is the dispatch timeout budget referenced by
// original_source/src/extension_events.rs's EXTENSION_EVENT_TIMEOUT_MS.
const DefaultHandlerTimeout = 5 * time.Second

// StartupPayload is the payload for the startup event.
type StartupPayload struct {
	Version     string `json:"version"`
	SessionFile string `json:"session_file,omitempty"`
}

// AgentStartPayload is the payload for the agent_start event.
type AgentStartPayload struct {
	SessionID string `json:"session_id"`
}

// AgentEndPayload is the payload for the agent_end event.
type AgentEndPayload struct {
	SessionID string `json:"session_id"`
	Messages  int    `json:"messages"`
	Error     string `json:"error,omitempty"`
}

// TurnStartPayload is the payload for the turn_start event.
type TurnStartPayload struct {
	SessionID string `json:"session_id"`
	TurnIndex int    `json:"turn_index"`
}

// TurnEndPayload is the payload for the turn_end event.
type TurnEndPayload struct {
	SessionID   string `json:"session_id"`
	TurnIndex   int    `json:"turn_index"`
	Message     any    `json:"message"`
	ToolResults any    `json:"tool_results"`
}

// ToolCallPayload is the payload for the tool_call event.
type ToolCallPayload struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	Input      any    `json:"input"`
}

// ToolCallResult is the handler response shape for tool_call.
type ToolCallResult struct {
	Block  bool   `json:"block,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ToolResultPayload is the payload for the tool_result event.
type ToolResultPayload struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	Input      any    `json:"input"`
	Content    any    `json:"content"`
	Details    any    `json:"details,omitempty"`
	IsError    bool   `json:"is_error"`
}

// ToolResultRewrite is the handler response shape for tool_result; a
// handler may rewrite Content and/or Details.
type ToolResultRewrite struct {
	Content *any `json:"content,omitempty"`
	Details *any `json:"details,omitempty"`
}

// InputPayload is the payload for the input event.
type InputPayload struct {
	Content     string `json:"content"`
	Attachments any    `json:"attachments,omitempty"`
}

// InputResult is the handler response shape for input.
type InputResult struct {
	Content *string `json:"content,omitempty"`
	Block   bool    `json:"block,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// SessionGuardResult is the handler response shape for
// session_before_switch / session_before_fork.
type SessionGuardResult struct {
	Cancel bool `json:"cancel,omitempty"`
}
