package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase is the point in the tool-use lifecycle at which the engine was invoked
type Phase string

// Lifecycle phases reported by the upstream assistant
const (
	PhasePreToolUse  Phase = "PreToolUse"
	PhasePostToolUse Phase = "PostToolUse"
	PhaseStop        Phase = "Stop"
)

// Valid reports whether p is a phase the engine understands
func (p Phase) Valid() bool {
	switch p {
	case PhasePreToolUse, PhasePostToolUse, PhaseStop:
		return true
	default:
		return false
	}
}

// ToolUseEvent is the canonical record of one tool-use action. It is built
// exactly once per invocation by Normalize and never modified afterward;
// no component downstream of the dispatcher branches on input shape.
type ToolUseEvent struct {
	ID        string
	SessionID string
	Phase     Phase
	ToolName  string
	FilePath  string
	Content   string
	Timestamp time.Time
}

// rawInput accepts both wire shapes: the legacy flat {filePath, content}
// payload and the nested hook payload with a tool_input container.
type rawInput struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`

	SessionID     string         `json:"session_id"`
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
}

// Normalize parses raw JSON input into a canonical ToolUseEvent. Missing
// fields default to empty; an absent tool_input is an empty container, not
// an error. phaseHint is used when the payload carries no event name.
func Normalize(raw []byte, phaseHint Phase) (*ToolUseEvent, error) {
	var in rawInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to parse hook input: %w", err)
	}

	ev := &ToolUseEvent{
		ID:        uuid.NewString(),
		SessionID: in.SessionID,
		ToolName:  in.ToolName,
		FilePath:  in.FilePath,
		Content:   in.Content,
		Timestamp: time.Now(),
	}

	if in.ToolInput != nil {
		if v, ok := in.ToolInput["file_path"].(string); ok && v != "" {
			ev.FilePath = v
		}
		if v, ok := in.ToolInput["content"].(string); ok && v != "" {
			ev.Content = v
		}
	}

	phase := Phase(in.HookEventName)
	if !phase.Valid() {
		phase = phaseHint
	}
	if !phase.Valid() {
		phase = PhasePreToolUse
	}
	ev.Phase = phase

	return ev, nil
}
