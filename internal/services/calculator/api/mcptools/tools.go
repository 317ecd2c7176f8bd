package mcptools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/services/calculator/audit"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/keymap"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

// maxPressInputs bounds one calculator_press call.
const maxPressInputs = 256

// OpenInput is the calculator_open tool input.
type OpenInput struct{}

// SessionInput names an existing session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"calculator session identifier"`
}

// PressInput is the calculator_press tool input.
type PressInput struct {
	SessionID string         `json:"session_id" jsonschema:"calculator session identifier"`
	Inputs    []keymap.Input `json:"inputs" jsonschema:"inputs applied in order; each sets key, button, or type with value"`
}

// HistoryInput is the calculator_history tool input.
type HistoryInput struct {
	SessionID string `json:"session_id" jsonschema:"calculator session identifier"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum entries to return (default 50, max 200)"`
	PageToken string `json:"page_token,omitempty" jsonschema:"next_page_token from a previous call"`
	Filter    string `json:"filter,omitempty" jsonschema:"AIP-160 filter, e.g. input_type = \"digit\" AND sequence > 3"`
}

// StateResult describes a session's current display.
type StateResult struct {
	SessionID string `json:"session_id" jsonschema:"calculator session identifier"`
	Display   string `json:"display" jsonschema:"text currently shown on the display"`
	HasMemory bool   `json:"has_memory" jsonschema:"whether memory holds a non-zero value"`
	Sequence  int64  `json:"sequence" jsonschema:"number of actions applied so far"`
	Closed    bool   `json:"closed" jsonschema:"whether the session has been closed"`
}

// HistoryEntry is one recorded action.
type HistoryEntry struct {
	Sequence     int64  `json:"sequence_number" jsonschema:"position of the action within the session"`
	InputType    string `json:"input_type" jsonschema:"action kind, e.g. digit or operator"`
	InputValue   string `json:"input_value,omitempty" jsonschema:"action argument, e.g. 7 or +"`
	DisplayValue string `json:"display_value" jsonschema:"display after the action"`
	HasMemory    bool   `json:"has_memory" jsonschema:"memory indicator after the action"`
	RecordedAt   string `json:"recorded_at" jsonschema:"RFC3339 timestamp when the action was recorded"`
}

// HistoryResult is one page of a session's audit trail.
type HistoryResult struct {
	SessionID     string         `json:"session_id" jsonschema:"calculator session identifier"`
	Entries       []HistoryEntry `json:"entries" jsonschema:"recorded actions in sequence order"`
	NextPageToken string         `json:"next_page_token,omitempty" jsonschema:"token for the next page, empty on the last page"`
}

// OpenTool defines calculator_open.
func OpenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "calculator_open",
		Description: "Opens a new calculator session showing 0 and returns its identifier.",
	}
}

// PressTool defines calculator_press.
func PressTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "calculator_press",
		Description: "Applies inputs to a calculator session in order. Each input is a keyboard key " +
			"(\"7\", \"+\", \"Enter\", \"Escape\"), a keypad button label (\"MR\", \"√\"), or an explicit " +
			"type/value pair (type \"memory\", value \"add\"). Stops at the first invalid input.",
	}
}

// StateTool defines calculator_state.
func StateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "calculator_state",
		Description: "Returns the current display of a calculator session.",
	}
}

// HistoryTool defines calculator_history.
func HistoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "calculator_history",
		Description: "Lists the recorded actions of a calculator session, oldest first.",
	}
}

// CloseTool defines calculator_close.
func CloseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "calculator_close",
		Description: "Closes a calculator session. Later calls for it fail with SESSION_CLOSED.",
	}
}

// OpenHandler opens sessions.
func OpenHandler(sessions *session.Manager) mcp.ToolHandlerFor[OpenInput, StateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ OpenInput) (*mcp.CallToolResult, StateResult, error) {
		s, err := sessions.Open(ctx)
		if err != nil {
			return nil, StateResult{}, toolError("calculator open failed", err)
		}
		return nil, stateResult(s.Snapshot()), nil
	}
}

// PressHandler resolves and applies inputs.
func PressHandler(sessions *session.Manager) mcp.ToolHandlerFor[PressInput, StateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PressInput) (*mcp.CallToolResult, StateResult, error) {
		s, err := sessions.Get(strings.TrimSpace(input.SessionID))
		if err != nil {
			return nil, StateResult{}, toolError("calculator press failed", err)
		}
		if len(input.Inputs) == 0 {
			return nil, StateResult{}, toolError("calculator press failed",
				apperrors.New(apperrors.CodeInvalidAction, "at least one input is required"))
		}
		if len(input.Inputs) > maxPressInputs {
			return nil, StateResult{}, toolError("calculator press failed",
				apperrors.New(apperrors.CodeInvalidAction, "too many inputs in one call"))
		}
		actions := make([]engine.Action, 0, len(input.Inputs))
		for i, in := range input.Inputs {
			action, err := keymap.Resolve(in)
			if err != nil {
				return nil, StateResult{}, toolError(fmt.Sprintf("calculator press input %d", i), err)
			}
			actions = append(actions, action)
		}
		if _, err := s.DispatchAll(ctx, actions); err != nil {
			return nil, StateResult{}, toolError("calculator press failed", err)
		}
		return nil, stateResult(s.Snapshot()), nil
	}
}

// StateHandler reports a session's display.
func StateHandler(sessions *session.Manager) mcp.ToolHandlerFor[SessionInput, StateResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, StateResult, error) {
		s, err := sessions.Get(strings.TrimSpace(input.SessionID))
		if err != nil {
			return nil, StateResult{}, toolError("calculator state failed", err)
		}
		return nil, stateResult(s.Snapshot()), nil
	}
}

// HistoryHandler pages the audit trail. The session may already be closed.
func HistoryHandler(store storage.AuditStore) mcp.ToolHandlerFor[HistoryInput, HistoryResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryResult, error) {
		sessionID := strings.TrimSpace(input.SessionID)
		if sessionID == "" {
			return nil, HistoryResult{}, toolError("calculator history failed",
				apperrors.New(apperrors.CodeSessionNotFound, "session_id is required"))
		}
		page, err := audit.ListHistory(ctx, store, storage.AuditQuery{
			SessionID: sessionID,
			PageSize:  input.PageSize,
			PageToken: input.PageToken,
			Filter:    input.Filter,
		})
		if err != nil {
			return nil, HistoryResult{}, toolError("calculator history failed", err)
		}
		result := HistoryResult{
			SessionID:     page.SessionID,
			Entries:       make([]HistoryEntry, 0, len(page.Entries)),
			NextPageToken: page.NextPageToken,
		}
		for _, e := range page.Entries {
			result.Entries = append(result.Entries, HistoryEntry{
				Sequence:     e.Sequence,
				InputType:    e.InputType,
				InputValue:   e.InputValue,
				DisplayValue: e.DisplayValue,
				HasMemory:    e.HasMemory,
				RecordedAt:   e.RecordedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		return nil, result, nil
	}
}

// CloseHandler closes sessions.
func CloseHandler(sessions *session.Manager) mcp.ToolHandlerFor[SessionInput, StateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, StateResult, error) {
		sessionID := strings.TrimSpace(input.SessionID)
		s, err := sessions.Get(sessionID)
		if err != nil {
			return nil, StateResult{}, toolError("calculator close failed", err)
		}
		if err := sessions.Close(ctx, sessionID); err != nil {
			return nil, StateResult{}, toolError("calculator close failed", err)
		}
		return nil, stateResult(s.Snapshot()), nil
	}
}

func stateResult(snap session.Snapshot) StateResult {
	return StateResult{
		SessionID: snap.ID,
		Display:   snap.View.Display,
		HasMemory: snap.View.HasMemory,
		Sequence:  snap.Sequence,
		Closed:    snap.Closed,
	}
}

// toolError keeps the error code visible to the model alongside the message.
func toolError(prefix string, err error) error {
	code := apperrors.CodeOf(err)
	return fmt.Errorf("%s: %s: %w", prefix, code, err)
}
