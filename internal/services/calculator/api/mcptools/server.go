// Package mcptools exposes calculator sessions as MCP tools.
//
// The server owns its sessions: a local MCP client opens a session with
// calculator_open and addresses it by id afterwards. No session token is
// required because the transport is a private stdio pipe.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/examdesk/internal/services/calculator/domain/keymap"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

const (
	serverName    = "examdesk-calculator"
	serverVersion = "0.1.0"

	// KeypadResourceURI lists the keypad layout as JSON.
	KeypadResourceURI = "calculator://keypad"
)

// Config wires the MCP server to the session layer.
type Config struct {
	Sessions *session.Manager
	// History backs calculator_history; nil yields empty pages.
	History storage.AuditStore
}

// Server hosts the calculator MCP tools.
type Server struct {
	mcpServer *mcp.Server
	sessions  *session.Manager
}

// New registers the calculator tools on a fresh MCP server.
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcp.AddTool(mcpServer, OpenTool(), OpenHandler(cfg.Sessions))
	mcp.AddTool(mcpServer, PressTool(), PressHandler(cfg.Sessions))
	mcp.AddTool(mcpServer, StateTool(), StateHandler(cfg.Sessions))
	mcp.AddTool(mcpServer, HistoryTool(), HistoryHandler(cfg.History))
	mcp.AddTool(mcpServer, CloseTool(), CloseHandler(cfg.Sessions))
	mcpServer.AddResource(&mcp.Resource{
		URI:         KeypadResourceURI,
		Name:        "calculator_keypad",
		Description: "Keypad rows with the button labels calculator_press accepts.",
		MIMEType:    "application/json",
	}, keypadResourceHandler)

	return &Server{mcpServer: mcpServer, sessions: cfg.Sessions}, nil
}

// Serve runs the server on stdio until the client disconnects or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	s.sessions.CloseAll(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

type keypadButton struct {
	Label string `json:"label"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	Style string `json:"style"`
}

func keypadResourceHandler(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	rows := keymap.Buttons()
	out := make([][]keypadButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]keypadButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, keypadButton{
				Label: b.Label,
				Type:  string(b.Action.Kind),
				Value: b.Action.Value,
				Style: string(b.Style),
			})
		}
		out = append(out, buttons)
	}
	payload, err := json.Marshal(map[string]any{"rows": out})
	if err != nil {
		return nil, fmt.Errorf("marshal keypad: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      KeypadResourceURI,
			MIMEType: "application/json",
			Text:     string(payload),
		}},
	}, nil
}
