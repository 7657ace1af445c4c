package mcp

import (
	"context"
	"errors"
	"os/exec"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// NameSeparator joins a server ID and a tool name into the qualified
// name exposed to the model, e.g. "fs__readFile".
const NameSeparator = "__"

var (
	// ErrUnknownProvider is returned when a qualified tool name
	// references a server ID that is not connected.
	ErrUnknownProvider = errors.New("unknown tool provider")

	// ErrNoServers is returned by Connect when every configured
	// server failed to come up.
	ErrNoServers = errors.New("no tool servers available")
)

// toolClient is the subset of the MCP client surface the registry
// needs. *client.Client satisfies it; tests substitute fakes.
type toolClient interface {
	Initialize(ctx context.Context, req mcptypes.InitializeRequest) (*mcptypes.InitializeResult, error)
	ListTools(ctx context.Context, req mcptypes.ListToolsRequest) (*mcptypes.ListToolsResult, error)
	CallTool(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
	Close() error
}

// provider is one connected tool server and its discovered tools.
type provider struct {
	id      string
	client  toolClient
	process *exec.Cmd // nil for remote servers
	tools   []mcptypes.Tool
}
