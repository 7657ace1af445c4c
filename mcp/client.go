package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"mcpchat/config"
)

// newToolClient builds an MCP client for a server entry. Local servers
// are spawned over stdio; remote servers connect via SSE or streamable
// HTTP. The returned *exec.Cmd is nil for remote servers.
func newToolClient(ctx context.Context, entry config.ServerEntry) (toolClient, *exec.Cmd, error) {
	if entry.URL != "" {
		c, err := newRemoteClient(ctx, entry)
		return c, nil, err
	}
	if entry.Command == "" {
		return nil, nil, fmt.Errorf("server %s: neither command nor url configured", entry.ID)
	}
	return newLocalClient(entry)
}

func newLocalClient(entry config.ServerEntry) (toolClient, *exec.Cmd, error) {
	env := buildEnv(entry.Env)
	var capturedCmd *exec.Cmd

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Starting local server '%s': %s %v", entry.ID, entry.Command, entry.Args)
	}

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		entry.Command,
		env,
		entry.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}

	if capturedCmd != nil && capturedCmd.Process != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started local server '%s' with PID %d", entry.ID, capturedCmd.Process.Pid)
	}

	return mcpClient, capturedCmd, nil
}

func newRemoteClient(ctx context.Context, entry config.ServerEntry) (toolClient, error) {
	// Default to SSE when transport is not specified
	kind := entry.Transport
	if kind == "" {
		kind = "sse"
	}

	switch kind {
	case "sse":
		return newSSEClient(ctx, entry)
	case "streamable-http":
		return newStreamableHTTPClient(ctx, entry)
	default:
		return nil, fmt.Errorf("server %s: unknown transport type: %s", entry.ID, kind)
	}
}

func newSSEClient(ctx context.Context, entry config.ServerEntry) (toolClient, error) {
	var opts []transport.ClientOption
	if len(entry.Env) > 0 {
		opts = append(opts, transport.WithHeaders(entry.Env))
	}

	mcpClient, err := client.NewSSEMCPClient(entry.URL, opts...)
	if err != nil {
		return nil, err
	}

	// SSE transport must be started before Initialize/ListTools
	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started SSE transport for '%s' at %s", entry.ID, entry.URL)
	}

	return mcpClient, nil
}

func newStreamableHTTPClient(ctx context.Context, entry config.ServerEntry) (toolClient, error) {
	var opts []transport.StreamableHTTPCOption
	if len(entry.Env) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(entry.Env))
	}

	mcpClient, err := client.NewStreamableHttpClient(entry.URL, opts...)
	if err != nil {
		return nil, err
	}

	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start HTTP transport: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started streamable HTTP transport for '%s' at %s", entry.ID, entry.URL)
	}

	return mcpClient, nil
}

func buildEnv(envMap map[string]string) []string {
	// Start with current process environment to preserve PATH and other system vars
	env := os.Environ()
	for k, v := range envMap {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
