package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpchat/config"
	"mcpchat/model"
)

// Registry connects to the configured MCP servers and aggregates their
// tools under qualified names. A qualified name is "<serverID>__<tool>";
// the model sees only qualified names and the registry routes calls back
// to the owning server.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*provider
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*provider),
	}
}

// Connect starts every configured server, tolerating individual
// failures. Failed servers are reported in the returned map; the
// registry keeps whatever subset came up. ErrNoServers is returned
// only when entries were configured and none connected.
func (r *Registry) Connect(ctx context.Context, entries []config.ServerEntry) (map[string]error, error) {
	failed := make(map[string]error)

	for _, entry := range entries {
		if err := r.connectOne(ctx, entry); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Connect: server '%s' failed: %v", entry.ID, err)
			}
			failed[entry.ID] = err
		}
	}

	r.mu.RLock()
	connected := len(r.providers)
	r.mu.RUnlock()

	if len(entries) > 0 && connected == 0 {
		return failed, ErrNoServers
	}
	return failed, nil
}

func (r *Registry) connectOne(ctx context.Context, entry config.ServerEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("server entry has no id")
	}
	if strings.Contains(entry.ID, NameSeparator) {
		return fmt.Errorf("server id %q must not contain %q", entry.ID, NameSeparator)
	}

	r.mu.RLock()
	_, exists := r.providers[entry.ID]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("server %s already connected", entry.ID)
	}

	mcpClient, cmd, err := newToolClient(ctx, entry)
	if err != nil {
		return err
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "mcpchat",
				Version: "1.0.0",
			},
		},
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize server %s: %w", entry.ID, err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list tools for %s: %w", entry.ID, err)
	}

	r.mu.Lock()
	r.providers[entry.ID] = &provider{
		id:      entry.ID,
		client:  mcpClient,
		process: cmd,
		tools:   toolsResult.Tools,
	}
	r.order = append(r.order, entry.ID)
	r.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Connected server '%s' with %d tools", entry.ID, len(toolsResult.Tools))
	}

	return nil
}

// Descriptors returns every known tool under its qualified name, in
// server connection order.
func (r *Registry) Descriptors() []model.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.ToolDescriptor
	for _, id := range r.order {
		prov, ok := r.providers[id]
		if !ok {
			continue
		}
		for _, tool := range prov.tools {
			out = append(out, model.ToolDescriptor{
				QualifiedName: id + NameSeparator + tool.Name,
				Description:   tool.Description,
				InputSchema:   convertSchema(tool.InputSchema),
			})
		}
	}
	return out
}

// HasTools reports whether at least one tool is available.
func (r *Registry) HasTools() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, prov := range r.providers {
		if len(prov.tools) > 0 {
			return true
		}
	}
	return false
}

// SplitName splits a qualified tool name into server ID and tool name.
func SplitName(qualified string) (serverID, toolName string, err error) {
	idx := strings.Index(qualified, NameSeparator)
	if idx <= 0 || idx+len(NameSeparator) >= len(qualified) {
		return "", "", fmt.Errorf("malformed tool name %q", qualified)
	}
	return qualified[:idx], qualified[idx+len(NameSeparator):], nil
}

// CallTool routes a qualified tool call to its owning server and
// converts the result to content blocks. The bool return reports
// whether the server flagged the result as an error.
func (r *Registry) CallTool(ctx context.Context, qualifiedName string, args map[string]any) ([]model.ContentBlock, bool, error) {
	serverID, toolName, err := SplitName(qualifiedName)
	if err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	prov, ok := r.providers[serverID]
	r.mu.RUnlock()
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownProvider, serverID)
	}

	result, err := prov.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("tool %s failed: %w", qualifiedName, err)
	}

	return convertResult(result), result.IsError, nil
}

// Refresh re-lists tools on every connected server.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, prov := range r.providers {
		toolsResult, err := prov.client.ListTools(ctx, mcptypes.ListToolsRequest{})
		if err != nil {
			return fmt.Errorf("failed to refresh tools for %s: %w", id, err)
		}
		prov.tools = toolsResult.Tools
	}
	return nil
}

// Shutdown closes every server in parallel, killing local processes
// whose clients do not close within a second.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	provs := make([]*provider, 0, len(r.providers))
	for _, prov := range r.providers {
		provs = append(provs, prov)
	}
	r.providers = make(map[string]*provider)
	r.order = nil
	r.mu.Unlock()

	var wg sync.WaitGroup
	errChan := make(chan error, len(provs))

	for _, prov := range provs {
		wg.Add(1)
		go func(p *provider) {
			defer wg.Done()
			if err := closeProvider(ctx, p); err != nil {
				errChan <- err
			}
		}(prov)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func closeProvider(ctx context.Context, prov *provider) error {
	closed := false
	if prov.client != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		closeDone := make(chan error, 1)
		go func() {
			closeDone <- prov.client.Close()
		}()

		select {
		case err := <-closeDone:
			if err == nil {
				closed = true
			} else if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Shutdown: error closing '%s': %v", prov.id, err)
			}
		case <-closeCtx.Done():
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Shutdown: close timeout for '%s'", prov.id)
			}
		}
	}

	// Close failed or hung; kill the local process if there is one
	if !closed && prov.process != nil && prov.process.Process != nil {
		if err := prov.process.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill server %s: %w", prov.id, err)
		}
	}
	return nil
}

func convertSchema(schema mcptypes.ToolInputSchema) model.ToolSchema {
	out := model.ToolSchema{
		Type:       schema.Type,
		Properties: schema.Properties,
		Required:   schema.Required,
	}
	if out.Type == "" {
		out.Type = "object"
	}
	if schema.Defs != nil {
		out.Defs = schema.Defs
	}
	return out
}

// convertResult flattens an MCP tool result into content blocks. Text
// and image content map directly; anything else is serialized to JSON
// so nothing the server said is silently dropped.
func convertResult(result *mcptypes.CallToolResult) []model.ContentBlock {
	if result == nil {
		return nil
	}

	var blocks []model.ContentBlock
	for _, content := range result.Content {
		if text, ok := mcptypes.AsTextContent(content); ok {
			blocks = append(blocks, model.NewTextBlock(text.Text))
			continue
		}
		if img, ok := mcptypes.AsImageContent(content); ok {
			blocks = append(blocks, model.NewImageBlock(img.Data, img.MIMEType))
			continue
		}
		raw, err := json.Marshal(content)
		if err != nil {
			continue
		}
		blocks = append(blocks, model.NewTextBlock(string(raw)))
	}
	return blocks
}
