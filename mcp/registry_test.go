package mcp

import (
	"context"
	"errors"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpchat/model"
)

type fakeClient struct {
	tools      []mcptypes.Tool
	callResult *mcptypes.CallToolResult
	callErr    error
	lastCall   mcptypes.CallToolRequest
	closed     bool
}

func (f *fakeClient) Initialize(ctx context.Context, req mcptypes.InitializeRequest) (*mcptypes.InitializeResult, error) {
	return &mcptypes.InitializeResult{}, nil
}

func (f *fakeClient) ListTools(ctx context.Context, req mcptypes.ListToolsRequest) (*mcptypes.ListToolsResult, error) {
	return &mcptypes.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
	f.lastCall = req
	return f.callResult, f.callErr
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func registryWith(t *testing.T, id string, c toolClient, tools []mcptypes.Tool) *Registry {
	t.Helper()
	r := NewRegistry()
	r.providers[id] = &provider{id: id, client: c, tools: tools}
	r.order = append(r.order, id)
	return r
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantServer string
		wantTool   string
		wantErr    bool
	}{
		{name: "simple", input: "fs__readFile", wantServer: "fs", wantTool: "readFile"},
		{name: "tool name with underscores", input: "search__web_search", wantServer: "search", wantTool: "web_search"},
		{name: "no separator", input: "readFile", wantErr: true},
		{name: "empty server", input: "__readFile", wantErr: true},
		{name: "empty tool", input: "fs__", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, tool, err := SplitName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got server=%q tool=%q", tt.input, server, tool)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server != tt.wantServer || tool != tt.wantTool {
				t.Errorf("got (%q, %q), want (%q, %q)", server, tool, tt.wantServer, tt.wantTool)
			}
		})
	}
}

func TestDescriptorsQualifiesNames(t *testing.T) {
	tools := []mcptypes.Tool{
		{
			Name:        "readFile",
			Description: "Read a file",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{"type": "string"},
				},
				Required: []string{"path"},
			},
		},
		{
			Name: "listDir",
		},
	}
	r := registryWith(t, "fs", &fakeClient{tools: tools}, tools)

	descs := r.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
	if descs[0].QualifiedName != "fs__readFile" {
		t.Errorf("expected qualified name 'fs__readFile', got %q", descs[0].QualifiedName)
	}
	if descs[0].InputSchema.Type != "object" {
		t.Errorf("expected schema type 'object', got %q", descs[0].InputSchema.Type)
	}
	if descs[0].InputSchema.Required[0] != "path" {
		t.Errorf("expected required 'path', got %v", descs[0].InputSchema.Required)
	}
	// Empty schema type defaults to object
	if descs[1].InputSchema.Type != "object" {
		t.Errorf("expected defaulted schema type 'object', got %q", descs[1].InputSchema.Type)
	}

	if !r.HasTools() {
		t.Error("expected HasTools to be true")
	}
}

func TestCallToolRoutesToProvider(t *testing.T) {
	fake := &fakeClient{
		callResult: &mcptypes.CallToolResult{
			Content: []mcptypes.Content{
				mcptypes.NewTextContent("file contents here"),
			},
		},
	}
	r := registryWith(t, "fs", fake, nil)

	blocks, isError, err := r.CallTool(context.Background(), "fs__readFile", map[string]any{"path": "/tmp/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isError {
		t.Error("expected isError false")
	}
	if fake.lastCall.Params.Name != "readFile" {
		t.Errorf("expected unqualified name 'readFile' sent to server, got %q", fake.lastCall.Params.Name)
	}
	if len(blocks) != 1 || blocks[0].Kind != model.BlockText || blocks[0].Text != "file contents here" {
		t.Errorf("unexpected result blocks: %+v", blocks)
	}
}

func TestCallToolErrorResult(t *testing.T) {
	fake := &fakeClient{
		callResult: &mcptypes.CallToolResult{
			IsError: true,
			Content: []mcptypes.Content{
				mcptypes.NewTextContent("no such file"),
			},
		},
	}
	r := registryWith(t, "fs", fake, nil)

	blocks, isError, err := r.CallTool(context.Background(), "fs__readFile", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isError {
		t.Error("expected isError true")
	}
	if len(blocks) != 1 || blocks[0].Text != "no such file" {
		t.Errorf("unexpected result blocks: %+v", blocks)
	}
}

func TestCallToolUnknownProvider(t *testing.T) {
	r := registryWith(t, "fs", &fakeClient{}, nil)

	_, _, err := r.CallTool(context.Background(), "web__search", nil)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestConvertResultImageAndUnknown(t *testing.T) {
	result := &mcptypes.CallToolResult{
		Content: []mcptypes.Content{
			mcptypes.NewImageContent("aGVsbG8=", "image/png"),
			mcptypes.NewTextContent("and some text"),
		},
	}

	blocks := convertResult(result)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Kind != model.BlockImage || blocks[0].Data != "aGVsbG8=" || blocks[0].MimeType != "image/png" {
		t.Errorf("unexpected image block: %+v", blocks[0])
	}
	if blocks[1].Kind != model.BlockText {
		t.Errorf("unexpected second block: %+v", blocks[1])
	}
}

func TestShutdownClosesClients(t *testing.T) {
	fake := &fakeClient{}
	r := registryWith(t, "fs", fake, nil)

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.closed {
		t.Error("expected client to be closed")
	}
	if r.HasTools() {
		t.Error("expected registry to be empty after shutdown")
	}
	if len(r.Descriptors()) != 0 {
		t.Error("expected no descriptors after shutdown")
	}
}
