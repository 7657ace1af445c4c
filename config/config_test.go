package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")

	content := `
data_directory = "/tmp/mcpchat-test"

[anthropic]
api_key = "sk-test"
model = "claude-sonnet-4-5-20250929"
max_tokens = 2048
thinking_budget = 1024

[chat]
system_prompt = "be terse"
tool_timeout_secs = 30

[[servers]]
id = "fs"
command = "mcp-server-filesystem"
args = ["/home"]

[[servers]]
id = "search"
url = "https://example.com/sse"
transport = "sse"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-test" || cfg.Anthropic.MaxTokens != 2048 {
		t.Errorf("unexpected anthropic config: %+v", cfg.Anthropic)
	}
	if cfg.Anthropic.ThinkingBudget != 1024 {
		t.Errorf("unexpected thinking budget: %d", cfg.Anthropic.ThinkingBudget)
	}
	if cfg.Chat.SystemPrompt != "be terse" || cfg.Chat.ToolTimeoutSecs != 30 {
		t.Errorf("unexpected chat config: %+v", cfg.Chat)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(cfg.Servers))
	}
	if cfg.Servers[0].ID != "fs" || cfg.Servers[0].Command != "mcp-server-filesystem" {
		t.Errorf("unexpected first server: %+v", cfg.Servers[0])
	}
	if cfg.Servers[1].URL != "https://example.com/sse" || cfg.Servers[1].Transport != "sse" {
		t.Errorf("unexpected second server: %+v", cfg.Servers[1])
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Error("expected nil config for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MCPCHAT_API_KEY", "sk-env")
	t.Setenv("MCPCHAT_MODEL", "claude-test")
	t.Setenv("MCPCHAT_DATA_DIR", "/tmp/override")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Anthropic.APIKey != "sk-env" {
		t.Errorf("expected env api key, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.Model != "claude-test" {
		t.Errorf("expected env model, got %q", cfg.Anthropic.Model)
	}
	if cfg.DataDirectory != "/tmp/override" {
		t.Errorf("expected env data dir, got %q", cfg.DataDirectory)
	}
}

func TestGenerateConfigTemplateParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(path, []byte(GenerateConfigTemplate()), 0600); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("template must parse: %v", err)
	}
	if cfg.Anthropic.Model == "" {
		t.Error("template should carry a default model")
	}
	if cfg.Chat.ToolTimeoutSecs != 120 {
		t.Errorf("unexpected default timeout: %d", cfg.Chat.ToolTimeoutSecs)
	}
}

func TestExpandPath(t *testing.T) {
	home := GetHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{input: "~/data", want: filepath.Join(home, "data")},
		{input: "/abs/path", want: "/abs/path"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		if got := ExpandPath(tt.input); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
