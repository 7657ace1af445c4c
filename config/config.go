package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// AnthropicConfig configures the model backend.
type AnthropicConfig struct {
	BaseURL        string `toml:"base_url,omitempty"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxTokens      int64  `toml:"max_tokens"`
	ThinkingBudget int64  `toml:"thinking_budget,omitempty"`
}

// ChatConfig configures the conversation engine.
type ChatConfig struct {
	SystemPrompt    string `toml:"system_prompt,omitempty"`
	ToolTimeoutSecs int    `toml:"tool_timeout_secs"`
}

// ServerEntry describes one MCP tool provider. Either Command (stdio) or URL
// (sse / streamable-http) is set.
type ServerEntry struct {
	ID        string            `toml:"id"`
	Command   string            `toml:"command,omitempty"`
	Args      []string          `toml:"args,omitempty"`
	Env       map[string]string `toml:"env,omitempty"`
	URL       string            `toml:"url,omitempty"`
	Transport string            `toml:"transport,omitempty"`
}

// Config is the merged runtime configuration.
type Config struct {
	DataDirectory string          `toml:"data_directory"`
	Anthropic     AnthropicConfig `toml:"anthropic"`
	Chat          ChatConfig      `toml:"chat"`
	Servers       []ServerEntry   `toml:"servers"`
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("MCPCHAT_API_KEY"); key != "" {
		c.Anthropic.APIKey = key
	}
	if model := os.Getenv("MCPCHAT_MODEL"); model != "" {
		c.Anthropic.Model = model
	}
	if dataDir := os.Getenv("MCPCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

func CheckDebug() bool {
	debug := os.Getenv("MCPCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens <data>/debug.log when MCPCHAT_DEBUG is set. DebugLog
// stays nil otherwise; callers nil-check before logging.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - the log may contain conversation fragments
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (MCPCHAT_DEBUG=%s) ===", os.Getenv("MCPCHAT_DEBUG"))
}
