package config

func DefaultConfig() *Config {
	return &Config{
		DataDirectory: "~/.local/share/mcpchat",
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 4096,
		},
		Chat: ChatConfig{
			ToolTimeoutSecs: 120,
		},
	}
}

func GenerateConfigTemplate() string {
	return `# mcpchat configuration
# Location: ~/.config/mcpchat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where chat history and the state database are stored
data_directory = "~/.local/share/mcpchat"

[anthropic]
# API key (or set MCPCHAT_API_KEY)
api_key = ""

# Model used for every turn
model = "claude-sonnet-4-5-20250929"

# Required by the API
max_tokens = 4096

# Extended-thinking token budget; 0 disables thinking
thinking_budget = 0

[chat]
# Optional system prompt sent on every turn
system_prompt = ""

# Upper bound on a single tool execution
tool_timeout_secs = 120

# One [[servers]] block per MCP tool provider.
# Local (stdio):
# [[servers]]
# id = "fs"
# command = "mcp-server-filesystem"
# args = ["/home/user"]
#
# Remote:
# [[servers]]
# id = "search"
# url = "https://example.com/sse"
# transport = "sse"  # or "streamable-http"
`
}
