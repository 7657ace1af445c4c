package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mcpchat/assistant"
	"mcpchat/config"
	"mcpchat/mcp"
	"mcpchat/model"
	"mcpchat/provider"
	"mcpchat/storage"
)

const Version = "v0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := cfg.DataDir()
	if err := config.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(dataDir)

	if cfg.Anthropic.APIKey == "" {
		return fmt.Errorf("no API key configured; set anthropic.api_key in %s or MCPCHAT_API_KEY", config.GetSettingsFilePath())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateStore, err := storage.NewSQLiteStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer stateStore.Close()

	store, err := storage.NewStore(stateStore)
	if err != nil {
		return fmt.Errorf("failed to load chats: %w", err)
	}

	registry := mcp.NewRegistry()
	failed, err := registry.Connect(ctx, cfg.Servers)
	for id, connErr := range failed {
		fmt.Fprintf(os.Stderr, "Warning: server %s failed to connect: %v\n", id, connErr)
	}
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Shutdown(shutdownCtx); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: registry shutdown: %v", err)
		}
	}()

	backend, err := provider.NewAnthropicBackend(cfg.Anthropic.BaseURL, cfg.Anthropic.APIKey)
	if err != nil {
		return err
	}

	a := assistant.New(backend, registry, store, assistant.Options{
		Model:          cfg.Anthropic.Model,
		MaxTokens:      cfg.Anthropic.MaxTokens,
		SystemPrompt:   cfg.Chat.SystemPrompt,
		ThinkingBudget: cfg.Anthropic.ThinkingBudget,
		ToolTimeout:    time.Duration(cfg.Chat.ToolTimeoutSecs) * time.Second,
	})
	if err := a.InitializeTools(ctx); err != nil {
		if errors.Is(err, assistant.ErrNoTools) {
			return fmt.Errorf("no tools available; configure at least one [[servers]] entry in %s", config.GetSettingsFilePath())
		}
		return err
	}

	return repl(ctx, a, store)
}

func repl(ctx context.Context, a *assistant.Assistant, store *storage.Store) error {
	current, err := store.Current()
	if err != nil {
		return err
	}

	fmt.Printf("mcpchat %s - chat: %s\n", Version, current.Title)
	fmt.Println("Commands: /new /chats /open <id> /delete /search <query> /export <path> /context [text] /usage /quit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Ambient context lines sent alongside the next message, e.g. the
	// path of the file the user is working on.
	var contextLines []string

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/context") {
			arg := strings.TrimSpace(strings.TrimPrefix(line, "/context"))
			if arg == "" {
				contextLines = nil
				fmt.Println("Context cleared.")
			} else {
				contextLines = append(contextLines, arg)
				fmt.Printf("Context: %s\n", strings.Join(contextLines, "; "))
			}
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := runCommand(line, a, store)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		current, err = store.Current()
		if err != nil {
			return err
		}

		events, err := a.SendMessage(ctx, current.ID, line, contextLines)
		if err != nil {
			if errors.Is(err, assistant.ErrTurnInFlight) {
				fmt.Println("Still working on the previous message.")
				continue
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		render(events)
	}
}

func runCommand(line string, a *assistant.Assistant, store *storage.Store) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		chat, err := store.CreateChat()
		if err != nil {
			return false, err
		}
		fmt.Printf("Started chat %s\n", chat.ID)

	case "/chats":
		for _, chat := range store.List() {
			created := time.UnixMilli(chat.CreatedAt).Format("Jan 2 15:04")
			fmt.Printf("  %s  %-33s %s (%d messages)\n", chat.ID, chat.Title, created, chat.MessageCount)
		}

	case "/open":
		if arg == "" {
			return false, fmt.Errorf("usage: /open <chat-id>")
		}
		found, err := store.SwitchChat(arg)
		if err != nil {
			return false, err
		}
		if !found {
			fmt.Printf("No chat %s\n", arg)
			break
		}
		chat, _ := store.Current()
		fmt.Printf("Switched to %s\n", chat.Title)

	case "/delete":
		chat, err := store.DeleteCurrentChat()
		if err != nil {
			return false, err
		}
		fmt.Printf("Deleted; now on %s\n", chat.Title)

	case "/search":
		if arg == "" {
			return false, fmt.Errorf("usage: /search <query>")
		}
		matches := store.SearchMessages(arg)
		if len(matches) == 0 {
			fmt.Println("No matches.")
			break
		}
		for _, m := range matches {
			fmt.Printf("  [%s] %s #%d (%s): %s\n", m.ChatID, m.ChatTitle, m.MessageIndex, m.Role, m.Preview)
		}

	case "/export":
		if arg == "" {
			return false, fmt.Errorf("usage: /export <path>")
		}
		chat, err := store.Current()
		if err != nil {
			return false, err
		}
		if err := store.ExportChat(chat.ID, config.ExpandPath(arg)); err != nil {
			return false, err
		}
		fmt.Printf("Exported %s to %s\n", chat.Title, arg)

	case "/usage":
		chat, err := store.Current()
		if err != nil {
			return false, err
		}
		usage, err := store.Usage(chat.ID)
		if err != nil {
			return false, err
		}
		fmt.Printf("Input: %d (cache write %d, cache read %d)  Output: %d\n",
			usage.InputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens, usage.OutputTokens)

	default:
		fmt.Printf("Unknown command %s\n", cmd)
	}

	return false, nil
}

// render prints one turn's display events as they arrive.
func render(events <-chan model.StreamEvent) {
	inThinking := false

	for ev := range events {
		switch ev.Type {
		case model.StreamThinkingDelta:
			if ev.ThinkingComplete {
				if inThinking {
					fmt.Print("\n\n")
					inThinking = false
				}
				continue
			}
			if !inThinking {
				fmt.Print("[thinking] ")
				inThinking = true
			}
			fmt.Print(ev.Thinking)

		case model.StreamText:
			fmt.Print(ev.Text)

		case model.StreamToolUse:
			fmt.Printf("\n[tool] %s %v\n", ev.Name, ev.Input)

		case model.StreamToolResult:
			status := "ok"
			if ev.IsError {
				status = "error"
			}
			fmt.Printf("[tool] %s -> %s\n", ev.Name, status)

		case model.StreamError:
			fmt.Printf("\n[error] %s\n", ev.Text)
		}
	}
	fmt.Println()
}
