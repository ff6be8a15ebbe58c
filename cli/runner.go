// Command execution for CLI commands.
//
// Information Hiding:
// - Settings loading and coordinator lifecycle hidden
// - Stored history access hidden behind History
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/richinex/textai/config"
	"github.com/richinex/textai/conversation"
	"github.com/richinex/textai/coordinator"
	"github.com/richinex/textai/llm"
	"github.com/richinex/textai/storage"
)

// Options holds CLI execution options.
type Options struct {
	ConfigPath string
	Provider   string
	Instance   string
	DBPath     string
	Verbose    bool

	// Out and In default to stdout and stdin.
	Out io.Writer
	In  io.Reader
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Out: os.Stdout,
		In:  os.Stdin,
	}
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o Options) in() io.Reader {
	if o.In == nil {
		return os.Stdin
	}
	return o.In
}

// AskRequest is a single question with its per-request overrides.
type AskRequest struct {
	Question    string
	Expedited   bool
	Model       string
	Temperature *float64
	MaxTokens   int
	System      *string
}

// Ask sends one question and prints the answer.
func Ask(ctx context.Context, req AskRequest, opts Options) error {
	c, err := openCoordinator(opts)
	if err != nil {
		return err
	}
	defer shutdown(c)

	var askOpts []coordinator.AskOption
	if req.Expedited {
		askOpts = append(askOpts, coordinator.WithPriority())
	}

	resp, err := c.Ask(ctx, req.Question, coordinator.Params{
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.System,
	}, askOpts...)
	if err != nil {
		return err
	}

	out := opts.out()
	fmt.Fprintln(out, resp.Text)
	if opts.Verbose {
		printUsage(out, resp)
	}
	return nil
}

// Chat starts an interactive session. Lines starting with '/' are commands.
func Chat(ctx context.Context, systemPrompt string, opts Options) error {
	c, err := openCoordinator(opts)
	if err != nil {
		return err
	}
	defer shutdown(c)

	if systemPrompt != "" {
		c.SetSystemPrompt(systemPrompt)
	}

	out := opts.out()
	snap := c.Health()
	if snap.HistorySize > 0 {
		fmt.Fprintf(out, "Resuming '%s' (%d turns)\n\n", snap.Instance, snap.HistorySize)
	}
	fmt.Fprintf(out, "Chat with %s (%s). Type 'exit' to quit, '/help' for commands.\n\n", snap.Provider, snap.Model)

	scanner := bufio.NewScanner(opts.in())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if strings.HasPrefix(input, "/") {
			if err := chatCommand(ctx, c, input, out); err != nil {
				fmt.Fprintf(out, "\nError: %v\n\n", err)
			}
			continue
		}

		resp, err := c.Ask(ctx, input, coordinator.Params{})
		if err != nil {
			fmt.Fprintf(out, "\nError: %v\n\n", err)
			continue
		}
		fmt.Fprintf(out, "\n%s\n\n", resp.Text)
		if opts.Verbose {
			printUsage(out, resp)
		}
	}

	return scanner.Err()
}

const chatHelp = `Commands:
  /health          show coordinator state
  /history [n]     show the last n turns (default 5)
  /system <text>   replace the system prompt
  /clear           forget the conversation
  /reset           clear counters and resume after errors
`

func chatCommand(ctx context.Context, c *coordinator.Coordinator, input string, out io.Writer) error {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help":
		fmt.Fprint(out, chatHelp)
	case "/health":
		return printJSON(out, c.Health())
	case "/history":
		limit := 5
		if arg != "" {
			if _, err := fmt.Sscanf(arg, "%d", &limit); err != nil {
				return fmt.Errorf("invalid limit %q", arg)
			}
		}
		turns := c.History(conversation.HistoryQuery{Limit: limit})
		slices.Reverse(turns)
		printTurns(out, turns, false)
	case "/system":
		c.SetSystemPrompt(arg)
		fmt.Fprintln(out, "System prompt updated.")
	case "/clear":
		if err := c.ClearHistory(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "History cleared.")
	case "/reset":
		c.Reset()
		fmt.Fprintln(out, "Coordinator reset.")
	default:
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	return nil
}

// History prints stored turns of the configured instance. It reads the
// database directly and needs no API key.
func History(ctx context.Context, q conversation.HistoryQuery, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	if settings.Storage.DatabasePath == "" {
		return errors.New("no database configured (use --db or TEXTAI_DB_PATH)")
	}

	store, err := storage.OpenSqlite(settings.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	turns, err := store.Load(ctx, settings.Instance, settings.Coordinator.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	h := conversation.NewHistory(settings.Coordinator.HistoryLimit)
	h.Restore(turns)
	selected := h.Query(q)
	if len(selected) == 0 {
		fmt.Fprintf(opts.out(), "No history for '%s'.\n", settings.Instance)
		return nil
	}
	printTurns(opts.out(), selected, q.IncludeMetadata)
	return nil
}

// Instances lists instances with stored history, most recently active first.
func Instances(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	if settings.Storage.DatabasePath == "" {
		return errors.New("no database configured (use --db or TEXTAI_DB_PATH)")
	}

	store, err := storage.OpenSqlite(settings.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	names, err := store.Instances(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(opts.out(), name)
	}
	return nil
}

// Health prints the coordinator snapshot as JSON.
func Health(opts Options) error {
	c, err := openCoordinator(opts)
	if err != nil {
		return err
	}
	defer shutdown(c)
	return printJSON(opts.out(), c.Health())
}

// ListProviders prints each provider with its model, endpoint and key status.
func ListProviders(opts Options) {
	out := opts.out()
	fmt.Fprintln(out, "Providers:")
	for _, name := range config.SupportedProviders() {
		pt, err := llm.ParseProviderType(name)
		if err != nil {
			continue
		}
		model, _ := config.ModelFor(name)
		endpoint, _ := config.EndpointFor(name)
		status := "missing"
		if _, err := config.APIKeyFor(name); err == nil {
			status = "set"
		}
		fmt.Fprintf(out, "  %-10s model=%s endpoint=%s key=%s (%s)\n", name, model, endpoint, pt.EnvVar(), status)
	}
}

func loadSettings(opts Options) (config.Settings, error) {
	settings, err := config.Load(opts.ConfigPath, opts.Provider)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Instance != "" {
		settings.Instance = config.NormalizeInstance(opts.Instance)
	}
	if opts.DBPath != "" {
		settings.Storage.DatabasePath = opts.DBPath
	}
	return settings, nil
}

func openCoordinator(opts Options) (*coordinator.Coordinator, error) {
	settings, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}
	return coordinator.Open(settings, coordinator.WithLogger(NewLogger(os.Stderr, opts.Verbose)))
}

// NewLogger returns a text logger at debug level when verbose, warn
// otherwise.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

const shutdownTimeout = 10 * time.Second

func shutdown(c *coordinator.Coordinator) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
	}
}

func printUsage(out io.Writer, resp llm.Response) {
	fmt.Fprintf(out, "\nToken Usage:\n")
	fmt.Fprintf(out, "  Model: %s\n", resp.Model)
	fmt.Fprintf(out, "  Prompt tokens: %d\n", resp.Usage.PromptTokens)
	fmt.Fprintf(out, "  Completion tokens: %d\n", resp.Usage.CompletionTokens)
	fmt.Fprintf(out, "  Total tokens: %d\n", resp.Usage.TotalTokens)
	if resp.ResponseTime > 0 {
		fmt.Fprintf(out, "  Response time: %s\n", resp.ResponseTime.Round(time.Millisecond))
	}
}

const maxTurnTextLen = 200

func printTurns(out io.Writer, turns []conversation.Turn, metadata bool) {
	for _, t := range turns {
		fmt.Fprintf(out, "[%s]\n", t.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(out, "  Q: %s\n", truncateString(t.Question, maxTurnTextLen))
		fmt.Fprintf(out, "  A: %s\n", truncateString(t.Response, maxTurnTextLen))
		if metadata {
			fmt.Fprintf(out, "  model=%s tokens=%d latency=%s\n", t.Model, t.Usage.TotalTokens, t.Latency.Round(time.Millisecond))
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
