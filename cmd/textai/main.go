// Package main provides the textai CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/textai/cli"
	"github.com/richinex/textai/conversation"
)

var (
	// Global flags
	configPath string
	provider   string
	instance   string
	dbPath     string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "textai",
		Short: "Queue-governed LLM text interface",
		Long: `A CLI for asking questions through a rate-governed LLM coordinator.

Requests are queued, paced and retried with backoff; conversation history
is kept per instance and optionally persisted to SQLite.

Configuration comes from --config (TOML), then environment variables
(TEXTAI_*, LLM_*, <PROVIDER>_API_KEY), then flags.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVarP(&instance, "instance", "i", "", "Instance name keying stored history")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database for conversation history")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show token usage and debug logs")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(instancesCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(providersCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.ConfigPath = configPath
	opts.Provider = provider
	opts.Instance = instance
	opts.DBPath = dbPath
	opts.Verbose = verbose
	return opts
}

func askCmd() *cobra.Command {
	var (
		expedited   bool
		model       string
		temperature float64
		maxTokens   int
		system      string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := cli.AskRequest{
				Question:  args[0],
				Expedited: expedited,
				Model:     model,
				MaxTokens: maxTokens,
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			if cmd.Flags().Changed("system") {
				req.System = &system
			}
			return cli.Ask(cmd.Context(), req, options())
		},
	}

	cmd.Flags().BoolVar(&expedited, "priority", false, "Dispatch ahead of normal requests")
	cmd.Flags().StringVar(&model, "model", "", "Model override for this request")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (0-2)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget for prompt and answer")
	cmd.Flags().StringVar(&system, "system", "", "System prompt for this request")

	return cmd
}

func chatCmd() *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(cmd.Context(), system, options())
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "System prompt for the session")

	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit    int
		model    string
		since    time.Duration
		metadata bool
		oldest   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored conversation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := conversation.HistoryQuery{
				Limit:           limit,
				Model:           model,
				IncludeMetadata: metadata,
				Order:           conversation.OrderNewest,
			}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			if oldest {
				q.Order = conversation.OrderOldest
			}
			return cli.History(cmd.Context(), q, options())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of turns (0 for all)")
	cmd.Flags().StringVar(&model, "model", "", "Only turns answered by this model")
	cmd.Flags().DurationVar(&since, "since", 0, "Only turns newer than this (e.g. 2h)")
	cmd.Flags().BoolVar(&metadata, "metadata", false, "Include model, tokens and latency")
	cmd.Flags().BoolVar(&oldest, "oldest-first", false, "Order oldest first")

	return cmd
}

func instancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List instances with stored history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Instances(cmd.Context(), options())
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print coordinator state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Health(options())
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListProviders(options())
			return nil
		},
	}
}
