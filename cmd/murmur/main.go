// Package main provides the murmur CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/murmur/cli"
	"github.com/richinex/murmur/config"
)

var (
	// Global flags
	configPath string
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
		Use:   "murmur",
		Short: "Voice assistant with streaming speech and tool calling",
		Long: `A voice assistant that streams LLM replies into speech sentence by sentence.

Conversations are compacted into summaries as they grow, tools come from
builtin tools and MCP servers behind a whitelist, and sessions persist in
SQLite when storage.db_path is set.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(voiceCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(summariesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSettings() (config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return config.Settings{}, err
	}
	if verbose {
		settings.Logging.Level = "debug"
	}
	return settings, nil
}

// withRuntime loads settings, builds the runtime and closes it after fn.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *cli.Runtime) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := cli.NewRuntime(ctx, settings, settings.Logger(os.Stderr))
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, rt)
}

func sessionFlags(cmd *cobra.Command, sessionID *string, resume *bool) {
	cmd.Flags().StringVar(sessionID, "session", "", "Session ID for conversation persistence (default: new session)")
	cmd.Flags().BoolVar(resume, "resume", false, "Require the session to exist")
}

func resolveSession(sessionID string, resume bool) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	if resume {
		return "", fmt.Errorf("--resume needs --session")
	}
	return uuid.NewString(), nil
}

func chatCmd() *cobra.Command {
	var sessionID string
	var resume bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive text chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveSession(sessionID, resume)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime) error {
				return cli.Chat(ctx, rt, id, resume)
			})
		},
	}
	sessionFlags(cmd, &sessionID, &resume)

	return cmd
}

func voiceCmd() *cobra.Command {
	var sessionID string
	var resume bool

	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Start a push-to-talk voice chat on the local microphone and speakers",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveSession(sessionID, resume)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime) error {
				return cli.Voice(ctx, rt, id, resume)
			})
		},
	}
	sessionFlags(cmd, &sessionID, &resume)

	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve voice sessions over a websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime) error {
				if addr != "" {
					rt.Settings.Server.Addr = addr
				}
				return cli.Serve(ctx, rt)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime) error {
				cli.ListTools(rt, verboseTools)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "params", "P", false, "Show tool parameters")

	return cmd
}

func sessionsCmd() *cobra.Command {
	var deleteID string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			if deleteID != "" {
				return cli.DeleteSession(cmd.Context(), store, deleteID)
			}
			return cli.ListSessions(cmd.Context(), store)
		},
	}

	cmd.Flags().StringVar(&deleteID, "delete", "", "Delete the session with this ID")

	return cmd
}

func summariesCmd() *cobra.Command {
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "summaries [session-id]",
		Short: "Show the compaction summaries logged for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := cli.OpenStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			return cli.ShowSummaries(cmd.Context(), store, args[0], kind, limit)
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "Only show one kind: summary or merged")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum entries to show (0 for all)")

	return cmd
}
