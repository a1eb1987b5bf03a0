// supportctl talks to the support agents from a terminal. Chat history is
// kept in a local SQLite file so conversations survive between runs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/chat"
	"github.com/ashureev/support-hub/internal/session"
	"github.com/ashureev/support-hub/internal/store"
	"github.com/spf13/cobra"
)

// app holds the global flags and the terminal streams.
type app struct {
	statePath string
	mode      string
	baseURL   string
	timeout   time.Duration
	noDelay   bool
	verbose   bool

	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".support-hub", "state.db")
	}
	return filepath.Join(home, ".support-hub", "state.db")
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}

	rootCmd := &cobra.Command{
		Use:   "supportctl",
		Short: "Chat with the support agents from a terminal",
		Long: `supportctl is a terminal client for the support widget.

Two agents are available:
  knowledge - company info: hours, pricing, features
  technical - troubleshooting, may open a ticket

Run 'supportctl repl' for an interactive session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			switch a.mode {
			case "mock", "remote":
				return nil
			default:
				return fmt.Errorf("unknown --mode %q (want mock or remote)", a.mode)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.statePath, "state", defaultStatePath(), "SQLite file holding chat history")
	rootCmd.PersistentFlags().StringVar(&a.mode, "mode", "mock", "Backend mode: mock or remote")
	rootCmd.PersistentFlags().StringVar(&a.baseURL, "base-url", backend.DefaultBaseURL, "Remote API base URL")
	rootCmd.PersistentFlags().DurationVar(&a.timeout, "timeout", backend.DefaultTimeout, "Remote request timeout")
	rootCmd.PersistentFlags().BoolVar(&a.noDelay, "no-delay", false, "Disable simulated latency in mock mode")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		a.chatCmd(),
		a.historyCmd(),
		a.clearCmd(),
		a.attachCmd(),
		a.replCmd(),
		a.triageCmd(),
		a.leadCmd(),
		a.ticketCmd(),
		a.healthCmd(),
	)
	return rootCmd
}

func (a *app) newBackend() backend.ConversationBackend {
	if a.mode == "remote" {
		return backend.NewHTTP(a.baseURL, a.timeout, backend.WithHTTPLogger(a.logger))
	}
	opts := []backend.MockOption{backend.WithMockLogger(a.logger)}
	if a.noDelay {
		opts = append(opts, backend.WithLatency(0, 0))
	}
	return backend.NewMock(opts...)
}

// openSession opens the local state and the caller's chat manager. The returned
// func flushes pending writes and closes the state file.
func (a *app) openSession(ctx context.Context, opts ...chat.Option) (*chat.Manager, func(), error) {
	db, err := store.NewSQLite(a.statePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open state %s: %w", a.statePath, err)
	}
	sessions := session.NewStore(db, a.logger)
	userID := sessions.UserID(ctx)
	a.logger.Debug("Loaded identity", "user_id", userID, "state", a.statePath)

	opts = append([]chat.Option{chat.WithBackend(a.newBackend()), chat.WithLogger(a.logger)}, opts...)
	mgr := chat.NewManager(ctx, userID, sessions, opts...)
	closeFn := func() {
		if err := mgr.Close(); err != nil {
			a.logger.Warn("Failed to flush chat history", "error", err)
		}
		if err := db.Close(); err != nil {
			a.logger.Warn("Failed to close state", "error", err)
		}
	}
	return mgr, closeFn, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
