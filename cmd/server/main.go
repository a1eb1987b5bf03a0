// Support Hub - customer support widget server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/support-hub/internal/api"
	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/config"
	"github.com/ashureev/support-hub/internal/health"
	"github.com/ashureev/support-hub/internal/identity"
	"github.com/ashureev/support-hub/internal/middleware"
	"github.com/ashureev/support-hub/internal/session"
	"github.com/ashureev/support-hub/internal/store"
	"github.com/ashureev/support-hub/internal/ticket"
	"github.com/ashureev/support-hub/internal/widget"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"container", config.IsContainer(),
		"backend", cfg.Backend.Mode,
	)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	notifier := newNotifier(cfg, logger)
	defer func() {
		if closeErr := notifier.Close(); closeErr != nil {
			slog.Warn("Failed to close ticket notifier", "error", closeErr)
		}
	}()

	// Initialize services.
	conv := newBackend(cfg, notifier, logger)
	tickets := ticket.NewService(repo, notifier, logger)
	hub := widget.NewHub(session.NewStore(repo, logger), conv,
		widget.WithBannerDuration(cfg.BannerDuration),
		widget.WithHubLogger(logger),
	)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Close()

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, logger)
	chatHandler := api.NewChatHandler(conv, logger)
	ticketHandler := api.NewTicketHandler(tickets, logger)
	widgetHandler := api.NewWidgetHandler(hub, logger)
	wsHandler := widget.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment(), logger))

	// Public routes.
	healthHandler.RegisterHealth(r)
	ticketHandler.RegisterRoutes(r)
	widgetHandler.RegisterRoutes(r)

	// Routes that reach the conversation backend are rate limited per user.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, func(r *http.Request) string {
			return identity.UserIDFromContext(r.Context())
		}))
		chatHandler.RegisterRoutes(r)
		widgetHandler.RegisterTurnRoutes(r)
	})

	// WebSocket endpoint.
	r.Get("/ws/widget", wsHandler.ServeHTTP)

	// Create server.
	// WebSocket connections require no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	widget.StartSweeper(ctx, hub, cfg.WidgetIdleTTL, hub.Connections().CloseUser)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPCHealthPort != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
			if err != nil {
				return err
			}
			return health.NewServer(repo, 0, logger).Serve(gctx, lis)
		})
	}

	// Shut down on signal or when any server fails.
	g.Go(func() error {
		<-gctx.Done()
		stop()

		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := hub.Close(); err != nil {
			slog.Warn("Failed to flush widget sessions", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newNotifier assembles the configured ticket notification sinks.
func newNotifier(cfg *config.Config, logger *slog.Logger) ticket.Notifier {
	var sinks ticket.Multi
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, ticket.NewWebhook(cfg.Notify.WebhookURL, 0))
		slog.Info("Ticket webhook enabled")
	}
	if cfg.Notify.AMQPURL != "" {
		pub, err := ticket.NewAMQP(ticket.AMQPConfig{
			URL:      cfg.Notify.AMQPURL,
			Exchange: cfg.Notify.AMQPExchange,
			Producer: "support-hub",
		})
		if err != nil {
			slog.Warn("Failed to connect to ticket broker, events disabled", "error", err)
		} else {
			sinks = append(sinks, pub)
			slog.Info("Ticket events enabled", "exchange", cfg.Notify.AMQPExchange)
		}
	}
	if len(sinks) == 0 {
		return ticket.NewFallback(logger)
	}
	return sinks
}

// newBackend builds the conversation backend for the configured mode.
func newBackend(cfg *config.Config, notifier ticket.Notifier, logger *slog.Logger) backend.ConversationBackend {
	if cfg.Backend.Mode == config.BackendRemote {
		slog.Info("Using remote conversation backend", "base_url", cfg.Backend.RemoteBaseURL)
		return backend.NewHTTP(cfg.Backend.RemoteBaseURL, cfg.Backend.RemoteTimeout,
			backend.WithTicketNotifier(notifier),
			backend.WithHTTPLogger(logger),
		)
	}
	return backend.NewMock(
		backend.WithLatency(cfg.Backend.MockMinDelay, cfg.Backend.MockMaxDelay),
		backend.WithTicketProbability(cfg.Backend.TicketProbability),
		backend.WithMockNotifier(notifier),
		backend.WithMockLogger(logger),
	)
}
