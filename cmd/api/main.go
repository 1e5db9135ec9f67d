// Package main is the entry point for the meeting agents API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/agent"
	"github.com/capitalize-ai/meeting-agents/internal/config"
	"github.com/capitalize-ai/meeting-agents/internal/conversation"
	"github.com/capitalize-ai/meeting-agents/internal/handler"
	"github.com/capitalize-ai/meeting-agents/internal/llm"
	"github.com/capitalize-ai/meeting-agents/internal/middleware"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	natsclient "github.com/capitalize-ai/meeting-agents/internal/nats"
	"github.com/capitalize-ai/meeting-agents/internal/platform"
	"github.com/capitalize-ai/meeting-agents/internal/postmeeting"
	"github.com/capitalize-ai/meeting-agents/internal/service"
	"github.com/capitalize-ai/meeting-agents/internal/speech"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
	"github.com/capitalize-ai/meeting-agents/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "meeting-agents: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, "meeting-agents", cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	// Event bus. Lifecycle events are best-effort, so the server runs
	// without one when it is disabled.
	var (
		events     service.EventPublisher
		eventStore handler.EventStore
		bus        handler.ConnChecker
	)
	if cfg.NATS.Enabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATS.URL,
			CAFile:   cfg.NATS.CAFile,
			CertFile: cfg.NATS.CertFile,
			KeyFile:  cfg.NATS.KeyFile,
			Token:    cfg.NATS.Token,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streams := natsclient.NewStreamManager(natsClient, log)
		if err := streams.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		events, eventStore, bus = streams, streams, natsClient
	}

	llmClient := newLLMClient(cfg.LLM, log)

	roster, err := agent.LoadRoster(cfg.Agents.RosterPath)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}
	agents, err := agent.RegistryFromRoster(roster, llmClient, log)
	if err != nil {
		return fmt.Errorf("failed to build agent registry: %w", err)
	}
	log.Info("loaded roster", zap.Int("agents", agents.Len()))

	platforms, err := cfg.Meeting.Platforms()
	if err != nil {
		return err
	}
	preferred, _ := model.ParsePlatform(cfg.Meeting.PreferredPlatform)
	integrations := make([]platform.Integration, 0, len(platforms))
	for _, p := range platforms {
		integrations = append(integrations, platform.NewVirtual(p))
	}
	meetingPlatforms := platform.NewManager(preferred, log, integrations...)

	router := newSpeechRouter(cfg.Speech, log)

	postOpts := []postmeeting.Option{
		postmeeting.WithTickets(postmeeting.NewMemoryTickets()),
		postmeeting.WithDocs(postmeeting.NewMemoryDocs()),
	}
	if llmClient != nil {
		postOpts = append(postOpts, postmeeting.WithLLM(llmClient))
	}
	post := postmeeting.New(postmeeting.Config{
		TicketProject: cfg.Meeting.TicketProject,
		DocSpace:      cfg.Meeting.DocSpace,
	}, log, postOpts...)

	strategy, _ := conversation.ParseStrategy(cfg.Meeting.Strategy)
	orchestrator, err := service.New(service.Config{
		MaxConcurrentMeetings:  cfg.Meeting.MaxConcurrentMeetings,
		MeetingTimeout:         cfg.Meeting.Timeout,
		DefaultDurationMinutes: cfg.Meeting.DefaultDurationMinutes,
		AutoTranscription:      cfg.Meeting.AutoTranscription,
		SpeakResponses:         cfg.Meeting.SpeakResponses,
		Strategy:               strategy,
	}, service.Dependencies{
		Agents:      agents,
		Platform:    meetingPlatforms,
		Speech:      router,
		PostMeeting: post,
		Events:      events,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	healthHandler := handler.NewHealthHandler(bus, router)
	meetingHandler := handler.NewMeetingHandler(orchestrator, router, eventStore, log)
	streamHandler := handler.NewStreamHandler(orchestrator, eventStore, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORS.Origins(), cfg.CORS.MaxAge))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
		r.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
		handler.Mount(r, meetingHandler, streamHandler)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := orchestrator.Cleanup(shutdownCtx); err != nil {
		log.Error("meeting cleanup incomplete", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func newLLMClient(cfg config.LLMConfig, log *logger.Logger) llm.Client {
	provider, key := cfg.APIKey()
	if key == "" {
		log.Info("no LLM key configured, agents use templated responses")
		return nil
	}
	c, err := llm.NewClient(llm.Provider(provider), key)
	if err != nil {
		log.Warn("failed to create LLM client, LLM features disabled", zap.String("provider", provider), zap.Error(err))
		return nil
	}
	return c
}

// newSpeechRouter registers a websocket provider for every configured sidecar.
// The preferred provider falls back to push ingestion when it has no sidecar,
// so bots can post recognition results over HTTP.
func newSpeechRouter(cfg config.SpeechConfig, log *logger.Logger) *speech.Router {
	preferred, _ := model.ParseSpeechProvider(cfg.PreferredProvider)

	var providers []speech.Provider
	for _, p := range model.SpeechProviders {
		switch url := cfg.URL(p); {
		case url != "":
			providers = append(providers, speech.NewWebSocketProvider(p, url, log))
		case p == preferred || (preferred == "" && len(providers) == 0):
			providers = append(providers, speech.NewPushProvider(p))
		}
	}

	return speech.NewRouter(speech.Config{
		Preferred:       preferred,
		FallbackEnabled: cfg.EnableFallback,
	}, log, providers...)
}
