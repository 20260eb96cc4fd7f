// Package main is the entry point for the API server.
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

	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/assistant"
	"github.com/capitalize-ai/deal-conversations/internal/attachment"
	"github.com/capitalize-ai/deal-conversations/internal/clock"
	"github.com/capitalize-ai/deal-conversations/internal/config"
	"github.com/capitalize-ai/deal-conversations/internal/customer"
	"github.com/capitalize-ai/deal-conversations/internal/events"
	"github.com/capitalize-ai/deal-conversations/internal/handler"
	"github.com/capitalize-ai/deal-conversations/internal/lender"
	"github.com/capitalize-ai/deal-conversations/internal/llm"
	natsclient "github.com/capitalize-ai/deal-conversations/internal/nats"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
	"github.com/capitalize-ai/deal-conversations/pkg/tracing"
)

const serviceName = "deal-conversations"

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Development {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	clk := clock.Real{}
	lenders := lender.NewEngine(nil)

	engine := assistant.NewEngine(assistant.RecommenderFunc(lenders.RecommendFor), newNarrator(cfg, log), log)
	responder := assistant.NewResponder(engine, assistant.ResponderConfig{
		Delay:   cfg.AssistantReplyDelay,
		Timeout: cfg.AssistantTimeout,
		Clock:   clk,
		Logger:  log,
	})

	deps := service.Deps{
		Clock:       clk,
		Lenders:     lenders,
		Responder:   responder,
		Broadcaster: events.NewBroadcaster(log),
		Attachments: attachment.NewMemoryStore(cfg.AttachmentBaseURL, cfg.AttachmentMaxBytes, clk),
		Logger:      log,
	}
	if cfg.CustomerFile != "" {
		customers, err := customer.LoadFile(cfg.CustomerFile)
		if err != nil {
			return fmt.Errorf("failed to load customers: %w", err)
		}
		deps.Customers = customers
	}
	svc := service.NewDealService(deps)

	var readiness handler.ReadinessChecker
	if cfg.NATSURL != "" {
		natsClient, err := startMirror(ctx, cfg, svc, log)
		if err != nil {
			svc.Close()
			return err
		}
		defer natsClient.Close()
		readiness = natsClient
	} else {
		log.Info("NATS_URL not set, event mirror disabled")
	}

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handler.RouterConfig{
			Service:        svc,
			Logger:         log,
			JWTSecret:      cfg.JWTSecret,
			CORSOrigins:    cfg.CORSOrigins,
			RateLimit:      cfg.RateLimitRequests,
			RateWindow:     cfg.RateLimitWindow,
			MaxUploadBytes: cfg.AttachmentMaxBytes,
			Readiness:      readiness,
		}),
		ReadTimeout: cfg.ServerReadTimeout,
		// Zero keeps SSE streams open.
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		svc.Close()
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")
	// Closing subscriptions first ends open SSE streams.
	svc.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// newNarrator returns nil unless narration is enabled and a key is set; the
// assistant then sends its templated drafts as is.
func newNarrator(cfg *config.Config, log *logger.Logger) assistant.Narrator {
	if !cfg.NarrationEnabled {
		return nil
	}
	apiKey := cfg.LLMAPIKey()
	if apiKey == "" {
		log.Warn("assistant narration enabled without an API key, using templated replies",
			zap.String("provider", cfg.DefaultLLM))
		return nil
	}
	client, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), apiKey)
	if err != nil {
		log.Warn("failed to create LLM client, using templated replies", zap.Error(err))
		return nil
	}
	log.Info("assistant narration enabled", zap.String("provider", client.Name()))
	return assistant.NewLLMNarrator(client, cfg.LLMModel)
}

// startMirror connects to NATS and copies every conversation event into
// the deal conversations stream until ctx is done.
func startMirror(ctx context.Context, cfg *config.Config, svc *service.DealService, log *logger.Logger) (*natsclient.Client, error) {
	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
		Name:     serviceName,
	}, log)
	if err != nil {
		return nil, err
	}

	if err := natsclient.EnsureStream(ctx, client.JetStream()); err != nil {
		client.Close()
		return nil, err
	}

	mirror := natsclient.NewMirror(client.JetStream(), log)
	ch, _ := svc.Broadcaster().Subscribe(ctx, events.AllConversations)
	go mirror.Run(ctx, ch)

	log.Info("event mirror started", zap.String("stream", natsclient.StreamName))
	return client, nil
}
